// Package git provides an interface-based wrapper for the Git operations
// bucket synchronization needs, with context support and proper error
// handling.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Common Git errors
var (
	ErrInvalidRepo     = errors.New("invalid git repository")
	ErrEmptyRemote     = errors.New("remote URL cannot be empty")
	ErrUntrustedCommit = errors.New("HEAD commit is not signed by a trusted key")
)

// Git is the interface for the Git operations used by bucket sync.
type Git interface {
	IsGitRepo(ctx context.Context) (bool, error)
	Clone(ctx context.Context, remote string) error
	Pull(ctx context.Context) (bool, error)
	GetHeadCommit(ctx context.Context) (string, error)
	Reset(ctx context.Context, commit string) error
	VerifyHead(ctx context.Context, keyringPath string) (string, error)
}

// Client implements the Git interface.
type Client struct {
	repoPath string
}

// NewClient creates a new Git client for the given repository path.
func NewClient(repoPath string) *Client {
	return &Client{
		repoPath: repoPath,
	}
}

// IsGitRepo checks if the path is a valid git repository.
// Returns (true, nil) if valid, (false, nil) if not exists, (false, err) if corrupted.
func (c *Client) IsGitRepo(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context cancelled: %w", err)
	}

	_, err := gogit.PlainOpen(c.repoPath)
	if err == gogit.ErrRepositoryNotExists {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrInvalidRepo, err.Error())
	}
	return true, nil
}

// Clone clones remote into the client's repository path.
func (c *Client) Clone(ctx context.Context, remote string) error {
	if remote == "" {
		return ErrEmptyRemote
	}

	_, err := gogit.PlainCloneContext(ctx, c.repoPath, false, &gogit.CloneOptions{
		URL: remote,
	})
	if err != nil {
		return fmt.Errorf("clone %s: %w", remote, err)
	}
	return nil
}

// Pull fast-forwards the worktree from origin. It reports whether HEAD moved.
func (c *Client) Pull(ctx context.Context) (bool, error) {
	repo, err := gogit.PlainOpen(c.repoPath)
	if err != nil {
		return false, fmt.Errorf("open repository: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("get worktree: %w", err)
	}

	err = worktree.PullContext(ctx, &gogit.PullOptions{RemoteName: "origin"})
	if errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pull: %w", err)
	}
	return true, nil
}

// GetHeadCommit returns the commit hash of HEAD.
func (c *Client) GetHeadCommit(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}

	repo, err := gogit.PlainOpen(c.repoPath)
	if err != nil {
		return "", fmt.Errorf("open repository: %w", err)
	}

	ref, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("get HEAD: %w", err)
	}

	return ref.Hash().String(), nil
}

// Reset moves HEAD and the worktree back to commit, discarding any changes.
func (c *Client) Reset(ctx context.Context, commit string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	repo, err := gogit.PlainOpen(c.repoPath)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree: %w", err)
	}

	err = worktree.Reset(&gogit.ResetOptions{
		Commit: plumbing.NewHash(commit),
		Mode:   gogit.HardReset,
	})
	if err != nil {
		return fmt.Errorf("reset to %s: %w", commit, err)
	}
	return nil
}

// VerifyHead checks the OpenPGP signature of the HEAD commit against the
// armored keyring at keyringPath and returns the signer's identity.
func (c *Client) VerifyHead(ctx context.Context, keyringPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}

	armored, err := loadKeyring(keyringPath)
	if err != nil {
		return "", err
	}

	repo, err := gogit.PlainOpen(c.repoPath)
	if err != nil {
		return "", fmt.Errorf("open repository: %w", err)
	}

	ref, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("get HEAD: %w", err)
	}

	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return "", fmt.Errorf("read HEAD commit: %w", err)
	}

	if commit.PGPSignature == "" {
		return "", fmt.Errorf("%w: commit %s is unsigned", ErrUntrustedCommit, ref.Hash())
	}

	entity, err := commit.Verify(armored)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUntrustedCommit, err)
	}

	for name := range entity.Identities {
		return name, nil
	}
	return entity.PrimaryKey.KeyIdString(), nil
}

// loadKeyring reads an armored keyring and makes sure it holds at least one key.
func loadKeyring(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("open keyring: %w", err)
	}

	keyring, err := openpgp.ReadArmoredKeyRing(strings.NewReader(string(data)))
	if err != nil {
		return "", fmt.Errorf("read keyring: %w", err)
	}

	if len(keyring) == 0 {
		return "", fmt.Errorf("keyring is empty")
	}

	return string(data), nil
}
