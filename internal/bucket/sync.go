package bucket

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/ZebulonRouseFrantzich/scoopie/internal/git"
	"github.com/ZebulonRouseFrantzich/scoopie/internal/logging"
)

// ErrSyncLocked is returned when another process is synchronizing the same
// buckets directory.
var ErrSyncLocked = errors.New("bucket sync already in progress")

const lockFile = ".sync.lock"

// Source names a bucket and the git remote it is synchronized from.
type Source struct {
	Name string
	URL  string
}

// SyncAction records what happened to one bucket.
type SyncAction int

const (
	SyncCloned SyncAction = iota
	SyncUpdated
	SyncUnchanged
)

func (a SyncAction) String() string {
	switch a {
	case SyncCloned:
		return "cloned"
	case SyncUpdated:
		return "updated"
	case SyncUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// SyncResult is the outcome for one bucket.
type SyncResult struct {
	Name   string
	Action SyncAction
	Commit string
	Signer string // empty unless a keyring was configured
}

// Syncer clones or fast-forwards bucket repositories into Dir.
type Syncer struct {
	Dir     string
	Sources []Source
	// Keyring, when set, is an armored OpenPGP keyring that every bucket's
	// HEAD commit must be signed by.
	Keyring     string
	Concurrency int
	LockTimeout time.Duration
	Logger      logging.Logger

	newGit func(path string) git.Git
}

func (s *Syncer) gitFor(path string) git.Git {
	if s.newGit != nil {
		return s.newGit(path)
	}
	return git.NewClient(path)
}

// Sync updates every source. It holds an exclusive lock on Dir for the
// duration; a second concurrent Sync fails with ErrSyncLocked once
// LockTimeout elapses.
func (s *Syncer) Sync(ctx context.Context) ([]SyncResult, error) {
	logger := logging.OrNop(s.Logger)

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create buckets directory: %w", err)
	}

	timeout := s.LockTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	fileLock := flock.New(filepath.Join(s.Dir, lockFile))
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	locked, err := fileLock.TryLockContext(lockCtx, 100*time.Millisecond)
	if err == nil && locked {
		defer fileLock.Unlock()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s", ErrSyncLocked, s.Dir)
		}
		return nil, fmt.Errorf("lock buckets directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrSyncLocked, s.Dir)
	}

	results := make([]SyncResult, len(s.Sources))
	g, gctx := errgroup.WithContext(ctx)
	if s.Concurrency > 0 {
		g.SetLimit(s.Concurrency)
	}
	for i, src := range s.Sources {
		g.Go(func() error {
			res, err := s.syncOne(gctx, src)
			if err != nil {
				return fmt.Errorf("sync bucket %q: %w", src.Name, err)
			}
			logger.Info("bucket synced", "bucket", src.Name, "action", res.Action.String(), "commit", res.Commit)
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results, nil
}

func (s *Syncer) syncOne(ctx context.Context, src Source) (SyncResult, error) {
	dest := filepath.Join(s.Dir, src.Name)
	client := s.gitFor(dest)

	isRepo, err := client.IsGitRepo(ctx)
	if err != nil {
		return SyncResult{Name: src.Name}, err
	}
	if isRepo {
		return s.pull(ctx, src, client)
	}
	return s.clone(ctx, src, dest)
}

// clone checks the bucket out into a hidden sibling of dest and renames it
// into place only once it is trusted, so Load never sees a rejected tree.
func (s *Syncer) clone(ctx context.Context, src Source, dest string) (SyncResult, error) {
	res := SyncResult{Name: src.Name, Action: SyncCloned}

	tmp, err := os.MkdirTemp(s.Dir, "."+src.Name+".clone-")
	if err != nil {
		return res, fmt.Errorf("create clone directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	client := s.gitFor(tmp)
	if err := client.Clone(ctx, src.URL); err != nil {
		return res, err
	}
	if err := s.inspect(ctx, client, &res); err != nil {
		return res, err
	}
	if err := os.Rename(tmp, dest); err != nil {
		return res, fmt.Errorf("move clone into place: %w", err)
	}
	return res, nil
}

// pull fast-forwards an existing bucket. When the new HEAD is not trusted
// the worktree is reset to the commit it had before.
func (s *Syncer) pull(ctx context.Context, src Source, client git.Git) (SyncResult, error) {
	res := SyncResult{Name: src.Name, Action: SyncUnchanged}

	previous, err := client.GetHeadCommit(ctx)
	if err != nil {
		return res, err
	}
	moved, err := client.Pull(ctx)
	if err != nil {
		return res, err
	}
	if moved {
		res.Action = SyncUpdated
	}

	if err := s.inspect(ctx, client, &res); err != nil {
		if moved {
			if resetErr := client.Reset(ctx, previous); resetErr != nil {
				return res, fmt.Errorf("%w (restoring %s: %v)", err, previous, resetErr)
			}
		}
		return res, err
	}
	return res, nil
}

// inspect records HEAD and, with a keyring configured, its signer.
func (s *Syncer) inspect(ctx context.Context, client git.Git, res *SyncResult) error {
	commit, err := client.GetHeadCommit(ctx)
	if err != nil {
		return err
	}
	res.Commit = commit
	if s.Keyring == "" {
		return nil
	}
	signer, err := client.VerifyHead(ctx, s.Keyring)
	if err != nil {
		return err
	}
	res.Signer = signer
	return nil
}
