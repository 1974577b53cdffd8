package download

import (
	"crypto/md5"  //nolint:gosec // Scoop manifests still publish md5 digests
	"crypto/sha1" //nolint:gosec // Scoop manifests still publish sha1 digests
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/ZebulonRouseFrantzich/scoopie/internal/manifest"
)

// Algorithm is a digest algorithm accepted in manifest hashes.
type Algorithm int

const (
	SHA256 Algorithm = iota
	SHA1
	SHA512
	MD5
)

func (a Algorithm) String() string {
	switch a {
	case SHA256:
		return "sha256"
	case SHA1:
		return "sha1"
	case SHA512:
		return "sha512"
	case MD5:
		return "md5"
	default:
		return "unknown"
	}
}

func (a Algorithm) new() hash.Hash {
	switch a {
	case SHA1:
		return sha1.New() //nolint:gosec
	case SHA512:
		return sha512.New()
	case MD5:
		return md5.New() //nolint:gosec
	default:
		return sha256.New()
	}
}

func (a Algorithm) hexLen() int {
	return a.new().Size() * 2
}

var algorithmPrefixes = map[string]Algorithm{
	"sha256": SHA256,
	"sha1":   SHA1,
	"sha512": SHA512,
	"md5":    MD5,
}

// Hash is an expected digest. Manifests write it as "<algorithm>:<hex>",
// or as bare hex for sha256.
type Hash struct {
	Algorithm Algorithm
	Digest    string // lowercase hex
}

// ParseHash parses a manifest hash string.
func ParseHash(s string) (Hash, error) {
	h := Hash{Algorithm: SHA256, Digest: strings.ToLower(strings.TrimSpace(s))}
	if prefix, digest, ok := strings.Cut(h.Digest, ":"); ok {
		alg, known := algorithmPrefixes[prefix]
		if !known {
			return Hash{}, fmt.Errorf("%w: unsupported hash algorithm %q", manifest.ErrInvalid, prefix)
		}
		h.Algorithm, h.Digest = alg, digest
	}
	if len(h.Digest) != h.Algorithm.hexLen() {
		return Hash{}, fmt.Errorf("%w: %s digest must be %d hex characters (got %d)",
			manifest.ErrInvalid, h.Algorithm, h.Algorithm.hexLen(), len(h.Digest))
	}
	if _, err := hex.DecodeString(h.Digest); err != nil {
		return Hash{}, fmt.Errorf("%w: malformed %s digest: %v", manifest.ErrInvalid, h.Algorithm, err)
	}
	return h, nil
}

func (h Hash) String() string {
	return h.Algorithm.String() + ":" + h.Digest
}

// Verify reports whether the file at path has the expected digest.
func (h Hash) Verify(path string) (bool, error) {
	sum, err := fileDigest(path, h.Algorithm)
	if err != nil {
		return false, err
	}
	return sum == h.Digest, nil
}

// fileDigest calculates the hex digest of a file.
func fileDigest(path string, alg Algorithm) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	hasher := alg.new()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
