// Package testutil provides utilities for testing scoopie in isolation.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// SetupTestEnv creates isolated scoopie directories for the test and points
// SCOOPIE_HOME, SCOOPIE_CACHE_DIR and SCOOPIE_BUCKETS_DIR at them, so tests
// never read the user's configuration or touch the real cache.
//
// Cleanup is handled by t.TempDir.
func SetupTestEnv(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()

	t.Setenv("SCOOPIE_HOME", filepath.Join(tmpDir, "home"))
	t.Setenv("SCOOPIE_CACHE_DIR", filepath.Join(tmpDir, "cache"))
	t.Setenv("SCOOPIE_BUCKETS_DIR", filepath.Join(tmpDir, "buckets"))

	for _, dir := range []string{"home", "cache", "buckets"} {
		if err := os.MkdirAll(filepath.Join(tmpDir, dir), 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}
	return tmpDir
}

// WriteManifest writes a manifest into <bucketsDir>/<bucket>/bucket/<app>.json.
func WriteManifest(t *testing.T, bucketsDir, bucket, app, doc string) string {
	t.Helper()

	dir := filepath.Join(bucketsDir, bucket, "bucket")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatalf("failed to create bucket directory: %v", err)
	}
	path := filepath.Join(dir, app+".json")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return path
}

// Manifest returns a minimal valid manifest document. Pass url and hash as
// empty strings to omit them.
func Manifest(version, description, url, hash string) string {
	doc := fmt.Sprintf(`{"version":%q,"description":%q,"homepage":"https://example.com","license":"MIT"`,
		version, description)
	if url != "" {
		doc += fmt.Sprintf(`,"url":%q`, url)
	}
	if hash != "" {
		doc += fmt.Sprintf(`,"hash":%q`, hash)
	}
	return doc + "}"
}
