package bucket

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sourcegraph/conc/iter"

	"github.com/ZebulonRouseFrantzich/scoopie/internal/logging"
	"github.com/ZebulonRouseFrantzich/scoopie/internal/manifest"
)

// manifestSubdir is where Scoop buckets keep their manifests. Flat buckets
// place them at the repository root instead.
const manifestSubdir = "bucket"

type loaded struct {
	name   string
	bucket Bucket
	err    error
}

// Load builds a registry from dir, where every subdirectory is one bucket.
// A missing dir yields an empty registry. Manifests that fail to parse are
// logged and skipped.
func Load(dir string, logger logging.Logger) (*Registry, error) {
	logger = logging.OrNop(logger)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("buckets directory missing", "dir", dir)
			return NewRegistry(nil), nil
		}
		return nil, fmt.Errorf("read buckets directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}

	results := iter.Map(names, func(name *string) loaded {
		b, err := loadBucket(filepath.Join(dir, *name), *name, logger)
		return loaded{name: *name, bucket: b, err: err}
	})

	buckets := make(map[string]Bucket, len(results))
	for _, r := range results {
		if r.err != nil {
			return nil, fmt.Errorf("load bucket %q: %w", r.name, r.err)
		}
		buckets[r.name] = r.bucket
	}

	reg := NewRegistry(buckets)
	logger.Debug("registry loaded", "buckets", len(buckets), "apps", reg.Len())
	return reg, nil
}

func loadBucket(root, name string, logger logging.Logger) (Bucket, error) {
	dir := root
	if info, err := os.Stat(filepath.Join(root, manifestSubdir)); err == nil && info.IsDir() {
		dir = filepath.Join(root, manifestSubdir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	b := make(Bucket)
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		m, err := manifest.ParseFile(path)
		if err != nil {
			logger.Warn("skipping manifest", "bucket", name, "path", path, "error", err)
			continue
		}
		app := strings.ToLower(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
		b[app] = m
	}
	return b, nil
}
