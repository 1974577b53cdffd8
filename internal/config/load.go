package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/scoopie/internal/platform"
)

// Home returns the scoopie home directory: $SCOOPIE_HOME, or
// ~/.config/scoopie.
func Home() (string, error) {
	if dir := os.Getenv(EnvHome); dir != "" {
		return expandHome(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "scoopie"), nil
}

// DefaultPath returns the config file location inside Home.
func DefaultPath() (string, error) {
	home, err := Home()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// Load evaluates the config file at path (DefaultPath when empty). A
// missing file is not an error and yields the defaults. Relative and ~
// paths are resolved, unset directories default to Home()/cache and
// Home()/buckets, and environment overrides are applied last.
func Load(ctx context.Context, path string, detector platform.Detector) (*Config, error) {
	home, err := Home()
	if err != nil {
		return nil, err
	}
	explicit := path != ""
	if !explicit {
		path = filepath.Join(home, configFileName)
	}

	cfg, err := NewParser(detector).ParseFile(ctx, path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		cfg = Default()
	default:
		return nil, err
	}

	if v := os.Getenv(EnvCacheDir); v != "" {
		cfg.cacheDir = v
	}
	if v := os.Getenv(EnvBucketsDir); v != "" {
		cfg.bucketsDir = v
	}
	if cfg.cacheDir == "" {
		cfg.cacheDir = filepath.Join(home, "cache")
	}
	if cfg.bucketsDir == "" {
		cfg.bucketsDir = filepath.Join(home, "buckets")
	}

	for _, p := range []*string{&cfg.cacheDir, &cfg.bucketsDir, &cfg.Keyring} {
		if *p == "" {
			continue
		}
		if *p, err = resolvePath(*p, home); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func resolvePath(p, base string) (string, error) {
	p, err := expandHome(p)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	return filepath.Clean(p), nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
