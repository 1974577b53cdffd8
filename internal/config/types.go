package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Config is the evaluated scoopie configuration.
type Config struct {
	// where downloaded artifacts are stored
	cacheDir string

	// where bucket repositories are cloned; each subdirectory is one bucket
	bucketsDir string

	LogLevel string

	Download DownloadOptions

	// Bucket git remotes, sorted by name
	Buckets []Bucket

	// Armored OpenPGP keyring bucket HEAD commits must be signed by
	Keyring string
}

// DownloadOptions tunes the download engine.
type DownloadOptions struct {
	MaxRetries          int
	ConcurrentDownloads int
	Verify              bool
}

// Bucket is one configured bucket remote.
type Bucket struct {
	Name string
	URL  string
}

// Default returns a configuration with every default applied and no paths
// set. Load fills the paths in.
func Default() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Download: DownloadOptions{
			MaxRetries:          DefaultMaxRetries,
			ConcurrentDownloads: DefaultConcurrentDownloads,
			Verify:              true,
		},
	}
}

// CacheDir returns the artifact cache directory.
func (c *Config) CacheDir() string { return c.cacheDir }

// BucketsDir returns the buckets directory.
func (c *Config) BucketsDir() string { return c.bucketsDir }

// MaxRetries returns the per-artifact retry budget.
func (c *Config) MaxRetries() int { return c.Download.MaxRetries }

// ConcurrentDownloads returns the download batch width, at least one.
func (c *Config) ConcurrentDownloads() int {
	if c.Download.ConcurrentDownloads < 1 {
		return 1
	}
	return c.Download.ConcurrentDownloads
}

// BucketURL returns the configured remote for name.
func (c *Config) BucketURL(name string) (string, bool) {
	for _, b := range c.Buckets {
		if b.Name == name {
			return b.URL, true
		}
	}
	return "", false
}

func (c *Config) sortBuckets() {
	sort.Slice(c.Buckets, func(i, j int) bool { return c.Buckets[i].Name < c.Buckets[j].Name })
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true, "none": true,
}

// bucketNamePattern matches names usable as a directory under BucketsDir.
var bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// Validate performs basic validation on a Config.
func (c *Config) Validate() error {
	if c.Download.MaxRetries < 0 || c.Download.MaxRetries > MaxRetriesLimit {
		return &ValidationError{
			Field:   "download.max_retries",
			Message: fmt.Sprintf("must be between 0 and %d (got %d)", MaxRetriesLimit, c.Download.MaxRetries),
		}
	}
	if c.Download.ConcurrentDownloads < 1 || c.Download.ConcurrentDownloads > MaxConcurrentLimit {
		return &ValidationError{
			Field:   "download.concurrent_downloads",
			Message: fmt.Sprintf("must be between 1 and %d (got %d)", MaxConcurrentLimit, c.Download.ConcurrentDownloads),
		}
	}
	if !validLogLevels[c.LogLevel] {
		return &ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("unknown level %q (expected debug, info, warn, error or none)", c.LogLevel),
		}
	}

	if len(c.Buckets) > MaxBucketCount {
		return &ValidationError{
			Field:   "buckets",
			Message: fmt.Sprintf("too many buckets (%d), maximum is %d", len(c.Buckets), MaxBucketCount),
		}
	}
	for _, b := range c.Buckets {
		if !bucketNamePattern.MatchString(b.Name) {
			return &ValidationError{
				Field:   "buckets." + b.Name,
				Message: "bucket name must be lowercase letters, digits, '.', '_' or '-'",
			}
		}
		if err := validateGitRemote(b.URL); err != nil {
			return &ValidationError{Field: "buckets." + b.Name, Message: err.Error()}
		}
	}
	return nil
}

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "config validation failed for " + e.Field + ": " + e.Message
	}
	return "config validation failed: " + e.Message
}

// validateGitRemote accepts http(s), ssh, git and file URLs, scp-style SSH
// remotes (git@host:repo) and absolute local paths.
func validateGitRemote(remote string) error {
	if remote == "" {
		return fmt.Errorf("git remote cannot be empty")
	}

	if strings.HasPrefix(remote, "git@") {
		parts := strings.Split(remote, ":")
		if len(parts) != 2 || parts[1] == "" {
			return fmt.Errorf("invalid SSH git URL format")
		}
		return nil
	}

	if filepath.IsAbs(remote) {
		return nil
	}

	u, err := url.Parse(remote)
	if err != nil {
		return fmt.Errorf("invalid git URL: %w", err)
	}
	switch u.Scheme {
	case "https", "http", "ssh", "git", "file":
		return nil
	default:
		return fmt.Errorf("git URL must use https, http, ssh, git or file scheme (got: %q)", u.Scheme)
	}
}
