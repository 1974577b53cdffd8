// Package download turns an app reference into verified files in the local
// cache.
//
// A Downloader moves through fixed stages: resolve the reference to a
// manifest, derive the plan of artifacts, drop artifacts already cached,
// fetch the rest concurrently, and optionally verify every planned artifact
// against its expected hash.
//
// Two execution regimes are used. Cache filtering and hashing are CPU or
// disk bound and run on a bounded data-parallel pool (conc/iter). Network
// transfers run as one errgroup batch limited to Options.Concurrency; the
// caller blocks until the batch completes.
//
// The cache directory is not locked. Two processes downloading the same app
// may both fetch an artifact; the rename into place makes the last one win.
package download

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/iter"
	"go.uber.org/multierr"

	"github.com/ZebulonRouseFrantzich/scoopie/internal/logging"
	"github.com/ZebulonRouseFrantzich/scoopie/internal/manifest"
	"github.com/ZebulonRouseFrantzich/scoopie/internal/search"
)

// Querier is the query capability resolution needs.
type Querier interface {
	Query(kind search.Kind, term string) (search.Results, error)
}

// Options configures a Downloader.
type Options struct {
	CacheDir    string
	MaxRetries  int
	Concurrency int

	// Arch selects a manifest architecture override ("64bit", "32bit",
	// "arm64"). Empty uses the top-level url and hash.
	Arch string

	// RetryInterval is the first retry delay. Zero means DefaultRetryInterval.
	RetryInterval time.Duration
	UserAgent     string
	HTTPClient    *http.Client
	Logger        logging.Logger

	// PerArtifact fills Report.Artifacts.
	PerArtifact bool
}

// Status says whether anything was fetched.
type Status int

const (
	StatusDownloaded Status = iota
	StatusCached
)

func (s Status) String() string {
	switch s {
	case StatusDownloaded:
		return "downloaded"
	case StatusCached:
		return "cached"
	default:
		return "unknown"
	}
}

// Verification is the aggregate integrity outcome.
type Verification int

const (
	VerificationSkipped Verification = iota
	VerificationPassed
	VerificationFailed
)

func (v Verification) String() string {
	switch v {
	case VerificationSkipped:
		return "skipped"
	case VerificationPassed:
		return "passed"
	case VerificationFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ArtifactResult is the outcome for one planned artifact.
type ArtifactResult struct {
	Artifact     Artifact
	Path         string
	Cached       bool
	Verification Verification
	Err          error
}

// Report summarizes one Download call.
type Report struct {
	BatchID      string
	Entry        *Entry
	Status       Status
	Verification Verification
	Fetched      int

	// Artifacts is filled only with Options.PerArtifact, in plan order.
	Artifacts []ArtifactResult

	mismatched []string
}

// Err returns ErrVerificationMismatch when verification failed.
func (r *Report) Err() error {
	if r.Verification != VerificationFailed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrVerificationMismatch, strings.Join(r.mismatched, ", "))
}

// Downloader fetches the artifacts of one resolved app.
type Downloader struct {
	entry   *Entry
	opts    Options
	fetcher *fetcher
	logger  logging.Logger
}

// Resolve finds the manifest for ref. ref is trimmed and lowercased; a
// "bucket/app" reference only searches that bucket. Otherwise the first
// bucket in lexicographic order publishing the app wins.
func Resolve(q Querier, ref string) (string, *manifest.Manifest, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))

	if bucketName, app, ok := strings.Cut(ref, "/"); ok {
		if app == "" {
			return "", nil, fmt.Errorf("%w: empty app name in %q", ErrNoAppFoundInBucket, ref)
		}
		res, err := q.Query(search.KindApp, app)
		if err != nil {
			return "", nil, fmt.Errorf("query %q: %w", app, err)
		}
		for _, m := range res[bucketName] {
			if m.App == app {
				return app, m.Manifest, nil
			}
		}
		return "", nil, fmt.Errorf("%w: %s in %s", ErrNoAppFoundInBucket, app, bucketName)
	}

	if ref == "" {
		return "", nil, fmt.Errorf("%w: empty app name", ErrNoAppFound)
	}
	res, err := q.Query(search.KindApp, ref)
	if err != nil {
		return "", nil, fmt.Errorf("query %q: %w", ref, err)
	}
	for _, bucketName := range res.BucketNames() {
		for _, m := range res[bucketName] {
			if m.App == ref {
				return ref, m.Manifest, nil
			}
		}
	}
	return "", nil, fmt.Errorf("%w: %s", ErrNoAppFound, ref)
}

// New resolves ref and derives its download plan. No I/O beyond the query
// happens until Download.
func New(q Querier, ref string, opts Options) (*Downloader, error) {
	app, m, err := Resolve(q, ref)
	if err != nil {
		return nil, err
	}
	entry, err := Plan(app, m, opts.Arch)
	if err != nil {
		return nil, err
	}
	return newDownloader(entry, opts), nil
}

func newDownloader(entry *Entry, opts Options) *Downloader {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	client := opts.HTTPClient
	if client == nil {
		client = newHTTPClient()
	}
	logger := logging.OrNop(opts.Logger)

	return &Downloader{
		entry: entry,
		opts:  opts,
		fetcher: &fetcher{
			client:    client,
			userAgent: opts.UserAgent,
			retries:   opts.MaxRetries,
			interval:  opts.RetryInterval,
			maxWait:   maxRetryInterval,
			logger:    logger,
		},
		logger: logger,
	}
}

// Entry returns the resolved plan.
func (d *Downloader) Entry() *Entry {
	return d.entry
}

// Download fetches every planned artifact that is not already cached and,
// when verify is set, checks every planned artifact against its hash.
//
// A transfer failure returns an error wrapping ErrTransferFailed together
// with a partial Report; artifacts fetched before the failure remain in the
// cache. A hash mismatch is not an error of Download itself: it is reported
// through Report.Verification and Report.Err.
func (d *Downloader) Download(ctx context.Context, verify bool) (*Report, error) {
	batchID := uuid.NewString()
	report := &Report{BatchID: batchID, Entry: d.entry, Verification: VerificationSkipped}

	if err := ensureDir(d.opts.CacheDir); err != nil {
		return nil, err
	}

	results := make([]ArtifactResult, len(d.entry.Artifacts))
	cached := iter.Map(d.entry.Artifacts, func(a *Artifact) bool {
		return isCached(filepath.Join(d.opts.CacheDir, a.FileName))
	})

	var pending []Artifact
	var pendingIdx []int
	for i, a := range d.entry.Artifacts {
		results[i] = ArtifactResult{
			Artifact:     a,
			Path:         filepath.Join(d.opts.CacheDir, a.FileName),
			Cached:       cached[i],
			Verification: VerificationSkipped,
		}
		if !cached[i] {
			pending = append(pending, a)
			pendingIdx = append(pendingIdx, i)
		}
	}

	d.logger.Info("download started",
		"batch", batchID, "app", d.entry.App, "version", d.entry.Version,
		"artifacts", len(d.entry.Artifacts), "pending", len(pending))

	if len(pending) == 0 {
		report.Status = StatusCached
	} else {
		report.Status = StatusDownloaded
		errs := d.runBatch(ctx, batchID, pending)
		for j, err := range errs {
			results[pendingIdx[j]].Err = err
			if err == nil {
				report.Fetched++
			}
		}
		if err := multierr.Combine(errs...); err != nil {
			d.logger.Error("download failed", "batch", batchID, "app", d.entry.App, "error", err)
			if d.opts.PerArtifact {
				report.Artifacts = results
			}
			return report, err
		}
	}

	if verify {
		d.verify(batchID, report, results)
	}
	if d.opts.PerArtifact {
		report.Artifacts = results
	}

	d.logger.Info("download finished",
		"batch", batchID, "app", d.entry.App, "status", report.Status.String(),
		"fetched", report.Fetched, "verification", report.Verification.String())
	return report, nil
}

// verify hashes every planned artifact, cached or fetched. Artifacts without
// an expected hash pass.
func (d *Downloader) verify(batchID string, report *Report, results []ArtifactResult) {
	outcomes := iter.Map(results, func(r *ArtifactResult) error {
		if r.Artifact.Hash == nil {
			return nil
		}
		ok, err := r.Artifact.Hash.Verify(r.Path)
		if err != nil {
			return err
		}
		if !ok {
			return ErrVerificationMismatch
		}
		return nil
	})

	report.Verification = VerificationPassed
	for i, err := range outcomes {
		if err == nil {
			results[i].Verification = VerificationPassed
			continue
		}
		results[i].Verification = VerificationFailed
		results[i].Err = err
		report.Verification = VerificationFailed
		report.mismatched = append(report.mismatched, results[i].Artifact.FileName)
		d.logger.Warn("verification failed", "batch", batchID, "file", results[i].Artifact.FileName, "error", err)
	}
}

func ensureDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("%w: no cache directory configured", ErrCacheDirUnavailable)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheDirUnavailable, err)
	}
	return nil
}

// isCached reports whether a regular file exists at path. Contents are not
// checked.
func isCached(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
