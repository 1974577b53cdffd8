package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ZebulonRouseFrantzich/scoopie/internal/logging"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 5 * time.Minute
	// DefaultRetryInterval is the first retry delay; later delays double
	DefaultRetryInterval = time.Second
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "Scoopie/1.0"

	maxRetryInterval = 30 * time.Second
)

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: DefaultTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}

// fetcher transfers single URLs into files with retry.
type fetcher struct {
	client    *http.Client
	userAgent string
	retries   int
	interval  time.Duration
	// maxWait caps both the backoff delay and a server's Retry-After
	maxWait time.Duration
	logger  logging.Logger
}

// statusError is a non-200 HTTP response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.code)
}

// retryable reports whether a response status may succeed on retry.
func retryable(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

// fetch downloads rawURL to destPath, retrying up to f.retries times with
// exponential backoff. Client errors other than 408 and 429 are not retried.
func (f *fetcher) fetch(ctx context.Context, rawURL, destPath string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.interval
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = f.maxWait

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := f.fetchOnce(ctx, rawURL, destPath)
		var se *statusError
		switch {
		case err == nil:
			return struct{}{}, nil
		case ctx.Err() != nil:
			return struct{}{}, backoff.Permanent(ctx.Err())
		case errors.As(err, &se) && !retryable(se.code):
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(f.retries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			f.logger.Debug("retrying download", "url", rawURL, "attempt", attempt, "next", next, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("%s after %d attempts: %w", rawURL, attempt, err)
	}
	return nil
}

// fetchOnce performs a single download attempt into a temporary file in the
// destination directory and renames it into place.
func (f *fetcher) fetchOnce(ctx context.Context, rawURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	if !supportedScheme(req.URL.Scheme) {
		return backoff.Permanent(fmt.Errorf("unsupported protocol scheme %q", req.URL.Scheme))
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests {
			secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
			if limit := int(f.maxWait / time.Second); err == nil && secs > 0 && limit > 0 {
				return backoff.RetryAfter(min(secs, limit))
			}
		}
		return &statusError{code: resp.StatusCode}
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), "."+filepath.Base(destPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	cleanupNeeded := true
	defer func() {
		tmpFile.Close()
		if cleanupNeeded {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		return fmt.Errorf("copy response body: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	cleanupNeeded = false
	return nil
}
