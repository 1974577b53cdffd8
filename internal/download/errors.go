package download

import "errors"

var (
	// ErrNoAppFound is returned when no bucket publishes the requested app.
	ErrNoAppFound = errors.New("no app found")

	// ErrNoAppFoundInBucket is returned when a bucket/app reference names a
	// bucket that does not publish the app.
	ErrNoAppFoundInBucket = errors.New("no app found in bucket")

	// ErrCacheDirUnavailable is returned when the cache directory cannot be
	// created or is not a directory.
	ErrCacheDirUnavailable = errors.New("cache directory unavailable")

	// ErrTransferFailed is returned when an artifact could not be fetched
	// within the retry budget.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrVerificationMismatch is returned by Report.Err when a downloaded
	// artifact does not match its expected hash.
	ErrVerificationMismatch = errors.New("hash verification mismatch")
)
