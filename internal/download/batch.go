package download

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// runBatch fetches every artifact with at most d.opts.Concurrency transfers
// in flight and blocks until all of them have finished. One failure does not
// cancel the others, so files that did arrive stay in the cache. errs[i] is
// the outcome for artifacts[i].
func (d *Downloader) runBatch(ctx context.Context, batchID string, artifacts []Artifact) []error {
	errs := make([]error, len(artifacts))

	var g errgroup.Group
	g.SetLimit(d.opts.Concurrency)
	for i, a := range artifacts {
		g.Go(func() error {
			dest := filepath.Join(d.opts.CacheDir, a.FileName)
			if err := d.fetcher.fetch(ctx, a.URL.String(), dest); err != nil {
				errs[i] = fmt.Errorf("%w: %s: %w", ErrTransferFailed, a.FileName, err)
				return nil
			}
			d.logger.Debug("artifact downloaded", "batch", batchID, "file", a.FileName)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
