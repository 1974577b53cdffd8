package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/scoopie/internal/bucket"
)

var errNoBuckets = errors.New("no buckets configured. Add one to the buckets table of your config file")

func newBucketCmd(out io.Writer, s *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bucket",
		Short: "list and synchronize buckets",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newBucketListCmd(out, s), newBucketSyncCmd(out, s))
	return cmd
}

func newBucketListCmd(out io.Writer, s *settings) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "list configured and synchronized buckets",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := s.load(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			reg, err := e.registry()
			if err != nil {
				return err
			}
			return writeBucketTable(out, e, reg)
		},
	}
}

func writeBucketTable(out io.Writer, e *env, reg *bucket.Registry) error {
	names := reg.Names()
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		seen[name] = true
	}
	for _, b := range e.cfg.Buckets {
		if !seen[b.Name] {
			names = append(names, b.Name)
		}
	}
	if len(names) == 0 {
		return errNoBuckets
	}
	sort.Strings(names)

	table := uitable.New()
	table.AddRow("NAME", "APPS", "SOURCE")
	for _, name := range names {
		apps := "-"
		if b, ok := reg.Bucket(name); ok {
			apps = fmt.Sprint(len(b))
		}
		source, ok := e.cfg.BucketURL(name)
		if !ok {
			source = "(local)"
		}
		table.AddRow(name, apps, source)
	}
	_, err := fmt.Fprintln(out, table)
	return err
}

func newBucketSyncCmd(out io.Writer, s *settings) *cobra.Command {
	return &cobra.Command{
		Use:     "sync",
		Aliases: []string{"update"},
		Short:   "clone or update every configured bucket",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := s.load(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()
			return syncBuckets(cmd.Context(), out, e)
		},
	}
}

// syncBuckets updates every configured bucket and prints one row per bucket.
func syncBuckets(ctx context.Context, out io.Writer, e *env) error {
	if len(e.cfg.Buckets) == 0 {
		return errNoBuckets
	}

	syncer := &bucket.Syncer{
		Dir:         e.cfg.BucketsDir(),
		Keyring:     e.cfg.Keyring,
		Concurrency: e.cfg.ConcurrentDownloads(),
		Logger:      e.logger,
	}
	for _, b := range e.cfg.Buckets {
		syncer.Sources = append(syncer.Sources, bucket.Source{Name: b.Name, URL: b.URL})
	}

	results, err := syncer.Sync(ctx)
	if err != nil {
		return err
	}

	table := uitable.New()
	table.AddRow("BUCKET", "ACTION", "COMMIT", "SIGNED BY")
	for _, r := range results {
		signer := r.Signer
		if signer == "" {
			signer = "-"
		}
		table.AddRow(r.Name, r.Action.String(), shortCommit(r.Commit), signer)
	}
	_, err = fmt.Fprintln(out, table)
	return err
}

func shortCommit(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
