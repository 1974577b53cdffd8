package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/scoopie/internal/download"
	"github.com/ZebulonRouseFrantzich/scoopie/internal/search"
)

const installDesc = `
Download an app's files into the cache and verify them against the hashes
published in its manifest.

The app may be qualified with a bucket name to skip the other buckets:

	$ scoopie install extras/vscode

Without a bucket, the first bucket in alphabetical order that publishes the
app is used.
`

var errUpdateAllUnsupported = errors.New("updating all installed apps (-a) is not supported: scoopie does not track installed apps")

type installCmd struct {
	settings *settings
	out      io.Writer
	sync     bool
	all      bool
	noVerify bool
	app      string
}

func newInstallCmd(out io.Writer, s *settings) *cobra.Command {
	i := &installCmd{settings: s, out: out}
	cmd := &cobra.Command{
		Use:   "install [flags] [bucket/]<app>",
		Short: "download and verify an app",
		Long:  installDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				i.app = args[0]
			}
			return i.run(cmd)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&i.sync, "sync", "S", false, "synchronize buckets before installing")
	f.BoolVarP(&i.all, "all", "a", false, "update all installed apps (not supported)")
	f.BoolVar(&i.noVerify, "no-verify", false, "skip hash verification")
	return cmd
}

func (i *installCmd) run(cmd *cobra.Command) error {
	if i.all {
		return errUpdateAllUnsupported
	}
	if i.app == "" && !i.sync {
		return errors.New("an app name is required")
	}

	ctx := cmd.Context()
	e, err := i.settings.load(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	if i.sync {
		if err := syncBuckets(ctx, i.out, e); err != nil {
			return err
		}
		if i.app == "" {
			return nil
		}
	}

	reg, err := e.registry()
	if err != nil {
		return err
	}

	d, err := download.New(search.NewIndex(reg), i.app, download.Options{
		CacheDir:    e.cfg.CacheDir(),
		MaxRetries:  e.cfg.MaxRetries(),
		Concurrency: e.cfg.ConcurrentDownloads(),
		Arch:        e.platform.Arch,
		Logger:      e.logger,
	})
	if err != nil {
		return err
	}
	entry := d.Entry()
	fmt.Fprintf(i.out, "Found: %s\n", entry)

	verify := e.cfg.Download.Verify && !i.noVerify
	report, err := d.Download(ctx, verify)
	if err != nil {
		return err
	}

	if report.Status == download.StatusCached {
		fmt.Fprintf(i.out, "%q already in cache\n", entry.String())
	} else {
		fmt.Fprintf(i.out, "Downloaded %d of %d file(s) to %s\n", report.Fetched, len(entry.Artifacts), e.cfg.CacheDir())
	}
	if err := report.Err(); err != nil {
		return err
	}
	if report.Verification == download.VerificationPassed {
		fmt.Fprintln(i.out, "Verified")
	}
	return nil
}
