package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
)

func newCacheCmd(out io.Writer, s *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "inspect the download cache",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newCacheListCmd(out, s))
	return cmd
}

func newCacheListCmd(out io.Writer, s *settings) *cobra.Command {
	return &cobra.Command{
		Use:     "list [app]",
		Aliases: []string{"ls"},
		Short:   "list cached files, optionally only those of one app",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := s.load(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			var app string
			if len(args) == 1 {
				app = strings.ToLower(strings.TrimSpace(args[0]))
			}
			return writeCacheTable(out, e.cfg.CacheDir(), app)
		},
	}
}

type cachedFile struct {
	name string
	size int64
}

// listCache returns the finished downloads in dir. Temporary files from
// transfers in progress are skipped.
func listCache(dir, app string) ([]cachedFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache directory: %w", err)
	}

	var files []cachedFile
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") {
			continue
		}
		if app != "" && !strings.HasPrefix(name, app+"_") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, cachedFile{name: name, size: info.Size()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}

func writeCacheTable(out io.Writer, dir, app string) error {
	files, err := listCache(dir, app)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		_, err := fmt.Fprintln(out, "cache is empty")
		return err
	}

	var total int64
	table := uitable.New()
	table.AddRow("FILE", "SIZE")
	for _, f := range files {
		table.AddRow(f.name, formatSize(f.size))
		total += f.size
	}
	table.AddRow("", "")
	table.AddRow(fmt.Sprintf("%d files", len(files)), formatSize(total))
	_, err = fmt.Fprintln(out, table)
	return err
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
