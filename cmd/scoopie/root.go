package main

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/scoopie/internal/bucket"
	"github.com/ZebulonRouseFrantzich/scoopie/internal/config"
	"github.com/ZebulonRouseFrantzich/scoopie/internal/logging"
	"github.com/ZebulonRouseFrantzich/scoopie/internal/platform"
)

const rootDesc = `scoopie resolves app manifests published in bucket repositories,
then downloads and verifies the files they describe into a local cache.

Configuration is read from $SCOOPIE_HOME/config.lua (default
~/.config/scoopie/config.lua).`

// settings holds the global flags.
type settings struct {
	configPath string
	logLevel   string

	// detector is replaced in tests
	detector platform.Detector
}

// env is everything a command needs once configuration is loaded.
type env struct {
	cfg      *config.Config
	logger   logging.Logger
	platform *platform.Info
}

func (s *settings) load(ctx context.Context) (*env, error) {
	detector := s.detector
	if detector == nil {
		detector = platform.NewDetector()
	}
	// An undetectable architecture falls back to the manifest's top-level
	// urls rather than failing every command.
	info, detectErr := detector.Detect(ctx)
	if detectErr != nil {
		info = &platform.Info{OS: runtime.GOOS, ArchRaw: runtime.GOARCH}
	}

	cfg, err := config.Load(ctx, s.configPath, platform.Static(*info))
	if err != nil {
		return nil, fmt.Errorf("load config: %s", config.FormatError(err, s.logLevel == logging.LevelDebug))
	}

	level := cfg.LogLevel
	if s.logLevel != "" {
		level = s.logLevel
	}
	logger, err := logging.New(level)
	if err != nil {
		return nil, err
	}
	if detectErr != nil {
		logger.Warn("platform detection failed", "error", detectErr)
	}
	return &env{cfg: cfg, logger: logger, platform: info}, nil
}

func (e *env) registry() (*bucket.Registry, error) {
	return bucket.Load(e.cfg.BucketsDir(), e.logger)
}

func (e *env) close() {
	logging.Sync(e.logger)
}

// newRootCmd builds the command tree. When s is nil, default settings are
// used.
func newRootCmd(out io.Writer, s *settings) *cobra.Command {
	if s == nil {
		s = &settings{}
	}
	cmd := &cobra.Command{
		Use:           "scoopie",
		Short:         "A bucket-based package downloader",
		Long:          rootDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)

	flags := cmd.PersistentFlags()
	flags.StringVar(&s.configPath, "config", "", "path to the config file")
	flags.StringVar(&s.logLevel, "log-level", "", "log level (debug, info, warn, error, none)")

	cmd.AddCommand(
		newQueryCmd(out, s),
		newInstallCmd(out, s),
		newListCmd(out, s),
		newBucketCmd(out, s),
		newCacheCmd(out, s),
		newVersionCmd(out),
	)
	return cmd
}
