package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/recera/stylejsx/cmd/stylejsx/internal/config"
	"github.com/recera/stylejsx/cmd/stylejsx/internal/manifest"
	"github.com/recera/stylejsx/pkg/styling/registry"
	"github.com/recera/stylejsx/pkg/styling/surface"
)

// projectOptions are the flags shared by every command that reads a
// project: where stylejsx.json lives and which manifest to use.
type projectOptions struct {
	dir      string
	manifest string
	verbose  bool
}

func (o *projectOptions) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&o.dir, "cwd", ".", "project directory containing stylejsx.json")
	flagSet.StringVarP(&o.manifest, "manifest", "m", "", "style manifest (defaults to the manifest in stylejsx.json)")
	flagSet.BoolVarP(&o.verbose, "verbose", "v", false, "log registry activity")
}

func (o *projectOptions) config() (*config.Config, error) {
	cfg, err := config.Load(o.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", config.FileName, err)
	}
	return cfg, nil
}

func (o *projectOptions) manifestPath(cfg *config.Config) string {
	if o.manifest != "" {
		return o.manifest
	}
	return filepath.Join(o.dir, cfg.Manifest)
}

func (o *projectOptions) loadManifest(cfg *config.Config) (*manifest.Manifest, error) {
	return manifest.Load(o.manifestPath(cfg))
}

// logger writes text records on a terminal and JSON records otherwise.
func (o *projectOptions) logger() *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	options := &slog.HandlerOptions{Level: level}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return slog.New(slog.NewTextHandler(os.Stderr, options))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, options))
}

func newRegistry(cfg *config.Config, doc surface.Document, logger *slog.Logger) (*registry.Registry, error) {
	opts := cfg.RegistryOptions()
	opts.Document = doc
	opts.Logger = logger
	return registry.New(opts)
}
