package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/recera/stylejsx/pkg/styling/server"
)

const lockTimeout = 5 * time.Second

func newFlushCommand() *cobra.Command {
	var project projectOptions
	var output string

	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Render the styles of a manifest as <style> markup",
		Long: `Mounts every instance of the manifest into a server-side registry and
writes the flushed <style id="__jsx-..."> elements, ready to be placed in
the <head> of a server response.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlush(cmd.Context(), &project, output)
		},
	}

	project.AddFlags(cmd.Flags())
	cmd.Flags().StringVarP(&output, "output", "o", "", "write markup to this file instead of stdout")

	return cmd
}

func runFlush(ctx context.Context, project *projectOptions, output string) error {
	cfg, err := project.config()
	if err != nil {
		return err
	}
	m, err := project.loadManifest(cfg)
	if err != nil {
		return err
	}

	r, err := newRegistry(cfg, nil, project.logger())
	if err != nil {
		return err
	}
	mounted, err := m.Mount(r)
	if err != nil {
		return err
	}

	markup, err := server.FlushToHTML(r)
	if err != nil {
		return err
	}

	if output == "" {
		_, err := fmt.Fprintln(os.Stdout, markup)
		return err
	}

	if err := writeLocked(ctx, output, []byte(markup+"\n")); err != nil {
		return err
	}
	log.Printf("✅ Wrote %d instances to %s\n", len(mounted), output)
	return nil
}

// writeLocked replaces path atomically while holding path.lock, so
// concurrent flushes into the same file never interleave.
func writeLocked(ctx context.Context, path string, data []byte) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("failed to lock %s: timed out", path)
	}
	defer lock.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
