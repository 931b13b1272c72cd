package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"
	"golang.org/x/term"

	"github.com/recera/stylejsx/cmd/stylejsx/internal/config"
	"github.com/recera/stylejsx/cmd/stylejsx/internal/ui"
	"github.com/recera/stylejsx/pkg/styling/registry"
	"github.com/recera/stylejsx/pkg/styling/surface"
)

type inspectOptions struct {
	project     projectOptions
	withMounts  bool
	tree        bool
	interactive bool
	render      bool
}

func newInspectCommand() *cobra.Command {
	var opts inspectOptions

	cmd := &cobra.Command{
		Use:   "inspect <page.html>",
		Short: "Show the styles a pre-rendered page carries",
		Long: `Hydrates a registry from the <style id="__jsx-..."> elements of a page.
With --mount the manifest instances are mounted on top, which shows which
styles are adopted from the page and which are inserted anew.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.OutOrStdout(), args[0], &opts)
		},
	}

	opts.project.AddFlags(cmd.Flags())
	cmd.Flags().BoolVar(&opts.withMounts, "mount", false, "mount the manifest instances after hydration")
	cmd.Flags().BoolVar(&opts.tree, "tree", false, "print styles as a tree")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "browse styles interactively")
	cmd.Flags().BoolVar(&opts.render, "render", false, "print the document after hydration and mounting")

	return cmd
}

func runInspect(w io.Writer, page string, opts *inspectOptions) error {
	cfg, err := opts.project.config()
	if err != nil {
		return err
	}

	f, err := os.Open(page)
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	defer f.Close()

	doc, err := surface.ParseHTML(f)
	if err != nil {
		return err
	}

	r, err := newRegistry(cfg, doc, opts.project.logger())
	if err != nil {
		return err
	}
	r.Hydrate()

	if opts.withMounts {
		m, err := opts.project.loadManifest(cfg)
		if err != nil {
			return err
		}
		if _, err := m.Mount(r); err != nil {
			return err
		}
	}

	styles := collectStyles(r)
	title := filepath.Base(page)

	switch {
	case opts.render:
		return doc.Render(w)
	case opts.interactive:
		highlight := func(css string) string { return ui.Highlight(prettyCSS(css), cfg.Inspect.Theme) }
		program := tea.NewProgram(ui.NewModel(title, styles, highlight), tea.WithAltScreen())
		_, err := program.Run()
		return err
	case opts.tree:
		_, err := fmt.Fprint(w, styleTree(title, styles, r))
		return err
	default:
		return listStyles(w, styles, cfg)
	}
}

func collectStyles(r *registry.Registry) []ui.Style {
	entries := r.CSSRules()
	styles := make([]ui.Style, len(entries))
	for i, e := range entries {
		styles[i] = ui.Style{Entry: e, Count: r.Count(e.ID)}
	}
	return styles
}

func styleTree(title string, styles []ui.Style, r *registry.Registry) string {
	tree := treeprint.NewWithRoot(title)

	hydrated := tree.AddBranch("hydrated")
	inserted := tree.AddBranch("inserted")
	for _, s := range styles {
		parent := inserted
		if s.Hydrated {
			parent = hydrated
		}
		branch := parent.AddMetaBranch(fmt.Sprintf("×%d", s.Count), s.ID)
		for _, rule := range strings.Split(s.CSS, "\n") {
			branch.AddNode(rule)
		}
	}

	sheet := r.Sheet()
	tree.AddMetaNode(fmt.Sprintf("%d containers", sheet.Containers()),
		fmt.Sprintf("sheet: %d indices, speedy=%v", sheet.Len(), sheet.Speedy()))
	return tree.String()
}

func listStyles(w io.Writer, styles []ui.Style, cfg *config.Config) error {
	color := false
	if f, ok := w.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}

	for _, s := range styles {
		origin := "inserted"
		if s.Hydrated {
			origin = "hydrated"
		}
		fmt.Fprintf(w, "%s  instances=%d  %s\n", s.ID, s.Count, origin)

		css := prettyCSS(s.CSS)
		if color {
			css = ui.Highlight(css, cfg.Inspect.Theme)
		}
		if _, err := fmt.Fprintln(w, indent(css, "    ")); err != nil {
			return err
		}
	}
	return nil
}

// prettyCSS breaks compressed css after every block for display.
func prettyCSS(css string) string {
	return strings.TrimSpace(strings.ReplaceAll(css, "}", "}\n"))
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}
