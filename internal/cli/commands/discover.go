package commands

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/cadac/internal/catalog"
	"github.com/leapstack-labs/cadac/internal/config"
)

// NewDiscoverCommand creates the discover command.
func NewDiscoverCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover models and show their metadata",
		Long: `Scan the models directory, extract metadata from every model and
resolve their dependencies.

Files that fail to parse are listed separately and do not stop discovery.`,
		Example: `  # List models
  cadac discover

  # Fail when any model does not parse
  cadac discover --strict

  # Full metadata as JSON
  cadac discover -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			cat, err := cmdCtx.LoadCatalog(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if cmdCtx.Cfg.Output == config.OutputJSON {
				err = writeJSON(out, discoverJSON(cat, cmdCtx.Cfg.ModelsDir))
			} else {
				discoverText(out, cat, cmdCtx.Cfg.ModelsDir)
			}
			if err != nil {
				return err
			}

			if n := len(cat.Failures()); strict && n > 0 {
				return fmt.Errorf("%d model(s) failed to parse", n)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with an error if any model fails to parse")
	return cmd
}

type discoveredColumn struct {
	Position    int      `json:"position"`
	Name        string   `json:"name"`
	Alias       string   `json:"alias,omitempty"`
	Description string   `json:"description,omitempty"`
	Sources     []string `json:"sources,omitempty"`
}

type discoveredModel struct {
	Name         string             `json:"name"`
	Path         string             `json:"path"`
	Description  string             `json:"description,omitempty"`
	Columns      []discoveredColumn `json:"columns"`
	Dependencies []string           `json:"dependencies"`
	External     []string           `json:"external"`
}

type discoveryFailure struct {
	Name  string `json:"name,omitempty"`
	Path  string `json:"path"`
	Error string `json:"error"`
}

type discoveryResult struct {
	Models         []discoveredModel  `json:"models"`
	Failures       []discoveryFailure `json:"failures"`
	ExternalTables []string           `json:"external_tables"`
}

func discoverJSON(cat *catalog.Catalog, root string) discoveryResult {
	res := discoveryResult{
		Models:         []discoveredModel{},
		Failures:       []discoveryFailure{},
		ExternalTables: cat.ExternalTables(),
	}

	for _, m := range cat.Models() {
		dm := discoveredModel{
			Name:         m.Name(),
			Path:         relPath(root, m.Identity.FilePath),
			Description:  m.Description,
			Columns:      make([]discoveredColumn, 0, len(m.Columns)),
			Dependencies: nonNil(cat.Dependencies(m.Name())),
			External:     nonNil(cat.ExternalReferences(m.Name())),
		}
		for _, c := range m.Columns {
			col := discoveredColumn{
				Position:    c.Position,
				Name:        c.Name,
				Alias:       c.Alias,
				Description: c.Description,
				Sources:     c.Sources,
			}
			dm.Columns = append(dm.Columns, col)
		}
		res.Models = append(res.Models, dm)
	}

	for _, f := range cat.Failures() {
		res.Failures = append(res.Failures, discoveryFailure{
			Name:  f.Identity.QualifiedName,
			Path:  relPath(root, f.Path),
			Error: f.Err.Error(),
		})
	}
	return res
}

func discoverText(w io.Writer, cat *catalog.Catalog, root string) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Model", "Path", "Columns", "Depends on", "External"})
	for _, m := range cat.Models() {
		t.AppendRow(table.Row{
			m.Name(),
			relPath(root, m.Identity.FilePath),
			len(m.Columns),
			joinOrDash(cat.Dependencies(m.Name())),
			joinOrDash(cat.ExternalReferences(m.Name())),
		})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d models", cat.Len()), "", "", "", fmt.Sprintf("%d external", len(cat.ExternalTables()))})
	t.Render()

	failures := cat.Failures()
	if len(failures) == 0 {
		return
	}

	_, _ = fmt.Fprintln(w)
	ft := newTable(w)
	ft.SetTitle("Failed to parse")
	ft.AppendHeader(table.Row{"Path", "Error"})
	for _, f := range failures {
		ft.AppendRow(table.Row{relPath(root, f.Path), f.Err.Error()})
	}
	ft.Render()
}

func relPath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return path
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
