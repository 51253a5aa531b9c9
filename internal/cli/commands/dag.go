package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/cadac/internal/catalog"
	"github.com/leapstack-labs/cadac/internal/config"
	"github.com/leapstack-labs/cadac/pkg/core"
)

// NewDAGCommand creates the dag command.
func NewDAGCommand() *cobra.Command {
	var (
		upstream   string
		downstream string
	)

	cmd := &cobra.Command{
		Use:   "dag",
		Short: "Show the model dependency graph",
		Long: `Show models grouped by execution level. Models on one level only
depend on models of lower levels.

With --upstream or --downstream, list the models reachable from one model
instead.`,
		Example: `  # Execution levels
  cadac dag

  # Everything marts.customer_revenue reads from
  cadac dag --upstream marts.customer_revenue`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if upstream != "" && downstream != "" {
				return fmt.Errorf("--upstream and --downstream are mutually exclusive")
			}

			cmdCtx, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			cat, err := cmdCtx.LoadCatalog(cmd.Context())
			if err != nil {
				return err
			}

			jsonOut := cmdCtx.Cfg.Output == config.OutputJSON
			out := cmd.OutOrStdout()

			switch {
			case upstream != "":
				return showReach(out, cat, upstream, "upstream", jsonOut)
			case downstream != "":
				return showReach(out, cat, downstream, "downstream", jsonOut)
			}

			g := cat.Graph()
			levels, err := g.GetExecutionLevels()
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(out, levelsJSON{
					Levels: levels,
					Roots:  nonNil(g.GetRoots()),
					Leaves: nonNil(g.GetLeaves()),
					Edges:  edges(cat),
				})
			}

			t := newTable(out)
			t.AppendHeader(table.Row{"Level", "Models"})
			for i, level := range levels {
				t.AppendRow(table.Row{i, strings.Join(level, "\n")})
				t.AppendSeparator()
			}
			t.AppendFooter(table.Row{"", fmt.Sprintf("%d models, %d edges, %d roots, %d leaves",
				g.NodeCount(), g.EdgeCount(), len(g.GetRoots()), len(g.GetLeaves()))})
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&upstream, "upstream", "", "List the models the given model depends on")
	cmd.Flags().StringVar(&downstream, "downstream", "", "List the models depending on the given model")
	return cmd
}

type levelsJSON struct {
	Levels [][]string `json:"levels"`
	Roots  []string   `json:"roots"`
	Leaves []string   `json:"leaves"`
	Edges  []edgeJSON `json:"edges"`
}

type edgeJSON struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type reachJSON struct {
	Model     string   `json:"model"`
	Direction string   `json:"direction"`
	Models    []string `json:"models"`
}

func edges(cat *catalog.Catalog) []edgeJSON {
	g := cat.Graph()
	out := []edgeJSON{}
	for _, id := range g.NodeIDs() {
		for _, child := range g.GetChildren(id) {
			out = append(out, edgeJSON{From: id, To: child})
		}
	}
	return out
}

func showReach(w io.Writer, cat *catalog.Catalog, model, direction string, jsonOut bool) error {
	g := cat.Graph()
	if !g.HasNode(model) {
		return &core.ModelNotFoundError{Name: model}
	}

	var models []string
	if direction == "upstream" {
		models = g.GetUpstreamNodes(model)
	} else {
		models = g.GetDownstreamNodes(model)
	}

	if jsonOut {
		return writeJSON(w, reachJSON{Model: model, Direction: direction, Models: nonNil(models)})
	}

	t := newTable(w)
	t.SetTitle(fmt.Sprintf("%s of %s", direction, model))
	t.AppendHeader(table.Row{"Model", "Parents"})
	for _, name := range models {
		t.AppendRow(table.Row{name, joinOrDash(g.GetParents(name))})
	}
	t.Render()
	return nil
}
