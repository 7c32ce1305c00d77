package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/spf13/cobra"

	"printvault/internal/backup"
	"printvault/internal/catalog"
)

// catalogCommand creates the catalog command describing the entity schema.
func (c *CLI) catalogCommand() *cobra.Command {
	var graphOut string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Show the entity catalog in dependency order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runCatalog(cmd.Context(), graphOut)
		},
	}
	cmd.Flags().StringVar(&graphOut, "graph", "", "write the dependency graph to a .dot or .svg file instead")
	return cmd
}

func (c *CLI) runCatalog(ctx context.Context, graphOut string) error {
	if graphOut != "" {
		return c.writeCatalogGraph(ctx, graphOut)
	}

	order, err := backup.DependencyOrder()
	if err != nil {
		return err
	}
	for _, t := range order {
		desc, ok := catalog.Get(t)
		if !ok {
			return fmt.Errorf("no descriptor for entity type %q", t)
		}
		fmt.Fprintf(c.stdout, "%s (%s)\n", desc.Display, desc.Type)
		fmt.Fprintf(c.stdout, "  table: %s, key: %s\n", desc.Table, desc.NaturalKey)
		for _, ref := range desc.Refs {
			kind := "optional"
			if ref.Required {
				kind = "required"
			}
			fmt.Fprintf(c.stdout, "  ref: %s -> %s (%s)\n", ref.Column, ref.Target, kind)
		}
		for _, m := range desc.Media {
			fmt.Fprintf(c.stdout, "  media: %s\n", m.Column)
		}
	}
	return nil
}

func (c *CLI) writeCatalogGraph(ctx context.Context, output string) error {
	dot, err := catalogDOT()
	if err != nil {
		return err
	}
	switch ext := strings.ToLower(filepath.Ext(output)); ext {
	case ".dot":
		return os.WriteFile(output, []byte(dot), 0o644)
	case ".svg":
		svg, err := renderSVG(ctx, dot)
		if err != nil {
			return err
		}
		return os.WriteFile(output, svg, 0o644)
	default:
		return fmt.Errorf("unsupported graph format %q, use .dot or .svg", ext)
	}
}

// catalogDOT builds a Graphviz DOT description of the entity dependency
// graph. Required references are solid edges, optional ones dashed.
func catalogDOT() (string, error) {
	order, err := backup.DependencyOrder()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.WriteString("digraph printvault {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white];\n\n")

	for _, t := range order {
		desc, ok := catalog.Get(t)
		if !ok {
			return "", fmt.Errorf("no descriptor for entity type %q", t)
		}
		fmt.Fprintf(&buf, "  %q [label=%q];\n", string(desc.Type), desc.Display)
	}

	buf.WriteString("\n")
	for _, t := range order {
		desc, _ := catalog.Get(t)
		for _, ref := range desc.Refs {
			style := ""
			if !ref.Required {
				style = " [style=dashed]"
			}
			fmt.Fprintf(&buf, "  %q -> %q%s;\n", string(desc.Type), string(ref.Target), style)
		}
	}

	buf.WriteString("}\n")
	return buf.String(), nil
}

func renderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse dot: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render svg: %w", err)
	}
	return buf.Bytes(), nil
}
