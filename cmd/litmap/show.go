package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/lthms/litmap/internal/graph"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	idStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89"))
	faintStyle = lipgloss.NewStyle().Faint(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f9e2af"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e"))
	refStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7aa2f7"))
	selStyle   = lipgloss.NewStyle().Reverse(true)
)

// ShowCmd prints the project graph.
type ShowCmd struct {
	Node   string `arg:"" optional:"" help:"Only show the subtree under this node."`
	Format string `default:"tree" enum:"tree,yaml,json" help:"Output format (tree, yaml, json)."`
	IDs    bool   `help:"Show node ids in the tree."`
}

func (cmd *ShowCmd) Run(app *App) error {
	rt, err := app.open(context.Background(), true)
	if err != nil {
		return err
	}
	defer rt.Close()

	doc := rt.session.Document()
	if cmd.Node != "" {
		if !doc.Has(cmd.Node) {
			return fmt.Errorf("show %q: %w", cmd.Node, graph.ErrNodeNotFound)
		}
		doc = subgraph(doc, cmd.Node)
	}

	switch cmd.Format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml":
		return writeYAML(os.Stdout, doc)
	}

	width := 0
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			width = w
		}
	}
	fmt.Fprint(os.Stdout, renderForest(doc, treeOptions{width: width, ids: cmd.IDs}))
	return nil
}

// subgraph returns the nodes reachable from id and the edges among them.
func subgraph(doc *graph.Document, id string) *graph.Document {
	out := graph.New()
	keep := make(map[string]bool)
	for _, nid := range doc.Reachable(id) {
		keep[nid] = true
	}
	for _, n := range doc.Nodes() {
		if keep[n.ID] {
			out.AddNode(n)
		}
	}
	for _, e := range doc.Edges() {
		if keep[e.Source] && keep[e.Target] {
			out.AddEdge(e)
		}
	}
	return out
}

// writeYAML renders the document with the same field names as its JSON.
func writeYAML(w io.Writer, doc *graph.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}

type treeOptions struct {
	width int // truncate lines to this many columns (0 = no limit)
	ids   bool
}

// renderForest draws every tree of the document, rooted at nodes without
// incoming edges. A node reached twice is expanded once; later visits are
// marked and not descended into.
func renderForest(doc *graph.Document, opts treeOptions) string {
	if doc.Empty() {
		return faintStyle.Render("(empty graph)") + "\n"
	}
	var b strings.Builder
	seen := make(map[string]bool)

	var walk func(id, prefix string, last, root bool)
	walk = func(id, prefix string, last, root bool) {
		n, _ := doc.Node(id)
		branch, childPrefix := "", ""
		if !root {
			branch, childPrefix = "├── ", prefix+"│   "
			if last {
				branch, childPrefix = "└── ", prefix+"    "
			}
		}
		line := prefix + branch + nodeLabel(n, opts)
		if seen[id] {
			line += faintStyle.Render(" ↺")
		}
		b.WriteString(truncate(line, opts.width))
		b.WriteByte('\n')
		if seen[id] {
			return
		}
		seen[id] = true

		out := doc.Outgoing(id)
		for i, e := range out {
			walk(e.Target, childPrefix, i == len(out)-1, false)
		}
	}

	for _, n := range doc.Nodes() {
		if len(doc.Incoming(n.ID)) == 0 {
			walk(n.ID, "", true, true)
		}
	}
	// Nodes only reachable through a cycle.
	for _, n := range doc.Nodes() {
		if !seen[n.ID] {
			walk(n.ID, "", true, true)
		}
	}
	return b.String()
}

func nodeLabel(n graph.Node, opts treeOptions) string {
	var label string
	if n.Kind == graph.KindReference {
		label = refStyle.Render(n.Label)
		if n.Reference != nil && n.Reference.DOI != "" && !n.Reference.Compact {
			label += faintStyle.Render(" doi:" + n.Reference.DOI)
		}
	} else {
		style := titleStyle
		if n.Color != "" && n.Color != "#ffffff" {
			style = style.Foreground(lipgloss.Color(n.Color))
		}
		label = style.Render(n.Label)
	}
	if n.Selected {
		label = selStyle.Render(label)
	}
	if opts.ids {
		label += " " + idStyle.Render("["+n.ID+"]")
	}
	return label
}

// truncate cuts s to width visible columns.
func truncate(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(s)
}
