package mutation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lthms/litmap/internal/graph"
)

type subgraphNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type subgraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Instructions renders the protocol description sent with every chat turn:
// the bound node, its editable subgraph and the command syntax.
func Instructions(doc *graph.Document, bound string) string {
	scope := Scope(doc, bound)
	var sub struct {
		Nodes []subgraphNode `json:"nodes"`
		Edges []subgraphEdge `json:"edges"`
	}
	for _, id := range doc.Reachable(bound) {
		n, _ := doc.Node(id)
		sub.Nodes = append(sub.Nodes, subgraphNode{ID: n.ID, Label: n.Label})
	}
	for _, e := range doc.Edges() {
		if scope[e.Source] && scope[e.Target] {
			sub.Edges = append(sub.Edges, subgraphEdge{Source: e.Source, Target: e.Target})
		}
	}
	data, _ := json.Marshal(sub)

	label := bound
	if n, ok := doc.Node(bound); ok {
		label = n.Label
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are managing the node %q (ID: %s) and its descendants.\n", label, bound)
	fmt.Fprintf(&b, "Current subgraph: %s\n\n", data)
	b.WriteString(`You can change this structure by writing commands anywhere in your reply:
  RENAME(<node id>, "<new label>")
  ADD_CHILD(<parent id>, "<new label>")

Rules:
- Only nodes listed in the current subgraph can be renamed or receive children.
- Put labels in double quotes and escape a quote inside a label as \".
- Perform the command, then briefly confirm it in prose.
- Do not put commands in code blocks.
`)
	return b.String()
}
