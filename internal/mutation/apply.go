package mutation

import (
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/lthms/litmap/internal/graph"
	"github.com/lthms/litmap/internal/telemetry"
)

// Placement of nodes added by ADD_CHILD, relative to their parent.
const (
	gapX      = 200
	gapY      = 80
	jitter    = 30
	childFill = "#ffffff"
)

// Options customises Apply. The zero value uses random uuids and jitter.
type Options struct {
	NewID func() string
	// Jitter returns a perpendicular offset in [-30, 30).
	Jitter func() float64
}

func (o Options) withDefaults() Options {
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	if o.Jitter == nil {
		o.Jitter = func() float64 { return rand.Float64()*2*jitter - jitter }
	}
	return o
}

// Outcome reports what Apply did.
type Outcome struct {
	Applied  []Action
	Rejected []Action
	Change   graph.Change
	// BoundLabel is the new label of the bound node when the reply renamed
	// it, empty otherwise.
	BoundLabel string
}

// Scope returns the ids a chat bound to bound may edit: the bound node and
// every node reachable from it over outgoing edges. It is empty when bound
// does not exist.
func Scope(doc *graph.Document, bound string) map[string]bool {
	scope := make(map[string]bool)
	for _, id := range doc.Reachable(bound) {
		scope[id] = true
	}
	return scope
}

// Apply runs actions in order against doc. Actions naming a node outside
// the bound node's scope are rejected without touching the document.
// Children added by an earlier action join the scope. All accepted actions
// commit together: on error doc is left unchanged.
func Apply(doc *graph.Document, bound string, actions []Action, opts Options) (Outcome, error) {
	opts = opts.withDefaults()
	scope := Scope(doc, bound)
	next := doc.Clone()

	var out Outcome
	for _, a := range actions {
		if !scope[a.Target] {
			slog.Info("mutation: rejected out of scope", "op", a.Op, "target", a.Target, "bound", bound)
			telemetry.Mutations.WithLabelValues(string(a.Op), "rejected").Inc()
			out.Rejected = append(out.Rejected, a)
			continue
		}

		switch a.Op {
		case OpRename:
			if err := next.Rename(a.Target, a.Label); err != nil {
				return Outcome{}, fmt.Errorf("apply rename: %w", err)
			}
			out.Change.NodesUpdated = append(out.Change.NodesUpdated, a.Target)
			if a.Target == bound {
				out.BoundLabel = a.Label
			}
		case OpAddChild:
			ch, err := addChild(next, a, opts)
			if err != nil {
				return Outcome{}, fmt.Errorf("apply add child: %w", err)
			}
			scope[ch.NodesAdded[0]] = true
			out.Change = out.Change.Merge(ch)
		default:
			out.Rejected = append(out.Rejected, a)
			continue
		}
		slog.Info("mutation: applied", "op", a.Op, "target", a.Target, "label", a.Label)
		telemetry.Mutations.WithLabelValues(string(a.Op), "applied").Inc()
		out.Applied = append(out.Applied, a)
	}

	if len(out.Applied) > 0 {
		*doc = *next
	}
	return out, nil
}

// growth returns the side of parent new children are placed on: away from
// the edge that feeds the parent, or right for a root.
func growth(doc *graph.Document, parent string) graph.Anchor {
	for _, e := range doc.Incoming(parent) {
		if e.TargetAnchor.Valid() {
			return e.TargetAnchor.Opposite()
		}
	}
	return graph.AnchorRight
}

func addChild(doc *graph.Document, a Action, opts Options) (graph.Change, error) {
	parent, ok := doc.Node(a.Target)
	if !ok {
		return graph.Change{}, fmt.Errorf("%q: %w", a.Target, graph.ErrNodeNotFound)
	}
	dir := growth(doc, parent.ID)

	pos := parent.Position
	off := opts.Jitter()
	switch dir {
	case graph.AnchorRight:
		pos.X += gapX
		pos.Y += off
	case graph.AnchorLeft:
		pos.X -= gapX
		pos.Y += off
	case graph.AnchorBottom:
		pos.Y += gapY
		pos.X += off
	case graph.AnchorTop:
		pos.Y -= gapY
		pos.X += off
	}

	label := a.Label
	if label == "" {
		label = "New Node"
	}
	n := graph.Node{
		ID:       opts.NewID(),
		Kind:     graph.KindCategory,
		Label:    label,
		Color:    childFill,
		ParentID: parent.ID,
		Position: pos,
	}
	if err := doc.AddNode(n); err != nil {
		return graph.Change{}, err
	}
	e := graph.Edge{
		ID:           graph.EdgeID(parent.ID, n.ID),
		Source:       parent.ID,
		Target:       n.ID,
		SourceAnchor: dir,
		TargetAnchor: dir.Opposite(),
	}
	if err := doc.AddEdge(e); err != nil {
		return graph.Change{}, err
	}
	return graph.Change{NodesAdded: []string{n.ID}, EdgesAdded: []string{e.ID}}, nil
}
