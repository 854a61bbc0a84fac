// Package layout positions a parent/child tree on a 2-D canvas as a
// left/right balanced mind map.
package layout

import (
	"github.com/lthms/litmap/internal/graph"
)

// Config holds the layout constants. Zero fields take the defaults.
type Config struct {
	CategoryHeight  float64 // base height of a category node (0 = default 60)
	ReferenceHeight float64 // base height of a reference node (0 = default 140)
	HorizontalGap   float64 // distance between a parent and its children (0 = default 350)
	VerticalGap     float64 // spacing between sibling subtrees (0 = default 40)
	AnchorThreshold float64 // |dx| beyond which edges attach left/right (0 = default 50)

	Root     graph.Position // root position (zero = default 450,350)
	Fallback graph.Position // position of items not reachable from the root (zero = default 100,100)
}

func (c Config) withDefaults() Config {
	if c.CategoryHeight == 0 {
		c.CategoryHeight = 60
	}
	if c.ReferenceHeight == 0 {
		c.ReferenceHeight = 140
	}
	if c.HorizontalGap == 0 {
		c.HorizontalGap = 350
	}
	if c.VerticalGap == 0 {
		c.VerticalGap = 40
	}
	if c.AnchorThreshold == 0 {
		c.AnchorThreshold = 50
	}
	if c.Root == (graph.Position{}) {
		c.Root = graph.Position{X: 450, Y: 350}
	}
	if c.Fallback == (graph.Position{}) {
		c.Fallback = graph.Position{X: 100, Y: 100}
	}
	return c
}

// Item is one node of the tree to lay out. An item with an empty ParentID
// is a root candidate; the first one wins.
type Item struct {
	ID       string
	ParentID string
	Kind     graph.Kind
}

// Link is a laid-out parent/child connection.
type Link struct {
	Parent       string
	Child        string
	SourceAnchor graph.Anchor
	TargetAnchor graph.Anchor
}

type Result struct {
	RootID    string
	Positions map[string]graph.Position
	Links     []Link // in item order
}

type direction int

const (
	dirLeft direction = iota
	dirRight
)

type engine struct {
	cfg      Config
	kinds    map[string]graph.Kind
	children map[string][]string
	heights  map[string]float64
	pos      map[string]graph.Position
}

// Compute lays out items. It is a pure function of its input: the same
// items in the same order always produce the same positions.
func Compute(items []Item, cfg Config) Result {
	cfg = cfg.withDefaults()
	e := &engine{
		cfg:      cfg,
		kinds:    make(map[string]graph.Kind, len(items)),
		children: make(map[string][]string),
		heights:  make(map[string]float64, len(items)),
		pos:      make(map[string]graph.Position, len(items)),
	}

	var rootID string
	for _, it := range items {
		if _, dup := e.kinds[it.ID]; dup {
			continue
		}
		e.kinds[it.ID] = it.Kind
		if it.ParentID == "" {
			if rootID == "" {
				rootID = it.ID
			}
			continue
		}
		e.children[it.ParentID] = append(e.children[it.ParentID], it.ID)
	}
	if rootID == "" && len(items) > 0 {
		rootID = items[0].ID
	}

	res := Result{RootID: rootID, Positions: e.pos}
	if rootID == "" {
		return res
	}

	e.height(rootID, map[string]bool{})
	e.placeRoot(rootID)

	for _, it := range items {
		if _, ok := e.pos[it.ID]; !ok {
			e.pos[it.ID] = cfg.Fallback
		}
	}
	for _, it := range items {
		if it.ParentID == "" {
			continue
		}
		parent, pok := e.pos[it.ParentID]
		child := e.pos[it.ID]
		if !pok {
			continue
		}
		src, dst := Anchors(parent, child, cfg.AnchorThreshold)
		res.Links = append(res.Links, Link{
			Parent:       it.ParentID,
			Child:        it.ID,
			SourceAnchor: src,
			TargetAnchor: dst,
		})
	}
	return res
}

func (e *engine) base(id string) float64 {
	if e.kinds[id] == graph.KindReference {
		return e.cfg.ReferenceHeight
	}
	return e.cfg.CategoryHeight
}

// height computes the subtree height of id. visiting guards against parent
// cycles, which contribute nothing.
func (e *engine) height(id string, visiting map[string]bool) float64 {
	if h, ok := e.heights[id]; ok {
		return h
	}
	if visiting[id] {
		return 0
	}
	visiting[id] = true
	defer delete(visiting, id)

	base := e.base(id)
	kids := e.children[id]
	if len(kids) == 0 {
		e.heights[id] = base
		return base
	}
	var total float64
	for _, c := range kids {
		total += e.height(c, visiting)
	}
	total += float64(len(kids)-1) * e.cfg.VerticalGap
	h := max(base, total)
	e.heights[id] = h
	return h
}

// placeRoot splits the root's children into a left and a right column,
// alternating by index, and centres each column on the root.
func (e *engine) placeRoot(rootID string) {
	root := e.cfg.Root
	e.pos[rootID] = root

	var left, right []string
	for i, c := range e.children[rootID] {
		if i%2 == 0 {
			left = append(left, c)
		} else {
			right = append(right, c)
		}
	}
	e.placeColumn(left, root.X-e.cfg.HorizontalGap, dirLeft)
	e.placeColumn(right, root.X+e.cfg.HorizontalGap, dirRight)
}

func (e *engine) placeColumn(ids []string, x float64, dir direction) {
	gap := e.cfg.VerticalGap
	var total float64
	for _, id := range ids {
		total += e.heights[id] + gap
	}
	y := e.cfg.Root.Y - total/2 + gap/2
	for _, id := range ids {
		h := e.heights[id]
		e.place(id, x, y+h/2, dir)
		y += h + gap
	}
}

func (e *engine) place(id string, x, y float64, dir direction) {
	if _, done := e.pos[id]; done {
		return
	}
	e.pos[id] = graph.Position{X: x, Y: y}

	kids := e.children[id]
	if len(kids) == 0 {
		return
	}
	childX := x + e.cfg.HorizontalGap
	if dir == dirLeft {
		childX = x - e.cfg.HorizontalGap
	}
	cur := y - e.heights[id]/2
	for _, c := range kids {
		h := e.heights[c]
		e.place(c, childX, cur+h/2, dir)
		cur += h + e.cfg.VerticalGap
	}
}

// Anchors picks the sides an edge from parent to child attaches to. A
// horizontal offset beyond threshold selects left/right, otherwise the
// vertical order selects top/bottom.
func Anchors(parent, child graph.Position, threshold float64) (source, target graph.Anchor) {
	switch {
	case child.X < parent.X-threshold:
		return graph.AnchorLeft, graph.AnchorRight
	case child.X > parent.X+threshold:
		return graph.AnchorRight, graph.AnchorLeft
	case child.Y < parent.Y:
		return graph.AnchorTop, graph.AnchorBottom
	default:
		return graph.AnchorBottom, graph.AnchorTop
	}
}
