package graph

import (
	"fmt"
)

// Fallback node sizes used when placing new nodes around a parent.
const (
	categoryWidth   = 160
	categoryHeight  = 40
	referenceWidth  = 350
	referenceHeight = 250
)

func nodeSize(k Kind) (w, h float64) {
	if k == KindReference {
		return referenceWidth, referenceHeight
	}
	return categoryWidth, categoryHeight
}

// AddChildren attaches count new nodes of the given kind to parentID,
// stacked on the dir side of the parent. New ids come from newID.
func (d *Document) AddChildren(parentID string, count int, kind Kind, dir Anchor, newID func() string) (Change, error) {
	parent, ok := d.nodeByID[parentID]
	if !ok {
		return Change{}, fmt.Errorf("add children to %q: %w", parentID, ErrNodeNotFound)
	}
	if count <= 0 {
		return Change{}, nil
	}
	if !dir.Valid() {
		return Change{}, fmt.Errorf("add children to %q: invalid direction %q", parentID, dir)
	}
	if kind == "" {
		kind = KindCategory
	}

	isRef := kind == KindReference
	pw, ph := nodeSize(parent.Kind)
	centerX := parent.Position.X + pw/2
	centerY := parent.Position.Y + ph/2

	gapX, gapY, span := 250.0, 60.0, 180.0
	if isRef {
		gapX, gapY, span = 400, 120, 300
	}

	var start Position
	switch dir {
	case AnchorRight:
		off := 80.0
		if isRef {
			off = 100
		}
		start = Position{X: parent.Position.X + pw + off, Y: centerY}
	case AnchorLeft:
		start = Position{X: parent.Position.X - gapX, Y: centerY}
	case AnchorBottom:
		off := 60.0
		if isRef {
			off = 100
		}
		start = Position{X: centerX, Y: parent.Position.Y + ph + off}
	case AnchorTop:
		off := 100.0
		if isRef {
			off = 150
		}
		start = Position{X: centerX, Y: parent.Position.Y - off}
	}

	vertical := dir == AnchorRight || dir == AnchorLeft
	step := span
	if vertical {
		step = gapY
	}
	offset := -(float64(count)*step)/2 + step/2

	var ch Change
	for i := 0; i < count; i++ {
		pos := start
		if vertical {
			pos.Y += offset + float64(i)*step
		} else {
			pos.X += offset + float64(i)*step
		}
		n := Node{
			ID:       newID(),
			Kind:     kind,
			Label:    fmt.Sprintf("Node %d", i+1),
			Color:    "#ffffff",
			Position: pos,
		}
		if isRef {
			n.Label = "New Reference"
			n.Color = "#faf5ff"
			n.Reference = &Reference{}
		}
		if err := d.AddNode(n); err != nil {
			return ch, err
		}
		e := Edge{
			ID:           EdgeID(parentID, n.ID),
			Source:       parentID,
			Target:       n.ID,
			SourceAnchor: dir,
			TargetAnchor: dir.Opposite(),
		}
		if err := d.AddEdge(e); err != nil {
			return ch, err
		}
		ch.NodesAdded = append(ch.NodesAdded, n.ID)
		ch.EdgesAdded = append(ch.EdgesAdded, e.ID)
	}
	return ch, nil
}

// AddFreeNode adds an unconnected node at pos. An empty label becomes
// "New Node" (or "New Reference" for references).
func (d *Document) AddFreeNode(id string, kind Kind, label string, pos Position) (Change, error) {
	if kind == "" {
		kind = KindCategory
	}
	n := Node{ID: id, Kind: kind, Label: label, Position: pos}
	if kind == KindReference {
		n.Reference = &Reference{}
		if n.Label == "" {
			n.Label = "New Reference"
		}
	} else if n.Label == "" {
		n.Label = "New Node"
	}
	if err := d.AddNode(n); err != nil {
		return Change{}, err
	}
	return Change{NodesAdded: []string{id}}, nil
}
