package session

import (
	"github.com/lthms/litmap/internal/graph"
	"github.com/lthms/litmap/internal/telemetry"
)

// edit runs fn on the document and schedules a save when it succeeds.
func (s *Session) edit(action string, fn func(d *graph.Document) (graph.Change, error)) (graph.Change, error) {
	s.mu.Lock()
	ch, err := fn(s.doc)
	s.mu.Unlock()
	if err != nil {
		telemetry.Mutations.WithLabelValues(action, "error").Inc()
		return ch, err
	}
	telemetry.Mutations.WithLabelValues(action, "applied").Inc()
	s.docSaver.Trigger()
	return ch, nil
}

func noChange(err error) (graph.Change, error) { return graph.Change{}, err }

func (s *Session) SelectNode(id string, selected bool) error {
	_, err := s.edit("select", func(d *graph.Document) (graph.Change, error) {
		return noChange(d.SelectNode(id, selected))
	})
	return err
}

func (s *Session) SelectEdge(id string, selected bool) error {
	_, err := s.edit("select", func(d *graph.Document) (graph.Change, error) {
		return noChange(d.SelectEdge(id, selected))
	})
	return err
}

func (s *Session) ClearSelection() {
	s.edit("select", func(d *graph.Document) (graph.Change, error) {
		d.ClearSelection()
		return graph.Change{}, nil
	})
}

// DeleteSelected removes the selected nodes and edges, and every edge
// touching a removed node.
func (s *Session) DeleteSelected() graph.Change {
	ch, _ := s.edit("delete", func(d *graph.Document) (graph.Change, error) {
		return d.DeleteSelected(), nil
	})
	return ch
}

func (s *Session) RecolorSelected(color string) graph.Change {
	ch, _ := s.edit("recolor", func(d *graph.Document) (graph.Change, error) {
		return d.RecolorSelected(color), nil
	})
	return ch
}

func (s *Session) DisconnectSelected() graph.Change {
	ch, _ := s.edit("disconnect", func(d *graph.Document) (graph.Change, error) {
		return d.DisconnectSelected(), nil
	})
	return ch
}

func (s *Session) DeleteTarget(id string) (graph.Change, error) {
	return s.edit("delete", func(d *graph.Document) (graph.Change, error) {
		return d.DeleteTarget(id)
	})
}

func (s *Session) RecolorTarget(id, color string) (graph.Change, error) {
	return s.edit("recolor", func(d *graph.Document) (graph.Change, error) {
		return d.RecolorTarget(id, color)
	})
}

func (s *Session) DisconnectTarget(id string) (graph.Change, error) {
	return s.edit("disconnect", func(d *graph.Document) (graph.Change, error) {
		return d.DisconnectTarget(id)
	})
}

func (s *Session) BeginRename(id string) error {
	_, err := s.edit("rename", func(d *graph.Document) (graph.Change, error) {
		return noChange(d.BeginRename(id))
	})
	return err
}

// CommitRename sets the label of a node in rename mode. The display
// label of the node's chat follows.
func (s *Session) CommitRename(id, label string) error {
	_, err := s.edit("rename", func(d *graph.Document) (graph.Change, error) {
		if err := d.CommitRename(id, label); err != nil {
			return graph.Change{}, err
		}
		if c, ok := s.chats[id]; ok {
			c.Label = label
			s.chatSaver.Trigger()
		}
		return graph.Change{NodesUpdated: []string{id}}, nil
	})
	return err
}

func (s *Session) CancelRename() {
	s.edit("rename", func(d *graph.Document) (graph.Change, error) {
		d.CancelRename()
		return graph.Change{}, nil
	})
}

func (s *Session) Move(id string, pos graph.Position) error {
	_, err := s.edit("move", func(d *graph.Document) (graph.Change, error) {
		return graph.Change{NodesUpdated: []string{id}}, d.Move(id, pos)
	})
	return err
}

// ToggleCompact flips a reference card between compact and expanded and
// returns the new state.
func (s *Session) ToggleCompact(id string) (bool, error) {
	var compact bool
	_, err := s.edit("compact", func(d *graph.Document) (graph.Change, error) {
		var err error
		compact, err = d.ToggleCompact(id)
		return graph.Change{NodesUpdated: []string{id}}, err
	})
	return compact, err
}

func (s *Session) AddChildren(parentID string, count int, kind graph.Kind, dir graph.Anchor) (graph.Change, error) {
	return s.edit("add_children", func(d *graph.Document) (graph.Change, error) {
		return d.AddChildren(parentID, count, kind, dir, s.cfg.NewID)
	})
}

func (s *Session) AddFreeNode(kind graph.Kind, label string, pos graph.Position) (graph.Change, error) {
	return s.edit("add_node", func(d *graph.Document) (graph.Change, error) {
		return d.AddFreeNode(s.cfg.NewID(), kind, label, pos)
	})
}
