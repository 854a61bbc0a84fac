package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/lthms/litmap/internal/graph"
	"github.com/lthms/litmap/internal/session"
)

// EditCmd groups the direct graph edits. Without a target, delete,
// recolor and disconnect act on the current selection.
type EditCmd struct {
	Select      EditSelectCmd      `cmd:"" help:"Select or deselect nodes and edges."`
	Delete      EditDeleteCmd      `cmd:"" help:"Delete a node, or the selection, with every touching edge."`
	Recolor     EditRecolorCmd     `cmd:"" help:"Recolor a node, or the selected nodes."`
	Disconnect  EditDisconnectCmd  `cmd:"" help:"Remove the edges of a node, or between selected nodes."`
	Rename      EditRenameCmd      `cmd:"" help:"Rename a node."`
	AddChildren EditAddChildrenCmd `cmd:"" name:"add-children" help:"Add children to a node."`
	AddNode     EditAddNodeCmd     `cmd:"" name:"add-node" help:"Add an unconnected node."`
	Move        EditMoveCmd        `cmd:"" help:"Move a node."`
	Compact     EditCompactCmd     `cmd:"" help:"Toggle a reference card between compact and expanded."`
}

// withSession opens the project offline, runs fn and flushes the result.
func withSession(app *App, fn func(s *session.Session) error) (err error) {
	rt, err := app.open(context.Background(), true)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, rt.Close())
	}()
	return fn(rt.session)
}

func printChange(w io.Writer, ch graph.Change) {
	if ch.Empty() {
		fmt.Fprintln(w, faintStyle.Render("nothing changed"))
		return
	}
	line := func(verb string, ids []string) {
		if len(ids) > 0 {
			fmt.Fprintf(w, "%s %d: %s\n", verb, len(ids), idStyle.Render(fmt.Sprint(ids)))
		}
	}
	line("nodes added", ch.NodesAdded)
	line("nodes removed", ch.NodesRemoved)
	line("nodes updated", ch.NodesUpdated)
	line("edges added", ch.EdgesAdded)
	line("edges removed", ch.EdgesRemoved)
}

type EditSelectCmd struct {
	IDs   []string `arg:"" optional:"" help:"Node ids (edge ids with --edges)."`
	Edges bool     `help:"The ids are edge ids."`
	Off   bool     `help:"Deselect instead."`
	Clear bool     `help:"Clear the selection first."`
}

func (cmd *EditSelectCmd) Run(app *App) error {
	return withSession(app, func(s *session.Session) error {
		if cmd.Clear {
			s.ClearSelection()
		}
		for _, id := range cmd.IDs {
			var err error
			if cmd.Edges {
				err = s.SelectEdge(id, !cmd.Off)
			} else {
				err = s.SelectNode(id, !cmd.Off)
			}
			if err != nil {
				return err
			}
		}
		fmt.Printf("%d selected\n", s.State().Selected)
		return nil
	})
}

type EditDeleteCmd struct {
	Target string `arg:"" optional:"" help:"Node to delete (default: the selection)."`
}

func (cmd *EditDeleteCmd) Run(app *App) error {
	return withSession(app, func(s *session.Session) error {
		if cmd.Target == "" {
			printChange(os.Stdout, s.DeleteSelected())
			return nil
		}
		ch, err := s.DeleteTarget(cmd.Target)
		if err != nil {
			return err
		}
		printChange(os.Stdout, ch)
		return nil
	})
}

type EditRecolorCmd struct {
	Color  string `arg:"" help:"New color, e.g. #f7768e."`
	Target string `arg:"" optional:"" help:"Node to recolor (default: the selection)."`
}

func (cmd *EditRecolorCmd) Run(app *App) error {
	return withSession(app, func(s *session.Session) error {
		if cmd.Target == "" {
			printChange(os.Stdout, s.RecolorSelected(cmd.Color))
			return nil
		}
		ch, err := s.RecolorTarget(cmd.Target, cmd.Color)
		if err != nil {
			return err
		}
		printChange(os.Stdout, ch)
		return nil
	})
}

type EditDisconnectCmd struct {
	Target string `arg:"" optional:"" help:"Node whose edges to remove (default: edges among selected nodes)."`
}

func (cmd *EditDisconnectCmd) Run(app *App) error {
	return withSession(app, func(s *session.Session) error {
		if cmd.Target == "" {
			printChange(os.Stdout, s.DisconnectSelected())
			return nil
		}
		ch, err := s.DisconnectTarget(cmd.Target)
		if err != nil {
			return err
		}
		printChange(os.Stdout, ch)
		return nil
	})
}

type EditRenameCmd struct {
	ID    string `arg:"" help:"Node to rename."`
	Label string `arg:"" help:"New label."`
}

func (cmd *EditRenameCmd) Run(app *App) error {
	return withSession(app, func(s *session.Session) error {
		if err := s.BeginRename(cmd.ID); err != nil {
			return err
		}
		if err := s.CommitRename(cmd.ID, cmd.Label); err != nil {
			s.CancelRename()
			return err
		}
		printChange(os.Stdout, graph.Change{NodesUpdated: []string{cmd.ID}})
		return nil
	})
}

type EditAddChildrenCmd struct {
	Parent string `arg:"" help:"Parent node."`
	Count  int    `short:"n" default:"1" help:"Number of children."`
	Kind   string `default:"category" enum:"category,reference" help:"Kind of the new nodes."`
	Dir    string `default:"right" enum:"top,right,bottom,left" help:"Side of the parent to grow from."`
}

func (cmd *EditAddChildrenCmd) Run(app *App) error {
	return withSession(app, func(s *session.Session) error {
		ch, err := s.AddChildren(cmd.Parent, cmd.Count, graph.Kind(cmd.Kind), graph.Anchor(cmd.Dir))
		if err != nil {
			return err
		}
		printChange(os.Stdout, ch)
		return nil
	})
}

type EditAddNodeCmd struct {
	Label string  `arg:"" optional:"" help:"Label of the node."`
	Kind  string  `default:"category" enum:"category,reference" help:"Kind of the node."`
	X     float64 `help:"Horizontal position."`
	Y     float64 `help:"Vertical position."`
}

func (cmd *EditAddNodeCmd) Run(app *App) error {
	return withSession(app, func(s *session.Session) error {
		ch, err := s.AddFreeNode(graph.Kind(cmd.Kind), cmd.Label, graph.Position{X: cmd.X, Y: cmd.Y})
		if err != nil {
			return err
		}
		printChange(os.Stdout, ch)
		return nil
	})
}

type EditMoveCmd struct {
	ID string  `arg:"" help:"Node to move."`
	X  float64 `arg:"" help:"Horizontal position."`
	Y  float64 `arg:"" help:"Vertical position."`
}

func (cmd *EditMoveCmd) Run(app *App) error {
	return withSession(app, func(s *session.Session) error {
		return s.Move(cmd.ID, graph.Position{X: cmd.X, Y: cmd.Y})
	})
}

type EditCompactCmd struct {
	ID string `arg:"" help:"Reference node."`
}

func (cmd *EditCompactCmd) Run(app *App) error {
	return withSession(app, func(s *session.Session) error {
		compact, err := s.ToggleCompact(cmd.ID)
		if err != nil {
			return err
		}
		state := "expanded"
		if compact {
			state = "compact"
		}
		fmt.Println(cmd.ID, state)
		return nil
	})
}
