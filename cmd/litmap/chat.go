package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"golang.org/x/term"

	"github.com/lthms/litmap/internal/gateway"
	"github.com/lthms/litmap/internal/mutation"
	"github.com/lthms/litmap/internal/session"
)

// ChatCmd talks with the model about one node. With a message it runs one
// turn; otherwise it reads turns from a terminal, or one message from piped
// stdin.
type ChatCmd struct {
	Node    string   `arg:"" help:"Id of the node the chat is bound to."`
	Message []string `arg:"" optional:"" help:"Message to send."`
	History bool     `help:"Print the conversation so far before sending."`
}

func (cmd *ChatCmd) Run(app *App) error {
	rt, err := app.open(context.Background(), false)
	if err != nil {
		return err
	}
	defer rt.Close()

	chat, err := rt.session.OpenChat(cmd.Node)
	if err != nil {
		return err
	}

	interactive := len(cmd.Message) == 0 && term.IsTerminal(int(os.Stdin.Fd()))
	if cmd.History || interactive {
		printTurns(os.Stdout, chat.Turns)
	}

	if len(cmd.Message) > 0 {
		return sendTurn(rt.session, cmd.Node, strings.Join(cmd.Message, " "), os.Stdout)
	}
	if !interactive {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			return errors.New("empty message")
		}
		return sendTurn(rt.session, cmd.Node, msg, os.Stdout)
	}
	return chatLoop(rt.session, cmd.Node, os.Stdin, os.Stdout)
}

// chatLoop reads one message per line until EOF or "/quit".
func chatLoop(s *session.Session, nodeID string, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, titleStyle.Render("> "))
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		msg := strings.TrimSpace(sc.Text())
		switch msg {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}
		if err := sendTurn(s, nodeID, msg, out); err != nil {
			return err
		}
	}
}

// sendTurn runs one turn. Ctrl-C abandons the turn, not the program.
func sendTurn(s *session.Session, nodeID, msg string, out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reply, err := s.Send(ctx, nodeID, msg)
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(out, faintStyle.Render("(cancelled)"))
		return nil
	}
	if err != nil {
		return err
	}
	printReply(out, reply)
	return nil
}

func printReply(w io.Writer, r session.Reply) {
	if r.Failed {
		fmt.Fprintln(w, errStyle.Render("the model could not answer: "+r.Error))
		return
	}
	fmt.Fprintln(w, r.Text)
	for _, a := range r.Outcome.Applied {
		fmt.Fprintln(w, okStyle.Render("  ✓ ")+describeAction(a))
	}
	for _, a := range r.Outcome.Rejected {
		fmt.Fprintln(w, warnStyle.Render("  ✗ ")+describeAction(a)+faintStyle.Render(" (outside this node)"))
	}
}

func describeAction(a mutation.Action) string {
	switch a.Op {
	case mutation.OpRename:
		return fmt.Sprintf("renamed %s to %q", a.Target, a.Label)
	case mutation.OpAddChild:
		return fmt.Sprintf("added %q under %s", a.Label, a.Target)
	}
	return string(a.Op)
}

func printTurns(w io.Writer, turns []gateway.Turn) {
	for _, t := range turns {
		switch t.Role {
		case gateway.RoleSystem:
			fmt.Fprintln(w, faintStyle.Render(t.Text))
		case gateway.RoleUser:
			fmt.Fprintln(w, titleStyle.Render("> ")+t.Text)
		default:
			fmt.Fprintln(w, t.Text)
		}
	}
}
