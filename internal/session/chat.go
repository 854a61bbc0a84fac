package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"github.com/lthms/litmap/internal/gateway"
	"github.com/lthms/litmap/internal/graph"
	"github.com/lthms/litmap/internal/mutation"
	"github.com/lthms/litmap/internal/telemetry"
)

// Chat is the conversation bound to one node. Turns only grow.
type Chat struct {
	NodeID string         `json:"nodeId"`
	Label  string         `json:"label"`
	Turns  []gateway.Turn `json:"turns"`
}

func (c *Chat) clone() *Chat {
	out := *c
	out.Turns = slices.Clone(c.Turns)
	return &out
}

func newChat(n graph.Node) *Chat {
	return &Chat{
		NodeID: n.ID,
		Label:  n.Label,
		Turns: []gateway.Turn{
			{Role: gateway.RoleSystem, Text: fmt.Sprintf("Chat for node: **%s**", n.Label)},
			{Role: gateway.RoleModel, Text: fmt.Sprintf("Hello! I'm here to discuss %q. What would you like to know?", n.Label)},
		},
	}
}

// chatFor returns the chat of nodeID, creating it on first use. Called
// with mu held.
func (s *Session) chatFor(nodeID string) (*Chat, bool, error) {
	if c, ok := s.chats[nodeID]; ok {
		return c, false, nil
	}
	n, ok := s.doc.Node(nodeID)
	if !ok {
		return nil, false, fmt.Errorf("open chat %q: %w", nodeID, graph.ErrNodeNotFound)
	}
	c := newChat(n)
	s.chats[nodeID] = c
	return c, true, nil
}

// OpenChat returns the chat bound to nodeID, creating it if needed.
func (s *Session) OpenChat(nodeID string) (Chat, error) {
	s.mu.Lock()
	c, created, err := s.chatFor(nodeID)
	var out Chat
	if err == nil {
		out = *c.clone()
	}
	s.mu.Unlock()

	if created {
		slog.Debug("session: chat created", "node", nodeID)
		s.chatSaver.Trigger()
	}
	return out, err
}

// Chats returns a copy of every chat keyed by bound node id.
func (s *Session) Chats() map[string]Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Chat, len(s.chats))
	for id, c := range s.chats {
		out[id] = *c.clone()
	}
	return out
}

// Reply is the outcome of one chat turn.
type Reply struct {
	Text    string           `json:"text"` // reply prose with action tokens removed
	Outcome mutation.Outcome `json:"outcome"`
	Failed  bool             `json:"failed,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// Send runs one chat turn for the chat bound to nodeID. The reply's
// actions are applied within the node's subgraph. A failed gateway call
// is reported in Reply.Failed rather than as an error; the only errors are
// an unknown node and the context's, in which case the turn is discarded.
func (s *Session) Send(ctx context.Context, nodeID, text string) (Reply, error) {
	if s.cfg.Gateway == nil {
		return Reply{}, fmt.Errorf("send: %w", ErrNoGateway)
	}
	ctx, span := telemetry.Tracer("session").Start(ctx, "session.chat")
	span.SetAttributes(attribute.String("node", nodeID))
	defer span.End()

	s.mu.Lock()
	c, created, err := s.chatFor(nodeID)
	if err != nil {
		s.mu.Unlock()
		return Reply{}, err
	}
	req := gateway.Request{
		Instructions: mutation.Instructions(s.doc, nodeID),
		PriorTurns:   append(slices.Clone(c.Turns), gateway.Turn{Role: gateway.RoleUser, Text: text}),
	}
	s.mu.Unlock()
	if created {
		s.chatSaver.Trigger()
	}

	raw, err := gateway.Call(gateway.WithOperation(ctx, "chat"), s.cfg.Gateway, req)
	if ctx.Err() != nil {
		return Reply{}, ctx.Err()
	}
	if err != nil {
		slog.Warn("session: chat turn failed", "node", nodeID, "error", err)
		s.mu.Lock()
		c.Turns = append(c.Turns, gateway.Turn{Role: gateway.RoleUser, Text: text})
		s.mu.Unlock()
		s.chatSaver.Trigger()
		return Reply{Failed: true, Error: err.Error()}, nil
	}

	prose, actions := mutation.Scan(raw)

	s.mu.Lock()
	out, err := mutation.Apply(s.doc, nodeID, actions, s.cfg.Mutation)
	if err != nil {
		slog.Warn("session: chat mutations dropped", "node", nodeID, "error", err)
		out = mutation.Outcome{Rejected: actions}
	}
	if out.BoundLabel != "" {
		c.Label = out.BoundLabel
	}
	c.Turns = append(c.Turns,
		gateway.Turn{Role: gateway.RoleUser, Text: text},
		gateway.Turn{Role: gateway.RoleModel, Text: prose},
	)
	s.mu.Unlock()

	span.SetAttributes(
		attribute.Int("actions.applied", len(out.Applied)),
		attribute.Int("actions.rejected", len(out.Rejected)),
	)
	if !out.Change.Empty() {
		s.docSaver.Trigger()
	}
	s.chatSaver.Trigger()
	return Reply{Text: prose, Outcome: out}, nil
}
