// Package gateway is the boundary to text generation backends. Replies are
// untrusted: callers use the helpers in json.go to pull structured data out
// of them and fall back when that fails.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrGateway marks a failed generation call (transport error or an error
// reported by the backend).
var ErrGateway = errors.New("gateway call failed")

type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
	RoleModel  Role = "model"
)

// Turn is one message of a conversation.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

type Request struct {
	Instructions string
	PriorTurns   []Turn
}

// Response carries either the generated text or a backend error message.
type Response struct {
	Text  string
	Error string
}

// Gateway generates text from a request.
type Gateway interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Func adapts a function to the Gateway interface.
type Func func(ctx context.Context, req Request) (Response, error)

func (f Func) Generate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Call runs req and returns the reply text. Transport failures and
// backend-reported errors both wrap ErrGateway; context cancellation is
// returned as is.
func Call(ctx context.Context, g Gateway, req Request) (string, error) {
	resp, err := g.Generate(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %w", ErrGateway, err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrGateway, resp.Error)
	}
	return resp.Text, nil
}

type operationKey struct{}

// WithOperation tags ctx with the name of the operation issuing calls, for
// auditing and metrics.
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey{}, op)
}

// Operation returns the operation set by WithOperation, or "generate".
func Operation(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey{}).(string); ok && op != "" {
		return op
	}
	return "generate"
}

// Transcript renders a request as a single prompt, for backends that take
// one block of text.
func Transcript(req Request) string {
	var b strings.Builder
	b.WriteString(req.Instructions)
	for _, t := range req.PriorTurns {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		switch t.Role {
		case RoleModel:
			b.WriteString("Assistant: ")
		case RoleSystem:
			b.WriteString("System: ")
		default:
			b.WriteString("User: ")
		}
		b.WriteString(t.Text)
	}
	return b.String()
}
