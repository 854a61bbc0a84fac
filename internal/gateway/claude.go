package gateway

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ClaudeCLI generates text by shelling out to the Claude CLI.
type ClaudeCLI struct {
	Model   string // e.g. "haiku", "sonnet", "opus"
	Binary  string // "" = "claude"
	Timeout time.Duration
}

// Generate sends the rendered transcript to the CLI via stdin.
func (c *ClaudeCLI) Generate(ctx context.Context, req Request) (Response, error) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bin := c.Binary
	if bin == "" {
		bin = "claude"
	}
	cmd := exec.CommandContext(ctx, bin, "-p", "--model", c.Model)
	cmd.Stdin = strings.NewReader(Transcript(req))

	output, err := cmd.Output()
	if err != nil {
		return Response{}, fmt.Errorf("claude cli: %w", err)
	}
	return Response{Text: strings.TrimSpace(string(output))}, nil
}
