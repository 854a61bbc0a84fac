package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lthms/litmap/internal/graph"
	"github.com/lthms/litmap/internal/search"
)

// MCP tool args

type noArgs struct{}

type searchArgs struct {
	Query    string `json:"query" jsonschema:"Search expression for titles, abstracts and keywords"`
	Count    int    `json:"count,omitempty" jsonschema:"Number of papers to retrieve (default 10, at most 200)"`
	Offset   int    `json:"offset,omitempty" jsonschema:"Number of results to skip"`
	YearFrom int    `json:"year_from,omitempty" jsonschema:"Earliest publication year"`
	YearTo   int    `json:"year_to,omitempty" jsonschema:"Latest publication year"`
}

func (a searchArgs) query() search.Query {
	return search.Query{Text: a.Query, Count: a.Count, Offset: a.Offset, YearFrom: a.YearFrom, YearTo: a.YearTo}
}

type classifyArgs struct {
	Query    string `json:"query" jsonschema:"Search expression for titles, abstracts and keywords"`
	Count    int    `json:"count,omitempty" jsonschema:"Number of papers to classify (default 10, at most 200)"`
	YearFrom int    `json:"year_from,omitempty" jsonschema:"Earliest publication year"`
	YearTo   int    `json:"year_to,omitempty" jsonschema:"Latest publication year"`
	Criteria string `json:"criteria,omitempty" jsonschema:"How to organise the papers, e.g. by research method"`
}

type nodeArgs struct {
	NodeID string `json:"node_id" jsonschema:"Id of the node"`
}

type chatArgs struct {
	NodeID  string `json:"node_id" jsonschema:"Id of the node the chat is bound to"`
	Message string `json:"message" jsonschema:"The user's message"`
}

type selectArgs struct {
	IDs      []string `json:"ids,omitempty" jsonschema:"Node ids, or edge ids when edges is true"`
	Edges    bool     `json:"edges,omitempty" jsonschema:"The ids are edge ids"`
	Deselect bool     `json:"deselect,omitempty" jsonschema:"Deselect instead of select"`
	Clear    bool     `json:"clear,omitempty" jsonschema:"Clear the selection first"`
}

type targetArgs struct {
	NodeID string `json:"node_id,omitempty" jsonschema:"Node to act on; omit to act on the selection"`
}

type recolorArgs struct {
	NodeID string `json:"node_id,omitempty" jsonschema:"Node to recolor; omit to recolor the selection"`
	Color  string `json:"color" jsonschema:"New color, e.g. #f7768e"`
}

type renameArgs struct {
	NodeID string `json:"node_id" jsonschema:"Node to rename"`
	Label  string `json:"label" jsonschema:"New label"`
}

type addChildrenArgs struct {
	ParentID  string `json:"parent_id" jsonschema:"Parent node"`
	Count     int    `json:"count,omitempty" jsonschema:"Number of children (default 1)"`
	Kind      string `json:"kind,omitempty" jsonschema:"category or reference (default category)"`
	Direction string `json:"direction,omitempty" jsonschema:"top, right, bottom or left (default right)"`
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func (d *daemon) mcpHandler() http.Handler {
	return mcp.NewSSEHandler(func(r *http.Request) *mcp.Server {
		return d.newMCPServer()
	}, nil)
}

// newMCPServer creates a server with every tool registered. One is built
// per SSE connection so each client gets its own initialization lifecycle.
func (d *daemon) newMCPServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "litmap",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_graph",
		Description: "Return the project's knowledge graph as JSON: nodes (id, kind, label, color, position, reference) and edges (id, source, target, anchors).",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args noArgs) (*mcp.CallToolResult, any, error) {
		return jsonResult(d.session.Document())
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_state",
		Description: "Return graph size, selection size and persistence status.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args noArgs) (*mcp.CallToolResult, any, error) {
		return jsonResult(d.session.State())
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_papers",
		Description: "Search for papers without changing the graph. Returns a JSON array of {id, title, abstract, doi, authors, year}.",
	}, d.toolSearch)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "classify_papers",
		Description: "Search for papers, organise them into a taxonomy and add it to the graph as a new tree beside the existing content.",
	}, d.toolClassify)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "open_chat",
		Description: "Return the chat bound to a node, creating it with a greeting if needed.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args nodeArgs) (*mcp.CallToolResult, any, error) {
		chat, err := d.session.OpenChat(args.NodeID)
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(chat)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chat",
		Description: "Send a message in a node's chat. The reply may rename the node or add children below it; changes outside the node's subtree are rejected.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args chatArgs) (*mcp.CallToolResult, any, error) {
		slog.Debug("serve: chat tool called", "node", args.NodeID)
		reply, err := d.session.Send(ctx, args.NodeID, args.Message)
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(reply)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "select",
		Description: "Select or deselect nodes or edges. Returns the number of selected items.",
	}, d.toolSelect)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete",
		Description: "Delete a node, or every selected node and edge, together with all edges touching a deleted node.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args targetArgs) (*mcp.CallToolResult, any, error) {
		if args.NodeID == "" {
			return jsonResult(d.session.DeleteSelected())
		}
		return changeResult(d.session.DeleteTarget(args.NodeID))
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "recolor",
		Description: "Recolor a node, or every selected node.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args recolorArgs) (*mcp.CallToolResult, any, error) {
		if args.NodeID == "" {
			return jsonResult(d.session.RecolorSelected(args.Color))
		}
		return changeResult(d.session.RecolorTarget(args.NodeID, args.Color))
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "disconnect",
		Description: "Remove every edge of a node, or every edge between two selected nodes.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args targetArgs) (*mcp.CallToolResult, any, error) {
		if args.NodeID == "" {
			return jsonResult(d.session.DisconnectSelected())
		}
		return changeResult(d.session.DisconnectTarget(args.NodeID))
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "rename_node",
		Description: "Set a node's label.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args renameArgs) (*mcp.CallToolResult, any, error) {
		if err := d.session.BeginRename(args.NodeID); err != nil {
			return nil, nil, err
		}
		if err := d.session.CommitRename(args.NodeID, args.Label); err != nil {
			d.session.CancelRename()
			return nil, nil, err
		}
		return jsonResult(graph.Change{NodesUpdated: []string{args.NodeID}})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_children",
		Description: "Add child nodes to a node, placed on the given side and connected to it.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args addChildrenArgs) (*mcp.CallToolResult, any, error) {
		count, kind, dir := args.Count, graph.Kind(args.Kind), graph.Anchor(args.Direction)
		if count == 0 {
			count = 1
		}
		if kind == "" {
			kind = graph.KindCategory
		}
		if dir == "" {
			dir = graph.AnchorRight
		}
		return changeResult(d.session.AddChildren(args.ParentID, count, kind, dir))
	})

	return server
}

func changeResult(ch graph.Change, err error) (*mcp.CallToolResult, any, error) {
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(ch)
}

func (d *daemon) toolSearch(ctx context.Context, req *mcp.CallToolRequest, args searchArgs) (*mcp.CallToolResult, any, error) {
	if d.searcher == nil {
		return nil, nil, errors.New("no document source configured")
	}
	q := args.query()
	if err := q.Validate(); err != nil {
		return nil, nil, err
	}
	docs, err := d.searcher.Search(ctx, q)
	if err != nil {
		return nil, nil, fmt.Errorf("search failed: %w", err)
	}
	return jsonResult(docs)
}

func (d *daemon) toolClassify(ctx context.Context, req *mcp.CallToolRequest, args classifyArgs) (*mcp.CallToolResult, any, error) {
	q := search.Query{Text: args.Query, Count: args.Count, YearFrom: args.YearFrom, YearTo: args.YearTo}
	if err := q.Validate(); err != nil {
		return nil, nil, err
	}
	slog.Info("serve: classify requested", "query", q.Text, "count", q.Count)
	st, err := d.session.SearchAndClassify(ctx, q, args.Criteria)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(st)
}

func (d *daemon) toolSelect(ctx context.Context, req *mcp.CallToolRequest, args selectArgs) (*mcp.CallToolResult, any, error) {
	if args.Clear {
		d.session.ClearSelection()
	}
	for _, id := range args.IDs {
		var err error
		if args.Edges {
			err = d.session.SelectEdge(id, !args.Deselect)
		} else {
			err = d.session.SelectNode(id, !args.Deselect)
		}
		if err != nil {
			return nil, nil, err
		}
	}
	return jsonResult(map[string]int{"selected": d.session.State().Selected})
}
