package queue

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/adlens/adlens/kit"
)

// RegisterMCP registers job management tools on an MCP server.
func (q *Queue) RegisterMCP(srv *mcp.Server) {
	q.registerStartTool(srv)
	q.registerStatusTool(srv)
	q.registerCancelTool(srv)
}

// --- start ---

type startReq struct {
	URL      string `json:"url"`
	Customer string `json:"customer,omitempty"`
	Priority string `json:"priority,omitempty"`
}

func (q *Queue) registerStartTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "adlens_job_start",
		Description: "Start an asynchronous intelligence collection job. Returns the job ID to poll.",
		InputSchema: kit.InputSchema(map[string]any{
			"url":      map[string]any{"type": "string", "description": "Business URL or description to analyze"},
			"customer": map[string]any{"type": "string", "description": "Customer identifier for notifications"},
			"priority": map[string]any{"type": "string", "enum": []string{"instant", "standard", "deep"}, "description": "Scheduling tier, default standard"},
		}, []string{"url"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*startReq)
		prio, err := ParsePriority(r.Priority)
		if err != nil {
			return nil, err
		}
		return q.Enqueue(r.URL, r.Customer, prio)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r startReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- status ---

type statusReq struct {
	ID string `json:"id"`
}

func (q *Queue) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "adlens_job_status",
		Description: "Get a collection job's status, progress and any completed result.",
		InputSchema: kit.InputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Job ID"},
		}, []string{"id"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*statusReq)
		return q.GetStatus(r.ID)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r statusReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- cancel ---

func (q *Queue) registerCancelTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "adlens_job_cancel",
		Description: "Cancel a queued or running collection job.",
		InputSchema: kit.InputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Job ID"},
		}, []string{"id"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*statusReq)
		if err := q.Cancel(r.ID); err != nil {
			return nil, err
		}
		return q.GetStatus(r.ID)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r statusReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
