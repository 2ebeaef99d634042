package intel

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/adlens/adlens/kit"
)

// RegisterMCP registers intelligence tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerIntelligenceTool(srv)
	s.registerStatsTool(srv)
}

// --- intelligence ---

type intelligenceReq struct {
	URL          string `json:"url"`
	ForceRefresh bool   `json:"force_refresh,omitempty"`
	QuickScan    bool   `json:"quick_scan,omitempty"`
}

func (s *Service) registerIntelligenceTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "adlens_intelligence",
		Description: "Get competitive ad intelligence for a business URL or description. Serves cached data when fresh, otherwise collects live.",
		InputSchema: kit.InputSchema(map[string]any{
			"url":           map[string]any{"type": "string", "description": "Business URL or text description to analyze"},
			"force_refresh": map[string]any{"type": "boolean", "description": "Bypass the cache and recollect"},
			"quick_scan":    map[string]any{"type": "boolean", "description": "Search only the primary keyword"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*intelligenceReq)
		return s.GetOrCreate(ctx, r.URL, Options{
			ForceRefresh: r.ForceRefresh,
			QuickScan:    r.QuickScan,
		})
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r intelligenceReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- stats ---

func (s *Service) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "adlens_stats",
		Description: "Cache statistics: niches tracked, total ads collected, data age bounds.",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return s.Stats(ctx)
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
