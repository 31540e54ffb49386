package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/voicecrm/internal/crm"
	"github.com/kalambet/voicecrm/internal/extract"
	"github.com/kalambet/voicecrm/internal/storage"
)

const (
	defaultListLimit = 20
	recentLimit      = 10
	summaryPreview   = 200
)

// MCPExtractor abstracts transcript extraction for the MCP layer.
type MCPExtractor interface {
	Extract(ctx context.Context, transcript string) (extract.Result, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     *storage.Store
	Extractor MCPExtractor
}

// NewMCPServer creates an MCP server with the CRM tools and resources registered.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"voicecrm",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("voicecrm: extract customer details from call transcripts and manage saved CRM interactions."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("extract_crm_data",
			mcp.WithDescription("Extract customer and interaction fields from a call transcript. Nothing is saved."),
			mcp.WithString("transcript", mcp.Description("Transcript text"), mcp.Required()),
		),
		mcpExtract(deps),
	)

	s.AddTool(
		mcp.NewTool("list_history",
			mcp.WithDescription("List saved interactions, most recent first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 20)")),
		),
		mcpListHistory(deps),
	)

	s.AddTool(
		mcp.NewTool("save_interaction",
			mcp.WithDescription("Save an interaction record. Same body as POST /history."),
			mcp.WithString("record", mcp.Description(`JSON object {"customer":{...},"interaction":{...},"transcript":"..."}`), mcp.Required()),
		),
		mcpSaveInteraction(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_history",
			mcp.WithDescription("Delete a saved interaction by id."),
			mcp.WithString("record_id", mcp.Description("Record id, e.g. db-12"), mcp.Required()),
		),
		mcpDeleteHistory(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"crm://history/recent",
			"Recent Interactions",
			mcp.WithResourceDescription("Last 10 saved interactions (name, city and summary only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpExtract(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		transcript, err := req.RequireString("transcript")
		if err != nil {
			return mcpError("transcript is required"), nil
		}
		if deps.Extractor == nil {
			return mcpError("extraction is not configured"), nil
		}

		res, err := deps.Extractor.Extract(ctx, transcript)
		if err != nil {
			return mcpError(fmt.Sprintf("extraction failed: %v", err)), nil
		}

		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", defaultListLimit)
		if limit <= 0 {
			limit = defaultListLimit
		}

		recs, err := deps.Store.ListInteractions(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list history: %v", err)), nil
		}
		if len(recs) > limit {
			recs = recs[:limit]
		}
		entries, err := crm.ToHistory(recs)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal history: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSaveInteraction(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("record")
		if err != nil {
			return mcpError("record is required"), nil
		}

		p, err := crm.ParsePayload([]byte(raw))
		if err != nil {
			return mcpError(err.Error()), nil
		}
		rec, err := crm.NewInteraction(p)
		if err != nil {
			return mcpError(fmt.Sprintf("building record: %v", err)), nil
		}
		if err := deps.Store.CreateInteraction(ctx, &rec); err != nil {
			return mcpError(fmt.Sprintf("failed to save: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Saved interaction %s", crm.TagID(rec.ID))), nil
	}
}

func mcpDeleteHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("record_id")
		if err != nil {
			return mcpError("record_id is required"), nil
		}
		id, err := crm.ParseTaggedID(raw)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		err = deps.Store.DeleteInteraction(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError("Record not found"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to delete: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Deleted interaction %s", crm.TagID(id))), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		recs, err := deps.Store.ListInteractions(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list interactions: %w", err)
		}
		if len(recs) > recentLimit {
			recs = recs[:recentLimit]
		}

		type interactionSummary struct {
			ID           string  `json:"id"`
			CreatedAt    string  `json:"created_at"`
			CustomerName *string `json:"customer_name"`
			City         *string `json:"city"`
			Summary      string  `json:"summary"`
		}

		summaries := make([]interactionSummary, len(recs))
		for i, rec := range recs {
			var summary string
			if rec.Summary != nil {
				summary = *rec.Summary
			}
			if utf8.RuneCountInString(summary) > summaryPreview {
				runes := []rune(summary)
				summary = string(runes[:summaryPreview]) + "..."
			}
			summaries[i] = interactionSummary{
				ID:           crm.TagID(rec.ID),
				CreatedAt:    rec.CreatedAt.UTC().Format(time.RFC3339),
				CustomerName: rec.CustomerName,
				City:         rec.City,
				Summary:      summary,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal interactions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
