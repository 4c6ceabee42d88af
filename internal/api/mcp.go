package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/versekeeper/versekeeper/internal/scheduler"
	"github.com/versekeeper/versekeeper/internal/sm2"
)

// MCPDeps holds dependencies for the MCP server. Owner is the single owner
// id the stdio session acts as.
type MCPDeps struct {
	Service *scheduler.Service
	Owner   string
}

// NewMCPServer creates an MCP server exposing the review workflow as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"versekeeper",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("versekeeper schedules scripture memorization reviews with spaced repetition. Call get_due_verse, quiz the user, then submit_review with a 0-5 recall quality."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("get_due_verse",
			mcp.WithDescription("Return the most overdue verse along with deck statistics."),
			mcp.WithString("language", mcp.Description("Optional ISO language filter")),
		),
		mcpGetDueVerse(deps),
	)

	s.AddTool(
		mcp.NewTool("submit_review",
			mcp.WithDescription("Grade a recall attempt for a verse. Quality 0-2 means the recall failed, 3-5 that it succeeded."),
			mcp.WithString("verse_id", mcp.Description("ID of the reviewed verse"), mcp.Required()),
			mcp.WithNumber("quality", mcp.Description("Recall quality from 0 (blackout) to 5 (perfect)"), mcp.Required()),
			mcp.WithNumber("time_spent_seconds", mcp.Description("Seconds spent on the attempt")),
		),
		mcpSubmitReview(deps),
	)

	s.AddTool(
		mcp.NewTool("update_streak",
			mcp.WithDescription("Record that the user practiced today and return the streak state."),
		),
		mcpUpdateStreak(deps),
	)

	s.AddTool(
		mcp.NewTool("create_verse",
			mcp.WithDescription("Add a verse to the memorization deck."),
			mcp.WithString("reference", mcp.Description("Scripture reference, e.g. \"John 3:16\""), mcp.Required()),
			mcp.WithString("text", mcp.Description("Full verse text"), mcp.Required()),
			mcp.WithString("language", mcp.Description("ISO language code, defaults to en")),
		),
		mcpCreateVerse(deps),
	)

	return s
}

func mcpGetDueVerse(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := deps.Service.DueVerses(ctx, deps.Owner, scheduler.DueFilters{
			Limit:    1,
			Language: req.GetString("language", ""),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to fetch due verses: %v", err)), nil
		}
		if len(res.Verses) == 0 {
			return mcpText("No verses are due for review right now."), nil
		}
		return mcpJSON(map[string]any{
			"verse":      res.Verses[0],
			"statistics": res.Stats,
		})
	}
}

func mcpSubmitReview(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		verseID, err := req.RequireString("verse_id")
		if err != nil {
			return mcpError("verse_id is required"), nil
		}
		quality, err := req.RequireInt("quality")
		if err != nil {
			return mcpError("quality is required and must be a number"), nil
		}

		res, err := deps.Service.SubmitReview(ctx, deps.Owner, verseID, sm2.Quality(quality), req.GetInt("time_spent_seconds", 0))
		if err != nil {
			return mcpError(fmt.Sprintf("review failed: %v", err)), nil
		}
		return mcpJSON(res)
	}
}

func mcpUpdateStreak(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := deps.Service.UpdateStreak(ctx, deps.Owner)
		if err != nil {
			return mcpError(fmt.Sprintf("streak update failed: %v", err)), nil
		}
		return mcpJSON(res)
	}
}

func mcpCreateVerse(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reference, err := req.RequireString("reference")
		if err != nil {
			return mcpError("reference is required"), nil
		}
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		verse, err := deps.Service.CreateVerse(ctx, deps.Owner, reference, text, req.GetString("language", ""))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to create verse: %v", err)), nil
		}
		return mcpJSON(verse)
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcpText(string(b)), nil
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
