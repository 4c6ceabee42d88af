package api

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/versekeeper/versekeeper/internal/scheduler"
	"github.com/versekeeper/versekeeper/internal/storage"
)

func newTestMCPDeps(t *testing.T) MCPDeps {
	t.Helper()
	fs := storage.NewFileStore(filepath.Join(t.TempDir(), "versekeeper.json"))
	require.NoError(t, fs.Load())
	svc := scheduler.New(fs, zap.NewNop(), scheduler.WithClock(func() time.Time { return testNow }))
	return MCPDeps{Service: svc, Owner: "local"}
}

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func toolText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return tc.Text
}

func TestMCPCreateAndReview(t *testing.T) {
	deps := newTestMCPDeps(t)
	ctx := context.Background()

	res, err := mcpCreateVerse(deps)(ctx, makeCallToolRequest("create_verse", map[string]any{
		"reference": "Romans 8:28",
		"text":      "And we know that in all things...",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, toolText(t, res))

	var verse storage.MemoryVerse
	require.NoError(t, json.Unmarshal([]byte(toolText(t, res)), &verse))
	assert.Equal(t, "Romans 8:28", verse.Reference)

	res, err = mcpSubmitReview(deps)(ctx, makeCallToolRequest("submit_review", map[string]any{
		"verse_id": verse.ID,
		"quality":  float64(5),
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, toolText(t, res))

	var review scheduler.ReviewResult
	require.NoError(t, json.Unmarshal([]byte(toolText(t, res)), &review))
	assert.Equal(t, 1, review.Verse.Repetitions)
}

func TestMCPGetDueVerse(t *testing.T) {
	deps := newTestMCPDeps(t)
	ctx := context.Background()

	// Empty deck reads as prose, not an error.
	res, err := mcpGetDueVerse(deps)(ctx, makeCallToolRequest("get_due_verse", nil))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, toolText(t, res), "No verses")

	_, err = deps.Service.CreateVerse(ctx, deps.Owner, "John 11:35", "Jesus wept.", "en")
	require.NoError(t, err)

	res, err = mcpGetDueVerse(deps)(ctx, makeCallToolRequest("get_due_verse", nil))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var payload struct {
		Verse storage.MemoryVerse  `json:"verse"`
		Stats scheduler.Statistics `json:"statistics"`
	}
	require.NoError(t, json.Unmarshal([]byte(toolText(t, res)), &payload))
	assert.Equal(t, "John 11:35", payload.Verse.Reference)
	assert.Equal(t, 1, payload.Stats.Due)
}

func TestMCPUpdateStreak(t *testing.T) {
	deps := newTestMCPDeps(t)

	res, err := mcpUpdateStreak(deps)(context.Background(), makeCallToolRequest("update_streak", nil))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var streakRes scheduler.StreakResult
	require.NoError(t, json.Unmarshal([]byte(toolText(t, res)), &streakRes))
	assert.Equal(t, 1, streakRes.Record.CurrentStreak)
}

func TestMCPMissingArguments(t *testing.T) {
	deps := newTestMCPDeps(t)
	ctx := context.Background()

	res, err := mcpSubmitReview(deps)(ctx, makeCallToolRequest("submit_review", nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = mcpCreateVerse(deps)(ctx, makeCallToolRequest("create_verse", map[string]any{"reference": "Ref"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
