package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/aretw0/waypoint"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/review"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (*Server, *waypoint.Workflow) {
	t.Helper()
	wf, err := waypoint.New()
	require.NoError(t, err)
	return NewServer(wf, nil), wf
}

func TestProcessQuery_SuspendThenResume(t *testing.T) {
	s, _ := newServer(t)
	ctx := context.Background()

	first, err := s.handleProcessQuery(ctx, mcp.CallToolRequest{}, map[string]interface{}{"query": "Hello"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuspended, first.Status)
	assert.Equal(t, domain.NoResponse, first.Response)
	assert.Contains(t, first.ProposedResponse, "Hello")
	assert.Equal(t, "finalize", first.Cursor)

	done, err := s.handleProcessQuery(ctx, mcp.CallToolRequest{}, map[string]interface{}{
		"thread_id":   first.ThreadID,
		"human_input": "Use this instead",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTerminal, done.Status)
	assert.Equal(t, "Use this instead", done.Response)
	assert.Equal(t, []string{"start", "agent", "finalize"}, done.History)
}

func TestProcessQuery_RequiresQueryOrThread(t *testing.T) {
	s, _ := newServer(t)

	_, err := s.handleProcessQuery(context.Background(), mcp.CallToolRequest{}, map[string]interface{}{})
	assert.ErrorContains(t, err, "query is required")
}

func TestProcessQuery_StepFailureNamesThread(t *testing.T) {
	var calls atomic.Int32
	proposer := review.ProposerFunc(func(_ context.Context, query string, _ []domain.Message) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("model unavailable")
		}
		return "draft: " + query, nil
	})
	wf, err := waypoint.New(waypoint.WithProposer(proposer), waypoint.WithIDGenerator(func() string { return "t-42" }))
	require.NoError(t, err)
	s := NewServer(wf, nil)
	ctx := context.Background()

	_, err = s.handleProcessQuery(ctx, mcp.CallToolRequest{}, map[string]interface{}{"query": "Hello"})
	require.ErrorIs(t, err, domain.ErrStepFailed)
	assert.ErrorContains(t, err, "thread_id t-42")

	retried, err := s.handleProcessQuery(ctx, mcp.CallToolRequest{}, map[string]interface{}{"thread_id": "t-42"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuspended, retried.Status)
	assert.Equal(t, "draft: Hello", retried.ProposedResponse)
}

func TestGetThread(t *testing.T) {
	s, wf := newServer(t)
	ctx := context.Background()
	_, err := wf.Run(ctx, waypoint.RunRequest{Query: "Hello", ThreadID: "t-1"})
	require.NoError(t, err)

	got, err := s.handleGetThread(ctx, mcp.CallToolRequest{}, map[string]interface{}{"thread_id": "t-1"})
	require.NoError(t, err)
	assert.Equal(t, "t-1", got.ThreadID)
	assert.Equal(t, domain.StatusSuspended, got.Status)

	_, err = s.handleGetThread(ctx, mcp.CallToolRequest{}, map[string]interface{}{"thread_id": "ghost"})
	assert.ErrorIs(t, err, domain.ErrThreadNotFound)
}

func TestToolsAreListed(t *testing.T) {
	s, _ := newServer(t)

	msg := s.MCPServer().HandleMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`,
	))
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	out := string(raw)
	assert.Contains(t, out, `"process_query"`)
	assert.Contains(t, out, `"get_thread"`)
	assert.Contains(t, out, `"get_graph"`)
}
