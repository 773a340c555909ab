package review_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/waypoint/internal/runtime"
	"github.com/aretw0/waypoint/pkg/adapters/memory"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/review"
	"github.com/aretw0/waypoint/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, p review.Proposer) *runtime.Engine {
	t.Helper()
	g, err := review.Graph(p)
	require.NoError(t, err)
	return runtime.NewEngine(g, session.NewManager(memory.NewStore(), review.Schema()))
}

func TestGraph_Shape(t *testing.T) {
	g, err := review.Graph(nil)
	require.NoError(t, err)

	assert.Equal(t, []string{review.StepStart, review.StepAgent, review.StepFinalize}, g.Names())
	assert.Equal(t, review.StepStart, g.Entry())
	assert.True(t, g.IsInterrupt(review.StepFinalize))
	assert.False(t, g.IsInterrupt(review.StepAgent))
}

func TestStubProposer(t *testing.T) {
	got, err := review.StubProposer{}.Propose(context.Background(), "Hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "Agent's initial response to 'Hello': This is a draft response. Please review and provide feedback.", got)
}

func TestReview_ProposalThenHumanInput(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()
	_, err := e.Start(ctx, "t1", domain.Update{domain.FieldQuery: "Hello"})
	require.NoError(t, err)

	cp, err := e.Advance(ctx, "t1", nil)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSuspended, cp.Status)
	assert.Contains(t, cp.State.String(domain.FieldProposedResponse), "Hello")
	assert.Empty(t, cp.State[domain.FieldHumanInput])
	assert.Empty(t, cp.State.String(domain.FieldFinalResponse))

	msgs, err := cp.State.Messages(domain.FieldMessages)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, domain.NewMessage(domain.RoleUser, "Hello"), msgs[0])
	assert.Equal(t, domain.RoleAI, msgs[1].Role)
	assert.Equal(t, domain.NewMessage(domain.RoleSystem, review.InterventionNotice), msgs[2])

	cp, err = e.Advance(ctx, "t1", domain.Update{
		domain.FieldHumanInput: []string{"Use this instead"},
		domain.FieldMessages:   []domain.Message{domain.NewMessage(domain.RoleHuman, "Use this instead")},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTerminal, cp.Status)
	assert.Equal(t, "Use this instead", cp.State.String(domain.FieldFinalResponse))

	msgs, err = cp.State.Messages(domain.FieldMessages)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	assert.Equal(t, domain.NewMessage(domain.RoleHuman, "Use this instead"), msgs[3])
	assert.Equal(t, domain.NewMessage(domain.RoleSystem, "Final Response: Use this instead"), msgs[4])
}

func TestReview_ResumeWithoutInputUsesProposal(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()
	_, err := e.Start(ctx, "t1", domain.Update{domain.FieldQuery: "Hi"})
	require.NoError(t, err)
	first, err := e.Advance(ctx, "t1", nil)
	require.NoError(t, err)

	cp, err := e.Advance(ctx, "t1", nil)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusTerminal, cp.Status)
	assert.Equal(t, first.State.String(domain.FieldProposedResponse), cp.State.String(domain.FieldFinalResponse))
}

func TestReview_EmptyProposal(t *testing.T) {
	silent := review.ProposerFunc(func(context.Context, string, []domain.Message) (string, error) {
		return "", nil
	})
	e := newEngine(t, silent)
	ctx := context.Background()
	_, err := e.Start(ctx, "t1", domain.Update{domain.FieldQuery: "Hi"})
	require.NoError(t, err)
	_, err = e.Advance(ctx, "t1", nil)
	require.NoError(t, err)

	cp, err := e.Advance(ctx, "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, review.EmptyResponse, cp.State.String(domain.FieldFinalResponse))
}

func TestReview_ProposerSeesTranscript(t *testing.T) {
	var seen []domain.Message
	p := review.ProposerFunc(func(_ context.Context, query string, transcript []domain.Message) (string, error) {
		seen = transcript
		return "echo " + query, nil
	})
	e := newEngine(t, p)
	ctx := context.Background()
	_, err := e.Start(ctx, "t1", domain.Update{domain.FieldQuery: "ping"})
	require.NoError(t, err)

	cp, err := e.Advance(ctx, "t1", nil)
	require.NoError(t, err)

	assert.Equal(t, []domain.Message{domain.NewMessage(domain.RoleUser, "ping")}, seen)
	assert.Equal(t, "echo ping", cp.State.String(domain.FieldProposedResponse))
}

func TestReview_ProposerFailureIsStepError(t *testing.T) {
	p := review.ProposerFunc(func(context.Context, string, []domain.Message) (string, error) {
		return "", errors.New("rate limited")
	})
	e := newEngine(t, p)
	ctx := context.Background()
	_, err := e.Start(ctx, "t1", domain.Update{domain.FieldQuery: "ping"})
	require.NoError(t, err)

	cp, err := e.Advance(ctx, "t1", nil)

	var stepErr *domain.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, review.StepAgent, stepErr.Step)
	assert.Equal(t, review.StepAgent, cp.Cursor)
}
