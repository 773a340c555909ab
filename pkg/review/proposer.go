package review

import (
	"context"
	"fmt"

	"github.com/aretw0/waypoint/pkg/domain"
)

// Proposer drafts a response to a query.
// The transcript holds every message recorded on the thread so far.
type Proposer interface {
	Propose(ctx context.Context, query string, transcript []domain.Message) (string, error)
}

// ProposerFunc adapts a function to the Proposer interface.
type ProposerFunc func(ctx context.Context, query string, transcript []domain.Message) (string, error)

// Propose calls f.
func (f ProposerFunc) Propose(ctx context.Context, query string, transcript []domain.Message) (string, error) {
	return f(ctx, query, transcript)
}

// StubProposer returns a fixed draft that quotes the query.
type StubProposer struct{}

// Propose implements Proposer.
func (StubProposer) Propose(_ context.Context, query string, _ []domain.Message) (string, error) {
	return fmt.Sprintf("Agent's initial response to '%s': This is a draft response. Please review and provide feedback.", query), nil
}
