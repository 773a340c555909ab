package review

import (
	"context"
	"fmt"

	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/dsl"
	"github.com/aretw0/waypoint/pkg/graph"
)

// Graph builds start -> agent -> finalize with an interrupt before finalize.
// A nil proposer falls back to StubProposer.
func Graph(p Proposer) (*graph.Graph, error) {
	if p == nil {
		p = StubProposer{}
	}
	return dsl.New().
		Add(StepStart).Do(start).
		Add(StepAgent).Do(agent(p)).
		Add(StepFinalize).Do(finalize).InterruptBefore().
		Build()
}

func start(_ context.Context, s domain.State) (domain.Update, error) {
	return domain.Update{
		domain.FieldMessages: domain.NewMessage(domain.RoleUser, s.String(domain.FieldQuery)),
	}, nil
}

func agent(p Proposer) graph.StepFunc {
	return func(ctx context.Context, s domain.State) (domain.Update, error) {
		transcript, err := s.Messages(domain.FieldMessages)
		if err != nil {
			return nil, err
		}
		proposal, err := p.Propose(ctx, s.String(domain.FieldQuery), transcript)
		if err != nil {
			return nil, fmt.Errorf("proposer: %w", err)
		}
		return domain.Update{
			domain.FieldProposedResponse: proposal,
			domain.FieldMessages: []domain.Message{
				domain.NewMessage(domain.RoleAI, proposal),
				domain.NewMessage(domain.RoleSystem, InterventionNotice),
			},
		}, nil
	}
}

func finalize(_ context.Context, s domain.State) (domain.Update, error) {
	inputs, err := s.Strings(domain.FieldHumanInput)
	if err != nil {
		return nil, err
	}

	final := s.String(domain.FieldProposedResponse)
	if n := len(inputs); n > 0 {
		final = inputs[n-1]
	}
	if final == "" {
		final = EmptyResponse
	}

	return domain.Update{
		domain.FieldFinalResponse: final,
		domain.FieldMessages:      domain.NewMessage(domain.RoleSystem, "Final Response: "+final),
	}, nil
}
