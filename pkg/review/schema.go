package review

import "github.com/aretw0/waypoint/pkg/domain"

// Step names.
const (
	StepStart    = "start"
	StepAgent    = "agent"
	StepFinalize = "finalize"
)

const (
	// InterventionNotice is recorded after the proposal to flag the pending review.
	InterventionNotice = "HUMAN INTERVENTION REQUIRED: Please review the proposed response and provide your feedback or modifications."
	// EmptyResponse is the final response when neither a human nor the agent produced one.
	EmptyResponse = "No response generated"
)

// Schema returns the field layout of review threads.
func Schema() *domain.Schema {
	return domain.MustSchema(
		domain.Field{Name: domain.FieldQuery, Policy: domain.Replace},
		domain.Field{Name: domain.FieldProposedResponse, Policy: domain.Replace},
		domain.Field{Name: domain.FieldHumanInput, Policy: domain.Append},
		domain.Field{Name: domain.FieldFinalResponse, Policy: domain.Replace},
		domain.Field{Name: domain.FieldMessages, Policy: domain.Append},
	)
}
