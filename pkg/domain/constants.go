package domain

// End is the terminal cursor. A thread whose cursor is End has no more steps to run.
const End = "__end__"

// NoResponse is returned by the facade when a thread has not produced a final response yet.
const NoResponse = "N/A"

// Field names used by the human review workflow.
const (
	FieldQuery            = "query"
	FieldProposedResponse = "proposed_response"
	FieldHumanInput       = "human_input"
	FieldFinalResponse    = "final_response"
	FieldMessages         = "messages"
)

// Message roles recorded in the transcript.
const (
	RoleUser   = "user"
	RoleAI     = "ai"
	RoleHuman  = "human"
	RoleSystem = "system"
)
