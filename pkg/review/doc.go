// Package review defines the human review workflow.
//
// A query enters at "start", an agent drafts a proposal in "agent", and the
// thread suspends before "finalize" so a human can approve the proposal or
// supply a replacement. The final response is the last human input if there is
// one, otherwise the proposal.
package review
