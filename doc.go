/*
Package waypoint runs resumable, checkpointed workflows that pause for human review.

A workflow is a graph of named steps. Each step reads the thread state and
returns a partial update, which is merged field by field according to the
schema's merge policy (replace or append). After every step the thread is
checkpointed, so a failed step can be retried and a process restart loses
nothing beyond the in-flight step when a durable store is used.

Steps can be marked as interrupt targets. Execution suspends right before such
a step and resumes only when the thread is advanced again, typically with input
from a person.

# Review workflow

The Workflow type wires this engine to a three step review flow:

	start -> agent -> [suspend] -> finalize

The agent drafts a response to the query, the thread suspends, and a reviewer
either accepts the draft or supplies a replacement.

	w, err := waypoint.New()
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	res, err := w.Run(ctx, waypoint.RunRequest{Query: "Hello"})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(res.Status, res.ProposedResponse) // suspended, draft

	res, err = w.Run(ctx, waypoint.RunRequest{ThreadID: res.ThreadID, HumanInput: "Use this instead"})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(res.Response) // Use this instead

# Storage

Checkpoints live in memory by default. The pkg/adapters/file and
pkg/adapters/redis packages provide durable stores, and
pkg/persistence/middleware adds encryption at rest to any of them.
*/
package waypoint
