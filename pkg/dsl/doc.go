/*
Package dsl provides a fluent builder for Waypoint graphs.

Example usage:

	g, err := dsl.New().
		Add("start").Do(start).
		Add("agent").Do(agent).
		Add("finalize").Do(finalize).InterruptBefore().
		Build()
*/
package dsl
