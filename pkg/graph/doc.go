/*
Package graph defines the immutable step graph driven by the execution engine.

A Graph is built once with Define, validated eagerly, and then only read. Steps run in
definition order unless WithSuccessor installs a branching successor. Steps flagged as
interrupt targets make the engine pause right before them.
*/
package graph
