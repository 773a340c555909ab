/*
Package session implements thread management and persistence orchestration.

The Manager is the only way the engine touches checkpoints. It serializes access per
thread ID with reference-counted in-process locks, optionally backed by a distributed
lock for multiple replicas, and applies the schema's merge policies on Merge.
*/
package session
