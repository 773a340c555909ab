/*
Package observability turns engine lifecycle events into Prometheus metrics
and structured log records.

Both helpers return domain.LifecycleHooks, so they can be combined with each
other and with application hooks through domain.Combine.
*/
package observability
