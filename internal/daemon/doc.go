// Package daemon assembles and supervises the long-running recording
// service. It owns the dependency graph (store, frame pool, memory monitor,
// recording coordinator), enforces single-instance execution with a file
// lock, schedules retention cleanup, and serves read-only runtime state over
// a token-guarded, rate-limited HTTP API.
package daemon
