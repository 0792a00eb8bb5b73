// Package memmon samples system memory pressure on a timer, keeps a bounded
// history of snapshots, and raises debounced alerts for threshold breaches
// and sustained growth patterns that look like leaks. It reads diagnostics
// from its collaborators but never blocks the capture or persistence paths.
package memmon
