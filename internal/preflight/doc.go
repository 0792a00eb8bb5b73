// Package preflight provides readiness checks for the filesystem paths and
// capture permission recording depends on.
//
// These checks run in two contexts:
//   - The recorder calls Gate before leaving the starting phase. If any
//     check fails, recording never begins instead of dying mid-chunk.
//   - The CLI status command uses the individual check functions to display
//     environment health.
package preflight
