package preflight

import (
	"context"
	"errors"

	"kinescope/internal/capture"
	"kinescope/internal/config"
	"kinescope/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for the given config. A nil source
// skips the capture permission check.
func RunAll(ctx context.Context, cfg *config.Config, source capture.Source) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Chunk directory", cfg.Paths.ChunkDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDiskSpace("Disk space", cfg.Paths.ChunkDir, cfg.Capture.MinFreeDiskGB),
	}
	if source != nil {
		results = append(results, CheckCapturePermission(source))
	}
	return results
}

// Gate wraps RunAll into the pass/fail form the recorder consumes before it
// leaves the starting phase.
func Gate(cfg *config.Config, source capture.Source) func(context.Context) error {
	return func(ctx context.Context) error {
		var failures []string
		for _, result := range RunAll(ctx, cfg, source) {
			if !result.Passed {
				failures = append(failures, result.Name+": "+result.Detail)
			}
		}
		if len(failures) == 0 {
			return nil
		}
		return services.Wrap(services.ErrResource, "preflight", "run checks", joinFailures(failures), errors.New("preflight checks failed"))
	}
}

func joinFailures(failures []string) string {
	out := failures[0]
	for _, failure := range failures[1:] {
		out += "; " + failure
	}
	return out
}
