package daemon

import (
	"strings"

	"kinescope/internal/capture"
	"kinescope/internal/config"
	"kinescope/internal/encoding"
)

// DefaultSource builds the exec-backed capture source, honoring a custom
// grab command from configuration.
func DefaultSource(cfg *config.Config) capture.Source {
	if cfg != nil {
		if fields := strings.Fields(cfg.Capture.GrabCommand); len(fields) > 0 {
			return capture.NewGrabber(capture.WithBinary(fields[0], fields[1:]...))
		}
	}
	return capture.NewGrabber()
}

// DefaultEncoder builds the ffmpeg encoder, deriving the input framerate
// from the configured capture interval.
func DefaultEncoder(cfg *config.Config) encoding.Encoder {
	var opts []encoding.FFmpegOption
	if cfg != nil {
		if cfg.Capture.FFmpegBinary != "" {
			opts = append(opts, encoding.WithBinary(cfg.Capture.FFmpegBinary))
		}
		if fps := framerateFor(cfg.Capture.FrameIntervalMS); fps > 0 {
			opts = append(opts, encoding.WithFramerate(fps))
		}
	}
	return encoding.NewFFmpeg(opts...)
}

// framerateFor floors at one frame per second for slow capture intervals.
func framerateFor(frameIntervalMS int) int {
	if frameIntervalMS <= 0 {
		return 0
	}
	fps := 1000 / frameIntervalMS
	if fps < 1 {
		return 1
	}
	return fps
}
