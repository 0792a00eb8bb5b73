package encoding

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"kinescope/internal/compression"
	"kinescope/internal/framepool"
)

var commandContext = exec.CommandContext

// FFmpegOption configures the ffmpeg encoder.
type FFmpegOption func(*FFmpeg)

// WithBinary overrides the ffmpeg binary name.
func WithBinary(binary string) FFmpegOption {
	return func(f *FFmpeg) {
		if binary != "" {
			f.binary = binary
		}
	}
}

// WithFramerate sets the input framerate in frames per second.
func WithFramerate(fps int) FFmpegOption {
	return func(f *FFmpeg) {
		if fps > 0 {
			f.framerate = fps
		}
	}
}

// FFmpeg encodes captured frames into video chunks by streaming the image
// payloads through an ffmpeg image2pipe input.
type FFmpeg struct {
	binary    string
	framerate int
}

// NewFFmpeg constructs an encoder using defaults (ffmpeg on PATH, 1 fps).
func NewFFmpeg(opts ...FFmpegOption) *FFmpeg {
	f := &FFmpeg{binary: "ffmpeg", framerate: 1}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Encode streams frames into ffmpeg until the channel closes, then waits for
// the chunk file at outPath to be finalized.
func (f *FFmpeg) Encode(ctx context.Context, settings compression.Settings, outPath string, frames <-chan framepool.Frame) (Result, error) {
	cmd := commandContext(ctx, f.binary, f.buildArgs(settings, outPath)...) //nolint:gosec
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stdin pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		drain(frames)
		if errors.Is(err, exec.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: %q not found", ErrEncoderUnavailable, f.binary)
		}
		return Result{}, fmt.Errorf("start %s: %w", f.binary, err)
	}

	var (
		count       int
		first, last framepool.Frame
		writeErr    error
	)
	for frame := range frames {
		// Keep draining after a write failure so the producer never blocks.
		if writeErr != nil {
			continue
		}
		if count == 0 {
			first = frame
		}
		last = frame
		if _, err := stdin.Write(frame.Payload); err != nil {
			writeErr = err
			continue
		}
		count++
	}
	_ = stdin.Close()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	if waitErr != nil {
		return Result{}, fmt.Errorf("%w: %w: %s", ErrEncodeInterrupted, waitErr, strings.TrimSpace(stderr.String()))
	}
	if writeErr != nil {
		return Result{}, fmt.Errorf("%w: write frames: %w", ErrEncodeInterrupted, writeErr)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return Result{}, fmt.Errorf("%w: stat chunk: %w", ErrEncodeInterrupted, err)
	}
	result := Result{
		FilePath:   outPath,
		SizeBytes:  info.Size(),
		FrameCount: count,
	}
	if count > 0 {
		result.Duration = last.CapturedAt.Sub(first.CapturedAt)
	}
	return result, nil
}

func (f *FFmpeg) buildArgs(settings compression.Settings, outPath string) []string {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "image2pipe",
		"-framerate", strconv.Itoa(f.framerate),
		"-i", "-",
		"-c:v", codecEncoder(settings.Codec),
		"-b:v", fmt.Sprintf("%dk", settings.EffectiveBitrateKbps()),
	}
	if settings.KeyframeInterval > 0 {
		args = append(args, "-g", strconv.Itoa(settings.KeyframeInterval))
	}
	if settings.Width > 0 && settings.Height > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", settings.Width, settings.Height))
	}
	return append(args, outPath)
}

func codecEncoder(codec string) string {
	switch strings.ToLower(strings.TrimSpace(codec)) {
	case "", "h264":
		return "libx264"
	case "h265", "hevc":
		return "libx265"
	case "vp8":
		return "libvpx"
	case "vp9":
		return "libvpx-vp9"
	case "av1":
		return "libaom-av1"
	default:
		return codec
	}
}

func drain(frames <-chan framepool.Frame) {
	for range frames {
	}
}

var _ Encoder = (*FFmpeg)(nil)
