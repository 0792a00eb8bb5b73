package encoding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kinescope/internal/compression"
	"kinescope/internal/framepool"
)

func stubFFmpegCommand(t *testing.T, mode string) *[]string {
	t.Helper()

	var captured []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		captured = append([]string(nil), args...)
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		outPath := ""
		if len(args) > 0 {
			outPath = args[len(args)-1]
		}
		cmd.Env = append(os.Environ(),
			"GO_WANT_HELPER_PROCESS=1",
			"FFMPEG_HELPER_MODE="+mode,
			"FFMPEG_HELPER_OUT="+outPath,
		)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
	return &captured
}

func testSettings() compression.Settings {
	return compression.Settings{
		Width:            1920,
		Height:           1080,
		Codec:            "vp9",
		BaseBitrateKbps:  2000,
		Multiplier:       0.5,
		KeyframeInterval: 60,
	}
}

func sendFrames(payloads ...string) <-chan framepool.Frame {
	ch := make(chan framepool.Frame, len(payloads))
	base := time.Now()
	for i, payload := range payloads {
		ch <- framepool.Frame{Payload: []byte(payload), CapturedAt: base.Add(time.Duration(i) * time.Second)}
	}
	close(ch)
	return ch
}

func TestFFmpegBuildArgs(t *testing.T) {
	f := NewFFmpeg(WithFramerate(2))
	args := f.buildArgs(testSettings(), "/tmp/out.webm")
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"-f image2pipe",
		"-framerate 2",
		"-c:v libvpx-vp9",
		"-b:v 1000k",
		"-g 60",
		"-vf scale=1920:1080",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected args to contain %q, got %v", want, args)
		}
	}
	if args[len(args)-1] != "/tmp/out.webm" {
		t.Fatalf("expected output path as final argument, got %v", args)
	}
}

func TestCodecEncoderMapping(t *testing.T) {
	cases := map[string]string{
		"":      "libx264",
		"h264":  "libx264",
		"HEVC":  "libx265",
		"vp8":   "libvpx",
		"vp9":   "libvpx-vp9",
		"av1":   "libaom-av1",
		"mjpeg": "mjpeg",
	}
	for codec, want := range cases {
		if got := codecEncoder(codec); got != want {
			t.Fatalf("codecEncoder(%q) = %q, want %q", codec, got, want)
		}
	}
}

func TestFFmpegEncodeSuccess(t *testing.T) {
	stubFFmpegCommand(t, "success")

	outPath := filepath.Join(t.TempDir(), "chunk.webm")
	f := NewFFmpeg()
	result, err := f.Encode(context.Background(), testSettings(), outPath, sendFrames("aaa", "bbbb", "cc"))
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if result.FrameCount != 3 {
		t.Fatalf("expected 3 frames, got %d", result.FrameCount)
	}
	if result.FilePath != outPath {
		t.Fatalf("expected file path %q, got %q", outPath, result.FilePath)
	}
	if result.SizeBytes != int64(len("aaabbbbcc")) {
		t.Fatalf("expected size %d, got %d", len("aaabbbbcc"), result.SizeBytes)
	}
	if result.Duration != 2*time.Second {
		t.Fatalf("expected 2s duration, got %v", result.Duration)
	}
}

func TestFFmpegEncodeFailureIsInterrupted(t *testing.T) {
	stubFFmpegCommand(t, "failure")

	outPath := filepath.Join(t.TempDir(), "chunk.mp4")
	f := NewFFmpeg()
	_, err := f.Encode(context.Background(), testSettings(), outPath, sendFrames("frame"))
	if !errors.Is(err, ErrEncodeInterrupted) {
		t.Fatalf("expected ErrEncodeInterrupted, got %v", err)
	}
}

func TestFFmpegMissingBinaryIsUnavailable(t *testing.T) {
	f := NewFFmpeg(WithBinary("kinescope-no-such-ffmpeg"))
	outPath := filepath.Join(t.TempDir(), "chunk.mp4")
	_, err := f.Encode(context.Background(), testSettings(), outPath, sendFrames("frame"))
	if !errors.Is(err, ErrEncoderUnavailable) {
		t.Fatalf("expected ErrEncoderUnavailable, got %v", err)
	}
}

func TestFFmpegCanceledContext(t *testing.T) {
	stubFFmpegCommand(t, "failure")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outPath := filepath.Join(t.TempDir(), "chunk.mp4")
	f := NewFFmpeg()
	_, err := f.Encode(ctx, testSettings(), outPath, sendFrames())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("FFMPEG_HELPER_MODE") {
	case "success":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			os.Exit(1)
		}
		if err := os.WriteFile(os.Getenv("FFMPEG_HELPER_OUT"), data, 0o644); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	case "failure":
		io.Copy(io.Discard, os.Stdin) //nolint:errcheck
		fmt.Fprintln(os.Stderr, "pipe:: Invalid data found when processing input")
		os.Exit(1)
	default:
		os.Exit(0)
	}
}
