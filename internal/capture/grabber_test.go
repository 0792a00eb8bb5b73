package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"
)

func stubGrabCommand(t *testing.T, mode string) {
	t.Helper()

	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "GRAB_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestGrabberNextFrame(t *testing.T) {
	stubGrabCommand(t, "frame")

	g := NewGrabber()
	frame, err := g.NextFrame(context.Background())
	if err != nil {
		t.Fatalf("NextFrame returned error: %v", err)
	}
	if string(frame.Payload) != "fake-png-bytes" {
		t.Fatalf("unexpected payload %q", frame.Payload)
	}
	if frame.CapturedAt.IsZero() || time.Since(frame.CapturedAt) > time.Minute {
		t.Fatalf("unexpected capture timestamp %v", frame.CapturedAt)
	}
}

func TestGrabberEmptyOutputFails(t *testing.T) {
	stubGrabCommand(t, "empty")

	g := NewGrabber()
	if _, err := g.NextFrame(context.Background()); err == nil {
		t.Fatal("expected error for empty capture output")
	}
}

func TestGrabberPermissionDenied(t *testing.T) {
	stubGrabCommand(t, "permission")

	g := NewGrabber()
	_, err := g.NextFrame(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if err := g.CheckPermission(); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected CheckPermission to report ErrPermissionDenied, got %v", err)
	}
}

func TestGrabberGenericFailureIsNotPermission(t *testing.T) {
	stubGrabCommand(t, "failure")

	g := NewGrabber()
	_, err := g.NextFrame(context.Background())
	if err == nil {
		t.Fatal("expected capture failure")
	}
	if errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("generic failure misclassified as permission denial: %v", err)
	}
}

func TestGrabberMissingBinary(t *testing.T) {
	g := NewGrabber(WithBinary("kinescope-no-such-grabber"))
	_, err := g.NextFrame(context.Background())
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	if errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("missing binary misclassified as permission denial: %v", err)
	}
}

func TestGrabberCanceledContext(t *testing.T) {
	stubGrabCommand(t, "frame")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := NewGrabber()
	if _, err := g.NextFrame(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestGrabberDisplaysAndClose(t *testing.T) {
	g := NewGrabber(WithDisplays(3))
	if g.Displays() != 3 {
		t.Fatalf("expected 3 displays, got %d", g.Displays())
	}
	if err := g.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := g.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}
	select {
	case _, ok := <-g.Events():
		if ok {
			t.Fatal("expected closed event channel")
		}
	default:
		t.Fatal("expected event channel to be closed after Close")
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("GRAB_HELPER_MODE") {
	case "frame":
		fmt.Print("fake-png-bytes")
		os.Exit(0)
	case "empty":
		os.Exit(0)
	case "permission":
		fmt.Fprintln(os.Stderr, "import: unable to read X window attributes: permission denied")
		os.Exit(1)
	case "failure":
		fmt.Fprintln(os.Stderr, "import: no display available")
		os.Exit(1)
	default:
		os.Exit(0)
	}
}
