package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"kinescope/internal/framepool"
)

var commandContext = exec.CommandContext

// Option configures the exec-backed grabber.
type Option func(*Grabber)

// WithBinary overrides the screenshot binary and its arguments.
func WithBinary(binary string, args ...string) Option {
	return func(g *Grabber) {
		if binary != "" {
			g.binary = binary
			g.args = args
		}
	}
}

// WithDisplays overrides the reported display count.
func WithDisplays(count int) Option {
	return func(g *Grabber) {
		if count > 0 {
			g.displays = count
		}
	}
}

// Grabber captures frames by invoking an external screenshot tool that
// writes one encoded image to stdout per invocation. It has no hook into
// OS display or power notifications, so its event channel stays silent.
type Grabber struct {
	binary   string
	args     []string
	displays int

	events    chan Event
	closeOnce sync.Once
}

// NewGrabber constructs a grabber using ImageMagick's import by default.
func NewGrabber(opts ...Option) *Grabber {
	g := &Grabber{
		binary:   "import",
		args:     []string{"-window", "root", "-silent", "png:-"},
		displays: 1,
		events:   make(chan Event),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NextFrame runs one capture invocation and returns the image bytes.
func (g *Grabber) NextFrame(ctx context.Context) (framepool.Frame, error) {
	cmd := commandContext(ctx, g.binary, g.args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return framepool.Frame{}, ctx.Err()
		}
		return framepool.Frame{}, classifyGrabError(g.binary, err, stderr.String())
	}
	payload := stdout.Bytes()
	if len(payload) == 0 {
		return framepool.Frame{}, fmt.Errorf("%s produced no image data", g.binary)
	}
	return framepool.Frame{Payload: payload, CapturedAt: time.Now()}, nil
}

// Events returns the notification channel. The grabber never emits events.
func (g *Grabber) Events() <-chan Event { return g.events }

// Displays reports the configured display count.
func (g *Grabber) Displays() int { return g.displays }

// CheckPermission runs a single capture to verify the tool works and the
// session allows screen access.
func (g *Grabber) CheckPermission() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := g.NextFrame(ctx); err != nil {
		return err
	}
	return nil
}

// Close releases the event channel.
func (g *Grabber) Close() error {
	g.closeOnce.Do(func() {
		close(g.events)
	})
	return nil
}

func classifyGrabError(binary string, err error, stderr string) error {
	detail := strings.TrimSpace(stderr)
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("screenshot tool %q not found: %w", binary, err)
	}
	if looksLikePermissionFailure(detail) {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, detail)
	}
	if detail != "" {
		return fmt.Errorf("%s failed: %w: %s", binary, err, detail)
	}
	return fmt.Errorf("%s failed: %w", binary, err)
}

func looksLikePermissionFailure(detail string) bool {
	lower := strings.ToLower(detail)
	return strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "not authorized") ||
		strings.Contains(lower, "access denied")
}

var _ Source = (*Grabber)(nil)
