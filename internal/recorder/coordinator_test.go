package recorder

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"kinescope/internal/capture"
	"kinescope/internal/compression"
	"kinescope/internal/config"
	"kinescope/internal/encoding"
	"kinescope/internal/framepool"
	"kinescope/internal/logging"
	"kinescope/internal/store"
	"kinescope/internal/testsupport"
)

type fakeSource struct {
	events        chan capture.Event
	displays      int
	permissionErr error

	mu       sync.Mutex
	frameErr error
}

func newFakeSource() *fakeSource {
	return &fakeSource{events: make(chan capture.Event, 16), displays: 1}
}

func (s *fakeSource) NextFrame(ctx context.Context) (framepool.Frame, error) {
	s.mu.Lock()
	err := s.frameErr
	s.mu.Unlock()
	if err != nil {
		return framepool.Frame{}, err
	}
	select {
	case <-ctx.Done():
		return framepool.Frame{}, ctx.Err()
	default:
	}
	return framepool.Frame{Payload: []byte{0x42}, Width: 16, Height: 16, CapturedAt: time.Now()}, nil
}

func (s *fakeSource) setFrameErr(err error) {
	s.mu.Lock()
	s.frameErr = err
	s.mu.Unlock()
}

func (s *fakeSource) Events() <-chan capture.Event { return s.events }
func (s *fakeSource) Displays() int                { return s.displays }
func (s *fakeSource) CheckPermission() error       { return s.permissionErr }
func (s *fakeSource) Close() error                 { return nil }

type fakeEncoder struct {
	err error

	mu      sync.Mutex
	encodes int
}

func (e *fakeEncoder) Encode(ctx context.Context, settings compression.Settings, outPath string, frames <-chan framepool.Frame) (encoding.Result, error) {
	count := 0
	var bytes int
	for frame := range frames {
		count++
		bytes += len(frame.Payload)
	}
	e.mu.Lock()
	e.encodes++
	e.mu.Unlock()

	if e.err != nil {
		return encoding.Result{}, e.err
	}
	payload := make([]byte, bytes+1)
	if err := os.WriteFile(outPath, payload, 0o644); err != nil {
		return encoding.Result{}, err
	}
	return encoding.Result{
		FilePath:   outPath,
		SizeBytes:  int64(len(payload)),
		Duration:   time.Duration(count) * time.Millisecond,
		FrameCount: count,
	}, nil
}

func (e *fakeEncoder) encodeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.encodes
}

func newTestCoordinator(t *testing.T, src capture.Source, enc encoding.Encoder) (*Coordinator, *store.Store, *config.Config) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.Paths.ChunkDir, 0o755); err != nil {
		t.Fatalf("mkdir chunk dir: %v", err)
	}
	st := testsupport.MustOpenStore(t, cfg)
	pool := framepool.New(framepool.DefaultCapacity)
	ctrl := compression.NewController(
		compression.SettingsFromConfig(cfg.Compression),
		cfg.Compression.TargetChunkMB,
		logging.NewNop(),
	)

	c := New(Deps{
		Config:     cfg.Capture,
		ChunkDir:   cfg.Paths.ChunkDir,
		Source:     src,
		Encoder:    enc,
		Pool:       pool,
		Store:      st,
		Controller: ctrl,
		Logger:     logging.NewNop(),
	})
	// Tighten timing so lifecycle tests run in milliseconds.
	c.frameInterval = 5 * time.Millisecond
	c.chunkDuration = 250 * time.Millisecond
	c.debounce = 30 * time.Millisecond
	c.maxAttempts = 2
	t.Cleanup(c.Stop)
	return c, st, cfg
}

func awaitPhase(t *testing.T, hub *StatusHub, since uint64, phase Phase) (StatusEvent, uint64) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		events, next, err := hub.Fetch(ctx, since, 0, true)
		if err != nil {
			t.Fatalf("waiting for phase %s: %v", phase, err)
		}
		for _, evt := range events {
			if evt.State.Phase == phase {
				return evt, evt.Sequence
			}
		}
		since = next
	}
}

func TestStopBeforeStartIsSafe(t *testing.T) {
	c, _, _ := newTestCoordinator(t, newFakeSource(), &fakeEncoder{})
	c.Stop()
	c.Stop()
	if phase := c.State().Phase; phase != PhaseIdle {
		t.Fatalf("expected idle, got %s", phase)
	}
}

func TestStartTransitionsThroughStartingToRecording(t *testing.T) {
	c, _, _ := newTestCoordinator(t, newFakeSource(), &fakeEncoder{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	startEvt, seq := awaitPhase(t, c.Hub(), 0, PhaseStarting)
	if startEvt.SessionID == "" {
		t.Fatal("expected a session id on status events")
	}
	recEvt, _ := awaitPhase(t, c.Hub(), seq, PhaseRecording)
	if recEvt.State.DisplayCount != 1 {
		t.Fatalf("expected display count 1, got %d", recEvt.State.DisplayCount)
	}

	c.Stop()
	if phase := c.State().Phase; phase != PhaseIdle {
		t.Fatalf("expected idle after stop, got %s", phase)
	}
}

func TestStartIsIdempotentWhileRunning(t *testing.T) {
	c, _, _ := newTestCoordinator(t, newFakeSource(), &fakeEncoder{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	_, _ = awaitPhase(t, c.Hub(), 0, PhaseRecording)
	session := c.SessionID()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("second Start must be a no-op, got %v", err)
	}
	if c.SessionID() != session {
		t.Fatal("second Start must not begin a new session")
	}
}

func TestPermissionDeniedFailsStart(t *testing.T) {
	src := newFakeSource()
	src.permissionErr = capture.ErrPermissionDenied
	c, _, _ := newTestCoordinator(t, src, &fakeEncoder{})

	if err := c.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail without permission")
	}
	state := c.State()
	if state.Phase != PhaseError || state.Code != ErrorPermissionRevoked {
		t.Fatalf("expected error/permission_revoked, got %s/%s", state.Phase, state.Code)
	}
	if state.RecoveryAction == "" {
		t.Fatal("error state must carry a recovery action")
	}
}

func TestPreflightFailureFailsStart(t *testing.T) {
	c, _, _ := newTestCoordinator(t, newFakeSource(), &fakeEncoder{})
	c.preflight = func(context.Context) error {
		return os.ErrPermission
	}

	if err := c.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail preflight")
	}
	state := c.State()
	if state.Phase != PhaseError || state.Code != ErrorPreflightFailed {
		t.Fatalf("expected error/preflight_failed, got %s/%s", state.Phase, state.Code)
	}
}

func TestSleepPausesAndWakeResumes(t *testing.T) {
	src := newFakeSource()
	c, _, _ := newTestCoordinator(t, src, &fakeEncoder{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	_, seq := awaitPhase(t, c.Hub(), 0, PhaseRecording)

	// Let a few frames through before sleeping.
	time.Sleep(50 * time.Millisecond)
	src.events <- capture.Event{Kind: capture.EventSystemSleep}
	_, seq = awaitPhase(t, c.Hub(), seq, PhasePaused)

	src.events <- capture.Event{Kind: capture.EventSystemWake}
	_, _ = awaitPhase(t, c.Hub(), seq, PhaseRecording)

	c.Stop()
}

func TestChunkFinalizedOnPause(t *testing.T) {
	src := newFakeSource()
	c, st, cfg := newTestCoordinator(t, src, &fakeEncoder{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	_, seq := awaitPhase(t, c.Hub(), 0, PhaseRecording)

	time.Sleep(60 * time.Millisecond)
	src.events <- capture.Event{Kind: capture.EventScreenLocked}
	_, _ = awaitPhase(t, c.Hub(), seq, PhasePaused)

	ctx := context.Background()
	deadline := time.Now().Add(3 * time.Second)
	for {
		chunks, err := st.FetchUnprocessedChunks(ctx, time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("FetchUnprocessedChunks failed: %v", err)
		}
		if len(chunks) >= 1 {
			chunk := chunks[0]
			if chunk.Status != store.ChunkCompleted {
				t.Fatalf("expected completed chunk, got %s", chunk.Status)
			}
			if _, err := os.Stat(chunk.FilePath); err != nil {
				t.Fatalf("chunk file must exist: %v", err)
			}
			if filepath.Dir(chunk.FilePath) != cfg.Paths.ChunkDir {
				t.Fatalf("chunk must live in the chunk dir, got %s", chunk.FilePath)
			}
			if _, _, err := encoding.ParseChunkFileName(chunk.FilePath); err != nil {
				t.Fatalf("chunk file name must follow the naming convention: %v", err)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for a completed chunk")
		}
		time.Sleep(10 * time.Millisecond)
	}

	c.Stop()
}

func TestDisplayEventsDebounceToOneRestart(t *testing.T) {
	src := newFakeSource()
	c, _, _ := newTestCoordinator(t, src, &fakeEncoder{})
	c.chunkDuration = 10 * time.Second // keep rotation out of the way

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	_, seq := awaitPhase(t, c.Hub(), 0, PhaseRecording)

	time.Sleep(30 * time.Millisecond)
	src.events <- capture.Event{Kind: capture.EventDisplayAdded, DisplayID: 2}
	src.events <- capture.Event{Kind: capture.EventDisplayRemoved, DisplayID: 2}
	src.events <- capture.Event{Kind: capture.EventDisplayAdded, DisplayID: 3}

	_, seq = awaitPhase(t, c.Hub(), seq, PhaseFinishing)
	_, _ = awaitPhase(t, c.Hub(), seq, PhaseRecording)

	// Allow a second (incorrect) restart to surface before counting.
	time.Sleep(150 * time.Millisecond)
	events, _ := c.Hub().Tail(0)
	restarts := 0
	for _, evt := range events {
		if evt.State.Phase == PhaseFinishing {
			restarts++
		}
	}
	if restarts != 1 {
		t.Fatalf("expected rapid display events to collapse into one restart, got %d", restarts)
	}

	c.Stop()
}

func TestEncoderUnavailableEntersErrorState(t *testing.T) {
	src := newFakeSource()
	c, _, _ := newTestCoordinator(t, src, &fakeEncoder{err: encoding.ErrEncoderUnavailable})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	_, seq := awaitPhase(t, c.Hub(), 0, PhaseRecording)

	time.Sleep(30 * time.Millisecond)
	src.events <- capture.Event{Kind: capture.EventSystemSleep}

	evt, _ := awaitPhase(t, c.Hub(), seq, PhaseError)
	if evt.State.Code != ErrorEncoderUnavailable {
		t.Fatalf("expected encoder_unavailable, got %s", evt.State.Code)
	}
	if evt.State.RecoveryAction == "" {
		t.Fatal("error state must carry a recovery action")
	}
}

func TestRepeatedEncodeInterruptionsExhaustRetries(t *testing.T) {
	src := newFakeSource()
	enc := &fakeEncoder{err: encoding.ErrEncodeInterrupted}
	c, _, _ := newTestCoordinator(t, src, enc)
	c.chunkDuration = 40 * time.Millisecond

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	evt, _ := awaitPhase(t, c.Hub(), 0, PhaseError)
	if evt.State.Code != ErrorRetryExhausted {
		t.Fatalf("expected retry_exhausted, got %s", evt.State.Code)
	}
	if enc.encodeCount() < 2 {
		t.Fatalf("expected at least two encode attempts, got %d", enc.encodeCount())
	}
}

func TestCaptureRetryExhaustionEntersErrorState(t *testing.T) {
	src := newFakeSource()
	src.setFrameErr(os.ErrDeadlineExceeded)
	c, _, _ := newTestCoordinator(t, src, &fakeEncoder{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	evt, _ := awaitPhase(t, c.Hub(), 0, PhaseError)
	if evt.State.Code != ErrorRetryExhausted {
		t.Fatalf("expected retry_exhausted, got %s", evt.State.Code)
	}
	if !strings.Contains(evt.Message, "retry budget") {
		t.Fatalf("expected retry budget message, got %q", evt.Message)
	}
}

func TestPermissionRevokedMidSession(t *testing.T) {
	src := newFakeSource()
	c, _, _ := newTestCoordinator(t, src, &fakeEncoder{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	_, seq := awaitPhase(t, c.Hub(), 0, PhaseRecording)

	src.events <- capture.Event{Kind: capture.EventPermissionRevoked}
	evt, _ := awaitPhase(t, c.Hub(), seq, PhaseError)
	if evt.State.Code != ErrorPermissionRevoked {
		t.Fatalf("expected permission_revoked, got %s", evt.State.Code)
	}
}
