package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"kinescope/internal/capture"
	"kinescope/internal/compression"
	"kinescope/internal/config"
	"kinescope/internal/encoding"
	"kinescope/internal/framepool"
	"kinescope/internal/logging"
	"kinescope/internal/services"
	"kinescope/internal/store"
)

const (
	frameChannelDepth  = 8
	encodeChannelDepth = 8
)

// Deps are the collaborators a Coordinator is built from. All of them are
// injected and outlive the coordinator; it owns none of their lifecycles.
type Deps struct {
	Config     config.Capture
	ChunkDir   string
	Source     capture.Source
	Encoder    encoding.Encoder
	Pool       *framepool.Pool
	Store      *store.Store
	Controller *compression.Controller
	// Preflight gates the starting phase. Optional; permission is always
	// checked through the source.
	Preflight func(context.Context) error
	Hub       *StatusHub
	Logger    *slog.Logger
}

// Coordinator drives the recording lifecycle: frames flow from the capture
// source through the pool to the encoder, completed chunks are registered in
// the store and fed to the compression controller, and every state change is
// published on the status hub.
type Coordinator struct {
	logger     *slog.Logger
	source     capture.Source
	encoder    encoding.Encoder
	pool       *framepool.Pool
	store      *store.Store
	controller *compression.Controller
	preflight  func(context.Context) error
	hub        *StatusHub

	chunkDir      string
	frameInterval time.Duration
	chunkDuration time.Duration
	debounce      time.Duration
	maxAttempts   int

	mu        sync.Mutex
	state     State
	sessionID string
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}

	// Touched only by the run goroutine.
	encodeFailures int
}

// New constructs a coordinator in the idle phase.
func New(deps Deps) *Coordinator {
	cfg := deps.Config
	frameInterval := time.Duration(cfg.FrameIntervalMS) * time.Millisecond
	if frameInterval <= 0 {
		frameInterval = time.Second
	}
	chunkDuration := time.Duration(cfg.ChunkDurationMinutes) * time.Minute
	if chunkDuration <= 0 {
		chunkDuration = 15 * time.Minute
	}
	debounce := time.Duration(cfg.DisplayDebounceMS) * time.Millisecond
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	maxAttempts := cfg.RetryMaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	hub := deps.Hub
	if hub == nil {
		hub = NewStatusHub(0)
	}
	return &Coordinator{
		logger:        logging.NewComponentLogger(deps.Logger, "recorder"),
		source:        deps.Source,
		encoder:       deps.Encoder,
		pool:          deps.Pool,
		store:         deps.Store,
		controller:    deps.Controller,
		preflight:     deps.Preflight,
		hub:           hub,
		chunkDir:      deps.ChunkDir,
		frameInterval: frameInterval,
		chunkDuration: chunkDuration,
		debounce:      debounce,
		maxAttempts:   maxAttempts,
		state:         State{Phase: PhaseIdle, ChangedAt: time.Now().UTC()},
	}
}

// Hub exposes the status stream for observers.
func (c *Coordinator) Hub() *StatusHub {
	return c.hub
}

// State returns the current state snapshot.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID identifies the current or most recent recording session.
func (c *Coordinator) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Start runs preflight checks and launches the recording loop. Starting an
// already-running coordinator is a no-op.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.sessionID = uuid.NewString()
	c.mu.Unlock()

	c.setState(State{Phase: PhaseStarting}, "recording start requested")

	if err := c.source.CheckPermission(); err != nil {
		wrapped := services.Wrap(services.ErrFatal, "recorder", "check permission", "", err)
		c.enterError(ErrorPermissionRevoked, "grant screen recording permission and start again", wrapped)
		c.finishRun(nil)
		return wrapped
	}
	if c.preflight != nil {
		if err := c.preflight(ctx); err != nil {
			wrapped := services.Wrap(services.ErrResource, "recorder", "preflight", "", err)
			c.enterError(ErrorPreflightFailed, "free disk space or fix directory permissions, then start again", wrapped)
			c.finishRun(nil)
			return wrapped
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()
	go c.run(runCtx, done)
	return nil
}

// Stop halts recording, finalizing the in-flight chunk. It is idempotent and
// safe to call before Start.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running || c.cancel == nil {
		c.running = false
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	c.setState(State{Phase: PhaseStopping}, "recording stop requested")
	cancel()
	if done != nil {
		<-done
	}
	c.setState(State{Phase: PhaseIdle}, "recording stopped")
	c.finishRun(nil)
}

// finishRun clears run bookkeeping after the loop exits or Start fails.
func (c *Coordinator) finishRun(cancel context.CancelFunc) {
	c.mu.Lock()
	c.running = false
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

type sessionAction int

const (
	actionRotate sessionAction = iota
	actionRestartDisplays
	actionResume
	actionPause
	actionStop
	actionFatal
)

type sessionResult struct {
	action   sessionAction
	code     ErrorCode
	recovery string
	err      error
}

func (c *Coordinator) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	events := c.source.Events()

	for {
		res := c.runSession(ctx, events)
		switch res.action {
		case actionStop:
			return
		case actionFatal:
			c.enterError(res.code, res.recovery, res.err)
			c.finishRun(nil)
			return
		case actionPause:
			c.setState(State{Phase: PhasePaused}, "system asleep or screen locked")
			resumed := c.waitResume(ctx, events)
			if resumed.action == actionStop {
				return
			}
			if resumed.action == actionFatal {
				c.enterError(resumed.code, resumed.recovery, resumed.err)
				c.finishRun(nil)
				return
			}
			c.setState(State{Phase: PhaseRecording, DisplayCount: c.source.Displays()}, "recording resumed")
		}
	}
}

// runSession owns one capture stream; it ends on pause, stop, or a fatal
// fault. Chunk rotations and display restarts stay inside the session.
func (c *Coordinator) runSession(parent context.Context, events <-chan capture.Event) sessionResult {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	frames := make(chan framepool.Frame, frameChannelDepth)
	captureErr := make(chan error, 1)
	go c.captureLoop(ctx, frames, captureErr)

	for {
		res := c.runChunk(ctx, frames, captureErr, events)
		switch res.action {
		case actionRotate:
			c.setState(State{Phase: PhaseFinishing}, "chunk boundary reached")
			c.setState(State{Phase: PhaseRecording, DisplayCount: c.source.Displays()}, "chunk rotated")
		case actionRestartDisplays:
			count := c.source.Displays()
			c.setState(State{Phase: PhaseFinishing}, "display configuration changed")
			c.setState(State{Phase: PhaseRecording, DisplayCount: count}, fmt.Sprintf("capture restarted for %d displays", count))
		default:
			return res
		}
	}
}

// captureLoop paces frame acquisition at the configured interval, retrying
// transient faults within the backoff budget.
func (c *Coordinator) captureLoop(ctx context.Context, out chan<- framepool.Frame, errs chan<- error) {
	ticker := time.NewTicker(c.frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var frame framepool.Frame
		err := retryTransient(ctx, c.maxAttempts, func() error {
			next, err := c.source.NextFrame(ctx)
			if err != nil {
				return err
			}
			frame = next
			return nil
		})
		if err != nil {
			if ctx.Err() == nil {
				select {
				case errs <- err:
				default:
				}
			}
			return
		}

		select {
		case out <- frame:
		case <-ctx.Done():
			return
		}
	}
}

type encodeOutcome struct {
	result encoding.Result
	err    error
}

// runChunk records one chunk: frames are admitted to the pool, transferred
// out in FIFO order, and streamed to the encoder until the rotation boundary
// or a session-ending event.
func (c *Coordinator) runChunk(ctx context.Context, frames <-chan framepool.Frame, captureErr <-chan error, events <-chan capture.Event) sessionResult {
	start := time.Now()
	settings := c.controller.Settings()
	tmpPath := filepath.Join(c.chunkDir, "."+uuid.NewString()+".part")

	encFrames := make(chan framepool.Frame, encodeChannelDepth)
	encDone := make(chan encodeOutcome, 1)
	go func() {
		result, err := c.encoder.Encode(ctx, settings, tmpPath, encFrames)
		encDone <- encodeOutcome{result: result, err: err}
	}()

	rotation := time.NewTimer(c.chunkDuration)
	defer rotation.Stop()
	var debounceTimer *time.Timer
	var debounceC <-chan time.Time
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	var pending []framepool.HandleID
	result := sessionResult{action: actionStop}

loop:
	for {
		select {
		case <-ctx.Done():
			result = sessionResult{action: actionStop}
			break loop

		case <-rotation.C:
			result = sessionResult{action: actionRotate}
			break loop

		case err := <-captureErr:
			result = c.classifyCaptureFailure(err)
			break loop

		case frame := <-frames:
			if c.State().Phase == PhaseStarting {
				c.setState(State{Phase: PhaseRecording, DisplayCount: c.source.Displays()}, "first frame captured")
			}
			id := c.pool.Add(frame)
			pending = append(pending, id)
			pending = c.drainPending(pending, encFrames)

		case evt, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			switch evt.Kind {
			case capture.EventSystemSleep, capture.EventScreenLocked:
				result = sessionResult{action: actionPause}
				break loop
			case capture.EventPermissionRevoked:
				err := services.Wrap(services.ErrFatal, "recorder", "capture", "permission revoked mid-session", capture.ErrPermissionDenied)
				result = sessionResult{action: actionFatal, code: ErrorPermissionRevoked, recovery: "grant screen recording permission and start again", err: err}
				break loop
			case capture.EventDisplayAdded, capture.EventDisplayRemoved:
				if debounceTimer == nil {
					debounceTimer = time.NewTimer(c.debounce)
					debounceC = debounceTimer.C
				} else {
					if !debounceTimer.Stop() {
						select {
						case <-debounceTimer.C:
						default:
						}
					}
					debounceTimer.Reset(c.debounce)
				}
				c.logger.Info("display event debounced",
					logging.String(logging.FieldEventType, string(evt.Kind)),
					logging.Int("display_id", evt.DisplayID),
				)
			case capture.EventStreamInterrupted:
				c.logger.Warn("capture stream interrupted",
					logging.String("detail", evt.Detail),
				)
			}

		case <-debounceC:
			result = sessionResult{action: actionRestartDisplays}
			break loop
		}
	}

	// Hand remaining pooled frames to the encoder before finalizing.
	for _, id := range pending {
		if frame, ok := c.pool.Take(id); ok {
			select {
			case encFrames <- frame:
			case <-time.After(time.Second):
			}
		}
	}
	close(encFrames)
	outcome := <-encDone

	if res := c.finalizeChunk(ctx, start, time.Now(), tmpPath, settings, outcome); res != nil {
		return *res
	}
	return result
}

// drainPending transfers the oldest pooled frames into the encoder channel
// while it has room. Frames left behind stay in the pool; if the pool evicts
// one under sustained backpressure its handle is simply skipped later.
func (c *Coordinator) drainPending(pending []framepool.HandleID, out chan<- framepool.Frame) []framepool.HandleID {
	for len(pending) > 0 && len(out) < cap(out) {
		id := pending[0]
		pending = pending[1:]
		frame, ok := c.pool.Take(id)
		if !ok {
			continue
		}
		out <- frame
	}
	return pending
}

func (c *Coordinator) classifyCaptureFailure(err error) sessionResult {
	if errors.Is(err, capture.ErrPermissionDenied) {
		return sessionResult{
			action:   actionFatal,
			code:     ErrorPermissionRevoked,
			recovery: "grant screen recording permission and start again",
			err:      services.Wrap(services.ErrFatal, "recorder", "acquire frame", "", err),
		}
	}
	return sessionResult{
		action:   actionFatal,
		code:     ErrorRetryExhausted,
		recovery: "check the capture source, then start recording again",
		err:      services.Wrap(services.ErrTransient, "recorder", "acquire frame", "retry budget exhausted", err),
	}
}

// finalizeChunk renames, registers, and completes the chunk on success, or
// cleans up and classifies the failure. A non-nil return overrides the
// session result with a fatal outcome.
func (c *Coordinator) finalizeChunk(ctx context.Context, start, end time.Time, tmpPath string, settings compression.Settings, outcome encodeOutcome) *sessionResult {
	if outcome.err != nil {
		if removeErr := os.Remove(tmpPath); removeErr != nil && !os.IsNotExist(removeErr) {
			c.logger.Warn("failed to remove partial chunk", logging.String("file", tmpPath), logging.Error(removeErr))
		}
		if errors.Is(outcome.err, context.Canceled) {
			return nil
		}
		if errors.Is(outcome.err, encoding.ErrEncoderUnavailable) {
			return &sessionResult{
				action:   actionFatal,
				code:     ErrorEncoderUnavailable,
				recovery: "verify the encoding backend is installed and restart the daemon",
				err:      services.Wrap(services.ErrFatal, "recorder", "encode chunk", "", outcome.err),
			}
		}

		c.encodeFailures++
		c.logger.Warn("chunk encode failed",
			logging.Error(outcome.err),
			logging.Int("consecutive_failures", c.encodeFailures),
		)
		if c.encodeFailures >= c.maxAttempts {
			return &sessionResult{
				action:   actionFatal,
				code:     ErrorRetryExhausted,
				recovery: "check encoder logs, then start recording again",
				err:      services.Wrap(services.ErrTransient, "recorder", "encode chunk", "retry budget exhausted", outcome.err),
			}
		}
		return nil
	}
	c.encodeFailures = 0

	if outcome.result.FrameCount == 0 {
		// Nothing was captured; drop the empty artifact.
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("failed to remove empty chunk", logging.String("file", tmpPath), logging.Error(err))
		}
		return nil
	}

	finalPath := filepath.Join(c.chunkDir, encoding.ChunkFileName(start, end, chunkExtension(settings.Codec)))
	if err := os.Rename(tmpPath, finalPath); err != nil {
		c.logger.Error("failed to finalize chunk file", logging.String("file", tmpPath), logging.Error(err))
		return nil
	}

	chunk, err := c.store.RegisterChunk(ctx, finalPath, start, end)
	if err != nil {
		c.logger.Error("failed to register chunk", logging.String("file", finalPath), logging.Error(err))
		return nil
	}
	if err := c.store.MarkCompleted(ctx, chunk.ID, outcome.result.SizeBytes); err != nil {
		c.logger.Error("failed to complete chunk",
			logging.Int64(logging.FieldChunkID, chunk.ID),
			logging.Error(err),
		)
		if failErr := c.store.MarkFailed(ctx, chunk.ID); failErr != nil {
			c.logger.Warn("failed to discard chunk record", logging.Int64(logging.FieldChunkID, chunk.ID), logging.Error(failErr))
		}
		return nil
	}

	newSettings, adjusted := c.controller.AnalyzeAndAdjust(outcome.result.SizeBytes)
	c.logger.Info("chunk completed",
		logging.Int64(logging.FieldChunkID, chunk.ID),
		logging.String("file", filepath.Base(finalPath)),
		logging.String("size", humanize.Bytes(uint64(outcome.result.SizeBytes))),
		logging.Int("frames", outcome.result.FrameCount),
		logging.Duration("duration", outcome.result.Duration),
	)
	if adjusted {
		c.logger.Info("compression settings updated for next chunk",
			logging.Float64("multiplier", newSettings.Multiplier),
			logging.Int("effective_bitrate_kbps", newSettings.EffectiveBitrateKbps()),
		)
	}
	return nil
}

// waitResume blocks in the paused phase until a wake/unlock event, stop, or
// a fatal event arrives.
func (c *Coordinator) waitResume(ctx context.Context, events <-chan capture.Event) sessionResult {
	for {
		select {
		case <-ctx.Done():
			return sessionResult{action: actionStop}
		case evt, ok := <-events:
			if !ok {
				return sessionResult{action: actionStop}
			}
			switch evt.Kind {
			case capture.EventSystemWake, capture.EventScreenUnlocked:
				return sessionResult{action: actionResume}
			case capture.EventPermissionRevoked:
				return sessionResult{
					action:   actionFatal,
					code:     ErrorPermissionRevoked,
					recovery: "grant screen recording permission and start again",
					err:      services.Wrap(services.ErrFatal, "recorder", "capture", "permission revoked while paused", capture.ErrPermissionDenied),
				}
			}
		}
	}
}

func (c *Coordinator) setState(next State, message string) {
	next.ChangedAt = time.Now().UTC()

	c.mu.Lock()
	prev := c.state
	c.state = next
	sessionID := c.sessionID
	c.mu.Unlock()

	c.logger.Info("state changed",
		logging.String(logging.FieldState, string(next.Phase)),
		logging.String("previous", string(prev.Phase)),
		logging.String(logging.FieldSessionID, sessionID),
	)
	c.hub.Publish(StatusEvent{SessionID: sessionID, State: next, Message: message})
}

func (c *Coordinator) enterError(code ErrorCode, recovery string, err error) {
	c.logger.Error("recording failed",
		logging.String("code", string(code)),
		logging.String("recovery", recovery),
		logging.Error(err),
	)
	c.setState(State{Phase: PhaseError, Code: code, RecoveryAction: recovery}, err.Error())
}

func chunkExtension(codec string) string {
	switch strings.ToLower(strings.TrimSpace(codec)) {
	case "vp8", "vp9", "av1":
		return "webm"
	default:
		return "mp4"
	}
}
