package recorder

import "time"

// Phase names one position in the recording lifecycle.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseStarting  Phase = "starting"
	PhaseRecording Phase = "recording"
	PhasePaused    Phase = "paused"
	PhaseFinishing Phase = "finishing"
	PhaseStopping  Phase = "stopping"
	PhaseError     Phase = "error"
)

// ErrorCode identifies why the coordinator entered the error phase.
type ErrorCode string

const (
	ErrorPermissionRevoked  ErrorCode = "permission_revoked"
	ErrorEncoderUnavailable ErrorCode = "encoder_unavailable"
	ErrorRetryExhausted     ErrorCode = "retry_exhausted"
	ErrorPreflightFailed    ErrorCode = "preflight_failed"
)

// State is an immutable view of the coordinator. DisplayCount is meaningful
// while recording; Code and RecoveryAction are set only in the error phase.
type State struct {
	Phase          Phase     `json:"phase"`
	DisplayCount   int       `json:"display_count,omitempty"`
	Code           ErrorCode `json:"code,omitempty"`
	RecoveryAction string    `json:"recovery_action,omitempty"`
	ChangedAt      time.Time `json:"changed_at"`
}

var allowedTransitions = map[Phase][]Phase{
	PhaseIdle:      {PhaseStarting},
	PhaseStarting:  {PhaseRecording},
	PhaseRecording: {PhasePaused, PhaseFinishing},
	PhasePaused:    {PhaseRecording},
	PhaseFinishing: {PhaseRecording, PhasePaused},
	PhaseStopping:  {PhaseIdle},
	PhaseError:     {PhaseStarting},
}

// CanTransition reports whether moving from one phase to another follows the
// lifecycle rules. Stopping and error are reachable from every phase: an
// explicit stop or a non-retryable fault can interrupt anything.
func CanTransition(from, to Phase) bool {
	if from == to {
		return false
	}
	if to == PhaseStopping || to == PhaseError {
		return from != PhaseStopping
	}
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
