package llm

import (
	"context"
	"log/slog"
	"sync"

	"github.com/checkstand/checkstand/internal/watch"
)

// Phase is the lifecycle phase of the loaded model.
type Phase string

const (
	PhaseNotLoaded Phase = "NOT_LOADED"
	PhaseLoading   Phase = "LOADING"
	PhaseReady     Phase = "READY"
	PhaseError     Phase = "ERROR"
)

// Status is the observable model-lifecycle triple read by the UI.
type Status struct {
	Phase    Phase   `json:"phase"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message"`
}

// StatusTracker publishes model load state to any number of watchers.
// It is written only by the SessionManager; there is no business logic
// here beyond progress clamping and default messages.
type StatusTracker struct {
	mu      sync.Mutex
	current Status
	value   *watch.Value[Status]
}

// NewStatusTracker starts in the NOT_LOADED phase.
func NewStatusTracker() *StatusTracker {
	initial := Status{Phase: PhaseNotLoaded, Message: defaultMessage(PhaseNotLoaded)}
	return &StatusTracker{
		current: initial,
		value:   watch.NewValue(initial),
	}
}

func defaultMessage(p Phase) string {
	switch p {
	case PhaseLoading:
		return "Loading AI model..."
	case PhaseReady:
		return "Model ready for processing"
	case PhaseError:
		return "Model failed to load"
	default:
		return "Model not loaded"
	}
}

// SetPhase records a phase transition and derives its default message.
// A more specific message can be set afterwards with SetMessage.
func (t *StatusTracker) SetPhase(p Phase) {
	slog.Debug("model status updated", "phase", p)
	t.mu.Lock()
	t.current.Phase = p
	t.current.Message = defaultMessage(p)
	t.publish()
	t.mu.Unlock()
}

// SetProgress records load progress, clamped to [0,1].
func (t *StatusTracker) SetProgress(progress float64) {
	if progress < 0 {
		progress = 0
	} else if progress > 1 {
		progress = 1
	}
	t.mu.Lock()
	t.current.Progress = progress
	t.publish()
	t.mu.Unlock()
}

// SetMessage overrides the phase-derived message.
func (t *StatusTracker) SetMessage(message string) {
	t.mu.Lock()
	t.current.Message = message
	t.publish()
	t.mu.Unlock()
}

func (t *StatusTracker) publish() {
	t.value.Set(t.current)
}

// Status returns the current snapshot.
func (t *StatusTracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Watch delivers the current status immediately and every subsequent
// change until ctx is cancelled (latest-value-wins).
func (t *StatusTracker) Watch(ctx context.Context) <-chan Status {
	return t.value.Watch(ctx)
}

// IsReady reports whether the model finished loading.
func (t *StatusTracker) IsReady() bool {
	return t.Status().Phase == PhaseReady
}

// IsLoading reports whether a load is in progress.
func (t *StatusTracker) IsLoading() bool {
	return t.Status().Phase == PhaseLoading
}
