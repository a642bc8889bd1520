package llm

import (
	"context"
	"errors"
)

// Engine is the raw inference runtime: submit a prompt, block until the
// full response text is available. Implementations are not assumed to
// be reentrant; the SessionManager serializes all access. Each Complete
// call must be answered independently of any prior call's content.
type Engine interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Close() error
}

// Factory constructs the engine during model initialization. Errors
// should wrap one of the sentinel load errors below where the cause is
// known, so the SessionManager can surface a cause-specific message.
type Factory func(ctx context.Context) (Engine, error)

// Load failure taxonomy. Model loads routinely fail on
// memory-constrained devices, so the distinction is user-facing.
var (
	ErrModelNotFound   = errors.New("model file not found")
	ErrModelUnreadable = errors.New("cannot read model file")
	ErrOutOfMemory     = errors.New("out of memory loading model")
	ErrNativeLoad      = errors.New("native library loading failed")
	ErrPermission      = errors.New("permission denied")
)

// Fixed sampling configuration. Callers cannot override these; every
// receipt is parsed with the same decoding behavior.
const (
	samplingTopK        = 40
	samplingTopP        = 0.95
	samplingTemperature = 0.8
)
