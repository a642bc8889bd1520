package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultGenerateTimeout bounds a single inference call. It is the
// inner of the two timeout layers; the processing queue applies a
// larger per-item deadline on top of it.
const DefaultGenerateTimeout = 30 * time.Second

type generateRequest struct {
	ctx    context.Context
	prompt string
	reply  chan string
}

// SessionManager owns the loaded model and mediates all access to it.
// The engine is expensive to load and not reentrant, so every Complete
// call runs on a single dedicated worker goroutine; at most one
// inference is in flight at any time, regardless of how many callers
// bypass the processing queue.
type SessionManager struct {
	modelPath string
	factory   Factory
	status    *StatusTracker
	timeout   time.Duration

	initMu sync.Mutex

	mu       sync.Mutex
	loaded   bool
	requests chan generateRequest
	done     chan struct{}
	stop     context.CancelFunc
}

// NewSessionManager creates a manager for the model artifact at
// modelPath. An empty modelPath skips the artifact checks, for engines
// whose weights live outside the local filesystem.
func NewSessionManager(modelPath string, factory Factory, status *StatusTracker) *SessionManager {
	return &SessionManager{
		modelPath: modelPath,
		factory:   factory,
		status:    status,
		timeout:   DefaultGenerateTimeout,
	}
}

// SetGenerateTimeout overrides the inner inference timeout. Call
// before Initialize.
func (m *SessionManager) SetGenerateTimeout(d time.Duration) {
	m.timeout = d
}

// IsAvailable reports whether the model artifact is present on disk.
func (m *SessionManager) IsAvailable() bool {
	if m.modelPath == "" {
		return true
	}
	_, err := os.Stat(m.modelPath)
	return err == nil
}

// IsReady reports whether the model is loaded and accepting prompts.
func (m *SessionManager) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

// Initialize loads the model, reporting milestone progress through the
// status tracker. Safe to call concurrently: a second call while a
// load is in flight blocks until the first finishes, then returns its
// outcome; calling on a READY manager is a no-op returning true.
func (m *SessionManager) Initialize(ctx context.Context) bool {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	if m.IsReady() {
		return true
	}

	slog.Info("starting model initialization", "path", m.modelPath)
	m.status.SetPhase(PhaseLoading)
	m.status.SetProgress(0.1)

	if err := m.checkArtifact(); err != nil {
		m.fail(err)
		return false
	}

	m.status.SetProgress(0.4)
	m.status.SetMessage("Creating inference engine...")

	engine, err := m.factory(ctx)
	if err != nil {
		slog.Error("failed to create inference engine", "error", err)
		m.fail(err)
		return false
	}

	m.status.SetProgress(0.6)
	m.status.SetMessage("Initializing AI model...")

	workerCtx, cancel := context.WithCancel(context.Background())
	requests := make(chan generateRequest)
	go m.run(workerCtx, engine, requests)

	m.status.SetProgress(0.8)
	m.status.SetMessage("Model ready for processing...")

	m.mu.Lock()
	m.loaded = true
	m.requests = requests
	m.done = make(chan struct{})
	m.stop = cancel
	m.mu.Unlock()

	m.status.SetProgress(1.0)
	m.status.SetPhase(PhaseReady)
	slog.Info("model loaded")
	return true
}

// checkArtifact verifies the model file exists and is readable before
// any engine work starts. Both checks are skipped when no path is
// configured.
func (m *SessionManager) checkArtifact() error {
	if m.modelPath == "" {
		return nil
	}

	info, err := os.Stat(m.modelPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", m.modelPath, ErrModelNotFound)
	}

	m.status.SetProgress(0.2)
	m.status.SetMessage("Loading model file...")
	slog.Debug("model artifact found", "path", m.modelPath, "size_bytes", info.Size())

	f, err := os.Open(m.modelPath)
	if err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("open %s: %w", m.modelPath, ErrPermission)
		}
		return fmt.Errorf("open %s: %w", m.modelPath, ErrModelUnreadable)
	}
	f.Close()

	return nil
}

// fail records an ERROR phase with a cause-specific message.
func (m *SessionManager) fail(err error) {
	m.status.SetPhase(PhaseError)
	m.status.SetMessage(loadErrorMessage(err))
}

func loadErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrModelNotFound):
		return "Model file not found"
	case errors.Is(err, ErrModelUnreadable):
		return "Cannot read model file"
	case errors.Is(err, ErrOutOfMemory):
		return "Out of memory loading model"
	case errors.Is(err, ErrNativeLoad):
		return "Native library loading failed"
	case errors.Is(err, ErrPermission):
		return "Permission denied"
	default:
		return fmt.Sprintf("Model initialization failed: %v", err)
	}
}

// run is the dedicated inference worker. It owns the engine handle and
// releases it when the manager is cleaned up, so the engine is closed
// exactly once even if Cleanup races an in-flight call.
func (m *SessionManager) run(ctx context.Context, engine Engine, requests chan generateRequest) {
	defer engine.Close()

	for {
		select {
		case req := <-requests:
			req.reply <- m.complete(ctx, engine, req)
		case <-ctx.Done():
			return
		}
	}
}

// complete executes one inference call under the inner timeout. The
// deadline derives from the worker context, so Cleanup actively
// cancels an in-flight call instead of abandoning it; the caller's own
// context is propagated through AfterFunc.
func (m *SessionManager) complete(workerCtx context.Context, engine Engine, req generateRequest) string {
	cctx, cancel := context.WithTimeout(workerCtx, m.timeout)
	defer cancel()
	stop := context.AfterFunc(req.ctx, cancel)
	defer stop()

	text, err := engine.Complete(cctx, req.prompt)
	if err != nil {
		slog.Error("inference call failed", "error", err)
		if errors.Is(err, context.DeadlineExceeded) || cctx.Err() == context.DeadlineExceeded {
			return "Error: generation timed out"
		}
		return fmt.Sprintf("Error: %v", err)
	}
	return text
}

// Generate runs a prompt through the model and always returns text:
// failures come back as an "Error: ..." string rather than an error
// value, so downstream parsing never has to special-case an absent
// response.
func (m *SessionManager) Generate(ctx context.Context, prompt string) string {
	m.mu.Lock()
	loaded, requests, done := m.loaded, m.requests, m.done
	m.mu.Unlock()

	if !loaded {
		slog.Error("cannot generate response: model not loaded")
		return "Error: Model not loaded"
	}

	req := generateRequest{ctx: ctx, prompt: prompt, reply: make(chan string, 1)}

	// The done channel covers a Cleanup racing this send: the worker
	// may exit without ever receiving the request, and a caller with
	// no deadline must not be left parked on the channel.
	select {
	case requests <- req:
	case <-done:
		return "Error: Model not loaded"
	case <-ctx.Done():
		return "Error: generation cancelled"
	}

	// Once the worker has the request a reply is guaranteed; complete
	// always returns text, even for a cancelled in-flight call.
	select {
	case text := <-req.reply:
		return text
	case <-ctx.Done():
		return "Error: generation cancelled"
	}
}

// Cleanup tears the session down: the worker goroutine stops, any
// in-flight call is cancelled, and the engine handle is released. The
// manager returns to NOT_LOADED and can be initialized again.
func (m *SessionManager) Cleanup() {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	m.mu.Lock()
	if !m.loaded {
		m.mu.Unlock()
		return
	}
	m.loaded = false
	stop := m.stop
	done := m.done
	m.requests = nil
	m.done = nil
	m.stop = nil
	m.mu.Unlock()

	stop()
	close(done)
	m.status.SetProgress(0)
	m.status.SetPhase(PhaseNotLoaded)
	slog.Info("model session released")
}
