package llm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// fakeEngine answers every prompt with a canned response after an
// optional delay, counting concurrent calls so tests can prove the
// manager serializes access.
type fakeEngine struct {
	response string
	err      error
	delay    time.Duration

	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
	closed   atomic.Bool
}

func (e *fakeEngine) Complete(ctx context.Context, prompt string) (string, error) {
	e.calls.Add(1)
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		peak := e.peak.Load()
		if n <= peak || e.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if e.err != nil {
		return "", e.err
	}
	return e.response, nil
}

func (e *fakeEngine) Close() error {
	e.closed.Store(true)
	return nil
}

var _ = Describe("SessionManager", func() {
	var (
		engine  *fakeEngine
		factory Factory
		tracker *StatusTracker
		manager *SessionManager
	)

	BeforeEach(func() {
		engine = &fakeEngine{response: "MERCHANT: Test"}
		factory = func(ctx context.Context) (Engine, error) {
			return engine, nil
		}
		tracker = NewStatusTracker()
	})

	JustBeforeEach(func() {
		manager = NewSessionManager("", factory, tracker)
		DeferCleanup(manager.Cleanup)
	})

	Describe("Initialize", func() {
		It("loads the model and reports READY", func() {
			Expect(manager.Initialize(context.Background())).To(BeTrue())
			Expect(manager.IsReady()).To(BeTrue())

			status := tracker.Status()
			Expect(status.Phase).To(Equal(PhaseReady))
			Expect(status.Progress).To(Equal(1.0))
		})

		It("is a no-op when already loaded", func() {
			Expect(manager.Initialize(context.Background())).To(BeTrue())
			Expect(manager.Initialize(context.Background())).To(BeTrue())
		})

		When("the factory fails", func() {
			BeforeEach(func() {
				factory = func(ctx context.Context) (Engine, error) {
					return nil, errors.New("boom")
				}
			})

			It("reports ERROR and stays unloaded", func() {
				Expect(manager.Initialize(context.Background())).To(BeFalse())
				Expect(manager.IsReady()).To(BeFalse())

				status := tracker.Status()
				Expect(status.Phase).To(Equal(PhaseError))
				Expect(status.Message).To(Equal("Model initialization failed: boom"))
			})
		})

		When("the factory reports out of memory", func() {
			BeforeEach(func() {
				factory = func(ctx context.Context) (Engine, error) {
					return nil, ErrOutOfMemory
				}
			})

			It("surfaces the cause-specific message", func() {
				Expect(manager.Initialize(context.Background())).To(BeFalse())
				Expect(tracker.Status().Message).To(Equal("Out of memory loading model"))
			})
		})
	})

	Describe("Initialize with a model artifact", func() {
		It("fails when the model file is missing", func() {
			m := NewSessionManager("/nonexistent/model.task", factory, tracker)
			Expect(m.Initialize(context.Background())).To(BeFalse())

			status := tracker.Status()
			Expect(status.Phase).To(Equal(PhaseError))
			Expect(status.Message).To(Equal("Model file not found"))
		})

		It("succeeds when the model file exists", func() {
			path := filepath.Join(GinkgoT().TempDir(), "model.task")
			Expect(os.WriteFile(path, []byte("weights"), 0600)).To(Succeed())

			m := NewSessionManager(path, factory, tracker)
			DeferCleanup(m.Cleanup)
			Expect(m.Initialize(context.Background())).To(BeTrue())
			Expect(m.IsAvailable()).To(BeTrue())
		})
	})

	Describe("Generate", func() {
		It("refuses before the model is loaded", func() {
			Expect(manager.Generate(context.Background(), "prompt")).To(Equal("Error: Model not loaded"))
			Expect(engine.calls.Load()).To(BeZero())
		})

		It("returns the engine response", func() {
			Expect(manager.Initialize(context.Background())).To(BeTrue())
			Expect(manager.Generate(context.Background(), "prompt")).To(Equal("MERCHANT: Test"))
		})

		It("returns an error string when the engine fails", func() {
			engine.err = errors.New("connection refused")
			Expect(manager.Initialize(context.Background())).To(BeTrue())
			Expect(manager.Generate(context.Background(), "prompt")).To(Equal("Error: connection refused"))
		})

		It("times out slow generations", func() {
			engine.delay = 500 * time.Millisecond
			manager.SetGenerateTimeout(20 * time.Millisecond)
			Expect(manager.Initialize(context.Background())).To(BeTrue())

			Expect(manager.Generate(context.Background(), "prompt")).To(Equal("Error: generation timed out"))
		})

		It("honors caller cancellation", func() {
			engine.delay = 500 * time.Millisecond
			Expect(manager.Initialize(context.Background())).To(BeTrue())

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			Expect(manager.Generate(ctx, "prompt")).To(Equal("Error: generation cancelled"))
		})

		It("serializes concurrent calls", func() {
			engine.delay = 10 * time.Millisecond
			Expect(manager.Initialize(context.Background())).To(BeTrue())

			var wg sync.WaitGroup
			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					manager.Generate(context.Background(), "prompt")
				}()
			}
			wg.Wait()

			Expect(engine.calls.Load()).To(Equal(int32(5)))
			Expect(engine.peak.Load()).To(Equal(int32(1)))
		})
	})

	Describe("Cleanup", func() {
		It("releases the engine and returns to NOT_LOADED", func() {
			Expect(manager.Initialize(context.Background())).To(BeTrue())

			manager.Cleanup()

			Expect(manager.IsReady()).To(BeFalse())
			Expect(tracker.Status().Phase).To(Equal(PhaseNotLoaded))
			Eventually(engine.closed.Load).Should(BeTrue())

			Expect(manager.Generate(context.Background(), "prompt")).To(Equal("Error: Model not loaded"))
		})

		It("unblocks a caller waiting behind an in-flight generation", func() {
			engine.delay = 100 * time.Millisecond
			Expect(manager.Initialize(context.Background())).To(BeTrue())

			// Occupy the worker so the next call parks on the request
			// channel, then tear the session down underneath it. The
			// caller has no deadline and must still get a reply.
			go manager.Generate(context.Background(), "first")
			Eventually(engine.calls.Load).Should(Equal(int32(1)))

			replies := make(chan string, 1)
			go func() {
				replies <- manager.Generate(context.Background(), "second")
			}()

			manager.Cleanup()

			Eventually(replies, 5*time.Second).Should(Receive(HavePrefix("Error:")))
		})

		It("is safe to call twice", func() {
			Expect(manager.Initialize(context.Background())).To(BeTrue())
			manager.Cleanup()
			manager.Cleanup()
		})

		It("allows re-initialization", func() {
			Expect(manager.Initialize(context.Background())).To(BeTrue())
			manager.Cleanup()

			second := &fakeEngine{response: "again"}
			factory = func(ctx context.Context) (Engine, error) { return second, nil }
			// JustBeforeEach captured the old factory inside the manager,
			// so swap it via a fresh manager against the same tracker.
			m := NewSessionManager("", factory, tracker)
			DeferCleanup(m.Cleanup)

			Expect(m.Initialize(context.Background())).To(BeTrue())
			Expect(m.Generate(context.Background(), "prompt")).To(Equal("again"))
		})
	})
})
