package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/checkstand/checkstand/internal/receipt"
	"github.com/checkstand/checkstand/internal/watch"
)

const (
	// MaxRetryCount is the total number of attempts per item; an item
	// that fails on its last attempt is marked FAILED permanently.
	MaxRetryCount = 3

	// DefaultItemTimeout bounds one full attempt (OCR + inference +
	// parse). It is deliberately larger than the session manager's
	// inner inference timeout; it is the backstop against any single
	// step hanging.
	DefaultItemTimeout = 2 * time.Minute
)

// Runner processes a single pending item. Satisfied by *Processor.
type Runner interface {
	Process(ctx context.Context, item PendingReceipt) (receipt.Receipt, error)
}

// Queue is the serialized background worker for receipt processing.
// Enqueue returns a persisted placeholder immediately; a single worker
// goroutine drains the queue FIFO, so at most one item is ever being
// processed and at most one inference session is open at a time.
// Every accepted item eventually reaches COMPLETED or FAILED.
type Queue struct {
	runner      Runner
	store       receipt.Store
	itemTimeout time.Duration

	mu      sync.Mutex
	pending []PendingReceipt
	running bool

	processing *watch.Value[bool]
	currentID  *watch.Value[string]
}

// NewQueue creates an idle queue. The worker starts on first enqueue.
func NewQueue(runner Runner, store receipt.Store) *Queue {
	return &Queue{
		runner:      runner,
		store:       store,
		itemTimeout: DefaultItemTimeout,
		processing:  watch.NewValue(false),
		currentID:   watch.NewValue(""),
	}
}

// SetItemTimeout overrides the per-item deadline.
func (q *Queue) SetItemTimeout(d time.Duration) {
	q.itemTimeout = d
}

// EnqueueImage queues an in-memory capture for processing.
func (q *Queue) EnqueueImage(image []byte, contentType string) receipt.Receipt {
	return q.enqueue(PendingReceipt{
		ID:          uuid.NewString(),
		Image:       image,
		ContentType: contentType,
		CreatedAt:   time.Now(),
	})
}

// EnqueueImageFile queues a capture stored on disk.
func (q *Queue) EnqueueImageFile(path, contentType string) receipt.Receipt {
	return q.enqueue(PendingReceipt{
		ID:          uuid.NewString(),
		ImagePath:   path,
		ContentType: contentType,
		CreatedAt:   time.Now(),
	})
}

// EnqueueText queues already-extracted receipt text.
func (q *Queue) EnqueueText(text string) receipt.Receipt {
	return q.enqueue(PendingReceipt{
		ID:        uuid.NewString(),
		RawText:   text,
		CreatedAt: time.Now(),
	})
}

// enqueue persists the placeholder, appends the item, and kicks the
// worker if it is idle. It never blocks on processing; the returned
// placeholder is all the caller gets until the worker catches up.
func (q *Queue) enqueue(item PendingReceipt) receipt.Receipt {
	placeholder := item.Placeholder()
	if err := q.store.Insert(placeholder); err != nil {
		// The placeholder write is best-effort UI feedback; the item
		// still gets processed.
		slog.Error("failed to persist placeholder", "id", item.ID, "error", err)
	}

	// The processing flag flips under the same lock as running so a
	// draining worker's reset can never land after a new worker's
	// start.
	q.mu.Lock()
	q.pending = append(q.pending, item)
	size := len(q.pending)
	start := !q.running
	if start {
		q.running = true
		q.processing.Set(true)
	}
	q.mu.Unlock()

	slog.Debug("receipt queued", "id", item.ID, "queue_size", size)

	if start {
		go q.run()
	}

	return placeholder
}

// Size returns the number of items not yet dispatched to the worker.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Clear drops all undispatched items. The item currently in flight,
// if any, is unaffected, as are receipts already persisted.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.pending = nil
	q.mu.Unlock()
	slog.Debug("queue cleared")
}

// Processing reports whether the worker loop is active.
func (q *Queue) Processing() bool {
	return q.processing.Get()
}

// WatchProcessing observes the worker-active flag.
func (q *Queue) WatchProcessing(ctx context.Context) <-chan bool {
	return q.processing.Watch(ctx)
}

// CurrentID returns the ID of the item in flight, or "" when idle.
func (q *Queue) CurrentID() string {
	return q.currentID.Get()
}

// WatchCurrentID observes the in-flight item ID.
func (q *Queue) WatchCurrentID(ctx context.Context) <-chan string {
	return q.currentID.Watch(ctx)
}

// run is the worker loop: pop the head under the lock, process it
// outside the lock so enqueues are never blocked by inference, repeat
// until drained.
func (q *Queue) run() {
	slog.Debug("queue worker started")

	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.currentID.Set("")
			q.processing.Set(false)
			q.mu.Unlock()
			slog.Debug("queue worker drained")
			return
		}
		item := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.processItem(item)
	}
}

// processItem runs one attempt for one item. Any failure, including a
// panic-free error of any kind, goes through the retry policy; nothing
// escapes to kill the worker loop.
func (q *Queue) processItem(item PendingReceipt) {
	q.currentID.Set(item.ID)
	q.setStatus(item.ID, receipt.StatusProcessing, "", item.RetryCount)

	ctx, cancel := context.WithTimeout(context.Background(), q.itemTimeout)
	result, err := q.runner.Process(ctx, item)
	deadlineHit := ctx.Err() == context.DeadlineExceeded
	cancel()

	if err != nil {
		message := err.Error()
		if errors.Is(err, context.DeadlineExceeded) || deadlineHit {
			message = "Processing timed out"
		}
		slog.Warn("receipt processing failed", "id", item.ID, "attempt", item.RetryCount+1, "error", err)
		q.handleFailure(item, message)
		return
	}

	// The parsed receipt keeps the identity and history of the
	// placeholder; only the extracted fields are new.
	result.ID = item.ID
	result.Status = receipt.StatusCompleted
	result.ProcessingError = ""
	result.RetryCount = item.RetryCount
	result.CreatedAt = item.CreatedAt

	if err := q.store.Update(result); err != nil {
		slog.Error("failed to persist completed receipt", "id", item.ID, "error", err)
		return
	}
	slog.Info("receipt processed", "id", item.ID, "merchant", result.MerchantName, "total", result.TotalAmount)
}

// handleFailure applies the bounded retry policy: re-append at the
// tail (so other pending items get fair turns) while attempts remain,
// otherwise mark the receipt FAILED with the last error.
func (q *Queue) handleFailure(item PendingReceipt, message string) {
	retry := item.RetryCount + 1
	if retry < MaxRetryCount {
		item.RetryCount = retry
		q.mu.Lock()
		q.pending = append(q.pending, item)
		q.mu.Unlock()
		q.setStatus(item.ID, receipt.StatusPending, fmt.Sprintf("Retrying... (attempt %d)", retry), retry)
		return
	}

	slog.Error("max retries exceeded", "id", item.ID, "error", message)

	// When the input was text we still have something to work with:
	// salvage a merchant and total heuristically so the failed record
	// is not an empty shell.
	if item.RawText != "" {
		fallback := FallbackReceipt(item.RawText, "")
		fallback.ID = item.ID
		fallback.Status = receipt.StatusFailed
		fallback.ProcessingError = message
		fallback.RetryCount = item.RetryCount
		fallback.CreatedAt = item.CreatedAt
		if err := q.store.Update(fallback); err != nil {
			slog.Error("failed to persist fallback receipt", "id", item.ID, "error", err)
		}
		return
	}

	q.setStatus(item.ID, receipt.StatusFailed, message, item.RetryCount)
}

// setStatus writes a status transition through to the store. Failures
// are logged and swallowed: the receipt may have been deleted by the
// user mid-processing, and the worker loop must outlive any single
// item.
func (q *Queue) setStatus(id string, status receipt.Status, errMessage string, retryCount int) {
	receipts, err := q.store.GetAll()
	if err != nil {
		slog.Error("failed to read receipts for status update", "id", id, "error", err)
		return
	}

	for _, r := range receipts {
		if r.ID != id {
			continue
		}
		r.Status = status
		r.ProcessingError = errMessage
		r.RetryCount = retryCount
		if err := q.store.Update(r); err != nil {
			slog.Error("failed to update receipt status", "id", id, "status", status, "error", err)
		}
		return
	}

	slog.Warn("receipt not found for status update", "id", id, "status", status)
}
