// Package processing contains the asynchronous receipt pipeline: the
// serialized queue, the per-item processor, and the tolerant parser
// that turns model output into structured receipts.
package processing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/checkstand/checkstand/internal/receipt"
)

// PendingReceipt is a unit of work waiting in the queue. Exactly one
// of Image, ImagePath, or RawText is set. It is owned by the queue and
// never persisted; the placeholder Receipt derived from it is what the
// store sees.
type PendingReceipt struct {
	ID          string
	Image       []byte
	ContentType string
	ImagePath   string
	RawText     string
	CreatedAt   time.Time
	RetryCount  int
}

// Placeholder converts the pending item into a PENDING receipt for
// immediate display. The ID carries over unchanged to the completed
// record.
func (p PendingReceipt) Placeholder() receipt.Receipt {
	return receipt.Receipt{
		ID:           p.ID,
		MerchantName: receipt.PlaceholderMerchant,
		TotalAmount:  decimal.Zero,
		Currency:     receipt.DefaultCurrency,
		Date:         p.CreatedAt,
		Category:     receipt.CategoryUncategorized,
		RawText:      p.RawText,
		Status:       receipt.StatusPending,
		RetryCount:   p.RetryCount,
		CreatedAt:    p.CreatedAt,
	}
}
