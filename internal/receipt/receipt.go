package receipt

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is applied to every receipt; multi-currency parsing
// is not supported.
const DefaultCurrency = "USD"

const (
	// UnknownMerchant is used when no merchant name could be extracted.
	UnknownMerchant = "Unknown Merchant"
	// PlaceholderMerchant is shown while a receipt is waiting in the
	// processing queue.
	PlaceholderMerchant = "Processing..."
)

// Status is the processing state of a receipt. COMPLETED and FAILED
// are terminal; the queue takes no further action on them.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether the status is COMPLETED or FAILED.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Receipt is the durable record of a captured purchase.
type Receipt struct {
	ID              string          `json:"id"`
	MerchantName    string          `json:"merchant_name"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Currency        string          `json:"currency"`
	Date            time.Time       `json:"date"`
	Items           []Item          `json:"items,omitempty"`
	Category        Category        `json:"category"`
	RawText         string          `json:"raw_text,omitempty"`
	LLMResponse     string          `json:"llm_response,omitempty"`
	Status          Status          `json:"status"`
	ProcessingError string          `json:"processing_error,omitempty"`
	RetryCount      int             `json:"retry_count"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Item is a single line item on a receipt. Construct with NewItem so
// the total price is derived from quantity and unit price.
type Item struct {
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// NewItem builds an Item with total = quantity * unit price. Quantity
// is floored at 1.
func NewItem(name string, quantity int, unitPrice decimal.Decimal) Item {
	if quantity < 1 {
		quantity = 1
	}
	return Item{
		Name:       name,
		Quantity:   quantity,
		UnitPrice:  unitPrice,
		TotalPrice: unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

// NewItemWithTotal builds an Item whose total price was parsed
// explicitly rather than derived.
func NewItemWithTotal(name string, quantity int, unitPrice, totalPrice decimal.Decimal) Item {
	if quantity < 1 {
		quantity = 1
	}
	return Item{
		Name:       name,
		Quantity:   quantity,
		UnitPrice:  unitPrice,
		TotalPrice: totalPrice,
	}
}
