package processing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/checkstand/checkstand/internal/llm"
	"github.com/checkstand/checkstand/internal/ocr"
	"github.com/checkstand/checkstand/internal/receipt"
)

// TextGenerator is the slice of the session manager the processor
// needs: prompt in, text out, failures encoded as "Error: ..." text.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) string
}

// ErrNoInput means a pending item carried no payload at all; it cannot
// succeed on retry.
var ErrNoInput = errors.New("no input payload for processing")

// ErrEmptyExtraction means OCR found no text in the image. The item
// fails without an inference call ever being made.
var ErrEmptyExtraction = errors.New("no text could be extracted from image")

// Processor drives a single pending item through extraction,
// inference, and parsing.
type Processor struct {
	ocr ocr.Gateway
	llm TextGenerator
}

// NewProcessor wires the processor's collaborators.
func NewProcessor(gateway ocr.Gateway, generator TextGenerator) *Processor {
	return &Processor{ocr: gateway, llm: generator}
}

// Process runs one item to completion and returns the parsed receipt.
// Image payloads go through OCR first; raw text skips straight to the
// model. The returned receipt has no ID or status set; the queue owns
// those.
func (p *Processor) Process(ctx context.Context, item PendingReceipt) (receipt.Receipt, error) {
	rawText, err := p.extractText(ctx, item)
	if err != nil {
		return receipt.Receipt{}, err
	}

	prompt := llm.BuildReceiptPrompt(rawText)
	response := p.llm.Generate(ctx, prompt)

	// The generator's contract is text-always; an error-prefixed
	// reply is its failure signal and flows into the retry policy
	// rather than being parsed as receipt data.
	if strings.HasPrefix(response, "Error:") {
		return receipt.Receipt{}, errors.New(response)
	}

	return ParseResponse(response, rawText), nil
}

// extractText resolves the item's payload to raw receipt text.
func (p *Processor) extractText(ctx context.Context, item PendingReceipt) (string, error) {
	switch {
	case item.RawText != "":
		return item.RawText, nil

	case item.Image != nil:
		return p.runOCR(ctx, item.Image, item.ContentType)

	case item.ImagePath != "":
		data, err := os.ReadFile(item.ImagePath)
		if err != nil {
			return "", fmt.Errorf("reading capture %s: %w", item.ImagePath, err)
		}
		return p.runOCR(ctx, data, item.ContentType)

	default:
		return "", ErrNoInput
	}
}

func (p *Processor) runOCR(ctx context.Context, image []byte, contentType string) (string, error) {
	text, err := p.ocr.ExtractText(ctx, image, contentType)
	if err != nil {
		return "", fmt.Errorf("extracting text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyExtraction
	}
	return text, nil
}
