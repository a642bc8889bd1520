// Package ocr extracts printed text from captured receipt images. The
// gateway is deliberately narrow: the processing pipeline only ever
// needs raw text, and an empty string is a legal "nothing found"
// result rather than an error.
package ocr

import "context"

// Gateway converts a receipt image into its printed text.
type Gateway interface {
	// ExtractText returns the text found in the image. contentType
	// may be empty, in which case the format is sniffed from the
	// data. Callers must apply their own deadline through ctx; the
	// gateway is not assumed to return promptly.
	ExtractText(ctx context.Context, image []byte, contentType string) (string, error)
}
