package processing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/checkstand/checkstand/internal/receipt"
)

type mockGateway struct {
	text  string
	err   error
	calls atomic.Int32
	last  []byte
}

func (g *mockGateway) ExtractText(ctx context.Context, image []byte, contentType string) (string, error) {
	g.calls.Add(1)
	g.last = image
	return g.text, g.err
}

type mockGenerator struct {
	response string
	calls    atomic.Int32
	prompt   string
}

func (g *mockGenerator) Generate(ctx context.Context, prompt string) string {
	g.calls.Add(1)
	g.prompt = prompt
	return g.response
}

var _ = Describe("Processor", func() {
	var (
		gateway   *mockGateway
		generator *mockGenerator
		processor *Processor
	)

	BeforeEach(func() {
		gateway = &mockGateway{text: "RECEIPT TEXT"}
		generator = &mockGenerator{response: "MERCHANT: Shop\nTOTAL: $5.00"}
		processor = NewProcessor(gateway, generator)
	})

	It("runs an image through OCR and then the model", func() {
		r, err := processor.Process(context.Background(), PendingReceipt{
			ID:    "img-1",
			Image: []byte("jpeg bytes"),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(gateway.calls.Load()).To(Equal(int32(1)))
		Expect(generator.prompt).To(ContainSubstring("RECEIPT TEXT"))
		Expect(r.MerchantName).To(Equal("Shop"))
		Expect(r.TotalAmount.String()).To(Equal("5"))
	})

	It("skips OCR for raw text items", func() {
		r, err := processor.Process(context.Background(), PendingReceipt{
			ID:      "txt-1",
			RawText: "CORNER STORE\nTOTAL 3.25",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(gateway.calls.Load()).To(BeZero())
		Expect(r.RawText).To(Equal("CORNER STORE\nTOTAL 3.25"))
	})

	It("reads image files from disk", func() {
		path := filepath.Join(GinkgoT().TempDir(), "capture.jpg")
		Expect(os.WriteFile(path, []byte("file bytes"), 0600)).To(Succeed())

		_, err := processor.Process(context.Background(), PendingReceipt{
			ID:        "file-1",
			ImagePath: path,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(gateway.last).To(Equal([]byte("file bytes")))
	})

	It("fails when the capture file is missing", func() {
		_, err := processor.Process(context.Background(), PendingReceipt{
			ID:        "file-2",
			ImagePath: "/nonexistent/capture.jpg",
		})
		Expect(err).To(HaveOccurred())
		Expect(generator.calls.Load()).To(BeZero())
	})

	It("fails without an inference call when OCR finds no text", func() {
		gateway.text = "   \n  "
		_, err := processor.Process(context.Background(), PendingReceipt{
			ID:    "img-2",
			Image: []byte("blank page"),
		})
		Expect(err).To(MatchError(ErrEmptyExtraction))
		Expect(generator.calls.Load()).To(BeZero())
	})

	It("propagates OCR failures", func() {
		gateway.err = errors.New("vision server unreachable")
		_, err := processor.Process(context.Background(), PendingReceipt{
			ID:    "img-3",
			Image: []byte("bytes"),
		})
		Expect(err).To(MatchError(ContainSubstring("vision server unreachable")))
		Expect(generator.calls.Load()).To(BeZero())
	})

	It("treats error-prefixed model replies as failures", func() {
		generator.response = "Error: generation timed out"
		_, err := processor.Process(context.Background(), PendingReceipt{
			ID:      "txt-2",
			RawText: "some receipt",
		})
		Expect(err).To(MatchError("Error: generation timed out"))
	})

	It("rejects items with no payload", func() {
		_, err := processor.Process(context.Background(), PendingReceipt{ID: "empty"})
		Expect(err).To(MatchError(ErrNoInput))
	})
})

var _ = Describe("PendingReceipt", func() {
	It("derives a PENDING placeholder that keeps the identity", func() {
		item := PendingReceipt{ID: "abc", RawText: "text"}
		placeholder := item.Placeholder()

		Expect(placeholder.ID).To(Equal("abc"))
		Expect(placeholder.Status).To(Equal(receipt.StatusPending))
		Expect(placeholder.MerchantName).To(Equal(receipt.PlaceholderMerchant))
		Expect(placeholder.TotalAmount.String()).To(Equal("0"))
		Expect(placeholder.Category).To(Equal(receipt.CategoryUncategorized))
	})
})
