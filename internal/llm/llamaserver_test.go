package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LlamaServer", func() {
	It("sends a single-turn chat with fixed sampling options", func() {
		var captured chatRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/api/chat"))
			Expect(json.NewDecoder(r.Body).Decode(&captured)).To(Succeed())
			json.NewEncoder(w).Encode(chatResponse{
				Message: chatMessage{Role: "assistant", Content: "  MERCHANT: Shop  "},
				Done:    true,
			})
		}))
		DeferCleanup(server.Close)

		engine := NewLlamaServer(server.URL, "gemma3n:e4b")
		text, err := engine.Complete(context.Background(), "the prompt")
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("MERCHANT: Shop"))

		Expect(captured.Model).To(Equal("gemma3n:e4b"))
		Expect(captured.Stream).To(BeFalse())
		Expect(captured.Messages).To(HaveLen(1))
		Expect(captured.Messages[0].Role).To(Equal("user"))
		Expect(captured.Messages[0].Content).To(Equal("the prompt"))
		Expect(captured.Options).To(HaveKeyWithValue("top_k", float64(samplingTopK)))
		Expect(captured.Options).To(HaveKeyWithValue("top_p", samplingTopP))
		Expect(captured.Options).To(HaveKeyWithValue("temperature", samplingTemperature))
	})

	It("classifies out-of-memory responses", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "cuda: out of memory", http.StatusInternalServerError)
		}))
		DeferCleanup(server.Close)

		engine := NewLlamaServer(server.URL, "gemma3n:e4b")
		_, err := engine.Complete(context.Background(), "prompt")
		Expect(err).To(MatchError(ErrOutOfMemory))
	})

	It("classifies missing-model responses", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `no such model: "missing"`, http.StatusNotFound)
		}))
		DeferCleanup(server.Close)

		engine := NewLlamaServer(server.URL, "missing")
		_, err := engine.Complete(context.Background(), "prompt")
		Expect(err).To(MatchError(ErrModelNotFound))
	})

	It("classifies authorization failures", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "forbidden", http.StatusForbidden)
		}))
		DeferCleanup(server.Close)

		engine := NewLlamaServer(server.URL, "gemma3n:e4b")
		_, err := engine.Complete(context.Background(), "prompt")
		Expect(err).To(MatchError(ErrPermission))
	})

	It("aborts when the context is cancelled", func() {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		DeferCleanup(server.Close)
		DeferCleanup(func() { close(release) })

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		engine := NewLlamaServer(server.URL, "gemma3n:e4b")
		_, err := engine.Complete(ctx, "prompt")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("BuildReceiptPrompt", func() {
	It("embeds the raw text in the extraction prompt", func() {
		prompt := BuildReceiptPrompt("CORNER STORE\nTOTAL 9.99")
		Expect(prompt).To(ContainSubstring("CORNER STORE"))
		Expect(prompt).To(ContainSubstring("MERCHANT:"))
		Expect(prompt).To(ContainSubstring("TOTAL:"))
	})
})
