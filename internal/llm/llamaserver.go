package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// LlamaServer is an Engine backed by a llama.cpp-style server speaking
// the Ollama chat API on localhost. The server owns the loaded weights;
// this client sends a fresh, history-free chat per Complete call so no
// token context leaks between receipts.
type LlamaServer struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewLlamaServer creates a client for the local inference server. No
// per-client timeout is set; the SessionManager applies its own
// deadline through the request context.
func NewLlamaServer(baseURL, model string) *LlamaServer {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &LlamaServer{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{},
	}
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// Complete sends the prompt as a single-turn chat and returns the
// response text. Cancelling ctx aborts the in-flight HTTP request,
// which interrupts generation on the server side.
func (l *LlamaServer) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model:  l.model,
		Stream: false,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Options: map[string]any{
			"top_k":       samplingTopK,
			"top_p":       samplingTopP,
			"temperature": samplingTemperature,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", l.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling inference server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", classifyServerError(resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	return strings.TrimSpace(chatResp.Message.Content), nil
}

// classifyServerError maps server failures onto the load-error
// taxonomy where the body makes the cause recognizable.
func classifyServerError(status int, body string) error {
	lower := strings.ToLower(body)
	switch {
	case strings.Contains(lower, "out of memory") || strings.Contains(lower, "cannot allocate"):
		return fmt.Errorf("inference server (status %d): %s: %w", status, body, ErrOutOfMemory)
	case status == http.StatusForbidden || status == http.StatusUnauthorized:
		return fmt.Errorf("inference server (status %d): %s: %w", status, body, ErrPermission)
	case strings.Contains(lower, "no such model") || strings.Contains(lower, "not found"):
		return fmt.Errorf("inference server (status %d): %s: %w", status, body, ErrModelNotFound)
	default:
		return fmt.Errorf("inference server error (status %d): %s", status, body)
	}
}

// Close is a no-op; the server process owns the model lifetime.
func (l *LlamaServer) Close() error {
	return nil
}
