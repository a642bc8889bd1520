package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// transcribePrompt asks the vision model for a verbatim transcription.
// Anything beyond the printed text degrades the structured parse that
// runs afterwards.
const transcribePrompt = `Transcribe all text visible in this receipt image. Output the raw text exactly as printed, one line per printed line. Do not summarize, translate, or add any commentary.`

// VisionClient implements Gateway with a local vision model behind an
// Ollama-compatible chat API.
type VisionClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewVisionClient creates a client for the local vision model.
// Reasonable models for receipt transcription: llava:1.6, qwen2-vl:7b.
func NewVisionClient(baseURL, model string) *VisionClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llava"
	}
	return &VisionClient{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{},
	}
}

type visionChatRequest struct {
	Model    string              `json:"model"`
	Messages []visionChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type visionChatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type visionChatResponse struct {
	Message visionChatMessage `json:"message"`
	Done    bool              `json:"done"`
}

// ExtractText normalizes the image to PNG and asks the vision model to
// transcribe it.
func (v *VisionClient) ExtractText(ctx context.Context, imageData []byte, contentType string) (string, error) {
	pngData, err := NormalizeImage(imageData, contentType)
	if err != nil {
		return "", err
	}

	reqBody := visionChatRequest{
		Model:  v.model,
		Stream: false,
		Messages: []visionChatMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading receipts and invoices. You transcribe text from images accurately and completely.",
			},
			{
				Role:    "user",
				Content: transcribePrompt,
				Images:  []string{base64.StdEncoding.EncodeToString(pngData)},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", v.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling vision model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("vision model error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp visionChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	return strings.TrimSpace(chatResp.Message.Content), nil
}
