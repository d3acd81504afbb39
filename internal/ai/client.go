// Package ai answers questions over indexed text snippets using an external
// embedding and chat API. The feature is optional; without an API key the
// handler reports it unavailable.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/crewdesk/crewdesk/internal/config"
	"github.com/crewdesk/crewdesk/internal/ioutil"
	"github.com/crewdesk/crewdesk/internal/urlutil"
)

const defaultBaseURL = "https://api.openai.com"

const (
	embeddingModel = "text-embedding-3-small"
	chatModel      = "gpt-4"
)

// Client calls the embedding and chat completion endpoints.
type Client struct {
	apiKey  config.Secret
	baseURL string
	http    *http.Client
}

// NewClient builds a client. baseURL is overridable for tests; empty means
// the public API.
func NewClient(apiKey config.Secret, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for a text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	var resp embeddingResponse
	err := c.post(ctx, "/v1/embeddings", embeddingRequest{Input: text, Model: embeddingModel}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}
	return resp.Data[0].Embedding, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ChatWithContext asks the chat model a question grounded on the given
// context block.
func (c *Client) ChatWithContext(ctx context.Context, contextBlock, question string) (string, error) {
	req := chatRequest{
		Model: chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: "Answer based on context."},
			{Role: "user", Content: contextBlock + "\n\nQ: " + question},
		},
	}
	var resp chatResponse
	if err := c.post(ctx, "/v1/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat response contained no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	url, err := urlutil.JoinPath(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("failed to build request URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+string(c.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := ioutil.ReadLimited(resp.Body, 1024)
		return fmt.Errorf("request to %s failed: status %d: %s", path, resp.StatusCode, msg)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}
