// Package openai implements embedding.Embedder, embedding.Describer, and
// embedding.Vision against the OpenAI HTTP API, via a hand-rolled
// net/http client rather than a generated SDK.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/semantic-router/router/pkg/embedding"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 30 * time.Second
)

// modelDimensions maps known embedding models to their native
// dimensionality; used only when Config.Dimensions is unset.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Config holds OpenAI client configuration shared by the embedding,
// describer, and vision roles — one Client answers all three ports.
type Config struct {
	APIKey string

	EmbeddingModel  string
	DescriptorModel string
	VisionModel     string

	// Dimensions overrides the model's native dimensionality, matching
	// DIMENSIONS in the environment/configuration table.
	Dimensions int

	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// Client implements embedding.Embedder, embedding.Describer, and
// embedding.Vision.
type Client struct {
	cfg        Config
	httpClient *http.Client
	dimension  int
}

// NewClient builds a Client, applying the same defaults/retries across
// all three roles.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, embedding.ErrInvalidAPIKey
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.DescriptorModel == "" {
		cfg.DescriptorModel = "gpt-4.1-mini"
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = "gpt-4.1-mini"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	dimension := cfg.Dimensions
	if dimension <= 0 {
		var ok bool
		dimension, ok = modelDimensions[cfg.EmbeddingModel]
		if !ok {
			dimension = 1536
		}
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		dimension:  dimension,
	}, nil
}

// --- Embedder ---

type embeddingRequest struct {
	Input interface{} `json:"input"`
	Model string      `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, embedding.ErrEmptyInput
	}
	embeddings, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, embedding.ErrEmptyInput
	}

	validTexts := make([]string, 0, len(texts))
	validIndices := make([]int, 0, len(texts))
	for i, text := range texts {
		if text != "" {
			validTexts = append(validTexts, text)
			validIndices = append(validIndices, i)
		}
	}
	if len(validTexts) == 0 {
		return nil, embedding.ErrEmptyInput
	}

	reqBody := embeddingRequest{Input: validTexts, Model: c.cfg.EmbeddingModel}
	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling embedding request: %w", err)
	}

	var resp embeddingResponse
	if err := c.doWithRetry(ctx, "/embeddings", reqJSON, &resp); err != nil {
		return nil, err
	}

	results := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < len(validIndices) {
			results[validIndices[data.Index]] = data.Embedding
		}
	}
	for i, text := range texts {
		if text == "" {
			results[i] = make([]float32, c.dimension)
		}
	}
	return results, nil
}

func (c *Client) Dimension() int    { return c.dimension }
func (c *Client) ModelName() string { return c.cfg.EmbeddingModel }

// --- Describer ---

type chatMessage struct {
	Role    string `json:"role"`
	Content interface{} `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const describerSystemPrompt = "You write concise, accurate descriptions of MCP tools for a semantic search index. Given a tool's server, hints, name, description, and parameters, produce one paragraph that a retrieval model can match against natural-language queries."

func (c *Client) Describe(ctx context.Context, document string) (string, error) {
	if document == "" {
		return "", embedding.ErrEmptyInput
	}

	reqBody := chatRequest{
		Model: c.cfg.DescriptorModel,
		Messages: []chatMessage{
			{Role: "system", Content: describerSystemPrompt},
			{Role: "user", Content: document},
		},
	}
	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling describe request: %w", err)
	}

	var resp chatResponse
	if err := c.doWithRetry(ctx, "/chat/completions", reqJSON, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// --- Vision ---

const visionPrompt = "Describe this image in one or two sentences, for use as a content preview."

func (c *Client) DescribeImage(ctx context.Context, data []byte, mime string) (string, error) {
	if len(data) == 0 {
		return "", embedding.ErrEmptyInput
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
	content := []map[string]interface{}{
		{"type": "text", "text": visionPrompt},
		{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
	}

	reqBody := chatRequest{
		Model: c.cfg.VisionModel,
		Messages: []chatMessage{
			{Role: "user", Content: content},
		},
	}
	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling vision request: %w", err)
	}

	var resp chatResponse
	if err := c.doWithRetry(ctx, "/chat/completions", reqJSON, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// --- shared request plumbing ---

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (c *Client) doWithRetry(ctx context.Context, path string, body []byte, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt*attempt) * 100 * time.Millisecond)
		}

		lastErr = c.doRequest(ctx, path, body, out)
		if lastErr == nil {
			return nil
		}
		if lastErr == embedding.ErrInvalidAPIKey || lastErr == embedding.ErrContextTooLong {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) doRequest(ctx context.Context, path string, body []byte, out interface{}) error {
	url := c.cfg.BaseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				return embedding.ErrInvalidAPIKey
			case http.StatusTooManyRequests:
				return embedding.ErrRateLimited
			case http.StatusBadRequest:
				if errResp.Error.Code == "context_length_exceeded" {
					return embedding.ErrContextTooLong
				}
			case http.StatusNotFound:
				return embedding.ErrModelNotFound
			}
			return fmt.Errorf("API error: %s", errResp.Error.Message)
		}
		return fmt.Errorf("API error: status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

var (
	_ embedding.Embedder  = (*Client)(nil)
	_ embedding.Describer = (*Client)(nil)
	_ embedding.Vision    = (*Client)(nil)
)
