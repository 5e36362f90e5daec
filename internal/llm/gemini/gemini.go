// Package gemini implements llm.Embedder and llm.Generator against the
// Google Generative Language REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Ashok161/docquery/internal/llm"
)

const (
	defaultBaseURL         = "https://generativelanguage.googleapis.com/v1beta"
	defaultEmbedModel      = "text-embedding-004"
	defaultEmbedTimeout    = 30 * time.Second
	defaultGenerateTimeout = 20 * time.Second
)

// Client is the shared HTTP transport for one API key.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient validates the credential once and returns a transport for
// building embedders and generators. A missing or placeholder key fails
// here, before any remote call is made.
func NewClient(apiKey, baseURL string) (*Client, error) {
	if err := llm.ValidateAPIKey(apiKey); err != nil {
		return nil, err
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}, nil
}

// post sends a model request and returns the raw response body.
func (c *Client) post(ctx context.Context, model, method string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/models/%s:%s?key=%s", c.baseURL, model, method, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini: %s: %s", resp.Status, respBody)
	}
	return respBody, nil
}

// Embedder implements llm.Embedder for one embedding model.
type Embedder struct {
	client  *Client
	model   string
	timeout time.Duration
}

// NewEmbedder creates an embedder on the given transport.
func NewEmbedder(client *Client, model string, timeout time.Duration) *Embedder {
	if model == "" {
		model = defaultEmbedModel
	}
	if timeout <= 0 {
		timeout = defaultEmbedTimeout
	}
	return &Embedder{client: client, model: model, timeout: timeout}
}

func (e *Embedder) Name() string { return "gemini/" + e.model }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	body := map[string]any{
		"model": "models/" + e.model,
		"content": map[string]any{
			"parts": []map[string]string{{"text": text}},
		},
	}

	respBody, err := e.client.post(ctx, e.model, "embedContent", body)
	if err != nil {
		return nil, err
	}

	var result struct {
		Embedding struct {
			Values []float32 `json:"values"`
		} `json:"embedding"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("gemini: decoding embedding response: %w", err)
	}
	if len(result.Embedding.Values) == 0 {
		return nil, llm.ErrEmptyEmbedding
	}
	return result.Embedding.Values, nil
}

// GenerationConfig mirrors the API's generationConfig block.
type GenerationConfig struct {
	Temperature     float64
	TopK            int
	TopP            float64
	MaxOutputTokens int
}

// DefaultGenerationConfig returns the sampling settings used for
// grounded answering.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:     0.3,
		TopK:            40,
		TopP:            0.95,
		MaxOutputTokens: 1024,
	}
}

// Generator implements llm.Generator for one generation model.
type Generator struct {
	client  *Client
	model   string
	timeout time.Duration
	config  GenerationConfig
}

// NewGenerator creates a generator on the given transport.
func NewGenerator(client *Client, model string, timeout time.Duration, cfg GenerationConfig) *Generator {
	if timeout <= 0 {
		timeout = defaultGenerateTimeout
	}
	if cfg == (GenerationConfig{}) {
		cfg = DefaultGenerationConfig()
	}
	return &Generator{client: client, model: model, timeout: timeout, config: cfg}
}

func (g *Generator) Model() string { return g.model }

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]any{
			"temperature":     g.config.Temperature,
			"topK":            g.config.TopK,
			"topP":            g.config.TopP,
			"maxOutputTokens": g.config.MaxOutputTokens,
		},
	}

	respBody, err := g.client.post(ctx, g.model, "generateContent", body)
	if err != nil {
		return "", err
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("gemini: decoding generation response: %w", err)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: %s returned no candidates", g.model)
	}

	text := result.Candidates[0].Content.Parts[0].Text
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini: %s returned an empty answer", g.model)
	}
	return text, nil
}
