// Package openrouter provides the HTTP client for the chat-completions
// inference endpoint used by the safety engine.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/medrex/go-saferx/internal/engine"
)

// Config holds the transport configuration for one inference endpoint.
// Everything in the request body comes from here; nothing is hardcoded in
// the client.
type Config struct {
	// BaseURL is the full chat-completions endpoint URL.
	BaseURL string
	// APIKey is the bearer credential. It is sent in the Authorization
	// header and must never appear in logs.
	APIKey string
	// Model is the model identifier requested from the endpoint.
	Model string
	// SystemPrompt fixes the assistant's role for every request.
	SystemPrompt string
	// MaxTokens is the completion token budget.
	MaxTokens int
	// Temperature controls sampling; keep low for clinical consistency.
	Temperature float64
	// Timeout bounds one request round trip.
	Timeout time.Duration
	// Referer and AppTitle populate the optional descriptive headers some
	// gateways use for attribution.
	Referer  string
	AppTitle string
}

// DefaultConfig returns defaults for the OpenRouter gateway.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "https://openrouter.ai/api/v1/chat/completions",
		Model:        "openai/gpt-4o-mini",
		SystemPrompt: "You are a clinical pharmacist assistant. You analyze medication lists for safety concerns and respond only with the requested JSON.",
		MaxTokens:    2000,
		Temperature:  0.2,
		Timeout:      45 * time.Second,
		AppTitle:     "saferx-analysis",
	}
}

// Client calls the inference endpoint. It is stateless apart from the
// shared http.Client and safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
	tracer trace.Tracer
}

// New creates a client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		tracer: otel.Tracer("openrouter-client"),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Invoke sends the prompt and returns the first completion's message
// content verbatim. The content itself is not validated here; that is the
// interpreter's job.
func (c *Client) Invoke(ctx context.Context, prompt string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", &engine.ConfigurationError{Reason: "no API credential configured"}
	}

	ctx, span := c.tracer.Start(ctx, "inference_invoke",
		trace.WithAttributes(
			attribute.String("model", c.cfg.Model),
			attribute.Int("prompt_bytes", len(prompt)),
		))
	defer span.End()

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: c.cfg.SystemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", &engine.ProtocolError{Detail: "encode request: " + err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", &engine.ConfigurationError{Reason: "invalid endpoint URL: " + c.cfg.BaseURL}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.AppTitle != "" {
		req.Header.Set("X-Title", c.cfg.AppTitle)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", &engine.TransportError{Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := readBodyPrefix(resp.Body, 2048)
		c.logger.Warn("inference endpoint returned non-success status",
			zap.Int("status", resp.StatusCode),
			zap.String("model", c.cfg.Model))
		return "", &engine.ProtocolError{StatusCode: resp.StatusCode, Detail: detail}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &engine.ProtocolError{StatusCode: resp.StatusCode, Detail: "undecodable envelope: " + err.Error()}
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", &engine.ProtocolError{StatusCode: resp.StatusCode, Detail: "empty choices in response"}
	}

	return out.Choices[0].Message.Content, nil
}

func readBodyPrefix(r io.Reader, max int64) string {
	b, _ := io.ReadAll(io.LimitReader(r, max))
	return string(b)
}
