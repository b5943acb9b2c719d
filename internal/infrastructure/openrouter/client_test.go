package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/medrex/go-saferx/internal/engine"
)

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = url
	cfg.APIKey = "test-key"
	cfg.Model = "test/model"
	cfg.MaxTokens = 512
	cfg.Temperature = 0.1
	return cfg
}

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	})
	return string(b)
}

func TestInvoke_BuildsRequestFromConfig(t *testing.T) {
	var captured struct {
		auth, referer, title string
		body                 chatRequest
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.auth = r.Header.Get("Authorization")
		captured.referer = r.Header.Get("HTTP-Referer")
		captured.title = r.Header.Get("X-Title")
		if err := json.NewDecoder(r.Body).Decode(&captured.body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(completionBody("analysis text")))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Referer = "https://saferx.example.org"
	client := New(cfg, nil)

	content, err := client.Invoke(context.Background(), "analyze these medications")
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if content != "analysis text" {
		t.Fatalf("unexpected content %q", content)
	}

	if captured.auth != "Bearer test-key" {
		t.Fatalf("unexpected Authorization header %q", captured.auth)
	}
	if captured.referer != "https://saferx.example.org" {
		t.Fatalf("unexpected referer %q", captured.referer)
	}
	if captured.title == "" {
		t.Fatal("expected X-Title header")
	}
	if captured.body.Model != "test/model" || captured.body.MaxTokens != 512 {
		t.Fatalf("request body not built from config: %+v", captured.body)
	}
	if len(captured.body.Messages) != 2 || captured.body.Messages[0].Role != "system" || captured.body.Messages[1].Role != "user" {
		t.Fatalf("expected system then user message, got %+v", captured.body.Messages)
	}
	if captured.body.Messages[1].Content != "analyze these medications" {
		t.Fatalf("user message should carry the prompt, got %q", captured.body.Messages[1].Content)
	}
}

func TestInvoke_MissingCredential(t *testing.T) {
	cfg := testConfig("http://localhost:0")
	cfg.APIKey = ""
	client := New(cfg, nil)

	_, err := client.Invoke(context.Background(), "prompt")

	var cfgErr *engine.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %T: %v", err, err)
	}
}

func TestInvoke_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := New(testConfig(server.URL), nil)
	_, err := client.Invoke(context.Background(), "prompt")

	var protoErr *engine.ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected ProtocolError, got %T: %v", err, err)
	}
	if protoErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected status 429 in error, got %d", protoErr.StatusCode)
	}
}

func TestInvoke_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	client := New(testConfig(server.URL), nil)
	_, err := client.Invoke(context.Background(), "prompt")

	var protoErr *engine.ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected ProtocolError for empty choices, got %T: %v", err, err)
	}
}

func TestInvoke_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	client := New(testConfig(server.URL), nil)
	_, err := client.Invoke(context.Background(), "prompt")

	var transErr *engine.TransportError
	if !errors.As(err, &transErr) {
		t.Fatalf("expected TransportError, got %T: %v", err, err)
	}
}

func TestInvoke_TimeoutIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(completionBody("late")))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Timeout = 20 * time.Millisecond
	client := New(cfg, nil)

	_, err := client.Invoke(context.Background(), "prompt")

	var transErr *engine.TransportError
	if !errors.As(err, &transErr) {
		t.Fatalf("expected TransportError on timeout, got %T: %v", err, err)
	}
}
