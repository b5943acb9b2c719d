package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/medrex/go-saferx/internal/domain/safety"
)

// fakeClient scripts Invoke outcomes and records call times.
type fakeClient struct {
	mu        sync.Mutex
	responses []fakeResponse
	calls     int
	callTimes []time.Time
}

type fakeResponse struct {
	content string
	err     error
}

func (f *fakeClient) Invoke(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callTimes = append(f.callTimes, time.Now())
	idx := f.calls
	f.calls++
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	r := f.responses[idx]
	return r.content, r.err
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.MinRequestInterval = 0
	return cfg
}

var testMeds = []safety.MedicationItem{{Name: "Warfarin 5mg"}, {Name: "Aspirin 81mg"}}

func TestAnalyzeSafety_EmptyMedicationsShortCircuits(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{{err: errors.New("must not be called")}}}
	e := New(fastConfig(), client, nil, nil)

	result := e.AnalyzeSafety(context.Background(), nil, safety.PatientContext{})

	if result.Source != safety.SourceSystem {
		t.Fatalf("expected system source, got %q", result.Source)
	}
	if result.OverallRisk != safety.RiskLow {
		t.Fatalf("expected low risk, got %q", result.OverallRisk)
	}
	if client.callCount() != 0 {
		t.Fatalf("empty medication list must not contact the network, got %d calls", client.callCount())
	}
}

func TestAnalyzeSafety_DisabledShortCircuits(t *testing.T) {
	cfg := fastConfig()
	cfg.Enabled = false
	client := &fakeClient{responses: []fakeResponse{{content: wellFormedPayload}}}
	e := New(cfg, client, nil, nil)

	result := e.AnalyzeSafety(context.Background(), testMeds, safety.PatientContext{})

	if result.Source != safety.SourceSystem {
		t.Fatalf("expected system source when disabled, got %q", result.Source)
	}
	if client.callCount() != 0 {
		t.Fatal("disabled engine must not contact the network")
	}
}

func TestAnalyzeSafety_FirstAttemptSuccess(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{{content: wellFormedPayload}}}
	e := New(fastConfig(), client, nil, nil)

	result := e.AnalyzeSafety(context.Background(), testMeds, safety.PatientContext{})

	if result.Source != safety.SourceAI {
		t.Fatalf("expected ai source, got %q", result.Source)
	}
	if client.callCount() != 1 {
		t.Fatalf("expected exactly one attempt, got %d", client.callCount())
	}
}

func TestAnalyzeSafety_NonJSONPayloadWithoutMetrics(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{
		{content: "Monitor INR closely while both drugs are prescribed."},
	}}
	e := New(fastConfig(), client, nil, nil)

	result := e.AnalyzeSafety(context.Background(), testMeds, safety.PatientContext{})

	if result.Source != safety.SourceAI {
		t.Fatalf("heuristic extraction keeps ai provenance, got %q", result.Source)
	}
	if client.callCount() != 1 {
		t.Fatalf("a readable payload must not be retried, got %d calls", client.callCount())
	}
}

func TestAnalyzeSafety_RetriesThenSucceeds(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{
		{err: &TransportError{Err: errors.New("connection refused")}},
		{err: &ProtocolError{StatusCode: 502, Detail: "bad gateway"}},
		{content: wellFormedPayload},
	}}
	e := New(fastConfig(), client, nil, nil)

	result := e.AnalyzeSafety(context.Background(), testMeds, safety.PatientContext{})

	if result.Source != safety.SourceAI {
		t.Fatalf("expected ai source after retries, got %q", result.Source)
	}
	if client.callCount() != 3 {
		t.Fatalf("expected three attempts, got %d", client.callCount())
	}
}

func TestAnalyzeSafety_ExhaustionFallsBack(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{
		{err: &TransportError{Err: errors.New("timeout")}},
	}}
	e := New(fastConfig(), client, nil, nil)

	result := e.AnalyzeSafety(context.Background(), testMeds, safety.PatientContext{})

	if result.Source != safety.SourceFallback {
		t.Fatalf("expected fallback source, got %q", result.Source)
	}
	if client.callCount() != DefaultConfig().MaxRetries {
		t.Fatalf("expected %d attempts, got %d", DefaultConfig().MaxRetries, client.callCount())
	}
	// The fallback still sees the warfarin/aspirin pair.
	if len(result.Interactions) != 1 || result.OverallRisk != safety.RiskHigh {
		t.Fatalf("fallback analysis missing expected findings: %+v", result)
	}
}

func TestAnalyzeSafety_ExhaustionWithFallbackDisabled(t *testing.T) {
	cfg := fastConfig()
	cfg.FallbackEnabled = false
	client := &fakeClient{responses: []fakeResponse{
		{err: &TransportError{Err: errors.New("timeout")}},
	}}
	e := New(cfg, client, nil, nil)

	result := e.AnalyzeSafety(context.Background(), testMeds, safety.PatientContext{})

	if result.Source != safety.SourceError {
		t.Fatalf("expected error source, got %q", result.Source)
	}
	if result.Err == "" {
		t.Fatal("error result must carry a non-empty error message")
	}
	if client.callCount() != cfg.MaxRetries {
		t.Fatalf("expected exactly %d attempts, got %d", cfg.MaxRetries, client.callCount())
	}
	switch result.OverallRisk {
	case safety.RiskLow, safety.RiskModerate, safety.RiskHigh:
	default:
		t.Fatalf("error result risk must still be valid, got %q", result.OverallRisk)
	}
}

func TestAnalyzeSafety_ConfigurationErrorNotRetried(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{
		{err: &ConfigurationError{Reason: "no API credential configured"}},
	}}
	e := New(fastConfig(), client, nil, nil)

	result := e.AnalyzeSafety(context.Background(), testMeds, safety.PatientContext{})

	if client.callCount() != 1 {
		t.Fatalf("configuration errors must not be retried, got %d attempts", client.callCount())
	}
	if result.Source != safety.SourceFallback {
		t.Fatalf("expected immediate fallback, got %q", result.Source)
	}
}

func TestAnalyzeSafety_ContextCancellationStopsRetrying(t *testing.T) {
	cfg := fastConfig()
	cfg.RetryDelay = time.Minute
	client := &fakeClient{responses: []fakeResponse{
		{err: &TransportError{Err: errors.New("timeout")}},
	}}
	e := New(cfg, client, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	result := e.AnalyzeSafety(ctx, testMeds, safety.PatientContext{})

	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("cancellation should interrupt the inter-retry wait, took %v", elapsed)
	}
	if result.Source != safety.SourceFallback {
		t.Fatalf("cancelled analysis should still produce a fallback result, got %q", result.Source)
	}
}

func TestAnalyzeSafety_RateLimitSpacesCalls(t *testing.T) {
	const minInterval = 60 * time.Millisecond
	cfg := fastConfig()
	cfg.MinRequestInterval = minInterval
	client := &fakeClient{responses: []fakeResponse{{content: wellFormedPayload}}}
	e := New(cfg, client, nil, nil)

	e.AnalyzeSafety(context.Background(), testMeds, safety.PatientContext{})
	e.AnalyzeSafety(context.Background(), testMeds, safety.PatientContext{})

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.callTimes) != 2 {
		t.Fatalf("expected two underlying calls, got %d", len(client.callTimes))
	}
	if gap := client.callTimes[1].Sub(client.callTimes[0]); gap < minInterval {
		t.Fatalf("calls spaced %v apart, want at least %v", gap, minInterval)
	}
}

func TestAnalyzeSafety_ConcurrentCallsAreSafe(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{{content: wellFormedPayload}}}
	e := New(fastConfig(), client, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := e.AnalyzeSafety(context.Background(), testMeds, safety.PatientContext{})
			if result.Source != safety.SourceAI {
				t.Errorf("unexpected source %q", result.Source)
			}
		}()
	}
	wg.Wait()

	if client.callCount() != 8 {
		t.Fatalf("expected 8 calls, got %d", client.callCount())
	}
}
