// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/feasibility-engine/internal/httputil"
	"github.com/pdiddy/feasibility-engine/pkg/types"
)

func TestMain(m *testing.M) {
	// Keep throttle backoff from slowing the suite down.
	httputil.RetryBaseDelay = time.Millisecond
	m.Run()
}

// stubClient returns a canned reply or error without any HTTP.
type stubClient struct {
	reply   string
	err     error
	prompts []string
}

func (s *stubClient) Complete(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

// --- ClaudeClient request shape and response handling ---

func TestClaudeCompleteRequestShape(t *testing.T) {
	var captured claudeRequest
	var headers http.Header
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"content":[{"type":"text","text":"refined query"}]}`)
	}))
	defer ts.Close()

	old := claudeAPIURL
	claudeAPIURL = ts.URL
	defer func() { claudeAPIURL = old }()

	c := &ClaudeClient{APIKey: "sk-ant-test", Client: ts.Client()}
	got, err := c.Complete(context.Background(), "improve this query")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "refined query" {
		t.Errorf("Complete = %q, want %q", got, "refined query")
	}

	if h := headers.Get("x-api-key"); h != "sk-ant-test" {
		t.Errorf("x-api-key = %q", h)
	}
	if h := headers.Get("anthropic-version"); h != "2023-06-01" {
		t.Errorf("anthropic-version = %q", h)
	}
	if h := headers.Get("Content-Type"); h != "application/json" {
		t.Errorf("Content-Type = %q", h)
	}

	if captured.Model != defaultModel {
		t.Errorf("model = %q, want default %q", captured.Model, defaultModel)
	}
	if captured.MaxTokens != defaultMaxTokens {
		t.Errorf("max_tokens = %d, want %d", captured.MaxTokens, defaultMaxTokens)
	}
	if len(captured.Messages) != 1 || captured.Messages[0].Role != "user" {
		t.Fatalf("messages = %+v, want single user message", captured.Messages)
	}
	if captured.Messages[0].Content != "improve this query" {
		t.Errorf("message content = %q", captured.Messages[0].Content)
	}
}

func TestClaudeCompleteModelOverride(t *testing.T) {
	var captured claudeRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		fmt.Fprint(w, `{"content":[{"type":"text","text":"ok"}]}`)
	}))
	defer ts.Close()

	old := claudeAPIURL
	claudeAPIURL = ts.URL
	defer func() { claudeAPIURL = old }()

	c := &ClaudeClient{APIKey: "k", Model: "claude-haiku-4-5", Client: ts.Client()}
	if _, err := c.Complete(context.Background(), "p"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if captured.Model != "claude-haiku-4-5" {
		t.Errorf("model = %q, want override", captured.Model)
	}
}

func TestClaudeCompleteFirstTextBlock(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"content":[
			{"type":"thinking","text":"ignored"},
			{"type":"text","text":"the answer"},
			{"type":"text","text":"a second block"}
		]}`)
	}))
	defer ts.Close()

	old := claudeAPIURL
	claudeAPIURL = ts.URL
	defer func() { claudeAPIURL = old }()

	c := &ClaudeClient{APIKey: "k", Client: ts.Client()}
	got, err := c.Complete(context.Background(), "p")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "the answer" {
		t.Errorf("Complete = %q, want first text block", got)
	}
}

func TestClaudeCompleteNoTextContent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"content":[]}`)
	}))
	defer ts.Close()

	old := claudeAPIURL
	claudeAPIURL = ts.URL
	defer func() { claudeAPIURL = old }()

	c := &ClaudeClient{APIKey: "k", Client: ts.Client()}
	if _, err := c.Complete(context.Background(), "p"); err == nil {
		t.Error("expected error for empty content array")
	}
}

func TestClaudeCompleteHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad request"}}`)
	}))
	defer ts.Close()

	old := claudeAPIURL
	claudeAPIURL = ts.URL
	defer func() { claudeAPIURL = old }()

	c := &ClaudeClient{APIKey: "k", Client: ts.Client()}
	_, err := c.Complete(context.Background(), "p")
	if err == nil {
		t.Fatal("expected error for HTTP 400")
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("error = %q, want status code in message", err)
	}
}

func TestClaudeCompleteRetriesThrottle(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"content":[{"type":"text","text":"after retry"}]}`)
	}))
	defer ts.Close()

	old := claudeAPIURL
	claudeAPIURL = ts.URL
	defer func() { claudeAPIURL = old }()

	c := &ClaudeClient{APIKey: "k", MaxRetries: 2, Client: ts.Client()}
	got, err := c.Complete(context.Background(), "p")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "after retry" {
		t.Errorf("Complete = %q", got)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (one retry after 429)", calls)
	}
}

func TestClaudeCompleteMissingAPIKey(t *testing.T) {
	c := &ClaudeClient{}
	if _, err := c.Complete(context.Background(), "p"); err == nil {
		t.Error("expected error for missing API key")
	}
}

// --- RefineQuery ---

func TestRefineQueryPromptAndReply(t *testing.T) {
	stub := &stubClient{reply: "specialty coffee roaster wholesale pricing oregon 2025"}
	biz := types.BusinessContext{
		PartnerType: "coffee roaster",
		Industry:    "specialty coffee",
		Location:    "Portland, Oregon",
	}

	got, err := RefineQuery(context.Background(), stub, "coffee pricing", types.GapLowConfidence, biz)
	if err != nil {
		t.Fatalf("RefineQuery: %v", err)
	}
	if got != "specialty coffee roaster wholesale pricing oregon 2025" {
		t.Errorf("refined = %q", got)
	}

	if len(stub.prompts) != 1 {
		t.Fatalf("prompts sent = %d, want 1", len(stub.prompts))
	}
	prompt := stub.prompts[0]
	for _, want := range []string{"coffee pricing", "coffee roaster", "specialty coffee", "Portland, Oregon", "low_confidence"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestRefineQueryReplyCleanup(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"multi-line keeps first", "better query\nAnd some explanation.", "better query"},
		{"leading blank lines skipped", "\n\n  improved query  \n", "improved query"},
		{"surrounding quotes stripped", `"quoted query"`, "quoted query"},
		{"single quotes stripped", `'quoted query'`, "quoted query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubClient{reply: tt.reply}
			got, err := RefineQuery(context.Background(), stub, "q", types.GapNoResults, types.BusinessContext{})
			if err != nil {
				t.Fatalf("RefineQuery: %v", err)
			}
			if got != tt.want {
				t.Errorf("refined = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRefineQueryEmptyReply(t *testing.T) {
	stub := &stubClient{reply: "  \n\n "}
	if _, err := RefineQuery(context.Background(), stub, "q", types.GapNoResults, types.BusinessContext{}); err == nil {
		t.Error("expected error for blank reply")
	}
}

func TestRefineQueryClientError(t *testing.T) {
	stub := &stubClient{err: fmt.Errorf("service down")}
	if _, err := RefineQuery(context.Background(), stub, "q", types.GapNoResults, types.BusinessContext{}); err == nil {
		t.Error("expected error to propagate")
	}
}

// --- Narrative ---

func TestNarrativePromptAndReply(t *testing.T) {
	stub := &stubClient{reply: "  The market supports premium pricing.  "}
	benchmarks := []types.ExtractedBenchmark{
		{FieldName: "price_range", Value: 12.5, Unit: "USD", Confidence: 0.85, SourceURL: "https://example.com/a"},
		{FieldName: "average_price", Value: 11.0, Unit: "USD", Confidence: 0.6, SourceURL: "https://example.com/b"},
	}

	got, err := Narrative(context.Background(), stub, "pricing", benchmarks)
	if err != nil {
		t.Fatalf("Narrative: %v", err)
	}
	if got != "The market supports premium pricing." {
		t.Errorf("narrative = %q (whitespace not trimmed?)", got)
	}

	prompt := stub.prompts[0]
	for _, want := range []string{"pricing", "price_range", "12.5", "USD", "0.85", "https://example.com/a", "average_price"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestNarrativeEmptyReply(t *testing.T) {
	stub := &stubClient{reply: "   "}
	if _, err := Narrative(context.Background(), stub, "pricing", nil); err == nil {
		t.Error("expected error for blank narrative")
	}
}

func TestNarrativeClientError(t *testing.T) {
	stub := &stubClient{err: fmt.Errorf("429 forever")}
	if _, err := Narrative(context.Background(), stub, "pricing", nil); err == nil {
		t.Error("expected error to propagate")
	}
}
