package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func candidateResponse(text string) string {
	return `{"candidates":[{"content":{"parts":[{"text":` + jsonString(text) + `}]}}]}`
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestGenerate(t *testing.T) {
	var gotPath, gotKey string
	var gotBody generateRequest

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(candidateResponse("Hello there.")))
	}))
	defer ts.Close()

	c := NewClientWithBaseURL("secret-key", ts.URL)
	got, err := c.Generate(context.Background(), "test-model", "say hello", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got != "Hello there." {
		t.Errorf("text = %q", got)
	}
	if gotPath != "/models/test-model:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "secret-key" {
		t.Errorf("api key header = %q", gotKey)
	}
	if len(gotBody.Contents) != 1 || gotBody.Contents[0].Parts[0].Text != "say hello" {
		t.Errorf("request contents = %+v", gotBody.Contents)
	}
	if gotBody.GenerationConfig != nil {
		t.Error("generationConfig should be omitted without a schema")
	}
}

func TestGenerateWithSchema(t *testing.T) {
	var gotBody generateRequest

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(candidateResponse(`{"score":1}`)))
	}))
	defer ts.Close()

	schema := &Schema{
		Type: "object",
		Properties: map[string]SchemaProperty{
			"score": {Type: "number"},
		},
		Required: []string{"score"},
	}

	c := NewClientWithBaseURL("k", ts.URL)
	if _, err := c.Generate(context.Background(), "m", "p", schema); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotBody.GenerationConfig == nil {
		t.Fatal("expected generationConfig")
	}
	if gotBody.GenerationConfig.ResponseMIMEType != "application/json" {
		t.Errorf("responseMimeType = %q", gotBody.GenerationConfig.ResponseMIMEType)
	}
	if gotBody.GenerationConfig.ResponseSchema.Type != "object" {
		t.Errorf("responseSchema.type = %q", gotBody.GenerationConfig.ResponseSchema.Type)
	}
}

func TestGenerateConcatenatesParts(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Hello "},{"text":"world"}]}}]}`))
	}))
	defer ts.Close()

	c := NewClientWithBaseURL("k", ts.URL)
	got, err := c.Generate(context.Background(), "m", "p", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Hello world" {
		t.Errorf("text = %q", got)
	}
}

func TestGenerateRetriesRateLimit(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(candidateResponse("finally")))
	}))
	defer ts.Close()

	c := NewClientWithBaseURL("k", ts.URL)
	got, err := c.Generate(context.Background(), "m", "p", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "finally" {
		t.Errorf("text = %q", got)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestGenerateRateLimitExhausted(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	c := NewClientWithBaseURL("k", ts.URL)
	_, err := c.Generate(context.Background(), "m", "p", nil)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("error = %q, want rate limited", err.Error())
	}
}

func TestGenerateServerErrorNotRetried(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer ts.Close()

	c := NewClientWithBaseURL("k", ts.URL)
	_, err := c.Generate(context.Background(), "m", "p", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on 500)", attempts)
	}
}

func TestGenerateEmptyCandidates(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer ts.Close()

	c := NewClientWithBaseURL("k", ts.URL)
	_, err := c.Generate(context.Background(), "m", "p", nil)
	if err == nil {
		t.Fatal("expected error for empty candidates")
	}
}
