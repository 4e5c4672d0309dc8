package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/supplierd/internal/search"
)

// scriptedCompleter replies from a fixed list, one per call.
type scriptedCompleter struct {
	replies []string
	errs    []error
	prompts []string
}

func (s *scriptedCompleter) Complete(_ context.Context, prompt string) (string, error) {
	i := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return "", err
	}
	return s.replies[i], nil
}

func TestLLMExtractor_Extract(t *testing.T) {
	client := &scriptedCompleter{
		replies: []string{
			"```json\n{\"suppliers\": [{\"name\": \"Acme Foods\", \"confidence\": 0.9, \"context\": \"supplies produce\"}, {\"name\": \"Tesco\", \"confidence\": 0.9}]}\n```",
			"not json at all",
			`{"suppliers": [{"name": "Globex", "confidence": 1.7}, {"name": "Initech", "confidence": 0.2}, {"name": "  ", "confidence": 0.8}]}`,
		},
		errs: []error{nil, nil, nil, errors.New("boom")},
	}
	core, logs := observer.New(zapcore.WarnLevel)
	extractor := newLLMExtractor(client, 0.5, zap.New(core))

	results := []search.Result{
		{Title: "Tesco news", Snippet: "Acme Foods supplies produce", Link: "https://a.example.com"},
		{Title: "noise", Link: "https://b.example.com"},
		{Title: "more", Link: "https://c.example.com"},
		{Title: "failing", Link: "https://d.example.com"},
	}

	mentions, err := extractor.Extract(context.Background(), "Tesco", results)
	require.NoError(t, err)
	require.Len(t, mentions, 2)

	assert.Equal(t, "Acme Foods", mentions[0].Name)
	assert.Equal(t, 0.9, mentions[0].Confidence)
	require.NotNil(t, mentions[0].SourceURL)
	assert.Equal(t, "https://a.example.com", *mentions[0].SourceURL)
	require.NotNil(t, mentions[0].Context)
	assert.Equal(t, "supplies produce", *mentions[0].Context)

	assert.Equal(t, "Globex", mentions[1].Name)
	assert.Equal(t, 1.0, mentions[1].Confidence, "confidence clamped to [0, 1]")
	assert.Nil(t, mentions[1].Context)

	require.Len(t, client.prompts, 4)
	assert.Contains(t, client.prompts[0], "Title: Tesco news\nSnippet: Acme Foods supplies produce")
	assert.Contains(t, client.prompts[0], "SOURCE: https://a.example.com")

	assert.Equal(t, 2, logs.Len(), "unparseable reply and failed request are logged")
}

func TestParseSuppliersJSON(t *testing.T) {
	suppliers, err := parseSuppliersJSON("```\n{\"suppliers\": [{\"name\": \"Acme\", \"confidence\": 0.5}]}\n```")
	require.NoError(t, err)
	require.Len(t, suppliers, 1)
	assert.Equal(t, "Acme", suppliers[0].Name)

	suppliers, err = parseSuppliersJSON(`{"suppliers": []}`)
	require.NoError(t, err)
	assert.Empty(t, suppliers)

	_, err = parseSuppliersJSON("Sorry, I can't help")
	assert.Error(t, err)
}

func TestOpenAIClient_Complete(t *testing.T) {
	var gotAuth string
	var gotReq openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "{\"suppliers\": []}"}}]}`))
	}))
	defer srv.Close()

	client, err := newOpenAIClient(LLMConfig{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	text, err := client.Complete(context.Background(), "list suppliers")
	require.NoError(t, err)
	assert.Equal(t, `{"suppliers": []}`, text)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, defaultOpenAIModel, gotReq.Model)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "list suppliers", gotReq.Messages[0].Content)
}

func TestAnthropicClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("X-API-Key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("Anthropic-Version"))
		_, _ = w.Write([]byte(`{"content": [{"type": "text", "text": "hello"}]}`))
	}))
	defer srv.Close()

	client, err := newAnthropicClient(LLMConfig{APIKey: "sk-ant-test", BaseURL: srv.URL, Model: "custom"})
	require.NoError(t, err)
	assert.Equal(t, "custom", client.model)

	text, err := client.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestClient_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
	}))
	defer srv.Close()

	client, err := newOpenAIClient(LLMConfig{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)
	client.baseBackoff = time.Millisecond

	text, err := client.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "authentication_error", "message": "Invalid API key"}}`))
	}))
	defer srv.Close()

	client, err := newAnthropicClient(LLMConfig{APIKey: "bad", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API key")
	assert.False(t, isRetryableError(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewAPIClient_RequiresKey(t *testing.T) {
	_, err := newOpenAIClient(LLMConfig{})
	assert.Error(t, err)

	_, err = newAnthropicClient(LLMConfig{})
	assert.Error(t, err)
}
