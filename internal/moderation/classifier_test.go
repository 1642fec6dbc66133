package moderation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mentorchat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Len(t, req.Messages, 2)

		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClassifier(t *testing.T, url string, timeout time.Duration) *OpenAIClassifier {
	t.Helper()
	c, err := NewOpenAIClassifier(OpenAIClassifierConfig{
		URL:     url,
		Model:   "test-model",
		APIKey:  "sk-test",
		Timeout: timeout,
	}, logger.Discard())
	require.NoError(t, err)
	return c
}

func TestClassifierBlockedVerdict(t *testing.T) {
	srv := completionServer(t, http.StatusOK, `{"verdict":"blocked","reason":"payment request"}`)
	c := newTestClassifier(t, srv.URL, time.Second)

	v, err := c.Classify(context.Background(), "pay me")
	require.NoError(t, err)
	assert.True(t, v.Blocked)
	assert.Equal(t, "payment request", v.Reason)
}

func TestClassifierAllowedVerdict(t *testing.T) {
	srv := completionServer(t, http.StatusOK, "```json\n{\"verdict\":\"Allowed\",\"reason\":\"\"}\n```")
	c := newTestClassifier(t, srv.URL, time.Second)

	v, err := c.Classify(context.Background(), "hello")
	require.NoError(t, err)
	assert.False(t, v.Blocked)
}

func TestClassifierUnparseable(t *testing.T) {
	srv := completionServer(t, http.StatusOK, "I think this is fine")
	c := newTestClassifier(t, srv.URL, time.Second)

	_, err := c.Classify(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestClassifierHTTPError(t *testing.T) {
	srv := completionServer(t, http.StatusBadGateway, `{"verdict":"blocked"}`)
	c := newTestClassifier(t, srv.URL, time.Second)

	_, err := c.Classify(context.Background(), "hello")
	assert.Error(t, err)
}

func TestClassifierTimeoutThroughGate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	c := newTestClassifier(t, srv.URL, 50*time.Millisecond)
	gate := NewGate(testLexicon, logger.Discard(), WithClassifier(c), WithClassifierTimeout(50*time.Millisecond))

	d := gate.Evaluate(context.Background(), "Let's collaborate on research")
	assert.True(t, d.Allowed())
}

func TestParseVerdictRejectsUnknownVerdict(t *testing.T) {
	_, err := ParseVerdict(`{"verdict":"maybe"}`)
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestNewClassifierRequiresURL(t *testing.T) {
	_, err := NewOpenAIClassifier(OpenAIClassifierConfig{}, logger.Discard())
	assert.Error(t, err)
}
