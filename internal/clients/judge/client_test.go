package judge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/avellar/conviction/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewClient(url, "test-key", 1024, zerolog.New(nil).Level(zerolog.Disabled))
}

func TestGenerate_ConcatenatesTextBlocks(t *testing.T) {
	var gotReq generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(generateResponse{Content: []contentBlock{
			{Type: "text", Text: "Weighing both cases. "},
			{Type: "thinking", Text: "ignored"},
			{Type: "text", Text: "FINAL VERDICT: BUY"},
		}})
	}))
	defer server.Close()

	text, err := newTestClient(server.URL).Generate(context.Background(), "model-a", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "Weighing both cases. FINAL VERDICT: BUY", text)
	assert.Equal(t, "model-a", gotReq.Model)
	assert.Equal(t, 1024, gotReq.MaxTokens)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
}

func TestGenerate_OverloadStatusesAreRetryable(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusServiceUnavailable, 529} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))

		_, err := newTestClient(server.URL).Generate(context.Background(), "model-a", "prompt")
		assert.ErrorIs(t, err, domain.ErrJudgeOverloaded, "status %d", status)
		server.Close()
	}
}

func TestGenerate_OverloadedBodyIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Generate(context.Background(), "model-a", "prompt")
	assert.ErrorIs(t, err, domain.ErrJudgeOverloaded)
}

func TestGenerate_OtherErrorsAreNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad model"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Generate(context.Background(), "model-a", "prompt")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrJudgeOverloaded)
}

func TestGenerate_EmptyResponseIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Generate(context.Background(), "model-a", "prompt")
	assert.Error(t, err)
}
