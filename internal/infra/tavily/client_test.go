package tavily

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jinford/prep-scout/internal/core/gatherer"
	"github.com/jinford/prep-scout/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestClient_Search(t *testing.T) {
	var gotReq searchRequestBody
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/search", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"url": "https://acme.example.com/about", "title": "About Acme", "content": "Acme builds rockets.", "score": 0.92},
				{"url": "https://news.example.com/acme", "title": "Acme in the news", "content": "Acme raised funding.", "score": 0.81},
			},
		})
	}))
	defer server.Close()

	client, err := NewClient("test-key", WithBaseURL(server.URL), WithRetryPolicy(fastPolicy()))
	require.NoError(t, err)

	results, err := client.Search(context.Background(), gatherer.SearchRequest{
		Query:          "Acme Corp company overview",
		MaxResults:     5,
		SearchDepth:    "advanced",
		ExcludeDomains: []string{"stale.example.com"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "Acme Corp company overview", gotReq.Query)
	assert.Equal(t, "advanced", gotReq.SearchDepth)
	assert.Equal(t, 5, gotReq.MaxResults)
	assert.Equal(t, []string{"stale.example.com"}, gotReq.ExcludeDomains)

	require.Len(t, results, 2)
	assert.Equal(t, "https://acme.example.com/about", results[0].URL)
	assert.Equal(t, "About Acme", results[0].Title)
	assert.InDelta(t, 0.92, results[0].Score, 0.001)
}

func TestClient_Search_EmptyResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": []}`))
	}))
	defer server.Close()

	client, err := NewClient("test-key", WithBaseURL(server.URL), WithRetryPolicy(fastPolicy()))
	require.NoError(t, err)

	results, err := client.Search(context.Background(), gatherer.SearchRequest{Query: "nothing"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClient_Search_RetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"results": [{"url": "https://a.example.com", "title": "A", "content": "c", "score": 0.5}]}`))
	}))
	defer server.Close()

	client, err := NewClient("test-key", WithBaseURL(server.URL), WithRetryPolicy(fastPolicy()))
	require.NoError(t, err)

	results, err := client.Search(context.Background(), gatherer.SearchRequest{Query: "retry me"})
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Search_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "invalid api key"}`))
	}))
	defer server.Close()

	client, err := NewClient("bad-key", WithBaseURL(server.URL), WithRetryPolicy(fastPolicy()))
	require.NoError(t, err)

	_, err = client.Search(context.Background(), gatherer.SearchRequest{Query: "q"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewClient_MissingAPIKey(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}
