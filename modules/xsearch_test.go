package modules

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinpulse/pkg/network"
)

const recentSearchBody = `{
  "data": [
    {"id": "1", "text": "bitcoin is flying", "created_at": "2024-05-01T11:30:00.000Z",
     "public_metrics": {"like_count": 12, "retweet_count": 3, "reply_count": 1}},
    {"id": "2", "text": "no metrics here"}
  ],
  "meta": {"next_token": "abc", "result_count": 2}
}`

func testRequest() SearchRequest {
	return SearchRequest{
		WorkspaceID: "ws-42",
		Query:       "bitcoin -is:retweet",
		Since:       time.Date(2024, 5, 1, 11, 0, 0, 123, time.FixedZone("CEST", 2*3600)),
		PageSize:    50,
	}
}

func TestXClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/tweets/search/recent", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "bitcoin -is:retweet", q.Get("query"))
		assert.Equal(t, "2024-05-01T09:00:00Z", q.Get("start_time"))
		assert.Equal(t, "50", q.Get("max_results"))
		assert.Equal(t, "created_at,public_metrics", q.Get("tweet.fields"))
		assert.Equal(t, "cur-1", q.Get("next_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(recentSearchBody))
	}))
	defer srv.Close()

	req := testRequest()
	req.Cursor = "cur-1"
	page, err := NewXClient(srv.URL+"/", "secret", srv.Client()).Search(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "abc", page.NextCursor)
	require.Len(t, page.Posts, 2)
	assert.Equal(t, Engagement{Likes: 12, Shares: 3, Replies: 1}, page.Posts[0].Engagement)
	assert.Equal(t, time.Date(2024, 5, 1, 11, 30, 0, 0, time.UTC), page.Posts[0].CreatedAt)
	assert.Equal(t, Engagement{}, page.Posts[1].Engagement)
}

func TestXClient_FirstPageOmitsCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, has := r.URL.Query()["next_token"]
		assert.False(t, has)
		_, _ = w.Write([]byte(`{"meta":{"result_count":0}}`))
	}))
	defer srv.Close()

	page, err := NewXClient(srv.URL, "t", nil).Search(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Empty(t, page.Posts)
	assert.Empty(t, page.NextCursor)
}

func TestXClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"title":"Unauthorized"}`))
	}))
	defer srv.Close()

	_, err := NewXClient(srv.URL, "bad", nil).Search(context.Background(), testRequest())
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Contains(t, se.Body, "Unauthorized")
}

func TestXClient_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(recentSearchBody))
	}))
	defer srv.Close()

	c := NewXClient(srv.URL, "t", nil).WithRetry(network.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond})
	page, err := c.Search(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Len(t, page.Posts, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestXClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewXClient(srv.URL, "t", nil).WithRetry(network.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond})
	_, err := c.Search(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestIntegrationClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/workspaces/ws-42/integration/twitter-v2/proxy", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("x-openserv-key"))

		var body integrationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "/2/tweets/search/recent", body.Endpoint)
		assert.Equal(t, "GET", body.Method)
		assert.Equal(t, "bitcoin -is:retweet", body.Params["query"])
		assert.Equal(t, "2024-05-01T09:00:00Z", body.Params["start_time"])

		out, _ := json.Marshal(map[string]json.RawMessage{"output": json.RawMessage(recentSearchBody)})
		_, _ = w.Write(out)
	}))
	defer srv.Close()

	page, err := NewIntegrationClient(srv.URL, "key-1", "twitter-v2", nil).Search(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "abc", page.NextCursor)
	assert.Len(t, page.Posts, 2)
}

func TestIntegrationClient_RequiresWorkspace(t *testing.T) {
	req := testRequest()
	req.WorkspaceID = ""
	_, err := NewIntegrationClient("http://unused", "k", "x", nil).Search(context.Background(), req)
	assert.Error(t, err)
}

func TestDecodeSearchResponse(t *testing.T) {
	quoted, _ := json.Marshal(recentSearchBody)

	tests := []struct {
		name    string
		body    string
		posts   int
		wantErr bool
	}{
		{"bare", recentSearchBody, 2, false},
		{"wrapped object", `{"output":` + recentSearchBody + `}`, 2, false},
		{"wrapped string", `{"output":` + string(quoted) + `}`, 2, false},
		{"null output", `{"output":null,"data":[{"id":"9","text":"x"}]}`, 1, false},
		{"garbage", `not json`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := decodeSearchResponse([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, page.Posts, tt.posts)
		})
	}
}

func TestClassifySearchError(t *testing.T) {
	assert.Equal(t, network.Retry, classifySearchError(&StatusError{Code: 503}))
	assert.Equal(t, network.Retry, classifySearchError(&StatusError{Code: 429}))
	assert.Equal(t, network.Stop, classifySearchError(&StatusError{Code: 403}))
	assert.Equal(t, network.Stop, classifySearchError(context.DeadlineExceeded))
	assert.Equal(t, network.Stop, classifySearchError(&decodeError{err: assert.AnError}))
	assert.Equal(t, network.Retry, classifySearchError(assert.AnError))
}
