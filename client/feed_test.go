package client

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
)

func TestGetFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/feed", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("refresh"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Feed{
			Events: []Event{
				{Category: "DomainAdded", PrimaryText: "Domain 3 added.", Timestamp: 1700000000},
			},
			Count: 1,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	feed, err := c.GetFeed(context.Background(), false)

	require.NoError(t, err)
	assert.Equal(t, 1, feed.Count)
	require.Len(t, feed.Events, 1)
	assert.Equal(t, "DomainAdded", feed.Events[0].Category)
	assert.False(t, feed.Loading)
}

func TestGetFeed_RefreshQueryParam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("refresh"))
		json.NewEncoder(w).Encode(Feed{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	_, err := c.GetFeed(context.Background(), true)
	require.NoError(t, err)
}

func TestGetFeed_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": "failed to refresh feed"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	_, err := c.GetFeed(context.Background(), true)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "failed to refresh feed")
}

func TestWaitForFeed_PollsUntilCommitted(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n < 3 {
			json.NewEncoder(w).Encode(Feed{Loading: true})
			return
		}
		json.NewEncoder(w).Encode(Feed{
			Events: []Event{{Category: "ColonyInitialised"}},
			Count:  1,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	feed, err := c.WaitForFeed(context.Background(), 10*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, 1, feed.Count)
	assert.GreaterOrEqual(t, calls.Load(), int64(3))
}

func TestWaitForFeed_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Feed{Loading: true})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient(srv.URL, nil, nil)
	_, err := c.WaitForFeed(ctx, 10*time.Millisecond)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGetRecipient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/recipients/42", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{
			"funding_pot_id": "42",
			"recipient":      "0x1111111111111111111111111111111111111111",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	recipient, err := c.GetRecipient(context.Background(), "42")

	require.NoError(t, err)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", recipient)
}

func TestGetRecipient_BadRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid funding pot id: must be a decimal number"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	_, err := c.GetRecipient(context.Background(), "abc")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decimal")
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	assert.NoError(t, c.Health(context.Background()))
}

func TestHealth_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	assert.Error(t, c.Health(context.Background()))
}
