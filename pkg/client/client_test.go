package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notetree/notetree/pkg/batch"
	"github.com/notetree/notetree/pkg/models"
	"github.com/notetree/notetree/pkg/store"
)

func TestExponentialBackoffWithoutJitter(t *testing.T) {
	r := &ExponentialBackoffRetryer{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
	}

	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1 * time.Second, // capped
		1 * time.Second,
	}
	for attempt, want := range expected {
		delay, retry := r.NextDelay(attempt, errors.New("dial failed"))
		require.True(t, retry)
		assert.Equal(t, want, delay, "attempt %d", attempt)
	}
}

func TestExponentialBackoffMaxRetries(t *testing.T) {
	r := &ExponentialBackoffRetryer{
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		MaxRetries:   3,
	}

	for attempt := 0; attempt < 3; attempt++ {
		_, retry := r.NextDelay(attempt, nil)
		assert.True(t, retry)
	}
	_, retry := r.NextDelay(3, nil)
	assert.False(t, retry)
}

func TestDefaultRetryBudgetIsFinite(t *testing.T) {
	r := NewExponentialBackoffRetryer()

	// A viewer that can never reconnect must eventually give up and surface
	// ViewerConnectionLost instead of redialing forever.
	for attempt := 0; attempt < DefaultMaxRetries; attempt++ {
		_, retry := r.NextDelay(attempt, errors.New("dial failed"))
		require.True(t, retry, "attempt %d", attempt)
	}
	_, retry := r.NextDelay(DefaultMaxRetries, errors.New("dial failed"))
	assert.False(t, retry)
}

func TestJitterStaysWithinBounds(t *testing.T) {
	r := &ExponentialBackoffRetryer{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		JitterFactor: 0.3,
	}
	for i := 0; i < 100; i++ {
		delay, retry := r.NextDelay(0, nil)
		require.True(t, retry)
		assert.GreaterOrEqual(t, delay, 70*time.Millisecond)
		assert.LessOrEqual(t, delay, 130*time.Millisecond)
	}
}

func TestFixedDelayRetryer(t *testing.T) {
	r := NewFixedDelayRetryer(50*time.Millisecond, 2)

	delay, retry := r.NextDelay(0, nil)
	require.True(t, retry)
	assert.Equal(t, 50*time.Millisecond, delay)

	_, retry = r.NextDelay(2, nil)
	assert.False(t, retry)
}

func TestClientGetPage(t *testing.T) {
	page := &models.Page{ID: models.NewPageID(), Title: "Notes", Slug: "notes"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/pages/"+page.ID.String(), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(page))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	got, err := c.GetPage(context.Background(), page.ID)
	require.NoError(t, err)
	assert.Equal(t, page.ID, got.ID)
	assert.Equal(t, "Notes", got.Title)
}

func TestClientSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.SetAuthToken("secret")
	_, err := c.Health(context.Background())
	require.NoError(t, err)
}

func TestClientSubmitBatch(t *testing.T) {
	pageID := models.NewPageID()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/batch", r.URL.Path)
		var b batch.Batch
		require.NoError(t, json.NewDecoder(r.Body).Decode(&b))
		require.Len(t, b.Operations, 2)
		assert.Equal(t, batch.OpPageCreate, b.Operations[0].Type)

		outcome := batch.Outcome{AffectedPageIDs: []models.PageID{pageID}}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(outcome))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	title := "Renamed"
	outcome, err := c.SubmitBatch(context.Background(), batch.Batch{Operations: []batch.Operation{
		{Type: batch.OpPageCreate, CreatePage: &batch.PageCreate{ID: pageID, Title: "New", Slug: "new"}},
		{Type: batch.OpPageUpdate, PageID: &pageID, UpdatePage: &store.PageUpdate{Title: &title}},
	}})
	require.NoError(t, err)
	assert.Equal(t, []models.PageID{pageID}, outcome.AffectedPageIDs)
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"cycle_detected"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.UpdateBlock(context.Background(), models.NewBlockID(), store.BlockUpdate{})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "cycle_detected")
}
