package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notetree/notetree/pkg/events"
	"github.com/notetree/notetree/pkg/models"
)

var testUpgrader = websocket.Upgrader{}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestViewerReceivesEvents(t *testing.T) {
	page := &models.Page{ID: models.NewPageID(), Title: "Notes", Slug: "notes"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		require.NoError(t, conn.WriteJSON(events.PageCreated(page)))
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	received := make(chan events.Event, 1)
	v := NewViewer(ViewerConfig{URL: wsURL(srv)}, func(ev events.Event) {
		received <- ev
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- v.Run(ctx) }()

	select {
	case ev := <-received:
		assert.Equal(t, events.EventPageCreated, ev.Type)
		require.NotNil(t, ev.Page)
		assert.Equal(t, page.ID, ev.Page.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	assert.Equal(t, ViewerConnected, v.State())

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestViewerReconnects(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dials++
		n := dials
		mu.Unlock()

		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		if n == 1 {
			// First connection drops immediately to force a redial.
			conn.Close()
			return
		}
		defer conn.Close()
		require.NoError(t, conn.WriteJSON(events.PageDeleted(models.NewPageID())))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	received := make(chan events.Event, 1)
	v := NewViewer(ViewerConfig{
		URL:     wsURL(srv),
		Retryer: NewFixedDelayRetryer(10*time.Millisecond, 0),
	}, func(ev events.Event) {
		received <- ev
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = v.Run(ctx) }()

	select {
	case ev := <-received:
		assert.Equal(t, events.EventPageDeleted, ev.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("viewer did not reconnect")
	}

	mu.Lock()
	assert.GreaterOrEqual(t, dials, 2)
	mu.Unlock()
}

func TestViewerGivesUpAfterRetryBudget(t *testing.T) {
	// A server that is already gone.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := wsURL(srv)
	srv.Close()

	var states []ViewerState
	var mu sync.Mutex
	v := NewViewer(ViewerConfig{
		URL:     url,
		Retryer: NewFixedDelayRetryer(5*time.Millisecond, 2),
		OnStateChange: func(s ViewerState) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	}, func(events.Event) {})

	err := v.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnectionLost))
	assert.Equal(t, ViewerConnectionLost, v.State())

	mu.Lock()
	assert.Equal(t, ViewerConnecting, states[0])
	assert.Equal(t, ViewerConnectionLost, states[len(states)-1])
	mu.Unlock()
}
