package homeconnect

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func collectEvents(t *testing.T, raw string) []Event {
	t.Helper()
	var events []Event
	err := parseEventStream(strings.NewReader(raw), testLogger(), func(ev Event) {
		events = append(events, ev)
	})
	require.NoError(t, err)
	return events
}

func TestParseEventStream(t *testing.T) {
	t.Parallel()

	t.Run("two field event", func(t *testing.T) {
		t.Parallel()

		events := collectEvents(t, "event: NOTIFY\ndata: {\"items\":[{\"key\":\"DoorState\"}]}\n\n")
		require.Len(t, events, 1)
		require.Equal(t, "NOTIFY", events[0].Name)
		require.Equal(t, map[string]any{"items": []any{map[string]any{"key": "DoorState"}}}, events[0].Data)
	})

	t.Run("id field and crlf line endings", func(t *testing.T) {
		t.Parallel()

		events := collectEvents(t, "event: CONNECTED\r\nid: BOSCH-1\r\n\r\n")
		require.Len(t, events, 1)
		require.Equal(t, "CONNECTED", events[0].Name)
		require.Equal(t, "BOSCH-1", events[0].ID)
	})

	t.Run("keep alive without data payload", func(t *testing.T) {
		t.Parallel()

		events := collectEvents(t, "event: KEEP-ALIVE\ndata:\n\n")
		require.Len(t, events, 1)
		require.Equal(t, "KEEP-ALIVE", events[0].Name)
		require.Nil(t, events[0].Data)
	})

	t.Run("comment lines are skipped", func(t *testing.T) {
		t.Parallel()

		events := collectEvents(t, ": ping\n\nevent: STATUS\ndata: 1\n\n")
		require.Len(t, events, 1)
		require.Equal(t, "STATUS", events[0].Name)
		require.Equal(t, float64(1), events[0].Data)
	})

	t.Run("malformed lines are skipped not fatal", func(t *testing.T) {
		t.Parallel()

		events := collectEvents(t, "garbage line\nevent: NOTIFY\ndata: {broken\ndata: 2\n\n")
		require.Len(t, events, 1)
		require.Equal(t, "NOTIFY", events[0].Name)
		require.Equal(t, float64(2), events[0].Data)
	})

	t.Run("unknown fields kept verbatim", func(t *testing.T) {
		t.Parallel()

		events := collectEvents(t, "event: NOTIFY\nretry: 5000\n\n")
		require.Len(t, events, 1)
		require.Equal(t, map[string]string{"retry": "5000"}, events[0].Fields)
	})

	t.Run("partial event without dispatch is discarded", func(t *testing.T) {
		t.Parallel()

		events := collectEvents(t, "event: NOTIFY\ndata: 1\n")
		require.Empty(t, events)
	})

	t.Run("multiple events", func(t *testing.T) {
		t.Parallel()

		events := collectEvents(t, "event: CONNECTED\n\nevent: DISCONNECTED\n\n")
		require.Len(t, events, 2)
		require.Equal(t, "CONNECTED", events[0].Name)
		require.Equal(t, "DISCONNECTED", events[1].Name)
	})
}

func TestWatchEventsDeliversAndStops(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/events") {
			http.NotFound(w, r)
			return
		}
		require.Equal(t, eventMediaType, r.Header.Get("Accept"))
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", eventMediaType)
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte("event: STATUS\ndata: {\"items\":[]}\n\n"))
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, savedAuth(AuthState{AccessToken: "tok", AccessExpires: farFuture()}))

	stream, err := c.WatchEvents("BOSCH-1")
	require.NoError(t, err)

	select {
	case ev := <-stream.Events():
		require.Equal(t, "STATUS", ev.Name)
	case <-time.After(5 * time.Second):
		require.Fail(t, "no event received")
	}

	stream.Stop()
	select {
	case <-stream.Done():
	case <-time.After(5 * time.Second):
		require.Fail(t, "stream did not shut down")
	}
	require.NoError(t, stream.Err())

	// Stop is idempotent.
	stream.Stop()
}

func TestWatchEventsReplacesPreviousStream(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", eventMediaType)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, savedAuth(AuthState{AccessToken: "tok", AccessExpires: farFuture()}))

	first, err := c.WatchEvents("BOSCH-1")
	require.NoError(t, err)
	second, err := c.WatchEvents("BOSCH-1")
	require.NoError(t, err)

	select {
	case <-first.Done():
	case <-time.After(5 * time.Second):
		require.Fail(t, "replaced stream did not shut down")
	}
	require.NoError(t, first.Err())

	second.Stop()
	<-second.Done()
}

func TestWatchEventsRejectsEmptyApplianceID(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "http://unused.invalid", savedAuth(AuthState{AccessToken: "tok", AccessExpires: farFuture()}))

	_, err := c.WatchEvents("")
	require.Error(t, err)
}

func TestStopEventsStopsLiveStream(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", eventMediaType)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, savedAuth(AuthState{AccessToken: "tok", AccessExpires: farFuture()}))

	stream, err := c.WatchEvents("BOSCH-1")
	require.NoError(t, err)

	c.StopEvents("BOSCH-1")
	select {
	case <-stream.Done():
	case <-time.After(5 * time.Second):
		require.Fail(t, "stream did not shut down")
	}

	// Unknown ids are a no-op.
	c.StopEvents("SIEMENS-9")
}

func TestEventStreamOutlivesHTTPClientTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", eventMediaType)
		fl := w.(http.Flusher)
		fl.Flush()
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				if _, err := w.Write([]byte("event: KEEP-ALIVE\ndata:\n\n")); err != nil {
					return
				}
				fl.Flush()
			}
		}
	}))
	defer srv.Close()

	// The configured client timeout bounds whole exchanges, body reads
	// included. The stream must keep delivering well past it.
	c, err := NewClient(ClientConfig{
		ClientID:   testClientID,
		BaseURL:    srv.URL,
		Logger:     testLogger(),
		HTTPClient: &http.Client{Timeout: 200 * time.Millisecond},
		SavedAuth:  savedAuth(AuthState{AccessToken: "tok", AccessExpires: farFuture()}),
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	stream, err := c.WatchEvents("BOSCH-1")
	require.NoError(t, err)

	count := 0
	deadline := time.After(700 * time.Millisecond)
collect:
	for {
		select {
		case ev, ok := <-stream.Events():
			require.True(t, ok, "stream closed early: %v", stream.Err())
			require.Equal(t, "KEEP-ALIVE", ev.Name)
			count++
		case <-deadline:
			break collect
		}
	}
	// 50 ms cadence: eight events means the stream was alive well beyond
	// the 200 ms client timeout.
	require.GreaterOrEqual(t, count, 8)

	stream.Stop()
	select {
	case <-stream.Done():
	case <-time.After(5 * time.Second):
		require.Fail(t, "stream did not shut down")
	}
	require.NoError(t, stream.Err())
}

func TestEventStreamReconnectsAfterRateLimit(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		first := attempts == 1
		mu.Unlock()
		if first {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"key":"429","description":"rate limit exceeded"}}`))
			return
		}
		w.Header().Set("Content-Type", eventMediaType)
		_, _ = w.Write([]byte("event: STATUS\ndata: {\"items\":[]}\n\n"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, savedAuth(AuthState{AccessToken: "tok", AccessExpires: farFuture()}))

	stream, err := c.WatchEvents("BOSCH-1")
	require.NoError(t, err)

	select {
	case ev := <-stream.Events():
		require.Equal(t, "STATUS", ev.Name)
	case <-time.After(10 * time.Second):
		require.Fail(t, "no event after reconnect")
	}

	mu.Lock()
	require.GreaterOrEqual(t, attempts, 2)
	mu.Unlock()

	stream.Stop()
	<-stream.Done()
	require.NoError(t, stream.Err())
}

func TestEventStreamReconnectsAfterTokenInvalidation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == pathToken {
			writeToken(t, w, map[string]any{"access_token": "fresh", "expires_in": 86400})
			return
		}
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"key":"invalid_token","description":"token expired"}}`))
			return
		}
		w.Header().Set("Content-Type", eventMediaType)
		_, _ = w.Write([]byte("event: NOTIFY\ndata: {\"items\":[]}\n\n"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, savedAuth(AuthState{
		AccessToken:   "stale",
		AccessExpires: farFuture(),
		RefreshToken:  "refresh-1",
	}))

	stream, err := c.WatchEvents("BOSCH-1")
	require.NoError(t, err)

	// The rejected token must not end the stream: the monitor refreshes
	// and the stream reconnects with the new token.
	select {
	case ev := <-stream.Events():
		require.Equal(t, "NOTIFY", ev.Name)
	case <-time.After(10 * time.Second):
		require.Fail(t, "no event after token refresh")
	}
	require.Equal(t, "fresh", c.auth.accessToken())

	stream.Stop()
	<-stream.Done()
	require.NoError(t, stream.Err())
}

func TestEventStreamEndsFatallyOnUnclassifiedError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"key":"insufficient_scope","description":"no Monitor scope"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, savedAuth(AuthState{AccessToken: "tok", AccessExpires: farFuture()}))

	stream, err := c.WatchEvents("BOSCH-1")
	require.NoError(t, err)

	select {
	case <-stream.Done():
	case <-time.After(5 * time.Second):
		require.Fail(t, "stream did not shut down")
	}

	var apiErr *APIError
	require.ErrorAs(t, stream.Err(), &apiErr)
	require.Equal(t, "insufficient_scope", apiErr.Key)
}
