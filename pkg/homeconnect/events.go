package homeconnect

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Event is one parsed server-sent event from an appliance stream.
type Event struct {
	// Name is the SSE event field, e.g. "NOTIFY", "STATUS", "EVENT",
	// "CONNECTED", "DISCONNECTED", "KEEP-ALIVE".
	Name string

	// Data is the JSON-decoded data field; nil for keep-alives and other
	// events without a payload.
	Data any

	// ID is the SSE id field; the server sets it to the appliance id.
	ID string

	// Fields holds any other fields verbatim.
	Fields map[string]string
}

// EventStream is a live per-appliance event subscription. Events arrive on
// Events until the stream is stopped or fails fatally; Done closes once
// the stream has fully shut down, after which Err reports any fatal error.
// A caller-initiated Stop never produces an error.
type EventStream struct {
	haid   string
	events chan Event
	done   chan struct{}
	cancel context.CancelFunc

	stopOnce sync.Once

	errMu sync.Mutex
	err   error
}

// Events is the channel of parsed events. It closes when the stream ends.
func (s *EventStream) Events() <-chan Event { return s.events }

// Done closes when the stream has fully shut down.
func (s *EventStream) Done() <-chan struct{} { return s.done }

// Err returns the fatal error that ended the stream, or nil after a
// caller-initiated stop. Only valid once Done is closed.
func (s *EventStream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Stop aborts the underlying transport. It is idempotent, never surfaces
// an error, and no further events are emitted once it begins.
func (s *EventStream) Stop() {
	s.stopOnce.Do(s.cancel)
}

func (s *EventStream) setErr(err error) {
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()
}

// WatchEvents subscribes to the event stream of one appliance. At most one
// stream per appliance id is live at a time: subscribing again replaces
// (stops) the previous stream rather than leaking it.
//
// The stream reconnects with exponential backoff on retryable and
// token-invalidating failures; anything else ends it with Err set.
func (c *Client) WatchEvents(haid string) (*EventStream, error) {
	if haid == "" {
		return nil, fmt.Errorf("homeconnect: appliance id cannot be empty")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &EventStream{
		haid:   haid,
		events: make(chan Event),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	c.streamMu.Lock()
	if c.closed {
		c.streamMu.Unlock()
		cancel()
		return nil, ErrClientClosed
	}
	previous := c.streams[haid]
	c.streams[haid] = s
	c.streamMu.Unlock()

	if previous != nil {
		previous.Stop()
	}

	go c.runEventStream(ctx, s)
	return s, nil
}

// StopEvents stops the live stream for an appliance id, if any.
func (c *Client) StopEvents(haid string) {
	c.streamMu.Lock()
	s := c.streams[haid]
	c.streamMu.Unlock()
	if s != nil {
		s.Stop()
	}
}

func (c *Client) removeStream(s *EventStream) {
	c.streamMu.Lock()
	if c.streams[s.haid] == s {
		delete(c.streams, s.haid)
	}
	c.streamMu.Unlock()
}

// runEventStream keeps one appliance stream alive: authorization gate,
// rate-limit gate, connect, parse until the connection drops, then retry
// with backoff under the usual retryable/fatal classification.
func (c *Client) runEventStream(ctx context.Context, s *EventStream) {
	defer close(s.done)
	defer close(s.events)
	defer c.removeStream(s)

	log := c.log.With("haid", s.haid)
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // the stream retries for as long as it is wanted

	for {
		err := c.streamOnce(ctx, s, log)
		if ctx.Err() != nil {
			// Caller-initiated stop: no error, just completion.
			return
		}
		if err == nil {
			// Orderly server close; reconnect promptly.
			bo.Reset()
			continue
		}

		c.noteAuthFailure(err)
		// ErrNoAccessToken can race a concurrent invalidation past the
		// authorization gate; wait and reconnect like any token failure.
		retry := IsRetryable(err) || invalidatesAccessToken(err) ||
			invalidatesGrant(err) || errors.Is(err, ErrNoAccessToken)
		if !retry {
			log.Warn("event stream failed", "error", err)
			s.setErr(err)
			return
		}

		wait := bo.NextBackOff()
		log.Debug("event stream interrupted, reconnecting", "error", err, "backoff", wait)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// streamOnce opens the stream and parses it until it ends. A nil return
// means the server closed the connection cleanly.
func (c *Client) streamOnce(ctx context.Context, s *EventStream, log *slog.Logger) error {
	if err := c.WaitUntilAuthorized(ctx); err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/homeappliances/" + s.haid + "/events",
		accept: eventMediaType,
		bearer: true,
		stream: true,
	})
	if err != nil {
		return err
	}
	defer resp.stream.Close()

	emit := func(ev Event) {
		select {
		case s.events <- ev:
		case <-ctx.Done():
		}
	}
	return parseEventStream(resp.stream, log, emit)
}

// parseEventStream consumes SSE framing: a blank line dispatches the
// accumulated fields (if any), ":" lines are comments, everything else is
// a "field: value" pair. A non-empty data field is JSON-decoded before
// being stored. Malformed lines are logged and skipped, never fatal.
func parseEventStream(r io.Reader, log *slog.Logger, emit func(Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var ev Event
	pending := false

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		switch {
		case line == "":
			if pending {
				emit(ev)
				ev = Event{}
				pending = false
			}

		case strings.HasPrefix(line, ":"):
			log.Debug("event stream comment", "comment", strings.TrimSpace(line[1:]))

		default:
			field, value, ok := strings.Cut(line, ":")
			if !ok {
				log.Warn("malformed event stream line", "line", line)
				continue
			}
			value = strings.TrimPrefix(value, " ")

			switch field {
			case "event":
				ev.Name = value
			case "id":
				ev.ID = value
			case "data":
				if value != "" {
					var data any
					if err := json.Unmarshal([]byte(value), &data); err != nil {
						log.Warn("malformed event data", "error", err)
						continue
					}
					ev.Data = data
				}
			default:
				if ev.Fields == nil {
					ev.Fields = make(map[string]string)
				}
				ev.Fields[field] = value
			}
			pending = true
		}
	}
	return scanner.Err()
}
