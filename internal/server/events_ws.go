package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/seatwise/seatwise/internal/events"
)

const (
	// streamBufferSize is the per-connection event backlog. A connection
	// that falls further behind starts losing events.
	streamBufferSize = 100

	// streamWriteWait bounds a single websocket write.
	streamWriteWait = 10 * time.Second
)

// StreamHub fans bus events out to websocket clients. Bus subscriptions
// cannot be removed, so the hub registers a single handler at construction
// and multiplexes onto per-connection channels that can come and go.
type StreamHub struct {
	log zerolog.Logger

	mu          sync.Mutex
	subscribers map[chan *events.Event]struct{}
}

// NewStreamHub creates the hub and attaches it to every event type on the bus.
func NewStreamHub(bus *events.Bus, log zerolog.Logger) *StreamHub {
	h := &StreamHub{
		log:         log.With().Str("component", "event_stream").Logger(),
		subscribers: make(map[chan *events.Event]struct{}),
	}
	for _, eventType := range events.AllEventTypes {
		bus.Subscribe(eventType, h.broadcast)
	}
	return h
}

// broadcast runs on the publisher's goroutine and must not block. A full
// connection buffer drops the event for that connection only.
func (h *StreamHub) broadcast(event *events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			h.log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Subscriber buffer full, dropping event")
		}
	}
}

func (h *StreamHub) subscribe() chan *events.Event {
	ch := make(chan *events.Event, streamBufferSize)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *StreamHub) unsubscribe(ch chan *events.Event) {
	h.mu.Lock()
	delete(h.subscribers, ch)
	h.mu.Unlock()
}

// SubscriberCount reports how many connections are attached.
func (h *StreamHub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// ServeHTTP upgrades the request to a websocket and streams events as JSON
// text frames until the client disconnects. An optional comma-separated
// ?types= parameter restricts the stream to those event types.
func (h *StreamHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	filter := parseTypeFilter(r.URL.Query().Get("types"))

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	h.log.Debug().
		Str("remote", r.RemoteAddr).
		Int("subscribers", h.SubscriberCount()).
		Msg("Event stream client connected")

	// The client never sends application messages. CloseRead keeps control
	// frames serviced and cancels the context when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case event := <-ch:
			if filter != nil && !filter[event.Type] {
				continue
			}
			if err := h.writeEvent(ctx, conn, event); err != nil {
				h.log.Debug().Err(err).Msg("Event stream write failed, closing connection")
				return
			}
		}
	}
}

func (h *StreamHub) writeEvent(ctx context.Context, conn *websocket.Conn, event *events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, streamWriteWait)
	defer cancel()

	return conn.Write(writeCtx, websocket.MessageText, data)
}

// parseTypeFilter turns the types parameter into a lookup set. Empty input
// means no filtering.
func parseTypeFilter(raw string) map[events.EventType]bool {
	if raw == "" {
		return nil
	}
	filter := make(map[events.EventType]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			filter[events.EventType(part)] = true
		}
	}
	if len(filter) == 0 {
		return nil
	}
	return filter
}
