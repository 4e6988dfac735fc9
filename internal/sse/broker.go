// Package sse streams note mutation events to admin dashboards over
// Server-Sent Events.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// StatsEvent is the throttled summary event sent after note mutations.
const StatsEvent = "stats.updated"

// Event is one SSE message.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// StatsFunc computes the payload of a StatsEvent.
type StatsFunc func(ctx context.Context) (any, error)

type noteEventReq struct {
	kind string
	path string
}

// Broker fans events out to connected SSE clients.
//
// A single loop goroutine owns the client set, the event sequence and the
// stats throttle timestamp. Public methods talk to it over channels.
type Broker struct {
	statsMin  time.Duration
	heartbeat time.Duration
	stats     StatsFunc

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	noteEventCh   chan noteEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithStats attaches the function computing stats.updated payloads.
func WithStats(fn StatsFunc) Option {
	return func(b *Broker) { b.stats = fn }
}

// WithHeartbeat sets the interval of keep-alive comments on idle streams.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) { b.heartbeat = d }
}

// NewBroker starts a broker that emits at most one stats.updated event per
// statsThrottle.
func NewBroker(statsThrottle time.Duration, opts ...Option) *Broker {
	if statsThrottle <= 0 {
		statsThrottle = 2 * time.Second
	}
	b := &Broker{
		statsMin:      statsThrottle,
		heartbeat:     25 * time.Second,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		noteEventCh:   make(chan noteEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, o := range opts {
		o(b)
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq       uint64
		lastStats time.Time
	)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than block the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.noteEventCh:
			broadcast(Event{Type: req.kind, Data: map[string]string{"path": req.path}})

			now := time.Now()
			if now.Sub(lastStats) >= b.statsMin {
				lastStats = now
				if b.stats == nil {
					broadcast(Event{Type: StatsEvent, Data: map[string]any{}})
				} else {
					go b.publishStats()
				}
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// publishStats computes the stats payload off the loop and publishes it.
func (b *Broker) publishStats() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := b.stats(ctx)
	if err != nil {
		return
	}
	b.Publish(Event{Type: StatsEvent, Data: data})
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client and returns its message channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishNoteEvent broadcasts a note mutation of the given kind
// (note.created, note.updated, ...) followed by a throttled stats.updated.
func (b *Broker) PublishNoteEvent(kind, path string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.noteEventCh <- noteEventReq{kind: kind, path: path}:
	case <-b.stopped:
	}
}

// ServeHTTP streams events until the client disconnects or the broker closes.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
