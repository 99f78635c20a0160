// Package sse streams registry activity to browsers as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// CatalogChanged is the coalesced event telling clients to refetch the listing.
const CatalogChanged = "catalog.changed"

// Event is one SSE frame: Type becomes the "event:" line and Data is
// encoded as JSON on the "data:" line.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// frame renders e in the text/event-stream wire format.
func (e Event) frame() ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", e.Type, payload)), nil
}

// outgoing is an event queued for broadcast. Model events also nudge
// clients with CatalogChanged.
type outgoing struct {
	event        Event
	catalogTouch bool
}

// subscribers is the state owned by the broker goroutine.
type subscribers struct {
	set         map[chan []byte]struct{}
	lastChanged time.Time
}

func (s *subscribers) send(e Event) {
	raw, err := e.frame()
	if err != nil {
		return
	}
	for ch := range s.set {
		select {
		case ch <- raw:
		default: // slow reader, frame dropped
		}
	}
}

// Broker fans registry events out to SSE subscribers. All subscriber state
// lives in one goroutine. Membership changes run there as closures sent over
// ctrl; events travel over a buffered queue so publishers never wait on
// readers.
type Broker struct {
	every time.Duration // minimum gap between CatalogChanged frames

	ctrl   chan func(*subscribers)
	queue  chan outgoing
	quit   chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

// NewBroker starts a broker. CatalogChanged is sent at most once per every;
// a non-positive value means two seconds.
func NewBroker(every time.Duration) *Broker {
	if every <= 0 {
		every = 2 * time.Second
	}
	b := &Broker{
		every: every,
		ctrl:  make(chan func(*subscribers)),
		queue: make(chan outgoing, 256),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Broker) loop() {
	defer close(b.done)
	subs := &subscribers{set: make(map[chan []byte]struct{})}

	for {
		select {
		case <-b.quit:
			for ch := range subs.set {
				close(ch)
			}
			return
		case op := <-b.ctrl:
			op(subs)
		case out := <-b.queue:
			subs.send(out.event)
			if out.catalogTouch && time.Since(subs.lastChanged) >= b.every {
				subs.lastChanged = time.Now()
				subs.send(Event{Type: CatalogChanged, Data: map[string]string{}})
			}
		}
	}
}

// exec runs op on the broker goroutine. It reports false once the broker
// has shut down.
func (b *Broker) exec(op func(*subscribers)) bool {
	if b.closed.Load() {
		return false
	}
	select {
	case b.ctrl <- op:
		return true
	case <-b.done:
		return false
	}
}

func (b *Broker) enqueue(out outgoing) {
	if b.closed.Load() {
		return
	}
	select {
	case b.queue <- out:
	case <-b.done:
	}
}

// Close stops the broker and closes every subscriber channel. It is safe to
// call more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.quit)
	}
	<-b.done
}

// Subscribe registers a new reader. The returned channel is closed by
// Unsubscribe or Close; on a stopped broker it comes back already closed.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if !b.exec(func(s *subscribers) { s.set[ch] = struct{}{} }) {
		close(ch)
	}
	return ch
}

// Unsubscribe removes ch and closes it. Unknown channels are ignored.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.exec(func(s *subscribers) {
		if _, ok := s.set[ch]; ok {
			delete(s.set, ch)
			close(ch)
		}
	})
}

// ClientCount returns the number of registered readers.
func (b *Broker) ClientCount() int {
	n := make(chan int, 1)
	if !b.exec(func(s *subscribers) { n <- len(s.set) }) {
		return 0
	}
	return <-n
}

// Publish broadcasts e as is. Job status changes use it.
func (b *Broker) Publish(e Event) {
	b.enqueue(outgoing{event: e})
}

// PublishModelEvent broadcasts kind (model.imported, model.deleted, ...)
// with {"name": name} and, throttled, CatalogChanged. Its signature matches
// the registry and watcher callbacks.
func (b *Broker) PublishModelEvent(kind, name string) {
	b.enqueue(outgoing{
		event:        Event{Type: kind, Data: map[string]string{"name": name}},
		catalogTouch: true,
	})
}

// ServeHTTP streams events to one client until it disconnects or the broker
// closes. Mounted at GET /api/events.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	frames := b.Subscribe()
	defer b.Unsubscribe(frames)

	for {
		select {
		case <-r.Context().Done():
			return
		case raw, open := <-frames:
			if !open {
				return
			}
			if _, err := w.Write(raw); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
