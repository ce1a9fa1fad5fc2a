// Package sse streams loan activity to browsers as Server-Sent Events.
//
// Every frame carries a sequence id. A client that reconnects with
// Last-Event-ID receives the frames it missed, as long as they are still
// in the replay buffer.
package sse

import (
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/starford/lendr/internal/loan"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Event types.
const (
	TypeLoanBorrowed   = "loan.borrowed"
	TypeLoanReturned   = "loan.returned"
	TypeCatalogUpdated = "catalog.updated"
	TypePolicyUpdated  = "policy.updated"
)

// Event is a typed payload to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// LoanData is the payload of loan events.
type LoanData struct {
	LoanID     string     `json:"loan_id"`
	BookID     string     `json:"book_id"`
	DueDate    loan.Date  `json:"due_date"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
}

// loanEvent converts a lending event kind into its SSE event.
func loanEvent(kind string, rec loan.Record) (Event, bool) {
	data := LoanData{
		LoanID:     rec.ID,
		BookID:     rec.BookID,
		DueDate:    rec.DueDate,
		ReturnedAt: rec.ReturnedAt,
	}
	switch kind {
	case "borrowed":
		return Event{Type: TypeLoanBorrowed, Data: data}, true
	case "returned":
		return Event{Type: TypeLoanReturned, Data: data}, true
	default:
		return Event{}, false
	}
}

// Option configures a Broker.
type Option func(*Broker)

// WithCatalogThrottle limits catalog.updated to one per d.
func WithCatalogThrottle(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.catalogMin = d
		}
	}
}

// WithHeartbeat sets how often idle streams receive a comment line.
// Zero disables heartbeats.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) {
		b.heartbeat = d
	}
}

// WithReplay sets how many recent frames are kept for reconnecting clients.
func WithReplay(n int) Option {
	return func(b *Broker) {
		if n >= 0 {
			b.replaySize = n
		}
	}
}

type frame struct {
	id  uint64
	raw []byte
}

type publication struct {
	event Event
	// catalog asks for a throttled catalog.updated follow-up.
	catalog bool
}

// membership adds or removes ch. done is closed once the loop has applied
// it, so ClientCount reflects the change on return.
type membership struct {
	ch    chan []byte
	join  bool
	after uint64
	done  chan struct{}
}

// Broker fans events out to connected clients.
//
// A single loop goroutine owns the client set, the sequence counter, the
// replay buffer and the catalog throttle. Public methods talk to it over
// channels.
type Broker struct {
	catalogMin time.Duration
	heartbeat  time.Duration
	replaySize int

	memberCh  chan membership
	publishCh chan publication

	clients atomic.Int64
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. Defaults: catalog.updated at most every two
// seconds, a heartbeat every 15 seconds and 64 replayable frames.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		catalogMin: 2 * time.Second,
		heartbeat:  15 * time.Second,
		replaySize: 64,
		memberCh:   make(chan membership),
		publishCh:  make(chan publication, 256),
		stopCh:     make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq         uint64
		replay      []frame
		lastCatalog time.Time
	)

	send := func(ch chan []byte, raw []byte) {
		select {
		case ch <- raw:
		default:
			// Client is not keeping up.
		}
	}

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		f := frame{id: seq, raw: []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))}
		if b.replaySize > 0 {
			replay = append(replay, f)
			if len(replay) > b.replaySize {
				replay = replay[len(replay)-b.replaySize:]
			}
		}
		for ch := range clients {
			send(ch, f.raw)
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			b.clients.Store(0)
			return

		case m := <-b.memberCh:
			if m.join {
				clients[m.ch] = struct{}{}
				if m.after > 0 {
					for _, f := range replay {
						if f.id > m.after {
							send(m.ch, f.raw)
						}
					}
				}
			} else if _, ok := clients[m.ch]; ok {
				delete(clients, m.ch)
				close(m.ch)
			}
			b.clients.Store(int64(len(clients)))
			close(m.done)

		case p := <-b.publishCh:
			broadcast(p.event)
			if p.catalog {
				if now := time.Now(); now.Sub(lastCatalog) >= b.catalogMin {
					lastCatalog = now
					broadcast(Event{Type: TypeCatalogUpdated, Data: map[string]string{}})
				}
			}
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. Frames newer than lastEventID that are
// still buffered are delivered first; zero means no replay.
func (b *Broker) Subscribe(lastEventID uint64) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	if !b.apply(membership{ch: ch, join: true, after: lastEventID}) {
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	b.apply(membership{ch: ch})
}

// apply hands m to the loop and waits until it is applied. It reports false
// when the broker stopped first.
func (b *Broker) apply(m membership) bool {
	m.done = make(chan struct{})
	select {
	case b.memberCh <- m:
	case <-b.stopped:
		return false
	}
	<-m.done
	return true
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	return int(b.clients.Load())
}

func (b *Broker) publish(p publication) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- p:
	case <-b.stopped:
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	b.publish(publication{event: event})
}

// PublishLoanEvent publishes a borrow or return followed by a throttled
// catalog.updated. Kinds other than "borrowed" and "returned" are ignored.
// The signature matches lending.EventFunc.
func (b *Broker) PublishLoanEvent(kind string, rec loan.Record) {
	if event, ok := loanEvent(kind, rec); ok {
		b.publish(publication{event: event, catalog: true})
	}
}

// PublishPolicy announces a reloaded loan policy.
func (b *Broker) PublishPolicy(p loan.Policy) {
	b.Publish(Event{Type: TypePolicyUpdated, Data: p})
}

// ServeHTTP streams events (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(lastID)
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.heartbeat > 0 {
		ticker := time.NewTicker(b.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
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
