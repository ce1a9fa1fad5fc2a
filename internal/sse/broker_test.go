package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/lendr/internal/loan"
)

func testRecord(id string) loan.Record {
	return loan.Record{ID: id, BookID: "7", DueDate: loan.MustParseDate("2024-06-08")}
}

func recv(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
	return ""
}

// serve runs the handler until d elapses and returns the response.
func serve(t *testing.T, b *Broker, lastEventID string, d time.Duration, during func()) *httptest.ResponseRecorder {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if during != nil {
		during()
	}
	time.Sleep(d)
	cancel()
	<-done
	return w
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe(0)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after unsub")
	}
}

func TestPublishLoanEvent_Payload(t *testing.T) {
	b := NewBroker(WithCatalogThrottle(100 * time.Millisecond))
	defer b.Close()
	ch := b.Subscribe(0)
	defer b.Unsubscribe(ch)

	b.PublishLoanEvent("borrowed", testRecord("42"))

	s := recv(t, ch)
	if !strings.HasPrefix(s, "id: 1\nevent: loan.borrowed\n") {
		t.Errorf("unexpected frame header in %q", s)
	}
	for _, want := range []string{`"loan_id":"42"`, `"book_id":"7"`, `"due_date":"2024-06-08"`} {
		if !strings.Contains(s, want) {
			t.Errorf("missing %s in %q", want, s)
		}
	}
	if strings.Contains(s, "returned_at") {
		t.Errorf("open loan should omit returned_at: %q", s)
	}

	if s := recv(t, ch); !strings.HasPrefix(s, "id: 2\nevent: catalog.updated\n") {
		t.Errorf("follow-up = %q, want catalog.updated with id 2", s)
	}
}

func TestPublishLoanEvent_CatalogThrottle(t *testing.T) {
	b := NewBroker(WithCatalogThrottle(500 * time.Millisecond))
	defer b.Close()
	ch := b.Subscribe(0)
	defer b.Unsubscribe(ch)

	// Only the first event is followed by catalog.updated.
	b.PublishLoanEvent("borrowed", testRecord("1"))
	b.PublishLoanEvent("returned", testRecord("1"))
	b.PublishLoanEvent("lost", testRecord("1"))

	time.Sleep(50 * time.Millisecond)
	catalogCount := 0
	loanCount := 0
loop:
	for {
		select {
		case msg := <-ch:
			if strings.Contains(string(msg), TypeCatalogUpdated) {
				catalogCount++
			} else {
				loanCount++
			}
		default:
			break loop
		}
	}

	if loanCount != 2 {
		t.Errorf("loan events = %d, want 2", loanCount)
	}
	if catalogCount != 1 {
		t.Errorf("catalog events = %d, want 1 (throttled)", catalogCount)
	}
}

func TestPublishPolicy(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ch := b.Subscribe(0)
	defer b.Unsubscribe(ch)

	b.PublishPolicy(loan.Policy{MaxDurationDays: 14})

	s := recv(t, ch)
	if !strings.Contains(s, "event: policy.updated") || !strings.Contains(s, `"max_duration_days":14`) {
		t.Errorf("unexpected message %q", s)
	}
}

func TestSubscribe_ReplaysAfterLastEventID(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	// The first subscriber pins the ordering: once it has seen a frame,
	// the loop has recorded it.
	first := b.Subscribe(0)
	for i := 0; i < 3; i++ {
		b.PublishPolicy(loan.Policy{MaxDurationDays: i + 1})
		recv(t, first)
	}

	late := b.Subscribe(1)
	defer b.Unsubscribe(late)
	if s := recv(t, late); !strings.HasPrefix(s, "id: 2\n") {
		t.Errorf("first replayed frame = %q, want id 2", s)
	}
	if s := recv(t, late); !strings.HasPrefix(s, "id: 3\n") {
		t.Errorf("second replayed frame = %q, want id 3", s)
	}

	fresh := b.Subscribe(0)
	defer b.Unsubscribe(fresh)
	select {
	case msg := <-fresh:
		t.Errorf("subscriber without Last-Event-ID got %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWithReplay_KeepsNewestFrames(t *testing.T) {
	b := NewBroker(WithReplay(2))
	defer b.Close()

	first := b.Subscribe(0)
	for i := 0; i < 5; i++ {
		b.PublishPolicy(loan.Policy{MaxDurationDays: i + 1})
		recv(t, first)
	}

	late := b.Subscribe(1)
	defer b.Unsubscribe(late)
	if s := recv(t, late); !strings.HasPrefix(s, "id: 4\n") {
		t.Errorf("oldest kept frame = %q, want id 4", s)
	}
	if s := recv(t, late); !strings.HasPrefix(s, "id: 5\n") {
		t.Errorf("newest frame = %q, want id 5", s)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(WithCatalogThrottle(100 * time.Millisecond))
	defer b.Close()

	w := serve(t, b, "", 50*time.Millisecond, func() {
		if b.ClientCount() != 1 {
			t.Errorf("expected 1 client from handler")
		}
		b.PublishLoanEvent("returned", testRecord("9"))
	})

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "id: 1\nevent: loan.returned") {
		t.Errorf("handler output missing event: %q", body)
	}
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestSSEHandler_LastEventIDHeader(t *testing.T) {
	b := NewBroker(WithHeartbeat(0))
	defer b.Close()

	first := b.Subscribe(0)
	b.PublishPolicy(loan.Policy{MaxDurationDays: 7})
	recv(t, first)
	b.PublishPolicy(loan.Policy{MaxDurationDays: 14})
	recv(t, first)

	body := serve(t, b, "1", 20*time.Millisecond, nil).Body.String()
	if strings.Contains(body, "id: 1\n") {
		t.Errorf("frame 1 was already seen: %q", body)
	}
	if !strings.Contains(body, "id: 2\nevent: policy.updated") {
		t.Errorf("missed frame not replayed: %q", body)
	}

	if body := serve(t, b, "bogus", 20*time.Millisecond, nil).Body.String(); strings.Contains(body, "id:") {
		t.Errorf("malformed Last-Event-ID should not replay: %q", body)
	}
}

func TestSSEHandler_Heartbeat(t *testing.T) {
	b := NewBroker(WithHeartbeat(20 * time.Millisecond))
	defer b.Close()

	body := serve(t, b, "", 60*time.Millisecond, nil).Body.String()
	if !strings.Contains(body, ": ping\n\n") {
		t.Errorf("no heartbeat in %q", body)
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ch := b.Subscribe(0)
	defer b.Unsubscribe(ch)

	// Capacity is 64; the extra publishes must not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe(0)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	b.PublishLoanEvent("borrowed", testRecord("1"))
	b.PublishPolicy(loan.DefaultPolicy())
	if _, ok := <-b.Subscribe(0); ok {
		t.Fatal("subscribe after close should return a closed channel")
	}
	b.Close()
}
