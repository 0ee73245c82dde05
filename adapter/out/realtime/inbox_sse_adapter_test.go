package realtime

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"

	"inbox_server/core/domain"
)

func testAdapter() *SSEAdapter {
	return NewSSEAdapter(zerolog.New(os.Stderr).Level(zerolog.Disabled))
}

func TestPushDeliversToSubscriber(t *testing.T) {
	a := testAdapter()
	ch := a.Subscribe("user-1")

	event := domain.NewEvent(domain.EventNewEmail, "user-1", map[string]any{"id": 1})
	if err := a.Push(context.Background(), "user-1", event); err != nil {
		t.Fatalf("Push() error: %v", err)
	}

	select {
	case got := <-ch:
		if got.Type != domain.EventNewEmail {
			t.Errorf("event type = %s, want %s", got.Type, domain.EventNewEmail)
		}
		if got.Seq == 0 {
			t.Error("expected a non-zero sequence number")
		}
	default:
		t.Fatal("expected a buffered event")
	}
}

func TestPushToUnknownUserIsNoop(t *testing.T) {
	a := testAdapter()
	if err := a.Push(context.Background(), "nobody", domain.NewEvent(domain.EventNewEmail, "nobody", nil)); err != nil {
		t.Fatalf("Push() error: %v", err)
	}
}

func TestFullBufferEvictsOldest(t *testing.T) {
	a := testAdapter()
	ch := a.Subscribe("user-1")

	// Fill the buffer past capacity.
	for i := 0; i < 300; i++ {
		event := domain.NewEvent(domain.EventNewEmail, "user-1", map[string]any{"n": i})
		if err := a.Push(context.Background(), "user-1", event); err != nil {
			t.Fatalf("Push() error: %v", err)
		}
	}

	// The oldest events were evicted; the first one still buffered should
	// be a later event, and the newest must have survived.
	first := <-ch
	if n := first.Data.(map[string]any)["n"].(int); n == 0 {
		t.Error("expected the oldest event to be evicted")
	}

	var last *domain.RealtimeEvent
	for {
		select {
		case ev := <-ch:
			last = ev
			continue
		default:
		}
		break
	}
	if last == nil {
		t.Fatal("expected buffered events")
	}
	if n := last.Data.(map[string]any)["n"].(int); n != 299 {
		t.Errorf("newest buffered event n = %d, want 299", n)
	}

	metrics := a.GetMetrics()
	if metrics.MessagesDropped == 0 {
		t.Error("expected dropped messages to be counted")
	}
}

func TestSequenceNumbersIncrease(t *testing.T) {
	a := testAdapter()
	ch := a.Subscribe("user-1")

	for i := 0; i < 3; i++ {
		a.Push(context.Background(), "user-1", domain.NewEvent(domain.EventSyncStarted, "user-1", nil))
	}

	var prev int64
	for i := 0; i < 3; i++ {
		ev := <-ch
		if ev.Seq <= prev {
			t.Errorf("seq %d not greater than previous %d", ev.Seq, prev)
		}
		prev = ev.Seq
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	a := testAdapter()
	ch := a.Subscribe("user-1")
	a.Unsubscribe("user-1", ch)

	if _, open := <-ch; open {
		t.Error("expected channel to be closed")
	}
	if a.IsConnected("user-1") {
		t.Error("expected user to be disconnected")
	}
}
