package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/louisbranch/memimg/internal/memimg/event"
	"github.com/louisbranch/memimg/internal/memimg/storage"
)

func newEvent(id string) event.Event {
	return event.Event{
		ID:          id,
		Type:        "bank.deposit",
		Timestamp:   time.Date(2024, 2, 1, 10, 30, 0, 0, time.UTC),
		PayloadJSON: []byte(`{"id":"janet","amount":10}`),
	}
}

func TestAppendAndReplay(t *testing.T) {
	ctx := context.Background()
	store := New(storage.WithPageSize(2))
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		if _, err := store.Append(ctx, newEvent(id)); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	var ids []string
	if err := store.Replay(ctx, func(evt event.Event) error {
		ids = append(ids, evt.ID)
		return nil
	}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if got := len(ids); got != 5 || ids[0] != "a" || ids[4] != "e" {
		t.Fatalf("replayed ids = %v", ids)
	}
	if _, err := storage.Verify(ctx, store, nil, ""); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestAppendRejectsInvalidEvent(t *testing.T) {
	store := New()
	evt := newEvent("")
	if _, err := store.Append(context.Background(), evt); err == nil {
		t.Fatal("expected error for missing id")
	}
	if len(store.Events()) != 0 {
		t.Fatal("expected nothing stored")
	}
}

func TestClosedStore(t *testing.T) {
	store := New()
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := store.Append(context.Background(), newEvent("a")); !errors.Is(err, storage.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	var nilStore *Store
	if err := nilStore.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}
