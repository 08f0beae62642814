package storage_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/memimg/internal/memimg/event"
	"github.com/louisbranch/memimg/internal/memimg/storage"
	"github.com/louisbranch/memimg/internal/memimg/storage/integrity"
	"github.com/louisbranch/memimg/internal/memimg/storage/memory"
)

type sliceLister []event.Event

func (l sliceLister) ListEvents(_ context.Context, afterSeq uint64, limit int) ([]event.Event, error) {
	var out []event.Event
	for _, evt := range l {
		if evt.Seq > afterSeq {
			out = append(out, evt)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func newEvent(id string, amount int) event.Event {
	return event.Event{
		ID:          id,
		Type:        "bank.deposit",
		Timestamp:   time.Date(2024, 2, 1, 10, 30, 0, 0, time.UTC),
		PayloadJSON: []byte(`{"id":"janet","amount":` + string(rune('0'+amount)) + `}`),
	}
}

func sealedLog(t *testing.T, keyring *integrity.Keyring, n int) []event.Event {
	t.Helper()
	var log []event.Event
	var prev event.Event
	for i := 0; i < n; i++ {
		sealed, err := storage.Seal(newEvent("evt-"+string(rune('a'+i)), i), prev, keyring, "bank")
		if err != nil {
			t.Fatalf("seal: %v", err)
		}
		log = append(log, sealed)
		prev = sealed
	}
	return log
}

func TestReplayRequiresInputs(t *testing.T) {
	ctx := context.Background()
	if _, err := storage.Replay(ctx, nil, func(event.Event) error { return nil }, storage.Options{}); !errors.Is(err, storage.ErrListerRequired) {
		t.Fatalf("expected ErrListerRequired, got %v", err)
	}
	if _, err := storage.Replay(ctx, sliceLister{}, nil, storage.Options{}); !errors.Is(err, storage.ErrApplyRequired) {
		t.Fatalf("expected ErrApplyRequired, got %v", err)
	}
}

func TestReplayPagesInOrder(t *testing.T) {
	log := sealedLog(t, nil, 5)
	var seqs []uint64
	result, err := storage.Replay(context.Background(), sliceLister(log), func(evt event.Event) error {
		seqs = append(seqs, evt.Seq)
		return nil
	}, storage.Options{PageSize: 2})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if result.Applied != 5 || result.LastSeq != 5 {
		t.Fatalf("result = %+v", result)
	}
	for i, seq := range seqs {
		if seq != uint64(i+1) {
			t.Fatalf("seqs = %v", seqs)
		}
	}
}

func TestReplayStopsAtUntilSeq(t *testing.T) {
	log := sealedLog(t, nil, 4)
	result, err := storage.Replay(context.Background(), sliceLister(log), func(event.Event) error { return nil }, storage.Options{AfterSeq: 1, UntilSeq: 3})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if result.Applied != 2 || result.LastSeq != 3 {
		t.Fatalf("result = %+v", result)
	}
}

func TestReplayDetectsSequenceGap(t *testing.T) {
	log := sealedLog(t, nil, 3)
	gapped := sliceLister{log[0], log[2]}
	_, err := storage.Replay(context.Background(), gapped, func(event.Event) error { return nil }, storage.Options{})
	if !errors.Is(err, storage.ErrSequenceGap) {
		t.Fatalf("expected ErrSequenceGap, got %v", err)
	}
	if !strings.Contains(err.Error(), "expected 2 got 3") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestReplayStopsOnApplyError(t *testing.T) {
	boom := errors.New("boom")
	log := sealedLog(t, nil, 3)
	result, err := storage.Replay(context.Background(), sliceLister(log), func(evt event.Event) error {
		if evt.Seq == 2 {
			return boom
		}
		return nil
	}, storage.Options{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if result.Applied != 1 {
		t.Fatalf("applied = %d, want 1", result.Applied)
	}
}

func TestVerify(t *testing.T) {
	keyring, err := integrity.NewKeyring(map[string][]byte{"v1": []byte("secret")}, "v1")
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	ctx := context.Background()

	tests := []struct {
		name    string
		tamper  func([]event.Event)
		keyring *integrity.Keyring
		wantErr bool
	}{
		{name: "intact"},
		{name: "intact signed", keyring: keyring},
		{name: "payload edited", tamper: func(l []event.Event) { l[1].PayloadJSON = []byte(`{"id":"janet","amount":999}`) }, wantErr: true},
		{name: "chain broken", tamper: func(l []event.Event) { l[2].PrevHash = "x" }, wantErr: true},
		{name: "signature forged", keyring: keyring, tamper: func(l []event.Event) { l[0].Signature = "00" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := sealedLog(t, keyring, 3)
			if tt.tamper != nil {
				tt.tamper(log)
			}
			_, err := storage.Verify(ctx, sliceLister(log), tt.keyring, "bank")
			if tt.wantErr {
				if !errors.Is(err, storage.ErrTampered) {
					t.Fatalf("expected ErrTampered, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("verify: %v", err)
			}
		})
	}
}

func TestVerifyDetectsLargeAmountEdit(t *testing.T) {
	evt := newEvent("evt-a", 0)
	evt.PayloadJSON = []byte(`{"id":"janet","amount":9007199254740993}`)
	sealed, err := storage.Seal(evt, event.Event{}, nil, "bank")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	sealed.PayloadJSON = []byte(`{"id":"janet","amount":9007199254740992}`)

	_, err = storage.Verify(context.Background(), sliceLister{sealed}, nil, "bank")
	if !errors.Is(err, storage.ErrTampered) {
		t.Fatalf("expected ErrTampered, got %v", err)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := storage.NewConfig(storage.WithScope(""), nil)
	if cfg.Scope != storage.DefaultScope {
		t.Fatalf("scope = %q, want %q", cfg.Scope, storage.DefaultScope)
	}
	if cfg.PageSize <= 0 {
		t.Fatalf("page size = %d", cfg.PageSize)
	}
}

func TestMemoryStoreSatisfiesLog(t *testing.T) {
	var log storage.Log = memory.New()
	defer log.Close()
	if _, err := log.Append(context.Background(), newEvent("a", 1)); err != nil {
		t.Fatalf("append: %v", err)
	}
}
