package querylog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/config"
)

type fakeWriter struct {
	mu      sync.Mutex
	batches [][]Entry
	err     error
}

func (f *fakeWriter) InsertBatch(_ context.Context, entries []Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, append([]Entry(nil), entries...))
	return nil
}

func (f *fakeWriter) snapshot() (batches int, entries int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.batches {
		entries += len(b)
	}
	return len(f.batches), entries
}

func entry(i int) Entry {
	return Entry{ID: fmt.Sprintf("id-%d", i), Source: "http", Query: "q", CreatedAt: time.Now()}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRecorderFlushesOnBatchSize(t *testing.T) {
	w := &fakeWriter{}
	r := NewRecorder(w, config.PostgresConfig{BatchSize: 2, FlushInterval: time.Hour, BufferSize: 10}, nil)
	r.Start(context.Background())
	defer r.Close()

	r.Record(entry(1))
	r.Record(entry(2))
	waitFor(t, func() bool {
		batches, _ := w.snapshot()
		return batches == 1
	})
}

func TestRecorderFlushesOnInterval(t *testing.T) {
	w := &fakeWriter{}
	r := NewRecorder(w, config.PostgresConfig{BatchSize: 100, FlushInterval: 10 * time.Millisecond, BufferSize: 10}, nil)
	r.Start(context.Background())
	defer r.Close()

	r.Record(entry(1))
	waitFor(t, func() bool {
		_, entries := w.snapshot()
		return entries == 1
	})
}

func TestRecorderCloseDrains(t *testing.T) {
	w := &fakeWriter{}
	r := NewRecorder(w, config.PostgresConfig{BatchSize: 100, FlushInterval: time.Hour, BufferSize: 10}, nil)
	r.Start(context.Background())
	for i := range 3 {
		r.Record(entry(i))
	}
	r.Close()

	if _, entries := w.snapshot(); entries != 3 {
		t.Errorf("written entries = %d, want 3", entries)
	}
	r.Close()
	r.Record(entry(9))
	if r.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1 after Record on a closed recorder", r.Dropped())
	}
}

func TestRecorderContextCancelDrains(t *testing.T) {
	w := &fakeWriter{}
	r := NewRecorder(w, config.PostgresConfig{BatchSize: 2, FlushInterval: time.Hour, BufferSize: 10}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	for i := range 5 {
		r.Record(entry(i))
	}
	cancel()
	r.Close()

	if _, entries := w.snapshot(); entries != 5 {
		t.Errorf("written entries = %d, want 5", entries)
	}
}

func TestRecorderDropsWhenFull(t *testing.T) {
	w := &fakeWriter{}
	r := NewRecorder(w, config.PostgresConfig{BufferSize: 1}, nil)
	r.Record(entry(1))
	r.Record(entry(2))
	if r.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", r.Dropped())
	}
	r.Close()
}

func TestRecorderWriteFailure(t *testing.T) {
	w := &fakeWriter{err: errors.New("connection reset")}
	r := NewRecorder(w, config.PostgresConfig{BatchSize: 1, FlushInterval: time.Hour, BufferSize: 10}, nil)
	r.Start(context.Background())
	r.Record(entry(1))
	r.Close()
	if batches, _ := w.snapshot(); batches != 0 {
		t.Errorf("batches = %d, want 0", batches)
	}
}
