package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

// fakeReader delivers its queued messages in order, then blocks until the
// fetch context ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Stats() kafka.ReaderStats { return kafka.ReaderStats{Lag: 7} }

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func newTestConsumer(r *fakeReader, h MessageHandler) *Consumer {
	c := newConsumer(r, "query.parse.requests", h)
	c.redeliverInitial = time.Millisecond
	c.redeliverMax = 2 * time.Millisecond
	return c
}

func TestConsumerRedeliversFailedMessage(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Offset: 10}, {Offset: 11}}}
	var mu sync.Mutex
	var seen []int64
	h := func(_ context.Context, m Message) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, m.Offset)
		if m.Offset == 10 && len(seen) < 3 {
			return errors.New("publish failed")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- newTestConsumer(r, h).Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(r.commits()) < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []int64{10, 10, 10, 11}
	if len(seen) != len(want) {
		t.Fatalf("handled offsets = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("handled offsets = %v, want %v", seen, want)
		}
	}
	if got := r.commits(); len(got) != 2 || got[0] != 10 || got[1] != 11 {
		t.Errorf("committed = %v, want [10 11]", got)
	}
}

func TestConsumerStopsWithoutCommittingOnCancel(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Offset: 5}}}
	ctx, cancel := context.WithCancel(context.Background())
	h := func(context.Context, Message) error {
		cancel()
		return errors.New("broker down")
	}
	if err := newTestConsumer(r, h).Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := r.commits(); len(got) != 0 {
		t.Errorf("committed = %v, want nothing", got)
	}
}

func TestConsumerLag(t *testing.T) {
	c := newTestConsumer(&fakeReader{}, nil)
	if c.Lag() != 7 {
		t.Errorf("Lag = %d", c.Lag())
	}
}
