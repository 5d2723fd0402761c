package nova

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := newEventQueue(0)
	for i := 0; i < 50; i++ {
		q.push([]byte(fmt.Sprintf("ev-%d", i)), false)
	}
	for i := 0; i < 50; i++ {
		got, ok := q.pop()
		if !ok {
			t.Fatalf("pop %d: queue empty", i)
		}
		if want := fmt.Sprintf("ev-%d", i); string(got) != want {
			t.Fatalf("pop %d = %q, want %q", i, got, want)
		}
	}
	if _, ok := q.pop(); ok {
		t.Fatal("queue not empty after draining")
	}
}

func TestQueueBoundedAudioKeepsNewest(t *testing.T) {
	const k = 10
	q := newEventQueue(k)
	for i := 0; i < k+5; i++ {
		q.push([]byte(fmt.Sprintf("chunk-%d", i)), true)
	}
	if got := q.len(); got != k {
		t.Fatalf("len = %d, want %d", got, k)
	}
	// The 5 oldest chunks were evicted; chunk-5..chunk-14 remain in order.
	for i := 5; i < k+5; i++ {
		got, ok := q.pop()
		if !ok {
			t.Fatalf("pop: queue empty at %d", i)
		}
		if want := fmt.Sprintf("chunk-%d", i); string(got) != want {
			t.Fatalf("pop = %q, want %q", got, want)
		}
	}
}

func TestQueueControlEventsNeverEvicted(t *testing.T) {
	q := newEventQueue(2)
	q.push([]byte("control-a"), false)
	q.push([]byte("chunk-0"), true)
	q.push([]byte("chunk-1"), true)
	if dropped := q.push([]byte("chunk-2"), true); !dropped {
		t.Fatal("expected eviction at capacity")
	}
	want := []string{"control-a", "chunk-1", "chunk-2"}
	for _, w := range want {
		got, ok := q.pop()
		if !ok || string(got) != w {
			t.Fatalf("pop = %q (%v), want %q", got, ok, w)
		}
	}
}

func TestQueueDrainsThenEOFAfterClose(t *testing.T) {
	q := newEventQueue(0)
	q.push([]byte("a"), false)
	q.push([]byte("b"), false)
	q.close()
	if q.push([]byte("late"), false) {
		t.Fatal("push after close reported a drop")
	}

	ctx := context.Background()
	for _, want := range []string{"a", "b"} {
		got, err := q.next(ctx)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if string(got) != want {
			t.Fatalf("next = %q, want %q", got, want)
		}
	}
	if _, err := q.next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("next after drain = %v, want io.EOF", err)
	}
	// Late push must not have landed.
	if got := q.len(); got != 0 {
		t.Fatalf("len after close = %d, want 0", got)
	}
}

func TestQueueNextBlocksUntilPush(t *testing.T) {
	q := newEventQueue(0)
	done := make(chan []byte, 1)
	go func() {
		b, err := q.next(context.Background())
		if err != nil {
			done <- nil
			return
		}
		done <- b
	}()

	time.Sleep(10 * time.Millisecond)
	q.push([]byte("woken"), false)

	select {
	case got := <-done:
		if string(got) != "woken" {
			t.Fatalf("next = %q, want %q", got, "woken")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("next never woke up")
	}
}

func TestQueueNextHonorsContext(t *testing.T) {
	q := newEventQueue(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("next = %v, want context.Canceled", err)
	}
}
