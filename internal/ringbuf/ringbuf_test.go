package ringbuf

import (
	"sync"
	"testing"
	"time"

	"indicator-enginev1/internal/model"
)

func tick(price float64) model.Tick {
	return model.Tick{Kind: model.KindLTP, Price: price}
}

func TestQueue_BasicPushPop(t *testing.T) {
	q := New(4)

	if !q.Push(tick(1)) || !q.Push(tick(2)) {
		t.Fatal("pushes into empty queue should succeed")
	}
	if q.Len() != 2 {
		t.Fatalf("expected len=2, got %d", q.Len())
	}

	got, ok := q.Pop()
	if !ok || got.Price != 1 {
		t.Fatalf("expected price=1, got %v ok=%v", got.Price, ok)
	}
	got, ok = q.Pop()
	if !ok || got.Price != 2 {
		t.Fatalf("expected price=2, got %v ok=%v", got.Price, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("pop from empty should return false")
	}
}

func TestQueue_DropNewestOnOverflow(t *testing.T) {
	q := New(2)

	q.Push(tick(1))
	q.Push(tick(2))

	if q.Push(tick(3)) {
		t.Fatal("push to full queue should return false")
	}
	if q.Overflow() != 1 {
		t.Fatalf("expected overflow=1, got %d", q.Overflow())
	}

	// The queued ticks are intact — only the newest was dropped.
	got, _ := q.Pop()
	if got.Price != 1 {
		t.Fatalf("head corrupted by overflow: %v", got.Price)
	}
}

func TestQueue_Wraparound(t *testing.T) {
	q := New(4)
	for round := 0; round < 5; round++ {
		for i := 0; i < 4; i++ {
			if !q.Push(tick(float64(round*10 + i))) {
				t.Fatalf("round %d push %d failed", round, i)
			}
		}
		for i := 0; i < 4; i++ {
			got, ok := q.Pop()
			if !ok || got.Price != float64(round*10+i) {
				t.Fatalf("round %d pop %d: got %v ok=%v", round, i, got.Price, ok)
			}
		}
	}
}

func TestQueue_SPSC_Concurrent(t *testing.T) {
	const count = 100_000
	q := New(1024)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < count; i++ {
			for !q.Push(tick(float64(i))) {
				// spin-wait (busy loop for test only)
			}
		}
	}()

	received := make([]float64, 0, count)
	go func() {
		defer wg.Done()
		for len(received) < count {
			if tk, ok := q.Pop(); ok {
				received = append(received, tk.Price)
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("SPSC test timed out")
	}

	for i, v := range received {
		if v != float64(i) {
			t.Fatalf("at index %d: expected %d, got %v", i, i, v)
		}
	}
}

func TestQueue_NextPow2(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {7, 8}, {8, 8}, {9, 16}, {1023, 1024},
	}
	for _, tc := range cases {
		if got := nextPow2(tc.in); got != tc.want {
			t.Errorf("nextPow2(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
