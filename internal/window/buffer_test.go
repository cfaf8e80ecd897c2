package window

import "testing"

func TestBuffer_PushEvict(t *testing.T) {
	b := New(3)

	if _, ok := b.Push(1); ok {
		t.Fatal("push into non-full buffer must not evict")
	}
	b.Push(2)
	b.Push(3)

	if !b.Full() {
		t.Fatal("expected full after 3 pushes")
	}

	ev, ok := b.Push(4)
	if !ok || ev != 1 {
		t.Fatalf("expected eviction of 1, got %v ok=%v", ev, ok)
	}
	ev, ok = b.Push(5)
	if !ok || ev != 2 {
		t.Fatalf("expected eviction of 2, got %v ok=%v", ev, ok)
	}
}

func TestBuffer_LenNeverExceedsCap(t *testing.T) {
	b := New(4)
	for i := 0; i < 100; i++ {
		b.Push(float64(i))
		if b.Len() > b.Cap() {
			t.Fatalf("after %d pushes: len %d > cap %d", i+1, b.Len(), b.Cap())
		}
	}
	if b.Len() != 4 {
		t.Fatalf("expected len=4, got %d", b.Len())
	}
}

func TestBuffer_ValuesOrdered(t *testing.T) {
	b := New(4)

	// Partially filled: insertion order.
	b.Push(10)
	b.Push(20)
	got := b.Values()
	if len(got) != 2 || got[0] != 10 || got[1] != 20 {
		t.Fatalf("partial values wrong: %v", got)
	}

	// Wrapped: most recent `cap` values, oldest first.
	for _, v := range []float64{30, 40, 50, 60} {
		b.Push(v)
	}
	got = b.Values()
	want := []float64{30, 40, 50, 60}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("wrapped values: got %v, want %v", got, want)
		}
	}
}

func TestBuffer_CapacityPlusOneInsertions(t *testing.T) {
	b := New(5)
	for i := 1; i <= 6; i++ {
		b.Push(float64(i))
	}
	got := b.Values()
	want := []float64{2, 3, 4, 5, 6}
	if len(got) != 5 {
		t.Fatalf("expected 5 values, got %d", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestBuffer_Reset(t *testing.T) {
	b := New(3)
	b.Push(1)
	b.Push(2)
	b.Reset()
	if b.Len() != 0 || b.Full() {
		t.Fatalf("reset buffer should be empty, len=%d", b.Len())
	}
	if _, ok := b.Push(9); ok {
		t.Fatal("push after reset must not evict")
	}
}

func TestOHLC_ParallelLengths(t *testing.T) {
	o := NewOHLC(3)
	for i := 0; i < 7; i++ {
		o.PushQuote(float64(i+1), float64(i-1), float64(i), int64(i*10))
	}
	if o.Close.Len() != 3 || o.High.Len() != 3 || o.Low.Len() != 3 || o.Volume.Len() != 3 {
		t.Fatalf("parallel series lengths diverged: %d %d %d %d",
			o.Close.Len(), o.High.Len(), o.Low.Len(), o.Volume.Len())
	}
}
