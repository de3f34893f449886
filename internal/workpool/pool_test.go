package workpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestMapPreservesOrder(t *testing.T) {
	items := []int{5, 1, 4, 2, 3}
	got := Map(context.Background(), 3, items, func(_ context.Context, n int) int {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * 10
	})
	want := []int{50, 10, 40, 20, 30}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestMapRespectsLimit(t *testing.T) {
	var active, peak int64
	items := make([]int, 25)
	Map(context.Background(), 4, items, func(_ context.Context, _ int) bool {
		n := atomic.AddInt64(&active, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&active, -1)
		return true
	})
	if peak > 4 {
		t.Fatalf("expected at most 4 concurrent calls, saw %d", peak)
	}
	if peak < 2 {
		t.Fatalf("expected work to overlap, saw peak %d", peak)
	}
}
