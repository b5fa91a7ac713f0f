package ring

import (
	"fmt"
	"sync"
	"testing"
)

func TestBuffer_Eviction(t *testing.T) {
	buf := New[string](3)

	// Fill the buffer.
	buf.Add("entry-1")
	buf.Add("entry-2")
	buf.Add("entry-3")

	if buf.Len() != 3 {
		t.Fatalf("expected len=3, got %d", buf.Len())
	}

	// Add one more; oldest (entry-1) should be evicted.
	buf.Add("entry-4")

	if buf.Len() != 3 {
		t.Fatalf("expected len=3 after eviction, got %d", buf.Len())
	}

	all := buf.List()
	expectedOrder := []string{"entry-2", "entry-3", "entry-4"}
	for i, expected := range expectedOrder {
		if all[i] != expected {
			t.Errorf("position %d: expected %q, got %q", i, expected, all[i])
		}
	}

	// Add two more; entry-2 and entry-3 should be evicted.
	buf.Add("entry-5")
	buf.Add("entry-6")

	all = buf.List()
	expectedOrder = []string{"entry-4", "entry-5", "entry-6"}
	for i, expected := range expectedOrder {
		if all[i] != expected {
			t.Errorf("position %d: expected %q, got %q", i, expected, all[i])
		}
	}
}

func TestBuffer_CapacityOne(t *testing.T) {
	buf := New[int](1)

	buf.Add(1)
	if buf.Len() != 1 {
		t.Fatalf("expected len=1, got %d", buf.Len())
	}

	buf.Add(2)
	if buf.Len() != 1 {
		t.Fatalf("expected len=1 after second add, got %d", buf.Len())
	}
	if got := buf.List()[0]; got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
}

func TestBuffer_InvalidCapacity(t *testing.T) {
	buf := New[int](0)
	if buf.Cap() != 1 {
		t.Errorf("expected capacity clamped to 1, got %d", buf.Cap())
	}

	buf = New[int](-5)
	if buf.Cap() != 1 {
		t.Errorf("expected capacity clamped to 1, got %d", buf.Cap())
	}
}

func TestBuffer_EmptyList(t *testing.T) {
	buf := New[float64](10)
	if got := buf.List(); got != nil {
		t.Errorf("expected nil for empty buffer, got %v", got)
	}
	if buf.Len() != 0 {
		t.Errorf("expected len=0, got %d", buf.Len())
	}
}

func TestBuffer_Reset(t *testing.T) {
	buf := New[int](4)
	for i := 0; i < 6; i++ {
		buf.Add(i)
	}
	if buf.Len() != 4 {
		t.Fatalf("expected len=4, got %d", buf.Len())
	}

	buf.Reset()
	if buf.Len() != 0 {
		t.Fatalf("expected len=0 after reset, got %d", buf.Len())
	}
	if buf.List() != nil {
		t.Errorf("expected nil list after reset")
	}

	// Buffer remains usable after reset.
	buf.Add(42)
	all := buf.List()
	if len(all) != 1 || all[0] != 42 {
		t.Errorf("expected [42] after reset+add, got %v", all)
	}
}

func TestBuffer_NeverExceedsCapacity(t *testing.T) {
	buf := New[int](50)
	for i := 0; i < 500; i++ {
		buf.Add(i)
		if buf.Len() > buf.Cap() {
			t.Fatalf("len %d exceeded cap %d at add %d", buf.Len(), buf.Cap(), i)
		}
	}

	all := buf.List()
	if len(all) != 50 {
		t.Fatalf("expected 50 entries, got %d", len(all))
	}
	// The most recent 50 values survive, oldest first.
	for i, v := range all {
		if v != 450+i {
			t.Errorf("position %d: expected %d, got %d", i, 450+i, v)
		}
	}
}

func TestBuffer_ConcurrentAccess(t *testing.T) {
	buf := New[string](100)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				buf.Add(fmt.Sprintf("g%d-%d", g, i))
				_ = buf.List()
				_ = buf.Len()
			}
		}(g)
	}
	wg.Wait()

	if buf.Len() != 100 {
		t.Errorf("expected full buffer, got len=%d", buf.Len())
	}
}
