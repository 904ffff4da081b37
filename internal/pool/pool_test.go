package pool

import "testing"

func TestPoolAscending(t *testing.T) {
	var pool FidPool

	for i := 0; i < 100; i++ {
		if n, ok := pool.Get(); !ok {
			t.Error("pool marked full prematurely")
			break
		} else if uint32(i) != n {
			t.Fatal("expected pool.Get to return ids in ascending order")
		}
	}

	for i := 0; i < 100; i++ {
		pool.Free(uint32(i))
	}

	if n, ok := pool.Get(); !ok {
		t.Error("pool full after freeing all ids")
	} else if n != 0 {
		t.Errorf("pool returned non-zero %d on empty pool %#v", n, &pool)
	}
}

func TestPoolReuse(t *testing.T) {
	var pool TagPool

	for i := 0; i < 10; i++ {
		pool.Get()
	}

	// Freed ids must be reusable even while later ids
	// are still held.
	pool.Free(3)
	pool.Free(7)

	if n, ok := pool.Get(); !ok || n != 3 {
		t.Errorf("got %d (ok=%v), wanted lowest freed id 3", n, ok)
	}
	if n, ok := pool.Get(); !ok || n != 7 {
		t.Errorf("got %d (ok=%v), wanted next freed id 7", n, ok)
	}
	if n, ok := pool.Get(); !ok || n != 10 {
		t.Errorf("got %d (ok=%v), wanted counter to resume at 10", n, ok)
	}
}

func TestTagPoolCeiling(t *testing.T) {
	var pool TagPool

	for i := 0; i < TagPoolCeiling; i++ {
		tag, ok := pool.Get()
		if !ok {
			t.Fatalf("pool full after %d ids", i)
		}
		if tag == 0xFFFF {
			t.Fatal("pool produced the reserved NOTAG value")
		}
	}
	if _, ok := pool.Get(); ok {
		t.Error("expected exhausted pool to report full")
	}

	// 0xFFFE was the last tag produced; 0xFFFF is reserved.
	// Once earlier tags are released, allocation wraps around
	// to the smallest free tag.
	pool.Free(0x0000)
	if tag, ok := pool.Get(); !ok || tag != 0x0000 {
		t.Errorf("got %#x (ok=%v), wanted wrap-around to 0x0000", tag, ok)
	}
}

func TestPoolFreeLIFO(t *testing.T) {
	var pool FidPool

	// Free in LIFO order, the optimal pattern for the
	// contiguous-suffix fast path.
	var held []uint32
	for i := 0; i < 100; i++ {
		n, ok := pool.Get()
		if !ok {
			t.Fatal("pool marked full prematurely")
		}
		held = append(held, n)
	}
	for i := len(held) - 1; i >= 0; i-- {
		pool.Free(held[i])
	}
	if n, ok := pool.Get(); !ok {
		t.Error("pool full after freeing all ids")
	} else if n != 0 {
		t.Errorf("pool returned non-zero %d on empty pool %#v", n, &pool)
	}
}
