package bitmask

import "testing"

func TestSetTestUnset(t *testing.T) {
	m := New(128, 10)
	if m.Test(10) {
		t.Fatal("expected unset")
	}
	m.Set(10)
	m.Set(15)
	if !m.Test(10) || !m.Test(15) {
		t.Fatal("expected set")
	}
	m.Unset(10)
	if m.Test(10) {
		t.Fatal("expected unset after Unset")
	}
}

func TestSlidingWindow(t *testing.T) {
	m := New(64, 0)
	m.Set(0)
	m.Set(1)
	// push the window far forward; bit 0 should fall out
	m.Set(1000)
	if m.Test(0) {
		t.Fatal("expected bit 0 to be evicted by window slide")
	}
	if !m.Test(1000) {
		t.Fatal("expected bit 1000 to be set")
	}
}

func TestFirstNextSet(t *testing.T) {
	m := New(128, 0)
	m.Set(5)
	m.Set(70)
	m.Set(71)
	id, ok := m.FirstSet(0)
	if !ok || id != 5 {
		t.Fatalf("FirstSet = %d,%v want 5,true", id, ok)
	}
	id, ok = m.NextSet(5)
	if !ok || id != 70 {
		t.Fatalf("NextSet(5) = %d,%v want 70,true", id, ok)
	}
	id, ok = m.NextSet(70)
	if !ok || id != 71 {
		t.Fatalf("NextSet(70) = %d,%v want 71,true", id, ok)
	}
	_, ok = m.NextSet(71)
	if ok {
		t.Fatal("expected no more set bits")
	}
}

func TestSetBitsUnsetBits(t *testing.T) {
	m := New(128, 0)
	m.SetBits(3, 5) // 3,4,5,6,7
	for i := uint32(3); i < 8; i++ {
		if !m.Test(i) {
			t.Fatalf("expected %d set", i)
		}
	}
	m.UnsetBits(4, 2) // 4,5
	if m.Test(4) || m.Test(5) {
		t.Fatal("expected 4,5 unset")
	}
	if !m.Test(3) || !m.Test(6) || !m.Test(7) {
		t.Fatal("expected 3,6,7 still set")
	}
}

func TestXorInto(t *testing.T) {
	a := New(64, 0)
	b := New(64, 0)
	a.Set(1)
	a.Set(2)
	b.Set(2)
	b.Set(3)
	a.XorInto(b)
	// b should now have: 2 toggled off (was in both), 1 and 3 on
	if b.Test(2) {
		t.Fatal("expected bit 2 toggled off")
	}
	if !b.Test(1) || !b.Test(3) {
		t.Fatal("expected bits 1 and 3 set")
	}
}

func TestIsZeroClear(t *testing.T) {
	m := New(64, 0)
	if !m.IsZero() {
		t.Fatal("expected zero")
	}
	m.Set(4)
	if m.IsZero() {
		t.Fatal("expected non-zero")
	}
	m.Clear()
	if !m.IsZero() {
		t.Fatal("expected zero after Clear")
	}
}

func TestDeltaHalfSpace(t *testing.T) {
	if Delta(0xFFFFFFFF, 0) <= 0 {
		t.Fatal("expected wraparound increment to be positive")
	}
	if Delta(0, 0xFFFFFFFF) >= 0 {
		t.Fatal("expected wraparound decrement to be negative")
	}
}
