package ring

import "testing"

func TestPushPopOrder(t *testing.T) {
	b := New[int](2)
	b.Push(1)
	b.Push(2)
	b.Push(3)
	for i := 1; i <= 3; i++ {
		v, ok := b.Pop()
		if !ok || v != i {
			t.Fatalf("expected %d, got %d (ok=%v)", i, v, ok)
		}
	}
	if !b.Empty() {
		t.Fatal("expected empty after draining")
	}
}

func TestGrowPreservesOrder(t *testing.T) {
	b := New[int](1)
	for i := 0; i < 20; i++ {
		b.Push(i)
	}
	if b.Len() != 20 {
		t.Fatalf("expected len 20, got %d", b.Len())
	}
	for i := 0; i < 20; i++ {
		v, ok := b.Pop()
		if !ok || v != i {
			t.Fatalf("expected %d at position %d, got %d", i, i, v)
		}
	}
}

func TestDiscard(t *testing.T) {
	b := New[int](4)
	for i := 0; i < 4; i++ {
		b.Push(i)
	}
	if n := b.Discard(2); n != 2 {
		t.Fatalf("expected to discard 2, discarded %d", n)
	}
	v, ok := b.Pop()
	if !ok || v != 2 {
		t.Fatalf("expected head 2 after discard, got %d", v)
	}
}

func TestPeekDoesNotRemove(t *testing.T) {
	b := New[int](2)
	b.Push(7)
	p, ok := b.Peek()
	if !ok || *p != 7 {
		t.Fatalf("expected peek 7, got %v", p)
	}
	if b.Len() != 1 {
		t.Fatal("peek must not remove the element")
	}
}
