package fec

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"
)

func roundTrip(t *testing.T, c Codec, k, nparity, vecSize int, erasureLocs []int) {
	t.Helper()
	if err := c.Init(k, nparity, vecSize); err != nil {
		t.Fatalf("Init: %v", err)
	}
	total := k + nparity
	vectors := make([][]byte, total)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < k; i++ {
		v := make([]byte, vecSize)
		rng.Read(v)
		vectors[i] = v
	}
	parity := make([][]byte, nparity)
	for j := range parity {
		parity[j] = make([]byte, vecSize)
	}
	for i := 0; i < k; i++ {
		if err := c.Encode(i, vectors[i], parity); err != nil {
			t.Fatalf("Encode(%d): %v", i, err)
		}
	}
	for j := range parity {
		vectors[k+j] = parity[j]
	}

	original := make([][]byte, total)
	for i := range vectors {
		original[i] = append([]byte(nil), vectors[i]...)
	}

	work := make([][]byte, total)
	copy(work, vectors)
	for _, loc := range erasureLocs {
		work[loc] = nil
	}

	if err := c.Decode(work, k, len(erasureLocs), erasureLocs); err != nil {
		t.Fatalf("Decode: %v", err)
	}

	for _, loc := range erasureLocs {
		if loc >= k {
			continue
		}
		if !bytes.Equal(work[loc], original[loc]) {
			t.Fatalf("symbol %d not recovered correctly: got %x want %x", loc, work[loc], original[loc])
		}
	}
}

func TestRS8RoundTrip(t *testing.T) {
	roundTrip(t, &RS8{}, 8, 4, 32, []int{1, 3, 5, 7})
}

func TestRS8NoErasures(t *testing.T) {
	roundTrip(t, &RS8{}, 6, 2, 16, nil)
}

func TestRS16RoundTrip(t *testing.T) {
	roundTrip(t, &RS16{}, 10, 3, 16, []int{0, 4, 9})
}

func TestMDPRoundTrip(t *testing.T) {
	roundTrip(t, &MDP{}, 8, 4, 24, []int{2, 6})
}

func TestNewDispatches(t *testing.T) {
	cases := []struct {
		fecID, m int
		wantType string
	}{
		{FecIDRS8, 8, "*fec.RS8"},
		{FecIDRS16, 16, "*fec.RS16"},
		{FecIDMDP, 0, "*fec.MDP"},
	}
	for _, c := range cases {
		codec, err := New(c.fecID, c.m)
		if err != nil {
			t.Fatalf("New(%d,%d): %v", c.fecID, c.m, err)
		}
		if codec == nil {
			t.Fatal("expected non-nil codec")
		}
		if got := fmt.Sprintf("%T", codec); got != c.wantType {
			t.Fatalf("New(%d,%d) returned %s, want %s", c.fecID, c.m, got, c.wantType)
		}
	}
	if _, err := New(99, 1); err == nil {
		t.Fatal("expected error for unknown scheme")
	}
}

func TestDecodeRejectsBadErasures(t *testing.T) {
	c := &RS8{}
	if err := c.Init(4, 2, 8); err != nil {
		t.Fatal(err)
	}
	vectors := make([][]byte, 6)
	for i := range vectors {
		vectors[i] = make([]byte, 8)
	}
	// erasureCount exceeds nparity
	if err := c.Decode(vectors, 4, 3, []int{0, 1, 2}); err == nil {
		t.Fatal("expected error for excessive erasure count")
	}
	// not ascending
	if err := c.Decode(vectors, 4, 2, []int{2, 1}); err == nil {
		t.Fatal("expected error for non-ascending erasureLocs")
	}
}
