package wire

import "testing"

func TestQuantizeRttRoundTrip(t *testing.T) {
	for q := 0; q < 256; q++ {
		got := QuantizeRtt(UnquantizeRtt(uint8(q)))
		if int(got) != q {
			t.Fatalf("q=%d: QuantizeRtt(UnquantizeRtt(q))=%d", q, got)
		}
	}
}

func TestUnquantizeRttRoundsUp(t *testing.T) {
	samples := []float64{1e-6, 0.0005, 0.1, 0.5, 1.0, 10.0, 999.0}
	for _, x := range samples {
		q := QuantizeRtt(x)
		if UnquantizeRtt(q) < x {
			t.Fatalf("x=%v q=%d unquantized=%v: expected round up", x, q, UnquantizeRtt(q))
		}
	}
}

func TestQuantizeRateRoundTrip(t *testing.T) {
	for _, q := range []uint16{0, 1, 100, 1000, 32768, 65535} {
		got := QuantizeRate(UnquantizeRate(q))
		if got != q {
			t.Fatalf("q=%d: QuantizeRate(UnquantizeRate(q))=%d", q, got)
		}
	}
}

func TestQuantizeGroupSizeMonotonic(t *testing.T) {
	prev := UnquantizeGroupSize(0)
	for q := 1; q < 256; q++ {
		v := UnquantizeGroupSize(uint8(q))
		if v < prev {
			t.Fatalf("group size table not monotonic at q=%d", q)
		}
		prev = v
	}
}

func TestLossQuantizeBounds(t *testing.T) {
	if QuantizeLoss32(0) != 0 {
		t.Fatal("expected 0 loss to quantize to 0")
	}
	if UnquantizeLoss32(QuantizeLoss32(0.5)) < 0.49 || UnquantizeLoss32(QuantizeLoss32(0.5)) > 0.51 {
		t.Fatal("expected ~0.5 loss to round-trip approximately")
	}
	if QuantizeLoss16(1.5) != 65535 {
		t.Fatal("expected loss > 1 to clamp to max")
	}
}
