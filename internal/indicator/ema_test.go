package indicator

import (
	"math"
	"testing"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func TestEMA_Correctness_Period3(t *testing.T) {
	// α = 2/(3+1) = 0.5
	// Seed after 3 inputs: (10+11+12)/3 = 11
	// 13 → 11 + 0.5*(13-11) = 12
	// 14 → 12 + 0.5*(14-12) = 13
	// 10 → 13 + 0.5*(10-13) = 11.5
	ema := NewEMA(3)
	inputs := []float64{10, 11, 12, 13, 14, 10}
	expected := []float64{0, 0, 11, 12, 13, 11.5}
	ready := []bool{false, false, true, true, true, true}

	for i, x := range inputs {
		ema.Update(x)
		if ema.Ready() != ready[i] {
			t.Errorf("input %d: Ready()=%v, want %v", i, ema.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "EMA(3)", ema.Value(), expected[i], 1e-12)
		}
	}
}

func TestEMA_FlatInputStaysExact(t *testing.T) {
	ema := NewEMA(12)
	for i := 0; i < 500; i++ {
		ema.Update(100.37)
	}
	if ema.Value() != 100.37 {
		t.Errorf("expected exact 100.37 on a flat input, got %.17f", ema.Value())
	}
}

func TestEMA_MatchesTextbookRecurrence(t *testing.T) {
	period := 5
	alpha := 2.0 / float64(period+1)
	inputs := []float64{22.27, 22.19, 22.08, 22.17, 22.18, 22.13, 22.23, 22.43, 22.24, 22.29, 22.15, 22.39}

	ema := NewEMA(period)
	var want float64
	for i, x := range inputs {
		ema.Update(x)
		switch {
		case i == period-1:
			sum := 0.0
			for _, v := range inputs[:period] {
				sum += v
			}
			want = sum / float64(period)
		case i >= period:
			want = alpha*x + (1-alpha)*want
		default:
			continue
		}
		assertClose(t, "EMA(5)", ema.Value(), want, 1e-9)
	}
}

func TestEMA_Reset(t *testing.T) {
	ema := NewEMA(2)
	ema.Update(1)
	ema.Update(3)
	if !ema.Ready() {
		t.Fatal("expected Ready after 2 inputs")
	}
	ema.Reset()
	if ema.Ready() || ema.Value() != 0 {
		t.Errorf("expected cleared state, got ready=%v value=%f", ema.Ready(), ema.Value())
	}
	if ema.Name() != "EMA_2" {
		t.Errorf("expected name EMA_2, got %s", ema.Name())
	}
}

func TestEMASeries(t *testing.T) {
	out, ready := EMASeries([]float64{2, 4, 6, 8}, 2)
	// α = 2/3. seed 3, then 3 + 2/3*(6-3) = 5, then 5 + 2/3*(8-5) = 7
	wantReady := []bool{false, true, true, true}
	want := []float64{0, 3, 5, 7}
	for i := range out {
		if ready[i] != wantReady[i] {
			t.Errorf("index %d: ready=%v, want %v", i, ready[i], wantReady[i])
		}
		assertClose(t, "EMASeries", out[i], want[i], 1e-12)
	}

	out, ready = EMASeries([]float64{1, 2}, 0)
	if ready[0] || ready[1] || out[1] != 0 {
		t.Error("expected period 0 to never be ready")
	}
}
