package backtest

import "testing"

// Invariant 4 (determinism): the same (baseSeed, iteration) pair must
// reproduce an identical draw sequence.
func TestRNGSameSeedSameIterationReproduces(t *testing.T) {
	r1 := newRNG(42, 7)
	r2 := newRNG(42, 7)
	for i := 0; i < 100; i++ {
		a, b := r1.Uint64(), r2.Uint64()
		if a != b {
			t.Fatalf("draw %d diverged between identically-seeded generators: %d vs %d", i, a, b)
		}
	}
}

func TestRNGDifferentIterationDiverges(t *testing.T) {
	r1 := newRNG(42, 0)
	r2 := newRNG(42, 1)
	identical := true
	for i := 0; i < 20; i++ {
		if r1.Uint64() != r2.Uint64() {
			identical = false
			break
		}
	}
	if identical {
		t.Error("expected different iteration indices to produce a different draw sequence")
	}
}

func TestRNGDifferentSeedDiverges(t *testing.T) {
	r1 := newRNG(1, 0)
	r2 := newRNG(2, 0)
	identical := true
	for i := 0; i < 20; i++ {
		if r1.Uint64() != r2.Uint64() {
			identical = false
			break
		}
	}
	if identical {
		t.Error("expected different base seeds to produce a different draw sequence")
	}
}

func TestRNGFloat64InUnitInterval(t *testing.T) {
	r := newRNG(123, 0)
	for i := 0; i < 1000; i++ {
		f := r.Float64()
		if f < 0 || f >= 1 {
			t.Fatalf("Float64 out of [0,1): %v", f)
		}
	}
}

func TestRNGIntnBounds(t *testing.T) {
	r := newRNG(5, 0)
	for i := 0; i < 1000; i++ {
		n := r.Intn(7)
		if n < 0 || n >= 7 {
			t.Fatalf("Intn(7) out of range: %d", n)
		}
	}
}

func TestRNGIntnNonPositiveReturnsZero(t *testing.T) {
	r := newRNG(5, 0)
	if got := r.Intn(0); got != 0 {
		t.Errorf("expected Intn(0) == 0, got %d", got)
	}
	if got := r.Intn(-3); got != 0 {
		t.Errorf("expected Intn(-3) == 0, got %d", got)
	}
}

func TestRNGShufflePreservesElementsAndPermutes(t *testing.T) {
	r := newRNG(99, 0)
	original := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	shuffled := append([]int(nil), original...)
	r.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	seen := make(map[int]bool, len(shuffled))
	for _, v := range shuffled {
		seen[v] = true
	}
	if len(seen) != len(original) {
		t.Fatalf("shuffle must be a permutation, got %v", shuffled)
	}

	same := true
	for i := range original {
		if original[i] != shuffled[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("expected the shuffle to reorder at least one element over 10 slots")
	}
}

func TestRNGShuffleSingleElementNoOp(t *testing.T) {
	r := newRNG(1, 0)
	swaps := 0
	r.Shuffle(1, func(i, j int) { swaps++ })
	if swaps != 0 {
		t.Errorf("expected no swaps for a single-element shuffle, got %d", swaps)
	}
}

func TestRNGGaussianIsFinite(t *testing.T) {
	r := newRNG(77, 0)
	var sum float64
	const n = 2000
	for i := 0; i < n; i++ {
		g := r.Gaussian()
		if g != g { // NaN check
			t.Fatalf("Gaussian produced NaN at draw %d", i)
		}
		sum += g
	}
	mean := sum / n
	// A standard-normal sample mean over 2000 draws should land well within
	// a generous band around 0; this is a sanity check, not a strict KS test.
	if mean < -0.3 || mean > 0.3 {
		t.Errorf("sample mean of Gaussian draws drifted too far from 0: %v", mean)
	}
}

func TestRNGDeterministicAcrossFreshInstances(t *testing.T) {
	seedSequence := func() []float64 {
		r := newRNG(2024, 3)
		out := make([]float64, 10)
		for i := range out {
			out[i] = r.Float64()
		}
		return out
	}
	first := seedSequence()
	second := seedSequence()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("draw %d not reproducible: %v vs %v", i, first[i], second[i])
		}
	}
}
