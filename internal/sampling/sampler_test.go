package sampling

import (
	"math"
	"testing"
)

func TestGreedyPicksHighest(t *testing.T) {
	s := New(Config{Greedy: true})
	got, err := s.Sample([]float32{0.1, 3.5, 2.2, -1})
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected token 1, got %d", got)
	}
}

func TestGreedyTieBreaksLowestID(t *testing.T) {
	s := New(Config{Temperature: 0})
	logits := []float32{1, 5, 5, 5, 0}
	for i := 0; i < 10; i++ {
		got, err := s.Sample(logits)
		if err != nil {
			t.Fatalf("sample: %v", err)
		}
		if got != 1 {
			t.Fatalf("expected lowest tied id 1, got %d", got)
		}
	}
}

func TestGreedySkipsNonFinite(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	s := New(Config{Greedy: true})
	got, err := s.Sample([]float32{nan, inf, 0.5, 0.4})
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if got != 2 {
		t.Fatalf("expected token 2, got %d", got)
	}
}

func TestAllNonFiniteFails(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(-1))
	for _, cfg := range []Config{{Greedy: true}, {Temperature: 0.7, TopK: 4, TopP: 0.9}} {
		s := New(cfg)
		if _, err := s.Sample([]float32{nan, inf, nan}); err != ErrDegenerateLogits {
			t.Fatalf("cfg %+v: expected ErrDegenerateLogits, got %v", cfg, err)
		}
	}
}

func TestStochasticDeterministicWithSeed(t *testing.T) {
	logits := []float32{1.2, 0.8, 3.1, 2.4, 0.1, 1.9}
	a := New(Config{Temperature: 0.8, TopK: 4, TopP: 0.95, Seed: 7})
	b := New(Config{Temperature: 0.8, TopK: 4, TopP: 0.95, Seed: 7})
	for i := 0; i < 20; i++ {
		x, err := a.Sample(logits)
		if err != nil {
			t.Fatalf("sample a: %v", err)
		}
		y, err := b.Sample(logits)
		if err != nil {
			t.Fatalf("sample b: %v", err)
		}
		if x != y {
			t.Fatalf("draw %d: %d != %d for identical seeds", i, x, y)
		}
	}
}

func TestStochasticStaysInTopK(t *testing.T) {
	// Token 2 dominates; with TopK=2 only ids 2 and 3 are candidates.
	logits := []float32{0.0, 0.1, 9.0, 5.0, 0.2}
	s := New(Config{Temperature: 1, TopK: 2, TopP: 1, Seed: 3})
	for i := 0; i < 50; i++ {
		got, err := s.Sample(logits)
		if err != nil {
			t.Fatalf("sample: %v", err)
		}
		if got != 2 && got != 3 {
			t.Fatalf("draw %d: token %d outside top-2", i, got)
		}
	}
}

func TestNucleusCollapsesToArgmax(t *testing.T) {
	// A tiny TopP keeps only the single most likely token.
	logits := []float32{0.5, 4.0, 0.1, 1.0}
	s := New(Config{Temperature: 1, TopK: 4, TopP: 0.01, Seed: 11})
	for i := 0; i < 20; i++ {
		got, err := s.Sample(logits)
		if err != nil {
			t.Fatalf("sample: %v", err)
		}
		if got != 1 {
			t.Fatalf("draw %d: expected 1, got %d", i, got)
		}
	}
}

func TestEmptyLogits(t *testing.T) {
	s := New(Config{Greedy: true})
	if _, err := s.Sample(nil); err != ErrDegenerateLogits {
		t.Fatalf("expected ErrDegenerateLogits, got %v", err)
	}
}

func TestGreedySelectionFlags(t *testing.T) {
	cases := []struct {
		cfg    Config
		greedy bool
	}{
		{Config{Greedy: true, Temperature: 0.7}, true},
		{Config{Temperature: 0}, true},
		{Config{Temperature: -1}, true},
		{Config{Temperature: 0.7}, false},
	}
	for _, c := range cases {
		if got := New(c.cfg).Greedy(); got != c.greedy {
			t.Fatalf("cfg %+v: Greedy()=%v, want %v", c.cfg, got, c.greedy)
		}
	}
}
