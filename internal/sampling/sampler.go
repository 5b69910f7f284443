// Package sampling selects one token id from a vocabulary-sized logits
// vector. Two policies exist behind one type: deterministic greedy argmax and
// stochastic temperature/top-k/top-p sampling. The policy is fixed per
// Sampler, chosen from the configuration at construction time.
package sampling

import (
	"errors"
	"math"
	"math/rand"
)

// ErrDegenerateLogits is returned when every logit is NaN or infinite and no
// token can be meaningfully selected.
var ErrDegenerateLogits = errors.New("sampling: no finite logits")

// Config configures a Sampler. Temperature <= 0 or Greedy selects the greedy
// policy; the remaining fields only affect the stochastic policy.
type Config struct {
	Temperature float32
	TopK        int
	TopP        float32
	Seed        int64
	Greedy      bool
}

// Sampler draws token ids from logits vectors. Not safe for concurrent use;
// each generation session owns one Sampler.
type Sampler struct {
	cfg    Config
	greedy bool
	rng    *rand.Rand

	topIdx []int
	topVal []float32
	prob   []float64
}

// New returns a Sampler for the given configuration, applying the usual
// defaults for unset stochastic parameters.
func New(cfg Config) *Sampler {
	greedy := cfg.Greedy || cfg.Temperature <= 0
	if cfg.Temperature <= 0 {
		cfg.Temperature = 1
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 40
	}
	if cfg.TopP <= 0 || cfg.TopP > 1 {
		cfg.TopP = 1
	}
	return &Sampler{
		cfg:    cfg,
		greedy: greedy,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Greedy reports whether the deterministic policy is active.
func (s *Sampler) Greedy() bool { return s.greedy }

// Sample selects one token id from logits. Non-finite entries are never
// selected unless every entry is non-finite, in which case
// ErrDegenerateLogits is returned.
func (s *Sampler) Sample(logits []float32) (int, error) {
	if len(logits) == 0 {
		return 0, ErrDegenerateLogits
	}
	if s.greedy {
		return argmax(logits)
	}

	invTemp := 1 / s.cfg.Temperature
	k := s.cfg.TopK
	if k > len(logits) {
		k = len(logits)
	}
	topIdx, topVal := s.topK(logits, k, invTemp)
	if len(topIdx) == 0 {
		return 0, ErrDegenerateLogits
	}

	// Softmax over the shortlist, subtracting the max for stability. The
	// shortlist is sorted descending, so topVal[0] is the max.
	if cap(s.prob) < len(topVal) {
		s.prob = make([]float64, len(topVal))
	}
	prob := s.prob[:len(topVal)]
	var sum float64
	for i, v := range topVal {
		e := math.Exp(float64(v - topVal[0]))
		prob[i] = e
		sum += e
	}
	if sum == 0 {
		return topIdx[0], nil
	}
	for i := range prob {
		prob[i] /= sum
	}

	// Nucleus cut: keep the smallest prefix whose cumulative probability
	// reaches TopP.
	cut := len(prob)
	if s.cfg.TopP < 1 {
		var c float64
		for i := range prob {
			c += prob[i]
			if float32(c) >= s.cfg.TopP {
				cut = i + 1
				break
			}
		}
	}

	r := s.rng.Float64()
	var c float64
	for i := 0; i < cut; i++ {
		c += prob[i]
		if r <= c {
			return topIdx[i], nil
		}
	}
	return topIdx[cut-1], nil
}

// argmax returns the index of the highest finite score, ties broken by the
// lowest index.
func argmax(logits []float32) (int, error) {
	best := -1
	var bestV float32
	for i, v := range logits {
		if !finite(v) {
			continue
		}
		if best < 0 || v > bestV {
			best = i
			bestV = v
		}
	}
	if best < 0 {
		return 0, ErrDegenerateLogits
	}
	return best, nil
}

// topK collects the indices and temperature-scaled values of the k largest
// finite logits, ordered descending. O(V*K) insertion, fine for small K.
func (s *Sampler) topK(logits []float32, k int, invTemp float32) ([]int, []float32) {
	if cap(s.topIdx) < k+1 {
		s.topIdx = make([]int, 0, k+1)
		s.topVal = make([]float32, 0, k+1)
	}
	topIdx := s.topIdx[:0]
	topVal := s.topVal[:0]

	for i, l := range logits {
		if !finite(l) {
			continue
		}
		v := l * invTemp
		pos := len(topVal)
		for pos > 0 && topVal[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}
		topIdx = append(topIdx, 0)
		topVal = append(topVal, 0)
		copy(topIdx[pos+1:], topIdx[pos:])
		copy(topVal[pos+1:], topVal[pos:])
		topIdx[pos] = i
		topVal[pos] = v
		if len(topVal) > k {
			topIdx = topIdx[:k]
			topVal = topVal[:k]
		}
	}
	s.topIdx = topIdx
	s.topVal = topVal
	return topIdx, topVal
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
