// Package distribution implements host-side probability distributions
// over actions.
package distribution

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// tolerance is the allowed deviation from 1 of a probability vector's
// sum
const tolerance = 1e-6

// ErrOutOfSupport is returned when an outcome lies outside of a
// distribution's support
var ErrOutOfSupport = errors.New("outcome out of support")

// Categorical is a categorical distribution over the indices
// 0, 1, ..., Len() - 1.
type Categorical struct {
	dist  distuv.Categorical
	probs []float64
}

// NewCategorical returns a new categorical distribution with the given
// probabilities, which must be non-negative and sum to 1. Samples
// are drawn from src.
func NewCategorical(probs []float64, src rand.Source) (*Categorical, error) {
	if len(probs) == 0 {
		return nil, fmt.Errorf("newCategorical: no probabilities given")
	}
	for i, p := range probs {
		if p < 0 || math.IsNaN(p) {
			return nil, fmt.Errorf("newCategorical: illegal probability %v "+
				"at index %v", p, i)
		}
	}
	if sum := floats.Sum(probs); math.Abs(sum-1) > tolerance {
		return nil, fmt.Errorf("newCategorical: probabilities sum to %v "+
			"!= 1", sum)
	}

	p := make([]float64, len(probs))
	copy(p, probs)

	return &Categorical{
		dist:  distuv.NewCategorical(p, src),
		probs: p,
	}, nil
}

// NewCategoricalFromLogits returns a new categorical distribution with
// probabilities softmax(logits)
func NewCategoricalFromLogits(logits []float64,
	src rand.Source) (*Categorical, error) {
	return NewCategorical(Softmax(logits), src)
}

// Len returns the number of outcomes in the support
func (c *Categorical) Len() int {
	return len(c.probs)
}

// Probs returns a copy of the probabilities of each outcome
func (c *Categorical) Probs() []float64 {
	p := make([]float64, len(c.probs))
	copy(p, c.probs)
	return p
}

// Sample draws a single outcome
func (c *Categorical) Sample() int {
	return int(c.dist.Rand())
}

// LogProb returns the log probability of an outcome
func (c *Categorical) LogProb(outcome int) (float64, error) {
	if outcome < 0 || outcome >= len(c.probs) {
		return math.Inf(-1), fmt.Errorf("logProb: %w: %v not in [0, %v)",
			ErrOutOfSupport, outcome, len(c.probs))
	}
	return math.Log(c.probs[outcome]), nil
}

// Entropy returns the entropy of the distribution in nats
func (c *Categorical) Entropy() float64 {
	return c.dist.Entropy()
}

// Softmax returns the softmax of logits
func Softmax(logits []float64) []float64 {
	probs := LogSoftmax(logits)
	for i := range probs {
		probs[i] = math.Exp(probs[i])
	}
	return probs
}

// LogSoftmax returns the log softmax of logits, computed as
// logits - logsumexp(logits)
func LogSoftmax(logits []float64) []float64 {
	lse := floats.LogSumExp(logits)

	logProbs := make([]float64, len(logits))
	copy(logProbs, logits)
	floats.AddConst(-lse, logProbs)
	return logProbs
}
