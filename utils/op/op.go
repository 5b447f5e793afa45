// Package op provides extended Gorgonia graph operations.
//
// Adapted from aunum/gold on GitHub
package op

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// LogSumExp calculates the log of the summation of exponentials of
// all logits along axis 1 of a matrix. The maximum logit of each row
// is subtracted before exponentiating so that large logits do not
// overflow.
//
// Use this in place of Gorgonia's LogSumExp, which has the final sum
// and log interchanged, which is incorrect.
func LogSumExp(logits *G.Node) (*G.Node, error) {
	if !logits.IsMatrix() {
		return nil, fmt.Errorf("logSumExp: logits must be a matrix, "+
			"have shape %v", logits.Shape())
	}
	rows := logits.Shape()[0]

	max, err := G.Max(logits, 1)
	if err != nil {
		return nil, fmt.Errorf("logSumExp: could not compute max: %v", err)
	}

	exponent, err := G.BroadcastSub(logits, column(max, rows), nil,
		[]byte{1})
	if err != nil {
		return nil, fmt.Errorf("logSumExp: could not shift logits: %v", err)
	}
	exponent = G.Must(G.Exp(exponent))

	sum := G.Must(G.Sum(exponent, 1))
	log := G.Must(G.Log(sum))

	return G.Add(max, log)
}

// LogSoftmax returns the log of the softmax of the logits along axis
// 1, computed as logits - logsumexp(logits). The returned node has the
// same shape as logits.
func LogSoftmax(logits *G.Node) (*G.Node, error) {
	lse, err := LogSumExp(logits)
	if err != nil {
		return nil, fmt.Errorf("logSoftmax: %v", err)
	}

	return G.BroadcastSub(logits, column(lse, logits.Shape()[0]), nil,
		[]byte{1})
}

// Select returns, for each row i, the value in column j of values
// where mask[i, j] == 1. The mask should be one-hot along axis 1.
func Select(values, mask *G.Node) (*G.Node, error) {
	if !values.Shape().Eq(mask.Shape()) {
		return nil, fmt.Errorf("select: shape mismatch \n\twant(%v)"+
			"\n\thave(%v)", values.Shape(), mask.Shape())
	}

	selected, err := G.HadamardProd(values, mask)
	if err != nil {
		return nil, fmt.Errorf("select: %v", err)
	}
	return G.Sum(selected, 1)
}

// CategoricalEntropy returns the entropy -Σ p log(p) of each row of
// a matrix of log probabilities.
func CategoricalEntropy(logProbs *G.Node) (*G.Node, error) {
	probs, err := G.Exp(logProbs)
	if err != nil {
		return nil, fmt.Errorf("categoricalEntropy: %v", err)
	}

	plogp := G.Must(G.HadamardProd(probs, logProbs))
	sum := G.Must(G.Sum(plogp, 1))

	return G.Neg(sum)
}

// column reshapes a vector of length rows into a rows x 1 matrix so
// that it can be broadcast along axis 1.
func column(v *G.Node, rows int) *G.Node {
	return G.Must(G.Reshape(v, tensor.Shape{rows, 1}))
}
