// Package network implements feed forward neural networks whose
// parameters are stored outside of any Gorgonia computational graph,
// so that one network can be added to several graphs at once.
package network

import (
	"fmt"

	"github.com/samuelfneumann/goa3c/initwfn"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// NeuralNet is a feed forward network made up of Linear layers
type NeuralNet interface {
	Features() int
	Outputs() int
	Layers() []*Linear

	// Fwd adds the forward pass to the graph of the input node
	Fwd(*G.Node) (*G.Node, G.Nodes, error)

	// Predict runs the forward pass without computing gradients
	Predict([]float64, int) (*mat.Dense, error)
}

// InitLayers initializes the weights and biases of each layer
func InitLayers(layers []*Linear, weights, bias *initwfn.InitWFn) error {
	if weights == nil || bias == nil {
		return fmt.Errorf("initLayers: initializers must be non-nil")
	}
	for _, l := range layers {
		if err := l.Init(weights, bias); err != nil {
			return fmt.Errorf("initLayers: %v", err)
		}
	}
	return nil
}

// Set sets the parameters of dest to be equal to those of source
func Set(dest, source NeuralNet) error {
	if err := compatible(dest, source); err != nil {
		return fmt.Errorf("set: %v", err)
	}

	sourceLayers := source.Layers()
	for i, l := range dest.Layers() {
		copy(params(l.Weights()), params(sourceLayers[i].Weights()))
		copy(params(l.Bias()), params(sourceLayers[i].Bias()))
	}
	return nil
}

// Polyak sets the parameters of dest to be a polyak average between
// its existing parameters and those of source:
//
//	dest <- (1 - tau) dest + tau source
func Polyak(dest, source NeuralNet, tau float64) error {
	if tau < 0 || tau > 1 {
		return fmt.Errorf("polyak: tau must be in [0, 1], have(%v)", tau)
	}
	if err := compatible(dest, source); err != nil {
		return fmt.Errorf("polyak: %v", err)
	}

	sourceLayers := source.Layers()
	for i, l := range dest.Layers() {
		average(params(l.Weights()), params(sourceLayers[i].Weights()), tau)
		average(params(l.Bias()), params(sourceLayers[i].Bias()), tau)
	}
	return nil
}

// Weights returns copies of the parameters of a network, keyed by
// <layer name>/weights and <layer name>/bias
func Weights(net NeuralNet) map[string]*mat.Dense {
	weights := make(map[string]*mat.Dense, 2*len(net.Layers()))
	for _, l := range net.Layers() {
		w := make([]float64, l.In()*l.Out())
		copy(w, params(l.Weights()))
		weights[l.Name()+"/weights"] = mat.NewDense(l.In(), l.Out(), w)

		b := make([]float64, l.Out())
		copy(b, params(l.Bias()))
		weights[l.Name()+"/bias"] = mat.NewDense(1, l.Out(), b)
	}
	return weights
}

// SetWeights copies the given parameters into the network. Keys are
// those returned by Weights, and parameters with no key in weights are
// left unchanged. The network is not modified if any key is unknown or
// any shape is wrong.
func SetWeights(net NeuralNet, weights map[string]*mat.Dense) error {
	if err := ValidateWeights(net, weights); err != nil {
		return fmt.Errorf("setWeights: %v", err)
	}

	targets := paramRefs(net)
	for name, w := range weights {
		target := targets[name]
		for i := 0; i < target.rows; i++ {
			for j := 0; j < target.cols; j++ {
				target.data[i*target.cols+j] = w.At(i, j)
			}
		}
	}
	return nil
}

// ValidateWeights returns an error if any key of weights does not name
// a parameter of the network, or if any shape is wrong
func ValidateWeights(net NeuralNet, weights map[string]*mat.Dense) error {
	targets := paramRefs(net)
	for name, w := range weights {
		target, ok := targets[name]
		if !ok {
			return fmt.Errorf("unknown parameter %v", name)
		}
		if r, c := w.Dims(); r != target.rows || c != target.cols {
			return fmt.Errorf("invalid shape for %v\n\twant(%v x %v)"+
				"\n\thave(%v x %v)", name, target.rows, target.cols, r, c)
		}
	}
	return nil
}

func paramRefs(net NeuralNet) map[string]paramRef {
	targets := make(map[string]paramRef, 2*len(net.Layers()))
	for _, l := range net.Layers() {
		targets[l.Name()+"/weights"] = paramRef{params(l.Weights()), l.In(),
			l.Out()}
		targets[l.Name()+"/bias"] = paramRef{params(l.Bias()), 1, l.Out()}
	}
	return targets
}

// paramRef refers to the backing data of a layer parameter
type paramRef struct {
	data       []float64
	rows, cols int
}

// compatible returns an error if two networks do not have the same
// architecture
func compatible(dest, source NeuralNet) error {
	destLayers, sourceLayers := dest.Layers(), source.Layers()
	if len(destLayers) != len(sourceLayers) {
		return fmt.Errorf("networks have a different number of layers"+
			"\n\twant(%v)\n\thave(%v)", len(destLayers), len(sourceLayers))
	}
	for i := range destLayers {
		d, s := destLayers[i], sourceLayers[i]
		if d.In() != s.In() || d.Out() != s.Out() {
			return fmt.Errorf("layer %v shape mismatch\n\twant(%v x %v)"+
				"\n\thave(%v x %v)", i, d.In(), d.Out(), s.In(), s.Out())
		}
	}
	return nil
}

// average computes dest <- (1 - tau) dest + tau source in place
func average(dest, source []float64, tau float64) {
	floats.Scale(1-tau, dest)
	floats.AddScaled(dest, tau, source)
}

func params(t interface{ Data() interface{} }) []float64 {
	return t.Data().([]float64)
}
