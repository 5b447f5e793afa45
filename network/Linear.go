package network

import (
	"fmt"

	"github.com/samuelfneumann/goa3c/initwfn"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Linear implements a fully connected layer of a feed forward neural
// network: act(x W + b).
//
// The weights and bias of a Linear layer are stored outside of any
// computational graph. Each time the layer is added to a graph, its
// weight and bias nodes are bound to the same tensors, so that a
// solver stepping the nodes of one graph updates the layer in every
// graph it has been added to.
type Linear struct {
	name    string
	weights *tensor.Dense // in x out
	bias    *tensor.Dense // 1 x out
	act     *Activation
}

// NewLinear returns a new Linear layer with all parameters set to 0.
// A nil activation is treated as the identity.
func NewLinear(name string, in, out int, act *Activation) (*Linear, error) {
	if in <= 0 || out <= 0 {
		return nil, fmt.Errorf("newLinear: layer dimensions must be "+
			"positive, have(%v x %v)", in, out)
	}
	if act == nil {
		act = Identity()
	}

	return &Linear{
		name:    name,
		weights: tensor.New(tensor.WithShape(in, out), tensor.Of(tensor.Float64)),
		bias:    tensor.New(tensor.WithShape(1, out), tensor.Of(tensor.Float64)),
		act:     act,
	}, nil
}

// Name returns the name of the layer
func (l *Linear) Name() string {
	return l.name
}

// In returns the number of inputs to the layer
func (l *Linear) In() int {
	return l.weights.Shape()[0]
}

// Out returns the number of outputs of the layer
func (l *Linear) Out() int {
	return l.weights.Shape()[1]
}

// Activation returns the activation of the layer
func (l *Linear) Activation() *Activation {
	return l.act
}

// Weights returns the weights of the layer, of shape In() x Out()
func (l *Linear) Weights() *tensor.Dense {
	return l.weights
}

// Bias returns the bias of the layer, of shape 1 x Out()
func (l *Linear) Bias() *tensor.Dense {
	return l.bias
}

// Init fills the weights and bias of the layer using the given
// initializers
func (l *Linear) Init(weights, bias *initwfn.InitWFn) error {
	w, err := weights.Float64s(l.weights.Shape()...)
	if err != nil {
		return fmt.Errorf("init: could not initialize weights of %v: %v",
			l.name, err)
	}
	b, err := bias.Float64s(l.bias.Shape()...)
	if err != nil {
		return fmt.Errorf("init: could not initialize bias of %v: %v",
			l.name, err)
	}

	copy(l.weights.Data().([]float64), w)
	copy(l.bias.Data().([]float64), b)
	return nil
}

// fwd adds the forward pass of the layer to the graph of x and returns
// the output node along with the weight and bias nodes.
func (l *Linear) fwd(x *G.Node) (*G.Node, G.Nodes, error) {
	if !x.IsMatrix() {
		return nil, nil, fmt.Errorf("fwd: input to %v must be a matrix",
			l.name)
	}
	if x.Shape()[1] != l.In() {
		return nil, nil, fmt.Errorf("fwd: invalid input shape to %v "+
			"\n\twant(%v)\n\thave(%v)", l.name, l.In(), x.Shape()[1])
	}

	g := x.Graph()
	weights := G.NewMatrix(g, tensor.Float64, G.WithShape(l.In(), l.Out()),
		G.WithName(l.name+"/weights"), G.WithValue(l.weights))
	bias := G.NewMatrix(g, tensor.Float64, G.WithShape(1, l.Out()),
		G.WithName(l.name+"/bias"), G.WithValue(l.bias))

	out, err := G.Mul(x, weights)
	if err != nil {
		return nil, nil, fmt.Errorf("fwd: %v: %v", l.name, err)
	}

	// Broadcast the bias weights to all samples along the batch
	// dimension
	out, err = G.BroadcastAdd(out, bias, nil, []byte{0})
	if err != nil {
		return nil, nil, fmt.Errorf("fwd: %v: %v", l.name, err)
	}

	out, err = l.act.fwd(out)
	if err != nil {
		return nil, nil, fmt.Errorf("fwd: %v: %v", l.name, err)
	}

	return out, G.Nodes{weights, bias}, nil
}
