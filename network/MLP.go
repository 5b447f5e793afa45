package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// MLP implements a multi-layered perceptron. A final linear layer with
// no activation is always added so that the network predicts Outputs()
// values per sample.
//
// An MLP does not own a computational graph. Its forward pass can be
// added to any number of graphs with Fwd, and Predict runs the forward
// pass in inference graphs that are cached by batch size. All graphs
// share the parameters of the MLP's layers.
type MLP struct {
	name     string
	features int
	outputs  int
	layers   []*Linear

	graphs map[int]*inference
}

// inference is a forward pass of an MLP with no gradients
type inference struct {
	g          *G.ExprGraph
	input      *G.Node
	prediction *G.Node
	predVal    G.Value
	vm         G.VM
}

// NewMLP creates and returns a new multi-layered perceptron with
// len(hiddenSizes) + 1 layers. For index i, hiddenSizes[i] is the
// number of nodes in hidden layer i and activations[i] is the
// activation of hidden layer i. All parameters are zero until the
// layers are initialized, see InitLayers.
func NewMLP(name string, features, outputs int, hiddenSizes []int,
	activations []*Activation) (*MLP, error) {
	// Ensure we have one activation per layer
	if len(hiddenSizes) != len(activations) {
		msg := "newMLP: invalid number of activations" +
			"\n\twant(%d)\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}

	layers := make([]*Linear, 0, len(hiddenSizes)+1)
	in := features
	for i, size := range hiddenSizes {
		layerName := name + "/hidden"
		if len(hiddenSizes) > 1 {
			layerName = fmt.Sprintf("%v%d", layerName, i)
		}

		layer, err := NewLinear(layerName, in, size, activations[i])
		if err != nil {
			return nil, fmt.Errorf("newMLP: could not create layer %v: %v",
				i, err)
		}
		layers = append(layers, layer)
		in = size
	}

	out, err := NewLinear(name+"/output", in, outputs, Identity())
	if err != nil {
		return nil, fmt.Errorf("newMLP: could not create output layer: %v",
			err)
	}
	layers = append(layers, out)

	return &MLP{
		name:     name,
		features: features,
		outputs:  outputs,
		layers:   layers,
		graphs:   make(map[int]*inference),
	}, nil
}

// Name returns the name of the MLP, which prefixes all its layer names
func (m *MLP) Name() string {
	return m.name
}

// Features returns the number of features in a single input vector
func (m *MLP) Features() int {
	return m.features
}

// Outputs returns the number of outputs from the network per sample
func (m *MLP) Outputs() int {
	return m.outputs
}

// Layers returns the layers of the network, from input to output
func (m *MLP) Layers() []*Linear {
	return m.layers
}

// Fwd adds the forward pass of the MLP to the graph of the input node
// and returns the prediction node, of shape batch x Outputs(), and the
// learnable nodes that the prediction was computed from.
func (m *MLP) Fwd(input *G.Node) (*G.Node, G.Nodes, error) {
	if !input.IsMatrix() {
		return nil, nil, fmt.Errorf("fwd: input must be a matrix")
	}
	if input.Shape()[1] != m.features {
		return nil, nil, fmt.Errorf("fwd: invalid shape for input to neural "+
			"net: \n\twant(%v) \n\thave(%v)", m.features, input.Shape()[1])
	}

	learnables := make(G.Nodes, 0, 2*len(m.layers))
	pred := input
	for i, l := range m.layers {
		var params G.Nodes
		var err error
		if pred, params, err = l.fwd(pred); err != nil {
			msg := "fwd: could not compute forward pass of layer %v: %v"
			return nil, nil, fmt.Errorf(msg, i, err)
		}
		learnables = append(learnables, params...)
	}

	return pred, learnables, nil
}

// Predict runs the forward pass on batch row-major input vectors and
// returns the batch x Outputs() predictions. No gradients are
// computed.
func (m *MLP) Predict(input []float64, batch int) (*mat.Dense, error) {
	if batch <= 0 {
		return nil, fmt.Errorf("predict: batch size must be positive, "+
			"have(%v)", batch)
	}
	if len(input) != m.features*batch {
		return nil, fmt.Errorf("predict: invalid number of inputs"+
			"\n\twant(%v)\n\thave(%v)", m.features*batch, len(input))
	}

	inf, err := m.inferenceGraph(batch)
	if err != nil {
		return nil, fmt.Errorf("predict: %v", err)
	}

	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(batch, m.features),
	)
	if err := G.Let(inf.input, inputTensor); err != nil {
		return nil, fmt.Errorf("predict: could not set input: %v", err)
	}

	inf.vm.Reset()
	if err := inf.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("predict: could not run forward pass: %v", err)
	}

	pred := make([]float64, batch*m.outputs)
	copy(pred, inf.predVal.Data().([]float64))

	return mat.NewDense(batch, m.outputs, pred), nil
}

// inferenceGraph returns the cached inference graph for a batch size,
// constructing it if needed
func (m *MLP) inferenceGraph(batch int) (*inference, error) {
	if inf, ok := m.graphs[batch]; ok {
		return inf, nil
	}

	g := G.NewGraph()
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, m.features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	pred, _, err := m.Fwd(input)
	if err != nil {
		return nil, err
	}

	inf := &inference{
		g:          g,
		input:      input,
		prediction: pred,
	}
	G.Read(inf.prediction, &inf.predVal)
	inf.vm = G.NewTapeMachine(g)

	m.graphs[batch] = inf
	return inf, nil
}

// Close closes all cached inference graphs
func (m *MLP) Close() error {
	var err error
	for batch, inf := range m.graphs {
		if closeErr := inf.vm.Close(); closeErr != nil {
			err = fmt.Errorf("close: could not close vm for batch size "+
				"%v: %v", batch, closeErr)
		}
		delete(m.graphs, batch)
	}
	return err
}

// mlpGob is the gob representation of an MLP
type mlpGob struct {
	Name     string
	Features int
	Outputs  int
	Layers   []linearGob
}

type linearGob struct {
	Name       string
	In, Out    int
	Activation *Activation
	Weights    []float64
	Bias       []float64
}

// GobEncode implements the gob.GobEncoder interface
func (m *MLP) GobEncode() ([]byte, error) {
	encoded := mlpGob{
		Name:     m.name,
		Features: m.features,
		Outputs:  m.outputs,
		Layers:   make([]linearGob, len(m.layers)),
	}
	for i, l := range m.layers {
		encoded.Layers[i] = linearGob{
			Name:       l.Name(),
			In:         l.In(),
			Out:        l.Out(),
			Activation: l.Activation(),
			Weights:    l.Weights().Data().([]float64),
			Bias:       l.Bias().Data().([]float64),
		}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(encoded); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode MLP: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (m *MLP) GobDecode(in []byte) error {
	var decoded mlpGob
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(&decoded); err != nil {
		return fmt.Errorf("gobdecode: could not decode MLP: %v", err)
	}
	if len(decoded.Layers) == 0 {
		return fmt.Errorf("gobdecode: MLP has no layers")
	}

	layers := make([]*Linear, len(decoded.Layers))
	for i, l := range decoded.Layers {
		layer, err := NewLinear(l.Name, l.In, l.Out, l.Activation)
		if err != nil {
			return fmt.Errorf("gobdecode: could not decode layer %v: %v", i,
				err)
		}
		if len(l.Weights) != l.In*l.Out || len(l.Bias) != l.Out {
			return fmt.Errorf("gobdecode: corrupt parameters for layer %v", i)
		}
		copy(layer.Weights().Data().([]float64), l.Weights)
		copy(layer.Bias().Data().([]float64), l.Bias)
		layers[i] = layer
	}

	*m = MLP{
		name:     decoded.Name,
		features: decoded.Features,
		outputs:  decoded.Outputs,
		layers:   layers,
		graphs:   make(map[int]*inference),
	}
	return nil
}
