// Package actorcritic implements the shared function approximator of
// an Asynchronous Advantage Actor-Critic (A3C) agent.
//
// An A3C maps encoded states to logits over a discrete set of actions
// (the actor) and to a state-value estimate (the critic). Both
// branches are two-layer perceptrons over the same feature vector.
// The A3C also computes the combined actor-critic loss and exposes the
// gradients of its parameters so that a caller can step a solver.
package actorcritic

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/samuelfneumann/goa3c/distribution"
	"github.com/samuelfneumann/goa3c/encoder"
	"github.com/samuelfneumann/goa3c/network"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// A3C is an actor-critic network over a discrete action space.
//
// An A3C is not safe for concurrent use. Each asynchronous worker
// should own its A3C and synchronize parameters through Set, Polyak,
// or SetWeights.
type A3C struct {
	enc    encoder.Encoder
	actor  *network.MLP
	critic *network.MLP

	entropyCoef float64
	criticCoef  float64

	seed uint64
	src  rand.Source

	eval bool

	// Training graphs, keyed by batch size
	actorGraphs  map[int]*actorGraph
	criticGraphs map[int]*criticGraph

	// Results of the latest call to Loss
	terms      Terms
	learnables G.Nodes
}

// New returns a new A3C that encodes observations with enc
func New(enc encoder.Encoder, c Config) (*A3C, error) {
	if enc == nil {
		return nil, fmt.Errorf("new: nil encoder")
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: invalid config: %v", err)
	}
	if enc.Features() != c.Features {
		return nil, &A3CError{Op: "new", Err: fmt.Errorf("%w: encoder "+
			"produces %v features, network expects %v", errShapeMismatch,
			enc.Features(), c.Features)}
	}

	actor, err := network.NewMLP("actor", c.Features, c.Actions,
		[]int{c.Hidden}, []*network.Activation{c.Activation})
	if err != nil {
		return nil, fmt.Errorf("new: could not create actor: %v", err)
	}
	critic, err := network.NewMLP("critic", c.Features, 1, []int{c.Hidden},
		[]*network.Activation{c.Activation})
	if err != nil {
		return nil, fmt.Errorf("new: could not create critic: %v", err)
	}

	// Initializers are cloned so that each A3C created from the same
	// Config starts from the same parameters
	weightInit, err := c.WeightInit.Clone()
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	biasInit, err := c.BiasInit.Clone()
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	layers := make([]*network.Linear, 0,
		len(actor.Layers())+len(critic.Layers()))
	layers = append(layers, actor.Layers()...)
	layers = append(layers, critic.Layers()...)
	if err := network.InitLayers(layers, weightInit, biasInit); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	return &A3C{
		enc:          enc,
		actor:        actor,
		critic:       critic,
		entropyCoef:  c.EntropyCoef,
		criticCoef:   c.CriticCoef,
		seed:         c.Seed,
		src:          rand.NewSource(c.Seed),
		actorGraphs:  make(map[int]*actorGraph),
		criticGraphs: make(map[int]*criticGraph),
	}, nil
}

// Features returns the length of the feature vectors the A3C takes as
// input
func (a *A3C) Features() int {
	return a.actor.Features()
}

// Actions returns the number of actions
func (a *A3C) Actions() int {
	return a.actor.Outputs()
}

// Eval puts the A3C in evaluation mode, in which no gradients are
// tracked
func (a *A3C) Eval() {
	a.eval = true
}

// Train puts the A3C in training mode
func (a *A3C) Train() {
	a.eval = false
}

// IsEval returns whether the A3C is in evaluation mode
func (a *A3C) IsEval() bool {
	return a.eval
}

// Forward computes the logits, of shape N x Actions(), and the state
// values, of length N, of a batch of N observations. The outputs do
// not depend on the mode of the A3C.
func (a *A3C) Forward(images, info [][]float64) (*mat.Dense,
	*mat.VecDense, error) {
	x, err := a.encode("forward", images, info)
	if err != nil {
		return nil, nil, err
	}
	batch := len(images)

	logits, err := a.actor.Predict(x, batch)
	if err != nil {
		return nil, nil, fmt.Errorf("forward: actor: %v", err)
	}

	values, err := a.critic.Predict(x, batch)
	if err != nil {
		return nil, nil, fmt.Errorf("forward: critic: %v", err)
	}

	return logits, mat.NewVecDense(batch, values.RawMatrix().Data), nil
}

// Policy returns the distribution over actions in a single
// observation. The A3C is put into evaluation mode.
func (a *A3C) Policy(image, info []float64) (*distribution.Categorical,
	error) {
	a.Eval()
	logits, _, err := a.Forward([][]float64{image}, [][]float64{info})
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}

	return distribution.NewCategoricalFromLogits(logits.RawRowView(0), a.src)
}

// Act samples an action in a single observation. The A3C is put into
// evaluation mode.
func (a *A3C) Act(image, info []float64) (int, error) {
	policy, err := a.Policy(image, info)
	if err != nil {
		return -1, fmt.Errorf("act: %w", err)
	}
	return policy.Sample(), nil
}

// ActBatch samples one action for each of a batch of observations.
// The A3C is put into evaluation mode.
func (a *A3C) ActBatch(images, info [][]float64) ([]int, error) {
	a.Eval()
	logits, _, err := a.Forward(images, info)
	if err != nil {
		return nil, fmt.Errorf("actBatch: %w", err)
	}

	actions := make([]int, len(images))
	for i := range actions {
		policy, err := distribution.NewCategoricalFromLogits(
			logits.RawRowView(i), a.src)
		if err != nil {
			return nil, fmt.Errorf("actBatch: %w", err)
		}
		actions[i] = policy.Sample()
	}
	return actions, nil
}

// encode encodes a batch of observations into a single row-major
// slice of feature vectors
func (a *A3C) encode(op string, images, info [][]float64) ([]float64,
	error) {
	if len(images) == 0 {
		return nil, &A3CError{Op: op, Err: fmt.Errorf("%w: empty batch",
			errShapeMismatch)}
	}
	if len(images) != len(info) {
		return nil, &A3CError{Op: op, Err: fmt.Errorf("%w: %v images but %v "+
			"info vectors", errShapeMismatch, len(images), len(info))}
	}
	if a.enc == nil {
		return nil, fmt.Errorf("%v: no encoder", op)
	}

	features := a.Features()
	x := make([]float64, 0, len(images)*features)
	for i := range images {
		encoded, err := a.enc.Encode(images[i], info[i])
		if err != nil {
			return nil, fmt.Errorf("%v: could not encode observation %v: %v",
				op, i, err)
		}
		if len(encoded) != features {
			return nil, &A3CError{Op: op, Err: fmt.Errorf("%w: observation %v "+
				"encoded to %v features, want %v", errShapeMismatch, i,
				len(encoded), features)}
		}
		x = append(x, encoded...)
	}
	return x, nil
}

// Weights returns copies of all parameters, keyed by
// <branch>/<layer>/weights and <branch>/<layer>/bias, for example
// actor/hidden/weights or critic/output/bias
func (a *A3C) Weights() map[string]*mat.Dense {
	weights := network.Weights(a.actor)
	for name, w := range network.Weights(a.critic) {
		weights[name] = w
	}
	return weights
}

// SetWeights copies the given parameters into the A3C. Parameters with
// no key in weights are left unchanged. No parameter is modified if
// any key is unknown or any shape is wrong.
func (a *A3C) SetWeights(weights map[string]*mat.Dense) error {
	actor := make(map[string]*mat.Dense)
	critic := make(map[string]*mat.Dense)
	actorNames := actorParams(a)
	for name, w := range weights {
		if _, ok := actorNames[name]; ok {
			actor[name] = w
		} else {
			critic[name] = w
		}
	}

	if err := network.ValidateWeights(a.actor, actor); err != nil {
		return fmt.Errorf("setWeights: %v", err)
	}
	if err := network.ValidateWeights(a.critic, critic); err != nil {
		return fmt.Errorf("setWeights: %v", err)
	}

	if err := network.SetWeights(a.actor, actor); err != nil {
		return fmt.Errorf("setWeights: %v", err)
	}
	return network.SetWeights(a.critic, critic)
}

func actorParams(a *A3C) map[string]struct{} {
	names := make(map[string]struct{}, 2*len(a.actor.Layers()))
	for _, l := range a.actor.Layers() {
		names[l.Name()+"/weights"] = struct{}{}
		names[l.Name()+"/bias"] = struct{}{}
	}
	return names
}

// Set sets the parameters of the A3C to be equal to those of source
func (a *A3C) Set(source *A3C) error {
	if source == nil {
		return fmt.Errorf("set: nil source")
	}
	if err := network.Set(a.actor, source.actor); err != nil {
		return fmt.Errorf("set: actor: %v", err)
	}
	if err := network.Set(a.critic, source.critic); err != nil {
		return fmt.Errorf("set: critic: %v", err)
	}
	return nil
}

// Polyak sets the parameters of the A3C to be a polyak average between
// its existing parameters and those of source
func (a *A3C) Polyak(source *A3C, tau float64) error {
	if source == nil {
		return fmt.Errorf("polyak: nil source")
	}
	if err := network.Polyak(a.actor, source.actor, tau); err != nil {
		return fmt.Errorf("polyak: actor: %v", err)
	}
	if err := network.Polyak(a.critic, source.critic, tau); err != nil {
		return fmt.Errorf("polyak: critic: %v", err)
	}
	return nil
}

// Close releases the resources of all cached computational graphs
func (a *A3C) Close() error {
	var err error
	for batch, g := range a.actorGraphs {
		if closeErr := g.vm.Close(); closeErr != nil {
			err = closeErr
		}
		delete(a.actorGraphs, batch)
	}
	for batch, g := range a.criticGraphs {
		if closeErr := g.vm.Close(); closeErr != nil {
			err = closeErr
		}
		delete(a.criticGraphs, batch)
	}
	if closeErr := a.actor.Close(); closeErr != nil {
		err = closeErr
	}
	if closeErr := a.critic.Close(); closeErr != nil {
		err = closeErr
	}
	a.learnables = nil

	if err != nil {
		return fmt.Errorf("close: %v", err)
	}
	return nil
}

// a3cGob is the gob representation of an A3C
type a3cGob struct {
	Actor, Critic *network.MLP
	EntropyCoef   float64
	CriticCoef    float64
	Seed          uint64
}

// GobEncode implements the gob.GobEncoder interface. The encoder of
// the A3C is not encoded.
func (a *A3C) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(a3cGob{
		Actor:       a.actor,
		Critic:      a.critic,
		EntropyCoef: a.entropyCoef,
		CriticCoef:  a.criticCoef,
		Seed:        a.seed,
	})
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode A3C: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The encoder of the
// receiver is kept, and must produce feature vectors of the decoded
// length. The sampling source is reseeded.
func (a *A3C) GobDecode(in []byte) error {
	var decoded a3cGob
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(&decoded); err != nil {
		return fmt.Errorf("gobdecode: could not decode A3C: %v", err)
	}
	if decoded.Actor == nil || decoded.Critic == nil {
		return fmt.Errorf("gobdecode: missing actor or critic")
	}
	if a.enc != nil && a.enc.Features() != decoded.Actor.Features() {
		return &A3CError{Op: "gobdecode", Err: fmt.Errorf("%w: encoder "+
			"produces %v features, decoded network expects %v",
			errShapeMismatch, a.enc.Features(), decoded.Actor.Features())}
	}

	if a.actor != nil {
		a.Close()
	}
	*a = A3C{
		enc:          a.enc,
		actor:        decoded.Actor,
		critic:       decoded.Critic,
		entropyCoef:  decoded.EntropyCoef,
		criticCoef:   decoded.CriticCoef,
		seed:         decoded.Seed,
		src:          rand.NewSource(decoded.Seed),
		actorGraphs:  make(map[int]*actorGraph),
		criticGraphs: make(map[int]*criticGraph),
	}
	return nil
}
