package actorcritic

import (
	"fmt"

	"github.com/samuelfneumann/goa3c/utils/op"
	"gonum.org/v1/gonum/floats"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Terms holds the per-sample terms of the latest loss computation
type Terms struct {
	Advantage  []float64 // returns - value
	CriticLoss []float64 // advantage²
	PolicyLoss []float64 // -log π(action) * advantage
	Entropy    []float64 // -Σ π log π

	// Total is the mean over samples of
	// PolicyLoss - EntropyCoef * Entropy + CriticCoef * CriticLoss
	Total float64
}

// criticGraph computes the critic loss and its gradient with respect
// to the critic's parameters
type criticGraph struct {
	vm         G.VM
	input      *G.Node
	returns    *G.Node
	learnables G.Nodes

	advantageVal  G.Value
	criticLossVal G.Value
}

// actorGraph computes the policy loss with an entropy bonus and its
// gradient with respect to the actor's parameters. The advantage is
// an input to the graph, so no gradient flows from the policy loss
// into the critic.
type actorGraph struct {
	vm         G.VM
	input      *G.Node
	actions    *G.Node // One-hot, batch x actions
	advantages *G.Node
	learnables G.Nodes

	policyLossVal G.Value
	entropyVal    G.Value
}

// Loss computes the actor-critic loss of a batch of N transitions,
// where returns[i] is the return observed after taking actions[i] in
// the observation (states[i], info[i]). The gradients of the loss are
// stored on the learnables, see Model. The A3C is put into training
// mode.
//
// For each sample, with advantage A = return - V(s):
//
//	critic loss = A²
//	policy loss = -log π(action | s) * A, with A treated as a constant
//	entropy     = -Σ π log π
//
// The returned loss is the mean over the batch of
//
//	policy loss - EntropyCoef * entropy + CriticCoef * critic loss
//
// The actor's gradients come only from the policy loss and entropy
// terms, and the critic's gradients come only from the critic loss.
func (a *A3C) Loss(states, info [][]float64, actions []int,
	returns []float64) (float64, error) {
	batch := len(states)
	if len(actions) != batch || len(returns) != batch {
		return 0, &A3CError{Op: "loss", Err: fmt.Errorf("%w: %v states, %v "+
			"actions, %v returns", errShapeMismatch, batch, len(actions),
			len(returns))}
	}
	for i, action := range actions {
		if action < 0 || action >= a.Actions() {
			return 0, &A3CError{Op: "loss", Err: fmt.Errorf("%w: action %v "+
				"at index %v not in [0, %v)", errInvalidAction, action, i,
				a.Actions())}
		}
	}

	// Gradients of a failed call must not be paired with the learnables
	// of an earlier call
	a.learnables = nil
	a.terms = Terms{}

	x, err := a.encode("loss", states, info)
	if err != nil {
		return 0, err
	}

	a.Train()

	critic, err := a.criticGraph(batch)
	if err != nil {
		return 0, fmt.Errorf("loss: could not construct critic graph: %v",
			err)
	}
	actor, err := a.actorGraph(batch)
	if err != nil {
		return 0, fmt.Errorf("loss: could not construct actor graph: %v",
			err)
	}

	// Critic loss
	if err := G.Let(critic.input, matrix(x, batch, a.Features())); err != nil {
		return 0, fmt.Errorf("loss: could not set critic input: %v", err)
	}
	if err := G.Let(critic.returns, vector(returns)); err != nil {
		return 0, fmt.Errorf("loss: could not set returns: %v", err)
	}
	critic.vm.Reset()
	if err := critic.vm.RunAll(); err != nil {
		return 0, fmt.Errorf("loss: could not run critic: %v", err)
	}
	advantage := floats64(critic.advantageVal)
	criticLoss := floats64(critic.criticLossVal)

	// Policy loss, with the advantage detached from the critic
	if err := G.Let(actor.input, matrix(x, batch, a.Features())); err != nil {
		return 0, fmt.Errorf("loss: could not set actor input: %v", err)
	}
	if err := G.Let(actor.actions, oneHot(actions, a.Actions())); err != nil {
		return 0, fmt.Errorf("loss: could not set actions: %v", err)
	}
	if err := G.Let(actor.advantages, vector(advantage)); err != nil {
		return 0, fmt.Errorf("loss: could not set advantages: %v", err)
	}
	actor.vm.Reset()
	if err := actor.vm.RunAll(); err != nil {
		return 0, fmt.Errorf("loss: could not run actor: %v", err)
	}
	policyLoss := floats64(actor.policyLossVal)
	entropy := floats64(actor.entropyVal)

	total := make([]float64, batch)
	copy(total, policyLoss)
	floats.AddScaled(total, -a.entropyCoef, entropy)
	floats.AddScaled(total, a.criticCoef, criticLoss)

	a.terms = Terms{
		Advantage:  advantage,
		CriticLoss: criticLoss,
		PolicyLoss: policyLoss,
		Entropy:    entropy,
		Total:      floats.Sum(total) / float64(batch),
	}

	a.learnables = make(G.Nodes, 0, len(actor.learnables)+
		len(critic.learnables))
	a.learnables = append(a.learnables, actor.learnables...)
	a.learnables = append(a.learnables, critic.learnables...)

	return a.terms.Total, nil
}

// Terms returns the per-sample terms of the latest call to Loss
func (a *A3C) Terms() Terms {
	return a.terms
}

// Learnables returns the learnable nodes used by the latest call to
// Loss, actor parameters first. Learnables returns nil if Loss has
// not been called or if the latest call failed after validating its
// inputs.
func (a *A3C) Learnables() G.Nodes {
	return a.learnables
}

// Model returns the learnable nodes of the latest call to Loss with
// their gradients, actor parameters first. Stepping a solver with the
// Model updates the parameters of the A3C.
func (a *A3C) Model() []G.ValueGrad {
	model := make([]G.ValueGrad, len(a.learnables))
	for i, node := range a.learnables {
		model[i] = node
	}
	return model
}

// criticGraph returns the cached critic training graph for a batch
// size, constructing it if needed
func (a *A3C) criticGraph(batch int) (*criticGraph, error) {
	if c, ok := a.criticGraphs[batch]; ok {
		return c, nil
	}

	g := G.NewGraph()
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, a.Features()),
		G.WithName("input"), G.WithInit(G.Zeroes()))
	returns := G.NewVector(g, tensor.Float64, G.WithShape(batch),
		G.WithName("returns"), G.WithInit(G.Zeroes()))

	pred, learnables, err := a.critic.Fwd(input)
	if err != nil {
		return nil, err
	}
	value, err := G.Reshape(pred, tensor.Shape{batch})
	if err != nil {
		return nil, fmt.Errorf("could not squeeze value: %v", err)
	}

	advantage := G.Must(G.Sub(returns, value))
	criticLoss := G.Must(G.Square(advantage))
	cost := G.Must(G.Mean(criticLoss))
	cost = G.Must(G.Mul(cost, G.NewConstant(a.criticCoef)))

	if _, err := G.Grad(cost, learnables...); err != nil {
		return nil, fmt.Errorf("could not compute critic gradient: %v", err)
	}

	c := &criticGraph{
		input:      input,
		returns:    returns,
		learnables: learnables,
	}
	G.Read(advantage, &c.advantageVal)
	G.Read(criticLoss, &c.criticLossVal)
	c.vm = G.NewTapeMachine(g, G.BindDualValues(learnables...))

	a.criticGraphs[batch] = c
	return c, nil
}

// actorGraph returns the cached actor training graph for a batch size,
// constructing it if needed
func (a *A3C) actorGraph(batch int) (*actorGraph, error) {
	if ag, ok := a.actorGraphs[batch]; ok {
		return ag, nil
	}

	g := G.NewGraph()
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, a.Features()),
		G.WithName("input"), G.WithInit(G.Zeroes()))
	actions := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, a.Actions()),
		G.WithName("actions"), G.WithInit(G.Zeroes()))
	advantages := G.NewVector(g, tensor.Float64, G.WithShape(batch),
		G.WithName("advantages"), G.WithInit(G.Zeroes()))

	logits, learnables, err := a.actor.Fwd(input)
	if err != nil {
		return nil, err
	}

	logProbs, err := op.LogSoftmax(logits)
	if err != nil {
		return nil, err
	}
	logProbActions, err := op.Select(logProbs, actions)
	if err != nil {
		return nil, err
	}
	entropy, err := op.CategoricalEntropy(logProbs)
	if err != nil {
		return nil, err
	}

	policyLoss := G.Must(G.HadamardProd(logProbActions, advantages))
	policyLoss = G.Must(G.Neg(policyLoss))

	bonus := G.Must(G.Mul(G.NewConstant(a.entropyCoef), entropy))
	cost := G.Must(G.Sub(policyLoss, bonus))
	cost = G.Must(G.Mean(cost))

	if _, err := G.Grad(cost, learnables...); err != nil {
		return nil, fmt.Errorf("could not compute actor gradient: %v", err)
	}

	ag := &actorGraph{
		input:      input,
		actions:    actions,
		advantages: advantages,
		learnables: learnables,
	}
	G.Read(policyLoss, &ag.policyLossVal)
	G.Read(entropy, &ag.entropyVal)
	ag.vm = G.NewTapeMachine(g, G.BindDualValues(learnables...))

	a.actorGraphs[batch] = ag
	return ag, nil
}

// matrix returns a rows x cols tensor backed by a copy of data
func matrix(data []float64, rows, cols int) *tensor.Dense {
	backing := make([]float64, len(data))
	copy(backing, data)
	return tensor.New(tensor.WithBacking(backing),
		tensor.WithShape(rows, cols))
}

// vector returns a vector tensor backed by a copy of data
func vector(data []float64) *tensor.Dense {
	backing := make([]float64, len(data))
	copy(backing, data)
	return tensor.New(tensor.WithBacking(backing),
		tensor.WithShape(len(data)))
}

// oneHot returns the batch x n one-hot encoding of actions
func oneHot(actions []int, n int) *tensor.Dense {
	backing := make([]float64, len(actions)*n)
	for i, action := range actions {
		backing[i*n+action] = 1.0
	}
	return tensor.New(tensor.WithBacking(backing),
		tensor.WithShape(len(actions), n))
}

// floats64 returns a copy of the data of a graph value
func floats64(v G.Value) []float64 {
	switch data := v.Data().(type) {
	case []float64:
		out := make([]float64, len(data))
		copy(out, data)
		return out
	case float64:
		return []float64{data}
	}
	panic(fmt.Sprintf("floats64: illegal value type %T", v.Data()))
}
