package actorcritic

import (
	"fmt"
	"math"
	"testing"

	"github.com/samuelfneumann/goa3c/distribution"
	"github.com/samuelfneumann/goa3c/encoder"
	"github.com/samuelfneumann/goa3c/solver"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// Indices of parameters in the Model
const (
	actorOutputBias  = 3
	criticOutputBias = 7
)

func grad(t *testing.T, vg G.ValueGrad) []float64 {
	t.Helper()

	g, err := vg.Grad()
	if err != nil {
		t.Fatalf("could not get gradient: %v", err)
	}
	return floats64(g)
}

func TestLossAdvantage(t *testing.T) {
	net := newTestA3C(t, 1)
	defer net.Close()

	// V(s) = 4 for every state
	err := net.SetWeights(map[string]*mat.Dense{
		"critic/output/weights": mat.NewDense(Hidden, 1, nil),
		"critic/output/bias":    mat.NewDense(1, 1, []float64{4}),
	})
	if err != nil {
		t.Fatal(err)
	}

	images, info := observations(1, 1)
	loss, err := net.Loss(images, info, []int{2}, []float64{10})
	if err != nil {
		t.Fatal(err)
	}
	terms := net.Terms()

	if !floats.EqualApprox(terms.Advantage, []float64{6}, tol) {
		t.Errorf("advantage \n\twant(%v)\n\thave(%v)", 6, terms.Advantage)
	}
	if !floats.EqualApprox(terms.CriticLoss, []float64{36}, tol) {
		t.Errorf("critic loss \n\twant(%v)\n\thave(%v)", 36, terms.CriticLoss)
	}

	logits, _, err := net.Forward(images, info)
	if err != nil {
		t.Fatal(err)
	}
	logProbs := distribution.LogSoftmax(logits.RawRowView(0))
	if want := -logProbs[2] * 6; math.Abs(terms.PolicyLoss[0]-want) > tol {
		t.Errorf("policy loss \n\twant(%v)\n\thave(%v)", want,
			terms.PolicyLoss[0])
	}

	want := terms.PolicyLoss[0] - EntropyCoef*terms.Entropy[0] + 36
	if math.Abs(loss-want) > tol || loss != terms.Total {
		t.Errorf("loss \n\twant(%v)\n\thave(%v)", want, loss)
	}
	if net.IsEval() {
		t.Error("loss did not put network in training mode")
	}
}

func TestLossZeroFeatures(t *testing.T) {
	net := newTestA3C(t, 1)
	defer net.Close()

	// All outputs are zero for zero features, so the policy is uniform
	// and the advantage equals the return
	returns := []float64{1, -2, 0.5}
	loss, err := net.Loss(zeros(3), [][]float64{{}, {}, {}}, []int{0, 1, 4},
		returns)
	if err != nil {
		t.Fatal(err)
	}
	terms := net.Terms()

	if !floats.EqualApprox(terms.Advantage, returns, tol) {
		t.Errorf("advantage \n\twant(%v)\n\thave(%v)", returns,
			terms.Advantage)
	}

	total := 0.0
	for i, r := range returns {
		policyLoss := math.Log(Actions) * r
		if math.Abs(terms.PolicyLoss[i]-policyLoss) > tol {
			t.Errorf("policy loss %v \n\twant(%v)\n\thave(%v)", i, policyLoss,
				terms.PolicyLoss[i])
		}
		total += policyLoss - EntropyCoef*math.Log(Actions) + r*r
	}
	total /= 3

	if math.Abs(loss-total) > tol {
		t.Errorf("loss \n\twant(%v)\n\thave(%v)", total, loss)
	}
}

func TestCriticLossZero(t *testing.T) {
	net := newTestA3C(t, 4)
	defer net.Close()
	images, info := observations(4, 4)

	_, values, err := net.Forward(images, info)
	if err != nil {
		t.Fatal(err)
	}

	_, err = net.Loss(images, info, []int{0, 1, 2, 3}, values.RawVector().Data)
	if err != nil {
		t.Fatal(err)
	}
	terms := net.Terms()

	for i, l := range terms.CriticLoss {
		if l > 1e-20 {
			t.Errorf("critic loss %v \n\twant(0)\n\thave(%v)", i, l)
		}
		if math.Abs(terms.PolicyLoss[i]) > 1e-9 {
			t.Errorf("policy loss %v \n\twant(0)\n\thave(%v)", i,
				terms.PolicyLoss[i])
		}
	}
}

func TestLossEntropy(t *testing.T) {
	net := newTestA3C(t, 1)
	defer net.Close()
	images, info := observations(2, 1)

	// Uniform policy
	err := net.SetWeights(map[string]*mat.Dense{
		"actor/output/weights": mat.NewDense(Hidden, Actions, nil),
		"actor/output/bias":    mat.NewDense(1, Actions, nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := net.Loss(images, info, []int{0, 1}, []float64{0, 0}); err != nil {
		t.Fatal(err)
	}
	for _, h := range net.Terms().Entropy {
		if math.Abs(h-math.Log(Actions)) > tol {
			t.Errorf("uniform entropy \n\twant(%v)\n\thave(%v)",
				math.Log(Actions), h)
		}
	}

	// Dominated policy
	err = net.SetWeights(map[string]*mat.Dense{
		"actor/output/bias": mat.NewDense(1, Actions,
			[]float64{100, 0, 0, 0, 0}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := net.Loss(images, info, []int{0, 1}, []float64{0, 0}); err != nil {
		t.Fatal(err)
	}
	for _, h := range net.Terms().Entropy {
		if h < 0 || h > 1e-6 {
			t.Errorf("dominated entropy \n\twant(0)\n\thave(%v)", h)
		}
	}
}

func TestLossShapeMismatch(t *testing.T) {
	net := newTestA3C(t, 1)
	defer net.Close()
	images, info := observations(4, 1)

	_, err := net.Loss(images, info, []int{0, 1, 2}, []float64{1, 2, 3})
	if !IsShapeMismatch(err) {
		t.Errorf("4 states, 3 actions: want shape mismatch, have %v", err)
	}
	_, err = net.Loss(images, info, []int{0, 1, 2, 3}, []float64{1, 2, 3})
	if !IsShapeMismatch(err) {
		t.Errorf("4 states, 3 returns: want shape mismatch, have %v", err)
	}
	_, err = net.Loss(images, info[:3], []int{0, 1, 2, 3},
		[]float64{1, 2, 3, 4})
	if !IsShapeMismatch(err) {
		t.Errorf("4 states, 3 info: want shape mismatch, have %v", err)
	}
	if net.Learnables() != nil {
		t.Error("failed loss produced learnables")
	}
}

func TestLossFailureClearsModel(t *testing.T) {
	// Observations with non-empty info fail to encode
	enc, err := encoder.NewFunc(Features,
		func(image, info []float64) ([]float64, error) {
			if len(info) > 0 {
				return nil, fmt.Errorf("unexpected info %v", info)
			}
			return image, nil
		})
	if err != nil {
		t.Fatal(err)
	}
	net, err := New(enc, DefaultConfig(1))
	if err != nil {
		t.Fatal(err)
	}
	defer net.Close()

	images, info := observations(2, 1)
	if _, err := net.Loss(images, info, []int{0, 1}, []float64{1, 2}); err !=
		nil {
		t.Fatal(err)
	}
	if len(net.Model()) != 8 {
		t.Fatalf("model size \n\twant(8)\n\thave(%v)", len(net.Model()))
	}

	info[1] = []float64{1}
	if _, err := net.Loss(images, info, []int{0, 1}, []float64{1, 2}); err ==
		nil {
		t.Fatal("loss encoded invalid observation")
	}
	if net.Learnables() != nil || len(net.Model()) != 0 {
		t.Error("failed loss kept the learnables of the previous call")
	}
	if net.Terms().Advantage != nil {
		t.Error("failed loss kept the terms of the previous call")
	}
}

func TestLossInvalidAction(t *testing.T) {
	net := newTestA3C(t, 1)
	defer net.Close()
	images, info := observations(2, 1)

	for _, action := range []int{-1, Actions} {
		_, err := net.Loss(images, info, []int{0, action}, []float64{1, 1})
		if !IsInvalidAction(err) {
			t.Errorf("action %v: want invalid action, have %v", action, err)
		}
		if IsShapeMismatch(err) {
			t.Errorf("action %v: invalid action reported as shape mismatch",
				action)
		}
	}
}

// TestGradients compares the gradients of the output biases with their
// analytic values. The critic gradient must not depend on the entropy
// coefficient and the actor gradient must not depend on the critic
// coefficient.
func TestGradients(t *testing.T) {
	for _, coefs := range [][2]float64{{EntropyCoef, CriticCoef}, {0.5, 3}} {
		entropyCoef, criticCoef := coefs[0], coefs[1]

		enc, err := encoder.NewConcat(Features)
		if err != nil {
			t.Fatal(err)
		}
		config := DefaultConfig(6)
		config.EntropyCoef = entropyCoef
		config.CriticCoef = criticCoef
		net, err := New(enc, config)
		if err != nil {
			t.Fatal(err)
		}

		images, info := observations(3, 6)
		actions := []int{4, 0, 2}
		returns := []float64{1.5, -0.5, 2}

		logits, _, err := net.Forward(images, info)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := net.Loss(images, info, actions, returns); err != nil {
			t.Fatal(err)
		}
		adv := net.Terms().Advantage
		model := net.Model()
		if len(model) != 8 {
			t.Fatalf("model size \n\twant(8)\n\thave(%v)", len(model))
		}

		// d/db mean(c (R - V)²) = -2c mean(R - V)
		wantCritic := -2 * criticCoef * floats.Sum(adv) / 3
		if g := grad(t, model[criticOutputBias]); math.Abs(g[0]-wantCritic) > 1e-8 {
			t.Errorf("critic bias gradient \n\twant(%v)\n\thave(%v)",
				wantCritic, g[0])
		}

		// d/dz_j of -log π(a) A - β H is -(1{a = j} - π_j) A +
		// β π_j (log π_j + H)
		wantActor := make([]float64, Actions)
		for i := range images {
			logp := distribution.LogSoftmax(logits.RawRowView(i))
			entropy := 0.0
			for _, lp := range logp {
				entropy -= math.Exp(lp) * lp
			}
			for j, lp := range logp {
				p := math.Exp(lp)
				oneHot := 0.0
				if j == actions[i] {
					oneHot = 1.0
				}
				wantActor[j] += (-(oneHot-p)*adv[i] +
					entropyCoef*p*(lp+entropy)) / 3
			}
		}
		if g := grad(t, model[actorOutputBias]); !floats.EqualApprox(g,
			wantActor, 1e-8) {
			t.Errorf("actor bias gradient \n\twant(%v)\n\thave(%v)",
				wantActor, g)
		}

		net.Close()
	}
}

func TestSolverStep(t *testing.T) {
	net := newTestA3C(t, 8)
	defer net.Close()
	images, info := observations(4, 8)
	actions := []int{0, 1, 2, 3}
	returns := []float64{3, 3, 3, 3}

	vanilla, err := solver.NewVanilla(1e-3, 1, -1)
	if err != nil {
		t.Fatal(err)
	}

	_, before, err := net.Forward(images, info)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := net.Loss(images, info, actions, returns); err != nil {
		t.Fatal(err)
	}
	criticBefore := floats.Sum(net.Terms().CriticLoss)

	if err := vanilla.Step(net.Model()); err != nil {
		t.Fatal(err)
	}

	// Parameters updated through the training graph are seen by the
	// inference graph
	_, after, err := net.Forward(images, info)
	if err != nil {
		t.Fatal(err)
	}
	if mat.Equal(before, after) {
		t.Error("solver step did not change predicted values")
	}

	if _, err := net.Loss(images, info, actions, returns); err != nil {
		t.Fatal(err)
	}
	if criticAfter := floats.Sum(net.Terms().CriticLoss); criticAfter >= criticBefore {
		t.Errorf("critic loss did not decrease: %v -> %v", criticBefore,
			criticAfter)
	}
}

func BenchmarkLoss(b *testing.B) {
	enc, err := encoder.NewConcat(Features)
	if err != nil {
		b.Fatal(err)
	}
	net, err := New(enc, DefaultConfig(1))
	if err != nil {
		b.Fatal(err)
	}
	defer net.Close()

	images, info := observations(5, 1)
	actions := []int{0, 1, 2, 3, 4}
	returns := []float64{1, 2, 3, 4, 5}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := net.Loss(images, info, actions, returns); err != nil {
			b.Fatal(err)
		}
	}
}
