package actorcritic

import (
	"bytes"
	"encoding/gob"
	"math"
	"testing"

	"github.com/samuelfneumann/goa3c/encoder"
	"github.com/samuelfneumann/goa3c/initwfn"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const tol = 1e-9

// newTestA3C returns an A3C with the default configuration whose
// encoder passes images through unchanged
func newTestA3C(t *testing.T, seed uint64) *A3C {
	t.Helper()

	enc, err := encoder.NewConcat(Features)
	if err != nil {
		t.Fatal(err)
	}
	net, err := New(enc, DefaultConfig(seed))
	if err != nil {
		t.Fatalf("could not create A3C: %v", err)
	}
	return net
}

// observations returns n random images of Features values and n empty
// info vectors
func observations(n int, seed uint64) ([][]float64, [][]float64) {
	rng := rand.New(rand.NewSource(seed))
	images := make([][]float64, n)
	info := make([][]float64, n)
	for i := range images {
		images[i] = make([]float64, Features)
		for j := range images[i] {
			images[i][j] = rng.Float64()*2 - 1
		}
		info[i] = []float64{}
	}
	return images, info
}

func zeros(n int) [][]float64 {
	images := make([][]float64, n)
	for i := range images {
		images[i] = make([]float64, Features)
	}
	return images
}

func TestForwardShapes(t *testing.T) {
	net := newTestA3C(t, 1)
	defer net.Close()

	for _, n := range []int{1, 3, 8} {
		images, info := observations(n, uint64(n))
		logits, values, err := net.Forward(images, info)
		if err != nil {
			t.Fatalf("forward with batch %v: %v", n, err)
		}

		if r, c := logits.Dims(); r != n || c != Actions {
			t.Errorf("logits shape \n\twant(%v x %v)\n\thave(%v x %v)", n,
				Actions, r, c)
		}
		if values.Len() != n {
			t.Errorf("values length \n\twant(%v)\n\thave(%v)", n, values.Len())
		}
	}
}

func TestForwardZeroFeatures(t *testing.T) {
	net := newTestA3C(t, 1)
	defer net.Close()

	// With zero biases, zero features give tanh(0) = 0 hidden units
	// and therefore all-zero outputs
	logits, values, err := net.Forward(zeros(3), [][]float64{{}, {}, {}})
	if err != nil {
		t.Fatal(err)
	}

	if !mat.Equal(logits, mat.NewDense(3, Actions, nil)) {
		t.Errorf("logits \n\twant(0)\n\thave(%v)", mat.Formatted(logits))
	}
	if !floats.Equal(values.RawVector().Data, []float64{0, 0, 0}) {
		t.Errorf("values \n\twant(%v)\n\thave(%v)", []float64{0, 0, 0},
			values.RawVector().Data)
	}
}

func TestForwardDeterministic(t *testing.T) {
	net := newTestA3C(t, 3)
	defer net.Close()
	images, info := observations(4, 3)

	logits1, values1, err := net.Forward(images, info)
	if err != nil {
		t.Fatal(err)
	}
	net.Train()
	logits2, values2, err := net.Forward(images, info)
	if err != nil {
		t.Fatal(err)
	}

	if !mat.Equal(logits1, logits2) || !mat.Equal(values1, values2) {
		t.Error("forward pass depends on mode or repetition")
	}
}

func TestForwardShapeMismatch(t *testing.T) {
	short, err := encoder.NewFunc(Features,
		func(image, info []float64) ([]float64, error) {
			return image[:Features-1], nil
		})
	if err != nil {
		t.Fatal(err)
	}
	net, err := New(short, DefaultConfig(1))
	if err != nil {
		t.Fatal(err)
	}
	defer net.Close()

	images, info := observations(2, 1)
	if _, _, err := net.Forward(images, info); !IsShapeMismatch(err) {
		t.Errorf("short features: want shape mismatch, have %v", err)
	}

	net = newTestA3C(t, 1)
	defer net.Close()
	if _, _, err := net.Forward(images, info[:1]); !IsShapeMismatch(err) {
		t.Errorf("2 images, 1 info: want shape mismatch, have %v", err)
	}
	if _, _, err := net.Forward(nil, nil); !IsShapeMismatch(err) {
		t.Errorf("empty batch: want shape mismatch, have %v", err)
	}
}

func TestActShapeMismatch(t *testing.T) {
	short, err := encoder.NewFunc(Features,
		func(image, info []float64) ([]float64, error) {
			return image[:Features-1], nil
		})
	if err != nil {
		t.Fatal(err)
	}
	net, err := New(short, DefaultConfig(1))
	if err != nil {
		t.Fatal(err)
	}
	defer net.Close()

	images, info := observations(2, 1)
	if _, err := net.Act(images[0], info[0]); !IsShapeMismatch(err) {
		t.Errorf("act: want shape mismatch, have %v", err)
	}
	if _, err := net.Policy(images[0], info[0]); !IsShapeMismatch(err) {
		t.Errorf("policy: want shape mismatch, have %v", err)
	}
	if _, err := net.ActBatch(images, info); !IsShapeMismatch(err) {
		t.Errorf("actBatch: want shape mismatch, have %v", err)
	}
	if _, err := net.ActBatch(images, info[:1]); !IsShapeMismatch(err) {
		t.Errorf("actBatch 2 images, 1 info: want shape mismatch, have %v",
			err)
	}
}

func TestNewShapeMismatch(t *testing.T) {
	enc, err := encoder.NewConcat(Features / 2)
	if err != nil {
		t.Fatal(err)
	}
	_, err = New(enc, DefaultConfig(1))
	if !IsShapeMismatch(err) {
		t.Errorf("want shape mismatch, have %v", err)
	}
}

func TestPolicy(t *testing.T) {
	net := newTestA3C(t, 5)
	defer net.Close()
	images, info := observations(5, 5)

	for i := range images {
		policy, err := net.Policy(images[i], info[i])
		if err != nil {
			t.Fatal(err)
		}

		probs := policy.Probs()
		if len(probs) != Actions {
			t.Fatalf("number of probabilities \n\twant(%v)\n\thave(%v)",
				Actions, len(probs))
		}
		for _, p := range probs {
			if p < 0 || p > 1 {
				t.Errorf("illegal probability %v", p)
			}
		}
		if sum := floats.Sum(probs); math.Abs(sum-1) > tol {
			t.Errorf("probabilities sum \n\twant(1)\n\thave(%v)", sum)
		}
	}
}

func TestAct(t *testing.T) {
	net1 := newTestA3C(t, 7)
	defer net1.Close()
	net2 := newTestA3C(t, 7)
	defer net2.Close()

	images, info := observations(20, 11)
	for i := range images {
		a1, err := net1.Act(images[i], info[i])
		if err != nil {
			t.Fatal(err)
		}
		a2, err := net2.Act(images[i], info[i])
		if err != nil {
			t.Fatal(err)
		}

		if a1 < 0 || a1 >= Actions {
			t.Errorf("action %v not in [0, %v)", a1, Actions)
		}
		if a1 != a2 {
			t.Errorf("equal seeds selected different actions %v != %v", a1, a2)
		}
	}

	if !net1.IsEval() {
		t.Error("act did not put network in evaluation mode")
	}
}

func TestActBatch(t *testing.T) {
	net := newTestA3C(t, 9)
	defer net.Close()

	images, info := observations(6, 9)
	actions, err := net.ActBatch(images, info)
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != len(images) {
		t.Fatalf("number of actions \n\twant(%v)\n\thave(%v)", len(images),
			len(actions))
	}
	for _, a := range actions {
		if a < 0 || a >= Actions {
			t.Errorf("action %v not in [0, %v)", a, Actions)
		}
	}
}

// TestActDominated checks that a dominating logit is always selected
func TestActDominated(t *testing.T) {
	net := newTestA3C(t, 2)
	defer net.Close()

	err := net.SetWeights(map[string]*mat.Dense{
		"actor/output/weights": mat.NewDense(Hidden, Actions, nil),
		"actor/output/bias":    mat.NewDense(1, Actions, []float64{0, 0, 100, 0, 0}),
	})
	if err != nil {
		t.Fatal(err)
	}

	images, info := observations(10, 2)
	for i := range images {
		a, err := net.Act(images[i], info[i])
		if err != nil {
			t.Fatal(err)
		}
		if a != 2 {
			t.Errorf("action \n\twant(2)\n\thave(%v)", a)
		}
	}
}

func TestSetAndPolyak(t *testing.T) {
	dest := newTestA3C(t, 1)
	defer dest.Close()
	source := newTestA3C(t, 2)
	defer source.Close()

	destWeights := dest.Weights()
	sourceWeights := source.Weights()

	if err := dest.Polyak(source, 0.25); err != nil {
		t.Fatal(err)
	}
	for name, w := range dest.Weights() {
		want := mat.NewDense(w.RawMatrix().Rows, w.RawMatrix().Cols, nil)
		want.Scale(0.75, destWeights[name])
		want.Apply(func(i, j int, v float64) float64 {
			return v + 0.25*sourceWeights[name].At(i, j)
		}, want)

		if !mat.EqualApprox(w, want, tol) {
			t.Errorf("polyak average of %v incorrect", name)
		}
	}

	if err := dest.Set(source); err != nil {
		t.Fatal(err)
	}
	images, info := observations(3, 4)
	destLogits, destValues, err := dest.Forward(images, info)
	if err != nil {
		t.Fatal(err)
	}
	sourceLogits, sourceValues, err := source.Forward(images, info)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(destLogits, sourceLogits) ||
		!mat.Equal(destValues, sourceValues) {
		t.Error("set networks predict differently")
	}

	if err := dest.Polyak(source, 1.5); err == nil {
		t.Error("polyak accepted tau > 1")
	}
}

func TestSetNilSource(t *testing.T) {
	net := newTestA3C(t, 1)
	defer net.Close()
	before := net.Weights()

	if err := net.Set(nil); err == nil {
		t.Error("set accepted nil source")
	}
	if err := net.Polyak(nil, 0.5); err == nil {
		t.Error("polyak accepted nil source")
	}
	for name, w := range net.Weights() {
		if !mat.Equal(w, before[name]) {
			t.Errorf("%v modified by failed update", name)
		}
	}
}

func TestSetWeights(t *testing.T) {
	net := newTestA3C(t, 1)
	defer net.Close()
	before := net.Weights()

	if len(before) != 8 {
		t.Errorf("number of parameters \n\twant(8)\n\thave(%v)", len(before))
	}

	// A wrong shape anywhere leaves every parameter unchanged
	err := net.SetWeights(map[string]*mat.Dense{
		"actor/output/bias":  mat.NewDense(1, Actions, []float64{1, 2, 3, 4, 5}),
		"critic/output/bias": mat.NewDense(1, 2, nil),
	})
	if err == nil {
		t.Error("set weights accepted illegal shape")
	}
	err = net.SetWeights(map[string]*mat.Dense{
		"critic/bogus/bias": mat.NewDense(1, 1, nil),
	})
	if err == nil {
		t.Error("set weights accepted unknown parameter")
	}
	for name, w := range net.Weights() {
		if !mat.Equal(w, before[name]) {
			t.Errorf("%v modified by failed call to set weights", name)
		}
	}

	bias := mat.NewDense(1, 1, []float64{-3})
	err = net.SetWeights(map[string]*mat.Dense{"critic/output/bias": bias})
	if err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(net.Weights()["critic/output/bias"], bias) {
		t.Error("set weights did not set critic bias")
	}
}

func TestGob(t *testing.T) {
	net := newTestA3C(t, 1)
	defer net.Close()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(net); err != nil {
		t.Fatal(err)
	}

	decoded := newTestA3C(t, 2)
	defer decoded.Close()
	if err := gob.NewDecoder(&buf).Decode(decoded); err != nil {
		t.Fatal(err)
	}

	images, info := observations(2, 1)
	logits, values, err := net.Forward(images, info)
	if err != nil {
		t.Fatal(err)
	}
	decodedLogits, decodedValues, err := decoded.Forward(images, info)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(logits, decodedLogits) || !mat.Equal(values, decodedValues) {
		t.Error("decoded network predicts differently")
	}

	a, err := net.Act(images[0], info[0])
	if err != nil {
		t.Fatal(err)
	}
	b, err := decoded.Act(images[0], info[0])
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("decoded sampling source differs: %v != %v", a, b)
	}
}

func TestGlorotInit(t *testing.T) {
	c := DefaultConfig(1)
	weights, err := initwfn.NewGlorotU(1)
	if err != nil {
		t.Fatal(err)
	}
	c.WeightInit = weights

	enc, err := encoder.NewConcat(Features)
	if err != nil {
		t.Fatal(err)
	}
	net, err := New(enc, c)
	if err != nil {
		t.Fatal(err)
	}
	defer net.Close()

	glorot := weights.Config.(initwfn.GlorotUConfig)
	for _, branch := range []string{"actor", "critic"} {
		for _, layer := range []string{"hidden", "output"} {
			name := branch + "/" + layer + "/weights"
			w := net.Weights()[name]
			r, c := w.Dims()
			bound := glorot.Bound(r, c)

			if max := math.Max(mat.Max(w), -mat.Min(w)); max > bound ||
				max < 0.9*bound {
				t.Errorf("%v largest weight magnitude \n\twant(<= %v)"+
					"\n\thave(%v)", name, bound, max)
			}
			if b := net.Weights()[branch+"/"+layer+"/bias"]; mat.Max(b) != 0 ||
				mat.Min(b) != 0 {
				t.Errorf("%v: nonzero bias", name)
			}
		}
	}
}

func TestConfigValidate(t *testing.T) {
	c := DefaultConfig(1)
	if err := c.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}

	invalid := []func(c *Config){
		func(c *Config) { c.Features = 0 },
		func(c *Config) { c.Actions = 0 },
		func(c *Config) { c.Hidden = -1 },
		func(c *Config) { c.Activation = nil },
		func(c *Config) { c.WeightInit = nil },
		func(c *Config) { c.EntropyCoef = -0.1 },
		func(c *Config) { c.CriticCoef = -1 },
	}
	for i, modify := range invalid {
		c := DefaultConfig(1)
		modify(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("invalid config %v passed validation", i)
		}
	}
}
