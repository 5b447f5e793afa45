package actorcritic

import (
	"fmt"

	"github.com/samuelfneumann/goa3c/initwfn"
	"github.com/samuelfneumann/goa3c/network"
)

// Default architecture and loss coefficients
const (
	Features     = 256  // Length of encoded feature vectors
	Actions      = 5    // Number of discrete actions
	Hidden       = 256  // Units in the hidden layer of each branch
	WeightStdDev = 0.1  // Standard deviation of initial weights
	EntropyCoef  = 0.01 // Weight of the entropy bonus
	CriticCoef   = 1.0  // Weight of the critic loss
)

// Config implements a configuration of an A3C actor-critic network
type Config struct {
	Features int // Length of encoded feature vectors
	Actions  int // Number of discrete actions
	Hidden   int // Units in the hidden layer of each branch

	// Activation of the hidden layers of both branches
	Activation *network.Activation

	// Initializers for the weights and biases of all layers
	WeightInit *initwfn.InitWFn
	BiasInit   *initwfn.InitWFn

	EntropyCoef float64
	CriticCoef  float64

	// Seed seeds action sampling
	Seed uint64
}

// DefaultConfig returns the default configuration: 256 features, 5
// actions, one tanh hidden layer of 256 units per branch, weights
// drawn from N(0, 0.1²) and zero biases.
func DefaultConfig(seed uint64) Config {
	weights, err := initwfn.NewGaussian(0, WeightStdDev, seed)
	if err != nil {
		panic(fmt.Sprintf("defaultConfig: could not create weight "+
			"initializer: %v", err))
	}
	bias, err := initwfn.NewZeroes()
	if err != nil {
		panic(fmt.Sprintf("defaultConfig: could not create bias "+
			"initializer: %v", err))
	}

	return Config{
		Features:    Features,
		Actions:     Actions,
		Hidden:      Hidden,
		Activation:  network.TanH(),
		WeightInit:  weights,
		BiasInit:    bias,
		EntropyCoef: EntropyCoef,
		CriticCoef:  CriticCoef,
		Seed:        seed,
	}
}

// Validate checks a Config to ensure it is a valid configuration
func (c Config) Validate() error {
	if c.Features <= 0 {
		return fmt.Errorf("cannot have %v < 1 features", c.Features)
	}
	if c.Actions <= 0 {
		return fmt.Errorf("cannot have %v < 1 actions", c.Actions)
	}
	if c.Hidden <= 0 {
		return fmt.Errorf("cannot have %v < 1 hidden units", c.Hidden)
	}
	if c.Activation == nil {
		return fmt.Errorf("activation must be specified")
	}
	if c.WeightInit == nil || c.BiasInit == nil {
		return fmt.Errorf("weight and bias initializers must be specified")
	}
	if c.EntropyCoef < 0 {
		return fmt.Errorf("cannot have negative entropy coefficient %v",
			c.EntropyCoef)
	}
	if c.CriticCoef < 0 {
		return fmt.Errorf("cannot have negative critic coefficient %v",
			c.CriticCoef)
	}
	return nil
}
