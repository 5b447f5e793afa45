package initwfn

import (
	"math"

	G "gorgonia.org/gorgonia"
)

// GlorotUConfig configures Glorot (Xavier) uniform initialization.
// Weights of a fanIn x fanOut layer are drawn from U(-b, b) where b is
// given by Bound. Layer weights are stored as in x out, so fanIn is
// the number of rows.
type GlorotUConfig struct {
	Gain float64
}

// NewGlorotU returns a new Glorot uniform weight initializer. It is an
// alternative to the Gaussian weights of the default actor-critic
// configuration whose scale adapts to the hidden layer size.
func NewGlorotU(gain float64) (*InitWFn, error) {
	return newInitWFn(GlorotUConfig{Gain: gain})
}

// Bound returns the largest magnitude of a weight drawn for a
// fanIn x fanOut layer
func (g GlorotUConfig) Bound(fanIn, fanOut int) float64 {
	return g.Gain * math.Sqrt(6/float64(fanIn+fanOut))
}

// Type implements the Config interface
func (g GlorotUConfig) Type() Type {
	return GlorotU
}

// Create implements the Config interface
func (g GlorotUConfig) Create() G.InitWFn {
	return G.GlorotU(g.Gain)
}

// GlorotNConfig configures Glorot (Xavier) normal initialization, in
// which weights of a fanIn x fanOut layer have standard deviation
// StdDev(fanIn, fanOut).
type GlorotNConfig struct {
	Gain float64
}

// NewGlorotN returns a new Glorot normal weight initializer
func NewGlorotN(gain float64) (*InitWFn, error) {
	return newInitWFn(GlorotNConfig{Gain: gain})
}

// StdDev returns the standard deviation of weights drawn for a
// fanIn x fanOut layer
func (g GlorotNConfig) StdDev(fanIn, fanOut int) float64 {
	return g.Gain * math.Sqrt(2/float64(fanIn+fanOut))
}

// Type implements the Config interface
func (g GlorotNConfig) Type() Type {
	return GlorotN
}

// Create implements the Config interface
func (g GlorotNConfig) Create() G.InitWFn {
	return G.GlorotN(g.Gain)
}
