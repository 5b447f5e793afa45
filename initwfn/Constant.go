package initwfn

import G "gorgonia.org/gorgonia"

// ZeroesConfig configures an initializer that sets every parameter to
// 0. Actor-critic biases start from zero by default.
type ZeroesConfig struct{}

// NewZeroes returns a new zero initializer
func NewZeroes() (*InitWFn, error) {
	return newInitWFn(ZeroesConfig{})
}

// Type implements the Config interface
func (z ZeroesConfig) Type() Type {
	return Zeroes
}

// Create implements the Config interface
func (z ZeroesConfig) Create() G.InitWFn {
	return G.Zeroes()
}

// ConstantConfig configures an initializer that sets every parameter
// to Value, for example to start the critic's output bias at a known
// value estimate.
type ConstantConfig struct {
	Value float64
}

// NewConstant returns a new constant initializer
func NewConstant(value float64) (*InitWFn, error) {
	return newInitWFn(ConstantConfig{Value: value})
}

// Type implements the Config interface
func (c ConstantConfig) Type() Type {
	return Constant
}

// Create implements the Config interface
func (c ConstantConfig) Create() G.InitWFn {
	return G.ValuesOf(c.Value)
}
