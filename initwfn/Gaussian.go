package initwfn

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// GaussianConfig implements a configuration of a weight initializer
// that draws weights from a gaussian distribution. Unlike Gorgonia's
// Gaussian initializer, draws come from a source seeded with Seed, so
// two InitWFn's created from equal configs produce equal weights.
type GaussianConfig struct {
	Mean, StdDev float64
	Seed         uint64
}

// NewGaussian returns a new gaussian weight initializer
func NewGaussian(mean, stddev float64, seed uint64) (*InitWFn, error) {
	if stddev < 0 {
		return nil, fmt.Errorf("newGaussian: standard deviation must be "+
			"non-negative, have(%v)", stddev)
	}
	config := GaussianConfig{
		Mean:   mean,
		StdDev: stddev,
		Seed:   seed,
	}

	return newInitWFn(config)
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (g GaussianConfig) Type() Type {
	return Gaussian
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn. Successive calls of the returned InitWFn continue the same
// random stream.
func (g GaussianConfig) Create() G.InitWFn {
	normal := distuv.Normal{
		Mu:    g.Mean,
		Sigma: g.StdDev,
		Src:   rand.NewSource(g.Seed),
	}

	return func(dt tensor.Dtype, s ...int) interface{} {
		size := tensor.Shape(s).TotalSize()

		switch dt {
		case tensor.Float64:
			weights := make([]float64, size)
			for i := range weights {
				weights[i] = normal.Rand()
			}
			return weights

		case tensor.Float32:
			weights := make([]float32, size)
			for i := range weights {
				weights[i] = float32(normal.Rand())
			}
			return weights

		default:
			panic(fmt.Sprintf("gaussian: dtype %v not supported", dt))
		}
	}
}
