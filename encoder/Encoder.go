// Package encoder implements state encoders, which turn a raw
// observation (an image and a vector of auxiliary information) into
// the feature vector consumed by an actor-critic network.
package encoder

import "fmt"

// Encoder encodes an observation into a feature vector
type Encoder interface {
	// Encode returns the feature vector of an observation
	Encode(image, info []float64) ([]float64, error)

	// Features returns the length of encoded feature vectors
	Features() int
}

// Concat encodes an observation by concatenating the image and the
// info vector. It is useful when an upstream preprocessor has already
// produced the features.
type Concat struct {
	features int
}

// NewConcat returns a new Concat encoder producing features values
func NewConcat(features int) (*Concat, error) {
	if features <= 0 {
		return nil, fmt.Errorf("newConcat: features must be positive, "+
			"have(%v)", features)
	}
	return &Concat{features}, nil
}

// Encode implements the Encoder interface. The returned vector is
// not checked against Features().
func (c *Concat) Encode(image, info []float64) ([]float64, error) {
	features := make([]float64, 0, len(image)+len(info))
	features = append(features, image...)
	return append(features, info...), nil
}

// Features implements the Encoder interface
func (c *Concat) Features() int {
	return c.features
}

// Func adapts an ordinary function to the Encoder interface
type Func struct {
	features int
	f        func(image, info []float64) ([]float64, error)
}

// NewFunc returns a new Func encoder
func NewFunc(features int,
	f func(image, info []float64) ([]float64, error)) (*Func, error) {
	if f == nil {
		return nil, fmt.Errorf("newFunc: nil encoding function")
	}
	if features <= 0 {
		return nil, fmt.Errorf("newFunc: features must be positive, "+
			"have(%v)", features)
	}
	return &Func{features, f}, nil
}

// Encode implements the Encoder interface
func (f *Func) Encode(image, info []float64) ([]float64, error) {
	return f.f(image, info)
}

// Features implements the Encoder interface
func (f *Func) Features() int {
	return f.features
}
