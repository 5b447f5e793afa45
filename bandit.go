package main

import (
	"fmt"

	ts "github.com/samuelfneumann/goa3c/timestep"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// bandit is a contextual bandit. Each step, the info vector holds a
// context drawn uniformly from [0, 1)², and the image holds Gaussian
// noise. The rewarded action is determined by the first context
// dimension. Episodes last a fixed number of steps.
type bandit struct {
	actions    int
	imageSize  int
	episodeLen int
	step       int

	context distuv.Uniform
	noise   distuv.Normal

	info []float64
}

func newBandit(actions, imageSize, episodeLen int, seed uint64) *bandit {
	src := rand.NewSource(seed)
	return &bandit{
		actions:    actions,
		imageSize:  imageSize,
		episodeLen: episodeLen,
		context:    distuv.Uniform{Min: 0, Max: 1, Src: src},
		noise:      distuv.Normal{Mu: 0, Sigma: 0.1, Src: src},
	}
}

// Reset implements the experiment.Environment interface
func (b *bandit) Reset() (ts.TimeStep, error) {
	b.step = 0
	image, info := b.observe()
	return ts.New(ts.First, 0, image, info, b.step), nil
}

// Step implements the experiment.Environment interface
func (b *bandit) Step(action int) (ts.TimeStep, error) {
	if action < 0 || action >= b.actions {
		return ts.TimeStep{}, fmt.Errorf("step: illegal action %v", action)
	}

	reward := 0.0
	if action == b.best() {
		reward = 1.0
	}

	b.step++
	stepType := ts.Mid
	if b.step >= b.episodeLen {
		stepType = ts.Last
	}

	image, info := b.observe()
	return ts.New(stepType, reward, image, info, b.step), nil
}

// best returns the rewarded action in the current context
func (b *bandit) best() int {
	best := int(b.info[0] * float64(b.actions))
	if best >= b.actions {
		return b.actions - 1
	}
	return best
}

func (b *bandit) observe() ([]float64, []float64) {
	image := make([]float64, b.imageSize)
	for i := range image {
		image[i] = b.noise.Rand()
	}
	b.info = []float64{b.context.Rand(), b.context.Rand()}

	info := make([]float64, len(b.info))
	copy(info, b.info)
	return image, info
}
