// Package experiment implements functionality for running an
// actor-critic worker in an environment
package experiment

import (
	"fmt"

	"github.com/samuelfneumann/goa3c/actorcritic"
	"github.com/samuelfneumann/goa3c/buffer/rollout"
	"github.com/samuelfneumann/goa3c/encoder"
	"github.com/samuelfneumann/goa3c/experiment/checkpointer"
	"github.com/samuelfneumann/goa3c/experiment/tracker"
	"github.com/samuelfneumann/goa3c/solver"
	ts "github.com/samuelfneumann/goa3c/timestep"
)

// Environment produces the timesteps a worker acts in
type Environment interface {
	// Reset starts a new episode
	Reset() (ts.TimeStep, error)
	Step(action int) (ts.TimeStep, error)
}

// Interface Experiment outlines structs that can run experiments.
// The Run() method will perform updates until the maximum number of
// updates is reached. The RunUpdate() function will run the worker
// until the network is updated once.
//
// In order to save data, Experiments use Trackers. Experiments send
// a tracker.Record of each environment step to each Tracker, which
// determines which data it caches and saves. New Trackers can be
// registered with an Experiment through the constructor or through an
// Experiment's Register() function.
type Experiment interface {
	Run() error
	RunUpdate() (float64, error) // Returns the loss of the update
	Done() bool

	// Save all tracked data to disk
	Save() error

	// Adds a new tracker.Tracker to the (possibly already running)
	// experiment. Useful if you want to track data only after a
	// specified event.
	Register(t tracker.Tracker)
}

// Config represents a configuration of an experiment.
type Config struct {
	MaxUpdates int

	// Rollout determines the maximum number of steps a worker takes
	// before updating the network. The worker also updates at the end
	// of each episode.
	Rollout  int
	Discount float64

	// Sizes of the observations produced by the environment
	ImageSize int
	InfoSize  int

	Network actorcritic.Config
	Solver  *solver.Solver
}

// Validate checks a Config to ensure it is a valid configuration
func (c Config) Validate() error {
	if c.MaxUpdates <= 0 {
		return fmt.Errorf("cannot have %v < 1 updates", c.MaxUpdates)
	}
	if c.Rollout <= 0 {
		return fmt.Errorf("cannot have rollout length %v < 1", c.Rollout)
	}
	if c.Solver == nil {
		return fmt.Errorf("solver must be specified")
	}
	return c.Network.Validate()
}

// CreateExp creates the Experiment described by the Config, running a
// new network with the given encoder in env.
//
// The check function, if non-nil, returns the Checkpointers of the
// created network.
func (c Config) CreateExp(env Environment, enc encoder.Encoder,
	t []tracker.Tracker,
	check func(*actorcritic.A3C) []checkpointer.Checkpointer) (*Online,
	*actorcritic.A3C, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, fmt.Errorf("createExp: invalid config: %v", err)
	}

	net, err := actorcritic.New(enc, c.Network)
	if err != nil {
		return nil, nil, fmt.Errorf("createExp: could not create network: "+
			"%v", err)
	}

	buf, err := rollout.New(c.ImageSize, c.InfoSize, c.Rollout, c.Discount)
	if err != nil {
		return nil, nil, fmt.Errorf("createExp: could not create buffer: %v",
			err)
	}

	var checkpointers []checkpointer.Checkpointer
	if check != nil {
		checkpointers = check(net)
	}

	exp, err := NewOnline(env, net, c.Solver, buf, c.MaxUpdates, t,
		checkpointers)
	if err != nil {
		return nil, nil, fmt.Errorf("createExp: %v", err)
	}
	return exp, net, nil
}
