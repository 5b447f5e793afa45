package experiment

import (
	"fmt"
	"os"

	"github.com/samuelfneumann/goa3c/actorcritic"
	"github.com/samuelfneumann/goa3c/buffer/rollout"
	"github.com/samuelfneumann/goa3c/experiment/checkpointer"
	"github.com/samuelfneumann/goa3c/experiment/tracker"
	ts "github.com/samuelfneumann/goa3c/timestep"
	"github.com/samuelfneumann/goa3c/utils/floatutils"
	G "gorgonia.org/gorgonia"
)

// Online is an Experiment that runs a single actor-critic worker
// online. The worker collects transitions until either an episode ends
// or its rollout buffer is full, then computes the actor-critic loss
// of the collected transitions and steps its solver. Paths cut off by
// a full buffer are bootstrapped with the critic's value estimate.
type Online struct {
	env    Environment
	net    *actorcritic.A3C
	solver G.Solver
	buffer *rollout.Buffer

	maxUpdates int
	updates    int

	current ts.TimeStep
	started bool

	trackers      []tracker.Tracker
	checkpointers []checkpointer.Checkpointer
}

// NewOnline creates and returns a new online experiment
func NewOnline(env Environment, net *actorcritic.A3C, solver G.Solver,
	buffer *rollout.Buffer, maxUpdates int, t []tracker.Tracker,
	c []checkpointer.Checkpointer) (*Online, error) {
	if env == nil || net == nil || solver == nil || buffer == nil {
		return nil, fmt.Errorf("newOnline: environment, network, solver, " +
			"and buffer must be non-nil")
	}

	return &Online{
		env:           env,
		net:           net,
		solver:        solver,
		buffer:        buffer,
		maxUpdates:    maxUpdates,
		trackers:      t,
		checkpointers: c,
	}, nil
}

// Register registers a tracker.Tracker with an Experiment so that data
// generated during the experiment can be tracked and saved
func (o *Online) Register(t tracker.Tracker) {
	o.trackers = append(o.trackers, t)
}

// Updates returns the number of updates performed so far
func (o *Online) Updates() int {
	return o.updates
}

// Done returns whether the maximum number of updates has been reached
func (o *Online) Done() bool {
	return o.updates >= o.maxUpdates
}

// RunUpdate runs the worker until the network is updated once and
// returns the loss of the update
func (o *Online) RunUpdate() (float64, error) {
	if !o.started {
		step, err := o.env.Reset()
		if err != nil {
			return 0, fmt.Errorf("runUpdate: could not reset: %v", err)
		}
		o.current = step
		o.started = true
	}

	for {
		action, err := o.net.Act(o.current.Image, o.current.Info)
		if err != nil {
			return 0, fmt.Errorf("runUpdate: could not select action: %w",
				err)
		}

		step, err := o.env.Step(action)
		if err != nil {
			return 0, fmt.Errorf("runUpdate: could not step: %v", err)
		}

		err = o.buffer.Store(o.current.Image, o.current.Info, action,
			step.Reward)
		if err != nil {
			return 0, fmt.Errorf("runUpdate: %w", err)
		}
		record := tracker.Record{TimeStep: step}

		update := step.Last() || o.buffer.Full()
		if step.Last() {
			o.buffer.FinishPath(0)
		} else if update {
			_, value, err := o.net.Forward([][]float64{step.Image},
				[][]float64{step.Info})
			if err != nil {
				return 0, fmt.Errorf("runUpdate: could not bootstrap: %w", err)
			}
			o.buffer.FinishPath(value.AtVec(0))
		}

		o.current = step
		if step.Last() {
			if o.current, err = o.env.Reset(); err != nil {
				return 0, fmt.Errorf("runUpdate: could not reset: %v", err)
			}
		}

		if !update {
			o.track(record)
			continue
		}

		loss, err := o.update()
		if err != nil {
			return 0, fmt.Errorf("runUpdate: %w", err)
		}
		record.Updated = true
		record.Loss = loss
		o.track(record)

		if err := o.checkpoint(); err != nil {
			return loss, fmt.Errorf("runUpdate: %w", err)
		}
		return loss, nil
	}
}

// update computes the loss of the buffered transitions and steps the
// solver
func (o *Online) update() (float64, error) {
	images, info, actions, returns, err := o.buffer.Get()
	if err != nil {
		return 0, fmt.Errorf("update: %w", err)
	}

	loss, err := o.net.Loss(images, info, actions, returns)
	if err != nil {
		return 0, fmt.Errorf("update: %w", err)
	}

	if !floatutils.AllFinite(loss) {
		fmt.Fprintf(os.Stderr, "Warning: non-finite loss %v at update %v\n",
			loss, o.updates)
	}

	if err := o.solver.Step(o.net.Model()); err != nil {
		return 0, fmt.Errorf("update: could not step solver: %v", err)
	}
	o.updates++

	return loss, nil
}

// Run runs the experiment until the maximum number of updates is
// reached
func (o *Online) Run() error {
	for !o.Done() {
		if _, err := o.RunUpdate(); err != nil {
			return fmt.Errorf("run: %w", err)
		}
	}
	return nil
}

// Save saves all the data cached by the Trackers to disk
func (o *Online) Save() error {
	for _, t := range o.trackers {
		if err := t.Save(); err != nil {
			return fmt.Errorf("save: %v", err)
		}
	}
	return nil
}

// track tracks the current step by caching its data in each Tracker
func (o *Online) track(r tracker.Record) {
	for _, t := range o.trackers {
		t.Track(r)
	}
}

// checkpoint checkpoints the network with each Checkpointer
func (o *Online) checkpoint() error {
	for _, c := range o.checkpointers {
		if err := c.Checkpoint(o.updates); err != nil {
			return err
		}
	}
	return nil
}
