// Package rollout implements a buffer that stores the trajectory
// segments of an actor-critic worker and computes the bootstrapped
// returns used to train it
package rollout

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Buffer stores up to a maximum number of transitions of one worker.
// Each stored path of transitions is finished with FinishPath, which
// computes the discounted rewards-to-go of every transition in the
// path. Get then returns the batch and empties the buffer.
type Buffer struct {
	imageSize int // Size of image observations
	infoSize  int // Size of auxiliary info vectors
	maxSize   int // Max buffer size

	currentPos   int // Current position in the buffer
	pathStartIdx int // Position in the buffer where current path starts

	gamma float64 // Discount factor ℽ

	// Buffers for storing data
	imageBuffer []float64
	infoBuffer  []float64
	actBuffer   []int
	rewBuffer   []float64
	retBuffer   []float64
}

// New creates and returns a new Buffer holding at most size
// transitions
func New(imageSize, infoSize, size int, gamma float64) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("new: size must be positive, have(%v)", size)
	}
	if imageSize < 0 || infoSize < 0 {
		return nil, fmt.Errorf("new: observation sizes must be "+
			"non-negative, have(%v, %v)", imageSize, infoSize)
	}
	if gamma < 0 || gamma > 1 {
		return nil, fmt.Errorf("new: discount must be in [0, 1], have(%v)",
			gamma)
	}

	return &Buffer{
		imageSize:   imageSize,
		infoSize:    infoSize,
		maxSize:     size,
		gamma:       gamma,
		imageBuffer: make([]float64, size*imageSize),
		infoBuffer:  make([]float64, size*infoSize),
		actBuffer:   make([]int, size),
		rewBuffer:   make([]float64, size),
		retBuffer:   make([]float64, size),
	}, nil
}

// Store stores a single transition: the observation, the action taken
// in it, and the reward received
func (b *Buffer) Store(image, info []float64, action int,
	reward float64) error {
	if b.currentPos >= b.maxSize {
		return fmt.Errorf("store: cannot add new transition, buffer at " +
			"maximum capacity")
	}
	if len(image) != b.imageSize {
		return fmt.Errorf("store: illegal image length \n\twant(%v)"+
			"\n\thave(%v)", b.imageSize, len(image))
	}
	if len(info) != b.infoSize {
		return fmt.Errorf("store: illegal info length \n\twant(%v)"+
			"\n\thave(%v)", b.infoSize, len(info))
	}

	start := b.currentPos * b.imageSize
	copy(b.imageBuffer[start:start+b.imageSize], image)

	start = b.currentPos * b.infoSize
	copy(b.infoBuffer[start:start+b.infoSize], info)

	b.actBuffer[b.currentPos] = action
	b.rewBuffer[b.currentPos] = reward
	b.currentPos++
	return nil
}

// FinishPath computes the rewards-to-go of each transition of the
// current path. This should be called at the end of an episode or
// when a path gets cut off, e.g. after a fixed number of steps.
//
// The lastVal argument should be 0 if the path ended because the
// agent reached a terminal state, and otherwise it should be v(s),
// the value estimate of the state the path was cut off in, which
// bootstraps the return of each transition.
func (b *Buffer) FinishPath(lastVal float64) {
	start := b.pathStartIdx
	stop := b.currentPos
	if start == stop {
		fmt.Fprintf(os.Stderr, "Warning: finishing empty path\n")
		return
	}

	rews := make([]float64, stop-start+1)
	copy(rews, b.rewBuffer[start:stop])
	rews[len(rews)-1] = lastVal

	rewsToGo := discountCumSum(mat.NewVecDense(len(rews), rews), b.gamma)
	copy(b.retBuffer[start:stop], rewsToGo[:len(rewsToGo)-1])

	b.pathStartIdx = b.currentPos
}

// Len returns the number of stored transitions
func (b *Buffer) Len() int {
	return b.currentPos
}

// Full returns whether the buffer is at maximum capacity
func (b *Buffer) Full() bool {
	return b.currentPos == b.maxSize
}

// Get returns the stored images, info vectors, actions, and returns,
// and empties the buffer. All paths must be finished before calling
// Get.
func (b *Buffer) Get() ([][]float64, [][]float64, []int, []float64, error) {
	if b.currentPos == 0 {
		return nil, nil, nil, nil, fmt.Errorf("get: buffer empty")
	}
	if b.pathStartIdx != b.currentPos {
		return nil, nil, nil, nil, fmt.Errorf("get: unfinished path of "+
			"length %v", b.currentPos-b.pathStartIdx)
	}

	n := b.currentPos
	images := make([][]float64, n)
	info := make([][]float64, n)
	for i := 0; i < n; i++ {
		images[i] = make([]float64, b.imageSize)
		copy(images[i], b.imageBuffer[i*b.imageSize:(i+1)*b.imageSize])

		info[i] = make([]float64, b.infoSize)
		copy(info[i], b.infoBuffer[i*b.infoSize:(i+1)*b.infoSize])
	}

	actions := make([]int, n)
	copy(actions, b.actBuffer[:n])
	returns := make([]float64, n)
	copy(returns, b.retBuffer[:n])

	b.currentPos = 0
	b.pathStartIdx = 0

	return images, info, actions, returns, nil
}

// discountCumSum computes and returns the discounted cumulative sum
// of all elements of a vector. Given a vector v = [x0 x1 x2 ... xN]
// and discount ℽ, this function computes and returns:
//
// [
//	x0 + ℽ x1 + ℽ^2 x2 + ℽ^3 x3 + ... + ℽ^(N-1) x(N-1) + ℽ^N xN
//	x1 + ℽ^1 x2 + ℽ^2 x3 + ... + ℽ^(N-2) x(N-1) + ℽ^(N-1) xN
//	x2 + ℽ^1 x3 + ... + ℽ^(N-3) x(N-1) + ℽ^(N-2) xN
// ...
// xN
// ]
func discountCumSum(x *mat.VecDense, discount float64) []float64 {
	discounts := mat.NewVecDense(x.Len(), nil)
	cumSums := make([]float64, x.Len())
	nextScaledRews := mat.NewVecDense(x.Len(), nil)
	backing := nextScaledRews.RawVector().Data

	for i := 0; i < x.Len(); i++ {
		discounts.ScaleVec(discount, discounts)
		discounts.SetVec(x.Len()-i-1, 1)

		nextScaledRews.MulElemVec(discounts, x)
		cumSums[x.Len()-i-1] = floats.Sum(backing[x.Len()-i-1:])
	}

	return cumSums
}
