package actorcritic

import "errors"

// A3CError implements errors unique to an actor-critic network
type A3CError struct {
	Op  string
	Err error
}

// Error satisifes the error interface
func (e *A3CError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying cause of the error
func (e *A3CError) Unwrap() error {
	return e.Err
}

var errShapeMismatch = errors.New("shape mismatch")

var errInvalidAction = errors.New("invalid action")

// IsShapeMismatch returns whether or not an error reports that the
// dimensions of an input disagree with the dimensions of the network
// or with the other inputs of the same batch.
func IsShapeMismatch(err error) bool {
	return errors.Is(err, errShapeMismatch)
}

// IsInvalidAction returns whether or not an error reports that an
// action index lies outside of the action space.
func IsInvalidAction(err error) bool {
	return errors.Is(err, errInvalidAction)
}
