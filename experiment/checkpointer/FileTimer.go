package checkpointer

import (
	"fmt"
	"time"
)

// FileTimer returns a filename function for NStep that stamps each
// checkpoint with the time it was written, e.g. a3c-<unix nanoseconds>.bin.
// Use it when several workers checkpoint to the same directory and
// update counts could collide.
func FileTimer(filename, extension string) func() string {
	return func() string {
		return fmt.Sprintf("%v-%v%v", filename, time.Now().UnixNano(),
			extension)
	}
}
