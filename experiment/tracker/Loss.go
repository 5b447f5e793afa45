package tracker

// Loss tracks and saves the loss of each update in an experiment
type Loss struct {
	losses   []float64
	filename string
}

// NewLoss creates and returns a new *Loss Tracker
func NewLoss(filename string) *Loss {
	return &Loss{filename: filename}
}

// Track stores the loss of the record if an update was performed
func (l *Loss) Track(rec Record) {
	if rec.Updated {
		l.losses = append(l.losses, rec.Loss)
	}
}

// Data returns the losses tracked so far
func (l *Loss) Data() []float64 {
	return l.losses
}

// Save saves the data tracked by the Loss Tracker to disk.
func (l *Loss) Save() error {
	return save(l.filename, l.losses)
}
