package tracker

import (
	"os"
	"path/filepath"
	"testing"

	ts "github.com/samuelfneumann/goa3c/timestep"
	"gonum.org/v1/gonum/floats"
)

func TestReturn(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "returns.bin")
	r := NewReturn(filename)

	steps := []ts.TimeStep{
		ts.New(ts.Mid, 1, nil, nil, 1),
		ts.New(ts.Last, 2, nil, nil, 2),
		ts.New(ts.Mid, -1, nil, nil, 1),
		ts.New(ts.Mid, 0.5, nil, nil, 2),
		ts.New(ts.Last, 0, nil, nil, 3),
		ts.New(ts.Mid, 100, nil, nil, 1), // Unfinished episode
	}
	for _, step := range steps {
		r.Track(Record{TimeStep: step})
	}

	want := []float64{3, -0.5}
	if !floats.Equal(r.Data(), want) {
		t.Errorf("returns \n\twant(%v)\n\thave(%v)", want, r.Data())
	}

	if err := r.Save(); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadData(filename)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.Equal(loaded, want) {
		t.Errorf("loaded returns \n\twant(%v)\n\thave(%v)", want, loaded)
	}
}

func TestLoss(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "loss.bin")
	l := NewLoss(filename)

	l.Track(Record{Loss: 10})
	l.Track(Record{Updated: true, Loss: 1.5})
	l.Track(Record{Updated: true, Loss: 0.5})

	want := []float64{1.5, 0.5}
	if !floats.Equal(l.Data(), want) {
		t.Errorf("losses \n\twant(%v)\n\thave(%v)", want, l.Data())
	}

	if err := l.Save(); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadData(filename)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.Equal(loaded, want) {
		t.Errorf("loaded losses \n\twant(%v)\n\thave(%v)", want, loaded)
	}
}

func TestMovingAverage(t *testing.T) {
	have := movingAverage([]float64{1, 3, 5, 7, 9}, 2)
	want := []float64{1, 2, 4, 6, 8}
	if !floats.EqualApprox(have, want, 1e-12) {
		t.Errorf("moving average \n\twant(%v)\n\thave(%v)", want, have)
	}
}

func TestPlot(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "returns.png")
	data := []float64{1, 0, 2, 3, 2, 4, 5}

	if err := Plot(filename, "Returns", "Return", data, 3); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(filename)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Error("empty plot saved")
	}

	if err := Plot(filename, "Returns", "Return", nil, 1); err == nil {
		t.Error("plotted empty data")
	}
}
