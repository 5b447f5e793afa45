package tracker

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Plot saves a line plot of tracked data to filename. The image format
// is determined by the file extension, e.g. .png or .svg. If window
// is greater than 1, the moving average of the data over the last
// window points is also plotted.
func Plot(filename, title, yLabel string, data []float64, window int) error {
	if len(data) == 0 {
		return fmt.Errorf("plot: no data to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Index"
	p.Y.Label.Text = yLabel

	line, err := plotter.NewLine(points(data))
	if err != nil {
		return fmt.Errorf("plot: could not create line: %v", err)
	}
	line.Color = plotutil.Color(0)
	p.Add(line)
	p.Legend.Add(yLabel, line)

	if window > 1 {
		avg, err := plotter.NewLine(points(movingAverage(data, window)))
		if err != nil {
			return fmt.Errorf("plot: could not create moving average: %v", err)
		}
		avg.Color = plotutil.Color(1)
		avg.Width = vg.Points(2)

		p.Add(avg)
		p.Legend.Add(fmt.Sprintf("Mean of last %v", window), avg)
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, filename); err != nil {
		return fmt.Errorf("plot: could not save plot: %v", err)
	}
	return nil
}

func points(data []float64) plotter.XYs {
	pts := make(plotter.XYs, len(data))
	for i := range data {
		pts[i].X = float64(i)
		pts[i].Y = data[i]
	}
	return pts
}

// movingAverage returns the mean of the previous window elements at
// each index of data. The first indices average over fewer elements.
func movingAverage(data []float64, window int) []float64 {
	avg := make([]float64, len(data))
	sum := 0.0
	for i, v := range data {
		sum += v
		if i >= window {
			sum -= data[i-window]
		}
		n := i + 1
		if n > window {
			n = window
		}
		avg[i] = sum / float64(n)
	}
	return avg
}
