package main

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/apsFeed/pipeline"
)

// plotImageStats writes a PNG scatter of per-image (mean, stddev) over the
// sampled batches. After standardization the cloud should sit tightly
// around (0, 1); outliers point at malformed records or a wrong shape.
func plotImageStats(outDir string, batches []*pipeline.Batch) error {
	pts := make(plotter.XYs, 0)
	for _, b := range batches {
		for i := 0; i < b.Len(); i++ {
			mean, stddev := meanStddev(b.ImageAt(i))
			pts = append(pts, plotter.XY{X: mean, Y: stddev})
		}
	}
	if len(pts) == 0 {
		return fmt.Errorf("no images to plot")
	}

	p := plot.New()
	p.Title.Text = "Per-image pixel statistics after standardization"
	p.X.Label.Text = "mean"
	p.Y.Label.Text = "stddev"

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	sc.GlyphStyle.Color = color.RGBA{R: 20, G: 80, B: 200, A: 220}
	sc.GlyphStyle.Radius = vg.Points(1.8)
	p.Add(sc, plotter.NewGrid())
	p.Legend.Add("images", sc)

	if err := ensureDir(outDir); err != nil {
		return err
	}
	return p.Save(6*vg.Inch, 6*vg.Inch, filepath.Join(outDir, "image_stats.png"))
}

// plotPixelHistogram writes a PNG histogram of the standardized pixel
// values of one batch.
func plotPixelHistogram(outDir string, b *pipeline.Batch) error {
	vals := make(plotter.Values, len(b.Images))
	for i, v := range b.Images {
		vals[i] = float64(v)
	}

	p := plot.New()
	p.Title.Text = "Standardized pixel value distribution"
	p.X.Label.Text = "value"
	p.Y.Label.Text = "count"

	h, err := plotter.NewHist(vals, 50)
	if err != nil {
		return err
	}
	h.FillColor = color.RGBA{R: 120, G: 120, B: 120, A: 180}
	p.Add(h)

	if err := ensureDir(outDir); err != nil {
		return err
	}
	return p.Save(6*vg.Inch, 4*vg.Inch, filepath.Join(outDir, "pixel_hist.png"))
}

func meanStddev(pix []float32) (mean, stddev float64) {
	if len(pix) == 0 {
		return 0, 0
	}
	var sum, sumSq float64
	for _, v := range pix {
		sum += float64(v)
		sumSq += float64(v) * float64(v)
	}
	mean = sum / float64(len(pix))
	variance := sumSq/float64(len(pix)) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
