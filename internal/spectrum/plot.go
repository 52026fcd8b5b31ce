package spectrum

import (
	"fmt"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/lockin.scan/internal/fsutil"
	"github.com/banshee-data/lockin.scan/internal/scan"
	"github.com/banshee-data/lockin.scan/internal/security"
)

// PlotRenderer writes a PNG of every saved window next to its data.
type PlotRenderer struct {
	fs     fsutil.FileSystem
	dir    string
	width  vg.Length
	height vg.Length
}

// NewPlotRenderer renders into dir. An empty dir places images beside the
// destination file.
func NewPlotRenderer(fs fsutil.FileSystem, dir string) *PlotRenderer {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	return &PlotRenderer{fs: fs, dir: dir, width: 10 * vg.Inch, height: 4 * vg.Inch}
}

// PlotPath returns the image path used for a window saved to destination.
func (p *PlotRenderer) PlotPath(destination string, window int) string {
	dir := p.dir
	if dir == "" {
		dir = filepath.Dir(destination)
	}
	base := security.SanitizeFilename(strings.TrimSuffix(filepath.Base(destination), filepath.Ext(destination)))
	return filepath.Join(dir, fmt.Sprintf("%s_w%02d.png", base, window))
}

func (p *PlotRenderer) Save(destination string, spectrum scan.Spectrum, meta scan.Metadata) error {
	if len(spectrum.Frequencies) == 0 || len(spectrum.Frequencies) != len(spectrum.Values) {
		return fmt.Errorf("cannot plot spectrum with %d frequencies and %d values", len(spectrum.Frequencies), len(spectrum.Values))
	}

	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("Window %d: %g-%g MHz, %d passes, %s",
		meta.WindowIndex, meta.Window.Start, meta.Window.Stop, meta.Passes, meta.SensitivityLabel)
	pl.X.Label.Text = "Frequency (MHz)"
	pl.Y.Label.Text = "Lock-in X (V)"
	pl.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(spectrum.Values))
	for i := range pts {
		pts[i] = plotter.XY{X: spectrum.Frequencies[i], Y: spectrum.Values[i]}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Width = vg.Points(1)
	pl.Add(line)

	wt, err := pl.WriterTo(p.width, p.height, "png")
	if err != nil {
		return err
	}

	path := p.PlotPath(destination, meta.WindowIndex)
	if dir := filepath.Dir(path); dir != "." {
		if err := p.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := p.fs.Create(path)
	if err != nil {
		return err
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
