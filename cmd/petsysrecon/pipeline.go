package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	"github.com/cheggaaa/pb/v3"
	"gonum.org/v1/gonum/mat"

	"petsysrecon/internal/catalog"
	"petsysrecon/internal/models"
	"petsysrecon/pkg/config"
	"petsysrecon/pkg/events"
	"petsysrecon/pkg/export"
	"petsysrecon/pkg/phantom"
	"petsysrecon/pkg/projector"
	"petsysrecon/pkg/reconstruction"
	"petsysrecon/pkg/sinogram"
	"petsysrecon/pkg/visualization"
)

type outputFile struct {
	kind string
	path string
}

// pipeline runs binning, reconstruction and output for one invocation.
type pipeline struct {
	cfg         *config.Config
	acquisition string
	background  string
	simulate    bool
	seed        int64

	// dumpDir receives the event tables as CSV when set
	dumpDir string

	volume  *models.Volume
	metrics []reconstruction.SliceMetrics
	outputs []outputFile

	// reference holds the known source image per slice in simulate mode
	reference map[int]*mat.Dense
	quality   map[int]reconstruction.Quality
}

func (p *pipeline) run(ctx context.Context) error {
	cfg := p.cfg

	fg, bg, err := p.loadEvents()
	if err != nil {
		return err
	}
	fmt.Printf("Events: %d acquisition, %d background\n", fg.Len(), bg.Len())

	if p.dumpDir != "" {
		if err := p.dumpEvents(fg, bg); err != nil {
			return err
		}
	}

	coords, err := sinogram.ParseCoordinates(cfg.Binning.Coordinates)
	if err != nil {
		return err
	}
	binner, err := sinogram.NewBinner(sinogram.Options{
		Pixels:    cfg.Detector.Pixels,
		Rotations: cfg.Detector.Rotations,
		Window: sinogram.Window{
			E1Min: cfg.Energy.Window1.Min, E1Max: cfg.Energy.Window1.Max,
			E2Min: cfg.Energy.Window2.Min, E2Max: cfg.Energy.Window2.Max,
		},
		Coordinates:  coords,
		ClipNegative: cfg.Binning.ClipNegative,
		RadialRange:  cfg.Binning.RadialRange,
		AngleRange:   cfg.Binning.AngleRange,
		Workers:      cfg.Processing.NumCores,
	})
	if err != nil {
		return err
	}

	fmt.Println("Step 1: Building sinograms...")
	sino, err := binner.Build(ctx, fg, bg)
	if err != nil {
		return fmt.Errorf("failed to build sinograms: %w", err)
	}
	n, d, a := sino.Shape()
	fmt.Printf("Sinogram shape: (%d, %d, %d)\n", n, d, a)

	params, err := reconstruction.ParamsFromConfig(cfg)
	if err != nil {
		return err
	}
	if cfg.Output.Verbose {
		params.Logger = log.New(os.Stderr, "recon: ", log.LstdFlags)
	}
	rec := reconstruction.NewReconstructor(params)

	fmt.Printf("Step 2: Reconstructing with %s over %s geometry...\n", params.Algorithm, params.Geometry)
	bar := pb.StartNew(n)
	rec.SetProgressCallback(func(completed, total int) { bar.SetCurrent(int64(completed)) })
	vol, err := rec.Reconstruct(ctx, sino)
	bar.Finish()
	if err != nil {
		return fmt.Errorf("failed to reconstruct: %w", err)
	}
	p.volume = vol
	p.metrics = rec.GetMetrics()

	fmt.Printf("\nPer-slice metrics:\n")
	fmt.Printf("==================\n")
	for _, m := range p.metrics {
		fmt.Printf("slice %3d: residual %.4f, peak at (%d, %d)\n", m.Slice, m.Residual, m.PeakRow, m.PeakCol)
	}
	if p.reference != nil {
		p.compare()
	}

	fmt.Println("Step 3: Saving results...")
	files, err := export.Save(cfg.Output.Prefix, cfg.Output.Formats, vol)
	for _, f := range files {
		p.outputs = append(p.outputs, outputFile{kind: filepath.Ext(f)[1:], path: f})
		fmt.Printf("Saved %s\n", f)
	}
	if err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}

	if cfg.Output.PlotDir != "" {
		fmt.Printf("Step 4: Writing plots to %s...\n", cfg.Output.PlotDir)
		plots, err := visualization.PlotAll(sino, vol, projector.EvenAngles(a), cfg.Output.PlotDir)
		if err != nil {
			log.Printf("Warning: Failed to write plots: %v", err)
		}
		for _, f := range plots {
			p.outputs = append(p.outputs, outputFile{kind: "plot", path: f})
		}

		viewer := visualization.NewViewer(vol)
		slices, err := viewer.SaveSliceSequence("z", filepath.Join(cfg.Output.PlotDir, "slices"))
		if err != nil {
			log.Printf("Warning: Failed to save slices: %v", err)
		}
		for _, f := range slices {
			p.outputs = append(p.outputs, outputFile{kind: "slice", path: f})
		}
	}
	return nil
}

// compare scores every reconstructed slice against its simulated source.
func (p *pipeline) compare() {
	p.quality = make(map[int]reconstruction.Quality)
	fmt.Printf("\nPhantom comparison:\n")
	fmt.Printf("===================\n")
	for i, s := range p.volume.Slices {
		ref, ok := p.reference[s]
		if !ok {
			continue
		}
		q := reconstruction.Compare(ref, p.volume.Images[i])
		p.quality[s] = q
		fmt.Printf("slice %3d: RMSE %.4f, correlation %.4f, peak offset %.2f voxels\n", s, q.RMSE, q.Correlation, q.PeakDistance)
	}
}

// loadEvents reads both acquisitions, or simulates them.
func (p *pipeline) loadEvents() (*events.Table, *events.Table, error) {
	if p.simulate {
		fg, bg := p.simulated()
		return fg, bg, nil
	}
	fg, err := events.Open(p.acquisition)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read acquisition: %w", err)
	}
	bg, err := events.Open(p.background)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read background: %w", err)
	}
	return fg, bg, nil
}

// simulated returns point sources in three slices over a flat background
// and records the source images for comparison. Without fixed binning
// ranges the radial axis is pinned to the detector bins so that the sources
// land where the projector expects them.
func (p *pipeline) simulated() (*events.Table, *events.Table) {
	cfg := p.cfg
	size := cfg.DistanceBins()
	bins := float64(size)
	if len(cfg.Binning.RadialRange) == 0 {
		cfg.Binning.RadialRange = []float64{-bins / 2, bins / 2}
	}
	if len(cfg.Binning.AngleRange) == 0 {
		cfg.Binning.AngleRange = []float64{0, 180}
	}

	reach := math.Floor((bins - 1) / 4)
	sources := []phantom.Source{
		{X: 0, Y: 0, Slice: 0, Events: 20000},
		{X: reach, Y: 0, Slice: 1, Events: 20000},
		{X: -reach, Y: reach, Slice: 2, Events: 20000},
	}

	half := (bins - 1) / 2
	p.reference = make(map[int]*mat.Dense)
	slices := make([]int, 0, len(sources))
	for _, src := range sources {
		p.reference[src.Slice] = phantom.Point(size, int(half-src.Y), int(src.X+half), 1)
		slices = append(slices, src.Slice)
	}

	sim := phantom.NewSimulator(cfg.Detector.Pixels, p.seed)
	return sim.Events(sources), sim.Background(slices, 2000, bins/2)
}

// dumpEvents writes both event tables as CSV into dumpDir.
func (p *pipeline) dumpEvents(fg, bg *events.Table) error {
	if err := os.MkdirAll(p.dumpDir, 0755); err != nil {
		return fmt.Errorf("error creating dump directory: %w", err)
	}
	tables := []struct {
		name  string
		table *events.Table
	}{{"acquisition.csv", fg}, {"background.csv", bg}}
	for _, t := range tables {
		path := filepath.Join(p.dumpDir, t.name)
		if err := writeCSVFile(path, t.table); err != nil {
			return err
		}
		p.outputs = append(p.outputs, outputFile{kind: "events", path: path})
	}
	return nil
}

func writeCSVFile(path string, t *events.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	defer f.Close()
	if err := events.WriteCSV(f, t); err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return f.Close()
}

func (p *pipeline) slices() int {
	if p.volume == nil {
		return 0
	}
	return len(p.volume.Images)
}

func (p *pipeline) sliceRecords() []catalog.SliceRecord {
	out := make([]catalog.SliceRecord, len(p.metrics))
	for i, m := range p.metrics {
		out[i] = catalog.SliceRecord{Slice: m.Slice, Residual: m.Residual, PeakRow: m.PeakRow, PeakCol: m.PeakCol}
	}
	return out
}
