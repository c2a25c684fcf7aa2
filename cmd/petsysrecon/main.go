package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"petsysrecon/internal/catalog"
	"petsysrecon/pkg/config"
)

func main() {
	// Parse command line arguments
	acquisition := flag.String("acquisition", "", "Acquisition event file (.root or .csv)")
	background := flag.String("background", "", "Background event file (.root or .csv)")
	method := flag.String("method", "", "Projector geometry: LineIntegral, Rotation or SystemMatrix")
	algorithm := flag.String("algorithm", "", "Reconstruction algorithm: mlem, osem or fbp")
	iterations := flag.Int("iterations", 0, "Number of iterations (default from config: 2)")
	subsets := flag.Int("subsets", 0, "Number of ordered subsets (default from config: 3)")
	emin := flag.Float64("emin", 0, "Minimum energy of hit 1 in keV (default from config: 490)")
	emax := flag.Float64("emax", 0, "Maximum energy of hit 1 in keV (default from config: 530)")
	emin2 := flag.Float64("emin2", 0, "Minimum energy of hit 2 in keV (defaults to -emin)")
	emax2 := flag.Float64("emax2", 0, "Maximum energy of hit 2 in keV (defaults to -emax)")
	output := flag.String("output", "", "Output path prefix; .npy and .mat are appended")
	configPath := flag.String("config", "petsysrecon.yaml", "Configuration file")
	initConfig := flag.Bool("init-config", false, "Write the default configuration to -config and exit")
	numCores := flag.Int("cores", 0, "Number of slices processed concurrently (default: all CPUs)")
	plotDir := flag.String("plots", "", "Directory for sinogram and image plots")
	catalogPath := flag.String("catalog", "", "sqlite database recording every run")
	simulate := flag.Bool("simulate", false, "Reconstruct simulated point sources instead of reading files")
	seed := flag.Int64("seed", 0, "Random seed for -simulate (default: current time)")
	dumpEvents := flag.String("dump-events", "", "Directory receiving the event tables as CSV")
	listRuns := flag.Int("list-runs", 0, "List the most recent runs in -catalog and exit")
	showRun := flag.String("show-run", "", "Print one run from -catalog with its outputs and metrics and exit")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	if *listRuns > 0 || *showRun != "" {
		if *catalogPath == "" {
			log.Fatalf("-list-runs and -show-run need -catalog")
		}
		var err error
		if *showRun != "" {
			err = printRun(*catalogPath, *showRun)
		} else {
			err = printRuns(*catalogPath, *listRuns)
		}
		if err != nil {
			log.Fatalf("Failed to read run catalog: %v", err)
		}
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags given on the command line override the configuration file
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["method"] {
		cfg.Reconstruction.Geometry = *method
	}
	if set["algorithm"] {
		cfg.Reconstruction.Algorithm = *algorithm
	}
	if set["iterations"] {
		cfg.Reconstruction.Iterations = *iterations
	}
	if set["subsets"] {
		cfg.Reconstruction.Subsets = *subsets
	}
	if set["emin"] {
		cfg.Energy.Window1.Min = *emin
		if !set["emin2"] {
			cfg.Energy.Window2.Min = *emin
		}
	}
	if set["emax"] {
		cfg.Energy.Window1.Max = *emax
		if !set["emax2"] {
			cfg.Energy.Window2.Max = *emax
		}
	}
	if set["emin2"] {
		cfg.Energy.Window2.Min = *emin2
	}
	if set["emax2"] {
		cfg.Energy.Window2.Max = *emax2
	}
	if set["output"] {
		cfg.Output.Prefix = *output
	}
	if set["cores"] {
		cfg.Processing.NumCores = *numCores
	}
	if set["plots"] {
		cfg.Output.PlotDir = *plotDir
	}
	if set["catalog"] {
		cfg.Catalog.Path = *catalogPath
	}
	if *simulate && cfg.Output.Prefix == "" {
		cfg.Output.Prefix = "simulated"
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.Output.Prefix == "" {
		log.Fatalf("An output prefix is required (-output)")
	}
	if !*simulate && (*acquisition == "" || *background == "") {
		flag.Usage()
		os.Exit(1)
	}

	fmt.Println("================================")
	fmt.Println("PETSYS SINOGRAM RECONSTRUCTION")
	fmt.Println("================================")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := &pipeline{
		cfg:         cfg,
		acquisition: *acquisition,
		background:  *background,
		simulate:    *simulate,
		seed:        *seed,
		dumpDir:     *dumpEvents,
	}
	if !set["seed"] {
		app.seed = time.Now().UnixNano()
	}

	var cat *catalog.Catalog
	var run *catalog.Run
	if cfg.Catalog.Path != "" {
		cat, err = catalog.Open(cfg.Catalog.Path)
		if err != nil {
			log.Fatalf("Failed to open run catalog: %v", err)
		}
		defer cat.Close()

		snapshot, err := cfg.Marshal()
		if err != nil {
			log.Printf("Warning: Failed to snapshot configuration: %v", err)
		}
		run = &catalog.Run{
			Acquisition: *acquisition,
			Background:  *background,
			Geometry:    cfg.Reconstruction.Geometry,
			Algorithm:   cfg.Reconstruction.Algorithm,
			Iterations:  cfg.Reconstruction.Iterations,
			Subsets:     cfg.Reconstruction.Subsets,
			ConfigYAML:  string(snapshot),
		}
		if err := cat.StartRun(run); err != nil {
			log.Fatalf("Failed to record run: %v", err)
		}
		fmt.Printf("Run ID: %s\n", run.RunID)
	}

	startTime := time.Now()
	runErr := app.run(ctx)

	if cat != nil {
		for _, f := range app.outputs {
			if err := cat.AddOutput(run.RunID, f.kind, f.path); err != nil {
				log.Printf("Warning: %v", err)
			}
		}
		if err := cat.AddSliceMetrics(run.RunID, app.sliceRecords()); err != nil {
			log.Printf("Warning: %v", err)
		}
		if err := cat.FinishRun(run.RunID, app.slices(), runErr); err != nil {
			log.Printf("Warning: %v", err)
		}
	}
	if runErr != nil {
		log.Fatalf("Reconstruction failed: %v", runErr)
	}

	fmt.Printf("\nReconstruction completed successfully in %.2f seconds!\n", time.Since(startTime).Seconds())
}

// printRuns lists the most recent runs of the catalog at path.
func printRuns(path string, limit int) error {
	cat, err := catalog.Open(path)
	if err != nil {
		return err
	}
	defer cat.Close()

	runs, err := cat.ListRuns(limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  %-9s  %s/%s  %d slices\n",
			r.RunID, time.Unix(0, r.StartedAt).Format(time.RFC3339), r.Status, r.Geometry, r.Algorithm, r.Slices)
	}
	return nil
}

// printRun shows one run with its outputs and per-slice metrics.
func printRun(path, runID string) error {
	cat, err := catalog.Open(path)
	if err != nil {
		return err
	}
	defer cat.Close()

	r, err := cat.GetRun(runID)
	if err != nil {
		return err
	}
	fmt.Printf("Run %s: %s\n", r.RunID, r.Status)
	fmt.Printf("Input: %s minus %s\n", r.Acquisition, r.Background)
	fmt.Printf("Method: %s/%s, %d iterations, %d subsets\n", r.Geometry, r.Algorithm, r.Iterations, r.Subsets)
	if r.FinishedAt > 0 {
		fmt.Printf("Duration: %.2f seconds\n", time.Duration(r.FinishedAt-r.StartedAt).Seconds())
	}
	if r.Error != "" {
		fmt.Printf("Error: %s\n", r.Error)
	}

	outputs, err := cat.Outputs(runID)
	if err != nil {
		return err
	}
	for _, o := range outputs {
		fmt.Printf("  %-6s %s\n", o.Kind, o.Path)
	}
	metrics, err := cat.SliceMetrics(runID)
	if err != nil {
		return err
	}
	for _, m := range metrics {
		fmt.Printf("  slice %3d: residual %.4f, peak at (%d, %d)\n", m.Slice, m.Residual, m.PeakRow, m.PeakCol)
	}
	return nil
}
