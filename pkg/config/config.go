// Package config provides configuration loading and management for petsysrecon.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	perrors "petsysrecon/pkg/errors"
)

// Range is an inclusive numeric interval
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many slices are processed concurrently
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Detector describes the scanner geometry
	Detector struct {
		// Pixels is the number of independent crystal positions per panel axis
		Pixels int `yaml:"pixels"`

		// Rotations is the number of discrete gantry positions
		Rotations int `yaml:"rotations"`
	} `yaml:"detector"`

	// Energy holds the acceptance windows in keV for the two hits
	Energy struct {
		Window1 Range `yaml:"window1"`
		Window2 Range `yaml:"window2"`
	} `yaml:"energy"`

	// Binning controls sinogram construction
	Binning struct {
		// Coordinates selects the sinogram convention: "simple" or "anger"
		Coordinates string `yaml:"coordinates"`

		// ClipNegative clamps background-subtracted bins at zero
		ClipNegative bool `yaml:"clipNegative"`

		// RadialRange and AngleRange fix the histogram edges. Empty means
		// the edges follow the data.
		RadialRange []float64 `yaml:"radialRange,omitempty"`
		AngleRange  []float64 `yaml:"angleRange,omitempty"`
	} `yaml:"binning"`

	// Reconstruction parameters
	Reconstruction struct {
		Geometry      string `yaml:"geometry"`
		Algorithm     string `yaml:"algorithm"`
		Iterations    int    `yaml:"iterations"`
		Subsets       int    `yaml:"subsets"`
		Interpolation string `yaml:"interpolation"`
		Filter        string `yaml:"filter"`
	} `yaml:"reconstruction"`

	// Output parameters
	Output struct {
		// Prefix is the output path without extension
		Prefix string `yaml:"prefix"`

		// Formats lists the exporters to run: "npy", "mat"
		Formats []string `yaml:"formats"`

		// PlotDir receives sinogram and image heat maps when set
		PlotDir string `yaml:"plotDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	// Catalog configures the optional run database
	Catalog struct {
		Path string `yaml:"path"`
	} `yaml:"catalog"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU()

	// PETSys benchtop scanner
	cfg.Detector.Pixels = 8
	cfg.Detector.Rotations = 12

	cfg.Energy.Window1 = Range{Min: 490, Max: 530}
	cfg.Energy.Window2 = Range{Min: 490, Max: 530}

	cfg.Binning.Coordinates = "simple"
	cfg.Binning.ClipNegative = true

	cfg.Reconstruction.Geometry = "LineIntegral"
	cfg.Reconstruction.Algorithm = "mlem"
	cfg.Reconstruction.Iterations = 2
	cfg.Reconstruction.Subsets = 3
	cfg.Reconstruction.Interpolation = "bilinear"
	cfg.Reconstruction.Filter = "ramlak"

	cfg.Output.Formats = []string{"npy", "mat"}
	cfg.Output.Verbose = true

	return cfg
}

// DistanceBins returns the number of radial bins, 2P-1.
func (c *Config) DistanceBins() int {
	return 2*c.Detector.Pixels - 1
}

// AngleBins returns the number of angle bins, (2P-1)*R.
func (c *Config) AngleBins() int {
	return c.DistanceBins() * c.Detector.Rotations
}

// Validate checks numeric parameters. Name lookups (geometry, algorithm,
// kernels) are checked by the packages that own them.
func (c *Config) Validate() error {
	if c.Processing.NumCores < 1 {
		return perrors.NewConfigurationError("processing.numCores", "must be positive, got %d", c.Processing.NumCores)
	}
	if c.Detector.Pixels < 1 {
		return perrors.NewConfigurationError("detector.pixels", "must be positive, got %d", c.Detector.Pixels)
	}
	if c.Detector.Rotations < 1 {
		return perrors.NewConfigurationError("detector.rotations", "must be positive, got %d", c.Detector.Rotations)
	}
	for name, w := range map[string]Range{"energy.window1": c.Energy.Window1, "energy.window2": c.Energy.Window2} {
		if err := checkRange(name, []float64{w.Min, w.Max}); err != nil {
			return err
		}
	}
	if c.Reconstruction.Iterations < 1 {
		return perrors.NewConfigurationError("reconstruction.iterations", "must be positive, got %d", c.Reconstruction.Iterations)
	}
	if c.Reconstruction.Subsets < 1 {
		return perrors.NewConfigurationError("reconstruction.subsets", "must be positive, got %d", c.Reconstruction.Subsets)
	}
	if err := checkEdges("binning.radialRange", c.Binning.RadialRange); err != nil {
		return err
	}
	return checkEdges("binning.angleRange", c.Binning.AngleRange)
}

// checkEdges accepts an empty range or [lo, hi] with lo < hi.
func checkEdges(name string, r []float64) error {
	if len(r) == 0 {
		return nil
	}
	if err := checkRange(name, r); err != nil {
		return err
	}
	if r[0] == r[1] {
		return perrors.NewConfigurationError(name, "empty range [%g, %g]", r[0], r[1])
	}
	return nil
}

func checkRange(name string, r []float64) error {
	if len(r) != 2 {
		return perrors.NewConfigurationError(name, "needs exactly two values, got %d", len(r))
	}
	for _, v := range r {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return perrors.NewConfigurationError(name, "bounds must be finite, got %v", r)
		}
	}
	if r[0] > r[1] {
		return perrors.NewConfigurationError(name, "min %g exceeds max %g", r[0], r[1])
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// The second window follows the first unless the file sets it
	var given struct {
		Energy struct {
			Window1 *Range `yaml:"window1"`
			Window2 *Range `yaml:"window2"`
		} `yaml:"energy"`
	}
	if err := yaml.Unmarshal(data, &given); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if given.Energy.Window1 != nil && given.Energy.Window2 == nil {
		cfg.Energy.Window2 = cfg.Energy.Window1
	}

	// radialRange: [] means data-derived edges, the same as leaving it out
	if len(cfg.Binning.RadialRange) == 0 {
		cfg.Binning.RadialRange = nil
	}
	if len(cfg.Binning.AngleRange) == 0 {
		cfg.Binning.AngleRange = nil
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := cfg.Marshal()
	if err != nil {
		return err
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// Marshal renders the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("error marshaling config: %w", err)
	}
	return data, nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
