package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	perrors "petsysrecon/pkg/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Detector.Pixels != 8 || cfg.Detector.Rotations != 12 {
		t.Errorf("Expected detector 8x12, got %dx%d", cfg.Detector.Pixels, cfg.Detector.Rotations)
	}
	if cfg.DistanceBins() != 15 {
		t.Errorf("Expected 15 distance bins, got %d", cfg.DistanceBins())
	}
	if cfg.AngleBins() != 180 {
		t.Errorf("Expected 180 angle bins, got %d", cfg.AngleBins())
	}
	if cfg.Reconstruction.Iterations != 2 || cfg.Reconstruction.Subsets != 3 {
		t.Errorf("Expected 2 iterations and 3 subsets, got %d and %d",
			cfg.Reconstruction.Iterations, cfg.Reconstruction.Subsets)
	}
	if cfg.Energy.Window2 != cfg.Energy.Window1 {
		t.Errorf("Expected second window to default to the first")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Reconstruction.Geometry != "LineIntegral" {
		t.Errorf("Expected default geometry, got %q", cfg.Reconstruction.Geometry)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "petsys.yaml")

	cfg := DefaultConfig()
	cfg.Reconstruction.Geometry = "Rotation"
	cfg.Reconstruction.Algorithm = "osem"
	cfg.Energy.Window2 = Range{Min: 400, Max: 600}
	cfg.Binning.RadialRange = []float64{-7.5, 7.5}

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Reconstruction.Geometry != "Rotation" || loaded.Reconstruction.Algorithm != "osem" {
		t.Errorf("Reconstruction section not preserved: %+v", loaded.Reconstruction)
	}
	if loaded.Energy.Window2.Min != 400 || loaded.Energy.Window2.Max != 600 {
		t.Errorf("Energy window not preserved: %+v", loaded.Energy.Window2)
	}
	if len(loaded.Binning.RadialRange) != 2 || loaded.Binning.RadialRange[1] != 7.5 {
		t.Errorf("Radial range not preserved: %v", loaded.Binning.RadialRange)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	content := "reconstruction:\n  algorithm: fbp\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Reconstruction.Algorithm != "fbp" {
		t.Errorf("Expected fbp, got %q", cfg.Reconstruction.Algorithm)
	}
	if cfg.Reconstruction.Subsets != 3 {
		t.Errorf("Expected default subsets to survive, got %d", cfg.Reconstruction.Subsets)
	}
}

func TestSecondWindowFollowsFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "window.yaml")
	content := "energy:\n  window1: {min: 400, max: 600}\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	want := Range{Min: 400, Max: 600}
	if cfg.Energy.Window1 != want || cfg.Energy.Window2 != want {
		t.Errorf("Expected both windows %v, got %v and %v", want, cfg.Energy.Window1, cfg.Energy.Window2)
	}

	content = "energy:\n  window1: {min: 400, max: 600}\n  window2: {min: 450, max: 550}\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Energy.Window2 != (Range{Min: 450, Max: 550}) {
		t.Errorf("Explicit second window not kept: %v", cfg.Energy.Window2)
	}
}

func TestEmptyBinningRangesMeanDataEdges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranges.yaml")
	content := "binning:\n  radialRange: []\n  angleRange: []\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Binning.RadialRange != nil || cfg.Binning.AngleRange != nil {
		t.Errorf("Expected nil ranges, got %v and %v", cfg.Binning.RadialRange, cfg.Binning.AngleRange)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("detector: [1, 2"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero iterations", func(c *Config) { c.Reconstruction.Iterations = 0 }},
		{"negative subsets", func(c *Config) { c.Reconstruction.Subsets = -1 }},
		{"zero cores", func(c *Config) { c.Processing.NumCores = 0 }},
		{"zero pixels", func(c *Config) { c.Detector.Pixels = 0 }},
		{"inverted window", func(c *Config) { c.Energy.Window1 = Range{Min: 600, Max: 400} }},
		{"short radial range", func(c *Config) { c.Binning.RadialRange = []float64{1} }},
		{"inverted angle range", func(c *Config) { c.Binning.AngleRange = []float64{180, 0} }},
		{"degenerate radial range", func(c *Config) { c.Binning.RadialRange = []float64{2, 2} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, perrors.ErrConfiguration) {
				t.Errorf("Expected configuration error, got %v", err)
			}
		})
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("CreateDefaultConfigFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Config file was not created: %v", err)
	}
}
