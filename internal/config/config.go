// Package config loads the run configuration and batch plans from JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/lockin.scan/internal/instrument"
	"github.com/banshee-data/lockin.scan/internal/serialmux"
)

// Defaults applied when a field is omitted from the config file.
const (
	DefaultQueryTimeout = 2 * time.Second
	DefaultListen       = "localhost:8090"
	DefaultSimNoise     = 2e-7
)

// DefaultCalibration is written into every saved header unless overridden.
var DefaultCalibration = [2]float64{15, 75}

// ScanConfig is the run configuration. Pointer fields distinguish "unset"
// from zero so the Get* accessors can supply defaults.
type ScanConfig struct {
	// Instrument links
	LockinPort   *string                `json:"lockin_port,omitempty"`
	SynthPort    *string                `json:"synth_port,omitempty"`
	LockinSerial *serialmux.PortOptions `json:"lockin_serial,omitempty"`
	SynthSerial  *serialmux.PortOptions `json:"synth_serial,omitempty"`
	QueryTimeout *string                `json:"query_timeout,omitempty"` // duration string like "2s"

	// Acquisition
	Band           *int      `json:"band,omitempty"`
	SampleRateCode *int      `json:"sample_rate_code,omitempty"`
	Calibration    []float64 `json:"calibration,omitempty"`

	// Outputs
	DBPath  *string `json:"db_path,omitempty"`
	PlotDir *string `json:"plot_dir,omitempty"`
	Listen  *string `json:"listen,omitempty"`

	// Simulated instruments (-dev)
	SimNoise *float64          `json:"sim_noise,omitempty"`
	SimLines []instrument.Line `json:"sim_lines,omitempty"`
}

func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// maxFileSize bounds every JSON file this package reads.
const maxFileSize = 1 * 1024 * 1024 // 1MB

// readJSONFile checks the extension and size of path and decodes it into v.
func readJSONFile(path string, v any) error {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return fmt.Errorf("file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", cleanPath, err)
	}
	if fileInfo.Size() > maxFileSize {
		return fmt.Errorf("%s too large: %d bytes (max %d)", cleanPath, fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", cleanPath, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", cleanPath, err)
	}
	return nil
}

// LoadConfig loads a ScanConfig from a JSON file. Fields omitted from the
// file keep their defaults, so partial configs are safe.
func LoadConfig(path string) (*ScanConfig, error) {
	cfg := &ScanConfig{}
	if err := readJSONFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *ScanConfig) Validate() error {
	if c.LockinSerial != nil {
		if _, err := c.LockinSerial.Normalize(); err != nil {
			return fmt.Errorf("lockin_serial: %w", err)
		}
	}
	if c.SynthSerial != nil {
		if _, err := c.SynthSerial.Normalize(); err != nil {
			return fmt.Errorf("synth_serial: %w", err)
		}
	}
	if c.QueryTimeout != nil && *c.QueryTimeout != "" {
		d, err := time.ParseDuration(*c.QueryTimeout)
		if err != nil {
			return fmt.Errorf("invalid query_timeout '%s': %w", *c.QueryTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("query_timeout must be positive, got %s", d)
		}
	}
	if c.Band != nil {
		if _, err := instrument.Multiplier(*c.Band); err != nil {
			return err
		}
	}
	if c.SampleRateCode != nil {
		if code := *c.SampleRateCode; code < 0 || code > instrument.SampleRateTrigger {
			return fmt.Errorf("sample_rate_code must be between 0 and %d, got %d", instrument.SampleRateTrigger, code)
		}
	}
	if c.Calibration != nil && len(c.Calibration) != 2 {
		return fmt.Errorf("calibration must have exactly 2 values, got %d", len(c.Calibration))
	}
	if c.SimNoise != nil && *c.SimNoise < 0 {
		return fmt.Errorf("sim_noise must be non-negative, got %g", *c.SimNoise)
	}
	for i, l := range c.SimLines {
		if l.FWHM <= 0 {
			return fmt.Errorf("sim_lines[%d]: fwhm_mhz must be positive, got %g", i, l.FWHM)
		}
	}
	return nil
}

// GetLockinPort returns the lock-in device path, or "" when unset.
func (c *ScanConfig) GetLockinPort() string {
	if c.LockinPort == nil {
		return ""
	}
	return *c.LockinPort
}

// GetSynthPort returns the synthesizer device path, or "" when unset.
func (c *ScanConfig) GetSynthPort() string {
	if c.SynthPort == nil {
		return ""
	}
	return *c.SynthPort
}

// GetLockinSerial returns the lock-in serial options; defaults apply when unset.
func (c *ScanConfig) GetLockinSerial() serialmux.PortOptions {
	if c.LockinSerial == nil {
		return serialmux.PortOptions{}
	}
	return *c.LockinSerial
}

// GetSynthSerial returns the synthesizer serial options; defaults apply when unset.
func (c *ScanConfig) GetSynthSerial() serialmux.PortOptions {
	if c.SynthSerial == nil {
		return serialmux.PortOptions{}
	}
	return *c.SynthSerial
}

// GetQueryTimeout returns the per-query instrument timeout.
func (c *ScanConfig) GetQueryTimeout() time.Duration {
	if c.QueryTimeout == nil || *c.QueryTimeout == "" {
		return DefaultQueryTimeout
	}
	d, err := time.ParseDuration(*c.QueryTimeout)
	if err != nil || d <= 0 {
		return DefaultQueryTimeout
	}
	return d
}

// GetBand returns the synthesizer band index.
func (c *ScanConfig) GetBand() int {
	if c.Band == nil {
		return instrument.DefaultBand
	}
	return *c.Band
}

// GetSampleRateCode returns the lock-in buffer rate selector.
func (c *ScanConfig) GetSampleRateCode() int {
	if c.SampleRateCode == nil {
		return instrument.SampleRate512Hz
	}
	return *c.SampleRateCode
}

// GetCalibration returns the header calibration constants.
func (c *ScanConfig) GetCalibration() [2]float64 {
	if len(c.Calibration) != 2 {
		return DefaultCalibration
	}
	return [2]float64{c.Calibration[0], c.Calibration[1]}
}

// GetDBPath returns the archive path, or "" to disable the archive.
func (c *ScanConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

// GetPlotDir returns the PNG output directory. Unset disables plots; an
// empty string writes plots beside the data file.
func (c *ScanConfig) GetPlotDir() (string, bool) {
	if c.PlotDir == nil {
		return "", false
	}
	return *c.PlotDir, true
}

// GetListen returns the monitor listen address.
func (c *ScanConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return DefaultListen
	}
	return *c.Listen
}

// GetSimNoise returns the simulator noise standard deviation in volts.
func (c *ScanConfig) GetSimNoise() float64 {
	if c.SimNoise == nil {
		return DefaultSimNoise
	}
	return *c.SimNoise
}

// GetSimLines returns the simulated absorption lines. With none configured
// a single line near 600 MHz is used.
func (c *ScanConfig) GetSimLines() []instrument.Line {
	if len(c.SimLines) == 0 {
		return []instrument.Line{{Center: 600.05, FWHM: 0.02, Amplitude: 5e-6}}
	}
	return c.SimLines
}
