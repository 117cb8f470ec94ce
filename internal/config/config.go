// Package config provides configuration loading and management for nrea-mcp.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/nrea-snr-mcp/internal/imaging"
	"github.com/ironsheep/nrea-snr-mcp/internal/logging"
	"github.com/ironsheep/nrea-snr-mcp/internal/nrea"
)

// DefaultVariant is the center variant used when none is requested.
const DefaultVariant = "original"

// Device describes a measurement setup: the light source radius and its
// center in each image variant (original, cropped2, ...).
type Device struct {
	Radius  int                   `yaml:"radius" json:"radius"`
	Centers map[string]nrea.Point `yaml:"centers" json:"centers"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Workers bounds concurrent frame compensation. 0 uses every CPU.
	Workers int `yaml:"workers"`

	Log struct {
		// Level is one of debug, info, warn, error.
		Level string `yaml:"level"`

		// JSON switches from the console writer to JSON lines.
		JSON bool `yaml:"json"`
	} `yaml:"log"`

	NREA struct {
		// Kernel is CA (circular average) or GB (Gaussian blur).
		Kernel string `yaml:"kernel"`

		// KernelRadius is the low-pass radius in pixels.
		KernelRadius int `yaml:"kernelRadius"`
	} `yaml:"nrea"`

	SNR struct {
		// ROIShape is disk or square.
		ROIShape string `yaml:"roiShape"`

		// NoiseMode is pooled or image.
		NoiseMode string `yaml:"noiseMode"`

		// BackgroundOffset is added to the radius to get the inner radius of
		// the background. Unset means the radius itself.
		BackgroundOffset *int `yaml:"backgroundOffset,omitempty"`
	} `yaml:"snr"`

	Output struct {
		// BitDepth of written images, 8 or 16.
		BitDepth int `yaml:"bitDepth"`

		// Normalize stretches results onto the full output range.
		Normalize bool `yaml:"normalize"`
	} `yaml:"output"`

	Input struct {
		// Channel extracted from color sources: gray, red, green or blue.
		Channel string `yaml:"channel"`
	} `yaml:"input"`

	Devices map[string]Device `yaml:"devices"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Workers = 0
	cfg.Log.Level = "info"
	cfg.NREA.Kernel = "CA"
	cfg.NREA.KernelRadius = 50
	cfg.SNR.ROIShape = "disk"
	cfg.SNR.NoiseMode = "pooled"
	cfg.Output.BitDepth = 16
	cfg.Output.Normalize = true
	cfg.Input.Channel = "gray"

	cfg.Devices = map[string]Device{
		"Huawei P20": {Radius: 80, Centers: map[string]nrea.Point{
			"original": {X: 1440, Y: 2040},
			"cropped2": {X: 720, Y: 800},
		}},
		"Xiaomi 13 Pro": {Radius: 80, Centers: map[string]nrea.Point{
			"original": {X: 1540, Y: 2070},
			"cropped4": {X: 370, Y: 390},
		}},
		"Arducam": {Radius: 80, Centers: map[string]nrea.Point{
			"original": {X: 1250, Y: 1060},
		}},
		"OV": {Radius: 10, Centers: map[string]nrea.Point{
			"original": {X: 160, Y: 145},
		}},
	}

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()
	if configPath == "" {
		return cfg, nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Devices listed in the file replace the built-in registry entirely.
	var fileDevices struct {
		Devices map[string]Device `yaml:"devices"`
	}
	if err := yaml.Unmarshal(data, &fileDevices); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if fileDevices.Devices != nil {
		cfg.Devices = nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// Validate checks every option and returns the first problem found.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers %d must not be negative", c.Workers)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if _, err := c.Kernel(); err != nil {
		return err
	}
	if _, err := c.SNROptions(nrea.Region{Radius: 1}); err != nil {
		return err
	}
	if c.Output.BitDepth != 8 && c.Output.BitDepth != 16 {
		return fmt.Errorf("output.bitDepth %d must be 8 or 16", c.Output.BitDepth)
	}
	if _, err := c.Channel(); err != nil {
		return fmt.Errorf("input.channel: %w", err)
	}
	for name, d := range c.Devices {
		if d.Radius < 1 {
			return fmt.Errorf("device %q: radius %d must be at least 1", name, d.Radius)
		}
		if len(d.Centers) == 0 {
			return fmt.Errorf("device %q has no centers", name)
		}
	}
	return nil
}

// Kernel returns the configured low-pass kernel.
func (c *Config) Kernel() (nrea.Kernel, error) {
	kind, err := nrea.ParseKernelKind(c.NREA.Kernel)
	if err != nil {
		return nrea.Kernel{}, err
	}
	k := nrea.Kernel{Kind: kind, Radius: c.NREA.KernelRadius}
	if err := k.Validate(); err != nil {
		return nrea.Kernel{}, err
	}
	return k, nil
}

// SNROptions combines region with the configured ROI shape, noise mode and
// background offset.
func (c *Config) SNROptions(region nrea.Region) (nrea.SNROptions, error) {
	shape, err := nrea.ParseROIShape(c.SNR.ROIShape)
	if err != nil {
		return nrea.SNROptions{}, err
	}
	noise, err := nrea.ParseNoiseMode(c.SNR.NoiseMode)
	if err != nil {
		return nrea.SNROptions{}, err
	}
	if c.SNR.BackgroundOffset != nil && *c.SNR.BackgroundOffset < 0 {
		return nrea.SNROptions{}, fmt.Errorf("snr.backgroundOffset %d must not be negative", *c.SNR.BackgroundOffset)
	}
	return nrea.SNROptions{
		Region:           region,
		BackgroundOffset: c.SNR.BackgroundOffset,
		Shape:            shape,
		Noise:            noise,
	}, nil
}

// Channel returns the configured input channel.
func (c *Config) Channel() (imaging.Channel, error) {
	return imaging.ParseChannel(c.Input.Channel)
}

// Region looks up the light source of a device. An empty variant selects
// DefaultVariant, or the only center when the device has just one.
func (c *Config) Region(device, variant string) (nrea.Region, error) {
	d, ok := c.Devices[device]
	if !ok {
		return nrea.Region{}, fmt.Errorf("unknown device %q (known: %s)", device, strings.Join(c.DeviceNames(), ", "))
	}
	if variant == "" {
		variant = DefaultVariant
		if len(d.Centers) == 1 {
			for v := range d.Centers {
				variant = v
			}
		}
	}
	center, ok := d.Centers[variant]
	if !ok {
		return nrea.Region{}, fmt.Errorf("device %q has no center for variant %q", device, variant)
	}
	return nrea.Region{Center: center, Radius: d.Radius}, nil
}

// DeviceNames returns the registered device names in sorted order.
func (c *Config) DeviceNames() []string {
	names := make([]string, 0, len(c.Devices))
	for n := range c.Devices {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
