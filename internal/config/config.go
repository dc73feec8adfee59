package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the checked-in defaults file. The Get* accessors
// carry the same defaults, so a missing or partial file is safe.
const DefaultConfigPath = "config/ar.defaults.json"

const maxFileSize = 1 * 1024 * 1024

// Depth modes.
const (
	DepthAutomatic = "automatic"
	DepthDisabled  = "disabled"
)

// Light estimation modes.
const (
	LightEnvironmentalHDR = "environmental_hdr"
	LightAmbientIntensity = "ambient_intensity"
	LightEstimationOff    = "disabled"
)

// Anchor eviction policies.
const (
	EvictStoppedFirst = "stopped_first"
	EvictFIFO         = "fifo"
)

// Config is the runtime configuration. Every field is optional; nil fields
// take the default returned by the matching Get* method.
type Config struct {
	// Anchors and hit testing
	MaxAnchors                *int     `json:"max_anchors,omitempty" yaml:"max_anchors,omitempty"`
	EvictionPolicy            *string  `json:"eviction_policy,omitempty" yaml:"eviction_policy,omitempty"`
	InstantPlacement          *bool    `json:"instant_placement,omitempty" yaml:"instant_placement,omitempty"`
	ApproximateDistanceMeters *float64 `json:"approximate_distance_meters,omitempty" yaml:"approximate_distance_meters,omitempty"`
	TapQueueSize              *int     `json:"tap_queue_size,omitempty" yaml:"tap_queue_size,omitempty"`

	// Projection
	ZNear *float64 `json:"z_near,omitempty" yaml:"z_near,omitempty"`
	ZFar  *float64 `json:"z_far,omitempty" yaml:"z_far,omitempty"`

	// Tracker session
	DepthMode         *string `json:"depth_mode,omitempty" yaml:"depth_mode,omitempty"`
	LightEstimation   *string `json:"light_estimation,omitempty" yaml:"light_estimation,omitempty"`
	CubemapResolution *int    `json:"cubemap_resolution,omitempty" yaml:"cubemap_resolution,omitempty"`
	CubemapSamples    *int    `json:"cubemap_samples,omitempty" yaml:"cubemap_samples,omitempty"`
	FrameInterval     *string `json:"frame_interval,omitempty" yaml:"frame_interval,omitempty"` // duration string like "33ms"

	// Outputs
	ProjectName     *string `json:"project_name,omitempty" yaml:"project_name,omitempty"`
	OutputDir       *string `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	LogDir          *string `json:"log_dir,omitempty" yaml:"log_dir,omitempty"`
	DatabasePath    *string `json:"database_path,omitempty" yaml:"database_path,omitempty"`
	TelemetryBuffer *int    `json:"telemetry_buffer,omitempty" yaml:"telemetry_buffer,omitempty"`
}

// Empty returns a Config with every field unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a .json, .yaml or .yml file of at most 1MB and
// validates it. Omitted fields keep their defaults.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(cleanPath), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields that are set.
func (c *Config) Validate() error {
	if c.MaxAnchors != nil && *c.MaxAnchors < 1 {
		return fmt.Errorf("max_anchors must be at least 1, got %d", *c.MaxAnchors)
	}
	if c.EvictionPolicy != nil {
		switch *c.EvictionPolicy {
		case EvictStoppedFirst, EvictFIFO:
		default:
			return fmt.Errorf("eviction_policy must be %q or %q, got %q", EvictStoppedFirst, EvictFIFO, *c.EvictionPolicy)
		}
	}
	if c.ApproximateDistanceMeters != nil && *c.ApproximateDistanceMeters <= 0 {
		return fmt.Errorf("approximate_distance_meters must be positive, got %f", *c.ApproximateDistanceMeters)
	}
	if c.TapQueueSize != nil && *c.TapQueueSize < 1 {
		return fmt.Errorf("tap_queue_size must be at least 1, got %d", *c.TapQueueSize)
	}
	if c.TelemetryBuffer != nil && *c.TelemetryBuffer < 1 {
		return fmt.Errorf("telemetry_buffer must be at least 1, got %d", *c.TelemetryBuffer)
	}

	near, far := c.GetZNear(), c.GetZFar()
	if near <= 0 {
		return fmt.Errorf("z_near must be positive, got %f", near)
	}
	if far <= near {
		return fmt.Errorf("z_far (%f) must be greater than z_near (%f)", far, near)
	}

	if c.DepthMode != nil {
		switch *c.DepthMode {
		case DepthAutomatic, DepthDisabled:
		default:
			return fmt.Errorf("depth_mode must be %q or %q, got %q", DepthAutomatic, DepthDisabled, *c.DepthMode)
		}
	}
	if c.LightEstimation != nil {
		switch *c.LightEstimation {
		case LightEnvironmentalHDR, LightAmbientIntensity, LightEstimationOff:
		default:
			return fmt.Errorf("unknown light_estimation %q", *c.LightEstimation)
		}
	}
	if c.CubemapResolution != nil && *c.CubemapResolution < 1 {
		return fmt.Errorf("cubemap_resolution must be at least 1, got %d", *c.CubemapResolution)
	}
	if c.CubemapSamples != nil && *c.CubemapSamples < 1 {
		return fmt.Errorf("cubemap_samples must be at least 1, got %d", *c.CubemapSamples)
	}
	if c.FrameInterval != nil && *c.FrameInterval != "" {
		d, err := time.ParseDuration(*c.FrameInterval)
		if err != nil {
			return fmt.Errorf("invalid frame_interval '%s': %w", *c.FrameInterval, err)
		}
		if d < 0 {
			return fmt.Errorf("frame_interval must not be negative, got %s", d)
		}
	}
	if c.ProjectName != nil && *c.ProjectName == "" {
		return fmt.Errorf("project_name must not be empty")
	}
	return nil
}

// GetMaxAnchors returns max_anchors or the default 20.
func (c *Config) GetMaxAnchors() int {
	if c.MaxAnchors == nil {
		return 20
	}
	return *c.MaxAnchors
}

// GetEvictionPolicy returns eviction_policy or the default stopped_first.
func (c *Config) GetEvictionPolicy() string {
	if c.EvictionPolicy == nil {
		return EvictStoppedFirst
	}
	return *c.EvictionPolicy
}

// GetInstantPlacement returns instant_placement or the default false.
func (c *Config) GetInstantPlacement() bool {
	if c.InstantPlacement == nil {
		return false
	}
	return *c.InstantPlacement
}

// GetApproximateDistanceMeters returns approximate_distance_meters or the
// default 1.0.
func (c *Config) GetApproximateDistanceMeters() float64 {
	if c.ApproximateDistanceMeters == nil {
		return 1.0
	}
	return *c.ApproximateDistanceMeters
}

// GetTapQueueSize returns tap_queue_size or the default 16.
func (c *Config) GetTapQueueSize() int {
	if c.TapQueueSize == nil {
		return 16
	}
	return *c.TapQueueSize
}

// GetZNear returns z_near or the default 0.1.
func (c *Config) GetZNear() float64 {
	if c.ZNear == nil {
		return 0.1
	}
	return *c.ZNear
}

// GetZFar returns z_far or the default 80.
func (c *Config) GetZFar() float64 {
	if c.ZFar == nil {
		return 80.0
	}
	return *c.ZFar
}

// GetDepthMode returns depth_mode or the default automatic.
func (c *Config) GetDepthMode() string {
	if c.DepthMode == nil {
		return DepthAutomatic
	}
	return *c.DepthMode
}

// GetLightEstimation returns light_estimation or the default
// environmental_hdr.
func (c *Config) GetLightEstimation() string {
	if c.LightEstimation == nil {
		return LightEnvironmentalHDR
	}
	return *c.LightEstimation
}

// GetCubemapResolution returns cubemap_resolution or the default 16.
func (c *Config) GetCubemapResolution() int {
	if c.CubemapResolution == nil {
		return 16
	}
	return *c.CubemapResolution
}

// GetCubemapSamples returns cubemap_samples or the default 64.
func (c *Config) GetCubemapSamples() int {
	if c.CubemapSamples == nil {
		return 64
	}
	return *c.CubemapSamples
}

// GetFrameInterval returns frame_interval, or 0 (run as fast as the
// tracker delivers) when unset or unparsable.
func (c *Config) GetFrameInterval() time.Duration {
	if c.FrameInterval == nil || *c.FrameInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(*c.FrameInterval)
	if err != nil {
		return 0
	}
	return d
}

// GetProjectName returns project_name or the default "Default".
func (c *Config) GetProjectName() string {
	if c.ProjectName == nil {
		return "Default"
	}
	return *c.ProjectName
}

// GetOutputDir returns output_dir or the default "recordings".
func (c *Config) GetOutputDir() string {
	if c.OutputDir == nil || *c.OutputDir == "" {
		return "recordings"
	}
	return *c.OutputDir
}

// GetLogDir returns log_dir or the default "logs".
func (c *Config) GetLogDir() string {
	if c.LogDir == nil || *c.LogDir == "" {
		return "logs"
	}
	return *c.LogDir
}

// GetDatabasePath returns database_path. Empty disables the journal.
func (c *Config) GetDatabasePath() string {
	if c.DatabasePath == nil {
		return ""
	}
	return *c.DatabasePath
}

// GetTelemetryBuffer returns telemetry_buffer or the default 64.
func (c *Config) GetTelemetryBuffer() int {
	if c.TelemetryBuffer == nil {
		return 64
	}
	return *c.TelemetryBuffer
}
