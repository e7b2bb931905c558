// Package config models planline.yml: the tunables the pipeline treats as
// contract rather than hardcoded constants (routing penalties, adjacency
// tolerance, lighting defaults, stage timeouts).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models planline.yml.
type Config struct {
	Routing struct {
		// DoorPenalty and BearingWallPenalty are added to the Euclidean
		// weight of any graph edge crossing an opening of that kind.
		DoorPenalty        float64 `yaml:"door_penalty"`
		BearingWallPenalty float64 `yaml:"bearing_wall_penalty"`
		// AdjacencyTolerance is the max distance at which two boundary
		// segments of different rooms count as the same shared wall.
		AdjacencyTolerance float64 `yaml:"adjacency_tolerance"`
		// OpeningTolerance is the max distance between an edge and an
		// opening for the edge to count as crossing it.
		OpeningTolerance float64 `yaml:"opening_tolerance"`
		// NodePrecision is the decimal precision node coordinates are
		// rounded to before deduplication.
		NodePrecision int `yaml:"node_precision"`
	} `yaml:"routing"`

	Lighting struct {
		TargetLux         float64 `yaml:"target_lux"`
		EfficacyLmPerW    float64 `yaml:"efficacy_lm_per_w"`
		MaintenanceFactor float64 `yaml:"maintenance_factor"`
		UtilizationFactor float64 `yaml:"utilization_factor"`
	} `yaml:"lighting"`

	Placement struct {
		// SkipRoomTypes lists room types that receive no devices unless a
		// per-room target explicitly mandates one.
		SkipRoomTypes []string `yaml:"skip_room_types"`
		// MinCornerOffset and MinDoorOffset drive placement warnings for
		// devices sitting too close to a corner or a door.
		MinCornerOffset float64 `yaml:"min_corner_offset"`
		MinDoorOffset   float64 `yaml:"min_door_offset"`
	} `yaml:"placement"`

	Engine struct {
		StageTimeoutSeconds int `yaml:"stage_timeout_seconds"`
	} `yaml:"engine"`

	Export struct {
		// Dir is where artifacts are written; empty means the workspace
		// exports directory.
		Dir string `yaml:"dir"`
	} `yaml:"export"`
}

// Default returns the documented default tunables.
func Default() *Config {
	var cfg Config
	cfg.Routing.DoorPenalty = 3.0
	cfg.Routing.BearingWallPenalty = 12.0
	cfg.Routing.AdjacencyTolerance = 0.05
	cfg.Routing.OpeningTolerance = 0.25
	cfg.Routing.NodePrecision = 1
	cfg.Lighting.TargetLux = 300
	cfg.Lighting.EfficacyLmPerW = 110
	cfg.Lighting.MaintenanceFactor = 0.8
	cfg.Lighting.UtilizationFactor = 0.6
	cfg.Placement.SkipRoomTypes = []string{"corridor", "utility"}
	cfg.Placement.MinCornerOffset = 0.1
	cfg.Placement.MinDoorOffset = 0.15
	cfg.Engine.StageTimeoutSeconds = 30
	return &cfg
}

// StageTimeout returns the per-stage execution budget.
func (c *Config) StageTimeout() time.Duration {
	if c.Engine.StageTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Engine.StageTimeoutSeconds) * time.Second
}

// SkipRoomType reports whether the placer should leave rooms of this type
// empty by default.
func (c *Config) SkipRoomType(roomType string) bool {
	for _, t := range c.Placement.SkipRoomTypes {
		if t == roomType {
			return true
		}
	}
	return false
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Routing.DoorPenalty < 0 || c.Routing.BearingWallPenalty < 0 {
		return fmt.Errorf("routing penalties must be non-negative")
	}
	if c.Routing.BearingWallPenalty < c.Routing.DoorPenalty {
		return fmt.Errorf("bearing wall penalty must be >= door penalty")
	}
	if c.Routing.AdjacencyTolerance <= 0 {
		return fmt.Errorf("routing.adjacency_tolerance must be positive")
	}
	if c.Routing.OpeningTolerance <= 0 {
		return fmt.Errorf("routing.opening_tolerance must be positive")
	}
	if c.Routing.NodePrecision < 0 || c.Routing.NodePrecision > 9 {
		return fmt.Errorf("routing.node_precision must be in [0,9]")
	}
	if c.Lighting.TargetLux <= 0 {
		return fmt.Errorf("lighting.target_lux must be positive")
	}
	if c.Lighting.EfficacyLmPerW <= 0 {
		return fmt.Errorf("lighting.efficacy_lm_per_w must be positive")
	}
	if c.Lighting.MaintenanceFactor <= 0 || c.Lighting.MaintenanceFactor > 1 {
		return fmt.Errorf("lighting.maintenance_factor must be in (0,1]")
	}
	if c.Lighting.UtilizationFactor <= 0 || c.Lighting.UtilizationFactor > 1 {
		return fmt.Errorf("lighting.utilization_factor must be in (0,1]")
	}
	if c.Engine.StageTimeoutSeconds < 0 {
		return fmt.Errorf("engine.stage_timeout_seconds must be non-negative")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "planline.yml")
}

// Load reads config from the workspace, falling back to defaults when the
// file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys
// keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}
