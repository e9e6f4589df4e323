package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a JSON and YAML friendly wrapper around time.Duration that
// accepts human readable strings such as "150ms" in configuration files while
// still allowing numeric representations when necessary.
type Duration time.Duration

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalJSON encodes the duration using the canonical string representation.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON decodes a duration from either a string (e.g. "250ms") or a
// numeric value representing nanoseconds. Empty strings and null values decode
// to zero.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("duration: empty value")
	}
	if string(b) == "null" {
		*d = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("duration: decode string: %w", err)
		}
		return d.parse(s)
	}
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*d = Duration(time.Duration(n))
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*d = Duration(time.Duration(f))
		return nil
	}
	return fmt.Errorf("duration: invalid value %s", string(b))
}

// MarshalYAML encodes the duration using the canonical string representation.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML mirrors UnmarshalJSON for YAML scalars.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration: expected scalar, got kind %d", node.Kind)
	}
	if node.Tag == "!!int" {
		var n int64
		if err := node.Decode(&n); err != nil {
			return fmt.Errorf("duration: decode int: %w", err)
		}
		*d = Duration(time.Duration(n))
		return nil
	}
	if node.Tag == "!!null" {
		*d = 0
		return nil
	}
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: parse %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config captures the load-time constants of the terrain streamer.
type Config struct {
	Stream  StreamConfig  `json:"stream" yaml:"stream"`
	Chunk   ChunkConfig   `json:"chunk" yaml:"chunk"`
	Noise   NoiseConfig   `json:"noise" yaml:"noise"`
	Water   WaterConfig   `json:"water" yaml:"water"`
	Terrain []TerrainType `json:"terrain" yaml:"terrain"`
	Atlas   AtlasConfig   `json:"atlas" yaml:"atlas"`
	Shading ShadingConfig `json:"shading" yaml:"shading"`
	Bridge  BridgeConfig  `json:"bridge" yaml:"bridge"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Preview PreviewConfig `json:"preview" yaml:"preview"`
}

type StreamConfig struct {
	TickRate     Duration `json:"tickRate" yaml:"tickRate"`         // e.g. "33ms"
	ViewDistance int      `json:"viewDistance" yaml:"viewDistance"` // chunks on each side of the viewer
	MaxResident  int      `json:"maxResident" yaml:"maxResident"`   // 0 keeps hidden chunks forever
	DrainBatch   int      `json:"drainBatch" yaml:"drainBatch"`     // completions applied per tick, 0 = all
}

type ChunkConfig struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

type NoiseConfig struct {
	Seed          int64      `json:"seed" yaml:"seed"`
	Scale         float64    `json:"scale" yaml:"scale"`
	Octaves       int        `json:"octaves" yaml:"octaves"`
	Persistence   float64    `json:"persistence" yaml:"persistence"`
	Lacunarity    float64    `json:"lacunarity" yaml:"lacunarity"`
	BaseFrequency float64    `json:"baseFrequency" yaml:"baseFrequency"`
	Offset        [2]float64 `json:"offset" yaml:"offset"`
	Basis         string     `json:"basis" yaml:"basis"` // "perlin", "opensimplex" or "value"
	Curve         []CurveKey `json:"curve,omitempty" yaml:"curve,omitempty"`
}

type CurveKey struct {
	Time  float64 `json:"time" yaml:"time"`
	Value float64 `json:"value" yaml:"value"`
}

type WaterConfig struct {
	Enabled     bool        `json:"enabled" yaml:"enabled"`
	Height      int         `json:"height" yaml:"height"`
	Elevation   float64     `json:"elevation" yaml:"elevation"`
	Scale       float64     `json:"scale" yaml:"scale"`
	Speed       [2]float64  `json:"speed" yaml:"speed"`
	RefreshRate Duration    `json:"refreshRate" yaml:"refreshRate"`
	Terrain     TerrainType `json:"terrain" yaml:"terrain"`
}

// TerrainType is one band of the ordered classification table. Faces are
// atlas block ids in the order back, front, top, bottom, left, right.
type TerrainType struct {
	Name         string  `json:"name" yaml:"name"`
	Threshold    float64 `json:"threshold" yaml:"threshold"`
	Color        string  `json:"color" yaml:"color"`
	Transparency float64 `json:"transparency" yaml:"transparency"`
	Faces        [6]int  `json:"faces" yaml:"faces"`
}

type AtlasConfig struct {
	Blocks int `json:"blocks" yaml:"blocks"`
}

type ShadingConfig struct {
	Base          float64 `json:"base" yaml:"base"`
	TopMultiplier float64 `json:"topMultiplier" yaml:"topMultiplier"`
}

const (
	CompressionZstd = "zstd"
	CompressionNone = "none"
)

type BridgeConfig struct {
	Listen       string   `json:"listen" yaml:"listen"` // ":8765", empty disables the bridge
	WriteTimeout Duration `json:"writeTimeout" yaml:"writeTimeout"`
	Compression  string   `json:"compression" yaml:"compression"` // "zstd" or "none"
}

type JournalConfig struct {
	Path string `json:"path" yaml:"path"`
}

type PreviewConfig struct {
	Dir string `json:"dir" yaml:"dir"`
}

// Load reads configuration from a JSON or YAML file if provided. An empty path
// returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := Decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Decode unmarshals data into cfg, picking YAML for .yaml/.yml paths and JSON
// otherwise.
func Decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

func Default() *Config {
	return &Config{
		Stream: StreamConfig{
			TickRate:     Duration(33 * time.Millisecond),
			ViewDistance: 6,
			MaxResident:  0,
			DrainBatch:   0,
		},
		Chunk: ChunkConfig{
			Width:  24,
			Height: 12,
		},
		Noise: NoiseConfig{
			Seed:          1337,
			Scale:         27.6,
			Octaves:       4,
			Persistence:   0.5,
			Lacunarity:    2.0,
			BaseFrequency: 0.5,
			Basis:         "perlin",
		},
		Water: WaterConfig{
			Enabled:     true,
			Height:      4,
			Elevation:   24,
			Scale:       12,
			Speed:       [2]float64{0.6, 0.8},
			RefreshRate: Duration(250 * time.Millisecond),
			Terrain: TerrainType{
				Name:         "water",
				Threshold:    1,
				Color:        "#2e6fbf",
				Transparency: 0.6,
				Faces:        [6]int{15, 15, 15, 15, 15, 15},
			},
		},
		Terrain: DefaultTerrain(),
		Atlas: AtlasConfig{
			Blocks: 4,
		},
		Shading: ShadingConfig{
			Base:          0.1,
			TopMultiplier: 1.25,
		},
		Bridge: BridgeConfig{
			Listen:       ":8765",
			WriteTimeout: Duration(5 * time.Second),
			Compression:  CompressionZstd,
		},
	}
}

// DefaultTerrain returns the built-in stratified bands, lowest first.
func DefaultTerrain() []TerrainType {
	return []TerrainType{
		{Name: "sand", Threshold: 0.25, Color: "#c2b280", Faces: [6]int{4, 4, 4, 4, 4, 4}},
		{Name: "grass", Threshold: 0.55, Color: "#5d9b3d", Faces: [6]int{1, 1, 0, 2, 1, 1}},
		{Name: "dirt", Threshold: 0.7, Color: "#8b5a2b", Faces: [6]int{2, 2, 2, 2, 2, 2}},
		{Name: "stone", Threshold: 0.9, Color: "#8a8a8a", Faces: [6]int{3, 3, 3, 3, 3, 3}},
		{Name: "snow", Threshold: 1.0, Color: "#f2f5f7", Faces: [6]int{6, 6, 5, 2, 6, 6}},
	}
}

func (c *Config) Validate() error {
	if c.Stream.TickRate <= 0 {
		return errors.New("stream.tickRate must be positive")
	}
	if c.Stream.ViewDistance < 1 {
		return errors.New("stream.viewDistance must be at least 1")
	}
	if c.Stream.MaxResident < 0 {
		return errors.New("stream.maxResident cannot be negative")
	}
	if c.Stream.DrainBatch < 0 {
		return errors.New("stream.drainBatch cannot be negative")
	}
	if c.Chunk.Width <= 0 {
		return errors.New("chunk.width must be positive")
	}
	if c.Chunk.Height < 2 {
		return errors.New("chunk.height must be at least 2")
	}
	if c.Noise.Octaves < 1 {
		return errors.New("noise.octaves must be at least 1")
	}
	if c.Noise.Persistence < 0 || c.Noise.Persistence > 1 {
		return errors.New("noise.persistence must be within [0,1]")
	}
	if c.Noise.Lacunarity < 1 {
		return errors.New("noise.lacunarity must be >= 1")
	}
	switch c.Noise.Basis {
	case "", "perlin", "opensimplex", "value":
	default:
		return fmt.Errorf("noise.basis %q is not supported", c.Noise.Basis)
	}
	if c.Atlas.Blocks <= 0 {
		return errors.New("atlas.blocks must be positive")
	}
	if len(c.Terrain) == 0 {
		return errors.New("terrain must define at least one type")
	}
	if len(c.Terrain) > 256 {
		return errors.New("terrain cannot define more than 256 types")
	}
	for i, t := range c.Terrain {
		if err := c.validateFaces(t); err != nil {
			return fmt.Errorf("terrain[%d]: %w", i, err)
		}
	}
	if c.Water.Enabled {
		if c.Water.Height < 2 {
			return errors.New("water.height must be at least 2")
		}
		if c.Water.RefreshRate < 0 {
			return errors.New("water.refreshRate cannot be negative")
		}
		if err := c.validateFaces(c.Water.Terrain); err != nil {
			return fmt.Errorf("water.terrain: %w", err)
		}
	}
	switch c.Bridge.Compression {
	case "", CompressionZstd, CompressionNone:
	default:
		return fmt.Errorf("bridge.compression %q is not supported", c.Bridge.Compression)
	}
	return nil
}

func (c *Config) validateFaces(t TerrainType) error {
	limit := c.Atlas.Blocks * c.Atlas.Blocks
	for face, id := range t.Faces {
		if id < 0 || id >= limit {
			return fmt.Errorf("face %d texture %d outside atlas of %d blocks", face, id, limit)
		}
	}
	return nil
}
