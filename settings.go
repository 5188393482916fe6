package pathtracer

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gekko3d/pathtracer/rt/core"
	"github.com/gekko3d/pathtracer/rt/pipeline"
	"github.com/gekko3d/pathtracer/rt/stages"
	"gopkg.in/yaml.v3"
)

// MaxPixelDensity bounds Settings.PixelDensity and UpdateResolution.
const MaxPixelDensity = 4

// Duration reads Go duration strings such as "300ms" from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

type InteractionSettings struct {
	Enabled bool     `yaml:"enabled"`
	Density float32  `yaml:"density"`
	Delay   Duration `yaml:"delay"`
}

type PostSettings struct {
	Adaptive          bool    `yaml:"adaptive"`
	AdaptiveMinFrames int     `yaml:"adaptive_min_frames"`
	AdaptiveThreshold float32 `yaml:"adaptive_threshold"`
	TemporalAlpha     float32 `yaml:"temporal_alpha"`
	// DenoiseIterations of 0 disables the spatial denoiser.
	DenoiseIterations int  `yaml:"denoise_iterations"`
	TileHighlight     bool `yaml:"tile_highlight"`
	// AsyncDenoise hands the finished image to the background denoiser.
	AsyncDenoise bool `yaml:"async_denoise"`
}

// Settings is the renderer configuration as read from a YAML file.
type Settings struct {
	Width        int     `yaml:"width"`
	Height       int     `yaml:"height"`
	PixelDensity float32 `yaml:"pixel_density"`

	RenderMode string `yaml:"render_mode"`
	TileCount  int    `yaml:"tile_count"`
	TileOrder  string `yaml:"tile_order"`
	MaxSamples int    `yaml:"max_samples"`
	Seed       uint64 `yaml:"seed"`

	Interaction InteractionSettings `yaml:"interaction"`
	Post        PostSettings        `yaml:"post"`

	Debug bool `yaml:"debug"`
	Stats bool `yaml:"stats"`

	Lights []LightConfig `yaml:"lights"`
}

func DefaultSettings() Settings {
	pt := stages.DefaultPathTracerConfig()
	return Settings{
		Width:        1280,
		Height:       720,
		PixelDensity: 1,
		RenderMode:   "progressive",
		TileCount:    pt.TileCount,
		TileOrder:    pt.TileOrder.String(),
		MaxSamples:   pt.MaxSamples,
		Interaction: InteractionSettings{
			Enabled: pt.InteractionModeEnabled,
			Density: pt.InteractionDensity,
			Delay:   Duration(pt.InteractionDelay),
		},
		Post: PostSettings{
			Adaptive:          true,
			AdaptiveMinFrames: 16,
			AdaptiveThreshold: 0.002,
			TemporalAlpha:     0.2,
			DenoiseIterations: 3,
			TileHighlight:     true,
		},
	}
}

// LoadSettings reads path on top of DefaultSettings.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}
	s, err := ParseSettings(data)
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseSettings decodes YAML on top of DefaultSettings and validates the
// result. Keys absent from input keep their defaults.
func ParseSettings(input []byte) (Settings, error) {
	s := DefaultSettings()
	if err := yaml.Unmarshal(input, &s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("settings.width and settings.height must be positive, got %dx%d", s.Width, s.Height)
	}
	if s.PixelDensity <= 0 || s.PixelDensity > MaxPixelDensity {
		return fmt.Errorf("settings.pixel_density must be in (0, %d], got %v", MaxPixelDensity, s.PixelDensity)
	}
	if s.Interaction.Density <= 0 || s.Interaction.Density > MaxPixelDensity {
		return fmt.Errorf("settings.interaction.density must be in (0, %d], got %v", MaxPixelDensity, s.Interaction.Density)
	}
	if s.Interaction.Delay < 0 {
		return errors.New("settings.interaction.delay must not be negative")
	}
	if s.Post.TemporalAlpha <= 0 || s.Post.TemporalAlpha > 1 {
		return fmt.Errorf("settings.post.temporal_alpha must be in (0, 1], got %v", s.Post.TemporalAlpha)
	}
	if s.Post.DenoiseIterations < 0 {
		return fmt.Errorf("settings.post.denoise_iterations must not be negative, got %d", s.Post.DenoiseIterations)
	}
	if _, err := s.PathTracerConfig(); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	for i, l := range s.Lights {
		if _, _, err := l.Build(); err != nil {
			return fmt.Errorf("settings.lights[%d]: %w", i, err)
		}
	}
	return nil
}

// PathTracerConfig converts the render settings for the path tracer stage.
func (s Settings) PathTracerConfig() (stages.PathTracerConfig, error) {
	mode, err := pipeline.ParseRenderMode(s.RenderMode)
	if err != nil {
		return stages.PathTracerConfig{}, err
	}
	order, err := core.ParseTileOrder(s.TileOrder)
	if err != nil {
		return stages.PathTracerConfig{}, err
	}
	cfg := stages.PathTracerConfig{
		RenderMode:             mode,
		TileCount:              s.TileCount,
		TileOrder:              order,
		MaxSamples:             s.MaxSamples,
		InteractionModeEnabled: s.Interaction.Enabled,
		InteractionDensity:     s.Interaction.Density,
		InteractionDelay:       time.Duration(s.Interaction.Delay),
	}
	return cfg, cfg.Validate()
}
