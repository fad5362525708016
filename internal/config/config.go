package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kikiluvv/splice/pkg/util"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	WorkDir string `yaml:"work_dir"`
	TempDir string `yaml:"temp_dir"`

	FFmpeg   FFmpegConfig   `yaml:"ffmpeg"`
	Timeline TimelineConfig `yaml:"timeline"`
	Preview  PreviewConfig  `yaml:"preview"`
	Ingest   IngestConfig   `yaml:"ingest"`
}

type FFmpegConfig struct {
	BinaryPath      string `yaml:"binary_path"`
	ProbePath       string `yaml:"probe_path"`
	Threads         int    `yaml:"threads"`
	Preset          string `yaml:"preset"`
	CRF             int    `yaml:"crf"`
	VideoCodec      string `yaml:"video_codec"`
	AudioCodec      string `yaml:"audio_codec"`
	PixelFormat     string `yaml:"pixel_format"`
	FPS             int    `yaml:"fps"`
	BackgroundColor string `yaml:"background_color"`
}

// TimelineConfig holds defaults applied when clips are placed.
type TimelineConfig struct {
	DefaultStillDuration time.Duration `yaml:"default_still_duration"`
	DefaultFontSize      float64       `yaml:"default_font_size"`
	DefaultFontFamily    string        `yaml:"default_font_family"`
	DefaultColor         string        `yaml:"default_color"`
}

type PreviewConfig struct {
	FrameRate      int           `yaml:"frame_rate"`
	DriftTolerance time.Duration `yaml:"drift_tolerance"`
	Width          float32       `yaml:"width"`
	Height         float32       `yaml:"height"`
}

type IngestConfig struct {
	WatchDir string        `yaml:"watch_dir"`
	Debounce time.Duration `yaml:"debounce"`
}

// Load reads configuration from file or returns defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate rejects values the editor cannot run with.
func (c *Config) Validate() error {
	if c.Timeline.DefaultStillDuration <= 0 {
		return fmt.Errorf("timeline.default_still_duration must be positive")
	}
	if c.Preview.FrameRate <= 0 {
		return fmt.Errorf("preview.frame_rate must be positive")
	}
	if c.Preview.DriftTolerance < 0 {
		return fmt.Errorf("preview.drift_tolerance cannot be negative")
	}
	if c.FFmpeg.CRF < 0 || c.FFmpeg.CRF > 51 {
		return fmt.Errorf("ffmpeg.crf must be between 0 and 51")
	}
	if c.FFmpeg.FPS <= 0 {
		return fmt.Errorf("ffmpeg.fps must be positive")
	}
	if _, err := util.ParseColor(c.Timeline.DefaultColor); err != nil {
		return fmt.Errorf("timeline.default_color: %w", err)
	}
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		WorkDir: "./work",
		TempDir: os.TempDir(),
		FFmpeg: FFmpegConfig{
			BinaryPath:      "ffmpeg",
			ProbePath:       "ffprobe",
			Threads:         0,
			Preset:          "medium",
			CRF:             23,
			VideoCodec:      "libx264",
			AudioCodec:      "aac",
			PixelFormat:     "yuv420p",
			FPS:             30,
			BackgroundColor: "black",
		},
		Timeline: TimelineConfig{
			DefaultStillDuration: 5 * time.Second,
			DefaultFontSize:      48,
			DefaultFontFamily:    "Go",
			DefaultColor:         "#FFFFFF",
		},
		Preview: PreviewConfig{
			FrameRate:      30,
			DriftTolerance: 100 * time.Millisecond,
			Width:          960,
			Height:         540,
		},
		Ingest: IngestConfig{
			Debounce: 500 * time.Millisecond,
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		util.ExpandHome(filepath.Join("~", ".splice", "config.yaml")),
	}

	for _, path := range candidates {
		if util.FileExists(path) {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return Default()
}
