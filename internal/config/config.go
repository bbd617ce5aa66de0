// Package config provides configuration management for the lipsync runtime.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/normanking/lipsync/internal/audio"
	"github.com/normanking/lipsync/internal/avatar3d"
	"github.com/normanking/lipsync/internal/lipsync"
	"github.com/normanking/lipsync/internal/logging"
)

// EnvPrefix prefixes environment overrides, e.g. LIPSYNC_STREAM_ADDR.
const EnvPrefix = "LIPSYNC"

// Config holds all application configuration
type Config struct {
	Analyser AnalyserConfig `mapstructure:"analyser" yaml:"analyser"`
	Lipsync  LipsyncConfig  `mapstructure:"lipsync" yaml:"lipsync"`
	Shaping  ShapingConfig  `mapstructure:"shaping" yaml:"shaping"`
	Blink    BlinkConfig    `mapstructure:"blink" yaml:"blink"`
	Stream   StreamConfig   `mapstructure:"stream" yaml:"stream"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// AnalyserConfig configures the spectrum analyser
type AnalyserConfig struct {
	FFTSize     int     `mapstructure:"fft_size" yaml:"fft_size"`
	Smoothing   float64 `mapstructure:"smoothing" yaml:"smoothing"`
	MinDecibels float64 `mapstructure:"min_decibels" yaml:"min_decibels"`
	MaxDecibels float64 `mapstructure:"max_decibels" yaml:"max_decibels"`
}

// LipsyncConfig configures the classifier engine
type LipsyncConfig struct {
	HistorySize int `mapstructure:"history_size" yaml:"history_size"`
}

// ShapingConfig configures blend-weight shaping
type ShapingConfig struct {
	Gate          float64            `mapstructure:"gate" yaml:"gate"`
	MinOpen       float64            `mapstructure:"min_open" yaml:"min_open"`
	AmpMax        float64            `mapstructure:"amp_max" yaml:"amp_max"`
	Boost         float64            `mapstructure:"boost" yaml:"boost"`
	ConsScale     float64            `mapstructure:"cons_scale" yaml:"cons_scale"`
	ConsMax       float64            `mapstructure:"cons_max" yaml:"cons_max"`
	JawVowelBoost float64            `mapstructure:"jaw_vowel_boost" yaml:"jaw_vowel_boost"`
	RiseVowel     float64            `mapstructure:"rise_vowel" yaml:"rise_vowel"`
	DecayVowel    float64            `mapstructure:"decay_vowel" yaml:"decay_vowel"`
	RiseCons      float64            `mapstructure:"rise_cons" yaml:"rise_cons"`
	DecayCons     float64            `mapstructure:"decay_cons" yaml:"decay_cons"`
	BlinkRate     float64            `mapstructure:"blink_rate" yaml:"blink_rate"`
	Caps          map[string]float64 `mapstructure:"caps" yaml:"caps"`
}

// BlinkConfig configures automatic blinking
type BlinkConfig struct {
	MinGap    time.Duration `mapstructure:"min_gap" yaml:"min_gap"`
	MaxGap    time.Duration `mapstructure:"max_gap" yaml:"max_gap"`
	BlinkHold time.Duration `mapstructure:"blink_hold" yaml:"blink_hold"`
	WinkHold  time.Duration `mapstructure:"wink_hold" yaml:"wink_hold"`
}

// StreamConfig configures the frame stream and runtime loop
type StreamConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	Path string `mapstructure:"path" yaml:"path"`
	FPS  int    `mapstructure:"fps" yaml:"fps"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig configures the logger
type LoggingConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
	File    bool   `mapstructure:"file" yaml:"file"` // write to Dir, or ~/.lipsync/logs when Dir is empty
	Console bool   `mapstructure:"console" yaml:"console"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	an := audio.DefaultAnalyserConfig()
	sh := avatar3d.DefaultShapingConfig()
	bl := avatar3d.DefaultBlinkConfig()

	caps := make(map[string]float64, len(sh.Caps))
	for name, c := range sh.Caps {
		caps[name] = float64(c)
	}

	return &Config{
		Analyser: AnalyserConfig{
			FFTSize:     an.FFTSize,
			Smoothing:   an.Smoothing,
			MinDecibels: an.MinDecibels,
			MaxDecibels: an.MaxDecibels,
		},
		Lipsync: LipsyncConfig{
			HistorySize: lipsync.DefaultHistorySize,
		},
		Shaping: ShapingConfig{
			Gate:          sh.Gate,
			MinOpen:       sh.MinOpen,
			AmpMax:        sh.AmpMax,
			Boost:         sh.Boost,
			ConsScale:     sh.ConsScale,
			ConsMax:       sh.ConsMax,
			JawVowelBoost: sh.JawVowelBoost,
			RiseVowel:     float64(sh.RiseVowel),
			DecayVowel:    float64(sh.DecayVowel),
			RiseCons:      float64(sh.RiseCons),
			DecayCons:     float64(sh.DecayCons),
			BlinkRate:     float64(sh.BlinkRate),
			Caps:          caps,
		},
		Blink: BlinkConfig{
			MinGap:    bl.MinGap,
			MaxGap:    bl.MaxGap,
			BlinkHold: bl.BlinkHold,
			WinkHold:  bl.WinkHold,
		},
		Stream: StreamConfig{
			Addr: "127.0.0.1:8765",
			Path: "/ws",
			FPS:  60,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:   string(logging.LevelInfo),
			Dir:     "",
			Console: true,
		},
	}
}

// Validate reports every setting that cannot be used.
func (c *Config) Validate() error {
	var errs []error
	n := c.Analyser.FFTSize
	if n < 32 || n > 32768 || n&(n-1) != 0 {
		errs = append(errs, fmt.Errorf("analyser.fft_size %d must be a power of two in [32, 32768]", n))
	}
	if c.Analyser.Smoothing < 0 || c.Analyser.Smoothing > 1 {
		errs = append(errs, fmt.Errorf("analyser.smoothing %v must be in [0, 1]", c.Analyser.Smoothing))
	}
	if c.Analyser.MaxDecibels <= c.Analyser.MinDecibels {
		errs = append(errs, errors.New("analyser.max_decibels must exceed min_decibels"))
	}
	if c.Lipsync.HistorySize < 1 {
		errs = append(errs, fmt.Errorf("lipsync.history_size %d must be positive", c.Lipsync.HistorySize))
	}
	for name, rate := range map[string]float64{
		"rise_vowel":  c.Shaping.RiseVowel,
		"decay_vowel": c.Shaping.DecayVowel,
		"rise_cons":   c.Shaping.RiseCons,
		"decay_cons":  c.Shaping.DecayCons,
		"blink_rate":  c.Shaping.BlinkRate,
	} {
		if rate <= 0 || rate > 1 {
			errs = append(errs, fmt.Errorf("shaping.%s %v must be in (0, 1]", name, rate))
		}
	}
	for name := range c.Shaping.Caps {
		if _, ok := canonicalShape(name); !ok {
			errs = append(errs, fmt.Errorf("shaping.caps: unknown blend shape %q", name))
		}
	}
	if c.Blink.MinGap <= 0 || c.Blink.MaxGap < c.Blink.MinGap {
		errs = append(errs, errors.New("blink.max_gap must be at least blink.min_gap > 0"))
	}
	if c.Stream.FPS < 1 || c.Stream.FPS > 240 {
		errs = append(errs, fmt.Errorf("stream.fps %d must be in [1, 240]", c.Stream.FPS))
	}
	if !strings.HasPrefix(c.Stream.Path, "/") {
		errs = append(errs, fmt.Errorf("stream.path %q must start with /", c.Stream.Path))
	}
	return errors.Join(errs...)
}

// Load reads configuration from path (or the default search paths when
// path is empty) layered over the defaults, then applies LIPSYNC_*
// environment overrides. A missing default file is not an error.
func Load(path string) (*Config, error) {
	defaults, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to encode defaults: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		if dir, err := GetConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := cfg.YAML()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// YAML renders the configuration in its file form.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return data, nil
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".lipsync"), nil
}

// DefaultPath returns the config file used when none is given.
func DefaultPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// AnalyserSettings converts to the audio package form.
func (c *Config) AnalyserSettings() audio.AnalyserConfig {
	return audio.AnalyserConfig{
		FFTSize:     c.Analyser.FFTSize,
		Smoothing:   c.Analyser.Smoothing,
		MinDecibels: c.Analyser.MinDecibels,
		MaxDecibels: c.Analyser.MaxDecibels,
	}
}

// EngineSettings converts to the lipsync package form.
func (c *Config) EngineSettings() lipsync.Config {
	return lipsync.Config{HistorySize: c.Lipsync.HistorySize}
}

// ShapingSettings converts to the avatar3d package form.
func (c *Config) ShapingSettings() avatar3d.ShapingConfig {
	s := c.Shaping
	caps := make(map[string]float32, len(s.Caps))
	for name, v := range s.Caps {
		if canonical, ok := canonicalShape(name); ok {
			caps[canonical] = float32(v)
		}
	}
	return avatar3d.ShapingConfig{
		Gate:          s.Gate,
		MinOpen:       s.MinOpen,
		AmpMax:        s.AmpMax,
		Boost:         s.Boost,
		ConsScale:     s.ConsScale,
		ConsMax:       s.ConsMax,
		JawVowelBoost: s.JawVowelBoost,
		RiseVowel:     float32(s.RiseVowel),
		DecayVowel:    float32(s.DecayVowel),
		RiseCons:      float32(s.RiseCons),
		DecayCons:     float32(s.DecayCons),
		BlinkRate:     float32(s.BlinkRate),
		Caps:          caps,
	}
}

// canonicalShape restores the ARKit spelling of a blend-shape name. Viper
// lowercases map keys, so "jawopen" must resolve to "jawOpen".
func canonicalShape(name string) (string, bool) {
	for _, n := range avatar3d.BlendshapeNames {
		if strings.EqualFold(n, name) {
			return n, true
		}
	}
	return "", false
}

// BlinkSettings converts to the avatar3d package form.
func (c *Config) BlinkSettings() avatar3d.BlinkConfig {
	return avatar3d.BlinkConfig{
		MinGap:    c.Blink.MinGap,
		MaxGap:    c.Blink.MaxGap,
		BlinkHold: c.Blink.BlinkHold,
		WinkHold:  c.Blink.WinkHold,
	}
}

// LoggerSettings converts to the logging package form.
func (c *Config) LoggerSettings() *logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.LogLevel(c.Logging.Level)
	lc.Console = c.Logging.Console
	lc.LogDir = c.Logging.Dir
	if c.Logging.File && lc.LogDir == "" {
		lc.LogDir = logging.DefaultLogDir()
	}
	lc.Output = os.Stderr
	return lc
}

// FrameInterval returns the runtime loop period.
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.Stream.FPS)
}
