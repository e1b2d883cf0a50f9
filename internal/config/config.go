package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gdamore/tcell/v2"
	"gopkg.in/yaml.v3"
)

const (
	AppName        = "soundq"
	AppTagline     = "Buffer-queue sound player"
	AppDescription = "A terminal sound player that streams or preloads audio onto a queued device"
	AppProjectURL  = "https://github.com/glebovdev/soundq"

	ConfigDir      = ".config/soundq"
	ConfigFileName = "config.yml"

	DefaultVolume = 100
	MinVolume     = 0
	MaxVolume     = 100

	DefaultPlayRate             = 1.0
	DefaultBufferingSeconds     = 3.0
	DefaultPreloadThreshold     = 10.0
	DefaultCacheLimit           = 15
	DefaultConcurrentSoundLimit = 0
	DefaultDistanceFactor       = 1.0
	DefaultDropOffFactor        = 1.0
	DefaultSampleRate           = 44100
	DefaultUpdateIntervalMs     = 20

	MinPlayRate       = 0.01
	MaxPlayRate       = 16.0
	MaxBufferingSecs  = 60.0
	MinUpdateInterval = 1
	MaxUpdateInterval = 1000

	// EnvPrefix prefixes the environment variables that override the file.
	EnvPrefix = "SOUNDQ_"
)

// ClampVolume ensures volume is within the valid range [0, 100].
func ClampVolume(volume int) int {
	if volume < MinVolume {
		return MinVolume
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}

// ClampPlayRate keeps the global rate positive and bounded.
func ClampPlayRate(rate float64) float64 {
	if rate < MinPlayRate {
		return MinPlayRate
	}
	if rate > MaxPlayRate {
		return MaxPlayRate
	}
	return rate
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AppVersion can be overridden at build time using ldflags:
// go build -ldflags "-X github.com/glebovdev/soundq/internal/config.AppVersion=1.0.0"
var AppVersion = "dev"

type Theme struct {
	Background       string `yaml:"background"`
	Foreground       string `yaml:"foreground"`
	Borders          string `yaml:"borders"`
	Highlight        string `yaml:"highlight"`
	HeaderBackground string `yaml:"header_background"`
	HeaderForeground string `yaml:"header_foreground"`
	Playing          string `yaml:"playing"`
	Stopped          string `yaml:"stopped"`
	HelpBackground   string `yaml:"help_background"`
	HelpForeground   string `yaml:"help_foreground"`
	HelpHotkey       string `yaml:"help_hotkey"`
}

type Config struct {
	Volume               int     `yaml:"volume"`
	PlayRate             float64 `yaml:"play_rate"`
	BufferingSeconds     float64 `yaml:"buffering_seconds"`
	PreloadThreshold     float64 `yaml:"preload_threshold"`
	CacheLimit           int     `yaml:"cache_limit"`
	ConcurrentSoundLimit int     `yaml:"concurrent_sound_limit"`
	DistanceFactor       float64 `yaml:"distance_factor"`
	DropOffFactor        float64 `yaml:"drop_off_factor"`
	SampleRate           int     `yaml:"sample_rate"`
	UpdateIntervalMs     int     `yaml:"update_interval_ms"`
	Theme                Theme   `yaml:"theme"`
}

func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(home, ConfigDir, ConfigFileName)
	return configPath, nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Normalize()

	return cfg, nil
}

// Normalize clamps every numeric setting into its valid range.
func (c *Config) Normalize() {
	c.PlayRate = finiteOr(c.PlayRate, DefaultPlayRate)
	c.BufferingSeconds = finiteOr(c.BufferingSeconds, DefaultBufferingSeconds)
	c.PreloadThreshold = finiteOr(c.PreloadThreshold, DefaultPreloadThreshold)
	c.DistanceFactor = finiteOr(c.DistanceFactor, DefaultDistanceFactor)
	c.DropOffFactor = finiteOr(c.DropOffFactor, DefaultDropOffFactor)

	c.Volume = ClampVolume(c.Volume)
	c.PlayRate = ClampPlayRate(c.PlayRate)
	c.BufferingSeconds = clampFloat(c.BufferingSeconds, 0, MaxBufferingSecs)
	if c.PreloadThreshold < 0 {
		c.PreloadThreshold = 0
	}
	if c.CacheLimit < 0 {
		c.CacheLimit = 0
	}
	if c.ConcurrentSoundLimit < 0 {
		c.ConcurrentSoundLimit = 0
	}
	if c.DistanceFactor <= 0 {
		c.DistanceFactor = DefaultDistanceFactor
	}
	if c.DropOffFactor < 0 {
		c.DropOffFactor = 0
	}
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	c.UpdateIntervalMs = clampInt(c.UpdateIntervalMs, MinUpdateInterval, MaxUpdateInterval)
}

// ApplyEnv overrides settings from SOUNDQ_* variables, e.g.
// SOUNDQ_VOLUME=40 or SOUNDQ_BUFFERING_SECONDS=5. Unparsable values leave
// the setting unchanged; the first one, in the order below, is returned.
func (c *Config) ApplyEnv() error {
	var firstErr error
	note := func(key string, err error) {
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"VOLUME", &c.Volume},
		{"CACHE_LIMIT", &c.CacheLimit},
		{"CONCURRENT_SOUND_LIMIT", &c.ConcurrentSoundLimit},
		{"SAMPLE_RATE", &c.SampleRate},
		{"UPDATE_INTERVAL_MS", &c.UpdateIntervalMs},
	}
	for _, e := range ints {
		if v, ok := os.LookupEnv(EnvPrefix + e.key); ok {
			n, err := strconv.Atoi(v)
			note(e.key, err)
			if err == nil {
				*e.dst = n
			}
		}
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"PLAY_RATE", &c.PlayRate},
		{"BUFFERING_SECONDS", &c.BufferingSeconds},
		{"PRELOAD_THRESHOLD", &c.PreloadThreshold},
		{"DISTANCE_FACTOR", &c.DistanceFactor},
		{"DROP_OFF_FACTOR", &c.DropOffFactor},
	}
	for _, e := range floats {
		if v, ok := os.LookupEnv(EnvPrefix + e.key); ok {
			f, err := parseFinite(v)
			note(e.key, err)
			if err == nil {
				*e.dst = f
			}
		}
	}

	c.Normalize()
	return firstErr
}

func parseFinite(v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not a finite number", v)
	}
	return f, nil
}

// Save writes the configuration to disk atomically using temp file + rename.
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpFile, err := os.CreateTemp(configDir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	tmpPath = "" // Prevent defer from removing the final file
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Volume:               DefaultVolume,
		PlayRate:             DefaultPlayRate,
		BufferingSeconds:     DefaultBufferingSeconds,
		PreloadThreshold:     DefaultPreloadThreshold,
		CacheLimit:           DefaultCacheLimit,
		ConcurrentSoundLimit: DefaultConcurrentSoundLimit,
		DistanceFactor:       DefaultDistanceFactor,
		DropOffFactor:        DefaultDropOffFactor,
		SampleRate:           DefaultSampleRate,
		UpdateIntervalMs:     DefaultUpdateIntervalMs,
		Theme: Theme{
			Background:       "#1a1b25",
			Foreground:       "#a3aacb",
			Borders:          "#40445b",
			Highlight:        "#ff9d65",
			HeaderBackground: "#3a3d4f",
			HeaderForeground: "#c8d0e8",
			Playing:          "#9ece6a",
			Stopped:          "#6b7089",
			HelpBackground:   "#322f45",
			HelpForeground:   "#9aa3c6",
			HelpHotkey:       "#ff9d65",
		},
	}
}

// MasterVolume returns Volume as a gain factor in [0, 1].
func (c *Config) MasterVolume() float64 {
	return float64(ClampVolume(c.Volume)) / float64(MaxVolume)
}

func GetColor(colorStr string) tcell.Color {
	if colorStr == "" || colorStr == "default" {
		return tcell.ColorDefault
	}
	return tcell.GetColor(colorStr)
}
