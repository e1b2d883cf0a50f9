package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Volume != DefaultVolume {
		t.Errorf("DefaultConfig().Volume = %d, want %d", cfg.Volume, DefaultVolume)
	}

	if cfg.BufferingSeconds != DefaultBufferingSeconds {
		t.Errorf("DefaultConfig().BufferingSeconds = %v, want %v", cfg.BufferingSeconds, DefaultBufferingSeconds)
	}

	if cfg.PreloadThreshold != DefaultPreloadThreshold {
		t.Errorf("DefaultConfig().PreloadThreshold = %v, want %v", cfg.PreloadThreshold, DefaultPreloadThreshold)
	}

	if cfg.CacheLimit != DefaultCacheLimit {
		t.Errorf("DefaultConfig().CacheLimit = %d, want %d", cfg.CacheLimit, DefaultCacheLimit)
	}

	if cfg.ConcurrentSoundLimit != 0 {
		t.Errorf("DefaultConfig().ConcurrentSoundLimit = %d, want 0", cfg.ConcurrentSoundLimit)
	}
}

func TestConfigSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	testCfg := DefaultConfig()
	testCfg.Volume = 85
	testCfg.BufferingSeconds = 5
	testCfg.CacheLimit = 4

	err := testCfg.Save()
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	configPath := filepath.Join(tmpDir, ConfigDir, ConfigFileName)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatalf("Config file was not created at %s", configPath)
	}

	loadedCfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loadedCfg.Volume != testCfg.Volume {
		t.Errorf("Load().Volume = %d, want %d", loadedCfg.Volume, testCfg.Volume)
	}

	if loadedCfg.BufferingSeconds != testCfg.BufferingSeconds {
		t.Errorf("Load().BufferingSeconds = %v, want %v", loadedCfg.BufferingSeconds, testCfg.BufferingSeconds)
	}

	if loadedCfg.CacheLimit != testCfg.CacheLimit {
		t.Errorf("Load().CacheLimit = %d, want %d", loadedCfg.CacheLimit, testCfg.CacheLimit)
	}
}

func TestLoadNonExistentConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfg, err := Load()
	if err != nil {
		t.Logf("Load() error (expected): %v", err)
	}

	if cfg.Volume != DefaultVolume {
		t.Errorf("Load() with non-existent file returned Volume = %d, want %d", cfg.Volume, DefaultVolume)
	}

	if cfg.SampleRate != DefaultSampleRate {
		t.Errorf("Load() with non-existent file returned SampleRate = %d, want %d", cfg.SampleRate, DefaultSampleRate)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	configDir := filepath.Join(tmpDir, ConfigDir)
	_ = os.MkdirAll(configDir, 0755)
	_ = os.WriteFile(filepath.Join(configDir, ConfigFileName), []byte("volume: 40\n"), 0644)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Volume != 40 {
		t.Errorf("Load().Volume = %d, want 40", cfg.Volume)
	}
	if cfg.UpdateIntervalMs != DefaultUpdateIntervalMs {
		t.Errorf("Load().UpdateIntervalMs = %d, want %d", cfg.UpdateIntervalMs, DefaultUpdateIntervalMs)
	}
	if cfg.Theme.Highlight != DefaultConfig().Theme.Highlight {
		t.Errorf("Load().Theme.Highlight = %q, want default", cfg.Theme.Highlight)
	}
}

func TestVolumeValidation(t *testing.T) {
	tests := []struct {
		name           string
		inputVolume    int
		expectedVolume int
	}{
		{"valid volume 50", 50, 50},
		{"valid volume 0", 0, 0},
		{"valid volume 100", 100, 100},
		{"negative volume", -10, 0},
		{"volume over 100", 150, 100},
		{"volume way over 100", 1000, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			t.Setenv("HOME", tmpDir)

			testCfg := DefaultConfig()
			testCfg.Volume = tt.inputVolume

			err := testCfg.Save()
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			loadedCfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			if loadedCfg.Volume != tt.expectedVolume {
				t.Errorf("Load().Volume = %d, want %d", loadedCfg.Volume, tt.expectedVolume)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		check  func(*Config) bool
	}{
		{"play rate floor", func(c *Config) { c.PlayRate = 0 }, func(c *Config) bool { return c.PlayRate == MinPlayRate }},
		{"play rate ceiling", func(c *Config) { c.PlayRate = 100 }, func(c *Config) bool { return c.PlayRate == MaxPlayRate }},
		{"negative buffering", func(c *Config) { c.BufferingSeconds = -1 }, func(c *Config) bool { return c.BufferingSeconds == 0 }},
		{"huge buffering", func(c *Config) { c.BufferingSeconds = 600 }, func(c *Config) bool { return c.BufferingSeconds == MaxBufferingSecs }},
		{"negative cache limit", func(c *Config) { c.CacheLimit = -3 }, func(c *Config) bool { return c.CacheLimit == 0 }},
		{"negative sound limit", func(c *Config) { c.ConcurrentSoundLimit = -1 }, func(c *Config) bool { return c.ConcurrentSoundLimit == 0 }},
		{"zero distance factor", func(c *Config) { c.DistanceFactor = 0 }, func(c *Config) bool { return c.DistanceFactor == DefaultDistanceFactor }},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }, func(c *Config) bool { return c.SampleRate == DefaultSampleRate }},
		{"zero update interval", func(c *Config) { c.UpdateIntervalMs = 0 }, func(c *Config) bool { return c.UpdateIntervalMs == MinUpdateInterval }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			cfg.Normalize()
			if !tt.check(cfg) {
				t.Errorf("Normalize() left %+v", cfg)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SOUNDQ_VOLUME", "40")
	t.Setenv("SOUNDQ_BUFFERING_SECONDS", "7.5")
	t.Setenv("SOUNDQ_CONCURRENT_SOUND_LIMIT", "8")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	if cfg.Volume != 40 {
		t.Errorf("Volume = %d, want 40", cfg.Volume)
	}
	if cfg.BufferingSeconds != 7.5 {
		t.Errorf("BufferingSeconds = %v, want 7.5", cfg.BufferingSeconds)
	}
	if cfg.ConcurrentSoundLimit != 8 {
		t.Errorf("ConcurrentSoundLimit = %d, want 8", cfg.ConcurrentSoundLimit)
	}
	if cfg.CacheLimit != DefaultCacheLimit {
		t.Errorf("CacheLimit = %d, want untouched %d", cfg.CacheLimit, DefaultCacheLimit)
	}
}

func TestApplyEnvInvalidValue(t *testing.T) {
	t.Setenv("SOUNDQ_VOLUME", "loud")
	t.Setenv("SOUNDQ_PLAY_RATE", "2")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err == nil {
		t.Error("ApplyEnv() with invalid volume returned nil error")
	}

	if cfg.Volume != DefaultVolume {
		t.Errorf("Volume = %d, want default %d", cfg.Volume, DefaultVolume)
	}
	if cfg.PlayRate != 2 {
		t.Errorf("PlayRate = %v, want 2", cfg.PlayRate)
	}
}

func TestApplyEnvReportsFirstInvalidKey(t *testing.T) {
	t.Setenv("SOUNDQ_VOLUME", "loud")
	t.Setenv("SOUNDQ_CACHE_LIMIT", "many")
	t.Setenv("SOUNDQ_SAMPLE_RATE", "fast")
	t.Setenv("SOUNDQ_PLAY_RATE", "quick")
	t.Setenv("SOUNDQ_DROP_OFF_FACTOR", "steep")

	for i := 0; i < 20; i++ {
		err := DefaultConfig().ApplyEnv()
		if err == nil || !strings.Contains(err.Error(), "SOUNDQ_VOLUME") {
			t.Fatalf("ApplyEnv() error = %v, want the SOUNDQ_VOLUME error", err)
		}
	}
}

func TestApplyEnvRejectsNonFinite(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SOUNDQ_BUFFERING_SECONDS", "NaN"},
		{"SOUNDQ_PLAY_RATE", "+Inf"},
		{"SOUNDQ_PRELOAD_THRESHOLD", "-inf"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			cfg := DefaultConfig()
			if err := cfg.ApplyEnv(); err == nil {
				t.Errorf("ApplyEnv() with %s=%s returned nil error", tt.key, tt.value)
			}
			if cfg.BufferingSeconds != DefaultBufferingSeconds ||
				cfg.PlayRate != DefaultPlayRate ||
				cfg.PreloadThreshold != DefaultPreloadThreshold {
				t.Errorf("non-finite value changed config: %+v", cfg)
			}
		})
	}
}

func TestNormalizeNonFinite(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferingSeconds = math.NaN()
	cfg.PlayRate = math.Inf(1)
	cfg.DropOffFactor = math.NaN()
	cfg.Normalize()

	if cfg.BufferingSeconds != DefaultBufferingSeconds {
		t.Errorf("BufferingSeconds = %v, want %v", cfg.BufferingSeconds, DefaultBufferingSeconds)
	}
	if cfg.PlayRate != DefaultPlayRate {
		t.Errorf("PlayRate = %v, want %v", cfg.PlayRate, DefaultPlayRate)
	}
	if cfg.DropOffFactor != DefaultDropOffFactor {
		t.Errorf("DropOffFactor = %v, want %v", cfg.DropOffFactor, DefaultDropOffFactor)
	}
}

func TestApplyEnvClamps(t *testing.T) {
	t.Setenv("SOUNDQ_VOLUME", "300")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.Volume != MaxVolume {
		t.Errorf("Volume = %d, want %d", cfg.Volume, MaxVolume)
	}
}

func TestMasterVolume(t *testing.T) {
	tests := []struct {
		volume   int
		expected float64
	}{
		{100, 1},
		{50, 0.5},
		{0, 0},
		{-5, 0},
	}

	for _, tt := range tests {
		cfg := &Config{Volume: tt.volume}
		if got := cfg.MasterVolume(); got != tt.expected {
			t.Errorf("MasterVolume() with Volume %d = %v, want %v", tt.volume, got, tt.expected)
		}
	}
}

func TestThemeDefaults(t *testing.T) {
	cfg := DefaultConfig()

	colors := map[string]string{
		"background":        cfg.Theme.Background,
		"foreground":        cfg.Theme.Foreground,
		"borders":           cfg.Theme.Borders,
		"highlight":         cfg.Theme.Highlight,
		"header_background": cfg.Theme.HeaderBackground,
		"header_foreground": cfg.Theme.HeaderForeground,
		"playing":           cfg.Theme.Playing,
		"stopped":           cfg.Theme.Stopped,
		"help_background":   cfg.Theme.HelpBackground,
		"help_foreground":   cfg.Theme.HelpForeground,
		"help_hotkey":       cfg.Theme.HelpHotkey,
	}
	for name, value := range colors {
		if value == "" {
			t.Errorf("DefaultConfig().Theme.%s is empty", name)
		}
	}
}

func TestThemePersistence(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	testCfg := DefaultConfig()
	testCfg.Theme.Playing = "#00ff00"
	testCfg.Theme.Highlight = "red"

	if err := testCfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loadedCfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loadedCfg.Theme.Playing != "#00ff00" {
		t.Errorf("Load().Theme.Playing = %q, want %q", loadedCfg.Theme.Playing, "#00ff00")
	}
	if loadedCfg.Theme.Highlight != "red" {
		t.Errorf("Load().Theme.Highlight = %q, want %q", loadedCfg.Theme.Highlight, "red")
	}
}

func TestGetColor(t *testing.T) {
	tests := []struct {
		name     string
		colorStr string
	}{
		{"empty string returns default", ""},
		{"default keyword returns default", "default"},
		{"named color white", "white"},
		{"named color red", "red"},
		{"hex color", "#FF0000"},
		{"hex color lowercase", "#ff0000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetColor(tt.colorStr)
			if tt.colorStr == "" || tt.colorStr == "default" {
				if result != 0 {
					t.Errorf("GetColor(%q) = %v, want ColorDefault (0)", tt.colorStr, result)
				}
				return
			}
			if result == 0 {
				t.Errorf("GetColor(%q) = ColorDefault, want a concrete color", tt.colorStr)
			}
		})
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	configDir := filepath.Join(tmpDir, ConfigDir)
	_ = os.MkdirAll(configDir, 0755)
	configPath := filepath.Join(configDir, ConfigFileName)

	invalidYAML := []byte("this is not: valid: yaml: [")
	_ = os.WriteFile(configPath, invalidYAML, 0644)

	cfg, err := Load()
	if err == nil {
		t.Log("Load() returned no error for invalid YAML, but returned default config")
	}

	if cfg.Volume != DefaultVolume {
		t.Errorf("Load() with invalid YAML returned Volume = %d, want default %d", cfg.Volume, DefaultVolume)
	}
}

func TestGetConfigPath(t *testing.T) {
	path, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}

	if path == "" {
		t.Error("GetConfigPath() returned empty string")
	}

	if !filepath.IsAbs(path) {
		t.Errorf("GetConfigPath() = %q, want absolute path", path)
	}
}
