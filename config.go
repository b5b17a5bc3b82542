package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	SaveDirectory string          `toml:"save_directory"`
	StartMenu     bool            `toml:"start_menu"`
	StartBoards   []string        `toml:"start_boards"`
	Confirmations bool            `toml:"confirmations"`
	HistoryLimit  int             `toml:"history_limit"`
	LogFile       string          `toml:"log_file"`
	Debug         bool            `toml:"debug"`
	StorePath     string          `toml:"store_path"`
	Autosave      bool            `toml:"autosave"`
	CodeLanguage  string          `toml:"code_language"`
	Assistant     AssistantConfig `toml:"assistant"`
}

type AssistantConfig struct {
	Enabled           bool    `toml:"enabled"`
	Endpoint          string  `toml:"endpoint"`
	APIKey            string  `toml:"api_key"`
	Model             string  `toml:"model"`
	RequestsPerMinute float64 `toml:"requests_per_minute"`
	TimeoutSecs       int     `toml:"timeout_secs"`
}

func Default() *Config {
	return &Config{
		StartMenu:     true,
		Confirmations: true,
		HistoryLimit:  defaultHistoryLimit,
		LogFile:       "flowboard.log",
		StorePath:     "flowboard.db",
		Autosave:      true,
		CodeLanguage:  "python",
		Assistant: AssistantConfig{
			Enabled:           true,
			Endpoint:          "https://api.openai.com/v1/chat/completions",
			Model:             "gpt-4o-mini",
			RequestsPerMinute: 10,
			TimeoutSecs:       60,
		},
	}
}

func ConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	return filepath.Join(home, ".flowboard.toml"), nil
}

// LoadConfig reads path over the defaults. A missing file is not an error.
// Environment overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			cfg = Default()
			cfg.ApplyEnvOverrides()
			cfg.resolvePaths()
			return cfg, fmt.Errorf("failed to decode TOML file: %w", err)
		}
	}
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	cfg.resolvePaths()
	return cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides:
//   - FLOWBOARD_API_KEY: overrides assistant.api_key
//   - FLOWBOARD_ENDPOINT: overrides assistant.endpoint
//   - FLOWBOARD_MODEL: overrides assistant.model
//   - FLOWBOARD_DEBUG: overrides debug
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("FLOWBOARD_API_KEY"); key != "" {
		c.Assistant.APIKey = key
	}
	if endpoint := os.Getenv("FLOWBOARD_ENDPOINT"); endpoint != "" {
		c.Assistant.Endpoint = endpoint
	}
	if model := os.Getenv("FLOWBOARD_MODEL"); model != "" {
		c.Assistant.Model = model
	}
	if debug := os.Getenv("FLOWBOARD_DEBUG"); debug != "" {
		if v, err := strconv.ParseBool(debug); err == nil {
			c.Debug = v
		}
	}
}

// SetDefaults repairs values a config file may have zeroed or broken.
func (c *Config) SetDefaults() {
	d := Default()
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.LogFile == "" {
		c.LogFile = d.LogFile
	}
	if c.StorePath == "" {
		c.StorePath = d.StorePath
	}
	if c.CodeLanguage == "" {
		c.CodeLanguage = d.CodeLanguage
	}
	if c.Assistant.RequestsPerMinute <= 0 {
		c.Assistant.RequestsPerMinute = d.Assistant.RequestsPerMinute
	}
	if c.Assistant.TimeoutSecs <= 0 {
		c.Assistant.TimeoutSecs = d.Assistant.TimeoutSecs
	}
}

func (c *Config) resolvePaths() {
	if c.SaveDirectory == "" {
		return
	}
	if strings.HasPrefix(c.SaveDirectory, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			c.SaveDirectory = filepath.Join(home, strings.TrimPrefix(c.SaveDirectory, "~"))
		}
	}
	if abs, err := filepath.Abs(c.SaveDirectory); err == nil {
		c.SaveDirectory = abs
	}
}

func (c *Config) GetSavePath(filename string) string {
	if c.SaveDirectory == "" || filepath.IsAbs(filename) {
		return filename
	}
	os.MkdirAll(c.SaveDirectory, 0755)
	return filepath.Join(c.SaveDirectory, filename)
}

func (c *Config) LogPath() string   { return c.GetSavePath(c.LogFile) }
func (c *Config) StoreFile() string { return c.GetSavePath(c.StorePath) }

func (c *Config) AssistantTimeout() time.Duration {
	return time.Duration(c.Assistant.TimeoutSecs) * time.Second
}
