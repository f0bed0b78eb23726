package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// fileConfig is the optional TOML file layout. Every value is a default that
// the matching environment variable overrides.
type fileConfig struct {
	Server struct {
		Port           string   `toml:"port"`
		AllowedOrigins []string `toml:"allowed_origins"`
	} `toml:"server"`
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
	AI struct {
		Model     string `toml:"model"`
		BaseURL   string `toml:"base_url"`
		Region    string `toml:"region"`
		MaxTokens int    `toml:"max_tokens"`
		Stream    *bool  `toml:"stream"`
	} `toml:"ai"`
	Music struct {
		BaseURL        string `toml:"base_url"`
		Model          string `toml:"model"`
		CallbackURL    string `toml:"callback_url"`
		NegativeTags   string `toml:"negative_tags"`
		PollInterval   string `toml:"poll_interval"`
		MaxAttempts    int    `toml:"max_attempts"`
		PlaceholderURL string `toml:"placeholder_url"`
	} `toml:"music"`
	Storage struct {
		Path string `toml:"path"`
	} `toml:"storage"`
	Relay struct {
		Addr       string `toml:"addr"`
		ForwardURL string `toml:"forward_url"`
	} `toml:"relay"`
}

// Secrets are not read from the file; keys only come from the environment.
func (f *fileConfig) flatten() map[string]string {
	out := map[string]string{}
	if f == nil {
		return out
	}
	set := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			out[key] = value
		}
	}
	setInt := func(key string, value int) {
		if value != 0 {
			out[key] = strconv.Itoa(value)
		}
	}

	set("PORT", f.Server.Port)
	set("CORS_ALLOWED_ORIGINS", strings.Join(f.Server.AllowedOrigins, ","))
	set("LOG_LEVEL", f.Log.Level)
	set("Model", f.AI.Model)
	set("ARK_BASE_URL", f.AI.BaseURL)
	set("ARK_REGION", f.AI.Region)
	setInt("ARK_MAX_TOKENS", f.AI.MaxTokens)
	if f.AI.Stream != nil {
		out["ARK_STREAM"] = strconv.FormatBool(*f.AI.Stream)
	}
	set("MUSIC_BASE_URL", f.Music.BaseURL)
	set("MUSIC_MODEL", f.Music.Model)
	set("MUSIC_CALLBACK_URL", f.Music.CallbackURL)
	set("MUSIC_NEGATIVE_TAGS", f.Music.NegativeTags)
	set("MUSIC_POLL_INTERVAL", f.Music.PollInterval)
	setInt("MUSIC_MAX_ATTEMPTS", f.Music.MaxAttempts)
	set("MUSIC_PLACEHOLDER_URL", f.Music.PlaceholderURL)
	set("STORAGE_PATH", f.Storage.Path)
	set("RELAY_ADDR", f.Relay.Addr)
	set("RELAY_FORWARD_URL", f.Relay.ForwardURL)
	return out
}

// LoadFile parses a TOML config file and layers the environment on top.
func LoadFile(path string) (*Config, error) {
	file, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return loadWithFile(file)
}

func loadFileFromEnv() (*fileConfig, error) {
	path := strings.TrimSpace(os.Getenv("MOOD_DIARY_CONFIG"))
	if path == "" {
		return nil, nil
	}
	return readFile(path)
}

func readFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var file fileConfig
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &file, nil
}
