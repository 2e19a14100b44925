// Package config loads configuration from an optional YAML file, with
// defaults for every missing field and AUDEX_* / provider environment
// variables taking precedence. A .env file next to the working directory
// is honored when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Azure     AzureConfig     `yaml:"azure"`
	Index     IndexConfig     `yaml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	APIToken string `yaml:"api_token"`
	LogLevel string `yaml:"log_level"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	EmbedModel  string `yaml:"embed_model"`
	ChatModel   string `yaml:"chat_model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// AzureConfig points at an Azure Document Intelligence resource. When
// Endpoint is empty the local analyzer is used instead.
type AzureConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

type IndexConfig struct {
	FragmentWindow      int    `yaml:"fragment_window"`
	FragmentOverlap     int    `yaml:"fragment_overlap"`
	FragmentsCollection string `yaml:"fragments_collection"`
	TablesCollection    string `yaml:"tables_collection"`
}

type RetrievalConfig struct {
	Candidates int     `yaml:"candidates"`
	Limit      int     `yaml:"limit"`
	MinScore   float32 `yaml:"min_score"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:     4100,
			LogLevel: "info",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		OpenAI: OpenAIConfig{
			BaseURL:     "https://api.openai.com/v1",
			EmbedModel:  "text-embedding-ada-002",
			ChatModel:   "gpt-4o-mini",
			TimeoutSecs: 60,
		},
		Index: IndexConfig{
			FragmentWindow:      700,
			FragmentOverlap:     300,
			FragmentsCollection: "documents",
			TablesCollection:    "tables",
		},
		Retrieval: RetrievalConfig{
			Candidates: 300,
			Limit:      5,
			MinScore:   0.8,
		},
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "audex")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".local", "share", "audex")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "audex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "audex", "config.yaml")
}

// Load reads the config file at path (DefaultPath() when empty), applies
// defaults for missing fields and environment overrides, and validates
// the result. A missing config file is not an error.
func Load(path string) (Config, error) {
	godotenv.Load()

	if path == "" {
		path = DefaultPath()
	}

	cfg := defaults()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
		applyDefaults(&cfg)
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDefaults backfills zero values left by a partial config file.
func applyDefaults(cfg *Config) {
	def := defaults()
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = def.Server.LogLevel
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = def.Storage.DataDir
	}
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = def.OpenAI.BaseURL
	}
	if cfg.OpenAI.EmbedModel == "" {
		cfg.OpenAI.EmbedModel = def.OpenAI.EmbedModel
	}
	if cfg.OpenAI.ChatModel == "" {
		cfg.OpenAI.ChatModel = def.OpenAI.ChatModel
	}
	if cfg.OpenAI.TimeoutSecs == 0 {
		cfg.OpenAI.TimeoutSecs = def.OpenAI.TimeoutSecs
	}
	if cfg.Index.FragmentWindow == 0 {
		cfg.Index.FragmentWindow = def.Index.FragmentWindow
		if cfg.Index.FragmentOverlap == 0 {
			cfg.Index.FragmentOverlap = def.Index.FragmentOverlap
		}
	}
	if cfg.Index.FragmentsCollection == "" {
		cfg.Index.FragmentsCollection = def.Index.FragmentsCollection
	}
	if cfg.Index.TablesCollection == "" {
		cfg.Index.TablesCollection = def.Index.TablesCollection
	}
	if cfg.Retrieval.Candidates == 0 {
		cfg.Retrieval.Candidates = def.Retrieval.Candidates
	}
	if cfg.Retrieval.Limit == 0 {
		cfg.Retrieval.Limit = def.Retrieval.Limit
	}
	if cfg.Retrieval.MinScore == 0 {
		cfg.Retrieval.MinScore = def.Retrieval.MinScore
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AUDEX_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("AUDEX_API_TOKEN"); v != "" {
		cfg.Server.APIToken = v
	}
	if v := os.Getenv("AUDEX_LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("AUDEX_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := os.Getenv("AZURE_ENDPOINT"); v != "" {
		cfg.Azure.Endpoint = v
	}
	if v := os.Getenv("AZURE_KEY"); v != "" {
		cfg.Azure.APIKey = v
	}
}

func validate(cfg Config) error {
	if cfg.Index.FragmentOverlap >= cfg.Index.FragmentWindow {
		return fmt.Errorf("fragment_overlap (%d) must be smaller than fragment_window (%d)",
			cfg.Index.FragmentOverlap, cfg.Index.FragmentWindow)
	}
	if cfg.Index.FragmentsCollection == cfg.Index.TablesCollection {
		return fmt.Errorf("fragments_collection and tables_collection must differ")
	}
	if cfg.Retrieval.MinScore < 0 || cfg.Retrieval.MinScore > 1 {
		return fmt.Errorf("min_score %v outside [0, 1]", cfg.Retrieval.MinScore)
	}
	return nil
}
