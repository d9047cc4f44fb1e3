package common

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	OCR      OCRConfig      `yaml:"ocr"`
	LLM      LLMConfig      `yaml:"llm"`
	Preview  PreviewConfig  `yaml:"preview"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// OCRConfig holds OCR conversion service configuration
type OCRConfig struct {
	BaseURL       string        `yaml:"base_url"`
	DefaultEngine string        `yaml:"default_engine"`
	DefaultLangs  []string      `yaml:"default_langs"`
	Timeout       time.Duration `yaml:"timeout"`
}

// LLMConfig holds LLM chat service configuration
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	RatePerSec  float64       `yaml:"rate_per_sec"`
}

// PreviewConfig holds preview cache configuration
type PreviewConfig struct {
	CacheDir  string `yaml:"cache_dir"`
	MaxAssets int    `yaml:"max_assets"`
}

// PipelineConfig holds extraction pipeline configuration
type PipelineConfig struct {
	MaxRetries     int    `yaml:"max_retries"`
	MaxPromptChars int    `yaml:"max_prompt_chars"`
	LanguagePref   string `yaml:"language_pref"`
	SchemaVersion  string `yaml:"schema_version"`
}

// LoadConfig loads configuration from an optional YAML file, then overlays
// environment variables, then applies defaults for anything still unset.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, WrapError(err, "read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, WrapError(err, "parse config file")
		}
	}

	mergeWithEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func mergeWithEnv(c *Config) {
	c.Server.Addr = getEnv("SERVER_ADDR", c.Server.Addr)
	c.OCR.BaseURL = getEnv("OCR_BASE_URL", c.OCR.BaseURL)
	c.OCR.DefaultEngine = getEnv("OCR_ENGINE", c.OCR.DefaultEngine)
	c.LLM.BaseURL = getEnv("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.Model = getEnv("LLM_MODEL", c.LLM.Model)
	c.LLM.APIKey = getEnv("LLM_API_KEY", c.LLM.APIKey)
	c.Preview.CacheDir = getEnv("PREVIEW_CACHE_DIR", c.Preview.CacheDir)
	c.Preview.MaxAssets = getEnvAsInt("PREVIEW_MAX_ASSETS", c.Preview.MaxAssets)
	c.Pipeline.MaxRetries = getEnvAsInt("PIPELINE_MAX_RETRIES", c.Pipeline.MaxRetries)
}

func applyDefaults(c *Config) {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.OCR.DefaultEngine == "" {
		c.OCR.DefaultEngine = "easyocr"
	}
	if len(c.OCR.DefaultLangs) == 0 {
		c.OCR.DefaultLangs = []string{"en", "vi"}
	}
	if c.OCR.Timeout <= 0 {
		c.OCR.Timeout = 60 * time.Second
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 120 * time.Second
	}
	if c.Preview.MaxAssets == 0 {
		c.Preview.MaxAssets = 200
	}
	if c.Preview.MaxAssets < 0 {
		c.Preview.MaxAssets = 0
	}
	if c.Pipeline.MaxRetries <= 0 {
		c.Pipeline.MaxRetries = 2
	}
	if c.Pipeline.MaxPromptChars <= 0 {
		c.Pipeline.MaxPromptChars = 50000
	}
	if c.Pipeline.SchemaVersion == "" {
		c.Pipeline.SchemaVersion = "v1"
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.OCR.BaseURL == "" {
		return NewAppError("CONFIG_ERROR", "OCR_BASE_URL is required", ErrInvalidInput)
	}
	if c.LLM.BaseURL == "" {
		return NewAppError("CONFIG_ERROR", "LLM_BASE_URL is required", ErrInvalidInput)
	}
	return nil
}
