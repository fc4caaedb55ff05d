package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Course struct {
		TTL string `yaml:"ttl"`
	} `yaml:"course"`
	Generator struct {
		APIURL        string `yaml:"api_url"`
		Model         string `yaml:"model"`
		APIKeyEnv     string `yaml:"api_key_env"`
		Timeout       string `yaml:"timeout"`
		QuestionCount int    `yaml:"question_count"`
	} `yaml:"generator"`
	Challenge struct {
		QuestionTimeLimit string `yaml:"question_time_limit"`
		RoundDelay        string `yaml:"round_delay"`
		GraceWindow       string `yaml:"grace_window"`
		RoundTimeout      string `yaml:"round_timeout"`
		AbandonAfter      string `yaml:"abandon_after"`
		PendingTTL        string `yaml:"pending_ttl"`
	} `yaml:"challenge"`
	Rabbit struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"rabbit"`
}

// Load reads YAML config from path. A .env file in the working directory, if any,
// is loaded into the environment first.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// GeneratorAPIKey reads the generator credential from the configured environment variable.
func (c Config) GeneratorAPIKey() string {
	name := c.Generator.APIKeyEnv
	if name == "" {
		name = "OPENROUTER_API_KEY"
	}
	return os.Getenv(name)
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
