package generator

import (
	"log"
	"time"

	"challenge-service/internal/app"
)

// Config selects and configures the question generator.
type Config struct {
	APIURL  string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// New returns the model-backed generator, or the local fallback when no API key is configured.
func New(cfg Config) app.QuestionGenerator {
	if cfg.APIKey == "" {
		log.Printf("no generator api key configured, using fallback question generator")
		return NewFallbackGenerator()
	}
	return NewLLMGenerator(NewChatClient(cfg.APIURL, cfg.Model, cfg.APIKey, cfg.Timeout))
}
