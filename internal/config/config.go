package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port            int           `env:"PORT" envDefault:"8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ProjectID       string        `env:"PROJECT_ID,required"`
	Location        string        `env:"LOCATION" envDefault:"us-central1"`
	VertexBaseURL   string        `env:"VERTEX_BASE_URL"`
	TranslateModel  string        `env:"TRANSLATE_MODEL" envDefault:"gemini-2.0-flash-001"`
	TargetLanguage  string        `env:"TRANSLATE_LANGUAGE" envDefault:"Japanese"`
	EventPace       time.Duration `env:"EVENT_PACE" envDefault:"300ms"`
	StatusLinger    time.Duration `env:"STATUS_LINGER" envDefault:"1s"`
	OptimizeTimeout time.Duration `env:"OPTIMIZE_TIMEOUT" envDefault:"0s"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"2h"`
	MaxUploadBytes  int64         `env:"MAX_UPLOAD_BYTES" envDefault:"1048576"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.VertexBaseURL == "" {
		cfg.VertexBaseURL = fmt.Sprintf("https://%s-aiplatform.googleapis.com", cfg.Location)
	}
	return cfg, nil
}
