package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServerURL string `envconfig:"SERVER_URL" default:"http://localhost:8080"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
