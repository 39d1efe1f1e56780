package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_DEBUG_JSON allows dumping every websocket and REST body as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
	// E2E_READ_TIMEOUT bounds how long a step waits for one frame
	ReadTimeout string `envconfig:"E2E_READ_TIMEOUT" default:"3s"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
