package config

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/dmitrijs2005/marksync/internal/logging"
)

// AppName names the default data directory.
const AppName = "marksync"

type Config struct {
	ServerAddr     string
	DataDir        string
	RequestTimeout time.Duration
	LogLevel       string
	LogBackend     string
}

func (c *Config) LoadDefaults() {
	c.ServerAddr = "127.0.0.1:50051"
	c.DataDir = ""
	c.RequestTimeout = 10 * time.Second
	c.LogLevel = "warn"
	c.LogBackend = logging.BackendSlog
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ServerAddr, validation.Required),
		validation.Field(&c.RequestTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.LogBackend, validation.In(logging.BackendSlog, logging.BackendZap)),
	)
}

// Load returns the defaults overlaid with the file at path, if any. The
// result is not validated yet; flags still have to be applied.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if path == "" {
		return cfg, nil
	}
	if err := parseFile(path, cfg); err != nil {
		return nil, fmt.Errorf("client config: %w", err)
	}
	return cfg, nil
}
