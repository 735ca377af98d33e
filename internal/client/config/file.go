package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/dmitrijs2005/marksync/internal/timex"
)

// FileConfig is the on-disk form of Config. Empty fields keep the default.
type FileConfig struct {
	ServerAddr     string         `json:"server_addr" yaml:"server_addr"`
	DataDir        string         `json:"data_dir" yaml:"data_dir"`
	RequestTimeout timex.Duration `json:"request_timeout" yaml:"request_timeout"`
	LogLevel       string         `json:"log_level" yaml:"log_level"`
	LogBackend     string         `json:"log_backend" yaml:"log_backend"`
}

func parseFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	fc := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(jsonc.ToJSON(data), fc)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.ServerAddr != "" {
		cfg.ServerAddr = fc.ServerAddr
	}
	if fc.DataDir != "" {
		cfg.DataDir = fc.DataDir
	}
	if fc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = fc.RequestTimeout.Duration
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.LogBackend != "" {
		cfg.LogBackend = fc.LogBackend
	}
	return nil
}
