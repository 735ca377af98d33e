package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/dmitrijs2005/marksync/internal/timex"
)

// FileConfig is the on-disk form of Config. Durations go through
// timex.Duration so a file can say "15m" or give integer nanoseconds.
// Empty fields leave the current value alone.
type FileConfig struct {
	HTTPAddr                     string         `json:"http_addr" yaml:"http_addr"`
	GRPCAddr                     string         `json:"grpc_addr" yaml:"grpc_addr"`
	DatabaseDSN                  string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey                    string         `json:"secret_key" yaml:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration" yaml:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration" yaml:"refresh_token_validity_duration"`
	RedisAddr                    string         `json:"redis_addr" yaml:"redis_addr"`
	RedisStream                  string         `json:"redis_stream" yaml:"redis_stream"`
	S3RootUser                   string         `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region                     string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	ExportURLValidityDuration    timex.Duration `json:"export_url_validity_duration" yaml:"export_url_validity_duration"`
	LogLevel                     string         `json:"log_level" yaml:"log_level"`
	LogBackend                   string         `json:"log_backend" yaml:"log_backend"`
}

// parseFile reads a YAML (.yaml, .yml) or JSON-with-comments file, expands
// ${VAR} references from the environment and overlays the result on config.
func parseFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	expanded := []byte(os.ExpandEnv(string(data)))

	c := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(expanded, c)
	default:
		err = json.Unmarshal(jsonc.ToJSON(expanded), c)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.apply(config)
	return nil
}

func (c *FileConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisStream, c.RedisStream)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setDuration(&config.ExportURLValidityDuration, c.ExportURLValidityDuration)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogBackend, c.LogBackend)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
