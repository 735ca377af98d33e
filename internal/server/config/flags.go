package config

import (
	"github.com/spf13/pflag"
)

// parseFlags overlays command-line flags on config. Every flag has a long
// name; the common ones also have a one-letter form:
//
//	-a, --http-addr        HTTP bind address
//	-g, --grpc-addr        gRPC bind address
//	-d, --database-dsn     PostgreSQL DSN
//	-s, --secret-key       JWT HMAC secret key
//	-t, --access-token-ttl / -r, --refresh-token-ttl   durations ("15m")
//	    --redis-addr, --redis-stream
//	-u, --s3-user / -p, --s3-password / -b, --s3-bucket
//	    --s3-region / -e, --s3-endpoint / --export-url-ttl
//	-l, --log-level / --log-backend
//
// -c/--config is accepted here too but handled by Load.
func parseFlags(config *Config, args []string) error {
	fs := pflag.NewFlagSet("marksync-server", pflag.ContinueOnError)

	fs.StringP("config", "c", "", "path to config file (.json, .jsonc, .yaml)")

	fs.StringVarP(&config.HTTPAddr, "http-addr", "a", config.HTTPAddr, "address and port of the HTTP sync API")
	fs.StringVarP(&config.GRPCAddr, "grpc-addr", "g", config.GRPCAddr, "address and port of the gRPC API")
	fs.StringVarP(&config.DatabaseDSN, "database-dsn", "d", config.DatabaseDSN, "database DSN")
	fs.StringVarP(&config.SecretKey, "secret-key", "s", config.SecretKey, "secret key")

	fs.DurationVarP(&config.AccessTokenValidityDuration, "access-token-ttl", "t", config.AccessTokenValidityDuration, "access token validity")
	fs.DurationVarP(&config.RefreshTokenValidityDuration, "refresh-token-ttl", "r", config.RefreshTokenValidityDuration, "refresh token validity")

	fs.StringVar(&config.RedisAddr, "redis-addr", config.RedisAddr, "redis address for bookmark events (empty logs them only)")
	fs.StringVar(&config.RedisStream, "redis-stream", config.RedisStream, "redis stream for bookmark events")

	fs.StringVarP(&config.S3RootUser, "s3-user", "u", config.S3RootUser, "S3 root user")
	fs.StringVarP(&config.S3RootPassword, "s3-password", "p", config.S3RootPassword, "S3 root password")
	fs.StringVarP(&config.S3Bucket, "s3-bucket", "b", config.S3Bucket, "S3 bucket for exports")
	fs.StringVar(&config.S3Region, "s3-region", config.S3Region, "S3 region")
	fs.StringVarP(&config.S3BaseEndpoint, "s3-endpoint", "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.DurationVar(&config.ExportURLValidityDuration, "export-url-ttl", config.ExportURLValidityDuration, "validity of presigned export links")

	fs.StringVarP(&config.LogLevel, "log-level", "l", config.LogLevel, "log level")
	fs.StringVar(&config.LogBackend, "log-backend", config.LogBackend, "log backend (slog or zap)")

	return fs.Parse(args)
}
