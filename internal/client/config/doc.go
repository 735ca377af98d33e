// Package config holds the settings of the marksync client.
//
// Values come from, in order of precedence: command-line flags (applied by
// the CLI), an optional JSON-with-comments or YAML file, and the defaults in
// (*Config).LoadDefaults. Durations in files may be strings like "10s" or
// integer nanoseconds:
//
//	{
//	  // where the server's gRPC API listens
//	  "server_addr": "127.0.0.1:50051",
//	  "request_timeout": "10s",
//	}
package config
