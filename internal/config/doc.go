// Package config handles configuration loading, parsing, and validation
// from environment variables (prefix BATCHRELAY_) and an optional
// config.yaml. It provides type-safe access to the settings needed by the
// store, the remote batch client, the scheduler and the HTTP server.
package config
