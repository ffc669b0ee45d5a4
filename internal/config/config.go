// Package config holds the immutable runtime configuration for the
// ariabridged binary, populated from flags/environment in cmd/ariabridged
// (spec §1: CLI flag parsing itself is out of scope for this package —
// it only describes the shape cmd/ariabridged fills in).
package config

import "os"

// Config is the fully resolved set of settings the bridge needs to start.
type Config struct {
	// HTTPAddr is the listen address for the REST/WebSocket API.
	HTTPAddr string

	// Aria2EndpointURL is the daemon's WebSocket JSON-RPC URL.
	Aria2EndpointURL string
	// Aria2Secret is the token injected into outgoing RPC calls.
	Aria2Secret string
	// Aria2Version is reported on the Status Watch.
	Aria2Version string

	// DBDriver is "sqlite" or "postgres".
	DBDriver string
	// DBDSN is the database DSN or, for sqlite, a file path.
	DBDSN string

	// JWTPublicKeyPath points at the PEM-encoded RSA public key used to
	// verify bearer tokens issued by the upstream auth service.
	JWTPublicKeyPath string
	// JWTIssuer is the expected "iss" claim on access tokens.
	JWTIssuer string

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string
}

// EnvOrDefault returns the value of the named environment variable, or
// defaultVal if it is unset or empty.
func EnvOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
