// Package config loads and validates the relay core configuration.
//
// Configuration comes from a YAML file with environment variable overrides
// (MIRV_* pattern). Defaults are applied first, then the file, then the
// environment, and the result is validated before use.
//
// Secrets (token signing keys, broker credentials) should always be
// supplied via environment variables in production.
package config
