// Package config loads, normalizes, and validates pipeline configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// daemon and CLI need: artifact directories, worker lane concurrency, stage
// timeouts, and external tool locations.
//
// Per-provider API credentials are intentionally absent; those live in the
// settings store so they can change between jobs without a daemon restart.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
