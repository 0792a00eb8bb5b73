// Package config loads, validates, and defaults the kinescope TOML
// configuration.
package config
