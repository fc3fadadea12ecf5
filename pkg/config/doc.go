// Package config loads the flat control-plane configuration from the
// environment, optionally seeded from a YAML file named by LABFLEET_CONFIG.
package config
