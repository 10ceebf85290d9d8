package regscan

import (
	"github.com/hazyhaar/regscan/internal/config"
	"github.com/hazyhaar/regscan/internal/csvio"
	"github.com/hazyhaar/regscan/internal/lookup"
	"github.com/hazyhaar/regscan/internal/notify"
)

// Config is the full run configuration. Re-exported from internal.
type Config = config.Config

// PortalConfig describes the lookup portal.
type PortalConfig = config.PortalConfig

// BrowserConfig controls the Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// RunSummary aggregates one run for the digest.
type RunSummary = notify.Summary

// Identifier is a CMP registry code.
type Identifier = lookup.Identifier

// ConfigFromEnv reads store and mail settings from the environment and
// applies portal defaults.
func ConfigFromEnv() Config {
	return config.FromEnv()
}

// MergeConfigFile overlays portal/browser tuning from a YAML file.
func MergeConfigFile(cfg Config, path string) (Config, error) {
	return config.MergeFile(cfg, path)
}

// LoadIdentifiers reads the input CMP list from a CSV file.
func LoadIdentifiers(path string) ([]Identifier, error) {
	return csvio.LoadIdentifiers(path)
}
