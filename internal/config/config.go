// Package config loads the service configuration from an HCL file and
// fills in defaults for anything omitted.
package config

import (
	"time"

	"github.com/gravitational/trace"
	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Config is the top-level service configuration.
type Config struct {
	// TemplatesDir is the root directory of the external template
	// hierarchy served by the filesystem provider.
	TemplatesDir string
	// DatabasePath is the sqlite file holding scopes and variables.
	DatabasePath string
	// CacheTTL bounds provider metadata caching; "0" disables it.
	CacheTTL string
	// NFSListen is the address the read-only NFS export binds to.
	NFSListen string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// fileConfig mirrors Config with pointer fields so an omitted attribute is
// distinguishable from an explicit zero and keeps its default.
type fileConfig struct {
	TemplatesDir *string `hcl:"templates_dir,optional"`
	DatabasePath *string `hcl:"database_path,optional"`
	CacheTTL     *string `hcl:"cache_ttl,optional"`
	NFSListen    *string `hcl:"nfs_listen,optional"`
	LogLevel     *string `hcl:"log_level,optional"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		TemplatesDir: "./templates",
		DatabasePath: "./inkform.db",
		CacheTTL:     "30s",
		NFSListen:    "localhost:20490",
		LogLevel:     "info",
	}
}

// Load reads an HCL configuration file, layering it over the defaults.
// An empty path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	var file fileConfig
	if err := hclsimple.DecodeFile(path, nil, &file); err != nil {
		return nil, trace.BadParameter("parse config %s: %v", path, err)
	}
	overlay(&cfg.TemplatesDir, file.TemplatesDir)
	overlay(&cfg.DatabasePath, file.DatabasePath)
	overlay(&cfg.CacheTTL, file.CacheTTL)
	overlay(&cfg.NFSListen, file.NFSListen)
	overlay(&cfg.LogLevel, file.LogLevel)

	if _, err := cfg.ParsedCacheTTL(); err != nil {
		return nil, trace.Wrap(err)
	}
	return cfg, nil
}

func overlay(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// ParsedCacheTTL returns the cache TTL as a duration.
func (c *Config) ParsedCacheTTL() (time.Duration, error) {
	if c.CacheTTL == "" || c.CacheTTL == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil {
		return 0, trace.BadParameter("invalid cache_ttl %q: %v", c.CacheTTL, err)
	}
	if d < 0 {
		return 0, trace.BadParameter("cache_ttl must not be negative")
	}
	return d, nil
}
