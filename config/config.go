// Package config loads the tuning constants named in the public interface
// (request TTL, retry delay, refresh throttle, per-node pool size) and the
// seed node list for each named cluster, the way the pack's richest
// config-driven example loads its routes: a YAML file plus environment
// overrides via viper, unmarshaled into mapstructure-tagged structs.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// NodeConfig is one (host, port) seed entry.
type NodeConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// ClusterConfig is the name and seed list of one cluster.
type ClusterConfig struct {
	Name  string       `mapstructure:"name"`
	Seeds []NodeConfig `mapstructure:"seeds"`
}

// Config is the complete tuning surface for this repository's client.
type Config struct {
	// RequestTTL is the maximum retries per call. Recommended default 16.
	RequestTTL int `mapstructure:"request_ttl"`
	// RetryDelay is the minimum spacing between attempts beyond the first.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// RefreshThrottle is the minimum interval between physical CLUSTER
	// SLOTS round trips.
	RefreshThrottle time.Duration `mapstructure:"refresh_throttle"`
	// PoolSize is the idle connection pool size kept per node.
	PoolSize int `mapstructure:"pool_size"`
	// MetricsNamespace prefixes every Prometheus metric name.
	MetricsNamespace string `mapstructure:"metrics_namespace"`

	Clusters []ClusterConfig `mapstructure:"clusters"`
}

// Default returns the §6-recommended tuning constants and no clusters,
// matching the zero-config defaulting convention the engine and cluster
// state packages already apply on their own Options.
func Default() *Config {
	return &Config{
		RequestTTL:       16,
		RetryDelay:       100 * time.Millisecond,
		RefreshThrottle:  10 * time.Second,
		PoolSize:         10,
		MetricsNamespace: "rkcluster",
	}
}

// Load reads configuration from configPath (if non-empty) and environment
// variables prefixed RKCLUSTER_, falling back to Default for anything
// unset.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	d := Default()
	v.SetDefault("request_ttl", d.RequestTTL)
	v.SetDefault("retry_delay", d.RetryDelay)
	v.SetDefault("refresh_throttle", d.RefreshThrottle)
	v.SetDefault("pool_size", d.PoolSize)
	v.SetDefault("metrics_namespace", d.MetricsNamespace)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", configPath, err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("RKCLUSTER")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the tuning constants are in usable ranges.
func (c *Config) Validate() error {
	if c.RequestTTL <= 0 {
		return fmt.Errorf("request_ttl must be > 0")
	}
	if c.RetryDelay <= 0 {
		return fmt.Errorf("retry_delay must be > 0")
	}
	if c.RefreshThrottle <= 0 {
		return fmt.Errorf("refresh_throttle must be > 0")
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be > 0")
	}
	for i, cl := range c.Clusters {
		if err := cl.Validate(); err != nil {
			return fmt.Errorf("cluster %d (%s): %w", i, cl.Name, err)
		}
	}
	return nil
}

// Dump renders c back to YAML, independent of viper, so an operator can
// diff what clusterctl actually resolved (file + defaults + environment
// overrides) against the file they started from.
func (c *Config) Dump() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks a single cluster's configuration.
func (c *ClusterConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(c.Seeds) == 0 {
		return fmt.Errorf("at least one seed node is required")
	}
	for i, n := range c.Seeds {
		if n.Host == "" {
			return fmt.Errorf("seed %d: host is required", i)
		}
		if n.Port <= 0 || n.Port > 65535 {
			return fmt.Errorf("seed %d: invalid port %d", i, n.Port)
		}
	}
	return nil
}
