package common

import (
	"fmt"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration of the proxy.
type Config struct {
	LogLevel  string           `yaml:"logLevel"`
	Server    *ServerConfig    `yaml:"server"`
	Metrics   *MetricsConfig   `yaml:"metrics"`
	Nodes     []*NodeConfig    `yaml:"nodes"`
	Routing   *RoutingConfig   `yaml:"routing"`
	Probe     *ProbeConfig     `yaml:"probe"`
	Cache     *CacheConfig     `yaml:"cache"`
	Admission *AdmissionConfig `yaml:"admission"`
}

type ServerConfig struct {
	HttpHost string `yaml:"httpHost"`
	HttpPort int    `yaml:"httpPort"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

type NodeConfig struct {
	Id         string `yaml:"id"`
	Endpoint   string `yaml:"endpoint"`
	WsEndpoint string `yaml:"wsEndpoint"`
	Weight     int    `yaml:"weight"`
}

type RoutingConfig struct {
	MaxAttempts        int      `yaml:"maxAttempts"`
	CallTimeout        Duration `yaml:"callTimeout"`
	LatencyAlpha       float64  `yaml:"latencyAlpha"`
	FailureThreshold   int      `yaml:"failureThreshold"`
	RecoveryThreshold  int      `yaml:"recoveryThreshold"`
	HeightLagTolerance int64    `yaml:"heightLagTolerance"`
	DegradeFallback    *bool    `yaml:"degradeFallback"`
}

type ProbeConfig struct {
	Interval Duration `yaml:"interval"`
	Timeout  Duration `yaml:"timeout"`
	Method   string   `yaml:"method"`
}

type CacheConfig struct {
	Capacity     int      `yaml:"capacity"`
	ImmutableTTL Duration `yaml:"immutableTtl"`
}

type AdmissionConfig struct {
	MaxInFlight        int64            `yaml:"maxInFlight"`
	MaxInFlightPerNode int64            `yaml:"maxInFlightPerNode"`
	RateLimit          *RateLimitConfig `yaml:"rateLimit"`
}

type RateLimitConfig struct {
	MaxCount uint     `yaml:"maxCount"`
	Period   Duration `yaml:"period"`
}

const (
	DefaultMaxAttempts        = 3
	DefaultCallTimeout        = 10 * time.Second
	DefaultLatencyAlpha       = 0.2
	DefaultFailureThreshold   = 3
	DefaultRecoveryThreshold  = 2
	DefaultHeightLagTolerance = 4
	DefaultProbeInterval      = 30 * time.Second
	DefaultProbeTimeout       = 5 * time.Second
	DefaultProbeMethod        = "eth_blockNumber"
	DefaultCacheCapacity      = 4096
	DefaultImmutableTTL       = 10 * time.Minute
	DefaultMaxInFlight        = 1024
)

// LoadConfig reads and validates the yaml configuration from the given fs.
func LoadConfig(fs afero.Fs, filename string) (*Config, error) {
	data, err := afero.ReadFile(fs, filename)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, NewErrInvalidConfig(fmt.Sprintf("failed to parse yaml config: %v", err))
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	if c.Server.HttpHost == "" {
		c.Server.HttpHost = "0.0.0.0"
	}
	if c.Server.HttpPort == 0 {
		c.Server.HttpPort = 4000
	}
	if c.Metrics == nil {
		c.Metrics = &MetricsConfig{Enabled: true}
	}
	if c.Metrics.Host == "" {
		c.Metrics.Host = "0.0.0.0"
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 4001
	}
	if c.Routing == nil {
		c.Routing = &RoutingConfig{}
	}
	if c.Routing.MaxAttempts == 0 {
		c.Routing.MaxAttempts = DefaultMaxAttempts
	}
	if c.Routing.CallTimeout == 0 {
		c.Routing.CallTimeout = Duration(DefaultCallTimeout)
	}
	if c.Routing.LatencyAlpha == 0 {
		c.Routing.LatencyAlpha = DefaultLatencyAlpha
	}
	if c.Routing.FailureThreshold == 0 {
		c.Routing.FailureThreshold = DefaultFailureThreshold
	}
	if c.Routing.RecoveryThreshold == 0 {
		c.Routing.RecoveryThreshold = DefaultRecoveryThreshold
	}
	if c.Routing.HeightLagTolerance == 0 {
		c.Routing.HeightLagTolerance = DefaultHeightLagTolerance
	}
	if c.Routing.DegradeFallback == nil {
		t := true
		c.Routing.DegradeFallback = &t
	}
	if c.Probe == nil {
		c.Probe = &ProbeConfig{}
	}
	if c.Probe.Interval == 0 {
		c.Probe.Interval = Duration(DefaultProbeInterval)
	}
	if c.Probe.Timeout == 0 {
		c.Probe.Timeout = Duration(DefaultProbeTimeout)
	}
	if c.Probe.Method == "" {
		c.Probe.Method = DefaultProbeMethod
	}
	if c.Cache == nil {
		c.Cache = &CacheConfig{}
	}
	if c.Cache.Capacity == 0 {
		c.Cache.Capacity = DefaultCacheCapacity
	}
	if c.Cache.ImmutableTTL == 0 {
		c.Cache.ImmutableTTL = Duration(DefaultImmutableTTL)
	}
	if c.Admission == nil {
		c.Admission = &AdmissionConfig{}
	}
	if c.Admission.MaxInFlight == 0 {
		c.Admission.MaxInFlight = DefaultMaxInFlight
	}
	for i, n := range c.Nodes {
		if n.Id == "" {
			n.Id = fmt.Sprintf("node-%d", i)
		}
		if n.Weight == 0 {
			n.Weight = 1
		}
	}
}

func (c *Config) Validate() error {
	if len(c.Nodes) == 0 {
		return NewErrInvalidConfig("at least one node endpoint must be configured")
	}
	seen := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.Endpoint == "" {
			return NewErrInvalidConfig(fmt.Sprintf("node %q has no endpoint", n.Id))
		}
		if n.Weight < 0 {
			return NewErrInvalidConfig(fmt.Sprintf("node %q has negative weight", n.Id))
		}
		if seen[n.Id] {
			return NewErrInvalidConfig(fmt.Sprintf("duplicate node id %q", n.Id))
		}
		seen[n.Id] = true
	}
	if c.Routing.MaxAttempts < 1 {
		return NewErrInvalidConfig("routing.maxAttempts must be at least 1")
	}
	if c.Routing.LatencyAlpha <= 0 || c.Routing.LatencyAlpha > 1 {
		return NewErrInvalidConfig("routing.latencyAlpha must be in (0, 1]")
	}
	return nil
}

func (c *Config) DegradeFallback() bool {
	return c.Routing != nil && c.Routing.DegradeFallback != nil && *c.Routing.DegradeFallback
}
