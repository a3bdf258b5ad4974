package common

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, content string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "rpcmux.yaml", []byte(content), 0644))
	return fs
}

func TestLoadConfig_Valid(t *testing.T) {
	fs := writeTestConfig(t, `
logLevel: debug
nodes:
  - id: alchemy
    endpoint: http://rpc1.localhost:8545
    weight: 3
  - endpoint: http://rpc2.localhost:8545
routing:
  maxAttempts: 2
  callTimeout: 5s
  heightLagTolerance: 8
cache:
  capacity: 100
  immutableTtl: 1h
admission:
  maxInFlight: 64
  rateLimit:
    maxCount: 500
    period: 1s
`)

	cfg, err := LoadConfig(fs, "rpcmux.yaml")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	require.Len(t, cfg.Nodes, 2)
	assert.Equal(t, "alchemy", cfg.Nodes[0].Id)
	assert.Equal(t, 3, cfg.Nodes[0].Weight)

	// Unset node fields fall back to positional id and unit weight.
	assert.Equal(t, "node-1", cfg.Nodes[1].Id)
	assert.Equal(t, 1, cfg.Nodes[1].Weight)

	assert.Equal(t, 2, cfg.Routing.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Routing.CallTimeout.Duration())
	assert.Equal(t, int64(8), cfg.Routing.HeightLagTolerance)

	assert.Equal(t, 100, cfg.Cache.Capacity)
	assert.Equal(t, time.Hour, cfg.Cache.ImmutableTTL.Duration())

	assert.Equal(t, int64(64), cfg.Admission.MaxInFlight)
	require.NotNil(t, cfg.Admission.RateLimit)
	assert.Equal(t, uint(500), cfg.Admission.RateLimit.MaxCount)
	assert.Equal(t, time.Second, cfg.Admission.RateLimit.Period.Duration())
}

func TestLoadConfig_Defaults(t *testing.T) {
	fs := writeTestConfig(t, `
nodes:
  - endpoint: http://rpc1.localhost:8545
`)

	cfg, err := LoadConfig(fs, "rpcmux.yaml")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 4000, cfg.Server.HttpPort)
	assert.Equal(t, DefaultMaxAttempts, cfg.Routing.MaxAttempts)
	assert.Equal(t, DefaultCallTimeout, cfg.Routing.CallTimeout.Duration())
	assert.Equal(t, DefaultLatencyAlpha, cfg.Routing.LatencyAlpha)
	assert.Equal(t, DefaultFailureThreshold, cfg.Routing.FailureThreshold)
	assert.Equal(t, DefaultRecoveryThreshold, cfg.Routing.RecoveryThreshold)
	assert.Equal(t, int64(DefaultHeightLagTolerance), cfg.Routing.HeightLagTolerance)
	assert.True(t, cfg.DegradeFallback())
	assert.Equal(t, DefaultProbeInterval, cfg.Probe.Interval.Duration())
	assert.Equal(t, DefaultProbeMethod, cfg.Probe.Method)
	assert.Equal(t, DefaultCacheCapacity, cfg.Cache.Capacity)
	assert.Equal(t, int64(DefaultMaxInFlight), cfg.Admission.MaxInFlight)
	assert.Nil(t, cfg.Admission.RateLimit)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"NoNodes", `logLevel: info`},
		{
			"MissingEndpoint", `
nodes:
  - id: broken
`,
		},
		{
			"DuplicateNodeIds", `
nodes:
  - id: same
    endpoint: http://rpc1.localhost:8545
  - id: same
    endpoint: http://rpc2.localhost:8545
`,
		},
		{
			"NegativeWeight", `
nodes:
  - endpoint: http://rpc1.localhost:8545
    weight: -5
`,
		},
		{
			"AlphaOutOfRange", `
nodes:
  - endpoint: http://rpc1.localhost:8545
routing:
  latencyAlpha: 1.5
`,
		},
		{"MalformedYaml", `nodes: [`},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			fs := writeTestConfig(t, c.yaml)
			_, err := LoadConfig(fs, "rpcmux.yaml")
			require.Error(t, err)
			assert.True(t, HasErrorCode(err, ErrCodeInvalidConfig))
		})
	}
}
