package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	c := &Config{Environment: "test"}
	c.Sources = []SourceConfig{{
		Name:         "alpha-rest",
		Kind:         "rest",
		Capabilities: []string{"equity-price"},
		Trust:        0.9,
		URL:          "https://api.alpha.example/v1",
	}}
	return c
}

func TestValidateOK(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing environment", func(c *Config) { c.Environment = "" }},
		{"no sources", func(c *Config) { c.Sources = nil }},
		{"empty source name", func(c *Config) { c.Sources[0].Name = "" }},
		{"duplicate source name", func(c *Config) { c.Sources = append(c.Sources, c.Sources[0]) }},
		{"bad kind", func(c *Config) { c.Sources[0].Kind = "grpc" }},
		{"no capabilities", func(c *Config) { c.Sources[0].Capabilities = nil }},
		{"trust out of range", func(c *Config) { c.Sources[0].Trust = 1.5 }},
		{"missing url", func(c *Config) { c.Sources[0].URL = "" }},
		{"stream without symbols", func(c *Config) { c.Sources[0].Kind = "stream" }},
		{"kafka enabled without brokers", func(c *Config) { c.Kafka.Enabled = true }},
		{"clickhouse enabled without host", func(c *Config) { c.ClickHouse.Enabled = true }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadParsesDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
environment: test
engine:
  per_source_timeout: 3s
  plan_deadline: 10s
  breaker:
    threshold: 5
    cooldown: 30s
    max_cooldown: 10m
sources:
  - name: alpha-rest
    kind: rest
    capabilities: [equity-price]
    trust: 0.9
    url: https://api.alpha.example/v1
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, c.Engine.PerSourceTimeout)
	assert.Equal(t, 10*time.Second, c.Engine.PlanDeadline)
	assert.Equal(t, 30*time.Second, c.Engine.Breaker.Cooldown)
	assert.Equal(t, 10*time.Minute, c.Engine.Breaker.MaxCooldown)
	assert.Equal(t, 5, c.Engine.Breaker.Threshold)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
environment: test
sources:
  - name: alpha-rest
    kind: rest
    capabilities: [equity-price]
    trust: 0.9
    url: https://api.alpha.example/v1
kafka:
  topic: finarb.results
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	t.Setenv("ALPHA_REST_API_KEY", "sekrit")
	t.Setenv("KAFKA_TOPIC", "override.topic")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "sekrit", c.Sources[0].APIKey)
	assert.Equal(t, "override.topic", c.Kafka.Topic)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
