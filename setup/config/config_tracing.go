package config

import (
	jaegerconfig "github.com/uber/jaeger-client-go/config"
)

// Tracing contains the config for tracing the server with opentracing/jaeger.
type Tracing struct {
	// Set to true to enable tracer hooks. If false, no tracing is set up.
	Enabled bool `yaml:"enabled"`

	// The config for the jaeger opentracing reporter.
	Jaeger jaegerconfig.Configuration `yaml:"jaeger"`
}

func (c *Tracing) Defaults() {
	c.Enabled = false
}

func (c *Tracing) Verify(configErrs *ConfigErrors) {}
