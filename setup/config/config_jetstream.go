package config

import (
	"fmt"
)

type JetStream struct {
	// Persistent directory to store JetStream streams in.
	StoragePath Path `yaml:"storage_path"`

	// A list of NATS addresses to connect to. If none are specified, an
	// internal NATS server will be started.
	Addresses []string `yaml:"addresses"`

	// The prefix to use for stream names for this deployment - really only
	// useful if running more than one Pagesync on the same NATS deployment.
	TopicPrefix string `yaml:"topic_prefix"`

	// Keep all storage in memory. This is mostly useful for unit tests.
	InMemory bool `yaml:"in_memory"`

	// Disable logging. This is mostly useful for unit tests.
	NoLog bool `yaml:"disable_logging"`

	// Disables TLS validation. This should NOT be used in production.
	DisableTLSValidation bool `yaml:"disable_tls_validation"`
}

func (c *JetStream) Prefixed(name string) string {
	return fmt.Sprintf("%s%s", c.TopicPrefix, name)
}

func (c *JetStream) Durable(name string) string {
	return c.Prefixed(name)
}

func (c *JetStream) Defaults(opts DefaultOpts) {
	c.Addresses = []string{}
	c.TopicPrefix = "Pagesync"
	if opts.Generate {
		c.StoragePath = Path("./")
		c.NoLog = true
		c.DisableTLSValidation = true
	}
}

func (c *JetStream) Verify(configErrs *ConfigErrors) {}
