package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Global struct {
	// InstanceName identifies this process on the backplane so that it can
	// discard its own echoes. Defaults to a random UUID per process.
	InstanceName string `yaml:"instance_name"`

	// DatabaseOptions contains the database configuration shared by every
	// component that doesn't carry its own `database` block.
	DatabaseOptions DatabaseOptions `yaml:"database,omitempty"`

	// Embedded or external NATS JetStream.
	JetStream JetStream `yaml:"jetstream"`

	// Configuration for in-memory caches.
	Cache CacheOptions `yaml:"cache"`

	// Configuration for Prometheus metric collection.
	Metrics Metrics `yaml:"metrics"`

	// Configuration for Sentry error reporting.
	Sentry Sentry `yaml:"sentry"`
}

func (c *Global) Defaults(opts DefaultOpts) {
	c.InstanceName = uuid.NewString()
	c.JetStream.Defaults(opts)
	c.Metrics.Defaults(opts)
	c.Cache.Defaults()
	c.Sentry.Defaults()
	if opts.Generate && opts.SingleDatabase {
		c.DatabaseOptions.ConnectionString = "file:pagesync.db"
	}
	c.DatabaseOptions.Defaults(90)
}

func (c *Global) Verify(configErrs *ConfigErrors) {
	checkNotEmpty(configErrs, "global.instance_name", c.InstanceName)
	c.JetStream.Verify(configErrs)
	c.Metrics.Verify(configErrs)
	c.Sentry.Verify(configErrs)
	c.Cache.Verify(configErrs)
}

// Metrics contains the config for Prometheus metrics.
type Metrics struct {
	// Whether or not the metrics are enabled.
	Enabled bool `yaml:"enabled"`
	// Use BasicAuth for Authorization on the /metrics endpoint.
	BasicAuth struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"basic_auth"`
}

func (c *Metrics) Defaults(opts DefaultOpts) {
	c.Enabled = false
	if opts.Generate {
		c.BasicAuth.Username = "metrics"
		c.BasicAuth.Password = "metrics"
	}
}

func (c *Metrics) Verify(configErrs *ConfigErrors) {}

// Sentry configures the Sentry error reporting integration. Disabled unless
// a DSN is supplied.
type Sentry struct {
	Enabled     bool   `yaml:"enabled"`
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

func (c *Sentry) Defaults() {
	c.Enabled = false
}

func (c *Sentry) Verify(configErrs *ConfigErrors) {
	if c.Enabled {
		checkNotEmpty(configErrs, "global.sentry.dsn", c.DSN)
	}
}

type CacheOptions struct {
	EstimatedMaxSize DataUnit      `yaml:"max_size_estimated"`
	MaxAge           time.Duration `yaml:"max_age"`
}

func (c *CacheOptions) Defaults() {
	if c.EstimatedMaxSize == 0 {
		c.EstimatedMaxSize = 64 * 1024 * 1024 // 64mb
	}
	if c.MaxAge == 0 {
		c.MaxAge = time.Hour
	}
}

func (c *CacheOptions) Verify(configErrs *ConfigErrors) {
	checkPositive(configErrs, "global.cache.max_size_estimated", int64(c.EstimatedMaxSize))
}

// DataSource is a database connection string. Supported schemes are
// "postgres:"/"postgresql:" and "file:" for SQLite.
type DataSource string

func (d DataSource) IsSQLite() bool {
	return strings.HasPrefix(string(d), "file:")
}

func (d DataSource) IsPostgres() bool {
	return strings.HasPrefix(string(d), "postgres")
}

type DatabaseOptions struct {
	// The connection string, file:filename.db or postgres://server....
	ConnectionString DataSource `yaml:"connection_string"`
	// Maximum open connections to the DB (0 = use default, negative means unlimited)
	MaxOpenConnections int `yaml:"max_open_conns"`
	// Maximum idle connections to the DB (0 = use default, negative means unlimited)
	MaxIdleConnections int `yaml:"max_idle_conns"`
	// maximum amount of time (in seconds) a connection may be reused (<= 0 means unlimited)
	ConnMaxLifetimeSeconds int `yaml:"conn_max_lifetime"`
}

func (c *DatabaseOptions) Defaults(conns int) {
	c.MaxOpenConnections = conns
	c.MaxIdleConnections = 2
	c.ConnMaxLifetimeSeconds = -1
}

func (c DatabaseOptions) Verify(configErrs *ConfigErrors) {}

// MaxIdleConns returns maximum idle connections to the DB
func (c DatabaseOptions) MaxIdleConns() int {
	return c.MaxIdleConnections
}

// MaxOpenConns returns maximum open connections to the DB
func (c DatabaseOptions) MaxOpenConns() int {
	return c.MaxOpenConnections
}

// ConnMaxLifetime returns maximum amount of time a connection may be reused
func (c DatabaseOptions) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeSeconds) * time.Second
}

// LogrusHook represents a single logrus hook. At this point, only parsing
// and checking of the proper values are done. Only a subset of the available
// hooks are taken into account. See internal/log.go for a list of supported
// hook types.
type LogrusHook struct {
	// The type of hook, currently only "file" is supported.
	Type string `yaml:"type"`

	// The level of the logs to produce. Will output only this level and above.
	Level string `yaml:"level"`

	// The parameters for this hook.
	Params map[string]interface{} `yaml:"params"`
}

func (c LogrusHook) Verify(configErrs *ConfigErrors) {
	checkNotEmpty(configErrs, "logging.type", c.Type)
	checkNotEmpty(configErrs, "logging.level", c.Level)
	if c.Type == "file" {
		if _, ok := c.Params["path"]; !ok {
			configErrs.Add(fmt.Sprintf("logging hook of type %q requires a path parameter", c.Type))
		}
	}
}
