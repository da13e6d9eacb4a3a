package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	jaegerconfig "github.com/uber/jaeger-client-go/config"
	jaegermetrics "github.com/uber/jaeger-lib/metrics"
	"gopkg.in/yaml.v2"
)

// Version is the current version of the config file format. Bump this
// whenever a backwards-incompatible change is made to the layout below.
const Version = 1

// Pagesync contains all the config used by a pagesync process.
type Pagesync struct {
	// The version of the configuration file.
	Version int `yaml:"version"`

	Global       Global       `yaml:"global"`
	CollabAPI    CollabAPI    `yaml:"collab_api"`
	WorkspaceAPI WorkspaceAPI `yaml:"workspace_api"`

	// The config for logging informational messages and errors.
	Logging []LogrusHook `yaml:"logging"`

	// The config for tracing the server.
	Tracing Tracing `yaml:"tracing"`
}

// DefaultOpts controls how Defaults populates the config.
type DefaultOpts struct {
	// Generate fills in values that would otherwise have to be supplied by
	// the operator, e.g. database connection strings and storage paths.
	Generate bool
	// SingleDatabase uses the global database pool for every component
	// instead of one connection string per component.
	SingleDatabase bool
}

func (c *Pagesync) Defaults(opts DefaultOpts) {
	c.Version = Version

	c.Global.Defaults(opts)
	c.CollabAPI.Defaults(opts)
	c.WorkspaceAPI.Defaults(opts)
	c.Tracing.Defaults()

	c.Wire()
}

func (c *Pagesync) Verify(configErrs *ConfigErrors) {
	type verifiable interface {
		Verify(configErrs *ConfigErrors)
	}
	for _, c := range []verifiable{
		&c.Global, &c.CollabAPI, &c.WorkspaceAPI,
	} {
		c.Verify(configErrs)
	}
}

// Wire gives each component config a pointer back to the global section.
// Must be called after unmarshalling before the config is used.
func (c *Pagesync) Wire() {
	c.CollabAPI.Global = &c.Global
	c.WorkspaceAPI.Global = &c.Global
}

// Load parses the given file and returns it as a Pagesync config. Relative
// paths in the config are resolved against the config file's directory.
func Load(configPath string) (*Pagesync, error) {
	configData, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	basePath, err := filepath.Abs(".")
	if err != nil {
		return nil, err
	}
	// Pass the current working directory and os.ReadFile so that they can
	// be mocked in the tests
	return loadConfig(basePath, configData, os.ReadFile)
}

func loadConfig(
	basePath string,
	configData []byte,
	readFile func(string) ([]byte, error),
) (*Pagesync, error) {
	var c Pagesync
	c.Defaults(DefaultOpts{})

	var err error
	if err = yaml.Unmarshal(configData, &c); err != nil {
		return nil, err
	}

	if c.Version != Version {
		return nil, fmt.Errorf(
			"config version is %d, expected %d - check documentation for possible migration steps",
			c.Version, Version,
		)
	}

	c.Wire()

	// Generate data directory paths relative to the config file location.
	if c.Global.JetStream.StoragePath == "" {
		c.Global.JetStream.StoragePath = Path(basePath)
	}

	var configErrs ConfigErrors
	c.Verify(&configErrs)
	if configErrs != nil {
		return nil, configErrs
	}
	return &c, nil
}

// A ConfigErrors stores problems encountered when parsing a config file.
// It implements the error interface.
type ConfigErrors []string

// Add appends an error to the list of errors in this ConfigErrors.
// It is a wrapper to the builtin append and hides pointers from
// the client code.
// This method is safe to use with an uninitialized ConfigErrors because
// if it is nil, it will be properly allocated.
func (errs *ConfigErrors) Add(str string) {
	*errs = append(*errs, str)
}

// Error returns a string detailing how many errors were contained
func (errs ConfigErrors) Error() string {
	if len(errs) == 1 {
		return errs[0]
	}
	return fmt.Sprintf(
		"%s (and %d other problems)", errs[0], len(errs)-1,
	)
}

// checkNotEmpty verifies the given value is not empty in the configuration.
// If it is, adds an error to the list.
func checkNotEmpty(configErrs *ConfigErrors, key, value string) {
	if value == "" {
		configErrs.Add(fmt.Sprintf("missing config key %q", key))
	}
}

// checkPositive verifies the given value is positive (zero included)
// in the configuration. If it is not, adds an error to the list.
func checkPositive(configErrs *ConfigErrors, key string, value int64) {
	if value < 0 {
		configErrs.Add(fmt.Sprintf("invalid value for config key %q: %d", key, value))
	}
}

// SetupTracing configures the opentracing using the supplied configuration.
func (c *Pagesync) SetupTracing() (closer io.Closer, err error) {
	if !c.Tracing.Enabled {
		return io.NopCloser(nil), nil
	}
	return c.Tracing.Jaeger.InitGlobalTracer(
		"Pagesync",
		jaegerconfig.Logger(logrusLogger{logrus.StandardLogger()}),
		jaegerconfig.Metrics(jaegermetrics.NullFactory),
	)
}

// logrusLogger is a small wrapper that implements jaeger.Logger using logrus.
type logrusLogger struct {
	l *logrus.Logger
}

func (l logrusLogger) Error(msg string) {
	l.l.Error(msg)
}

func (l logrusLogger) Infof(msg string, args ...interface{}) {
	l.l.Infof(msg, args...)
}

// Path on the filesystem, relative paths are resolved against the process
// working directory.
type Path string

// DataUnit is a size in bytes. It unmarshals from YAML either as a plain
// integer byte count or as a human-readable quantity such as "64mb".
type DataUnit int64

var dataUnitRegexp = regexp.MustCompile(`^([0-9]+)([kmgt]b?)?$`)

func (d *DataUnit) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var n int64
	if err := unmarshal(&n); err == nil {
		*d = DataUnit(n)
		return nil
	}
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	match := dataUnitRegexp.FindStringSubmatch(strings.ToLower(strings.TrimSpace(raw)))
	if match == nil {
		return fmt.Errorf("invalid data unit %q", raw)
	}
	n, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid data unit %q: %w", raw, err)
	}
	switch match[2] {
	case "t", "tb":
		n *= 1024
		fallthrough
	case "g", "gb":
		n *= 1024
		fallthrough
	case "m", "mb":
		n *= 1024
		fallthrough
	case "k", "kb":
		n *= 1024
	}
	*d = DataUnit(n)
	return nil
}
