// Package config loads and validates the provider's YAML configuration.
// Unknown keys are rejected so a typo in a deployment manifest fails fast
// instead of silently falling back to a default.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling from strings
// like "30s".
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings (or numbers representing
// nanoseconds).
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		d.Duration = 0
		return nil
	}

	if value.Kind == yaml.ScalarNode {
		var asString string
		if err := value.Decode(&asString); err == nil {
			if asString == "" {
				d.Duration = 0
				return nil
			}
			parsed, err := time.ParseDuration(asString)
			if err != nil {
				return fmt.Errorf("invalid duration %q: %w", asString, err)
			}
			d.Duration = parsed
			return nil
		}

		var asInt int64
		if err := value.Decode(&asInt); err == nil {
			d.Duration = time.Duration(asInt)
			return nil
		}
	}

	return fmt.Errorf("invalid duration value: %s", value.Value)
}

// AsDuration exposes the inner time.Duration value.
func (d Duration) AsDuration() time.Duration {
	return d.Duration
}

// Config is the root configuration document for one provider deployment.
type Config struct {
	// Project is the cloud project everything is provisioned into.
	Project string `yaml:"project"`

	// ProvisionerID identifies the fleet-manager deployment.
	ProvisionerID string `yaml:"provisionerId"`

	// ProviderID is this provider's tag.
	ProviderID string `yaml:"providerId"`

	// RootURL is the fleet manager's public service URL.
	RootURL string `yaml:"rootUrl"`

	// CredentialURL is where booted instances claim their credentials.
	// Defaults to RootURL + "/credentials".
	CredentialURL string `yaml:"credentialUrl,omitempty"`

	// ServiceAccountEmail is the bootstrap service account instances run as.
	ServiceAccountEmail string `yaml:"serviceAccountEmail"`

	// Identity is the provider's own member string, granted impersonation of
	// the bootstrap account.
	Identity string `yaml:"identity"`

	// RoleName is the custom role granting InstancePermissions.
	RoleName string `yaml:"roleName"`

	// InstancePermissions is the exact permission set workers need.
	InstancePermissions []string `yaml:"instancePermissions,omitempty"`

	// TickInterval is the control-loop cadence per worker type. Defaults to
	// 30s.
	TickInterval Duration `yaml:"tickInterval,omitempty"`

	// MetricsAddr exposes the Prometheus endpoint when set (e.g. ":9090").
	MetricsAddr string `yaml:"metricsAddr,omitempty"`

	// Database selects the persistence backend.
	Database DatabaseConfig `yaml:"database"`
}

// DatabaseConfig selects and parameterizes the store implementation.
type DatabaseConfig struct {
	// Adapter is one of "memory", "postgres" or "sqlite".
	Adapter string `yaml:"adapter"`

	// URL is the connection string for the postgres adapter.
	URL string `yaml:"url,omitempty"`

	// Path is the database file for the sqlite adapter.
	Path string `yaml:"path,omitempty"`
}

// DefaultTickInterval is used when the document does not set tickInterval.
const DefaultTickInterval = 30 * time.Second

// Load reads and parses a configuration file from disk.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	return decode(f)
}

func decode(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.CredentialURL == "" && c.RootURL != "" {
		c.CredentialURL = c.RootURL + "/credentials"
	}
	if c.TickInterval.Duration == 0 {
		c.TickInterval = Duration{DefaultTickInterval}
	}
	if c.Database.Adapter == "" {
		c.Database.Adapter = "memory"
	}
}

// Validate performs integrity checks on the configuration.
func (c *Config) Validate() error {
	if c.Project == "" {
		return fmt.Errorf("project is required")
	}
	if c.ProvisionerID == "" {
		return fmt.Errorf("provisionerId is required")
	}
	if c.ProviderID == "" {
		return fmt.Errorf("providerId is required")
	}
	if c.RootURL == "" {
		return fmt.Errorf("rootUrl is required")
	}
	if c.ServiceAccountEmail == "" {
		return fmt.Errorf("serviceAccountEmail is required")
	}
	if c.Identity == "" {
		return fmt.Errorf("identity is required")
	}
	if c.RoleName == "" {
		return fmt.Errorf("roleName is required")
	}

	switch c.Database.Adapter {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres adapter")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite adapter")
		}
	default:
		return fmt.Errorf("unsupported database adapter %q", c.Database.Adapter)
	}

	return nil
}
