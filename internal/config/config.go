// Package config provides configuration loading for the action agent.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full agent configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	NATS       NATSConfig       `yaml:"nats"`
	GCP        GCPConfig        `yaml:"gcp"`
	AWS        AWSConfig        `yaml:"aws"`
	Kubernetes KubernetesConfig `yaml:"kubernetes"`
	Policy     PolicyConfig     `yaml:"policy"`
	Audit      AuditConfig      `yaml:"audit"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// ListenAddress is the host:port the API binds to. Defaults to :8080.
	ListenAddress string `yaml:"listenAddress"`

	// ShutdownTimeoutSeconds bounds graceful shutdown. Defaults to 15.
	ShutdownTimeoutSeconds int `yaml:"shutdownTimeoutSeconds"`
}

// NATSConfig configures the queue consumer.
type NATSConfig struct {
	// Enabled turns the NATS consumer on.
	Enabled bool `yaml:"enabled"`

	// URL is the server URL, for example nats://127.0.0.1:4222.
	// Required when enabled.
	URL string `yaml:"url"`

	// Subject is the request subject. Defaults to "cloud.actions".
	Subject string `yaml:"subject"`

	// Queue is the queue group name, so multiple agents share the load.
	// Defaults to "action-agent".
	Queue string `yaml:"queue"`
}

// GCPConfig configures the Compute Engine action pack.
type GCPConfig struct {
	// Enabled registers the GCP actions.
	Enabled bool `yaml:"enabled"`

	// CredentialsFile is an optional service account key path. Empty means
	// application default credentials.
	CredentialsFile string `yaml:"credentialsFile"`

	// Endpoint overrides the Compute API endpoint, for emulators and tests.
	Endpoint string `yaml:"endpoint"`

	// WaitTimeoutSeconds bounds each operation wait. Defaults to 300.
	WaitTimeoutSeconds int `yaml:"waitTimeoutSeconds"`
}

// AWSConfig configures the EC2 action pack.
type AWSConfig struct {
	// Enabled registers the AWS actions.
	Enabled bool `yaml:"enabled"`

	// Region is the EC2 region. Required when enabled.
	Region string `yaml:"region"`

	// StopWaitSeconds bounds the instance-stopped waiter. Defaults to 300.
	StopWaitSeconds int `yaml:"stopWaitSeconds"`
}

// KubernetesConfig configures the node action pack.
type KubernetesConfig struct {
	// Enabled registers the Kubernetes actions.
	Enabled bool `yaml:"enabled"`

	// Kubeconfig is the kubeconfig path used outside a cluster. Empty means
	// the usual default locations.
	Kubeconfig string `yaml:"kubeconfig"`

	// PrometheusURL enables the node utilization action when set.
	PrometheusURL string `yaml:"prometheusURL"`
}

// PolicyRule is one deny rule.
type PolicyRule struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
}

// PolicyConfig configures the deny rules applied before every invocation.
type PolicyConfig struct {
	DenyRules []PolicyRule `yaml:"denyRules"`
}

// AuditConfig configures the signed invocation log.
type AuditConfig struct {
	// Enabled turns audit logging on for mutating actions.
	Enabled bool `yaml:"enabled"`

	// Path is the JSON-lines audit log file. Defaults to "audit.log".
	Path string `yaml:"path"`

	// SecretKey signs each record. Required when enabled.
	SecretKey string `yaml:"secretKey"`
}

// Load reads configuration from a YAML file.
// Returns an error if the file is missing or invalid.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks required fields and fills defaults for optional ones.
func (c *Config) Validate() error {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = ":8080"
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = 15
	}

	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return fmt.Errorf("nats.url is required when nats is enabled")
		}
		if c.NATS.Subject == "" {
			c.NATS.Subject = "cloud.actions"
		}
		if c.NATS.Queue == "" {
			c.NATS.Queue = "action-agent"
		}
	}

	if c.GCP.Enabled && c.GCP.WaitTimeoutSeconds == 0 {
		c.GCP.WaitTimeoutSeconds = 300
	}
	if c.GCP.WaitTimeoutSeconds < 0 {
		return fmt.Errorf("gcp.waitTimeoutSeconds must not be negative")
	}

	if c.AWS.Enabled {
		if c.AWS.Region == "" {
			return fmt.Errorf("aws.region is required when aws is enabled")
		}
		if c.AWS.StopWaitSeconds == 0 {
			c.AWS.StopWaitSeconds = 300
		}
		if c.AWS.StopWaitSeconds < 0 {
			return fmt.Errorf("aws.stopWaitSeconds must not be negative")
		}
	}

	for i, rule := range c.Policy.DenyRules {
		if rule.Expression == "" {
			return fmt.Errorf("policy.denyRules[%d].expression is required", i)
		}
	}

	if c.Audit.Enabled {
		if c.Audit.SecretKey == "" {
			return fmt.Errorf("audit.secretKey is required when audit is enabled")
		}
		if c.Audit.Path == "" {
			c.Audit.Path = "audit.log"
		}
	}

	return nil
}

// ShutdownTimeout returns the graceful shutdown budget as a duration.
func (s *ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// WaitTimeout returns the operation wait budget as a duration.
func (g *GCPConfig) WaitTimeout() time.Duration {
	return time.Duration(g.WaitTimeoutSeconds) * time.Second
}

// StopWait returns the stop waiter budget as a duration.
func (a *AWSConfig) StopWait() time.Duration {
	return time.Duration(a.StopWaitSeconds) * time.Second
}
