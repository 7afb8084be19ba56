// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the provisioning module.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultMailboxQuota = 30720
	defaultAliases      = 500
)

// Config holds the complete application configuration.
type Config struct {
	Panel   PanelConfig   `yaml:"panel"`
	CallLog CallLogConfig `yaml:"call_log"`
	Alerts  AlertConfig   `yaml:"alerts"`
	Logging LoggingConfig `yaml:"logging"`
}

// PanelConfig holds defaults applied to every panel client. Server host and
// credentials come from the host platform with each call, not from here.
type PanelConfig struct {
	Scheme             string        `yaml:"scheme"`
	MailboxQuota       int64         `yaml:"mailbox_quota"`
	Aliases            int           `yaml:"aliases"`
	VerifyResponse     bool          `yaml:"verify_response"`
	Timeout            time.Duration `yaml:"timeout"`
	CAFile             string        `yaml:"ca_file"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

// CallLogConfig holds the module-call log file settings. An empty File
// disables the file sink.
type CallLogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// AlertConfig holds AWS SES settings for failure alerts.
type AlertConfig struct {
	Region          string   `yaml:"region"`
	AccessKeyID     string   `yaml:"access_key_id"`
	SecretAccessKey string   `yaml:"secret_access_key"`
	Sender          string   `yaml:"sender"`
	Recipients      []string `yaml:"recipients"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, cfg.validate()
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AlertsConfigured returns true if SES region, sender and at least one
// recipient are set.
func (c *Config) AlertsConfigured() bool {
	return c.Alerts.Region != "" &&
		c.Alerts.Sender != "" &&
		len(c.Alerts.Recipients) > 0
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Panel.Scheme = "https"
	c.Panel.MailboxQuota = defaultMailboxQuota
	c.Panel.Aliases = defaultAliases
	c.CallLog.MaxSizeMB = 10
	c.CallLog.MaxBackups = 5
	c.CallLog.MaxAgeDays = 30
	c.Logging.Level = "info"
}

func (c *Config) validate() error {
	switch c.Panel.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("invalid panel scheme %q: must be http or https", c.Panel.Scheme)
	}
	if c.Panel.MailboxQuota <= 0 {
		return fmt.Errorf("invalid mailbox quota %d: must be positive", c.Panel.MailboxQuota)
	}
	if c.Panel.Aliases < 0 {
		return fmt.Errorf("invalid alias allowance %d: must not be negative", c.Panel.Aliases)
	}
	if c.Panel.Timeout < 0 {
		return fmt.Errorf("invalid panel timeout %s: must not be negative", c.Panel.Timeout)
	}
	return nil
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("MAILCOW_SCHEME"); v != "" {
		c.Panel.Scheme = strings.ToLower(v)
	}
	if v := os.Getenv("MAILCOW_MAILBOX_QUOTA"); v != "" {
		if quota, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Panel.MailboxQuota = quota
		}
	}
	if v := os.Getenv("MAILCOW_ALIASES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Panel.Aliases = n
		}
	}
	if v := os.Getenv("MAILCOW_VERIFY_RESPONSE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Panel.VerifyResponse = b
		}
	}
	if v := os.Getenv("MAILCOW_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Panel.Timeout = d
		}
	}
	if v := os.Getenv("MAILCOW_CA_FILE"); v != "" {
		c.Panel.CAFile = v
	}
	if v := os.Getenv("MAILCOW_INSECURE_SKIP_VERIFY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Panel.InsecureSkipVerify = b
		}
	}

	if v := os.Getenv("CALLLOG_FILE"); v != "" {
		c.CallLog.File = v
	}
	if v := os.Getenv("CALLLOG_MAX_SIZE_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CallLog.MaxSizeMB = n
		}
	}
	if v := os.Getenv("CALLLOG_MAX_BACKUPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CallLog.MaxBackups = n
		}
	}
	if v := os.Getenv("CALLLOG_MAX_AGE_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CallLog.MaxAgeDays = n
		}
	}

	if v := os.Getenv("ALERT_SES_REGION"); v != "" {
		c.Alerts.Region = v
	}
	if v := os.Getenv("ALERT_SES_ACCESS_KEY_ID"); v != "" {
		c.Alerts.AccessKeyID = v
	}
	if v := os.Getenv("ALERT_SES_SECRET_ACCESS_KEY"); v != "" {
		c.Alerts.SecretAccessKey = v
	}
	if v := os.Getenv("ALERT_SES_SENDER"); v != "" {
		c.Alerts.Sender = v
	}
	if v := os.Getenv("ALERT_RECIPIENTS"); v != "" {
		c.Alerts.Recipients = splitList(v)
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// splitList parses a comma-separated list, dropping empty items.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
