// Package config loads the netsniff YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Environment overrides.
const (
	EnvRefDB    = "NETSNIFF_REFDB"
	EnvNATSURL  = "NETSNIFF_NATS_URL"
	EnvLogLevel = "NETSNIFF_LOG_LEVEL"
)

// Duration is a time.Duration written as "30s", "5m" in YAML.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string: %w", value.Line, err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// CaptureConfig selects the packet source.
type CaptureConfig struct {
	Interface   string `yaml:"interface"`
	File        string `yaml:"file"` // offline pcap, takes precedence over Interface
	Snaplen     int    `yaml:"snaplen"`
	Promiscuous bool   `yaml:"promiscuous"`
	BPF         string `yaml:"bpf"`
	Echo        bool   `yaml:"echo"` // print every accepted packet
}

// FilterConfig is the display filter applied after decoding.
type FilterConfig struct {
	Protocol string `yaml:"protocol"`
	SrcIP    string `yaml:"src_ip"`
	DstIP    string `yaml:"dst_ip"`
	Port     string `yaml:"port"`
}

// ClassificationConfig tunes the device tracker.
type ClassificationConfig struct {
	Interval          Duration `yaml:"interval"`
	MinPackets        int64    `yaml:"min_packets"`
	MaxSamplesPerPort int      `yaml:"max_samples_per_port"`
	Retention         Duration `yaml:"retention"`
}

// RefDataConfig locates the reference database. An empty path uses the
// built-in defaults held in memory.
type RefDataConfig struct {
	Path string `yaml:"path"`
	Seed bool   `yaml:"seed"`
}

// AnomalyConfig tunes the alert rules.
type AnomalyConfig struct {
	BroadcastThreshold int      `yaml:"broadcast_threshold"`
	DoSThreshold       int      `yaml:"dos_threshold"`
	UnsecureCooldown   Duration `yaml:"unsecure_cooldown"`
}

// DiscoveryConfig controls the startup ARP sweep.
type DiscoveryConfig struct {
	Enabled bool     `yaml:"enabled"`
	Timeout Duration `yaml:"timeout"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
	File  string `yaml:"file"` // empty logs to stderr
}

// APIConfig controls the HTTP API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// NATSConfig controls classification event publishing.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// ReportConfig controls shutdown output.
type ReportConfig struct {
	Detailed bool   `yaml:"detailed"`
	HTMLDir  string `yaml:"html_dir"` // empty disables the HTML report
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Capture        CaptureConfig        `yaml:"capture"`
	Filter         FilterConfig         `yaml:"filter"`
	Classification ClassificationConfig `yaml:"classification"`
	RefData        RefDataConfig        `yaml:"refdata"`
	Anomaly        AnomalyConfig        `yaml:"anomaly"`
	Discovery      DiscoveryConfig      `yaml:"discovery"`
	Log            LogConfig            `yaml:"log"`
	API            APIConfig            `yaml:"api"`
	NATS           NATSConfig           `yaml:"nats"`
	Report         ReportConfig         `yaml:"report"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			Snaplen:     65535,
			Promiscuous: true,
			Echo:        true,
		},
		Classification: ClassificationConfig{
			Interval:          Duration{30 * time.Second},
			MinPackets:        10,
			MaxSamplesPerPort: 1000,
		},
		RefData: RefDataConfig{
			Path: "netsniff.db",
			Seed: true,
		},
		Anomaly: AnomalyConfig{
			BroadcastThreshold: 50,
			DoSThreshold:       500,
			UnsecureCooldown:   Duration{10 * time.Second},
		},
		Discovery: DiscoveryConfig{
			Timeout: Duration{3 * time.Second},
		},
		Log: LogConfig{Level: "info"},
		API: APIConfig{Listen: "127.0.0.1:8080"},
		NATS: NATSConfig{
			URL:     "nats://127.0.0.1:4222",
			Subject: "netsniff.devices.classified",
		},
	}
}

// LoadConfig reads the configuration from a YAML file on top of the
// defaults and applies environment overrides. An empty path skips the
// file. The result is not validated, callers layer their own overrides
// first and then call Validate.
func LoadConfig(filePath string) (*Config, error) {
	cfg := Default()

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvRefDB); ok {
		c.RefData.Path = v
	}
	if v, ok := lookup(EnvNATSURL); ok && v != "" {
		c.NATS.URL = v
		c.NATS.Enabled = true
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

// Validate checks value ranges. Errors wrap ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(c.Capture.Snaplen > 0 && c.Capture.Snaplen <= 262144, "capture.snaplen %d out of range", c.Capture.Snaplen)
	check(c.Classification.Interval.Duration >= 0, "classification.interval must not be negative")
	check(c.Classification.MinPackets >= 0, "classification.min_packets must not be negative")
	check(c.Classification.Retention.Duration >= 0, "classification.retention must not be negative")
	check(c.Anomaly.BroadcastThreshold > 0, "anomaly.broadcast_threshold must be positive")
	check(c.Anomaly.DoSThreshold > 0, "anomaly.dos_threshold must be positive")

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		check(false, "log.level %q", c.Log.Level)
	}

	if c.API.Enabled {
		check(c.API.Listen != "", "api.listen is required when the API is enabled")
	}
	if c.NATS.Enabled {
		check(c.NATS.URL != "", "nats.url is required when NATS is enabled")
		check(c.NATS.Subject != "", "nats.subject is required when NATS is enabled")
	}

	return errors.Join(errs...)
}
