package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/drover/pkg/protocol"
	"github.com/cuemby/drover/pkg/registry"
)

// Duration wraps time.Duration so YAML configuration can use values like
// "10s" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Master configures the coordinator node.
type Master struct {
	// BindAddr is the address the three listeners bind to.
	BindAddr string `yaml:"bind_addr"`

	// RegistrationPort, SubmissionPort and UtilizationPort are the three
	// master endpoints. They default to the cluster contract ports.
	RegistrationPort int `yaml:"registration_port"`
	SubmissionPort   int `yaml:"submission_port"`
	UtilizationPort  int `yaml:"utilization_port"`

	// MetricsAddr serves /metrics, /health and /ready. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	// RegistryCapacity bounds the worker pool.
	RegistryCapacity int `yaml:"registry_capacity"`

	// BindRetries is the budget for rebinding a listener port before the
	// process gives up fatally.
	BindRetries int `yaml:"bind_retries"`

	// DispatchMaxAttempts caps dispatch attempts per job, the first attempt
	// included. Zero means unlimited.
	DispatchMaxAttempts int `yaml:"dispatch_max_attempts"`

	// DispatchRetryDelay is the pause before re-dialing a worker after a
	// failed attempt.
	DispatchRetryDelay Duration `yaml:"dispatch_retry_delay"`

	// ProbeInterval is how often worker exec endpoints are TCP-probed.
	// Zero disables probing.
	ProbeInterval Duration `yaml:"probe_interval"`
}

// Worker configures a compute node.
type Worker struct {
	// ExecPort is the port the job listener binds to.
	ExecPort int `yaml:"exec_port"`

	// WorkDir is where job artifacts are materialized and run. Empty means
	// the process working directory.
	WorkDir string `yaml:"work_dir"`

	// ReportMaxInterval bounds the random sleep between utilization
	// reports; each tick sleeps a uniform duration in [0, ReportMaxInterval).
	ReportMaxInterval Duration `yaml:"report_max_interval"`

	// BindRetries is the budget for rebinding the exec port.
	BindRetries int `yaml:"bind_retries"`
}

// Config is the root of the drover configuration file.
type Config struct {
	Master Master `yaml:"master"`
	Worker Worker `yaml:"worker"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Master: Master{
			BindAddr:            "0.0.0.0",
			RegistrationPort:    protocol.DefaultRegistrationPort,
			SubmissionPort:      protocol.DefaultSubmissionPort,
			UtilizationPort:     protocol.DefaultUtilizationPort,
			MetricsAddr:         ":9090",
			RegistryCapacity:    registry.DefaultCapacity,
			BindRetries:         5,
			DispatchMaxAttempts: 0,
			DispatchRetryDelay:  Duration(10 * time.Second),
			ProbeInterval:       Duration(30 * time.Second),
		},
		Worker: Worker{
			ExecPort:          protocol.DefaultExecPort,
			WorkDir:           "",
			ReportMaxInterval: Duration(10 * time.Second),
			BindRetries:       5,
		},
	}
}

// Load reads the configuration file at path, filling unset fields with
// defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults restores defaults for fields an explicit file left zero.
func (c *Config) applyDefaults() {
	def := Default()

	if c.Master.BindAddr == "" {
		c.Master.BindAddr = def.Master.BindAddr
	}
	if c.Master.RegistrationPort == 0 {
		c.Master.RegistrationPort = def.Master.RegistrationPort
	}
	if c.Master.SubmissionPort == 0 {
		c.Master.SubmissionPort = def.Master.SubmissionPort
	}
	if c.Master.UtilizationPort == 0 {
		c.Master.UtilizationPort = def.Master.UtilizationPort
	}
	if c.Master.RegistryCapacity == 0 {
		c.Master.RegistryCapacity = def.Master.RegistryCapacity
	}
	if c.Master.BindRetries == 0 {
		c.Master.BindRetries = def.Master.BindRetries
	}
	if c.Master.DispatchRetryDelay == 0 {
		c.Master.DispatchRetryDelay = def.Master.DispatchRetryDelay
	}
	if c.Worker.ExecPort == 0 {
		c.Worker.ExecPort = def.Worker.ExecPort
	}
	if c.Worker.ReportMaxInterval == 0 {
		c.Worker.ReportMaxInterval = def.Worker.ReportMaxInterval
	}
	if c.Worker.BindRetries == 0 {
		c.Worker.BindRetries = def.Worker.BindRetries
	}
}
