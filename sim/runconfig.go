package sim

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/flowsim/flowsim/sim/trace"
)

// RunConfig is the YAML form of the run settings.
// Nil pointer fields mean "not set in YAML" and leave the Config untouched.
type RunConfig struct {
	Seed                 *int64 `yaml:"seed"`
	End                  *int64 `yaml:"end"`
	RandomNotifyManagers *bool  `yaml:"random_notify_managers"`
	RandomWorkGroupOrder *bool  `yaml:"random_workgroup_order"`
	LogLevel             string `yaml:"log_level"`
	Trace                string `yaml:"trace"`
}

// LoadRunConfig reads, parses and validates a YAML run configuration file.
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run config: %w", err)
	}
	var rc RunConfig
	if err := yaml.Unmarshal(data, &rc); err != nil {
		return nil, fmt.Errorf("parsing run config: %w", err)
	}
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run config %s: %w", path, err)
	}
	return &rc, nil
}

// Validate checks value ranges and names.
func (rc *RunConfig) Validate() error {
	if rc.End != nil && *rc.End <= 0 {
		return fmt.Errorf("end must be positive, got %d", *rc.End)
	}
	if rc.LogLevel != "" {
		if _, err := logrus.ParseLevel(rc.LogLevel); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	if !trace.IsValidTraceLevel(rc.Trace) {
		return fmt.Errorf("unknown trace level %q", rc.Trace)
	}
	return nil
}

// Apply copies the fields set in rc onto cfg.
func (rc *RunConfig) Apply(cfg *Config) {
	if rc.Seed != nil {
		cfg.Seed = *rc.Seed
	}
	if rc.End != nil {
		cfg.EndTs = *rc.End
	}
	if rc.RandomNotifyManagers != nil {
		cfg.RandomNotifyAMs = *rc.RandomNotifyManagers
	}
	if rc.RandomWorkGroupOrder != nil {
		cfg.RandomWorkGroupOrder = *rc.RandomWorkGroupOrder
	}
}
