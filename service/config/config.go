package config

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"
)

// Config carries the tunable knobs of the offload service. Everything has a
// usable default; a config file only overrides what it names.
type Config struct {
	// WorkerBinary is the path of the worker executable; empty means the
	// coordinator's own binary re-invoked in worker mode.
	WorkerBinary string   `yaml:"workerBinary,omitempty" json:"workerBinary,omitempty"`
	WorkerArgs   []string `yaml:"workerArgs,omitempty" json:"workerArgs,omitempty"`

	// MaxWorkers overrides the derived pool cap when positive.
	MaxWorkers int `yaml:"maxWorkers,omitempty" json:"maxWorkers,omitempty"`
	// MemoryCeilingMB overrides the derived per-worker ceiling when positive.
	MemoryCeilingMB int `yaml:"memoryCeilingMB,omitempty" json:"memoryCeilingMB,omitempty"`

	// TaskTimeout is the default per-task deadline.
	TaskTimeout time.Duration `yaml:"taskTimeout,omitempty" json:"taskTimeout,omitempty"`
	// GracePeriod bounds graceful worker termination before a forced kill.
	GracePeriod time.Duration `yaml:"gracePeriod,omitempty" json:"gracePeriod,omitempty"`

	// IdleAfter and DeepIdleAfter are the governor's inactivity thresholds.
	IdleAfter     time.Duration `yaml:"idleAfter,omitempty" json:"idleAfter,omitempty"`
	DeepIdleAfter time.Duration `yaml:"deepIdleAfter,omitempty" json:"deepIdleAfter,omitempty"`

	// TempBaseURL is where workers materialize temp artifacts.
	TempBaseURL string `yaml:"tempBaseURL,omitempty" json:"tempBaseURL,omitempty"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		GracePeriod:   3 * time.Second,
		IdleAfter:     5 * time.Minute,
		DeepIdleAfter: 15 * time.Minute,
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.MaxWorkers < 0 {
		return fmt.Errorf("maxWorkers must not be negative: %v", c.MaxWorkers)
	}
	if c.MemoryCeilingMB < 0 {
		return fmt.Errorf("memoryCeilingMB must not be negative: %v", c.MemoryCeilingMB)
	}
	if c.IdleAfter > 0 && c.DeepIdleAfter > 0 && c.DeepIdleAfter <= c.IdleAfter {
		return fmt.Errorf("deepIdleAfter (%v) must exceed idleAfter (%v)", c.DeepIdleAfter, c.IdleAfter)
	}
	return nil
}

// configAlias mirrors Config with durations as strings so that YAML files can
// say "90s" or "5m". Pointer fields distinguish "absent" from "zero" so a
// file only overrides what it names.
type configAlias struct {
	WorkerBinary    string   `yaml:"workerBinary"`
	WorkerArgs      []string `yaml:"workerArgs"`
	MaxWorkers      *int     `yaml:"maxWorkers"`
	MemoryCeilingMB *int     `yaml:"memoryCeilingMB"`
	TaskTimeout     string   `yaml:"taskTimeout"`
	GracePeriod     string   `yaml:"gracePeriod"`
	IdleAfter       string   `yaml:"idleAfter"`
	DeepIdleAfter   string   `yaml:"deepIdleAfter"`
	TempBaseURL     string   `yaml:"tempBaseURL"`
}

// UnmarshalYAML layers the decoded values over whatever the receiver already
// holds, typically the defaults.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	aux := &configAlias{}
	if err := node.Decode(aux); err != nil {
		return err
	}
	if aux.WorkerBinary != "" {
		c.WorkerBinary = aux.WorkerBinary
	}
	if len(aux.WorkerArgs) > 0 {
		c.WorkerArgs = aux.WorkerArgs
	}
	if aux.MaxWorkers != nil {
		c.MaxWorkers = *aux.MaxWorkers
	}
	if aux.MemoryCeilingMB != nil {
		c.MemoryCeilingMB = *aux.MemoryCeilingMB
	}
	if aux.TempBaseURL != "" {
		c.TempBaseURL = aux.TempBaseURL
	}
	for _, field := range []struct {
		raw    string
		target *time.Duration
	}{
		{aux.TaskTimeout, &c.TaskTimeout},
		{aux.GracePeriod, &c.GracePeriod},
		{aux.IdleAfter, &c.IdleAfter},
		{aux.DeepIdleAfter, &c.DeepIdleAfter},
	} {
		if field.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(field.raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", field.raw, err)
		}
		*field.target = parsed
	}
	return nil
}

// Load reads a YAML config from any afs-addressable URL (file path, file://,
// embed:///, mem://) layered over the defaults.
func Load(ctx context.Context, URL string) (*Config, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %v: %w", URL, err)
	}
	result := DefaultConfig()
	if err = yaml.Unmarshal(data, result); err != nil {
		return nil, fmt.Errorf("failed to parse config %v: %w", URL, err)
	}
	if err = result.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %v: %w", URL, err)
	}
	return result, nil
}
