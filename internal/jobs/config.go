package jobs

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/orionsky/obsdb-backend/internal/logger"
	"github.com/orionsky/obsdb-backend/internal/services"
	"github.com/orionsky/obsdb-backend/internal/utils"
)

// Config drives the calc worker runtime. Values come from the YAML file
// named by WORKER_CONFIG (default configs/worker.yaml); worker counts can be
// overridden per-deployment through the environment.
type Config struct {
	ObscalcWorkers     int                      `yaml:"obscalc_workers"`
	BlindOffsetWorkers int                      `yaml:"blind_offset_workers"`
	PollInterval       time.Duration            `yaml:"poll_interval"`
	CalcTimeout        time.Duration            `yaml:"calc_timeout"`
	Backoff            services.BackoffSchedule `yaml:"backoff"`
}

func DefaultConfig() Config {
	return Config{
		ObscalcWorkers:     4,
		BlindOffsetWorkers: 1,
		PollInterval:       time.Second,
		CalcTimeout:        2 * time.Minute,
		Backoff:            services.DefaultBackoffSchedule(),
	}
}

// UnmarshalYAML accepts durations in time.ParseDuration form and leaves
// fields absent from the document at their prior (default) values.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ObscalcWorkers     *int                      `yaml:"obscalc_workers"`
		BlindOffsetWorkers *int                      `yaml:"blind_offset_workers"`
		PollInterval       string                    `yaml:"poll_interval"`
		CalcTimeout        string                    `yaml:"calc_timeout"`
		Backoff            *services.BackoffSchedule `yaml:"backoff"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.ObscalcWorkers != nil {
		c.ObscalcWorkers = *raw.ObscalcWorkers
	}
	if raw.BlindOffsetWorkers != nil {
		c.BlindOffsetWorkers = *raw.BlindOffsetWorkers
	}
	if raw.PollInterval != "" {
		d, err := time.ParseDuration(raw.PollInterval)
		if err != nil {
			return err
		}
		c.PollInterval = d
	}
	if raw.CalcTimeout != "" {
		d, err := time.ParseDuration(raw.CalcTimeout)
		if err != nil {
			return err
		}
		c.CalcTimeout = d
	}
	if raw.Backoff != nil {
		c.Backoff = *raw.Backoff
	}
	return nil
}

func LoadConfig(log *logger.Logger) Config {
	cfg := DefaultConfig()
	path := utils.GetEnv("WORKER_CONFIG", "configs/worker.yaml", log)
	raw, err := os.ReadFile(path)
	if err != nil {
		if log != nil {
			log.Warn("Worker config not readable, using defaults", "path", path, "error", err)
		}
	} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
		if log != nil {
			log.Warn("Worker config not parseable, using defaults", "path", path, "error", err)
		}
		cfg = DefaultConfig()
	}
	cfg.ObscalcWorkers = utils.GetEnvAsInt("OBSCALC_WORKERS", cfg.ObscalcWorkers, log)
	cfg.BlindOffsetWorkers = utils.GetEnvAsInt("BLIND_OFFSET_WORKERS", cfg.BlindOffsetWorkers, log)
	if cfg.ObscalcWorkers < 1 {
		cfg.ObscalcWorkers = 1
	}
	if cfg.BlindOffsetWorkers < 1 {
		cfg.BlindOffsetWorkers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.CalcTimeout <= 0 {
		cfg.CalcTimeout = 2 * time.Minute
	}
	return cfg
}
