package services

import (
	"time"

	"gopkg.in/yaml.v3"
)

// BackoffSchedule computes the retry deadline after a recoverable
// computation failure. Delay doubles per failure (Multiplier 2 by default)
// and is capped at Max.
type BackoffSchedule struct {
	Initial    time.Duration `yaml:"initial"`
	Multiplier float64       `yaml:"multiplier"`
	Max        time.Duration `yaml:"max"`
}

func DefaultBackoffSchedule() BackoffSchedule {
	return BackoffSchedule{
		Initial:    time.Minute,
		Multiplier: 2,
		Max:        time.Hour,
	}
}

// UnmarshalYAML accepts durations in time.ParseDuration form ("30s", "1h").
func (b *BackoffSchedule) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Initial    string   `yaml:"initial"`
		Multiplier *float64 `yaml:"multiplier"`
		Max        string   `yaml:"max"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Initial != "" {
		d, err := time.ParseDuration(raw.Initial)
		if err != nil {
			return err
		}
		b.Initial = d
	}
	if raw.Multiplier != nil {
		b.Multiplier = *raw.Multiplier
	}
	if raw.Max != "" {
		d, err := time.ParseDuration(raw.Max)
		if err != nil {
			return err
		}
		b.Max = d
	}
	return nil
}

func (b BackoffSchedule) Delay(failureCount int) time.Duration {
	if failureCount < 1 {
		failureCount = 1
	}
	initial := b.Initial
	if initial <= 0 {
		initial = time.Minute
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 2
	}
	max := b.Max
	if max <= 0 {
		max = time.Hour
	}
	delay := float64(initial)
	for i := 1; i < failureCount; i++ {
		delay *= mult
		if delay >= float64(max) {
			return max
		}
	}
	if delay >= float64(max) {
		return max
	}
	return time.Duration(delay)
}
