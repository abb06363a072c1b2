// Package exercise implements the guided self-regulation exercises as
// deterministic progressions.
package exercise

import (
	_ "embed"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed content.yaml
var defaultContent []byte

// Phase is one named breathing phase.
type Phase struct {
	Key   string `yaml:"key" json:"key"`
	Label string `yaml:"label" json:"label"`
}

// BreathingContent configures the breathing exercise.
type BreathingContent struct {
	Title         string        `yaml:"title" json:"title"`
	Hint          string        `yaml:"hint" json:"hint"`
	PhaseDuration time.Duration `yaml:"phase_duration" json:"-"`
	Cycles        int           `yaml:"cycles" json:"cycles"`
	Phases        []Phase       `yaml:"phases" json:"phases"`
}

// MovementContent configures the movement exercise.
type MovementContent struct {
	Title        string        `yaml:"title" json:"title"`
	StepDuration time.Duration `yaml:"step_duration" json:"-"`
	Steps        []string      `yaml:"steps" json:"steps"`
}

// AffirmationContent configures the affirmation exercise.
type AffirmationContent struct {
	Title      string   `yaml:"title" json:"title"`
	Count      int      `yaml:"count" json:"count"`
	FinalTitle string   `yaml:"final_title" json:"final_title"`
	FinalText  string   `yaml:"final_text" json:"final_text"`
	Pool       []string `yaml:"pool" json:"pool"`
}

// Content is the full exercise catalogue.
type Content struct {
	StarsPerCompletion int                `yaml:"stars_per_completion" json:"stars_per_completion"`
	Tick               time.Duration      `yaml:"tick" json:"-"`
	Breathing          BreathingContent   `yaml:"breathing" json:"breathing"`
	Movement           MovementContent    `yaml:"movement" json:"movement"`
	Affirmation        AffirmationContent `yaml:"affirmation" json:"affirmation"`
}

// ParseContent decodes and validates a YAML catalogue.
func ParseContent(data []byte) (*Content, error) {
	var c Content
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse exercise content: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid exercise content: %w", err)
	}
	return &c, nil
}

// DefaultContent returns the embedded catalogue.
func DefaultContent() *Content {
	c, err := ParseContent(defaultContent)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Content) validate() error {
	switch {
	case c.StarsPerCompletion < 0:
		return errors.New("stars_per_completion must be >= 0")
	case c.Tick <= 0:
		return errors.New("tick must be > 0")
	case c.Breathing.PhaseDuration <= 0 || c.Breathing.Cycles <= 0 || len(c.Breathing.Phases) == 0:
		return errors.New("breathing needs phases, a phase duration and cycles")
	case c.Movement.StepDuration <= 0 || len(c.Movement.Steps) == 0:
		return errors.New("movement needs steps and a step duration")
	case c.Affirmation.Count <= 0 || c.Affirmation.Count > len(c.Affirmation.Pool):
		return fmt.Errorf("affirmation count %d must be within pool size %d", c.Affirmation.Count, len(c.Affirmation.Pool))
	}
	return nil
}
