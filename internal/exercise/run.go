package exercise

import (
	"context"
	"time"

	"github.com/ashureev/regbuddy/internal/domain"
)

// Run drives p with a ticker until it completes or ctx is done. Each tick
// advances the progression by tick. Cancelling discards progress and
// returns ctx.Err(). User-driven progressions only complete through Next,
// so Run just waits for them.
func Run(ctx context.Context, p Progression, tick time.Duration, onBoundary func(Boundary)) error {
	return RunAt(ctx, p, tick, tick, onBoundary)
}

// RunAt is Run with the wall-clock interval decoupled from the exercise
// time each tick advances by, e.g. to preview an exercise faster.
func RunAt(ctx context.Context, p Progression, interval, step time.Duration, onBoundary func(Boundary)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for !p.Done() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, b := range p.Advance(step) {
				if onBoundary != nil {
					onBoundary(b)
				}
			}
		}
	}
	return nil
}

// Plan describes an exercise to a client.
type Plan struct {
	Tool               domain.Tool `json:"tool"`
	Title              string      `json:"title"`
	Hint               string      `json:"hint,omitempty"`
	StepSeconds        float64     `json:"step_seconds,omitempty"`
	Cycles             int         `json:"cycles,omitempty"`
	Steps              []string    `json:"steps"`
	FinalTitle         string      `json:"final_title,omitempty"`
	FinalText          string      `json:"final_text,omitempty"`
	TotalSeconds       float64     `json:"total_seconds,omitempty"`
	StarsPerCompletion int         `json:"stars_per_completion"`
}

// Plan returns the client-facing plan for tool. For affirmations Steps is
// the sample taken by p, which must be an *Affirmations.
func (c *Content) Plan(tool domain.Tool, p Progression) (Plan, error) {
	plan := Plan{Tool: tool, StarsPerCompletion: c.StarsPerCompletion}
	switch tool {
	case domain.ToolBreathing:
		plan.Title = c.Breathing.Title
		plan.Hint = c.Breathing.Hint
		plan.StepSeconds = c.Breathing.PhaseDuration.Seconds()
		plan.Cycles = c.Breathing.Cycles
		for _, ph := range c.Breathing.Phases {
			plan.Steps = append(plan.Steps, ph.Label)
		}
		plan.TotalSeconds = plan.StepSeconds * float64(len(c.Breathing.Phases)*c.Breathing.Cycles)
	case domain.ToolMovement:
		plan.Title = c.Movement.Title
		plan.StepSeconds = c.Movement.StepDuration.Seconds()
		plan.Steps = append(plan.Steps, c.Movement.Steps...)
		plan.TotalSeconds = plan.StepSeconds * float64(len(c.Movement.Steps))
	case domain.ToolAffirmation:
		plan.Title = c.Affirmation.Title
		plan.FinalTitle = c.Affirmation.FinalTitle
		plan.FinalText = c.Affirmation.FinalText
		if a, ok := p.(*Affirmations); ok {
			plan.Steps = a.Selected()
		}
	default:
		return Plan{}, ErrUnknownTool
	}
	return plan, nil
}
