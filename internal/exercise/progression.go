package exercise

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/ashureev/regbuddy/internal/domain"
)

// ErrUnknownTool is returned for a tool with no exercise.
var ErrUnknownTool = errors.New("unknown exercise")

// Boundary is one transition of a progression. The final boundary has
// Completed set.
type Boundary struct {
	Index     int    `json:"index"`
	Step      int    `json:"step"`
	Cycle     int    `json:"cycle,omitempty"`
	Label     string `json:"label"`
	Completed bool   `json:"completed"`
}

// Progress is a snapshot of a running exercise.
type Progress struct {
	Tool  domain.Tool `json:"tool"`
	Step  int         `json:"step"`
	Steps int         `json:"steps"`
	Cycle int         `json:"cycle,omitempty"`
	// Cycles is the total number of cycles, when the exercise repeats.
	Cycles int    `json:"cycles,omitempty"`
	Label  string `json:"label"`
	// Fraction of the current step that has elapsed, 0..1.
	Fraction float64 `json:"fraction"`
	Done     bool    `json:"done"`
}

// Progression is a deterministic exercise. Time-driven exercises move on
// Advance; user-driven ones on Next.
type Progression interface {
	Tool() domain.Tool
	Advance(dt time.Duration) []Boundary
	Next() []Boundary
	Current() Progress
	Done() bool
}

// New starts the progression for tool. rng is used to sample affirmations
// and may be nil for the other tools.
func New(tool domain.Tool, c *Content, rng *rand.Rand) (Progression, error) {
	switch tool {
	case domain.ToolBreathing:
		return NewBreathing(c.Breathing), nil
	case domain.ToolMovement:
		return NewMovement(c.Movement), nil
	case domain.ToolAffirmation:
		if rng == nil {
			rng = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		return NewAffirmations(c.Affirmation, rng), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, tool)
	}
}

// Breathing cycles through its phases a fixed number of times.
type Breathing struct {
	cfg     BreathingContent
	phase   int
	cycle   int
	elapsed time.Duration
	crossed int
	done    bool
}

// NewBreathing starts at the first phase of the first cycle.
func NewBreathing(cfg BreathingContent) *Breathing {
	return &Breathing{cfg: cfg}
}

func (b *Breathing) Tool() domain.Tool { return domain.ToolBreathing }

// Advance moves time forward by dt and returns every phase boundary crossed.
func (b *Breathing) Advance(dt time.Duration) []Boundary {
	if b.done || dt <= 0 {
		return nil
	}
	var out []Boundary
	b.elapsed += dt
	last := len(b.cfg.Phases) - 1
	for !b.done && b.elapsed >= b.cfg.PhaseDuration {
		b.elapsed -= b.cfg.PhaseDuration
		b.crossed++

		if b.phase == last && b.cycle == b.cfg.Cycles-1 {
			b.done = true
			b.elapsed = 0
			out = append(out, Boundary{Index: b.crossed, Step: b.phase, Cycle: b.cycle + 1, Label: b.cfg.Phases[b.phase].Label, Completed: true})
			break
		}

		b.phase++
		if b.phase > last {
			b.phase = 0
			b.cycle++
		}
		out = append(out, Boundary{Index: b.crossed, Step: b.phase, Cycle: b.cycle + 1, Label: b.cfg.Phases[b.phase].Label})
	}
	return out
}

// Next is a no-op; breathing follows the clock.
func (b *Breathing) Next() []Boundary { return nil }

func (b *Breathing) Current() Progress {
	return Progress{
		Tool:     domain.ToolBreathing,
		Step:     b.phase,
		Steps:    len(b.cfg.Phases),
		Cycle:    b.cycle + 1,
		Cycles:   b.cfg.Cycles,
		Label:    b.cfg.Phases[b.phase].Label,
		Fraction: fraction(b.elapsed, b.cfg.PhaseDuration, b.done),
		Done:     b.done,
	}
}

func (b *Breathing) Done() bool { return b.done }

// Movement walks through timed steps. Skip (Next) jumps to the next step.
type Movement struct {
	cfg     MovementContent
	step    int
	elapsed time.Duration
	crossed int
	done    bool
}

// NewMovement starts at the first step.
func NewMovement(cfg MovementContent) *Movement {
	return &Movement{cfg: cfg}
}

func (m *Movement) Tool() domain.Tool { return domain.ToolMovement }

func (m *Movement) Advance(dt time.Duration) []Boundary {
	if m.done || dt <= 0 {
		return nil
	}
	var out []Boundary
	m.elapsed += dt
	for !m.done && m.elapsed >= m.cfg.StepDuration {
		m.elapsed -= m.cfg.StepDuration
		out = append(out, m.advanceStep())
	}
	return out
}

// Next skips the rest of the current step.
func (m *Movement) Next() []Boundary {
	if m.done {
		return nil
	}
	m.elapsed = 0
	return []Boundary{m.advanceStep()}
}

func (m *Movement) advanceStep() Boundary {
	m.crossed++
	if m.step == len(m.cfg.Steps)-1 {
		m.done = true
		m.elapsed = 0
		return Boundary{Index: m.crossed, Step: m.step, Label: m.cfg.Steps[m.step], Completed: true}
	}
	m.step++
	return Boundary{Index: m.crossed, Step: m.step, Label: m.cfg.Steps[m.step]}
}

func (m *Movement) Current() Progress {
	return Progress{
		Tool:     domain.ToolMovement,
		Step:     m.step,
		Steps:    len(m.cfg.Steps),
		Label:    m.cfg.Steps[m.step],
		Fraction: fraction(m.elapsed, m.cfg.StepDuration, m.done),
		Done:     m.done,
	}
}

func (m *Movement) Done() bool { return m.done }

// Affirmations shows a random sample of the pool, one per Next.
type Affirmations struct {
	cfg      AffirmationContent
	selected []string
	index    int
	done     bool
}

// NewAffirmations samples cfg.Count distinct affirmations using rng.
func NewAffirmations(cfg AffirmationContent, rng *rand.Rand) *Affirmations {
	perm := rng.Perm(len(cfg.Pool))
	selected := make([]string, 0, cfg.Count)
	for _, i := range perm[:cfg.Count] {
		selected = append(selected, cfg.Pool[i])
	}
	return &Affirmations{cfg: cfg, selected: selected}
}

func (a *Affirmations) Tool() domain.Tool { return domain.ToolAffirmation }

// Advance is a no-op; affirmations move on user action.
func (a *Affirmations) Advance(time.Duration) []Boundary { return nil }

// Next moves to the next affirmation, completing after the last one.
func (a *Affirmations) Next() []Boundary {
	if a.done {
		return nil
	}
	if a.index == len(a.selected)-1 {
		a.done = true
		return []Boundary{{Index: a.index + 1, Step: a.index, Label: a.cfg.FinalTitle, Completed: true}}
	}
	a.index++
	return []Boundary{{Index: a.index, Step: a.index, Label: a.selected[a.index]}}
}

// Selected returns the sampled affirmations in display order.
func (a *Affirmations) Selected() []string {
	return append([]string(nil), a.selected...)
}

func (a *Affirmations) Current() Progress {
	label := a.selected[a.index]
	if a.done {
		label = a.cfg.FinalTitle
	}
	return Progress{
		Tool:  domain.ToolAffirmation,
		Step:  a.index,
		Steps: len(a.selected),
		Label: label,
		Done:  a.done,
	}
}

func (a *Affirmations) Done() bool { return a.done }

func fraction(elapsed, total time.Duration, done bool) float64 {
	if done {
		return 1
	}
	if total <= 0 {
		return 0
	}
	return float64(elapsed) / float64(total)
}
