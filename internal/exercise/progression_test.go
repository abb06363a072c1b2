package exercise

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/ashureev/regbuddy/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultContent(t *testing.T) {
	c := DefaultContent()
	assert.Equal(t, 5, c.StarsPerCompletion)
	assert.Equal(t, 4*time.Second, c.Breathing.PhaseDuration)
	assert.Equal(t, 5, c.Breathing.Cycles)
	assert.Len(t, c.Breathing.Phases, 4)
	assert.Equal(t, 10*time.Second, c.Movement.StepDuration)
	assert.Len(t, c.Movement.Steps, 6)
	assert.Len(t, c.Affirmation.Pool, 10)
	assert.Equal(t, 5, c.Affirmation.Count)
}

func TestParseContentRejectsBadCount(t *testing.T) {
	_, err := ParseContent([]byte(`
tick: 100ms
breathing: {phase_duration: 1s, cycles: 1, phases: [{key: in, label: In}]}
movement: {step_duration: 1s, steps: [a]}
affirmation: {count: 3, pool: [a, b]}
`))
	assert.Error(t, err)
}

func TestBreathingTwentyBoundaries(t *testing.T) {
	b := NewBreathing(DefaultContent().Breathing)

	var boundaries []Boundary
	for i := 0; i < 1000 && !b.Done(); i++ {
		boundaries = append(boundaries, b.Advance(100*time.Millisecond)...)
	}

	require.Len(t, boundaries, 20)
	for i, bd := range boundaries[:19] {
		assert.False(t, bd.Completed, "boundary %d", i+1)
		assert.Equal(t, i+1, bd.Index)
	}
	assert.True(t, boundaries[19].Completed)
	assert.Equal(t, "Hold...", boundaries[19].Label)
	assert.Equal(t, 5, boundaries[19].Cycle)

	// The first boundary moves from inhale to the first hold.
	assert.Equal(t, "Hold...", boundaries[0].Label)
	assert.Equal(t, "Breathe out...", boundaries[1].Label)
	// The fourth starts cycle two.
	assert.Equal(t, "Breathe in...", boundaries[3].Label)
	assert.Equal(t, 2, boundaries[3].Cycle)

	assert.Empty(t, b.Advance(time.Hour))
	assert.True(t, b.Current().Done)
}

func TestBreathingNeverCompletesEarly(t *testing.T) {
	b := NewBreathing(DefaultContent().Breathing)
	bs := b.Advance(80*time.Second - time.Millisecond)
	assert.Len(t, bs, 19)
	assert.False(t, b.Done())

	bs = b.Advance(time.Millisecond)
	require.Len(t, bs, 1)
	assert.True(t, bs[0].Completed)
	assert.True(t, b.Done())
}

func TestBreathingLargeStepCrossesSeveral(t *testing.T) {
	b := NewBreathing(DefaultContent().Breathing)
	bs := b.Advance(9 * time.Second)
	assert.Len(t, bs, 2)
	p := b.Current()
	assert.Equal(t, "Breathe out...", p.Label)
	assert.InDelta(t, 0.25, p.Fraction, 1e-9)
	assert.Equal(t, 1, p.Cycle)
}

func TestMovementStepsAndSkip(t *testing.T) {
	m := NewMovement(DefaultContent().Movement)
	assert.Equal(t, "Stretch your arms up high like a tree", m.Current().Label)

	bs := m.Advance(10 * time.Second)
	require.Len(t, bs, 1)
	assert.Equal(t, "Roll your shoulders back slowly", bs[0].Label)

	bs = m.Next()
	require.Len(t, bs, 1)
	assert.Equal(t, "Touch your toes gently", bs[0].Label)

	bs = m.Advance(30 * time.Second)
	require.Len(t, bs, 3)
	assert.False(t, m.Done())
	assert.Equal(t, "Take a deep breath and smile", m.Current().Label)

	bs = m.Next()
	require.Len(t, bs, 1)
	assert.True(t, bs[0].Completed)
	assert.True(t, m.Done())
	assert.Nil(t, m.Next())
}

func TestAffirmationsSampleAndNext(t *testing.T) {
	c := DefaultContent()
	a := NewAffirmations(c.Affirmation, rand.New(rand.NewSource(1)))

	selected := a.Selected()
	require.Len(t, selected, 5)
	seen := map[string]bool{}
	for _, s := range selected {
		assert.Contains(t, c.Affirmation.Pool, s)
		assert.False(t, seen[s], "duplicate %q", s)
		seen[s] = true
	}

	// Same seed, same sample.
	again := NewAffirmations(c.Affirmation, rand.New(rand.NewSource(1)))
	assert.Equal(t, selected, again.Selected())

	assert.Empty(t, a.Advance(time.Hour))
	for i := 0; i < 4; i++ {
		bs := a.Next()
		require.Len(t, bs, 1)
		assert.False(t, bs[0].Completed)
		assert.Equal(t, selected[i+1], bs[0].Label)
	}
	bs := a.Next()
	require.Len(t, bs, 1)
	assert.True(t, bs[0].Completed)
	assert.Equal(t, "You did great!", a.Current().Label)
}

func TestNewUnknownTool(t *testing.T) {
	_, err := New(domain.Tool("juggling"), DefaultContent(), nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestRunCompletesAndCancels(t *testing.T) {
	c := DefaultContent()
	c.Breathing.PhaseDuration = 2 * time.Millisecond
	c.Breathing.Cycles = 1

	var got []Boundary
	err := Run(context.Background(), NewBreathing(c.Breathing), time.Millisecond, func(b Boundary) {
		got = append(got, b)
	})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.True(t, got[3].Completed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Run(ctx, NewMovement(c.Movement), time.Millisecond, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunAtScalesTime(t *testing.T) {
	c := DefaultContent()
	var completed bool
	err := RunAt(context.Background(), NewBreathing(c.Breathing), time.Millisecond, time.Second, func(b Boundary) {
		completed = completed || b.Completed
	})
	require.NoError(t, err)
	assert.True(t, completed)
}

func TestPlan(t *testing.T) {
	c := DefaultContent()
	plan, err := c.Plan(domain.ToolBreathing, nil)
	require.NoError(t, err)
	assert.InDelta(t, 80, plan.TotalSeconds, 1e-9)
	assert.Equal(t, []string{"Breathe in...", "Hold...", "Breathe out...", "Hold..."}, plan.Steps)

	p, err := New(domain.ToolAffirmation, c, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	plan, err = c.Plan(domain.ToolAffirmation, p)
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 5)
	assert.Equal(t, 5, plan.StarsPerCompletion)
}
