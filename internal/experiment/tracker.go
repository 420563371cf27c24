package experiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mcp-meal-triggers/internal/models"
	"mcp-meal-triggers/internal/triggers"
)

var (
	ErrNoActiveExperiment  = errors.New("no active experiment")
	ErrUnsupportedCategory = errors.New("experiments are not supported for this category")
	ErrPositivePattern     = errors.New("experiments can only eliminate negative patterns")
)

// Store persists the single experiment slot. LoadExperiment returns nil and
// no error when the slot is empty.
type Store interface {
	LoadExperiment(ctx context.Context) (*Experiment, error)
	SaveExperiment(ctx context.Context, exp Experiment) error
	ClearExperiment(ctx context.Context) error
}

// State of the experiment slot.
type State int

const (
	StateNone State = iota
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "none"
}

// Tracker drives the NONE -> ACTIVE -> NONE lifecycle on top of a Store.
//
// Start while ACTIVE replaces the running experiment; Stop while NONE is a
// no-op.
type Tracker struct {
	store        Store
	logger       *zap.Logger
	now          func() time.Time
	loc          *time.Location
	durationDays int
	minSample    int
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) { t.loc = loc }
}

func WithDuration(days int) Option {
	return func(t *Tracker) { t.durationDays = days }
}

func WithMinSample(n int) Option {
	return func(t *Tracker) { t.minSample = n }
}

func NewTracker(store Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:        store,
		logger:       zap.NewNop(),
		now:          time.Now,
		loc:          time.Local,
		durationDays: DefaultDurationDays,
		minSample:    DefaultMinSample,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Active returns the running experiment, or nil.
func (t *Tracker) Active(ctx context.Context) (*Experiment, error) {
	exp, err := t.store.LoadExperiment(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load experiment: %w", err)
	}
	return exp, nil
}

func (t *Tracker) State(ctx context.Context) (State, error) {
	exp, err := t.Active(ctx)
	if err != nil {
		return StateNone, err
	}
	if exp == nil {
		return StateNone, nil
	}
	return StateActive, nil
}

// Start begins a trial on p. A running trial is discarded and replaced.
func (t *Tracker) Start(ctx context.Context, p triggers.Pattern) (Experiment, error) {
	if p.Polarity == triggers.Positive {
		return Experiment{}, fmt.Errorf("%w: %q", ErrPositivePattern, p.Name)
	}
	if !Supported(p.Category) {
		return Experiment{}, fmt.Errorf("%w: %q", ErrUnsupportedCategory, p.Category)
	}

	prev, err := t.Active(ctx)
	if err != nil {
		return Experiment{}, err
	}

	exp := New(p, t.now(), t.durationDays)
	if err := t.store.SaveExperiment(ctx, exp); err != nil {
		return Experiment{}, fmt.Errorf("failed to save experiment: %w", err)
	}

	if prev != nil {
		t.logger.Info("experiment replaced",
			zap.String("previous_trigger", prev.Trigger),
			zap.String("trigger", exp.Trigger),
			zap.String("category", string(exp.Category)))
	} else {
		t.logger.Info("experiment started",
			zap.String("trigger", exp.Trigger),
			zap.String("category", string(exp.Category)),
			zap.Int("duration_days", exp.DurationDays))
	}
	return exp, nil
}

// Stop clears the slot. It reports whether an experiment was running.
// Results are not kept; read them before stopping.
func (t *Tracker) Stop(ctx context.Context) (bool, error) {
	prev, err := t.Active(ctx)
	if err != nil {
		return false, err
	}
	if prev == nil {
		return false, nil
	}
	if err := t.store.ClearExperiment(ctx); err != nil {
		return false, fmt.Errorf("failed to clear experiment: %w", err)
	}
	t.logger.Info("experiment stopped", zap.String("trigger", prev.Trigger))
	return true, nil
}

// Results computes progress of the running trial over meals.
func (t *Tracker) Results(ctx context.Context, meals []models.MealRecord) (Experiment, Results, error) {
	exp, err := t.Active(ctx)
	if err != nil {
		return Experiment{}, Results{}, err
	}
	if exp == nil {
		return Experiment{}, Results{}, ErrNoActiveExperiment
	}
	return *exp, ComputeResults(*exp, meals, t.now(), t.loc, t.minSample), nil
}
