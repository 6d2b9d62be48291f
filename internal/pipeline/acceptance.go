package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/logsmith/backend/internal/metrics"
	"github.com/logsmith/backend/internal/oracle"
	"github.com/logsmith/backend/internal/storage/models"
)

// AcceptanceState enumerates the states of the pattern acceptance machine.
type AcceptanceState int

const (
	StateInit AcceptanceState = iota
	StateGenerating
	StateValidating
	StateRetrying
	StateAccepted
	StateFallback
)

func (s AcceptanceState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateGenerating:
		return "generating"
	case StateValidating:
		return "validating"
	case StateRetrying:
		return "retrying"
	case StateAccepted:
		return "accepted"
	case StateFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// AcceptanceEvent drives transitions of the acceptance machine.
type AcceptanceEvent int

const (
	EventStart AcceptanceEvent = iota
	EventPatternSupplied
	EventCandidateReady
	EventGenerationFailed
	EventValidationPassed
	EventValidationFailed
	EventBudgetRemaining
	EventBudgetExhausted
)

// Transition is the pure state function of the acceptance machine. It has
// no side effects and panics on transitions the machine never takes.
func Transition(state AcceptanceState, event AcceptanceEvent) AcceptanceState {
	switch {
	case state == StateInit && event == EventStart:
		return StateGenerating
	case state == StateInit && event == EventPatternSupplied:
		return StateValidating
	case state == StateGenerating && event == EventCandidateReady:
		return StateValidating
	case state == StateGenerating && event == EventGenerationFailed:
		return StateRetrying
	case state == StateValidating && event == EventValidationPassed:
		return StateAccepted
	case state == StateValidating && event == EventValidationFailed:
		return StateRetrying
	case state == StateRetrying && event == EventBudgetRemaining:
		return StateGenerating
	case state == StateRetrying && event == EventBudgetExhausted:
		return StateFallback
	}
	panic(fmt.Sprintf("invalid acceptance transition: %s + %d", state, event))
}

// AcceptedPattern is the pattern a full run will use. Acquire always
// produces one; fallback is an outcome, not an error.
type AcceptedPattern struct {
	Text     string
	Origin   string
	Score    float64
	Fallback bool
}

// SuppliedPattern short-circuits generation: an operator override or a
// pattern replayed from the history ledger.
type SuppliedPattern struct {
	Text   string
	Origin string
}

func fallbackPattern() AcceptedPattern {
	return AcceptedPattern{
		Text:     FallbackPatternText,
		Origin:   models.OriginFallback,
		Fallback: true,
	}
}

// Acceptance orchestrates oracle calls, validation, and retries for one
// group until a pattern is accepted or the budget runs out.
type Acceptance struct {
	oracle  oracle.Oracle
	sampler *Sampler
	opts    Options
	log     *zap.Logger
}

func NewAcceptance(o oracle.Oracle, sampler *Sampler, opts Options, log *zap.Logger) *Acceptance {
	return &Acceptance{oracle: o, sampler: sampler, opts: opts, log: log}
}

// Acquire yields exactly one AcceptedPattern for the group. The error
// return covers store failures only; oracle failures and rejected
// candidates resolve to the fallback pattern.
func (a *Acceptance) Acquire(ctx context.Context, group string, supplied *SuppliedPattern) (AcceptedPattern, error) {
	valSample, err := a.sampler.Sample(ctx, group, a.opts.ValidationSampleSize, nil)
	if err != nil {
		return AcceptedPattern{}, fmt.Errorf("validation sample: %w", err)
	}

	if supplied != nil {
		return a.acceptSupplied(group, supplied, valSample), nil
	}

	state := Transition(StateInit, EventStart)
	attempts := a.opts.MaxRetries + 1
	var failure *oracle.FailureContext

	for attempt := 1; attempt <= attempts; attempt++ {
		genSample, err := a.sampler.Sample(ctx, group, a.opts.GenerationSampleSize, valSample)
		if err != nil {
			return AcceptedPattern{}, fmt.Errorf("generation sample: %w", err)
		}

		candidate, err := a.oracle.ProposePattern(ctx, oracle.Request{
			Group:   group,
			Samples: SourceLines(genSample, a.opts.SourceField),
			Failure: failure,
		})
		if err != nil {
			// Oracle unavailability consumes the attempt.
			state = Transition(state, EventGenerationFailed)
			a.log.Warn("Oracle attempt failed",
				zap.String("group", group),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		} else {
			state = Transition(state, EventCandidateReady)

			result := ValidatePattern(candidate, a.opts.SourceField, valSample)
			metrics.ValidationScore.Observe(result.Score)

			switch {
			case result.InvalidSyntax():
				state = Transition(state, EventValidationFailed)
				failure = &oracle.FailureContext{Pattern: candidate, SyntaxError: result.SyntaxError}
				a.log.Warn("Candidate rejected: invalid syntax",
					zap.String("group", group),
					zap.Int("attempt", attempt),
					zap.String("syntax_error", result.SyntaxError),
				)
			case result.Score >= a.opts.ValidationThreshold:
				state = Transition(state, EventValidationPassed)
				metrics.GenerationAttempts.Observe(float64(attempt))
				a.log.Info("Pattern accepted",
					zap.String("group", group),
					zap.Int("attempt", attempt),
					zap.Float64("score", result.Score),
				)
				return AcceptedPattern{
					Text:   candidate,
					Origin: models.OriginOracle,
					Score:  result.Score,
				}, nil
			default:
				state = Transition(state, EventValidationFailed)
				failure = &oracle.FailureContext{Pattern: candidate, Score: result.Score}
				a.log.Info("Candidate rejected: below threshold",
					zap.String("group", group),
					zap.Int("attempt", attempt),
					zap.Float64("score", result.Score),
					zap.Float64("threshold", a.opts.ValidationThreshold),
				)
			}
		}

		if attempt < attempts {
			state = Transition(state, EventBudgetRemaining)
		} else {
			state = Transition(state, EventBudgetExhausted)
		}
	}

	metrics.GenerationAttempts.Observe(float64(attempts))
	a.log.Warn("Generation budget exhausted, falling back",
		zap.String("group", group),
		zap.Int("attempts", attempts),
	)

	return fallbackPattern(), nil
}

// acceptSupplied validates an operator- or history-sourced pattern. The
// oracle is never consulted for these; a rejected supplied pattern either
// proceeds as an explicit override or resolves directly to fallback,
// depending on configuration.
func (a *Acceptance) acceptSupplied(group string, supplied *SuppliedPattern, valSample []models.RawDocument) AcceptedPattern {
	state := Transition(StateInit, EventPatternSupplied)

	result := ValidatePattern(supplied.Text, a.opts.SourceField, valSample)
	metrics.ValidationScore.Observe(result.Score)

	if result.InvalidSyntax() {
		// An uncompilable pattern cannot run, override or not.
		state = Transition(state, EventValidationFailed)
		_ = Transition(state, EventBudgetExhausted)
		a.log.Warn("Supplied pattern does not compile, falling back",
			zap.String("group", group),
			zap.String("origin", supplied.Origin),
			zap.String("syntax_error", result.SyntaxError),
		)
		return fallbackPattern()
	}

	if result.Score >= a.opts.ValidationThreshold || a.opts.AcceptUserBelowThreshold {
		Transition(state, EventValidationPassed)
		a.log.Info("Supplied pattern accepted",
			zap.String("group", group),
			zap.String("origin", supplied.Origin),
			zap.Float64("score", result.Score),
			zap.Bool("below_threshold", result.Score < a.opts.ValidationThreshold),
		)
		return AcceptedPattern{
			Text:   supplied.Text,
			Origin: supplied.Origin,
			Score:  result.Score,
		}
	}

	state = Transition(state, EventValidationFailed)
	_ = Transition(state, EventBudgetExhausted)
	a.log.Warn("Supplied pattern below threshold, falling back",
		zap.String("group", group),
		zap.String("origin", supplied.Origin),
		zap.Float64("score", result.Score),
	)
	return fallbackPattern()
}
