// Package oracle defines the pattern oracle capability: given sample log
// lines for a group, propose a candidate extraction pattern. Backing
// implementations are pluggable; the pipeline only sees this interface.
package oracle

import (
	"context"
	"errors"
)

// ErrUnavailable signals that the oracle could not produce a candidate.
// The acceptance engine treats it as one consumed attempt.
var ErrUnavailable = errors.New("pattern oracle unavailable")

// FailureContext carries the outcome of a rejected attempt back to the
// oracle so a retry can improve on it.
type FailureContext struct {
	Pattern     string
	Score       float64
	SyntaxError string
}

// Request asks for a candidate pattern for one group.
type Request struct {
	Group   string
	Samples []string
	Failure *FailureContext
}

// Oracle proposes extraction patterns. Implementations give no latency
// guarantee; callers apply their own timeout through ctx.
type Oracle interface {
	ProposePattern(ctx context.Context, req Request) (string, error)
}
