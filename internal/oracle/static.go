package oracle

import (
	"context"
	"fmt"
)

// StaticOracle serves patterns from a configured group → pattern table.
// It backs deployments that run without a model.
type StaticOracle struct {
	patterns map[string]string
}

func NewStaticOracle(patterns map[string]string) *StaticOracle {
	return &StaticOracle{patterns: patterns}
}

func (o *StaticOracle) ProposePattern(_ context.Context, req Request) (string, error) {
	pattern, ok := o.patterns[req.Group]
	if !ok {
		return "", fmt.Errorf("%w: no static pattern for group %q", ErrUnavailable, req.Group)
	}
	return pattern, nil
}
