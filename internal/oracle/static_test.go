package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticOracle(t *testing.T) {
	o := NewStaticOracle(map[string]string{
		"app": `^(?P<level>\w+) (?P<message>.*)$`,
	})

	pattern, err := o.ProposePattern(context.Background(), Request{Group: "app"})
	require.NoError(t, err)
	assert.Equal(t, `^(?P<level>\w+) (?P<message>.*)$`, pattern)
}

func TestStaticOracleUnknownGroup(t *testing.T) {
	o := NewStaticOracle(nil)

	_, err := o.ProposePattern(context.Background(), Request{Group: "ghost"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}
