package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logsmith/backend/internal/storage/models"
)

func sampleDocs(texts ...string) []models.RawDocument {
	docs := make([]models.RawDocument, len(texts))
	for i, text := range texts {
		docs[i] = models.RawDocument{
			Group:  "app",
			Seq:    int64(i),
			Fields: map[string]string{"content": text},
		}
	}
	return docs
}

func TestValidatePatternScore(t *testing.T) {
	sample := sampleDocs(
		"INFO started",
		"WARN retrying",
		"no leading level here!",
		"ERROR gave up",
	)

	result := ValidatePattern(`^(?P<level>[A-Z]+) (?P<message>.*)$`, "content", sample)
	require.False(t, result.InvalidSyntax())
	assert.Equal(t, 4, result.SampleSize)
	assert.Equal(t, 3, result.Matched)
	assert.InDelta(t, 0.75, result.Score, 1e-9)
}

func TestValidatePatternInvalidSyntax(t *testing.T) {
	result := ValidatePattern(`(?P<bad>[`, "content", sampleDocs("anything"))
	assert.True(t, result.InvalidSyntax())
	assert.Zero(t, result.Matched)
	assert.Zero(t, result.Score)
}

func TestValidatePatternMissingSourceField(t *testing.T) {
	sample := []models.RawDocument{
		{Group: "app", Seq: 0, Fields: map[string]string{"content": "INFO ok"}},
		{Group: "app", Seq: 1, Fields: map[string]string{"other": "INFO ok"}},
	}

	// A document without the source field can never count as matched.
	result := ValidatePattern(`^(?P<level>[A-Z]+) (?P<message>.*)$`, "content", sample)
	assert.Equal(t, 2, result.SampleSize)
	assert.Equal(t, 1, result.Matched)
	assert.InDelta(t, 0.5, result.Score, 1e-9)
}

func TestValidatePatternEmptySample(t *testing.T) {
	result := ValidatePattern(`(?P<message>.*)`, "content", nil)
	assert.Zero(t, result.SampleSize)
	assert.Zero(t, result.Score)
	assert.False(t, result.InvalidSyntax())
}

func TestValidatePatternDeterministic(t *testing.T) {
	sample := sampleDocs("INFO a", "junk", "INFO b")
	first := ValidatePattern(`^(?P<level>INFO) (?P<message>.*)$`, "content", sample)
	second := ValidatePattern(`^(?P<level>INFO) (?P<message>.*)$`, "content", sample)
	assert.Equal(t, first, second)
}
