package pipeline

import (
	"github.com/logsmith/backend/internal/storage/models"
)

// ValidationResult is the outcome of testing one candidate against a
// validation sample.
type ValidationResult struct {
	SampleSize  int
	Matched     int
	Score       float64
	SyntaxError string
}

// InvalidSyntax reports whether the candidate failed to compile, which is
// distinct from compiling but matching nothing.
func (r ValidationResult) InvalidSyntax() bool {
	return r.SyntaxError != ""
}

// ValidatePattern scores a candidate against a sample. A document counts
// as matched only when the source field is present and extraction
// succeeds. The score is the plain match ratio, deterministic for a fixed
// sample.
func ValidatePattern(pattern, sourceField string, sample []models.RawDocument) ValidationResult {
	result := ValidationResult{SampleSize: len(sample)}

	compiled, err := CompilePattern(pattern)
	if err != nil {
		result.SyntaxError = err.Error()
		return result
	}

	for _, doc := range sample {
		line, ok := doc.Fields[sourceField]
		if !ok {
			continue
		}
		if _, ok := compiled.Extract(line); ok {
			result.Matched++
		}
	}

	if result.SampleSize > 0 {
		result.Score = float64(result.Matched) / float64(result.SampleSize)
	}

	return result
}
