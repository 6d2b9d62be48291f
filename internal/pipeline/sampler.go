package pipeline

import (
	"context"
	"fmt"

	"github.com/logsmith/backend/internal/storage/models"
)

// Sampler draws bounded random samples of raw documents for a group.
type Sampler struct {
	store DocumentStore
}

func NewSampler(store DocumentStore) *Sampler {
	return &Sampler{store: store}
}

// Sample returns up to size documents, disjoint from the given set where
// the group is large enough. A group smaller than size yields whatever is
// available.
func (s *Sampler) Sample(ctx context.Context, group string, size int, disjointFrom []models.RawDocument) ([]models.RawDocument, error) {
	var exclude []int64
	for _, doc := range disjointFrom {
		exclude = append(exclude, doc.Seq)
	}

	docs, err := s.store.SampleRawDocuments(ctx, group, size, exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to sample group %q: %w", group, err)
	}

	// A small group may be fully consumed by the excluded set; reuse it
	// rather than returning nothing to work with.
	if len(docs) == 0 && len(disjointFrom) > 0 {
		docs, err = s.store.SampleRawDocuments(ctx, group, size, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to sample group %q: %w", group, err)
		}
	}

	return docs, nil
}

// SourceLines extracts the raw text of each document under the configured
// source field, skipping documents that lack it.
func SourceLines(docs []models.RawDocument, sourceField string) []string {
	lines := make([]string, 0, len(docs))
	for _, doc := range docs {
		if line, ok := doc.Fields[sourceField]; ok {
			lines = append(lines, line)
		}
	}
	return lines
}
