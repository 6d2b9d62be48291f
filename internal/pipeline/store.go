package pipeline

import (
	"context"
	"time"

	"github.com/logsmith/backend/internal/storage/models"
)

// DocumentStore is the slice of the backing store the pipeline reads and
// writes: sampling and ordered scrolls over raw documents, bulk writes to
// the per-group sinks.
type DocumentStore interface {
	Groups(ctx context.Context) ([]models.GroupInfo, error)
	CountRawDocuments(ctx context.Context, group string) (int64, error)
	SampleRawDocuments(ctx context.Context, group string, size int, excludeSeqs []int64) ([]models.RawDocument, error)
	ScrollRawDocuments(ctx context.Context, group string, afterSeq int64, limit int) ([]models.RawDocument, error)
	BulkInsertParsed(ctx context.Context, docs []models.ParsedDocument) (int, error)
	BulkInsertUnparsed(ctx context.Context, docs []models.UnparsedDocument) (int, error)
	ClearUnparsedSink(ctx context.Context, group string) error
}

// HistoryStore is the append-only run ledger.
type HistoryStore interface {
	AppendRunRecord(ctx context.Context, rec *models.RunRecord) error
	ListRunRecords(ctx context.Context, group string, latestOnly bool) ([]models.RunRecord, error)
	GetRunRecord(ctx context.Context, group string, ts time.Time) (*models.RunRecord, error)
}

// Store combines the document and history contracts one pipeline needs.
type Store interface {
	DocumentStore
	HistoryStore
}
