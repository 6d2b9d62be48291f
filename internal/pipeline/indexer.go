package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/logsmith/backend/internal/metrics"
	"github.com/logsmith/backend/internal/storage/models"
	"github.com/logsmith/backend/pkg/retry"
)

// Routing reasons recorded on unparsed documents.
const (
	reasonMismatch     = "pattern mismatch"
	reasonMissingField = "missing source field"
	reasonFallback     = "fallback pattern"
)

// RunStatistics accumulates the counts of one full-scan run. Every
// scanned document lands in exactly one sink; documents lost to sink
// errors are counted, not retried beyond the write budget.
type RunStatistics struct {
	Scanned      int64
	Parsed       int64
	Failed       int64
	Mismatched   int64
	SinkErrors   int64
	ParsedSink   string
	UnparsedSink string
}

// Indexer streams a group's raw documents and applies an accepted pattern
// in batches, routing each document to the parsed or unparsed sink.
type Indexer struct {
	store DocumentStore
	opts  Options
	log   *zap.Logger
}

func NewIndexer(store DocumentStore, opts Options, log *zap.Logger) *Indexer {
	return &Indexer{store: store, opts: opts, log: log}
}

// Run performs the full scan. The error return covers failures that
// prevent the scan itself; per-document and sink errors are absorbed into
// the statistics.
func (ix *Indexer) Run(ctx context.Context, group string, accepted AcceptedPattern, report func(ProgressEvent)) (RunStatistics, error) {
	stats := RunStatistics{
		ParsedSink:   models.ParsedSinkName(group),
		UnparsedSink: models.UnparsedSinkName(group),
	}

	var compiled *CompiledPattern
	if !accepted.Fallback {
		var err error
		compiled, err = CompilePattern(accepted.Text)
		if err != nil {
			// Acquire validated the pattern; reaching this means the
			// caller bypassed acceptance with a broken pattern.
			return stats, fmt.Errorf("accepted pattern does not compile: %w", err)
		}
	}

	if !ix.opts.KeepFailures {
		if err := ix.store.ClearUnparsedSink(ctx, group); err != nil {
			return stats, fmt.Errorf("failed to clear failure sink: %w", err)
		}
	}

	writeRetry := retry.Config{
		MaxAttempts:    ix.opts.SinkWriteAttempts,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         ix.log,
	}

	afterSeq := int64(-1)
	for {
		docs, err := retry.DoWithResult(ctx, writeRetry, func() ([]models.RawDocument, error) {
			return ix.store.ScrollRawDocuments(ctx, group, afterSeq, ix.opts.BatchSize)
		})
		if err != nil {
			return stats, fmt.Errorf("scroll failed after %d scanned: %w", stats.Scanned, err)
		}
		if len(docs) == 0 {
			break
		}

		parsed, unparsed := ix.routeBatch(group, docs, compiled, accepted.Fallback, &stats)
		ix.flush(ctx, writeRetry, group, parsed, unparsed, &stats)

		afterSeq = docs[len(docs)-1].Seq

		if report != nil {
			report(ProgressEvent{
				Type:    EventBatchFlushed,
				Group:   group,
				Scanned: stats.Scanned,
				Parsed:  stats.Parsed,
				Failed:  stats.Failed,
				Time:    time.Now(),
			})
		}
	}

	return stats, nil
}

// routeBatch applies the pattern to one page of documents. With a
// fallback pattern every document goes to the failure sink so nothing is
// dropped.
func (ix *Indexer) routeBatch(group string, docs []models.RawDocument, compiled *CompiledPattern, fallback bool, stats *RunStatistics) ([]models.ParsedDocument, []models.UnparsedDocument) {
	var parsed []models.ParsedDocument
	var unparsed []models.UnparsedDocument

	for _, doc := range docs {
		stats.Scanned++

		line, ok := doc.Fields[ix.opts.SourceField]
		if !ok {
			stats.Failed++
			stats.Mismatched++
			unparsed = append(unparsed, models.UnparsedDocument{
				Sink:   stats.UnparsedSink,
				Group:  group,
				Seq:    doc.Seq,
				Raw:    "",
				Reason: reasonMissingField,
			})
			continue
		}

		if fallback {
			stats.Failed++
			unparsed = append(unparsed, models.UnparsedDocument{
				Sink:   stats.UnparsedSink,
				Group:  group,
				Seq:    doc.Seq,
				Raw:    line,
				Reason: reasonFallback,
			})
			continue
		}

		fields, ok := compiled.Extract(line)
		if !ok {
			stats.Failed++
			stats.Mismatched++
			unparsed = append(unparsed, models.UnparsedDocument{
				Sink:   stats.UnparsedSink,
				Group:  group,
				Seq:    doc.Seq,
				Raw:    line,
				Reason: reasonMismatch,
			})
			continue
		}

		for _, copyField := range ix.opts.CopyFields {
			if _, taken := fields[copyField]; taken {
				continue
			}
			if val, ok := doc.Fields[copyField]; ok {
				fields[copyField] = val
			}
		}

		stats.Parsed++
		parsed = append(parsed, models.ParsedDocument{
			Sink:   stats.ParsedSink,
			Group:  group,
			Seq:    doc.Seq,
			Fields: fields,
		})
	}

	return parsed, unparsed
}

// flush performs one bulk write per sink with bounded retry. A batch that
// exhausts the write budget is counted as lost and the run continues.
func (ix *Indexer) flush(ctx context.Context, cfg retry.Config, group string, parsed []models.ParsedDocument, unparsed []models.UnparsedDocument, stats *RunStatistics) {
	if len(parsed) > 0 {
		start := time.Now()
		rejected, err := retry.DoWithResult(ctx, cfg, func() (int, error) {
			return ix.store.BulkInsertParsed(ctx, parsed)
		})
		metrics.BatchFlushDuration.WithLabelValues("parsed").Observe(time.Since(start).Seconds())
		if err != nil {
			stats.SinkErrors += int64(len(parsed))
			metrics.SinkErrors.Add(float64(len(parsed)))
			ix.log.Error("Parsed batch lost",
				zap.String("group", group),
				zap.Int("documents", len(parsed)),
				zap.Error(err),
			)
		} else {
			stats.SinkErrors += int64(rejected)
			metrics.SinkErrors.Add(float64(rejected))
			metrics.DocumentsIndexed.WithLabelValues("parsed").Add(float64(len(parsed) - rejected))
		}
	}

	if len(unparsed) > 0 {
		start := time.Now()
		rejected, err := retry.DoWithResult(ctx, cfg, func() (int, error) {
			return ix.store.BulkInsertUnparsed(ctx, unparsed)
		})
		metrics.BatchFlushDuration.WithLabelValues("unparsed").Observe(time.Since(start).Seconds())
		if err != nil {
			stats.SinkErrors += int64(len(unparsed))
			metrics.SinkErrors.Add(float64(len(unparsed)))
			ix.log.Error("Unparsed batch lost",
				zap.String("group", group),
				zap.Int("documents", len(unparsed)),
				zap.Error(err),
			)
		} else {
			stats.SinkErrors += int64(rejected)
			metrics.SinkErrors.Add(float64(rejected))
			metrics.DocumentsIndexed.WithLabelValues("unparsed").Add(float64(len(unparsed) - rejected))
		}
	}
}
