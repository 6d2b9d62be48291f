package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/logsmith/backend/internal/storage/models"
	"github.com/logsmith/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS raw_documents (
		group_name TEXT NOT NULL,
		seq INTEGER NOT NULL,
		body TEXT NOT NULL,
		ingested_at INTEGER NOT NULL,
		PRIMARY KEY (group_name, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_raw_group ON raw_documents(group_name);

	CREATE TABLE IF NOT EXISTS parsed_documents (
		sink TEXT NOT NULL,
		group_name TEXT NOT NULL,
		seq INTEGER NOT NULL,
		fields TEXT NOT NULL,
		indexed_at INTEGER NOT NULL,
		PRIMARY KEY (sink, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_parsed_sink ON parsed_documents(sink);

	CREATE TABLE IF NOT EXISTS unparsed_documents (
		sink TEXT NOT NULL,
		group_name TEXT NOT NULL,
		seq INTEGER NOT NULL,
		raw TEXT NOT NULL,
		reason TEXT NOT NULL,
		indexed_at INTEGER NOT NULL,
		PRIMARY KEY (sink, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_unparsed_sink ON unparsed_documents(sink);

	CREATE TABLE IF NOT EXISTS run_history (
		id TEXT PRIMARY KEY,
		group_name TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		status TEXT NOT NULL,
		pattern TEXT NOT NULL,
		origin TEXT NOT NULL,
		score REAL NOT NULL,
		fallback INTEGER NOT NULL DEFAULT 0,
		scanned INTEGER NOT NULL DEFAULT 0,
		parsed INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		mismatched INTEGER NOT NULL DEFAULT 0,
		sink_errors INTEGER NOT NULL DEFAULT 0,
		parsed_sink TEXT NOT NULL,
		unparsed_sink TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_history_group_ts ON run_history(group_name, timestamp);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// PutRawDocuments appends documents to a group, assigning sequence numbers
// after the group's current maximum.
func (c *Client) PutRawDocuments(ctx context.Context, group string, bodies []map[string]string) (int64, error) {
	if len(bodies) == 0 {
		return 0, nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var maxSeq sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT MAX(seq) FROM raw_documents WHERE group_name = ?`, group).Scan(&maxSeq)
	if err != nil {
		return 0, fmt.Errorf("failed to read max sequence: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO raw_documents (group_name, seq, body, ingested_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	firstSeq := maxSeq.Int64 + 1
	now := time.Now().Unix()
	for i, body := range bodies {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal document body: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, group, firstSeq+int64(i), string(data), now); err != nil {
			return 0, fmt.Errorf("failed to insert raw document: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit raw documents: %w", err)
	}

	logger.Debug("Raw documents stored",
		zap.String("group", group),
		zap.Int("count", len(bodies)),
	)

	return firstSeq, nil
}

func (c *Client) Groups(ctx context.Context) ([]models.GroupInfo, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT group_name, COUNT(*) FROM raw_documents GROUP BY group_name ORDER BY group_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []models.GroupInfo
	for rows.Next() {
		var g models.GroupInfo
		if err := rows.Scan(&g.Name, &g.DocCount); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		groups = append(groups, g)
	}

	return groups, rows.Err()
}

func (c *Client) CountRawDocuments(ctx context.Context, group string) (int64, error) {
	var count int64
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM raw_documents WHERE group_name = ?`, group).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count raw documents: %w", err)
	}
	return count, nil
}

// SampleRawDocuments draws up to size random documents from a group,
// skipping the excluded sequence numbers. Returns fewer than size when the
// group is smaller.
func (c *Client) SampleRawDocuments(ctx context.Context, group string, size int, excludeSeqs []int64) ([]models.RawDocument, error) {
	query := `SELECT group_name, seq, body FROM raw_documents WHERE group_name = ?`
	args := []interface{}{group}

	if len(excludeSeqs) > 0 {
		placeholders := strings.Repeat("?,", len(excludeSeqs))
		query += fmt.Sprintf(" AND seq NOT IN (%s)", placeholders[:len(placeholders)-1])
		for _, seq := range excludeSeqs {
			args = append(args, seq)
		}
	}

	query += " ORDER BY RANDOM() LIMIT ?"
	args = append(args, size)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to sample raw documents: %w", err)
	}
	defer rows.Close()

	return scanRawDocuments(rows)
}

// ScrollRawDocuments reads a page of documents in sequence order,
// starting after afterSeq.
func (c *Client) ScrollRawDocuments(ctx context.Context, group string, afterSeq int64, limit int) ([]models.RawDocument, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT group_name, seq, body FROM raw_documents WHERE group_name = ? AND seq > ? ORDER BY seq LIMIT ?`,
		group, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to scroll raw documents: %w", err)
	}
	defer rows.Close()

	return scanRawDocuments(rows)
}

func scanRawDocuments(rows *sql.Rows) ([]models.RawDocument, error) {
	var docs []models.RawDocument
	for rows.Next() {
		var doc models.RawDocument
		var body string
		if err := rows.Scan(&doc.Group, &doc.Seq, &body); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(body), &doc.Fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document body: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// BulkInsertParsed writes one batch to a success sink. Row-level failures
// are counted and do not fail the batch; writes are idempotent per (sink,
// seq).
func (c *Client) BulkInsertParsed(ctx context.Context, docs []models.ParsedDocument) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO parsed_documents (sink, group_name, seq, fields, indexed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(sink, seq) DO UPDATE SET
			fields = excluded.fields,
			indexed_at = excluded.indexed_at
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	failed := 0
	now := time.Now().Unix()
	for _, doc := range docs {
		data, err := json.Marshal(doc.Fields)
		if err != nil {
			failed++
			continue
		}
		if _, err := stmt.ExecContext(ctx, doc.Sink, doc.Group, doc.Seq, string(data), now); err != nil {
			logger.Warn("Parsed document rejected",
				zap.String("sink", doc.Sink),
				zap.Int64("seq", doc.Seq),
				zap.Error(err),
			)
			failed++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit parsed batch: %w", err)
	}

	return failed, nil
}

// BulkInsertUnparsed writes one batch to a failure sink.
func (c *Client) BulkInsertUnparsed(ctx context.Context, docs []models.UnparsedDocument) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO unparsed_documents (sink, group_name, seq, raw, reason, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(sink, seq) DO UPDATE SET
			raw = excluded.raw,
			reason = excluded.reason,
			indexed_at = excluded.indexed_at
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	failed := 0
	now := time.Now().Unix()
	for _, doc := range docs {
		if _, err := stmt.ExecContext(ctx, doc.Sink, doc.Group, doc.Seq, doc.Raw, doc.Reason, now); err != nil {
			logger.Warn("Unparsed document rejected",
				zap.String("sink", doc.Sink),
				zap.Int64("seq", doc.Seq),
				zap.Error(err),
			)
			failed++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit unparsed batch: %w", err)
	}

	return failed, nil
}

func (c *Client) ClearUnparsedSink(ctx context.Context, group string) error {
	sink := models.UnparsedSinkName(group)
	_, err := c.db.ExecContext(ctx, `DELETE FROM unparsed_documents WHERE sink = ?`, sink)
	if err != nil {
		return fmt.Errorf("failed to clear unparsed sink: %w", err)
	}

	logger.Debug("Unparsed sink cleared", zap.String("sink", sink))
	return nil
}

func (c *Client) CountParsed(ctx context.Context, sink string) (int64, error) {
	var count int64
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM parsed_documents WHERE sink = ?`, sink).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count parsed documents: %w", err)
	}
	return count, nil
}

func (c *Client) CountUnparsed(ctx context.Context, sink string) (int64, error) {
	var count int64
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM unparsed_documents WHERE sink = ?`, sink).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unparsed documents: %w", err)
	}
	return count, nil
}

// AppendRunRecord writes one history ledger entry. Append is the ledger's
// only mutation.
func (c *Client) AppendRunRecord(ctx context.Context, rec *models.RunRecord) error {
	fallback := 0
	if rec.Fallback {
		fallback = 1
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO run_history (id, group_name, timestamp, status, pattern, origin, score, fallback,
			scanned, parsed, failed, mismatched, sink_errors, parsed_sink, unparsed_sink, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.Group,
		rec.Timestamp.UnixMilli(),
		rec.Status,
		rec.Pattern,
		rec.Origin,
		rec.Score,
		fallback,
		rec.Scanned,
		rec.Parsed,
		rec.Failed,
		rec.Mismatched,
		rec.SinkErrors,
		rec.ParsedSink,
		rec.UnparsedSink,
		rec.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to append run record: %w", err)
	}

	logger.Info("Run recorded",
		zap.String("run_id", rec.ID),
		zap.String("group", rec.Group),
		zap.String("status", rec.Status),
		zap.Int64("scanned", rec.Scanned),
	)

	return nil
}

// ListRunRecords returns history entries in timestamp order. An empty
// group selects all groups. With latestOnly set, only the most recent
// record per group is returned.
func (c *Client) ListRunRecords(ctx context.Context, group string, latestOnly bool) ([]models.RunRecord, error) {
	query := `
		SELECT id, group_name, timestamp, status, pattern, origin, score, fallback,
			scanned, parsed, failed, mismatched, sink_errors, parsed_sink, unparsed_sink, error
		FROM run_history
	`
	var args []interface{}

	switch {
	case latestOnly:
		query += ` WHERE (group_name, timestamp) IN (
			SELECT group_name, MAX(timestamp) FROM run_history GROUP BY group_name
		)`
		if group != "" {
			query += " AND group_name = ?"
			args = append(args, group)
		}
	case group != "":
		query += " WHERE group_name = ?"
		args = append(args, group)
	}

	query += " ORDER BY group_name, timestamp"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list run records: %w", err)
	}
	defer rows.Close()

	var records []models.RunRecord
	for rows.Next() {
		rec, err := scanRunRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	return records, rows.Err()
}

// GetRunRecord fetches the history entry for a group at an exact
// timestamp, the replay selector.
func (c *Client) GetRunRecord(ctx context.Context, group string, ts time.Time) (*models.RunRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, group_name, timestamp, status, pattern, origin, score, fallback,
			scanned, parsed, failed, mismatched, sink_errors, parsed_sink, unparsed_sink, error
		FROM run_history
		WHERE group_name = ? AND timestamp = ?
	`, group, ts.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to get run record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to get run record: %w", err)
		}
		return nil, fmt.Errorf("no run record for group %q at %s", group, ts.Format(time.RFC3339))
	}

	return scanRunRecord(rows)
}

func scanRunRecord(rows *sql.Rows) (*models.RunRecord, error) {
	var rec models.RunRecord
	var ts int64
	var fallback int

	err := rows.Scan(
		&rec.ID,
		&rec.Group,
		&ts,
		&rec.Status,
		&rec.Pattern,
		&rec.Origin,
		&rec.Score,
		&fallback,
		&rec.Scanned,
		&rec.Parsed,
		&rec.Failed,
		&rec.Mismatched,
		&rec.SinkErrors,
		&rec.ParsedSink,
		&rec.UnparsedSink,
		&rec.Error,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	rec.Timestamp = time.UnixMilli(ts)
	rec.Fallback = fallback == 1

	return &rec, nil
}
