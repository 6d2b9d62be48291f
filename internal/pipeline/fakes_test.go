package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/logsmith/backend/internal/oracle"
	"github.com/logsmith/backend/internal/storage/models"
)

// memStore is an in-memory Store for tests, with error injection knobs.
type memStore struct {
	mu       sync.Mutex
	docs     map[string][]models.RawDocument
	parsed   map[string]map[int64]models.ParsedDocument
	unparsed map[string]map[int64]models.UnparsedDocument
	history  []models.RunRecord

	clearCalls    int
	parsedFails   int
	unparsedFails int
	rejectParsed  int
	appendErr     error
}

func newMemStore() *memStore {
	return &memStore{
		docs:     make(map[string][]models.RawDocument),
		parsed:   make(map[string]map[int64]models.ParsedDocument),
		unparsed: make(map[string]map[int64]models.UnparsedDocument),
	}
}

// addDocs appends documents with sequential seq numbers starting at 0.
func (m *memStore) addDocs(group string, bodies ...map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := int64(len(m.docs[group]))
	for i, body := range bodies {
		m.docs[group] = append(m.docs[group], models.RawDocument{
			Group:  group,
			Seq:    next + int64(i),
			Fields: body,
		})
	}
}

func (m *memStore) addLines(group string, texts ...string) {
	for _, text := range texts {
		m.addDocs(group, map[string]string{"content": text})
	}
}

func (m *memStore) Groups(ctx context.Context) ([]models.GroupInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var infos []models.GroupInfo
	for name, docs := range m.docs {
		infos = append(infos, models.GroupInfo{Name: name, DocCount: int64(len(docs))})
	}
	return infos, nil
}

func (m *memStore) CountRawDocuments(ctx context.Context, group string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.docs[group])), nil
}

func (m *memStore) SampleRawDocuments(ctx context.Context, group string, size int, excludeSeqs []int64) ([]models.RawDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	excluded := make(map[int64]struct{}, len(excludeSeqs))
	for _, seq := range excludeSeqs {
		excluded[seq] = struct{}{}
	}

	var out []models.RawDocument
	for _, doc := range m.docs[group] {
		if _, skip := excluded[doc.Seq]; skip {
			continue
		}
		out = append(out, doc)
		if len(out) == size {
			break
		}
	}
	return out, nil
}

func (m *memStore) ScrollRawDocuments(ctx context.Context, group string, afterSeq int64, limit int) ([]models.RawDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.RawDocument
	for _, doc := range m.docs[group] {
		if doc.Seq <= afterSeq {
			continue
		}
		out = append(out, doc)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) BulkInsertParsed(ctx context.Context, docs []models.ParsedDocument) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.parsedFails > 0 {
		m.parsedFails--
		return 0, fmt.Errorf("sink unavailable")
	}

	rejected := 0
	for i, doc := range docs {
		if i < m.rejectParsed {
			rejected++
			continue
		}
		if m.parsed[doc.Sink] == nil {
			m.parsed[doc.Sink] = make(map[int64]models.ParsedDocument)
		}
		m.parsed[doc.Sink][doc.Seq] = doc
	}
	m.rejectParsed = 0
	return rejected, nil
}

func (m *memStore) BulkInsertUnparsed(ctx context.Context, docs []models.UnparsedDocument) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unparsedFails > 0 {
		m.unparsedFails--
		return 0, fmt.Errorf("sink unavailable")
	}

	for _, doc := range docs {
		if m.unparsed[doc.Sink] == nil {
			m.unparsed[doc.Sink] = make(map[int64]models.UnparsedDocument)
		}
		m.unparsed[doc.Sink][doc.Seq] = doc
	}
	return 0, nil
}

func (m *memStore) ClearUnparsedSink(ctx context.Context, group string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clearCalls++
	delete(m.unparsed, models.UnparsedSinkName(group))
	return nil
}

func (m *memStore) AppendRunRecord(ctx context.Context, rec *models.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.appendErr != nil {
		return m.appendErr
	}
	m.history = append(m.history, *rec)
	return nil
}

func (m *memStore) ListRunRecords(ctx context.Context, group string, latestOnly bool) ([]models.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.RunRecord
	for _, rec := range m.history {
		if group != "" && rec.Group != group {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *memStore) GetRunRecord(ctx context.Context, group string, ts time.Time) (*models.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.history {
		if rec.Group == group && rec.Timestamp.UnixMilli() == ts.UnixMilli() {
			out := rec
			return &out, nil
		}
	}
	return nil, fmt.Errorf("no run record for group %q at %s", group, ts.Format(time.RFC3339))
}

func (m *memStore) parsedCount(sink string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.parsed[sink])
}

func (m *memStore) unparsedCount(sink string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.unparsed[sink])
}

// scriptedOracle replays a fixed sequence of responses and records every
// request it saw.
type scriptedOracle struct {
	mu        sync.Mutex
	responses []oracleResponse
	requests  []oracle.Request
}

type oracleResponse struct {
	pattern string
	err     error
}

func (o *scriptedOracle) ProposePattern(_ context.Context, req oracle.Request) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.requests = append(o.requests, req)
	if len(o.responses) == 0 {
		return "", fmt.Errorf("%w: script exhausted", oracle.ErrUnavailable)
	}
	next := o.responses[0]
	o.responses = o.responses[1:]
	return next.pattern, next.err
}

func (o *scriptedOracle) calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.requests)
}

// oracleFunc adapts a function to the oracle contract.
type oracleFunc func(ctx context.Context, req oracle.Request) (string, error)

func (f oracleFunc) ProposePattern(ctx context.Context, req oracle.Request) (string, error) {
	return f(ctx, req)
}
