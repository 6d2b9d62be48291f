package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logsmith/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.InitSchema())
	return client
}

func putLines(t *testing.T, client *Client, group string, texts ...string) {
	t.Helper()

	bodies := make([]map[string]string, len(texts))
	for i, text := range texts {
		bodies[i] = map[string]string{"content": text}
	}
	_, err := client.PutRawDocuments(context.Background(), group, bodies)
	require.NoError(t, err)
}

func TestPutRawDocumentsAssignsSequences(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	first, err := client.PutRawDocuments(ctx, "app", []map[string]string{
		{"content": "line 1"},
		{"content": "line 2"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	// A second batch continues after the group's maximum.
	second, err := client.PutRawDocuments(ctx, "app", []map[string]string{
		{"content": "line 3"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), second)

	count, err := client.CountRawDocuments(ctx, "app")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestGroups(t *testing.T) {
	client := newTestClient(t)
	putLines(t, client, "web", "a", "b")
	putLines(t, client, "db", "c")

	groups, err := client.Groups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 2)

	// Sorted by name.
	assert.Equal(t, models.GroupInfo{Name: "db", DocCount: 1}, groups[0])
	assert.Equal(t, models.GroupInfo{Name: "web", DocCount: 2}, groups[1])
}

func TestScrollRawDocumentsOrdered(t *testing.T) {
	client := newTestClient(t)
	putLines(t, client, "app", "a", "b", "c", "d", "e")
	ctx := context.Background()

	var seen []string
	afterSeq := int64(-1)
	for {
		page, err := client.ScrollRawDocuments(ctx, "app", afterSeq, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, doc := range page {
			seen = append(seen, doc.Fields["content"])
		}
		afterSeq = page[len(page)-1].Seq
	}

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, seen)
}

func TestSampleRawDocumentsDisjoint(t *testing.T) {
	client := newTestClient(t)
	putLines(t, client, "app", "a", "b", "c", "d", "e", "f")
	ctx := context.Background()

	first, err := client.SampleRawDocuments(ctx, "app", 3, nil)
	require.NoError(t, err)
	require.Len(t, first, 3)

	var exclude []int64
	for _, doc := range first {
		exclude = append(exclude, doc.Seq)
	}

	second, err := client.SampleRawDocuments(ctx, "app", 3, exclude)
	require.NoError(t, err)
	require.Len(t, second, 3)

	taken := make(map[int64]struct{})
	for _, doc := range first {
		taken[doc.Seq] = struct{}{}
	}
	for _, doc := range second {
		_, dup := taken[doc.Seq]
		assert.False(t, dup, "seq %d sampled twice", doc.Seq)
	}
}

func TestSampleRawDocumentsSmallGroup(t *testing.T) {
	client := newTestClient(t)
	putLines(t, client, "tiny", "only one line")

	docs, err := client.SampleRawDocuments(context.Background(), "tiny", 10, nil)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestBulkInsertParsedIdempotent(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	sink := models.ParsedSinkName("app")

	docs := []models.ParsedDocument{
		{Sink: sink, Group: "app", Seq: 1, Fields: map[string]string{"level": "INFO"}},
		{Sink: sink, Group: "app", Seq: 2, Fields: map[string]string{"level": "WARN"}},
	}

	rejected, err := client.BulkInsertParsed(ctx, docs)
	require.NoError(t, err)
	assert.Zero(t, rejected)

	// Re-indexing the same sequence overwrites instead of duplicating.
	docs[0].Fields["level"] = "ERROR"
	rejected, err = client.BulkInsertParsed(ctx, docs)
	require.NoError(t, err)
	assert.Zero(t, rejected)

	count, err := client.CountParsed(ctx, sink)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestClearUnparsedSink(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	sink := models.UnparsedSinkName("app")

	_, err := client.BulkInsertUnparsed(ctx, []models.UnparsedDocument{
		{Sink: sink, Group: "app", Seq: 1, Raw: "junk", Reason: "pattern mismatch"},
	})
	require.NoError(t, err)

	otherSink := models.UnparsedSinkName("other")
	_, err = client.BulkInsertUnparsed(ctx, []models.UnparsedDocument{
		{Sink: otherSink, Group: "other", Seq: 1, Raw: "junk", Reason: "pattern mismatch"},
	})
	require.NoError(t, err)

	require.NoError(t, client.ClearUnparsedSink(ctx, "app"))

	count, err := client.CountUnparsed(ctx, sink)
	require.NoError(t, err)
	assert.Zero(t, count)

	// Other groups' sinks are untouched.
	count, err = client.CountUnparsed(ctx, otherSink)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func historyRecord(id, group string, ts time.Time, status string) *models.RunRecord {
	return &models.RunRecord{
		ID:           id,
		Group:        group,
		Timestamp:    ts,
		Status:       status,
		Pattern:      `(?P<message>.*)`,
		Origin:       models.OriginOracle,
		Score:        0.9,
		Scanned:      10,
		Parsed:       9,
		Failed:       1,
		Mismatched:   1,
		ParsedSink:   models.ParsedSinkName(group),
		UnparsedSink: models.UnparsedSinkName(group),
	}
}

func TestRunHistoryRoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	ts := time.Now()
	require.NoError(t, client.AppendRunRecord(ctx, historyRecord("run-1", "app", ts, models.StatusSuccess)))

	records, err := client.ListRunRecords(ctx, "app", false)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "run-1", rec.ID)
	assert.Equal(t, models.StatusSuccess, rec.Status)
	assert.Equal(t, int64(9), rec.Parsed)
	assert.Equal(t, int64(1), rec.Failed)
	assert.Equal(t, ts.UnixMilli(), rec.Timestamp.UnixMilli())
}

func TestListRunRecordsOrderingAndFilter(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, client.AppendRunRecord(ctx, historyRecord("run-2", "app", base.Add(time.Minute), models.StatusFallback)))
	require.NoError(t, client.AppendRunRecord(ctx, historyRecord("run-1", "app", base, models.StatusSuccess)))
	require.NoError(t, client.AppendRunRecord(ctx, historyRecord("run-3", "db", base, models.StatusSuccess)))

	records, err := client.ListRunRecords(ctx, "app", false)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "run-1", records[0].ID)
	assert.Equal(t, "run-2", records[1].ID)

	all, err := client.ListRunRecords(ctx, "", false)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestListRunRecordsLatestOnly(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, client.AppendRunRecord(ctx, historyRecord("app-old", "app", base, models.StatusFallback)))
	require.NoError(t, client.AppendRunRecord(ctx, historyRecord("app-new", "app", base.Add(time.Hour), models.StatusSuccess)))
	require.NoError(t, client.AppendRunRecord(ctx, historyRecord("db-only", "db", base, models.StatusSuccess)))

	records, err := client.ListRunRecords(ctx, "", true)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "app-new", records[0].ID)
	assert.Equal(t, "db-only", records[1].ID)

	scoped, err := client.ListRunRecords(ctx, "app", true)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "app-new", scoped[0].ID)
}

func TestGetRunRecordExactTimestamp(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	ts := time.Now()

	require.NoError(t, client.AppendRunRecord(ctx, historyRecord("run-1", "app", ts, models.StatusSuccess)))

	rec, err := client.GetRunRecord(ctx, "app", ts)
	require.NoError(t, err)
	assert.Equal(t, "run-1", rec.ID)

	_, err = client.GetRunRecord(ctx, "app", ts.Add(time.Millisecond))
	require.Error(t, err)

	_, err = client.GetRunRecord(ctx, "other", ts)
	require.Error(t, err)
}
