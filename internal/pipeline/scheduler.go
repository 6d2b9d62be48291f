package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/logsmith/backend/internal/metrics"
	"github.com/logsmith/backend/internal/oracle"
	"github.com/logsmith/backend/internal/storage/models"
)

// RunRequest selects what one runAll invocation covers. An empty Groups
// slice means every group known to the store. Pattern, when set, is an
// explicit operator override applied to all selected groups.
type RunRequest struct {
	Groups       []string
	Pattern      string
	KeepFailures *bool
}

// GroupOutcome is the terminal report for one requested group. Either
// Record is set, or Error explains why no run record could be produced.
type GroupOutcome struct {
	Group  string            `json:"group"`
	Record *models.RunRecord `json:"record,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// Scheduler dispatches one independent pipeline per group across a
// bounded worker pool, admitting at most one in-flight run per group
// name.
type Scheduler struct {
	store  Store
	oracle oracle.Oracle
	opts   Options
	hub    *ProgressHub
	log    *zap.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewScheduler(store Store, o oracle.Oracle, opts Options, hub *ProgressHub, log *zap.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		oracle:   o,
		opts:     opts.withDefaults(),
		hub:      hub,
		log:      log,
		inflight: make(map[string]struct{}),
	}
}

// RunAll executes the pipeline for every selected group. With
// parallelism 1 groups run strictly sequentially in input order; beyond
// that completion order is unspecified. One outcome is returned per
// requested group, never fewer.
func (s *Scheduler) RunAll(ctx context.Context, req RunRequest) ([]GroupOutcome, error) {
	groups := req.Groups
	if len(groups) == 0 {
		infos, err := s.store.Groups(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list groups: %w", err)
		}
		for _, info := range infos {
			groups = append(groups, info.Name)
		}
	}

	opts := s.opts
	if req.KeepFailures != nil {
		opts.KeepFailures = *req.KeepFailures
	}

	var supplied *SuppliedPattern
	if req.Pattern != "" {
		supplied = &SuppliedPattern{Text: req.Pattern, Origin: models.OriginUser}
	}

	s.log.Info("Dispatching run",
		zap.Int("groups", len(groups)),
		zap.Int("parallelism", opts.Parallelism),
		zap.Bool("pattern_override", supplied != nil),
	)

	outcomes := make([]GroupOutcome, len(groups))
	sem := make(chan struct{}, opts.Parallelism)
	var wg sync.WaitGroup

	for i, group := range groups {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, group string) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = s.runOne(ctx, group, supplied, opts)
		}(i, group)
	}

	wg.Wait()
	return outcomes, nil
}

// Replay re-runs a group with the pattern from a past run record,
// identified by its exact timestamp. Validation still happens; the oracle
// is never consulted.
func (s *Scheduler) Replay(ctx context.Context, group string, ts time.Time, keepFailures *bool) GroupOutcome {
	rec, err := s.store.GetRunRecord(ctx, group, ts)
	if err != nil {
		return GroupOutcome{Group: group, Error: err.Error()}
	}

	opts := s.opts
	if keepFailures != nil {
		opts.KeepFailures = *keepFailures
	}

	s.log.Info("Replaying run",
		zap.String("group", group),
		zap.Time("source_run", ts),
		zap.String("pattern", rec.Pattern),
	)

	return s.runOne(ctx, group, &SuppliedPattern{Text: rec.Pattern, Origin: models.OriginHistory}, opts)
}

// runOne executes the full pipeline for a single group. All failures
// below this boundary resolve to an error-status run record; only a
// failure to append the record at all surfaces as a bare error outcome.
func (s *Scheduler) runOne(ctx context.Context, group string, supplied *SuppliedPattern, opts Options) GroupOutcome {
	if !s.acquire(group) {
		return GroupOutcome{Group: group, Error: fmt.Sprintf("a run for group %q is already in flight", group)}
	}
	defer s.release(group)

	metrics.GroupsInFlight.Inc()
	defer metrics.GroupsInFlight.Dec()

	start := time.Now()
	s.publish(ProgressEvent{Type: EventRunStarted, Group: group, Time: start})

	rec := s.execute(ctx, group, supplied, opts)
	rec.ID = uuid.NewString()
	rec.Group = group
	rec.Timestamp = time.Now()

	if err := s.store.AppendRunRecord(ctx, rec); err != nil {
		s.log.Error("Failed to append run record",
			zap.String("group", group),
			zap.Error(err),
		)
		return GroupOutcome{Group: group, Error: fmt.Sprintf("failed to record run: %v", err)}
	}

	metrics.RunsTotal.WithLabelValues(rec.Status).Inc()
	metrics.RunDuration.WithLabelValues(rec.Status).Observe(time.Since(start).Seconds())

	s.publish(ProgressEvent{
		Type:    EventRunFinished,
		Group:   group,
		Status:  rec.Status,
		Scanned: rec.Scanned,
		Parsed:  rec.Parsed,
		Failed:  rec.Failed,
		Time:    time.Now(),
	})

	return GroupOutcome{Group: group, Record: rec}
}

// execute runs acceptance and indexing, converting every failure mode,
// panics included, into a run record.
func (s *Scheduler) execute(ctx context.Context, group string, supplied *SuppliedPattern, opts Options) (rec *models.RunRecord) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Pipeline panicked",
				zap.String("group", group),
				zap.Any("panic", r),
			)
			rec = errorRecord(group, fmt.Errorf("panic: %v", r))
		}
	}()

	count, err := s.store.CountRawDocuments(ctx, group)
	if err != nil {
		return errorRecord(group, fmt.Errorf("failed to count documents: %w", err))
	}
	if count == 0 {
		return errorRecord(group, fmt.Errorf("group %q has no documents", group))
	}

	sampler := NewSampler(s.store)
	acceptance := NewAcceptance(s.oracle, sampler, opts, s.log)

	accepted, err := acceptance.Acquire(ctx, group, supplied)
	if err != nil {
		return errorRecord(group, err)
	}

	s.publish(ProgressEvent{
		Type:     EventPatternAccepted,
		Group:    group,
		Pattern:  accepted.Text,
		Origin:   accepted.Origin,
		Score:    accepted.Score,
		Fallback: accepted.Fallback,
		Time:     time.Now(),
	})

	indexer := NewIndexer(s.store, opts, s.log)
	stats, err := indexer.Run(ctx, group, accepted, s.publish)
	if err != nil {
		rec := errorRecord(group, err)
		rec.Pattern = accepted.Text
		rec.Origin = accepted.Origin
		rec.Score = accepted.Score
		rec.Fallback = accepted.Fallback
		rec.Scanned = stats.Scanned
		rec.Parsed = stats.Parsed
		rec.Failed = stats.Failed
		rec.Mismatched = stats.Mismatched
		rec.SinkErrors = stats.SinkErrors
		return rec
	}

	status := models.StatusSuccess
	switch {
	case accepted.Fallback:
		status = models.StatusFallback
	case stats.SinkErrors > 0:
		status = models.StatusSuccessWithErrors
	}

	return &models.RunRecord{
		Status:       status,
		Pattern:      accepted.Text,
		Origin:       accepted.Origin,
		Score:        accepted.Score,
		Fallback:     accepted.Fallback,
		Scanned:      stats.Scanned,
		Parsed:       stats.Parsed,
		Failed:       stats.Failed,
		Mismatched:   stats.Mismatched,
		SinkErrors:   stats.SinkErrors,
		ParsedSink:   stats.ParsedSink,
		UnparsedSink: stats.UnparsedSink,
	}
}

func errorRecord(group string, err error) *models.RunRecord {
	return &models.RunRecord{
		Status:       models.StatusError,
		Error:        err.Error(),
		ParsedSink:   models.ParsedSinkName(group),
		UnparsedSink: models.UnparsedSinkName(group),
	}
}

func (s *Scheduler) acquire(group string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, running := s.inflight[group]; running {
		return false
	}
	s.inflight[group] = struct{}{}
	return true
}

func (s *Scheduler) release(group string) {
	s.mu.Lock()
	delete(s.inflight, group)
	s.mu.Unlock()
}

func (s *Scheduler) publish(ev ProgressEvent) {
	if s.hub != nil {
		s.hub.Publish(ev)
	}
}
