package screener

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pulsescan/pulse/internal/alerts"
	"github.com/pulsescan/pulse/internal/audit"
	"github.com/pulsescan/pulse/internal/bus"
	"github.com/pulsescan/pulse/internal/launchpad"
	"github.com/pulsescan/pulse/internal/marketdata"
	"github.com/pulsescan/pulse/internal/observability"
	"github.com/pulsescan/pulse/internal/quality"
	"github.com/pulsescan/pulse/internal/social"
)

// ---------------------------------------------------------------------------
// Screener Service
// Cycle scheduling, candidate sourcing, publishing, alerting, control ops
// ---------------------------------------------------------------------------

// ServiceConfig configures the screener service.
type ServiceConfig struct {
	InstanceID    string
	SchemaVersion string

	// RefreshInterval between scheduled cycles.
	RefreshInterval time.Duration

	// CandidateLimit caps one cycle's candidate batch.
	CandidateLimit int

	// UseSampleFallback screens the bundled sample mints when discovery
	// comes back empty.
	UseSampleFallback bool

	// AuditBuffer is the in-memory audit trail size.
	AuditBuffer int

	Pipeline PipelineConfig
	Criteria Criteria
}

// DefaultServiceConfig returns production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		InstanceID:      "pulse-1",
		SchemaVersion:   "1.0.0",
		RefreshInterval: 30 * time.Second,
		CandidateLimit:  50,
		AuditBuffer:     1000,
		Pipeline:        DefaultPipelineConfig(),
		Criteria:        DefaultCriteria(),
	}
}

// Deps carries the service's collaborators. Market and Launch are required.
// Everything else may be nil; the matching feature then stays off.
type Deps struct {
	Market   marketdata.Provider
	Launch   launchpad.Client
	Social   social.Provider
	Stream   *launchpad.ListingStream
	Producer bus.Producer
	Alerts   *alerts.Manager
	Quality  *quality.Monitor
	Metrics  *observability.Registry
}

// CycleResult is the outcome of one screening cycle.
type CycleResult struct {
	CycleID    string    `json:"cycle_id"`
	Source     string    `json:"source"` // launchpad|stream|fallback
	StartedAt  time.Time `json:"started_at"`
	ElapsedMs  int64     `json:"elapsed_ms"`
	Candidates int       `json:"candidates"`
	Records    []Record  `json:"records"`
	Qualified  []Record  `json:"qualified"`
	Summary    Summary   `json:"summary"`
}

// Service runs the screening loop: source candidates, sanitize, screen,
// qualify, publish, alert. One cycle per RefreshInterval, plus manual
// triggers.
type Service struct {
	config    ServiceConfig
	deps      Deps
	pipeline  *Pipeline
	sanitizer *Sanitizer
	trail     *audit.Trail

	mu        sync.RWMutex
	started   bool
	paused    bool
	latest    *CycleResult
	lastCycle time.Time
	startedAt time.Time

	// streamCh is drained only from the Start goroutine.
	streamCh  <-chan string
	triggerCh chan struct{}

	// rejects collects the running cycle's stage-1 drops. Filter goroutines
	// write it concurrently; runCycle takes it once the batch settles.
	rejectsMu sync.Mutex
	rejects   []FilterReject

	cyclesRun  atomic.Int64
	alertsSent atomic.Int64
	eventsOut  atomic.Int64
}

// NewService creates a fully wired screener service.
func NewService(config ServiceConfig, deps Deps) *Service {
	def := DefaultServiceConfig()
	if config.InstanceID == "" {
		config.InstanceID = def.InstanceID
	}
	if config.SchemaVersion == "" {
		config.SchemaVersion = def.SchemaVersion
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = def.RefreshInterval
	}
	if config.CandidateLimit <= 0 {
		config.CandidateLimit = def.CandidateLimit
	}
	if config.AuditBuffer <= 0 {
		config.AuditBuffer = def.AuditBuffer
	}

	pipeline := NewPipeline(config.Pipeline, deps.Market, deps.Launch, deps.Social)
	if deps.Quality != nil {
		pipeline.SetQualityMonitor(deps.Quality)
	}

	s := &Service{
		config:    config,
		deps:      deps,
		pipeline:  pipeline,
		sanitizer: NewSanitizer(),
		trail:     audit.NewTrail(deps.Producer, config.AuditBuffer),
		triggerCh: make(chan struct{}, 1),
	}
	pipeline.OnReject(s.noteReject)
	return s
}

// Start runs the cycle loop until ctx is cancelled. The first cycle starts
// immediately. Safe to call once; later calls return right away.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	if s.deps.Stream != nil {
		s.streamCh = s.deps.Stream.Start(ctx)
	}

	log.Info().
		Str("instance", s.config.InstanceID).
		Dur("refresh", s.config.RefreshInterval).
		Int("candidate_limit", s.config.CandidateLimit).
		Msg("screener service started")

	s.runCycle(ctx)

	ticker := time.NewTicker(s.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Int64("cycles", s.cyclesRun.Load()).Msg("screener service stopped")
			return
		case <-ticker.C:
			if s.Paused() {
				continue
			}
			s.runCycle(ctx)
		case <-s.triggerCh:
			// Explicit operator action; runs even while paused.
			s.runCycle(ctx)
		}
	}
}

// ---------------------------------------------------------------------------
// Cycle
// ---------------------------------------------------------------------------

func (s *Service) runCycle(ctx context.Context) {
	cycleID := uuid.New().String()
	start := time.Now()

	raw, source := s.gatherCandidates(ctx)
	s.trail.RecordCycleStarted(cycleID, source, len(raw))

	mints := s.sanitizer.Sanitize(raw)

	records, err := s.pipeline.Run(ctx, mints)
	if err != nil {
		// Only parent cancellation reaches here. Discard drops from the
		// aborted run.
		s.takeRejects()
		log.Warn().Err(err).Str("cycle_id", cycleID).Msg("cycle aborted")
		return
	}

	for _, rej := range s.takeRejects() {
		s.trail.RecordFilterReject(cycleID, rej.Mint, rej.Reason)
	}
	for i, rec := range records {
		s.trail.RecordTokenScreened(cycleID, rec.Mint, i+1, rec.Score.Composite, rec.Score.Risk, rec.Degraded)
	}

	qualified := s.config.Criteria.Apply(records)
	summary := Summarize(records)
	elapsed := time.Since(start)

	s.publishResults(ctx, cycleID, records)
	completed := s.buildCycleEvent(cycleID, source, len(raw), records, qualified, summary, elapsed)
	s.publishCycle(ctx, completed)
	s.dispatchAlerts(ctx, cycleID, records)
	s.trail.RecordCycleCompleted(completed)
	s.updateMetrics(len(raw), len(mints), records, len(qualified), summary, elapsed)

	result := CycleResult{
		CycleID:    cycleID,
		Source:     source,
		StartedAt:  start,
		ElapsedMs:  elapsed.Milliseconds(),
		Candidates: len(raw),
		Records:    records,
		Qualified:  qualified,
		Summary:    summary,
	}

	s.mu.Lock()
	s.latest = &result
	s.lastCycle = time.Now()
	s.mu.Unlock()
	s.cyclesRun.Add(1)

	log.Info().
		Str("cycle_id", cycleID).
		Str("source", source).
		Int("candidates", len(raw)).
		Int("screened", len(records)).
		Int("qualified", len(qualified)).
		Float64("avg_composite", summary.AvgComposite).
		Dur("elapsed", elapsed).
		Msg("cycle complete")
}

// gatherCandidates assembles one cycle's batch. Stream mints come first;
// they are fresher than REST polling. Duplicates collapse, the limit caps
// the merge.
func (s *Service) gatherCandidates(ctx context.Context) ([]string, string) {
	streamed := s.drainStream()

	polled, err := s.deps.Launch.Candidates(ctx, s.config.CandidateLimit)
	if err != nil {
		log.Warn().Err(err).Msg("candidate discovery failed")
	}

	merged := make([]string, 0, len(streamed)+len(polled))
	seen := make(map[string]struct{}, len(streamed)+len(polled))
	add := func(mints []string) {
		for _, mint := range mints {
			if _, dup := seen[mint]; dup {
				continue
			}
			seen[mint] = struct{}{}
			merged = append(merged, mint)
		}
	}
	add(streamed)
	add(polled)

	if len(merged) > s.config.CandidateLimit {
		merged = merged[:s.config.CandidateLimit]
	}

	switch {
	case len(streamed) > 0:
		return merged, "stream"
	case len(merged) > 0:
		return merged, "launchpad"
	case s.config.UseSampleFallback:
		log.Debug().Msg("discovery empty, using sample candidates")
		return launchpad.SampleMints(), "fallback"
	default:
		return nil, "launchpad"
	}
}

func (s *Service) noteReject(mint, reason string) {
	s.rejectsMu.Lock()
	s.rejects = append(s.rejects, FilterReject{Mint: mint, Reason: reason})
	s.rejectsMu.Unlock()
}

func (s *Service) takeRejects() []FilterReject {
	s.rejectsMu.Lock()
	defer s.rejectsMu.Unlock()
	out := s.rejects
	s.rejects = nil
	return out
}

// drainStream empties whatever the listing stream buffered since the last
// cycle, without blocking.
func (s *Service) drainStream() []string {
	if s.streamCh == nil {
		return nil
	}
	var mints []string
	for {
		select {
		case mint, ok := <-s.streamCh:
			if !ok {
				s.streamCh = nil
				return mints
			}
			mints = append(mints, mint)
		default:
			return mints
		}
	}
}

// ---------------------------------------------------------------------------
// Publishing
// ---------------------------------------------------------------------------

func (s *Service) publishResults(ctx context.Context, cycleID string, records []Record) {
	if s.deps.Producer == nil {
		return
	}
	for i, rec := range records {
		ev := bus.TokenScreened{
			BaseEvent:   bus.NewBaseEvent(s.config.InstanceID, s.config.SchemaVersion),
			Mint:        rec.Mint,
			Name:        rec.Meta.Name,
			Symbol:      rec.Meta.Symbol,
			Composite:   rec.Score.Composite,
			Risk:        rec.Score.Risk,
			Momentum:    rec.Score.Momentum,
			Buys1m:      rec.Stats.Buys1m,
			Volume1hSOL: rec.Stats.Volume1hSOL,
			Resilient:   rec.Dip.Resilient,
			Degraded:    rec.Degraded,
			Rank:        i + 1,
		}
		ev.CycleID = cycleID
		s.deps.Producer.ProduceJSON(ctx, bus.TopicResults, rec.Mint, ev)
		s.eventsOut.Add(1)
		s.metricInc("pulse_events_published_total")
	}
}

func (s *Service) buildCycleEvent(cycleID, source string, candidates int, records, qualified []Record, summary Summary, elapsed time.Duration) bus.CycleCompleted {
	ev := bus.CycleCompleted{
		BaseEvent:    bus.NewBaseEvent(s.config.InstanceID, s.config.SchemaVersion),
		Source:       source,
		Candidates:   candidates,
		PassedFilter: len(records),
		Screened:     len(records),
		Qualified:    len(qualified),
		AvgComposite: summary.AvgComposite,
		MaxComposite: summary.MaxComposite,
		ElapsedMs:    elapsed.Milliseconds(),
	}
	ev.CycleID = cycleID
	return ev
}

// publishCycle delivers the cycle summary synchronously. Downstream
// consumers key dashboards off this event, so it does not ride the async
// path.
func (s *Service) publishCycle(ctx context.Context, ev bus.CycleCompleted) {
	if s.deps.Producer == nil {
		return
	}
	if err := s.deps.Producer.PublishJSON(ctx, bus.TopicCycles, ev.CycleID, ev); err != nil {
		log.Error().Err(err).Str("cycle_id", ev.CycleID).Msg("cycle event publish failed")
		return
	}
	s.eventsOut.Add(1)
	s.metricInc("pulse_events_published_total")
}

// dispatchAlerts notifies operators about qualifying records. Rank is the
// record's position in the full cycle ranking.
func (s *Service) dispatchAlerts(ctx context.Context, cycleID string, records []Record) {
	if s.deps.Alerts == nil {
		return
	}

	for i, rec := range records {
		if !s.config.Criteria.Qualifies(rec) {
			continue
		}

		n := alerts.Notification{
			Mint:        rec.Mint,
			Name:        rec.Meta.Name,
			Symbol:      rec.Meta.Symbol,
			Rank:        i + 1,
			Composite:   rec.Score.Composite,
			Risk:        rec.Score.Risk,
			Volume1hSOL: rec.Stats.Volume1hSOL,
			Buys1m:      rec.Stats.Buys1m,
			Resilient:   rec.Dip.Resilient,
			CycleID:     cycleID,
		}
		if !s.deps.Alerts.Notify(ctx, n) {
			continue
		}
		s.alertsSent.Add(1)
		s.metricInc("pulse_alerts_sent_total")

		ev := bus.AlertRaised{
			BaseEvent: bus.NewBaseEvent(s.config.InstanceID, s.config.SchemaVersion),
			Mint:      rec.Mint,
			Symbol:    rec.Meta.Symbol,
			Composite: rec.Score.Composite,
			Risk:      rec.Score.Risk,
			Channels:  s.deps.Alerts.SenderNames(),
		}
		ev.CycleID = cycleID
		if s.deps.Producer != nil {
			s.deps.Producer.ProduceJSON(ctx, bus.TopicAlerts, rec.Mint, ev)
			s.eventsOut.Add(1)
			s.metricInc("pulse_events_published_total")
		}
		s.trail.RecordAlert(ev)
	}
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

func (s *Service) updateMetrics(candidates, sanitized int, records []Record, qualified int, summary Summary, elapsed time.Duration) {
	if s.deps.Metrics == nil {
		return
	}

	s.metricInc("pulse_cycles_total")
	s.metricAdd("pulse_candidates_total", float64(candidates))
	s.metricAdd("pulse_filter_passed_total", float64(len(records)))
	s.metricAdd("pulse_filter_dropped_total", float64(sanitized-len(records)))
	s.metricAdd("pulse_tokens_screened_total", float64(len(records)))
	s.metricAdd("pulse_tokens_qualified_total", float64(qualified))

	degraded := 0
	for _, rec := range records {
		degraded += len(rec.Degraded)
		s.metricObserve("pulse_enrich_latency_ms", float64(rec.LatencyMs))
	}
	s.metricAdd("pulse_degraded_ops_total", float64(degraded))

	s.metricSet("pulse_last_cycle_tokens", float64(len(records)))
	s.metricSet("pulse_last_cycle_avg_composite", summary.AvgComposite)
	s.metricSet("pulse_last_cycle_max_composite", summary.MaxComposite)
	s.metricSet("pulse_meta_cache_entries", float64(s.pipeline.Stats().MetaCache.Size))
	s.metricObserve("pulse_cycle_duration_ms", float64(elapsed.Milliseconds()))
}

func (s *Service) metricInc(name string) {
	if s.deps.Metrics == nil {
		return
	}
	if c := s.deps.Metrics.GetCounter(name); c != nil {
		c.Inc()
	}
}

func (s *Service) metricAdd(name string, delta float64) {
	if s.deps.Metrics == nil {
		return
	}
	if c := s.deps.Metrics.GetCounter(name); c != nil {
		c.Add(delta)
	}
}

func (s *Service) metricSet(name string, v float64) {
	if s.deps.Metrics == nil {
		return
	}
	if g := s.deps.Metrics.GetGauge(name); g != nil {
		g.Set(v)
	}
}

func (s *Service) metricObserve(name string, v float64) {
	if s.deps.Metrics == nil {
		return
	}
	if h := s.deps.Metrics.GetHistogram(name); h != nil {
		h.Observe(v)
	}
}

// ---------------------------------------------------------------------------
// Control plane
// ---------------------------------------------------------------------------

// Pause stops scheduled cycles. Manual triggers still run.
func (s *Service) Pause() {
	s.mu.Lock()
	already := s.paused
	s.paused = true
	s.mu.Unlock()
	if already {
		return
	}

	s.metricSet("pulse_paused", 1)
	s.trail.RecordControl("pause", "scheduled cycles suspended")
	log.Warn().Msg("screener paused")
}

// Resume re-enables scheduled cycles.
func (s *Service) Resume() {
	s.mu.Lock()
	already := !s.paused
	s.paused = false
	s.mu.Unlock()
	if already {
		return
	}

	s.metricSet("pulse_paused", 0)
	s.trail.RecordControl("resume", "scheduled cycles resumed")
	log.Info().Msg("screener resumed")
}

// TriggerNow queues an immediate cycle. It runs even while paused. Returns
// false when a trigger is already pending.
func (s *Service) TriggerNow() bool {
	select {
	case s.triggerCh <- struct{}{}:
		s.trail.RecordControl("trigger", "manual cycle requested")
		return true
	default:
		return false
	}
}

// Paused reports whether scheduled cycles are suspended.
func (s *Service) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Latest returns the most recent cycle result.
func (s *Service) Latest() (CycleResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return CycleResult{}, false
	}
	return *s.latest, true
}

// LastCycleTime reports when the last cycle finished.
func (s *Service) LastCycleTime() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastCycle, !s.lastCycle.IsZero()
}

// Trail exposes the audit trail.
func (s *Service) Trail() *audit.Trail { return s.trail }

// ServiceStats is the aggregate statistics report.
type ServiceStats struct {
	InstanceID      string         `json:"instance_id"`
	UptimeSec       float64        `json:"uptime_sec"`
	Paused          bool           `json:"paused"`
	CyclesRun       int64          `json:"cycles_run"`
	AlertsSent      int64          `json:"alerts_sent"`
	EventsPublished int64          `json:"events_published"`
	LastCycleAt     time.Time      `json:"last_cycle_at"`
	Pipeline        PipelineStats  `json:"pipeline"`
	Sanitizer       SanitizerStats `json:"sanitizer"`
	AuditEntries    int            `json:"audit_entries"`
}

// Stats returns aggregate statistics.
func (s *Service) Stats() ServiceStats {
	s.mu.RLock()
	paused := s.paused
	lastCycle := s.lastCycle
	startedAt := s.startedAt
	s.mu.RUnlock()

	var uptime float64
	if !startedAt.IsZero() {
		uptime = time.Since(startedAt).Seconds()
	}

	return ServiceStats{
		InstanceID:      s.config.InstanceID,
		UptimeSec:       uptime,
		Paused:          paused,
		CyclesRun:       s.cyclesRun.Load(),
		AlertsSent:      s.alertsSent.Load(),
		EventsPublished: s.eventsOut.Load(),
		LastCycleAt:     lastCycle,
		Pipeline:        s.pipeline.Stats(),
		Sanitizer:       s.sanitizer.Stats(),
		AuditEntries:    s.trail.Len(),
	}
}
