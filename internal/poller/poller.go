// Package poller implements the recurring board polling loop.
package poller

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chescofire/cadwatch/internal/cad"
	"github.com/chescofire/cadwatch/internal/dedup"
	"github.com/chescofire/cadwatch/internal/metrics"
	"github.com/chescofire/cadwatch/internal/state"
)

// Config controls Poller behavior.
type Config struct {
	Interval       time.Duration
	Municipalities []string
	FetchUnits     bool
}

// Status summarizes the most recently finished poll cycle.
type Status struct {
	CycleID             string    `json:"cycle_id"`
	StartedAt           time.Time `json:"started_at"`
	DurationMS          int64     `json:"duration_ms"`
	Parsed              int       `json:"parsed"`
	Matched             int       `json:"matched"`
	Published           int       `json:"published"`
	Evicted             int       `json:"evicted"`
	Known               int       `json:"known"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Error               string    `json:"error,omitempty"`
}

type snapshot struct {
	status    Status
	incidents []cad.Incident
}

type cycleStats struct {
	parsed    int
	matched   int
	published int
	evicted   int
}

// Poller owns the fetch, parse, reconcile, publish cycle. Run and RunOnce
// must not be called concurrently; Status and Incidents may be called from
// any goroutine.
type Poller struct {
	fetcher    cad.Fetcher
	parser     *cad.Parser
	reconciler *dedup.Reconciler
	publisher  cad.Publisher
	summary    cad.SummaryPublisher
	states     state.Store
	archiver   cad.Archiver
	clock      cad.Clock
	ids        cad.IDGenerator
	cfg        Config
	logger     *zap.Logger

	known    dedup.State
	failures int
	status   atomic.Pointer[snapshot]
}

// New constructs a Poller. The summary publisher, state store and archiver
// are optional; pass nil to disable them.
func New(
	fetcher cad.Fetcher,
	parser *cad.Parser,
	reconciler *dedup.Reconciler,
	publisher cad.Publisher,
	summary cad.SummaryPublisher,
	states state.Store,
	archiver cad.Archiver,
	clock cad.Clock,
	ids cad.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	metrics.Init()
	return &Poller{
		fetcher:    fetcher,
		parser:     parser,
		reconciler: reconciler,
		publisher:  publisher,
		summary:    summary,
		states:     states,
		archiver:   archiver,
		clock:      clock,
		ids:        ids,
		cfg:        cfg,
		logger:     logger,
		known:      dedup.State{},
	}
}

// Run restores persisted state, executes one cycle immediately, then one per
// interval until the context ends. It returns the context's error.
func (p *Poller) Run(ctx context.Context) error {
	p.restore(ctx)

	p.cycle(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

// RunOnce restores persisted state and executes a single cycle. It returns
// the cycle-fatal error, if any; individual publish failures do not fail the
// cycle.
func (p *Poller) RunOnce(ctx context.Context) error {
	p.restore(ctx)
	return p.cycle(ctx)
}

// Status reports the outcome of the last finished cycle. The second return
// is false until one cycle has completed.
func (p *Poller) Status() (Status, bool) {
	snap := p.status.Load()
	if snap == nil {
		return Status{}, false
	}
	return snap.status, true
}

// Incidents returns the incidents tracked as of the last finished cycle,
// newest dispatch first.
func (p *Poller) Incidents() []cad.Incident {
	snap := p.status.Load()
	if snap == nil {
		return []cad.Incident{}
	}
	out := make([]cad.Incident, len(snap.incidents))
	copy(out, snap.incidents)
	return out
}

func (p *Poller) restore(ctx context.Context) {
	p.known = dedup.State{}
	if p.states == nil {
		return
	}
	st, err := p.states.Load(ctx)
	if err != nil {
		p.logger.Warn("restore incident state failed, starting empty", zap.Error(err))
		return
	}
	p.known = st
	if len(st) > 0 {
		p.logger.Info("restored incident state", zap.Int("known", len(st)))
	}
}

func (p *Poller) cycle(ctx context.Context) error {
	started := p.clock.Now()
	cycleID := p.cycleID(started)
	log := p.logger.With(zap.String("cycle_id", cycleID))

	raw, err := p.fetcher.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.recordFailure(log, cycleID, started, metrics.CycleFetchError, err)
		return err
	}

	listing, err := p.parser.ParseListing(raw, started)
	if err != nil {
		p.archiveListing(log, started, raw)
		p.recordFailure(log, cycleID, started, metrics.CycleParseError, err)
		return err
	}

	metrics.AddParsedIncidents(len(listing.Incidents))
	if listing.Malformed > 0 {
		metrics.AddMalformedFragments(listing.Malformed)
		log.Warn("skipped malformed incident fragments", zap.Int("fragments", listing.Malformed))
	}
	if listing.Defaulted > 0 {
		log.Warn("substituted fetch time for garbled dispatch times", zap.Int("incidents", listing.Defaulted))
	}

	matched := cad.FilterByMunicipality(listing.Incidents, p.cfg.Municipalities)
	if p.cfg.FetchUnits {
		p.enrichUnits(ctx, log, matched)
	}

	pubs, next, evicted := p.reconciler.Reconcile(started, matched, p.known)
	p.known = next

	published := p.publishIncidents(ctx, log, pubs)

	stats := cycleStats{
		parsed:    len(listing.Incidents),
		matched:   len(matched),
		published: published,
		evicted:   evicted,
	}

	if p.summary != nil {
		p.publishSummary(ctx, log, started, stats, matched)
	}

	if p.states != nil && (published > 0 || evicted > 0) {
		if err := p.states.Save(ctx, p.known); err != nil {
			metrics.ObserveStateSaveError()
			log.Warn("save incident state failed", zap.Error(err))
		}
	}

	p.failures = 0
	metrics.SetKnownIncidents(len(p.known))
	metrics.ObserveCycle(metrics.CycleOK, p.clock.Now().Sub(started))
	p.store(cycleID, started, stats, nil)

	log.Info("poll cycle complete",
		zap.Int("parsed", stats.parsed),
		zap.Int("matched", stats.matched),
		zap.Int("published", stats.published),
		zap.Int("evicted", stats.evicted),
		zap.Int("known", len(p.known)),
	)
	return nil
}

func (p *Poller) enrichUnits(ctx context.Context, log *zap.Logger, incidents []cad.Incident) {
	for i := range incidents {
		if ctx.Err() != nil {
			return
		}
		if incidents[i].CommentsURL == "" {
			continue
		}
		raw, err := p.fetcher.FetchComments(ctx, incidents[i].CommentsURL)
		if err != nil {
			metrics.ObserveUnitFetchError()
			log.Warn("fetch incident comments failed",
				zap.String("number", incidents[i].Number),
				zap.Error(err),
			)
			continue
		}
		incidents[i].Units = cad.ParseComments(raw)
	}
}

func (p *Poller) publishIncidents(ctx context.Context, log *zap.Logger, pubs []dedup.Publication) int {
	published := 0
	for _, pub := range pubs {
		if ctx.Err() != nil {
			break
		}
		if err := p.publisher.Publish(ctx, pub.Record); err != nil {
			metrics.ObservePublishError()
			log.Warn("publish incident failed",
				zap.String("identity", pub.Record.IdentityKey()),
				zap.String("event", string(pub.Event)),
				zap.Error(err),
			)
			continue
		}
		metrics.ObservePublished(string(pub.Event))
		published++
		log.Info("incident published",
			zap.String("identity", pub.Record.IdentityKey()),
			zap.String("event", string(pub.Event)),
			zap.String("municipality", pub.Record.Municipality),
			zap.String("type", pub.Record.Type),
		)
	}
	return published
}

func (p *Poller) publishSummary(ctx context.Context, log *zap.Logger, started time.Time, stats cycleStats, matched []cad.Incident) {
	sum := cad.Summary{
		GeneratedAt: started,
		Parsed:      stats.parsed,
		Matched:     stats.matched,
		Published:   stats.published,
		Incidents:   append([]cad.Incident{}, matched...),
	}
	if err := p.summary.PublishSummary(ctx, sum); err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.ObservePublishError()
		log.Warn("publish board summary failed", zap.Error(err))
	}
}

func (p *Poller) archiveListing(log *zap.Logger, started time.Time, raw []byte) {
	if p.archiver == nil {
		return
	}
	name := "webcad-" + started.UTC().Format("20060102T150405Z") + ".html"
	path, err := p.archiver.Save(name, raw)
	if err != nil {
		log.Warn("archive unparseable page failed", zap.Error(err))
		return
	}
	log.Info("archived unparseable page", zap.String("path", path))
}

func (p *Poller) recordFailure(log *zap.Logger, cycleID string, started time.Time, result string, err error) {
	p.failures++
	metrics.ObserveCycle(result, p.clock.Now().Sub(started))
	log.Warn("poll cycle failed",
		zap.String("result", result),
		zap.Int("consecutive_failures", p.failures),
		zap.Error(err),
	)
	p.store(cycleID, started, cycleStats{}, err)
}

func (p *Poller) store(cycleID string, started time.Time, stats cycleStats, err error) {
	st := Status{
		CycleID:             cycleID,
		StartedAt:           started,
		DurationMS:          p.clock.Now().Sub(started).Milliseconds(),
		Parsed:              stats.parsed,
		Matched:             stats.matched,
		Published:           stats.published,
		Evicted:             stats.evicted,
		Known:               len(p.known),
		ConsecutiveFailures: p.failures,
	}
	if err != nil {
		st.Error = err.Error()
	}
	p.status.Store(&snapshot{status: st, incidents: p.trackedIncidents()})
}

func (p *Poller) trackedIncidents() []cad.Incident {
	out := make([]cad.Incident, 0, len(p.known))
	for _, known := range p.known {
		out = append(out, known.Record)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].IdentityKey() < out[j].IdentityKey()
	})
	return out
}

func (p *Poller) cycleID(started time.Time) string {
	id, err := p.ids.NewID()
	if err != nil {
		return fmt.Sprintf("cycle-%d", started.UnixNano())
	}
	return id
}
