package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mescon/Linkarr/internal/clock"
	"github.com/mescon/Linkarr/internal/config"
	"github.com/mescon/Linkarr/internal/domain"
	"github.com/mescon/Linkarr/internal/eventbus"
	"github.com/mescon/Linkarr/internal/fingerprint"
	"github.com/mescon/Linkarr/internal/logger"
	"github.com/mescon/Linkarr/internal/parser"
)

// pathEntry is the pipeline's bookkeeping for one announced path.
type pathEntry struct {
	state PathState
	seen  bool // a prior observation exists
	// queued is true while the path sits in the queue or a worker holds it.
	// It dedupes announcements: a path is processed by at most one worker
	// at a time, and re-announcing a queued path is a no-op.
	queued bool
	timer  clock.Timer
}

// Pipeline drives candidate files from announcement to library placement.
// Event sources call Announce; a fixed pool of workers evaluates stability,
// parses, checks the fingerprint ledger, and places. Unstable files are
// re-queued by clock timers, never by a sleeping worker.
type Pipeline struct {
	cfg    *config.Config
	parser *parser.Parser
	store  *fingerprint.Store
	bus    eventbus.Publisher
	placer *Placer
	clk    clock.Clock
	policy StabilityPolicy

	queue chan string

	mu    sync.Mutex
	paths map[string]*pathEntry

	wg       sync.WaitGroup
	quit     chan struct{}
	quitOnce sync.Once
	// fatal carries the first unrecoverable error. Once set the pool stops
	// accepting work: without the ledger, imports cannot stay idempotent.
	fatal chan error
}

// NewPipeline wires the pipeline. Start must be called before Announce has
// any effect.
func NewPipeline(cfg *config.Config, p *parser.Parser, store *fingerprint.Store,
	bus eventbus.Publisher, placer *Placer, clk clock.Clock) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		parser: p,
		store:  store,
		bus:    bus,
		placer: placer,
		clk:    clk,
		policy: StabilityPolicy{
			GracePeriod: cfg.GracePeriod,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
			MaxAttempts: cfg.MaxAttempts,
		},
		queue: make(chan string, 1024),
		paths: make(map[string]*pathEntry),
		quit:  make(chan struct{}),
		fatal: make(chan error, 1),
	}
}

// Start launches the worker pool.
func (pl *Pipeline) Start() {
	for i := 0; i < pl.cfg.Workers; i++ {
		pl.wg.Add(1)
		go pl.worker()
	}
	logger.Infof("Pipeline started with %d workers", pl.cfg.Workers)
}

// Shutdown stops accepting work, cancels pending retry timers, and waits for
// in-flight workers to finish their current file.
func (pl *Pipeline) Shutdown() {
	pl.stop()
	pl.wg.Wait()
	logger.Infof("Pipeline shutdown complete")
}

// Fatal delivers the error that killed the pool, if any. The caller is
// expected to initiate a full shutdown when it fires.
func (pl *Pipeline) Fatal() <-chan error {
	return pl.fatal
}

// stop closes the quit channel once and cancels all pending retry timers.
func (pl *Pipeline) stop() {
	pl.quitOnce.Do(func() {
		close(pl.quit)

		pl.mu.Lock()
		for _, e := range pl.paths {
			if e.timer != nil {
				e.timer.Stop()
			}
		}
		pl.mu.Unlock()
	})
}

// fail records an unrecoverable error and stops the pool. A broken fingerprint
// ledger must not degenerate into silently dropping files one by one.
func (pl *Pipeline) fail(err error) {
	select {
	case pl.fatal <- err:
	default:
	}
	pl.stop()
}

// Announce submits a path for processing. Paths already queued or mid-flight
// are ignored; paths with a pending retry timer keep their timer (the source
// will announce again if the file is still there later).
func (pl *Pipeline) Announce(path string) {
	select {
	case <-pl.quit:
		return
	default:
	}

	pl.mu.Lock()
	e, ok := pl.paths[path]
	if !ok {
		e = &pathEntry{}
		pl.paths[path] = e
	}
	if e.queued || e.timer != nil {
		pl.mu.Unlock()
		return
	}
	e.queued = true
	pl.mu.Unlock()

	select {
	case pl.queue <- path:
	case <-pl.quit:
	}
}

// requeue puts a path back on the queue after its retry timer fires.
func (pl *Pipeline) requeue(path string) {
	pl.mu.Lock()
	e, ok := pl.paths[path]
	if !ok {
		pl.mu.Unlock()
		return
	}
	e.timer = nil
	if e.queued {
		pl.mu.Unlock()
		return
	}
	e.queued = true
	pl.mu.Unlock()

	select {
	case pl.queue <- path:
	case <-pl.quit:
	}
}

func (pl *Pipeline) worker() {
	defer pl.wg.Done()
	for {
		select {
		case <-pl.quit:
			return
		case path := <-pl.queue:
			pl.process(path)
		}
	}
}

// forget drops all bookkeeping for a path.
func (pl *Pipeline) forget(path string) {
	pl.mu.Lock()
	if e, ok := pl.paths[path]; ok && e.timer != nil {
		e.timer.Stop()
	}
	delete(pl.paths, path)
	pl.mu.Unlock()
}

// process runs one evaluation of a path: stat, stability verdict, and on
// readiness the full ingest.
func (pl *Pipeline) process(path string) {
	info, err := os.Stat(path)
	if err != nil {
		// Gone (or unreadable). Upstream moved or deleted it; drop the state.
		logger.Debugf("Dropping %s: %v", path, err)
		pl.forget(path)
		return
	}

	cur := Observation{Size: info.Size(), MTime: info.ModTime()}

	pl.mu.Lock()
	e := pl.paths[path]
	if e == nil {
		e = &pathEntry{}
		pl.paths[path] = e
	}
	var prev *PathState
	if e.seen {
		s := e.state
		prev = &s
	}
	verdict := pl.policy.Evaluate(prev, cur, pl.clk.Now())
	e.state = verdict.Next
	e.seen = true

	// queued stays true until a retry timer takes over or the path is
	// forgotten, so a concurrent Announce can never hand the same path to
	// a second worker.
	switch verdict.Action {
	case ActionRetry:
		e.queued = false
		e.timer = pl.clk.AfterFunc(verdict.Delay, func() { pl.requeue(path) })
		pl.mu.Unlock()
		logger.Debugf("File %s not stable yet, retry %d in %v", path, verdict.Next.Attempts, verdict.Delay)
		pl.publish(domain.RetryScheduled, path, map[string]interface{}{
			"path":    path,
			"attempt": verdict.Next.Attempts,
			"delay":   verdict.Delay.String(),
		})
		return

	case ActionAbandon:
		pl.mu.Unlock()
		pl.forget(path)
		logger.Warnf("Abandoning %s after %d attempts", path, verdict.Next.Attempts)
		pl.publish(domain.PathAbandoned, path, map[string]interface{}{
			"path":     path,
			"attempts": verdict.Next.Attempts,
		})
		return
	}

	pl.mu.Unlock()
	pl.ingest(path, cur)
	pl.forget(path)
}

// ingest handles a stable file: size gate, ledger check, parse, place, record.
func (pl *Pipeline) ingest(path string, obs Observation) {
	name := filepath.Base(path)

	if obs.Size < pl.cfg.MinFileSize {
		logger.Debugf("Skipping %s: %d bytes below minimum", path, obs.Size)
		pl.publish(domain.FileSkipped, path, map[string]interface{}{
			"path": path, "reason": "too_small", "size": obs.Size,
		})
		return
	}

	key := fingerprint.Key(name, obs.Size)
	already, err := pl.store.Has(key)
	if err != nil {
		logger.Errorf("Ledger lookup failed for %s: %v", path, err)
		pl.fail(fmt.Errorf("fingerprint ledger unavailable: %w", err))
		return
	}
	if already {
		logger.Debugf("Skipping %s: already ingested", path)
		pl.publish(domain.FileSkipped, key, map[string]interface{}{
			"path": path, "reason": "already_ingested",
		})
		return
	}

	result := pl.parser.Parse(name)
	if result.Type == parser.TypeUnknown {
		logger.Warnf("Could not classify %s", name)
		pl.publish(domain.ParseFailed, path, map[string]interface{}{
			"path": path, "filename": name,
		})
		return
	}
	logger.Infof("Classified %s as %s", name, result)

	placement, err := pl.placer.Place(path, result)
	if err != nil {
		logger.Errorf("Placement failed for %s: %v", path, err)
		pl.publish(domain.PlacementFailed, path, map[string]interface{}{
			"path": path, "error": err.Error(),
		})
		return
	}

	if placement.Outcome == OutcomeSkipped {
		logger.Infof("Skipping %s: %s already holds equal or better quality", name, placement.DestinationPath)
		pl.publish(domain.FileSkipped, key, map[string]interface{}{
			"path": path, "reason": "quality_not_better", "existing": placement.DestinationPath,
		})
		return
	}

	if !pl.cfg.DryRun {
		res, err := pl.store.Record(fingerprint.Entry{
			Key:             key,
			SourcePath:      path,
			DestinationPath: placement.DestinationPath,
			Size:            obs.Size,
			MTime:           obs.MTime,
			MediaType:       string(result.Type),
			Title:           result.Title,
			Season:          result.Season,
			Episode:         result.Episode(),
			Year:            result.Year,
			Quality:         result.Quality.String(),
		})
		if err != nil {
			// The file is placed but unrecorded. A ledger that cannot take
			// writes stops the pool; the quality comparison makes the
			// eventual re-import of this one file a no-op.
			logger.Errorf("Failed to record fingerprint for %s: %v", path, err)
			pl.fail(fmt.Errorf("fingerprint ledger unavailable: %w", err))
			return
		} else if res == fingerprint.AlreadyRecorded {
			logger.Debugf("Fingerprint for %s recorded by a concurrent worker", path)
		}
	}

	data := map[string]interface{}{
		"path":        path,
		"destination": placement.DestinationPath,
		"title":       result.Title,
		"media_type":  string(result.Type),
		"quality":     result.Quality.String(),
		"copied":      placement.Copied,
		"dry_run":     pl.cfg.DryRun,
	}
	if placement.Outcome == OutcomeUpgraded {
		data["replaced"] = placement.Replaced
		logger.Infof("Upgraded %s with %s", placement.Replaced, name)
		pl.publish(domain.FileUpgraded, key, data)
		return
	}
	logger.Infof("Linked %s -> %s", path, placement.DestinationPath)
	pl.publish(domain.FileLinked, key, data)
}

func (pl *Pipeline) publish(eventType domain.EventType, aggregateID string, data map[string]interface{}) {
	err := pl.bus.Publish(domain.Event{
		AggregateType: "file",
		AggregateID:   aggregateID,
		EventType:     eventType,
		EventData:     data,
	})
	if err != nil {
		logger.Errorf("Failed to publish %s: %v", eventType, err)
	}
}

// isTempName reports whether the filename looks like a partial download.
func isTempName(name string, tempSuffixes []string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range tempSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	// qBittorrent inserts .!qb before the real extension on some setups.
	return strings.Contains(lower, ".!qb")
}
