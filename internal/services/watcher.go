package services

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/mescon/Linkarr/internal/config"
	"github.com/mescon/Linkarr/internal/domain"
	"github.com/mescon/Linkarr/internal/eventbus"
	"github.com/mescon/Linkarr/internal/logger"
)

// Watcher announces candidate files to the pipeline from two sources: inotify
// events on the watch folder tree, and a periodic full rescan that catches
// anything inotify missed (files written before a subdirectory watch existed,
// events dropped under load, paths abandoned by the retry budget).
type Watcher struct {
	cfg      *config.Config
	pipeline *Pipeline
	bus      eventbus.Publisher

	fsw  *fsnotify.Watcher
	cron *cron.Cron

	done chan struct{}
	wg   sync.WaitGroup
}

func NewWatcher(cfg *config.Config, pipeline *Pipeline, bus eventbus.Publisher) *Watcher {
	return &Watcher{
		cfg:      cfg,
		pipeline: pipeline,
		bus:      bus,
		done:     make(chan struct{}),
	}
}

// Start registers the watch folder tree with inotify, schedules the rescan,
// and runs one initial scan so a restart picks up whatever is already waiting.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	w.fsw = fsw

	if err := w.watchTree(w.cfg.WatchFolder); err != nil {
		fsw.Close()
		return err
	}

	w.wg.Add(1)
	go w.eventLoop()

	w.cron = cron.New()
	if _, err := w.cron.AddFunc(w.cfg.RescanCron, func() { w.Rescan("scheduled") }); err != nil {
		fsw.Close()
		return fmt.Errorf("invalid rescan schedule %q: %w", w.cfg.RescanCron, err)
	}
	w.cron.Start()

	logger.Infof("Watching %s (rescan: %s)", w.cfg.WatchFolder, w.cfg.RescanCron)

	go w.Rescan("startup")
	return nil
}

// Stop tears down inotify and the cron scheduler and waits for the event loop.
func (w *Watcher) Stop() {
	close(w.done)
	if w.cron != nil {
		ctx := w.cron.Stop()
		<-ctx.Done()
	}
	if w.fsw != nil {
		w.fsw.Close()
	}
	w.wg.Wait()
	logger.Infof("Watcher stopped")
}

// watchTree adds the directory and every subdirectory to inotify.
func (w *Watcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warnf("Cannot walk %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				logger.Warnf("Cannot watch %s: %v", path, err)
			}
		}
		return nil
	})
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Errorf("Filesystem watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return
	}

	info, err := os.Stat(ev.Name)
	if err != nil {
		return // renamed away or already deleted
	}

	if info.IsDir() {
		// New directories need their own watch, and any files written into
		// them before the watch existed need a scan.
		if ev.Has(fsnotify.Create) {
			if err := w.watchTree(ev.Name); err != nil {
				logger.Warnf("Cannot watch new directory %s: %v", ev.Name, err)
			}
			w.scanDir(ev.Name)
		}
		return
	}

	if !w.isCandidate(filepath.Base(ev.Name)) {
		return
	}

	logger.Debugf("Detected %s (%s)", ev.Name, ev.Op)
	w.publishDetected(ev.Name, "inotify")
	w.pipeline.Announce(ev.Name)
}

// scanDir announces every candidate file directly under dir and recurses into
// subdirectories.
func (w *Watcher) scanDir(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if w.isCandidate(d.Name()) {
			w.publishDetected(path, "scan")
			w.pipeline.Announce(path)
		}
		return nil
	})
}

// Rescan walks the whole watch folder and announces every candidate. The
// pipeline's dedupe and the fingerprint ledger make repeated announcements
// harmless.
func (w *Watcher) Rescan(trigger string) {
	runID := uuid.NewString()
	started := time.Now()

	w.publishScan(domain.ScanStarted, runID, map[string]interface{}{
		"trigger": trigger,
		"folder":  w.cfg.WatchFolder,
	})

	var announced int
	err := filepath.WalkDir(w.cfg.WatchFolder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warnf("Rescan cannot access %s: %v", path, err)
			return nil
		}
		if d.IsDir() || !w.isCandidate(d.Name()) {
			return nil
		}
		announced++
		w.pipeline.Announce(path)
		return nil
	})
	if err != nil {
		logger.Errorf("Rescan of %s failed: %v", w.cfg.WatchFolder, err)
	}

	logger.Infof("Rescan (%s) announced %d candidates in %v", trigger, announced, time.Since(started).Round(time.Millisecond))
	w.publishScan(domain.ScanCompleted, runID, map[string]interface{}{
		"trigger":   trigger,
		"announced": announced,
		"duration":  time.Since(started).String(),
	})
}

// isCandidate applies the name-based filters: video extension, no partial
// download markers, and optionally no sample files. Size filtering happens
// later, once the file is stable.
func (w *Watcher) isCandidate(name string) bool {
	if isTempName(name, w.cfg.TempSuffixes) {
		return false
	}

	ext := strings.ToLower(filepath.Ext(name))
	var known bool
	for _, e := range w.cfg.VideoExtensions {
		if ext == e {
			known = true
			break
		}
	}
	if !known {
		return false
	}

	if w.cfg.SkipSamples && strings.Contains(strings.ToLower(name), "sample") {
		return false
	}
	return true
}

func (w *Watcher) publishDetected(path, source string) {
	err := w.bus.Publish(domain.Event{
		AggregateType: "file",
		AggregateID:   path,
		EventType:     domain.FileDetected,
		EventData: map[string]interface{}{
			"path":   path,
			"source": source,
		},
	})
	if err != nil {
		logger.Errorf("Failed to publish FileDetected: %v", err)
	}
}

func (w *Watcher) publishScan(eventType domain.EventType, runID string, data map[string]interface{}) {
	err := w.bus.Publish(domain.Event{
		AggregateType: "scan",
		AggregateID:   runID,
		EventType:     eventType,
		EventData:     data,
	})
	if err != nil {
		logger.Errorf("Failed to publish %s: %v", eventType, err)
	}
}
