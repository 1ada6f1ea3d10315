package services

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/mescon/Linkarr/internal/config"
	"github.com/mescon/Linkarr/internal/domain"
	"github.com/mescon/Linkarr/internal/eventbus"
	"github.com/mescon/Linkarr/internal/logger"
	"github.com/mescon/Linkarr/internal/parser"
)

// Janitor keeps the trees tidy: it wraps loose movie files into their own
// folders, normalizes folder name casing, and prunes directories left empty
// in the library and the watch folder. Runs on a cron schedule, usually
// once nightly.
type Janitor struct {
	cfg    *config.Config
	bus    eventbus.Publisher
	parser *parser.Parser
	cron   *cron.Cron
}

// JanitorStats summarizes one maintenance run.
type JanitorStats struct {
	MoviesWrapped    int `json:"movies_wrapped"`
	FoldersRenamed   int `json:"folders_renamed"`
	EmptyDirsRemoved int `json:"empty_dirs_removed"`
}

func NewJanitor(cfg *config.Config, bus eventbus.Publisher, p *parser.Parser) *Janitor {
	return &Janitor{cfg: cfg, bus: bus, parser: p}
}

// Start schedules maintenance runs.
func (j *Janitor) Start() error {
	j.cron = cron.New()
	if _, err := j.cron.AddFunc(j.cfg.JanitorCron, func() { j.Run() }); err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", j.cfg.JanitorCron, err)
	}
	j.cron.Start()
	logger.Infof("Janitor scheduled: %s", j.cfg.JanitorCron)
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (j *Janitor) Stop() {
	if j.cron != nil {
		ctx := j.cron.Stop()
		<-ctx.Done()
	}
}

// Run performs one full maintenance pass over the library.
func (j *Janitor) Run() JanitorStats {
	runID := uuid.NewString()
	started := time.Now()
	j.publish(domain.JanitorStarted, runID, map[string]interface{}{
		"dry_run": j.cfg.DryRun,
	})

	var stats JanitorStats
	stats.MoviesWrapped = j.wrapOrphanMovies(j.cfg.MovieRoot())
	stats.FoldersRenamed = j.normalizeFolderNames(j.cfg.TVRoot()) + j.normalizeFolderNames(j.cfg.MovieRoot())
	stats.EmptyDirsRemoved = j.removeEmptyDirs(j.cfg.TVRoot()) +
		j.removeEmptyDirs(j.cfg.MovieRoot()) +
		j.removeEmptyDirs(j.cfg.WatchFolder)

	logger.Infof("Janitor: wrapped %d movies, renamed %d folders, removed %d empty dirs in %v",
		stats.MoviesWrapped, stats.FoldersRenamed, stats.EmptyDirsRemoved, time.Since(started).Round(time.Millisecond))
	j.publish(domain.JanitorCompleted, runID, map[string]interface{}{
		"movies_wrapped":     stats.MoviesWrapped,
		"folders_renamed":    stats.FoldersRenamed,
		"empty_dirs_removed": stats.EmptyDirsRemoved,
		"duration":           time.Since(started).String(),
	})
	return stats
}

// wrapOrphanMovies moves video files sitting directly under the movie root
// into a "Title (Year)" folder of their own.
func (j *Janitor) wrapOrphanMovies(movieRoot string) int {
	entries, err := os.ReadDir(movieRoot)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("Janitor cannot read %s: %v", movieRoot, err)
		}
		return 0
	}

	var wrapped int
	for _, e := range entries {
		if e.IsDir() || !j.isVideo(e.Name()) {
			continue
		}

		r := j.parser.Parse(e.Name())
		if r.Type != parser.TypeMovie || r.Title == "" {
			continue
		}
		folder := r.Title
		if r.Year > 0 {
			folder = fmt.Sprintf("%s (%d)", r.Title, r.Year)
		}

		src := filepath.Join(movieRoot, e.Name())
		dst := filepath.Join(movieRoot, folder, e.Name())
		if j.cfg.DryRun {
			logger.Infof("[dry-run] would wrap %s into %s/", e.Name(), folder)
			wrapped++
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			logger.Warnf("Janitor cannot create %s: %v", filepath.Dir(dst), err)
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			logger.Warnf("Janitor cannot move %s: %v", src, err)
			continue
		}
		logger.Infof("Wrapped %s into %s/", e.Name(), folder)
		wrapped++
	}
	return wrapped
}

// normalizeFolderNames title-cases all-lowercase folder names one level deep.
// Season folders are left alone; their casing is already canonical.
func (j *Janitor) normalizeFolderNames(root string) int {
	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("Janitor cannot read %s: %v", root, err)
		}
		return 0
	}

	var renamed int
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), "Season ") {
			continue
		}
		fixed := titleCase(e.Name())
		if fixed == e.Name() {
			continue
		}

		src := filepath.Join(root, e.Name())
		dst := filepath.Join(root, fixed)
		if _, err := os.Stat(dst); err == nil {
			// Target exists; merging folders is out of scope here.
			continue
		}
		if j.cfg.DryRun {
			logger.Infof("[dry-run] would rename %s -> %s", e.Name(), fixed)
			renamed++
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			logger.Warnf("Janitor cannot rename %s: %v", src, err)
			continue
		}
		logger.Infof("Renamed folder %s -> %s", e.Name(), fixed)
		renamed++
	}
	return renamed
}

// removeEmptyDirs prunes empty directories bottom-up, keeping the root.
func (j *Janitor) removeEmptyDirs(root string) int {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err == nil && d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return 0
	}

	// Deepest first so a chain of empty parents collapses in one pass.
	sort.Slice(dirs, func(a, b int) bool { return len(dirs[a]) > len(dirs[b]) })

	var removed int
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if j.cfg.DryRun {
			logger.Infof("[dry-run] would remove empty dir %s", dir)
			removed++
			continue
		}
		if err := os.Remove(dir); err != nil {
			logger.Warnf("Janitor cannot remove %s: %v", dir, err)
			continue
		}
		logger.Debugf("Removed empty dir %s", dir)
		removed++
	}
	return removed
}

func (j *Janitor) isVideo(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range j.cfg.VideoExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func (j *Janitor) publish(eventType domain.EventType, runID string, data map[string]interface{}) {
	err := j.bus.Publish(domain.Event{
		AggregateType: "janitor",
		AggregateID:   runID,
		EventType:     eventType,
		EventData:     data,
	})
	if err != nil {
		logger.Errorf("Failed to publish %s: %v", eventType, err)
	}
}

// titleCase capitalizes the first letter of each all-lowercase word while
// leaving words with existing uppercase (acronyms, roman numerals) alone.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if w == strings.ToLower(w) {
			r := []rune(w)
			r[0] = unicode.ToUpper(r[0])
			words[i] = string(r)
		}
	}
	return strings.Join(words, " ")
}
