package services

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mescon/Linkarr/internal/clock"
	"github.com/mescon/Linkarr/internal/config"
	"github.com/mescon/Linkarr/internal/domain"
	"github.com/mescon/Linkarr/internal/fingerprint"
	"github.com/mescon/Linkarr/internal/parser"
	"github.com/mescon/Linkarr/internal/testutil"
)

// memBus collects published events without a database.
type memBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *memBus) Publish(event domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *memBus) Subscribe(domain.EventType, func(domain.Event)) {}

func (b *memBus) byType(t domain.EventType) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Event
	for _, e := range b.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

type pipelineFixture struct {
	pipeline *Pipeline
	clk      *clock.MockClock
	bus      *memBus
	db       *sql.DB
	store    *fingerprint.Store
	cfg      *config.Config
	watchDir string
	mediaDir string
}

func newPipelineFixture(t *testing.T, clockStart time.Time) *pipelineFixture {
	t.Helper()
	watchDir := t.TempDir()
	mediaDir := t.TempDir()

	cfg := &config.Config{
		WatchFolder:    watchDir,
		MediaRoot:      mediaDir,
		TVFolder:       "TV",
		MovieFolder:    "Movies",
		MinFileSize:    1,
		GracePeriod:    2 * time.Minute,
		Workers:        1,
		RetryBaseDelay: 45 * time.Second,
		RetryMaxDelay:  30 * time.Minute,
		MaxAttempts:    30,
	}

	p := parser.New(nil)
	db := testutil.NewTestDB(t)
	store := fingerprint.NewStore(db)
	bus := &memBus{}
	clk := clock.NewMockClock(clockStart)
	placer := &Placer{TVRoot: cfg.TVRoot(), MovieRoot: cfg.MovieRoot(), Parser: p}

	return &pipelineFixture{
		pipeline: NewPipeline(cfg, p, store, bus, placer, clk),
		clk:      clk,
		bus:      bus,
		db:       db,
		store:    store,
		cfg:      cfg,
		watchDir: watchDir,
		mediaDir: mediaDir,
	}
}

// drainOne processes the next queued path synchronously.
func (f *pipelineFixture) drainOne(t *testing.T) {
	t.Helper()
	select {
	case path := <-f.pipeline.queue:
		f.pipeline.process(path)
	default:
		t.Fatal("queue is empty")
	}
}

// Until the backoff delivers a second, unchanged observation the file is not
// trusted; once it is, the full ingest runs.
func TestPipelineLinksStableFile(t *testing.T) {
	// Clock far ahead of the file's real mtime, so the grace period is
	// satisfied as soon as two observations agree.
	f := newPipelineFixture(t, time.Now().Add(time.Hour))

	path := filepath.Join(f.watchDir, "Show.Name.S01E05.1080p.mkv")
	if err := os.WriteFile(path, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}

	f.pipeline.Announce(path)
	f.drainOne(t)

	if got := f.bus.byType(domain.RetryScheduled); len(got) != 1 {
		t.Fatalf("RetryScheduled events = %d, want 1", len(got))
	}
	if f.clk.PendingTimers() != 1 {
		t.Fatalf("pending timers = %d, want 1", f.clk.PendingTimers())
	}

	f.clk.Advance(f.cfg.RetryBaseDelay)
	f.drainOne(t)

	linked := f.bus.byType(domain.FileLinked)
	if len(linked) != 1 {
		t.Fatalf("FileLinked events = %d, want 1", len(linked))
	}
	dest := linked[0].GetStringOr("destination", "")
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("destination %s missing: %v", dest, err)
	}

	n, err := f.store.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("ledger rows = %d, want 1", n)
	}
}

func TestPipelineSecondPassIsNoOp(t *testing.T) {
	f := newPipelineFixture(t, time.Now().Add(time.Hour))

	path := filepath.Join(f.watchDir, "Show.Name.S01E05.1080p.mkv")
	if err := os.WriteFile(path, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}

	ingest := func() {
		f.pipeline.Announce(path)
		f.drainOne(t)
		f.clk.Advance(f.cfg.RetryMaxDelay)
		f.drainOne(t)
	}
	ingest()
	ingest()

	if got := f.bus.byType(domain.FileLinked); len(got) != 1 {
		t.Fatalf("FileLinked events = %d, want 1", len(got))
	}
	skipped := f.bus.byType(domain.FileSkipped)
	if len(skipped) != 1 || skipped[0].GetStringOr("reason", "") != "already_ingested" {
		t.Fatalf("want one FileSkipped(already_ingested), got %+v", skipped)
	}
	n, _ := f.store.Count()
	if n != 1 {
		t.Errorf("ledger rows = %d, want 1", n)
	}
}

func TestPipelineAbandonsUnsettledFile(t *testing.T) {
	// Clock aligned with real time: the fresh mtime keeps the file inside
	// the grace period forever, so the retry budget runs out.
	f := newPipelineFixture(t, time.Now())
	f.cfg.GracePeriod = time.Hour
	f.cfg.MaxAttempts = 2
	f.pipeline.policy.GracePeriod = time.Hour
	f.pipeline.policy.MaxAttempts = 2

	path := filepath.Join(f.watchDir, "Show.Name.S01E05.mkv")
	if err := os.WriteFile(path, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}

	f.pipeline.Announce(path)
	f.drainOne(t) // attempt 1, retry in 45s
	f.clk.Advance(45 * time.Second)
	f.drainOne(t) // attempt 2, retry in 90s
	f.clk.Advance(90 * time.Second)
	f.drainOne(t) // attempt 3 exceeds the budget

	if got := f.bus.byType(domain.PathAbandoned); len(got) != 1 {
		t.Fatalf("PathAbandoned events = %d, want 1", len(got))
	}

	f.pipeline.mu.Lock()
	_, tracked := f.pipeline.paths[path]
	f.pipeline.mu.Unlock()
	if tracked {
		t.Error("abandoned path should be forgotten")
	}
}

func TestPipelineAnnounceDedupes(t *testing.T) {
	f := newPipelineFixture(t, time.Now().Add(time.Hour))

	path := filepath.Join(f.watchDir, "Show.Name.S01E05.mkv")
	if err := os.WriteFile(path, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		f.pipeline.Announce(path)
	}
	if got := len(f.pipeline.queue); got != 1 {
		t.Fatalf("queue length = %d, want 1", got)
	}

	// While a retry timer is pending, announcements stay no-ops.
	f.drainOne(t)
	f.pipeline.Announce(path)
	if got := len(f.pipeline.queue); got != 0 {
		t.Fatalf("queue length = %d, want 0 while timer pending", got)
	}
}

func TestPipelineDropsVanishedFile(t *testing.T) {
	f := newPipelineFixture(t, time.Now())

	path := filepath.Join(f.watchDir, "Show.Name.S01E05.mkv")
	if err := os.WriteFile(path, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}
	f.pipeline.Announce(path)
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	f.drainOne(t)

	f.pipeline.mu.Lock()
	_, tracked := f.pipeline.paths[path]
	f.pipeline.mu.Unlock()
	if tracked {
		t.Error("vanished path should be forgotten")
	}
	if f.clk.PendingTimers() != 0 {
		t.Error("no timers should be pending for a vanished path")
	}
}

func TestPipelineSizeChangeResetsBudget(t *testing.T) {
	f := newPipelineFixture(t, time.Now())
	f.cfg.GracePeriod = time.Hour
	f.pipeline.policy.GracePeriod = time.Hour

	path := filepath.Join(f.watchDir, "Show.Name.S01E05.mkv")
	if err := os.WriteFile(path, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}

	f.pipeline.Announce(path)
	f.drainOne(t)
	f.clk.Advance(time.Hour)

	// Simulate the download growing between observations.
	if err := os.WriteFile(path, []byte("payload grew larger"), 0644); err != nil {
		t.Fatal(err)
	}
	f.drainOne(t)

	f.pipeline.mu.Lock()
	attempts := f.pipeline.paths[path].state.Attempts
	f.pipeline.mu.Unlock()
	if attempts != 1 {
		t.Errorf("attempts = %d, want reset to 1 after growth", attempts)
	}
}

func TestPipelineUnparseableFile(t *testing.T) {
	f := newPipelineFixture(t, time.Now().Add(time.Hour))

	path := filepath.Join(f.watchDir, "....mkv")
	if err := os.WriteFile(path, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}

	f.pipeline.Announce(path)
	f.drainOne(t)
	f.clk.Advance(f.cfg.RetryBaseDelay)
	f.drainOne(t)

	if got := f.bus.byType(domain.ParseFailed); len(got) != 1 {
		t.Fatalf("ParseFailed events = %d, want 1", len(got))
	}
	n, _ := f.store.Count()
	if n != 0 {
		t.Errorf("ledger rows = %d, want 0 for unparseable file", n)
	}
}

func TestPipelineTooSmallFile(t *testing.T) {
	f := newPipelineFixture(t, time.Now().Add(time.Hour))
	f.cfg.MinFileSize = 1 << 20

	path := filepath.Join(f.watchDir, "Show.Name.S01E05.mkv")
	if err := os.WriteFile(path, []byte("tiny"), 0644); err != nil {
		t.Fatal(err)
	}

	f.pipeline.Announce(path)
	f.drainOne(t)
	f.clk.Advance(f.cfg.RetryBaseDelay)
	f.drainOne(t)

	skipped := f.bus.byType(domain.FileSkipped)
	if len(skipped) != 1 || skipped[0].GetStringOr("reason", "") != "too_small" {
		t.Fatalf("want one FileSkipped(too_small), got %+v", skipped)
	}
}

// A dead fingerprint ledger must halt the pool rather than drop files one by
// one with no record of them.
func TestPipelineHaltsWhenLedgerUnavailable(t *testing.T) {
	f := newPipelineFixture(t, time.Now().Add(time.Hour))

	path := filepath.Join(f.watchDir, "Show.Name.S01E05.mkv")
	if err := os.WriteFile(path, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}

	f.pipeline.Announce(path)
	f.drainOne(t)
	f.clk.Advance(f.cfg.RetryBaseDelay)

	// Kill the ledger between the two observations.
	if err := f.db.Close(); err != nil {
		t.Fatal(err)
	}
	f.drainOne(t)

	select {
	case err := <-f.pipeline.Fatal():
		if err == nil {
			t.Fatal("fatal error is nil")
		}
	default:
		t.Fatal("expected a fatal error after the ledger failure")
	}
	if got := f.bus.byType(domain.FileLinked); len(got) != 0 {
		t.Errorf("FileLinked events = %d, want 0", len(got))
	}

	// The pool accepts no further work.
	other := filepath.Join(f.watchDir, "Show.Name.S01E06.mkv")
	if err := os.WriteFile(other, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}
	f.pipeline.Announce(other)
	if got := len(f.pipeline.queue); got != 0 {
		t.Errorf("queue length = %d, want 0 after a fatal error", got)
	}
}

func TestIsTempName(t *testing.T) {
	suffixes := []string{".part", ".crdownload", ".!ut", ".!qb", ".aria2", ".partial"}
	tests := []struct {
		name string
		want bool
	}{
		{"Show.S01E01.mkv.part", true},
		{"Show.S01E01.mkv.crdownload", true},
		{"Show.S01E01.mkv.!qb", true},
		{"Show.S01E01.!qb.mkv", true},
		{"Show.S01E01.mkv", false},
		{"Show.Partial.Recall.S01E01.mkv", false},
	}
	for _, tt := range tests {
		if got := isTempName(tt.name, suffixes); got != tt.want {
			t.Errorf("isTempName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
