package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mescon/Linkarr/internal/config"
	"github.com/mescon/Linkarr/internal/parser"
)

func newTestJanitor(t *testing.T) (*Janitor, *config.Config, *memBus) {
	t.Helper()
	cfg := &config.Config{
		MediaRoot:       t.TempDir(),
		TVFolder:        "TV",
		MovieFolder:     "Movies",
		WatchFolder:     t.TempDir(),
		VideoExtensions: []string{".mkv", ".mp4"},
	}
	bus := &memBus{}
	return NewJanitor(cfg, bus, parser.New(nil)), cfg, bus
}

func mkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatal(err)
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	mkdirAll(t, filepath.Dir(path))
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestJanitorWrapsOrphanMovies(t *testing.T) {
	j, cfg, _ := newTestJanitor(t)
	touch(t, filepath.Join(cfg.MovieRoot(), "Movie.Name.2023.1080p.mkv"))
	touch(t, filepath.Join(cfg.MovieRoot(), "notes.txt")) // not a video, left alone

	stats := j.Run()
	if stats.MoviesWrapped != 1 {
		t.Fatalf("wrapped = %d, want 1", stats.MoviesWrapped)
	}

	wrapped := filepath.Join(cfg.MovieRoot(), "Movie Name (2023)", "Movie.Name.2023.1080p.mkv")
	if _, err := os.Stat(wrapped); err != nil {
		t.Errorf("wrapped file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.MovieRoot(), "notes.txt")); err != nil {
		t.Errorf("non-video file should stay put: %v", err)
	}
}

func TestJanitorRemovesEmptyDirChains(t *testing.T) {
	j, cfg, _ := newTestJanitor(t)
	mkdirAll(t, filepath.Join(cfg.TVRoot(), "Old Show", "Season 01"))
	touch(t, filepath.Join(cfg.TVRoot(), "Kept Show", "Season 01", "Kept.Show.S01E01.mkv"))
	mkdirAll(t, filepath.Join(cfg.WatchFolder, "finished-torrent"))

	stats := j.Run()
	if stats.EmptyDirsRemoved != 3 {
		t.Fatalf("removed = %d, want 3 (show dir, its season dir, watch leftover)", stats.EmptyDirsRemoved)
	}
	if _, err := os.Stat(filepath.Join(cfg.TVRoot(), "Old Show")); !os.IsNotExist(err) {
		t.Error("empty show dir should be gone")
	}
	if _, err := os.Stat(filepath.Join(cfg.TVRoot(), "Kept Show", "Season 01")); err != nil {
		t.Errorf("non-empty tree must survive: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.WatchFolder, "finished-torrent")); !os.IsNotExist(err) {
		t.Error("empty watch-folder leftover should be gone")
	}
	if _, err := os.Stat(cfg.WatchFolder); err != nil {
		t.Errorf("watch folder root must survive: %v", err)
	}
}

func TestJanitorNormalizesFolderCase(t *testing.T) {
	j, cfg, _ := newTestJanitor(t)
	touch(t, filepath.Join(cfg.TVRoot(), "some show", "Season 01", "Some.Show.S01E01.mkv"))

	stats := j.Run()
	if stats.FoldersRenamed != 1 {
		t.Fatalf("renamed = %d, want 1", stats.FoldersRenamed)
	}
	if _, err := os.Stat(filepath.Join(cfg.TVRoot(), "Some Show", "Season 01", "Some.Show.S01E01.mkv")); err != nil {
		t.Errorf("renamed tree missing: %v", err)
	}
}

func TestJanitorDryRun(t *testing.T) {
	j, cfg, _ := newTestJanitor(t)
	cfg.DryRun = true
	orphan := filepath.Join(cfg.MovieRoot(), "Movie.Name.2023.mkv")
	touch(t, orphan)

	stats := j.Run()
	if stats.MoviesWrapped != 1 {
		t.Fatalf("dry run should still count, got %d", stats.MoviesWrapped)
	}
	if _, err := os.Stat(orphan); err != nil {
		t.Error("dry run must not move files")
	}
}

func TestTitleCase(t *testing.T) {
	tests := []struct{ in, want string }{
		{"some show", "Some Show"},
		{"Some Show", "Some Show"},
		{"show with NASA acronym", "Show With NASA Acronym"},
		{"the IT crowd", "The IT Crowd"},
	}
	for _, tt := range tests {
		if got := titleCase(tt.in); got != tt.want {
			t.Errorf("titleCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
