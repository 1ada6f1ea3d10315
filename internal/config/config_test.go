package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "3091" {
		t.Errorf("Port = %s, want 3091", cfg.Port)
	}
	if cfg.WatchFolder != "/media/downloads" {
		t.Errorf("WatchFolder = %s", cfg.WatchFolder)
	}
	if cfg.MinFileSize != 50*1024*1024 {
		t.Errorf("MinFileSize = %d, want 50 MiB", cfg.MinFileSize)
	}
	if cfg.GracePeriod != 2*time.Minute {
		t.Errorf("GracePeriod = %v, want 2m", cfg.GracePeriod)
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Workers)
	}
	if cfg.MaxAttempts != 30 {
		t.Errorf("MaxAttempts = %d, want 30", cfg.MaxAttempts)
	}
	if cfg.DryRun {
		t.Error("DryRun should default to false")
	}
	if !cfg.SkipSamples {
		t.Error("SkipSamples should default to true")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("LINKARR_PORT", "8080")
	t.Setenv("LINKARR_WATCH_FOLDER", "/mnt/incoming")
	t.Setenv("LINKARR_DRY_RUN", "true")
	t.Setenv("LINKARR_WORKERS", "7")
	t.Setenv("LINKARR_GRACE_PERIOD", "45s")
	t.Setenv("LINKARR_MIN_FILE_SIZE", "1024")
	t.Setenv("LINKARR_TEMP_SUFFIXES", ".part, .tmp")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("Port = %s", cfg.Port)
	}
	if cfg.WatchFolder != "/mnt/incoming" {
		t.Errorf("WatchFolder = %s", cfg.WatchFolder)
	}
	if !cfg.DryRun {
		t.Error("DryRun should be true")
	}
	if cfg.Workers != 7 {
		t.Errorf("Workers = %d", cfg.Workers)
	}
	if cfg.GracePeriod != 45*time.Second {
		t.Errorf("GracePeriod = %v", cfg.GracePeriod)
	}
	if cfg.MinFileSize != 1024 {
		t.Errorf("MinFileSize = %d", cfg.MinFileSize)
	}
	if len(cfg.TempSuffixes) != 2 || cfg.TempSuffixes[1] != ".tmp" {
		t.Errorf("TempSuffixes = %v", cfg.TempSuffixes)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("LINKARR_WORKERS", "not-a-number")
	t.Setenv("LINKARR_GRACE_PERIOD", "soon")
	t.Setenv("LINKARR_DRY_RUN", "maybe")

	cfg := Load()
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d, want default 3", cfg.Workers)
	}
	if cfg.GracePeriod != 2*time.Minute {
		t.Errorf("GracePeriod = %v, want default 2m", cfg.GracePeriod)
	}
	if cfg.DryRun {
		t.Error("unparseable bool should keep the default")
	}
}

func TestApplyFlags(t *testing.T) {
	Load()

	port := "9999"
	watch := "/other/downloads"
	dryRun := true
	workers := 5
	grace := 10 * time.Minute
	empty := ""

	ApplyFlags(FlagOverrides{
		Port:        &port,
		WatchFolder: &watch,
		DryRun:      &dryRun,
		Workers:     &workers,
		GracePeriod: &grace,
		LogLevel:    &empty, // unset flag, must not clobber
	})

	cfg := Get()
	if cfg.Port != "9999" {
		t.Errorf("Port = %s", cfg.Port)
	}
	if cfg.WatchFolder != "/other/downloads" {
		t.Errorf("WatchFolder = %s", cfg.WatchFolder)
	}
	if !cfg.DryRun {
		t.Error("DryRun flag not applied")
	}
	if cfg.Workers != 5 {
		t.Errorf("Workers = %d", cfg.Workers)
	}
	if cfg.GracePeriod != grace {
		t.Errorf("GracePeriod = %v", cfg.GracePeriod)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, empty flag must keep default", cfg.LogLevel)
	}
}

func TestDataDirFlagRecomputesPaths(t *testing.T) {
	Load()
	dataDir := t.TempDir()
	ApplyFlags(FlagOverrides{DataDir: &dataDir})

	cfg := Get()
	if cfg.DatabasePath != filepath.Join(dataDir, "linkarr.db") {
		t.Errorf("DatabasePath = %s", cfg.DatabasePath)
	}
	if cfg.LogDir != filepath.Join(dataDir, "logs") {
		t.Errorf("LogDir = %s", cfg.LogDir)
	}
}

func TestLibraryRoots(t *testing.T) {
	cfg := &Config{MediaRoot: "/media", TVFolder: "TV", MovieFolder: "Movies"}
	if cfg.TVRoot() != filepath.Join("/media", "TV") {
		t.Errorf("TVRoot = %s", cfg.TVRoot())
	}
	if cfg.MovieRoot() != filepath.Join("/media", "Movies") {
		t.Errorf("MovieRoot = %s", cfg.MovieRoot())
	}
}
