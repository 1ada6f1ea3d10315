package services

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mescon/Linkarr/internal/logger"
	"github.com/mescon/Linkarr/internal/parser"
)

// Outcome classifies the result of a placement attempt.
type Outcome int

const (
	// OutcomeLinked means the file was placed and nothing had to move aside.
	OutcomeLinked Outcome = iota
	// OutcomeUpgraded means a lower-quality copy was replaced.
	OutcomeUpgraded
	// OutcomeSkipped means an equal-or-better copy already occupies the slot.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLinked:
		return "linked"
	case OutcomeUpgraded:
		return "upgraded"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Placement describes what Place did (or would do, in dry-run).
type Placement struct {
	Outcome         Outcome
	DestinationPath string
	// Replaced is the library file removed during an upgrade, empty otherwise.
	Replaced string
	// Copied is true when the hardlink failed with EXDEV and the file was
	// copied instead.
	Copied bool
}

// Placer materializes parse results into the library tree. Hardlink first;
// cross-device sources are copied through a temp file and renamed into place
// so readers never see a partial file.
type Placer struct {
	TVRoot    string
	MovieRoot string
	DryRun    bool
	Parser    *parser.Parser

	// link defaults to os.Link; tests swap it to force the copy fallback.
	link func(oldname, newname string) error
}

// Place puts sourcePath into the library according to its classification.
// The destination slot is the logical artifact (show+season+episode, or
// title+year), not the exact filename: an existing file in the slot is
// compared by quality rank and either blocks the placement or gets upgraded.
func (pl *Placer) Place(sourcePath string, r parser.Result) (Placement, error) {
	if r.Type == parser.TypeUnknown {
		return Placement{}, fmt.Errorf("cannot place unclassified file %q", r.Filename)
	}

	destDir, destName := pl.destination(r, filepath.Ext(sourcePath))
	destPath := filepath.Join(destDir, destName)

	existing, err := pl.findExisting(destDir, r)
	if err != nil {
		return Placement{}, err
	}

	if existing != "" {
		incumbent := parser.ExtractQuality(filepath.Base(existing))
		if r.Quality <= incumbent {
			logger.Debugf("Keeping %s (%s), incoming %s is not better", existing, incumbent, r.Quality)
			return Placement{Outcome: OutcomeSkipped, DestinationPath: existing}, nil
		}
		return pl.upgrade(sourcePath, destPath, existing)
	}

	if pl.DryRun {
		logger.Infof("[dry-run] would link %s -> %s", sourcePath, destPath)
		return Placement{Outcome: OutcomeLinked, DestinationPath: destPath}, nil
	}

	copied, err := pl.materialize(sourcePath, destPath)
	if err != nil {
		return Placement{}, err
	}
	return Placement{Outcome: OutcomeLinked, DestinationPath: destPath, Copied: copied}, nil
}

// upgrade moves the incumbent aside, places the new file, then removes the
// incumbent. If placing fails the incumbent is restored, so the slot is never
// left empty.
func (pl *Placer) upgrade(sourcePath, destPath, existing string) (Placement, error) {
	if pl.DryRun {
		logger.Infof("[dry-run] would upgrade %s with %s", existing, sourcePath)
		return Placement{Outcome: OutcomeUpgraded, DestinationPath: destPath, Replaced: existing}, nil
	}

	aside := existing + ".replaced"
	if err := os.Rename(existing, aside); err != nil {
		return Placement{}, fmt.Errorf("failed to move aside %s: %w", existing, err)
	}

	copied, err := pl.materialize(sourcePath, destPath)
	if err != nil {
		if restoreErr := os.Rename(aside, existing); restoreErr != nil {
			logger.Errorf("Failed to restore %s after aborted upgrade: %v", existing, restoreErr)
		}
		return Placement{}, err
	}

	if err := os.Remove(aside); err != nil {
		logger.Warnf("Upgrade succeeded but could not remove %s: %v", aside, err)
	}
	return Placement{Outcome: OutcomeUpgraded, DestinationPath: destPath, Replaced: existing, Copied: copied}, nil
}

// materialize hardlinks src to dst, falling back to a temp-file copy plus
// atomic rename when the two paths live on different filesystems. Returns
// whether the copy fallback was taken.
func (pl *Placer) materialize(src, dst string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return false, fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}

	link := pl.link
	if link == nil {
		link = os.Link
	}
	err := link(src, dst)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return false, fmt.Errorf("failed to link %s: %w", dst, err)
	}

	logger.Debugf("Cross-device link for %s, copying instead", dst)
	tmp := dst + ".linkarr.tmp"
	if err := copyFile(src, tmp); err != nil {
		os.Remove(tmp)
		return false, fmt.Errorf("failed to copy to %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return false, fmt.Errorf("failed to finalize %s: %w", dst, err)
	}
	return true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// destination computes the library directory and filename for a result.
//
// Episodes:  <TVRoot>/<Show>/Season NN/<Show>.SnnEnn[-Emm].<quality>.<ext>
// Dated:     <TVRoot>/<Show>/Season NN/<Show>.<YYYY-MM-DD>.<quality>.<ext>
// Movies:    <MovieRoot>/<Title (Year)>/<Title>.<Year>.<quality>.<ext>
func (pl *Placer) destination(r parser.Result, ext string) (dir, name string) {
	dotted := strings.ReplaceAll(r.Title, " ", ".")
	var parts []string

	switch r.Type {
	case parser.TypeEpisode:
		dir = filepath.Join(pl.TVRoot, r.Title, fmt.Sprintf("Season %02d", r.Season))
		switch {
		case r.AirDate != "":
			parts = []string{dotted, r.AirDate}
		case len(r.Episodes) > 1:
			last := r.Episodes[len(r.Episodes)-1]
			parts = []string{dotted, fmt.Sprintf("S%02dE%02d-E%02d", r.Season, r.Episode(), last)}
		default:
			parts = []string{dotted, fmt.Sprintf("S%02dE%02d", r.Season, r.Episode())}
		}
	case parser.TypeMovie:
		folder := r.Title
		parts = []string{dotted}
		if r.Year > 0 {
			folder = fmt.Sprintf("%s (%d)", r.Title, r.Year)
			parts = append(parts, fmt.Sprintf("%d", r.Year))
		}
		dir = filepath.Join(pl.MovieRoot, folder)
	}

	if tok := r.Quality.Token(); tok != "" {
		parts = append(parts, tok)
	}
	return dir, strings.Join(parts, ".") + ext
}

// findExisting scans the destination directory for a file occupying the same
// logical slot, regardless of its quality tag or exact naming.
func (pl *Placer) findExisting(destDir string, r parser.Result) (string, error) {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read %s: %w", destDir, err)
	}

	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".replaced") || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		if pl.Parser.Parse(e.Name()).SameArtifact(r) {
			return filepath.Join(destDir, e.Name()), nil
		}
	}
	return "", nil
}
