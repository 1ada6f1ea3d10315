// Package parser classifies media filenames as TV episodes or movies and
// extracts a quality rank, without touching the filesystem. Parsing is a
// two-stage affair: a small ordered set of strict patterns covers the
// dominant scene naming conventions, and a permissive token-based recognizer
// handles the stragglers. Results are deterministic for a given filename.
package parser

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MediaType discriminates the parse result variants.
type MediaType string

const (
	TypeEpisode MediaType = "episode"
	TypeMovie   MediaType = "movie"
	TypeUnknown MediaType = "unknown"
)

// Result is the outcome of parsing one filename. Exactly one classification
// applies: episodes carry Season/Episodes (or AirDate for date-based shows),
// movies carry Year, and TypeUnknown carries only the original Filename.
type Result struct {
	Type     MediaType
	Title    string
	Season   int
	Episodes []int
	AirDate  string // YYYY-MM-DD for date-based episodes
	Year     int
	Quality  Quality
	Filename string // original filename, kept for logging
}

// Episode reports the first episode number, or 0 for date-based episodes.
func (r Result) Episode() int {
	if len(r.Episodes) > 0 {
		return r.Episodes[0]
	}
	return 0
}

// SameArtifact reports whether two results identify the same logical library
// entry (ignoring quality), used when deciding upgrades.
func (r Result) SameArtifact(other Result) bool {
	if r.Type != other.Type {
		return false
	}
	switch r.Type {
	case TypeEpisode:
		return strings.EqualFold(r.Title, other.Title) &&
			r.Season == other.Season &&
			r.Episode() == other.Episode() &&
			r.AirDate == other.AirDate
	case TypeMovie:
		return strings.EqualFold(r.Title, other.Title) && r.Year == other.Year
	default:
		return false
	}
}

func (r Result) String() string {
	switch r.Type {
	case TypeEpisode:
		if r.AirDate != "" {
			return fmt.Sprintf("episode %q %s [%s]", r.Title, r.AirDate, r.Quality)
		}
		return fmt.Sprintf("episode %q S%02dE%02d [%s]", r.Title, r.Season, r.Episode(), r.Quality)
	case TypeMovie:
		if r.Year > 0 {
			return fmt.Sprintf("movie %q (%d) [%s]", r.Title, r.Year, r.Quality)
		}
		return fmt.Sprintf("movie %q [%s]", r.Title, r.Quality)
	default:
		return fmt.Sprintf("unparsed %q", r.Filename)
	}
}

// DefaultSuspiciousEpisode is the bare-number episode value above which a
// loose season+episode match is treated as a guess rather than evidence.
const DefaultSuspiciousEpisode = 50

// Parser holds the knobs that influence classification. The zero value is
// usable; New applies the defaults.
type Parser struct {
	// DailyShowTitles overrides a fallback movie classification to an
	// episode for known date-based shows (lowercase titles).
	DailyShowTitles map[string]bool

	// SuspiciousEpisode is the threshold above which a bare ### match is
	// not trusted as season+episode.
	SuspiciousEpisode int
}

// New creates a Parser with default thresholds and the given daily-show titles.
func New(dailyShows []string) *Parser {
	titles := make(map[string]bool, len(dailyShows))
	for _, t := range dailyShows {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			titles[t] = true
		}
	}
	return &Parser{
		DailyShowTitles:   titles,
		SuspiciousEpisode: DefaultSuspiciousEpisode,
	}
}

// Fast-path patterns, tried in priority order. Strong episode markers come
// first; the bare season+episode triple is last because it is the weakest
// evidence and loses to a year token.
var (
	// S01E05, S01 E05, S01E01E02, S01E01-E03, S01E01-03
	sxxExxRx = regexp.MustCompile(`(?i)^(?P<title>.+?)[ ._\-]+s(?P<season>\d{1,2})[ ._\-]*e(?P<episode>\d{1,3})(?P<extra>(?:[ ._\-]*(?:-|e)[ ._\-]*\d{1,3})*)\b`)

	// 1x05
	nXnnRx = regexp.MustCompile(`(?i)^(?P<title>.+?)[ ._\-]+(?P<season>\d{1,2})x(?P<episode>\d{1,3})\b`)

	// Season 1 Episode 5 (verbose)
	verboseRx = regexp.MustCompile(`(?i)^(?P<title>.+?)[ ._\-]+season[ ._\-]*(?P<season>\d{1,2})[ ._\-]*episode[ ._\-]*(?P<episode>\d{1,3})\b`)

	// bare 105 → season 1 episode 05 (weak)
	bareTripleRx = regexp.MustCompile(`(?i)^(?P<title>.+?)[ ._\-]+\b(?P<season>\d)(?P<episode>\d{2})\b`)

	// realistic year token
	yearRx = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)

	// 2024.01.15 or 2024-01-15 (date-based daily shows)
	airDateRx = regexp.MustCompile(`\b((?:19|20)\d{2})[.\- ](\d{2})[.\- ](\d{2})\b`)

	// Episode 5 / Ep 5 / E05 with no season (fallback, assume season 1)
	looseEpisodeRx = regexp.MustCompile(`(?i)(?:^|[ ._\-])ep?(?:isode)?[ ._\-]*(?P<episode>\d{1,3})\b`)

	extraEpisodeNumRx = regexp.MustCompile(`\d{1,3}`)

	// scene suffix junk that bleeds into captured titles
	sceneJunkRx = regexp.MustCompile(`(?i)\b(2160p|1080p|720p|480p|4k|uhd|hdr10?|hdtv|pdtv|h\.?26[45]|x26[45]|hevc|av1|web[ ._\-]?dl|webrip|web|bluray|blu[ ._\-]ray|bdrip|brrip|remux|proper|repack|internal|limited|extended|unrated|multi|ddp?[257]\.[01]|aac|ac3|eac3|dts|atmos|10bit|8bit|amzn|nf|hulu|dsnp|pmtp)\b.*$`)

	unsafeCharsRx = regexp.MustCompile(`[<>:"/\\|?*]`)
	multiSpaceRx  = regexp.MustCompile(`\s+`)
)

// Parse classifies a filename. It never returns an error; a filename that
// defeats both stages yields a TypeUnknown result carrying the original name.
func (p *Parser) Parse(filename string) Result {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	name := normalizeSeparators(base)

	result := Result{Type: TypeUnknown, Filename: filepath.Base(filename), Quality: ExtractQuality(filename)}

	// Stage 1: strict patterns in priority order.
	if r, ok := p.matchStrongEpisode(name); ok {
		r.Quality = result.Quality
		r.Filename = result.Filename
		return r
	}

	// A full air date outranks a lone year token, otherwise date-based shows
	// would route to the movie tree.
	if r, ok := p.matchAirDate(name); ok {
		r.Quality = result.Quality
		r.Filename = result.Filename
		return r
	}

	// Year evidence routes to movie before the weak bare-### guess runs:
	// "Deadpool 2 2018" is a movie, not season 2 episode 18.
	if r, ok := p.matchMovieYear(name); ok {
		r.Quality = result.Quality
		r.Filename = result.Filename
		return r
	}

	if r, ok := p.matchBareTriple(name); ok {
		r.Quality = result.Quality
		r.Filename = result.Filename
		return r
	}

	// Stage 2: permissive fallback.
	if r, ok := p.fallbackParse(name); ok {
		r.Quality = result.Quality
		r.Filename = result.Filename
		return r
	}

	return result
}

func (p *Parser) matchStrongEpisode(name string) (Result, bool) {
	for _, rx := range []*regexp.Regexp{sxxExxRx, nXnnRx, verboseRx} {
		m := rx.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		groups := groupMap(rx, m)
		season, err1 := strconv.Atoi(groups["season"])
		episode, err2 := strconv.Atoi(groups["episode"])
		if err1 != nil || err2 != nil {
			continue
		}

		episodes := []int{episode}
		if extra := groups["extra"]; extra != "" {
			episodes = expandEpisodes(episode, extraEpisodeNumRx.FindAllString(extra, -1))
		}

		title := CleanTitle(groups["title"])
		if title == "" {
			continue
		}
		return Result{
			Type:     TypeEpisode,
			Title:    title,
			Season:   season,
			Episodes: episodes,
		}, true
	}
	return Result{}, false
}

func (p *Parser) matchMovieYear(name string) (Result, bool) {
	loc := yearRx.FindStringIndex(name)
	if loc == nil {
		return Result{}, false
	}
	year, _ := strconv.Atoi(name[loc[0]:loc[1]])
	if year < 1900 || year > time.Now().Year()+1 {
		return Result{}, false
	}
	title := CleanTitle(name[:loc[0]])
	if title == "" {
		return Result{}, false
	}
	return Result{Type: TypeMovie, Title: title, Year: year}, true
}

func (p *Parser) matchBareTriple(name string) (Result, bool) {
	m := bareTripleRx.FindStringSubmatch(name)
	if m == nil {
		return Result{}, false
	}
	groups := groupMap(bareTripleRx, m)
	season, _ := strconv.Atoi(groups["season"])
	episode, _ := strconv.Atoi(groups["episode"])

	threshold := p.SuspiciousEpisode
	if threshold <= 0 {
		threshold = DefaultSuspiciousEpisode
	}
	// A large bare episode number is more likely part of a title or a year
	// fragment than a real episode; leave it to the fallback.
	if episode > threshold {
		return Result{}, false
	}

	title := CleanTitle(groups["title"])
	if title == "" {
		return Result{}, false
	}
	return Result{
		Type:     TypeEpisode,
		Title:    title,
		Season:   season,
		Episodes: []int{episode},
	}, true
}

// expandEpisodes builds the full episode list from the first episode and the
// trailing numbers of a multi-episode marker, expanding ranges like E01-03.
func expandEpisodes(first int, extras []string) []int {
	episodes := []int{first}
	last := first
	for _, s := range extras {
		n, err := strconv.Atoi(s)
		if err != nil || n <= last {
			continue
		}
		for e := last + 1; e <= n; e++ {
			episodes = append(episodes, e)
		}
		last = n
	}
	return episodes
}

// normalizeSeparators turns scene separators into spaces and collapses runs.
func normalizeSeparators(name string) string {
	s := strings.NewReplacer(".", " ", "_", " ").Replace(name)
	return strings.TrimSpace(multiSpaceRx.ReplaceAllString(s, " "))
}

// CleanTitle strips scene junk, filesystem-unsafe characters, and stray
// separators from a captured title while preserving Unicode letters.
func CleanTitle(raw string) string {
	s := normalizeSeparators(raw)
	s = sceneJunkRx.ReplaceAllString(s, "")
	s = unsafeCharsRx.ReplaceAllString(s, "")
	s = strings.Trim(multiSpaceRx.ReplaceAllString(s, " "), " .-")
	return s
}

func groupMap(rx *regexp.Regexp, match []string) map[string]string {
	groups := make(map[string]string)
	for i, name := range rx.SubexpNames() {
		if name != "" && i < len(match) {
			groups[name] = match[i]
		}
	}
	return groups
}
