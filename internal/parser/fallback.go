package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// matchAirDate recognizes date-based naming (The Daily Show 2024.01.15).
// The date doubles as the episode identity; season numbering does not apply.
func (p *Parser) matchAirDate(name string) (Result, bool) {
	m := airDateRx.FindStringSubmatchIndex(name)
	if m == nil {
		return Result{}, false
	}
	year, _ := strconv.Atoi(name[m[2]:m[3]])
	month, _ := strconv.Atoi(name[m[4]:m[5]])
	day, _ := strconv.Atoi(name[m[6]:m[7]])
	if !validDate(month, day) {
		return Result{}, false
	}
	title := CleanTitle(name[:m[0]])
	if title == "" {
		return Result{}, false
	}
	return Result{
		Type:    TypeEpisode,
		Title:   title,
		Season:  1,
		AirDate: fmt.Sprintf("%04d-%02d-%02d", year, month, day),
	}, true
}

// fallbackParse is the permissive second stage. It runs only after every
// strict pattern has failed, so it trades precision for coverage:
// season-less episode markers, then a bare-title movie guess.
func (p *Parser) fallbackParse(name string) (Result, bool) {
	// "Episode 7" / "Ep 7" / "E07" with no season marker. Miniseries and
	// anime releases do this; season 1 is the conventional guess.
	if m := looseEpisodeRx.FindStringSubmatch(name); m != nil {
		groups := groupMap(looseEpisodeRx, m)
		episode, err := strconv.Atoi(groups["episode"])
		if err == nil && episode > 0 {
			loc := looseEpisodeRx.FindStringIndex(name)
			title := CleanTitle(name[:loc[0]])
			if title != "" {
				return Result{
					Type:     TypeEpisode,
					Title:    title,
					Season:   1,
					Episodes: []int{episode},
				}, true
			}
		}
	}

	// Whatever title survives the junk stripper is treated as a movie
	// without a year, matching how a human sorts an unlabeled release.
	title := CleanTitle(name)
	if title == "" {
		return Result{}, false
	}

	// Known daily shows misclassify as movies when the date did not parse;
	// force those back to episodes so they land under the TV tree. Prefix
	// match because the cleaned title keeps trailing guest or segment words.
	lower := strings.ToLower(title)
	for daily := range p.DailyShowTitles {
		if lower == daily || strings.HasPrefix(lower, daily+" ") {
			return Result{Type: TypeEpisode, Title: title[:len(daily)], Season: 1}, true
		}
	}

	return Result{Type: TypeMovie, Title: title}, true
}

func validDate(month, day int) bool {
	return month >= 1 && month <= 12 && day >= 1 && day <= 31
}
