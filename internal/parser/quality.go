package parser

import (
	"regexp"
	"strings"
)

// Quality is a coarse release quality rank. Higher is better. Resolution
// tokens outrank source tokens, so "1080p WEBRip" ranks as 1080p.
type Quality int

const (
	QualityUnknown Quality = iota
	QualityHDTV
	QualityWEBRip
	Quality720p
	Quality1080p
	Quality2160p
)

func (q Quality) String() string {
	switch q {
	case Quality2160p:
		return "2160p"
	case Quality1080p:
		return "1080p"
	case Quality720p:
		return "720p"
	case QualityWEBRip:
		return "WEBRip"
	case QualityHDTV:
		return "HDTV"
	default:
		return "unknown"
	}
}

// Token returns the string embedded in destination filenames, or "" when the
// quality is unknown and nothing should be embedded.
func (q Quality) Token() string {
	if q == QualityUnknown {
		return ""
	}
	return q.String()
}

var qualityTokens = []struct {
	rx *regexp.Regexp
	q  Quality
}{
	{regexp.MustCompile(`(?i)\b(2160p|4k|uhd)\b`), Quality2160p},
	{regexp.MustCompile(`(?i)\b1080p\b`), Quality1080p},
	{regexp.MustCompile(`(?i)\b720p\b`), Quality720p},
	{regexp.MustCompile(`(?i)\b(webrip|web[ ._\-]?dl|web)\b`), QualityWEBRip},
	{regexp.MustCompile(`(?i)\b(hdtv|pdtv)\b`), QualityHDTV},
}

// ExtractQuality scans a filename for quality tokens and returns the best
// rank found. Independent of classification: it works the same on episode,
// movie, and unparseable names.
func ExtractQuality(filename string) Quality {
	name := strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(filename)
	for _, t := range qualityTokens {
		if t.rx.MatchString(name) {
			return t.q
		}
	}
	return QualityUnknown
}
