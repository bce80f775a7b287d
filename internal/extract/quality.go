package extract

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zombor/cuisine-ocr/internal/catalog"
)

const legiblePunctuation = ".,:;€%()/-'&+*#°=\"!?[]_"

var reTotalAnchor = regexp.MustCompile(`\b(total|montant|net a payer)\b`)

// QualityScorer rates how legible and structurally complete a segment is
type QualityScorer struct {
	threshold float64
	minChars  int
	noise     float64
	header    *regexp.Regexp
}

// NewQualityScorer creates a QualityScorer from the quality rules
func NewQualityScorer(rules Rules) *QualityScorer {
	q := &QualityScorer{
		threshold: rules.QualityThreshold,
		minChars:  rules.MinSegmentChars,
		noise:     rules.NoiseThreshold,
	}
	var alts []string
	for _, kw := range rules.HeaderKeywords {
		words := strings.Fields(catalog.Fold(kw))
		if len(words) == 0 {
			continue
		}
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		alts = append(alts, strings.Join(words, `\s+`))
	}
	if len(alts) > 0 {
		q.header = regexp.MustCompile(`\b(` + strings.Join(alts, "|") + `)\b`)
	}
	return q
}

// Score returns a score in [0,1] and the issues found. The score weighs
// legibility 0.3, length 0.2 and structural anchors 0.5, so a segment without
// any anchor never reaches 0.6.
func (q *QualityScorer) Score(text string) (float64, []string) {
	var issues []string

	chars := utf8.RuneCountInString(strings.TrimSpace(text))
	length := math.Min(1, float64(chars)/float64(q.minChars))
	if chars < q.minChars {
		issues = append(issues, IssueTooShort)
	}

	ratio := legibleRatio(text)
	noise := clamp01((ratio - 0.5) / 0.5)
	if ratio < q.noise {
		issues = append(issues, IssueHighNoiseRatio)
	}

	anchors := q.anchors(text)
	if anchors == 0 {
		issues = append(issues, IssueNoStructuralAnchor)
	}

	score := 0.3*noise + 0.2*length + 0.5*float64(anchors)/3
	return math.Round(clamp01(score)*1000) / 1000, issues
}

// Rejects reports whether a score falls below the rejection threshold
func (q *QualityScorer) Rejects(score float64) bool {
	return score < q.threshold
}

// anchors counts the kinds of structural anchor present: date, total label
// and header keyword.
func (q *QualityScorer) anchors(text string) int {
	n := 0
	if findDate(text) != "" {
		n++
	}
	folded := catalog.Fold(text)
	if reTotalAnchor.MatchString(folded) {
		n++
	}
	if q.header != nil && q.header.MatchString(folded) {
		n++
	}
	return n
}

// legibleRatio is the share of non-space runes that are letters, digits or
// common receipt punctuation.
func legibleRatio(text string) float64 {
	total, legible := 0, 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if isGarbageRune(r) {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(legiblePunctuation, r) {
			legible++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(legible) / float64(total)
}

func isGarbageRune(r rune) bool {
	return r == utf8.RuneError || (r >= 0xE000 && r <= 0xF8FF) || unicode.IsControl(r)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
