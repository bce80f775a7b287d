package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zombor/cuisine-ocr/internal/catalog"
)

// Segment is the text of one detected document inside a raw upload
type Segment struct {
	Index        int      `json:"index"`
	Total        int      `json:"total"`
	StartLine    int      `json:"start_line"`
	Signature    string   `json:"signature,omitempty"`
	Text         string   `json:"-"`
	QualityScore float64  `json:"quality_score"`
	Issues       []string `json:"issues"`
	Rejected     bool     `json:"rejected"`
}

// SignatureKind distinguishes supplier name blocks from invoice markers
type SignatureKind string

const (
	SignatureSupplier SignatureKind = "supplier"
	SignatureMarker   SignatureKind = "marker"
)

// SignatureHit is a line that matched a signature
type SignatureHit struct {
	Line  int
	Kind  SignatureKind
	Label string
}

type signature struct {
	kind   SignatureKind
	label  string
	re     *regexp.Regexp
	folded bool
}

// SignatureLibrary holds the known supplier header and invoice marker
// signatures. It is shared by the Segmenter and the InvoiceExtractor.
type SignatureLibrary struct {
	sigs []signature
}

// NewSignatureLibrary compiles the supplier names and invoice markers of rules
func NewSignatureLibrary(rules Rules) (*SignatureLibrary, error) {
	lib := &SignatureLibrary{}
	for _, name := range rules.Suppliers {
		words := strings.Fields(catalog.Fold(name))
		if len(words) == 0 {
			continue
		}
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		re, err := regexp.Compile(`^\s*` + strings.Join(words, `\s+`) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("compiling supplier signature %q: %w", name, err)
		}
		lib.sigs = append(lib.sigs, signature{kind: SignatureSupplier, label: name, re: re, folded: true})
	}
	for _, expr := range rules.InvoiceMarkers {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compiling invoice marker %q: %w", expr, err)
		}
		lib.sigs = append(lib.sigs, signature{kind: SignatureMarker, label: expr, re: re})
	}
	return lib, nil
}

// Scan returns the signature hits of lines in line order. A line yields at
// most one hit; supplier signatures are tried first.
func (l *SignatureLibrary) Scan(lines []string) []SignatureHit {
	var hits []SignatureHit
	for i, line := range lines {
		if hit, ok := l.matchLine(line); ok {
			hit.Line = i + 1
			hits = append(hits, hit)
		}
	}
	return hits
}

// Supplier returns the first known supplier named in lines
func (l *SignatureLibrary) Supplier(lines []string) (string, bool) {
	for _, hit := range l.Scan(lines) {
		if hit.Kind == SignatureSupplier {
			return hit.Label, true
		}
	}
	return "", false
}

func (l *SignatureLibrary) matchLine(line string) (SignatureHit, bool) {
	folded := catalog.Fold(line)
	for _, s := range l.sigs {
		subject := line
		if s.folded {
			subject = folded
		}
		if s.re.MatchString(subject) {
			return SignatureHit{Kind: s.kind, Label: s.label}, true
		}
	}
	return SignatureHit{}, false
}

// Segmenter splits a raw upload into one segment per detected invoice
type Segmenter struct {
	lib    *SignatureLibrary
	window int
}

// NewSegmenter creates a Segmenter over a signature library
func NewSegmenter(lib *SignatureLibrary, rules Rules) *Segmenter {
	return &Segmenter{lib: lib, window: rules.SignatureWindow}
}

// Boundaries returns the 1-based first lines of the detected invoices. Hits
// within the signature window of the current boundary belong to the same
// invoice.
func (s *Segmenter) Boundaries(lines []string) ([]int, []string) {
	var (
		starts []int
		labels []string
	)
	for _, hit := range s.lib.Scan(lines) {
		if len(starts) > 0 && hit.Line-starts[len(starts)-1] <= s.window {
			continue
		}
		starts = append(starts, hit.Line)
		labels = append(labels, hit.Label)
	}
	return starts, labels
}

// Segment splits raw at every invoice boundary when at least two are found.
// Otherwise the whole text is one segment. Text before the first boundary
// stays with the first segment, so concatenating the segment texts always
// gives back raw.
func (s *Segmenter) Segment(raw string) []Segment {
	pieces := strings.SplitAfter(raw, "\n")
	lines := make([]string, len(pieces))
	for i, p := range pieces {
		lines[i] = strings.TrimRight(p, "\r\n")
	}

	starts, labels := s.Boundaries(lines)
	if len(starts) < 2 {
		seg := Segment{Index: 1, Total: 1, StartLine: 1, Text: raw}
		if len(labels) == 1 {
			seg.Signature = labels[0]
		}
		return []Segment{seg}
	}

	starts[0] = 1
	segments := make([]Segment, len(starts))
	for i, start := range starts {
		end := len(pieces)
		if i+1 < len(starts) {
			end = starts[i+1] - 1
		}
		segments[i] = Segment{
			Index:     i + 1,
			Total:     len(starts),
			StartLine: start,
			Signature: labels[i],
			Text:      strings.Join(pieces[start-1:end], ""),
		}
	}
	return segments
}

// SingleSegment wraps raw as the only segment of a document
func SingleSegment(raw string) []Segment {
	return []Segment{{Index: 1, Total: 1, StartLine: 1, Text: raw}}
}
