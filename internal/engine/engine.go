// Package engine runs the structured extraction pipeline over raw OCR text:
// segmentation, quality scoring, then Z-report or invoice extraction, catalog
// matching and stock deduction proposals.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zombor/cuisine-ocr/internal/catalog"
	"github.com/zombor/cuisine-ocr/internal/deduction"
	"github.com/zombor/cuisine-ocr/internal/extract"
)

var (
	// ErrNoUsableSegments is returned when every segment of a document was
	// rejected. It is the only fatal condition for a document.
	ErrNoUsableSegments = errors.New("no segment passed quality scoring")
	// ErrUnknownDocumentType is returned for unsupported document families
	ErrUnknownDocumentType = errors.New("unknown document type")
)

// DocumentType is the family of a raw document
type DocumentType string

const (
	DocumentZReport   DocumentType = "z_report"
	DocumentInvoice   DocumentType = "facture_fournisseur"
	DocumentPriceList DocumentType = "mercuriale"
)

// Valid reports whether t is a supported document family
func (t DocumentType) Valid() bool {
	switch t {
	case DocumentZReport, DocumentInvoice, DocumentPriceList:
		return true
	}
	return false
}

// RawDocument is the OCR output of one upload
type RawDocument struct {
	ID           string       `json:"id"`
	DocumentType DocumentType `json:"document_type"`
	RawText      string       `json:"raw_text"`
	PageCount    int          `json:"page_count"`
}

// RejectedSegment reports a segment dropped before extraction
type RejectedSegment struct {
	Index        int          `json:"index"`
	Reason       extract.Code `json:"reason"`
	Issues       []string     `json:"issues"`
	QualityScore float64      `json:"quality_score"`
}

// InvoiceResult is the extraction of one kept invoice segment
type InvoiceResult struct {
	SegmentIndex int                       `json:"segment_index"`
	Invoice      extract.ParsedInvoiceData `json:"invoice"`
}

// Result is the structured output of one document. It holds no clock or
// random values, so identical input gives identical output.
type Result struct {
	DocumentID            string                `json:"document_id"`
	DocumentType          DocumentType          `json:"document_type"`
	MultiInvoice          bool                  `json:"multi_invoice"`
	TotalDetected         int                   `json:"total_detected"`
	SuccessfullyProcessed int                   `json:"successfully_processed"`
	RejectedCount         int                   `json:"rejected_count"`
	RejectedInvoices      []RejectedSegment     `json:"rejected_invoices"`
	Segments              []extract.Segment     `json:"segments"`
	ZReport               *extract.ZReportData  `json:"z_report,omitempty"`
	Matches               []extract.MatchResult `json:"matches,omitempty"`
	Deductions            *deduction.Result     `json:"deductions,omitempty"`
	Invoices              []InvoiceResult       `json:"invoices,omitempty"`
	Warnings              []extract.Warning     `json:"warnings"`
}

// Engine wires the extraction components for one set of rules
type Engine struct {
	rules      extract.Rules
	logger     *slog.Logger
	patterns   *extract.PatternEngine
	matcher    *catalog.Matcher
	segmenter  *extract.Segmenter
	scorer     *extract.QualityScorer
	zreports   *extract.ZReportParser
	invoices   *extract.InvoiceExtractor
	deductions *deduction.Calculator
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithResolver replaces the default name resolution chain
func WithResolver(resolver catalog.NameResolver) Option {
	return func(e *Engine) {
		e.matcher = catalog.NewMatcher(resolver)
	}
}

// WithPatternEngine replaces the default price notations
func WithPatternEngine(patterns *extract.PatternEngine) Option {
	return func(e *Engine) {
		if patterns != nil {
			e.patterns = patterns
		}
	}
}

// New validates rules and builds an Engine
func New(rules extract.Rules, opts ...Option) (*Engine, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		rules:      rules,
		logger:     slog.Default(),
		patterns:   extract.NewPatternEngine(),
		matcher:    catalog.NewMatcher(nil),
		deductions: deduction.NewCalculator(),
	}
	for _, opt := range opts {
		opt(e)
	}

	lib, err := extract.NewSignatureLibrary(rules)
	if err != nil {
		return nil, fmt.Errorf("building signature library: %w", err)
	}
	zones, err := extract.NewZoneDetector(rules)
	if err != nil {
		return nil, fmt.Errorf("building zone detector: %w", err)
	}
	e.segmenter = extract.NewSegmenter(lib, rules)
	e.scorer = extract.NewQualityScorer(rules)
	e.zreports = extract.NewZReportParser(zones, extract.NewItemExtractor(rules, e.patterns))
	e.invoices = extract.NewInvoiceExtractor(rules, lib, e.patterns, e.matcher)
	return e, nil
}

// Process runs the pipeline over one document against a read-only snapshot.
// When every segment is rejected the returned Result still carries the
// rejection report and the error wraps ErrNoUsableSegments.
func (e *Engine) Process(ctx context.Context, doc RawDocument, snap *catalog.Snapshot) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var segments []extract.Segment
	switch doc.DocumentType {
	case DocumentZReport:
		segments = extract.SingleSegment(doc.RawText)
	case DocumentInvoice, DocumentPriceList:
		segments = e.segmenter.Segment(doc.RawText)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDocumentType, doc.DocumentType)
	}

	res := &Result{
		DocumentID:       doc.ID,
		DocumentType:     doc.DocumentType,
		MultiInvoice:     len(segments) > 1,
		TotalDetected:    len(segments),
		RejectedInvoices: []RejectedSegment{},
		Warnings:         []extract.Warning{},
	}

	var kept []extract.Segment
	for i := range segments {
		seg := &segments[i]
		seg.QualityScore, seg.Issues = e.scorer.Score(seg.Text)
		if seg.Issues == nil {
			seg.Issues = []string{}
		}
		seg.Rejected = e.scorer.Rejects(seg.QualityScore)
		if !seg.Rejected {
			e.logger.Debug("segment kept", "document_id", doc.ID, "segment_index", seg.Index, "quality_score", seg.QualityScore)
			kept = append(kept, *seg)
			continue
		}

		reason := extract.CodeQualityRejected
		for _, issue := range seg.Issues {
			if issue == extract.IssueNoStructuralAnchor {
				reason = extract.CodeNoStructuralAnchor
			}
		}
		res.RejectedInvoices = append(res.RejectedInvoices, RejectedSegment{
			Index:        seg.Index,
			Reason:       reason,
			Issues:       seg.Issues,
			QualityScore: seg.QualityScore,
		})
		res.Warnings = append(res.Warnings, extract.Warning{
			Code:    reason,
			Message: fmt.Sprintf("segment %d/%d scored %.3f", seg.Index, seg.Total, seg.QualityScore),
			Segment: seg.Index,
		})
		e.logger.Info("segment rejected",
			"document_id", doc.ID,
			"segment_index", seg.Index,
			"quality_score", seg.QualityScore,
			"issues", seg.Issues,
		)
	}
	res.Segments = segments
	res.RejectedCount = len(res.RejectedInvoices)
	res.SuccessfullyProcessed = res.TotalDetected - res.RejectedCount

	if len(kept) == 0 {
		e.logger.Warn("document has no usable segment", "document_id", doc.ID, "total_detected", res.TotalDetected)
		return res, fmt.Errorf("document %s: %w", doc.ID, ErrNoUsableSegments)
	}

	for _, seg := range kept {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if doc.DocumentType == DocumentZReport {
			e.processZReport(ctx, res, seg, snap)
			continue
		}
		inv := e.invoices.Extract(seg.Text, snap)
		res.Invoices = append(res.Invoices, InvoiceResult{SegmentIndex: seg.Index, Invoice: inv})
		for _, w := range inv.Warnings {
			w.Segment = seg.Index
			res.Warnings = append(res.Warnings, w)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) processZReport(ctx context.Context, res *Result, seg extract.Segment, snap *catalog.Snapshot) {
	data := e.zreports.Parse(seg.Text)
	res.ZReport = &data
	res.Warnings = append(res.Warnings, data.Warnings...)
	if ctx.Err() != nil {
		return
	}

	res.Matches = extract.MatchItems(data.RawItems, e.matcher, snap)
	ded := e.deductions.Compute(res.Matches, snap)
	res.Deductions = &ded
	res.Warnings = append(res.Warnings, ded.Warnings...)
}
