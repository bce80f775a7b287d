package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zombor/cuisine-ocr/internal/catalog"
	"github.com/zombor/cuisine-ocr/internal/extract"
)

// ErrTimeout is returned when a document exceeds its processing time
var ErrTimeout = errors.New("document processing timed out")

// ProcessWithTimeout runs Process with a deadline. A document that runs out of
// time is reported as one rejected segment and nothing of its partial work is
// returned; the error wraps both ErrTimeout and ErrNoUsableSegments.
func (e *Engine) ProcessWithTimeout(ctx context.Context, doc RawDocument, snap *catalog.Snapshot, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		return e.Process(ctx, doc, snap)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := e.Process(ctx, doc, snap)
		done <- outcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && errors.Is(o.err, context.DeadlineExceeded) {
			return e.timedOut(doc, timeout)
		}
		return o.res, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return e.timedOut(doc, timeout)
		}
		return nil, ctx.Err()
	}
}

func (e *Engine) timedOut(doc RawDocument, timeout time.Duration) (*Result, error) {
	e.logger.Warn("document timed out", "document_id", doc.ID, "timeout", timeout)
	issues := []string{string(extract.CodeProcessingTimeout)}
	return &Result{
		DocumentID:    doc.ID,
		DocumentType:  doc.DocumentType,
		TotalDetected: 1,
		RejectedCount: 1,
		RejectedInvoices: []RejectedSegment{{
			Index:  1,
			Reason: extract.CodeProcessingTimeout,
			Issues: issues,
		}},
		Segments: []extract.Segment{{Index: 1, Total: 1, StartLine: 1, Issues: issues, Rejected: true}},
		Warnings: []extract.Warning{{
			Code:    extract.CodeProcessingTimeout,
			Message: fmt.Sprintf("processing exceeded %s", timeout),
			Segment: 1,
		}},
	}, fmt.Errorf("document %s: %w: %w", doc.ID, ErrTimeout, ErrNoUsableSegments)
}

// BatchItem is the outcome of one document of a batch
type BatchItem struct {
	DocumentID string  `json:"document_id"`
	Result     *Result `json:"result,omitempty"`
	Error      string  `json:"error,omitempty"`
	Err        error   `json:"-"`
}

type batchConfig struct {
	workers int
	timeout time.Duration
}

// BatchOption configures Batch
type BatchOption func(*batchConfig)

// WithWorkers sets how many documents are processed at once
func WithWorkers(n int) BatchOption {
	return func(c *batchConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithTimeout sets the per-document processing timeout
func WithTimeout(d time.Duration) BatchOption {
	return func(c *batchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Batch processes independent documents concurrently against one snapshot.
// Items are returned in input order; a failing document never stops the
// others.
func (e *Engine) Batch(ctx context.Context, docs []RawDocument, snap *catalog.Snapshot, opts ...BatchOption) []BatchItem {
	cfg := batchConfig{workers: 4, timeout: 30 * time.Second}
	for _, o := range opts {
		o(&cfg)
	}

	items := make([]BatchItem, len(docs))
	var g errgroup.Group
	g.SetLimit(cfg.workers)
	for i, doc := range docs {
		g.Go(func() error {
			start := time.Now()
			res, err := e.ProcessWithTimeout(ctx, doc, snap, cfg.timeout)
			items[i] = BatchItem{DocumentID: doc.ID, Result: res, Err: err}
			if err != nil {
				items[i].Error = err.Error()
				e.logger.Warn("document failed", "document_id", doc.ID, "error", err)
				return nil
			}
			e.logger.Info("document processed",
				"document_id", doc.ID,
				"total_detected", res.TotalDetected,
				"rejected_count", res.RejectedCount,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil
		})
	}
	_ = g.Wait()
	return items
}
