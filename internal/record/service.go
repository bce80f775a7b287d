package record

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/cuisine-ocr/internal/catalog"
	"github.com/zombor/cuisine-ocr/internal/engine"
)

var (
	// ErrAlreadyConfirmed is returned when confirming a confirmed record
	ErrAlreadyConfirmed = errors.New("record already confirmed")
	// ErrNotConfirmable is returned when confirming a rejected record
	ErrNotConfirmable = errors.New("rejected records cannot be confirmed")
)

// Extractor runs the extraction pipeline over one document
type Extractor interface {
	ProcessWithTimeout(ctx context.Context, doc engine.RawDocument, snap *catalog.Snapshot, timeout time.Duration) (*engine.Result, error)
}

// IDGenerator generates unique IDs for records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles extraction records
type Service struct {
	db          DB
	storage     Storage
	extractor   Extractor
	timeout     time.Duration
	snapshot    atomic.Pointer[catalog.Snapshot]
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, storage Storage, extractor Extractor, snap *catalog.Snapshot, timeout time.Duration) *Service {
	return NewServiceWithDeps(db, storage, extractor, snap, timeout, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, storage Storage, extractor Extractor, snap *catalog.Snapshot, timeout time.Duration, idGen IDGenerator, timeSrc TimeSource) *Service {
	if snap == nil {
		snap = catalog.NewSnapshot(nil, nil, nil)
	}
	s := &Service{
		db:          db,
		storage:     storage,
		extractor:   extractor,
		timeout:     timeout,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
	s.snapshot.Store(snap)
	return s
}

// Snapshot returns the catalog snapshot new documents are matched against
func (s *Service) Snapshot() *catalog.Snapshot {
	return s.snapshot.Load()
}

// UpdateCatalog validates a snapshot document, persists it and makes it
// current. Documents already in flight keep the snapshot they started with.
func (s *Service) UpdateCatalog(data []byte) (*catalog.Snapshot, error) {
	snap, err := catalog.LoadSnapshot(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := s.db.SaveCatalog(data); err != nil {
		return nil, fmt.Errorf("saving catalog: %w", err)
	}
	s.snapshot.Store(snap)
	slog.Info("Catalog updated", "entries", snap.Len())
	return snap, nil
}

// ProcessDocument archives the raw text, runs extraction and saves the
// outcome. A document whose every segment is rejected is still saved, with
// StatusRejected, so its report can be reviewed.
func (s *Service) ProcessDocument(ctx context.Context, doc engine.RawDocument) (*Record, error) {
	if !doc.DocumentType.Valid() {
		return nil, fmt.Errorf("%w: %q", engine.ErrUnknownDocumentType, doc.DocumentType)
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()
	if doc.ID == "" {
		doc.ID = id
	}

	textFile, err := s.storage.SaveText(id, doc.RawText)
	if err != nil {
		return nil, fmt.Errorf("saving text: %w", err)
	}

	result, err := s.extractor.ProcessWithTimeout(ctx, doc, s.snapshot.Load(), s.timeout)
	if err != nil && result == nil {
		slog.Error("Failed to process document",
			"document_id", doc.ID,
			"document_type", doc.DocumentType,
			"error", err,
		)
		if delErr := s.storage.DeleteText(textFile); delErr != nil {
			slog.Error("Failed to clean up text file", "file", textFile, "error", delErr)
		}
		return nil, fmt.Errorf("processing document: %w", err)
	}

	record := &Record{
		ID:           id,
		DocumentID:   doc.ID,
		DocumentType: doc.DocumentType,
		PageCount:    doc.PageCount,
		TextFile:     textFile,
		Status:       StatusExtracted,
		Result:       result,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err != nil {
		record.Status = StatusRejected
		record.Error = err.Error()
		slog.Warn("Document rejected",
			"document_id", doc.ID,
			"rejected_count", result.RejectedCount,
			"error", err,
		)
	}

	if err := s.db.SaveRecord(record); err != nil {
		if delErr := s.storage.DeleteText(textFile); delErr != nil {
			slog.Error("Failed to clean up text file", "file", textFile, "error", delErr)
		}
		return nil, fmt.Errorf("saving record: %w", err)
	}

	return record, nil
}

// GetRecord retrieves a record by ID
func (s *Service) GetRecord(id string) (*Record, error) {
	return s.db.GetRecord(id)
}

// ListRecords returns all records, newest first
func (s *Service) ListRecords() ([]*Record, error) {
	records, err := s.db.ListRecords()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// ConfirmRecord marks the proposals of an extracted record as confirmed
func (s *Service) ConfirmRecord(id string) (*Record, error) {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return nil, err
	}
	switch record.Status {
	case StatusConfirmed:
		return nil, fmt.Errorf("record %s: %w", id, ErrAlreadyConfirmed)
	case StatusRejected:
		return nil, fmt.Errorf("record %s: %w", id, ErrNotConfirmable)
	}

	now := s.timeSource.Now()
	record.Status = StatusConfirmed
	record.ConfirmedAt = &now
	record.UpdatedAt = now
	if err := s.db.SaveRecord(record); err != nil {
		return nil, fmt.Errorf("saving record: %w", err)
	}
	return record, nil
}

// DeleteRecord removes a record and its archived text
func (s *Service) DeleteRecord(id string) error {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return err
	}

	if record.TextFile != "" {
		if err := s.storage.DeleteText(record.TextFile); err != nil {
			slog.Warn("Failed to delete text file", "file", record.TextFile, "error", err)
		}
	}

	return s.db.DeleteRecord(id)
}

// GetRecordText returns the archived raw text of a record
func (s *Service) GetRecordText(id string) ([]byte, error) {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return nil, err
	}
	return s.storage.Text(record.TextFile)
}
