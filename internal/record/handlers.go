package record

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/zombor/cuisine-ocr/internal/catalog"
	"github.com/zombor/cuisine-ocr/internal/engine"
)

const maxBodySize = int64(10 << 20)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes a JSON error body
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// handleListRecords returns all extraction records
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.ListRecords()
	if err != nil {
		slog.Error("Error listing records", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleCreateRecord runs extraction over a posted OCR document
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var doc engine.RawDocument
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&doc); err != nil {
		slog.Error("Error decoding document", "error", err)
		jsonError(w, "Invalid document body", http.StatusBadRequest)
		return
	}
	if doc.RawText == "" {
		jsonError(w, "raw_text is required", http.StatusBadRequest)
		return
	}

	record, err := s.service.ProcessDocument(r.Context(), doc)
	if err != nil {
		slog.Error("Error processing document", "document_id", doc.ID, "error", err)
		code := http.StatusInternalServerError
		if errors.Is(err, engine.ErrUnknownDocumentType) {
			code = http.StatusBadRequest
		}
		jsonError(w, err.Error(), code)
		return
	}

	code := http.StatusCreated
	if record.Status == StatusRejected {
		code = http.StatusUnprocessableEntity
	}
	writeJSON(w, code, record)
}

// handleGetRecord returns a single record
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := s.service.GetRecord(r.PathValue("id"))
	if err != nil {
		corsError(w, "Record not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleGetRecordText returns the archived OCR text of a record
func (s *Server) handleGetRecordText(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.GetRecordText(r.PathValue("id"))
	if err != nil {
		corsError(w, "Text not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(data)
}

// handleConfirmRecord confirms the proposals of a record
func (s *Server) handleConfirmRecord(w http.ResponseWriter, r *http.Request) {
	record, err := s.service.ConfirmRecord(r.PathValue("id"))
	switch {
	case errors.Is(err, ErrNotFound):
		corsError(w, "Record not found", http.StatusNotFound)
		return
	case errors.Is(err, ErrAlreadyConfirmed), errors.Is(err, ErrNotConfirmable):
		jsonError(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		slog.Error("Error confirming record", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleDeleteRecord deletes a record
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteRecord(r.PathValue("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			corsError(w, "Record not found", http.StatusNotFound)
			return
		}
		slog.Error("Error deleting record", "error", err)
		corsError(w, "Error deleting record", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type catalogSummary struct {
	Entries int `json:"entries"`
}

// handleGetCatalog reports the size of the current catalog snapshot
func (s *Server) handleGetCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalogSummary{Entries: s.service.Snapshot().Len()})
}

// handlePutCatalog replaces the current catalog snapshot
func (s *Server) handlePutCatalog(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		jsonError(w, "Error reading body", http.StatusBadRequest)
		return
	}
	snap, err := s.service.UpdateCatalog(data)
	if err != nil {
		if errors.Is(err, catalog.ErrInvalidSnapshot) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Error updating catalog", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, catalogSummary{Entries: snap.Len()})
}
