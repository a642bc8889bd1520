package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/checkstand/checkstand/internal/receipt"
)

const maxUploadSize = int64(50 << 20) // high-resolution phone photos

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("error encoding response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleListReceipts returns the full ledger.
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.store.GetAll()
	if err != nil {
		slog.Error("error listing receipts", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

// handleUploadReceipt accepts a multipart capture, stores the original
// image on disk, and queues it for processing. The response is the
// PENDING placeholder; processing completes in the background.
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("error parsing multipart form", "error", err)
		writeJSONError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		writeJSONError(w, http.StatusBadRequest, "File is too large. Maximum size is 50MB.")
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("error reading upload", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Error reading file")
		return
	}

	contentType := header.Header.Get("Content-Type")

	// Keep the original capture for audit; if that fails the image
	// is still processed from memory.
	if s.captures != nil {
		filename := fmt.Sprintf("%d_%s", time.Now().UnixNano(), header.Filename)
		path, err := s.captures.Save(filename, data)
		if err == nil {
			placeholder := s.queue.EnqueueImageFile(path, contentType)
			writeJSON(w, http.StatusAccepted, placeholder)
			return
		}
		slog.Warn("failed to save capture, processing from memory", "filename", header.Filename, "error", err)
	}

	placeholder := s.queue.EnqueueImage(data, contentType)
	writeJSON(w, http.StatusAccepted, placeholder)
}

// handleSubmitText queues raw receipt text, skipping OCR.
func (s *Server) handleSubmitText(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
		writeJSONError(w, http.StatusBadRequest, "A non-empty text field is required")
		return
	}

	placeholder := s.queue.EnqueueText(body.Text)
	writeJSON(w, http.StatusAccepted, placeholder)
}

// handleDeleteReceipt removes one receipt. Deletion is always an
// explicit user action; failed receipts stay visible until deleted.
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteByID(id); err != nil {
		slog.Error("error deleting receipt", "id", id, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteAllReceipts clears the ledger.
func (s *Server) handleDeleteAllReceipts(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAll(); err != nil {
		slog.Error("error deleting receipts", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExportReceipts dumps the ledger as a CSV download.
func (s *Server) handleExportReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.store.GetAll()
	if err != nil {
		slog.Error("error listing receipts for export", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	filename := fmt.Sprintf("receipts_export_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := receipt.WriteCSV(w, receipts); err != nil {
		slog.Error("error writing csv export", "error", err)
	}
}

// handleQueueStatus reports queue depth and the in-flight item.
func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"size":                  s.queue.Size(),
		"processing":            s.queue.Processing(),
		"current_processing_id": s.queue.CurrentID(),
	})
}

// handleModelStatus reports the model lifecycle phase for the UI.
func (s *Server) handleModelStatus(w http.ResponseWriter, r *http.Request) {
	status := s.status.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"phase":     status.Phase,
		"progress":  status.Progress,
		"message":   status.Message,
		"ready":     s.session.IsReady(),
		"available": s.session.IsAvailable(),
	})
}
