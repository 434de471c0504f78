package pantry

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/pantrypal/pantry-scan/internal/capture"
)

// maxFrameSize bounds uploaded frames and photos. High-resolution
// phone photos run large.
const maxFrameSize = int64(50 << 20) // 50MB

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// writeJSON encodes a JSON response body
func writeJSON(w http.ResponseWriter, code int, body any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError encodes an error payload; validation errors carry the
// offending field so the UI can surface the message inline.
func writeError(w http.ResponseWriter, code int, err error) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, code, map[string]string{
			"error": validationErr.Message,
			"field": validationErr.Field,
		})
		return
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleStartSession opens a capture session. The default behavior
// stops the session on the first decoded symbol; pass
// ?stop_on_match=false to keep scanning.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	stopOnMatch := r.URL.Query().Get("stop_on_match") != "false"
	sessionID := s.service.StartScan(stopOnMatch)

	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": sessionID,
		"state":      s.service.State(),
	})
}

// handleStopSession stops a capture session; idempotent.
func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Session ID required", http.StatusBadRequest)
		return
	}
	s.service.StopScan(id)
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handlePushFrame accepts one camera frame for an active session.
func (s *Server) handlePushFrame(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Session ID required", http.StatusBadRequest)
		return
	}

	data, contentType, err := readUpload(r, "frame")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	frame := capture.Frame{Data: data, ContentType: contentType, CapturedAt: s.service.timeSource.Now()}
	if err := s.service.PushFrame(id, frame); err != nil {
		if errors.Is(err, ErrNoActiveSession) || errors.Is(err, capture.ErrSessionStopped) {
			writeError(w, http.StatusGone, err)
			return
		}
		slog.Error("Error pushing frame", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": true,
		"state":    s.service.State(),
	})
}

// handleScanPhoto decodes a single uploaded photo outside any session.
func (s *Server) handleScanPhoto(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := readUpload(r, "photo")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	draft, err := s.service.ScanPhoto(r.Context(), data, contentType)
	if err != nil {
		if errors.Is(err, ErrNoSymbol) {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		slog.Error("Error scanning photo", "content_type", contentType, "size", len(data), "error", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusOK, draft)
}

// handleManualBarcode is the typed-in fallback when the camera is
// unavailable.
func (s *Server) handleManualBarcode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Barcode string `json:"barcode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	draft, err := s.service.ManualBarcode(r.Context(), req.Barcode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusOK, draft)
}

// handleGetDraft returns the current draft and pipeline state.
func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"draft": s.service.Draft(),
		"state": s.service.State(),
	})
}

// handleEditDraft applies field edits from a JSON object of
// field name to value.
func (s *Server) handleEditDraft(w http.ResponseWriter, r *http.Request) {
	var edits map[string]any
	if err := json.NewDecoder(r.Body).Decode(&edits); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(edits) == 0 {
		corsError(w, "No edits provided", http.StatusBadRequest)
		return
	}

	var draft InventoryDraft
	for field, value := range edits {
		var err error
		draft, err = s.service.EditDraft(Field(field), value)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, draft)
}

// handleResetDraft discards the draft and seeds a fresh one.
func (s *Server) handleResetDraft(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ResetDraft())
}

// handleSubmitDraft submits the finalized draft to the inventory API.
func (s *Server) handleSubmitDraft(w http.ResponseWriter, r *http.Request) {
	item, err := s.service.Submit(r.Context())
	if err != nil {
		var validationErr *ValidationError
		switch {
		case errors.As(err, &validationErr):
			writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, ErrInventoryUnreachable):
			// Draft is retained; the client may retry.
			writeError(w, http.StatusBadGateway, err)
		default:
			slog.Error("Error submitting draft", "error", err)
			writeError(w, http.StatusBadGateway, err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, item)
}

// handleHistory returns all scan records.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	scans, err := s.service.History()
	if err != nil {
		slog.Error("Error listing scan history", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, scans)
}

// handleHistoryEntry returns one scan record.
func (s *Server) handleHistoryEntry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Scan ID required", http.StatusBadRequest)
		return
	}
	scan, err := s.service.HistoryEntry(id)
	if err != nil {
		corsError(w, "Scan record not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, scan)
}

// handleHistorySnapshot returns the decoded frame image for a scan.
func (s *Server) handleHistorySnapshot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Scan ID required", http.StatusBadRequest)
		return
	}
	data, contentType, err := s.service.HistorySnapshot(id)
	if err != nil {
		corsError(w, "Snapshot not found", http.StatusNotFound)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// readUpload reads a multipart file field, inferring the content type
// from the filename when the part does not carry one.
func readUpload(r *http.Request, field string) ([]byte, string, error) {
	if err := r.ParseMultipartForm(maxFrameSize); err != nil {
		if err.Error() == "http: request body too large" {
			return nil, "", &ValidationError{Field: field, Message: "File is too large. Maximum size is 50MB."}
		}
		return nil, "", &ValidationError{Field: field, Message: "Error parsing form"}
	}

	f, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", &ValidationError{Field: field, Message: "No file provided"}
	}
	defer f.Close()

	if header.Size > maxFrameSize {
		return nil, "", &ValidationError{Field: field, Message: "File is too large. Maximum size is 50MB."}
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", &ValidationError{Field: field, Message: "Error reading file"}
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		switch strings.ToLower(filepath.Ext(header.Filename)) {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".png":
			contentType = "image/png"
		case ".gif":
			contentType = "image/gif"
		case ".pdf":
			contentType = "application/pdf"
		case ".heic":
			contentType = "image/heic"
		case ".heif":
			contentType = "image/heif"
		default:
			contentType = "application/octet-stream"
		}
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	return data, contentType, nil
}
