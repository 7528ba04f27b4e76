package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bull/pdfchat-server/internal/service"
)

type rootResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Storage   string `json:"storage"`
	Timestamp string `json:"timestamp"`
}

type uploadResponse struct {
	DocumentID string `json:"document_id"`
	Message    string `json:"message"`
	Pages      int    `json:"pages"`
}

type chatRequest struct {
	DocumentID string `json:"document_id"`
	Question   string `json:"question"`
}

type chatResponse struct {
	Answer     string `json:"answer"`
	DocumentID string `json:"document_id"`
}

type documentsResponse struct {
	Documents []string `json:"documents"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type clearResponse struct {
	Message             string `json:"message"`
	DeletedFiles        int    `json:"deleted_files"`
	DeletedVectorStores int    `json:"deleted_vector_stores"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rootResponse{
		Message: "PDF Chatbot API is running",
		Version: Version,
	})
}

// handleHealth checks storage with a 3-second timeout; 503 when unhealthy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if err := s.svc.Health(ctx); err != nil {
		s.logger.Warn("Health check failed", "error", err)
		resp.Status = "unhealthy"
		resp.Storage = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Status = "healthy"
	resp.Storage = "ok"
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.maxUpload {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("File exceeds the maximum upload size of %d bytes", s.maxUpload))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("File exceeds the maximum upload size of %d bytes", s.maxUpload))
			return
		}
		writeError(w, http.StatusBadRequest, "A PDF file is required in the 'file' form field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read uploaded file")
		return
	}

	res, err := s.svc.Upload(r.Context(), header.Filename, data)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedFile):
			writeError(w, http.StatusBadRequest, "Only PDF files are supported")
		case errors.Is(err, service.ErrNoExtractableText):
			writeError(w, http.StatusBadRequest,
				"No text could be extracted from the PDF. Ensure the PDF contains extractable text.")
		case errors.Is(err, service.ErrInvalidIdentifier):
			writeError(w, http.StatusBadRequest, "Error processing document: "+s.scrubber.scrub(err.Error()))
		default:
			s.logger.Error("Upload failed", "filename", header.Filename, "error", err)
			writeError(w, http.StatusInternalServerError, "Error processing document: "+s.scrubber.scrub(err.Error()))
		}
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		DocumentID: res.DocumentID,
		Message:    res.Message,
		Pages:      res.Pages,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.svc.Ask(r.Context(), req.DocumentID, req.Question)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrInvalidIdentifier):
			writeError(w, http.StatusBadRequest, s.scrubber.scrub(err.Error()))
		case errors.Is(err, service.ErrNotFound):
			writeError(w, http.StatusNotFound,
				fmt.Sprintf("Document '%s' not found. Please upload it first.", req.DocumentID))
		default:
			s.logger.Error("Chat failed", "document_id", req.DocumentID, "error", err)
			writeError(w, http.StatusInternalServerError, "Error generating response: "+s.scrubber.scrub(err.Error()))
		}
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Answer: res.Answer, DocumentID: res.DocumentID})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	ids, err := s.svc.List(r.Context())
	if err != nil {
		s.logger.Error("List failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Error listing documents: "+s.scrubber.scrub(err.Error()))
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, documentsResponse{Documents: ids})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("document_id")

	msg, err := s.svc.Delete(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidIdentifier):
			writeError(w, http.StatusBadRequest, s.scrubber.scrub(err.Error()))
		case errors.Is(err, service.ErrNotFound):
			writeError(w, http.StatusNotFound, fmt.Sprintf("Document '%s' not found", id))
		default:
			s.logger.Error("Delete failed", "document_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "Error deleting document: "+s.scrubber.scrub(err.Error()))
		}
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.ClearAll(r.Context())
	if err != nil {
		s.logger.Error("Clear failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Error clearing data: "+s.scrubber.scrub(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, clearResponse{
		Message:             res.Message,
		DeletedFiles:        res.DeletedFiles,
		DeletedVectorStores: res.DeletedIndexes,
	})
}
