// Package handler contains the HTTP handlers for the public API. Handlers
// depend on narrow interfaces so tests can stub the services behind them.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	mw "github.com/kiranshivaraju/issuehound/internal/api/middleware"
	"github.com/kiranshivaraju/issuehound/internal/api/response"
	"github.com/kiranshivaraju/issuehound/internal/ingest"
)

const maxAttachmentBytes = 5 << 20

// EventIngester defines the interface the ingest handlers depend on.
type EventIngester interface {
	ProcessEvent(ctx context.Context, appID uuid.UUID, raw ingest.RawEvent) (*ingest.Result, error)
	ProcessBatch(ctx context.Context, appID uuid.UUID, raws []ingest.RawEvent) ([]ingest.BatchItem, error)
	AttachFiles(ctx context.Context, appID, eventID uuid.UUID, files []ingest.Attachment) ([]string, error)
}

// IngestResponse is returned for a single accepted event.
type IngestResponse struct {
	EventID           uuid.UUID  `json:"event_id"`
	IssueID           *uuid.UUID `json:"issue_id,omitempty"`
	IsNewIssue        bool       `json:"is_new_issue"`
	Fingerprint       *string    `json:"fingerprint,omitempty"`
	RedactionsApplied int        `json:"redactions_applied"`
}

// NewIngestHandler returns an http.HandlerFunc for POST /api/v1/events.
func NewIngestHandler(svc EventIngester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appID, ok := mw.GetAppID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing app", nil)
			return
		}

		var raw ingest.RawEvent
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		result, err := svc.ProcessEvent(r.Context(), appID, raw)
		if err != nil {
			var rejErr *ingest.RejectionError
			if errors.As(err, &rejErr) {
				response.Error(w, http.StatusUnprocessableEntity, "EVENT_REJECTED", rejErr.Reason, nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to ingest event", nil)
			return
		}

		resp := IngestResponse{
			EventID:           result.Event.ID,
			IsNewIssue:        result.IsNewIssue,
			Fingerprint:       result.Fingerprint,
			RedactionsApplied: result.Redactions,
		}
		if result.Issue != nil {
			resp.IssueID = &result.Issue.ID
		}
		response.Created(w, resp)
	}
}

// BatchResponse summarizes a batch ingest.
type BatchResponse struct {
	Accepted int                `json:"accepted"`
	Rejected int                `json:"rejected"`
	Items    []ingest.BatchItem `json:"items"`
}

// NewBatchIngestHandler returns an http.HandlerFunc for POST /api/v1/events/batch.
func NewBatchIngestHandler(svc EventIngester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appID, ok := mw.GetAppID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing app", nil)
			return
		}

		var req struct {
			Events []ingest.RawEvent `json:"events"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		items, err := svc.ProcessBatch(r.Context(), appID, req.Events)
		if err != nil {
			var rejErr *ingest.RejectionError
			if errors.As(err, &rejErr) {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", rejErr.Reason, nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to ingest batch", nil)
			return
		}

		resp := BatchResponse{Items: items}
		for _, item := range items {
			if item.Accepted {
				resp.Accepted++
			} else {
				resp.Rejected++
			}
		}
		response.JSON(w, resp)
	}
}

// NewAttachmentsHandler returns an http.HandlerFunc for
// POST /api/v1/events/{eventID}/attachments (multipart form, field "files").
func NewAttachmentsHandler(svc EventIngester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appID, ok := mw.GetAppID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing app", nil)
			return
		}

		eventID, err := uuid.Parse(urlParam(r, "eventID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid event ID", nil)
			return
		}

		if err := r.ParseMultipartForm(maxAttachmentBytes); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid multipart form", nil)
			return
		}

		var files []ingest.Attachment
		for _, fh := range r.MultipartForm.File["files"] {
			if fh.Size > maxAttachmentBytes {
				response.Error(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
					"Attachment exceeds the 5MB limit", map[string]any{"filename": fh.Filename})
				return
			}
			f, err := fh.Open()
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Unreadable attachment", nil)
				return
			}
			data, err := io.ReadAll(io.LimitReader(f, maxAttachmentBytes))
			f.Close()
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Unreadable attachment", nil)
				return
			}
			files = append(files, ingest.Attachment{
				Filename:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Data:        data,
			})
		}

		keys, err := svc.AttachFiles(r.Context(), appID, eventID, files)
		if err != nil {
			writeServiceError(w, err, "Failed to store attachments")
			return
		}
		response.Created(w, map[string]any{"attachment_keys": keys})
	}
}
