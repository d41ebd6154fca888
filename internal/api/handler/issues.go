package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	mw "github.com/kiranshivaraju/issuehound/internal/api/middleware"
	"github.com/kiranshivaraju/issuehound/internal/api/response"
	"github.com/kiranshivaraju/issuehound/internal/store"
	"github.com/kiranshivaraju/issuehound/pkg/models"
)

// NewListIssuesHandler returns an http.HandlerFunc for GET /api/v1/issues.
func NewListIssuesHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appID, ok := mw.GetAppID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing app", nil)
			return
		}

		q := r.URL.Query()
		filter := store.IssueFilter{
			AppID:       appID,
			Environment: q.Get("environment"),
			Status:      q.Get("status"),
		}

		if env := filter.Environment; env != "" && !models.ValidEnvironment(env) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Unknown environment", nil)
			return
		}

		if sev := q.Get("min_severity"); sev != "" {
			s := models.Severity(sev)
			if !s.Valid() {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "min_severity must be P0-P3", nil)
				return
			}
			filter.MinSeverity = s
		}

		if since := q.Get("since"); since != "" {
			t, err := time.Parse(time.RFC3339, since)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "since must be a valid RFC3339 timestamp", nil)
				return
			}
			filter.Since = t
		}

		filter.Page, _ = strconv.Atoi(q.Get("page"))
		filter.Limit, _ = strconv.Atoi(q.Get("limit"))
		if filter.Page < 1 {
			filter.Page = 1
		}
		if filter.Limit < 1 {
			filter.Limit = 20
		}

		issues, total, err := st.ListIssues(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list issues", nil)
			return
		}

		response.Collection(w, issues, response.PaginationMeta{
			Page:    filter.Page,
			Limit:   filter.Limit,
			Total:   total,
			HasNext: filter.Page*filter.Limit < total,
		})
	}
}

// IssueDetail pairs an issue with its latest analysis, if any.
type IssueDetail struct {
	Issue          *models.Issue          `json:"issue"`
	LatestAnalysis *models.AnalysisResult `json:"latest_analysis,omitempty"`
}

// NewGetIssueHandler returns an http.HandlerFunc for GET /api/v1/issues/{issueID}.
func NewGetIssueHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appID, ok := mw.GetAppID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing app", nil)
			return
		}

		issueID, err := uuid.Parse(urlParam(r, "issueID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid issue ID", nil)
			return
		}

		issue, err := st.GetIssue(r.Context(), issueID, appID)
		if err != nil {
			writeServiceError(w, err, "Failed to load issue")
			return
		}

		detail := IssueDetail{Issue: issue}
		if analysis, err := st.GetLatestAnalysis(r.Context(), issueID); err == nil {
			detail.LatestAnalysis = analysis
		} else if !errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load analysis", nil)
			return
		}

		response.JSON(w, detail)
	}
}

// NewUpdateIssueHandler returns an http.HandlerFunc for PATCH /api/v1/issues/{issueID}.
func NewUpdateIssueHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appID, ok := mw.GetAppID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing app", nil)
			return
		}

		issueID, err := uuid.Parse(urlParam(r, "issueID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid issue ID", nil)
			return
		}

		var req struct {
			Status         *string  `json:"status"`
			Severity       *string  `json:"severity"`
			Title          *string  `json:"title"`
			Description    *string  `json:"description"`
			AssignedTo     *string  `json:"assigned_to"`
			ResolutionNote *string  `json:"resolution_note"`
			Tags           []string `json:"tags"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		update := store.IssueUpdate{
			Title:          req.Title,
			Description:    req.Description,
			AssignedTo:     req.AssignedTo,
			ResolutionNote: req.ResolutionNote,
			Tags:           req.Tags,
		}

		if req.Severity != nil {
			s := models.Severity(*req.Severity)
			if !s.Valid() {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "severity must be P0-P3", nil)
				return
			}
			update.Severity = &s
		}

		if req.Status != nil {
			current, err := st.GetIssue(r.Context(), issueID, appID)
			if err != nil {
				writeServiceError(w, err, "Failed to load issue")
				return
			}
			if *req.Status != current.Status {
				if !models.ValidStatusTransition(current.Status, *req.Status) {
					response.Error(w, http.StatusUnprocessableEntity, "INVALID_TRANSITION",
						"Status transition not allowed",
						map[string]string{"from": current.Status, "to": *req.Status})
					return
				}
				update.Status = req.Status
			}
		}

		issue, err := st.UpdateIssue(r.Context(), issueID, appID, update)
		if err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				// Reopening collided with a newer open issue carrying the
				// same fingerprint.
				response.Error(w, http.StatusConflict, "CONFLICT",
					"Another open issue already tracks this fingerprint", nil)
				return
			}
			writeServiceError(w, err, "Failed to update issue")
			return
		}
		response.JSON(w, issue)
	}
}

// IssueMerger defines the interface the merge handler depends on.
type IssueMerger interface {
	MergeIssues(ctx context.Context, appID, targetID uuid.UUID, sourceIDs []uuid.UUID) (*models.Issue, error)
}

// NewMergeIssuesHandler returns an http.HandlerFunc for POST /api/v1/issues/merge.
func NewMergeIssuesHandler(svc IssueMerger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appID, ok := mw.GetAppID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing app", nil)
			return
		}

		var req struct {
			TargetID  uuid.UUID   `json:"target_id"`
			SourceIDs []uuid.UUID `json:"source_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.TargetID == uuid.Nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "target_id is required", nil)
			return
		}

		merged, err := svc.MergeIssues(r.Context(), appID, req.TargetID, req.SourceIDs)
		if err != nil {
			writeServiceError(w, err, "Failed to merge issues")
			return
		}
		response.JSON(w, merged)
	}
}
