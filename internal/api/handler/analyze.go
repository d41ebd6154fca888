package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	mw "github.com/kiranshivaraju/issuehound/internal/api/middleware"
	"github.com/kiranshivaraju/issuehound/internal/api/response"
	"github.com/kiranshivaraju/issuehound/internal/cache"
	"github.com/kiranshivaraju/issuehound/internal/store"
	"github.com/kiranshivaraju/issuehound/internal/triage"
	"github.com/kiranshivaraju/issuehound/pkg/models"
)

// AnalysisTrigger defines the interface the analyze handler depends on.
type AnalysisTrigger interface {
	TriggerAnalysis(ctx context.Context, issue *models.Issue, force bool) (*models.Job, triage.Decision, error)
}

// NewAnalyzeHandler returns an http.HandlerFunc for
// POST /api/v1/issues/{issueID}/analyze. The optional body {"force": true}
// bypasses the eligibility gate.
func NewAnalyzeHandler(st store.Store, svc AnalysisTrigger) http.HandlerFunc {
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
			Force bool `json:"force"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		issue, err := st.GetIssue(r.Context(), issueID, appID)
		if err != nil {
			writeServiceError(w, err, "Failed to load issue")
			return
		}

		job, decision, err := svc.TriggerAnalysis(r.Context(), issue, req.Force)
		if err != nil {
			if errors.Is(err, triage.ErrNotEligible) {
				response.Error(w, http.StatusUnprocessableEntity, "NOT_ELIGIBLE",
					"Issue is not eligible for analysis", map[string]string{"reason": decision.Reason})
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to trigger analysis", nil)
			return
		}

		response.Accepted(w, map[string]any{
			"job_id": job.ID,
			"status": job.Status,
			"reason": decision.Reason,
		})
	}
}

// JobDetail pairs a job with its analysis result once completed.
type JobDetail struct {
	Job    *models.Job            `json:"job"`
	Result *models.AnalysisResult `json:"result,omitempty"`
}

// NewPollJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
// The cached status short-circuits the common poll loop; the store remains
// the source of truth for the full job record.
func NewPollJobHandler(st store.Store, ca cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appID, ok := mw.GetAppID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing app", nil)
			return
		}

		jobID, err := uuid.Parse(urlParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid job ID", nil)
			return
		}

		if status, found, err := ca.GetJobStatus(r.Context(), jobID); err == nil && found &&
			status != models.JobStatusCompleted && status != models.JobStatusFailed {
			response.JSON(w, JobDetail{Job: &models.Job{ID: jobID, AppID: appID, Status: status}})
			return
		}

		job, err := st.GetJob(r.Context(), jobID, appID)
		if err != nil {
			writeServiceError(w, err, "Failed to load job")
			return
		}

		detail := JobDetail{Job: job}
		if job.Status == models.JobStatusCompleted {
			if result, err := st.GetAnalysisByJobID(r.Context(), jobID); err == nil {
				detail.Result = result
			}
		}
		response.JSON(w, detail)
	}
}
