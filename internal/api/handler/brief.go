package handler

import (
	"net/http"
	"strconv"
	"time"

	mw "github.com/kiranshivaraju/issuehound/internal/api/middleware"
	"github.com/kiranshivaraju/issuehound/internal/api/response"
	"github.com/kiranshivaraju/issuehound/internal/score"
	"github.com/kiranshivaraju/issuehound/internal/store"
	"github.com/kiranshivaraju/issuehound/pkg/models"
)

// candidatePool bounds how many issues are fetched for ranking. Scoring is
// cheap; the pool exists to keep the query bounded, not the math.
const candidatePool = 100

// BriefItem is one ranked entry in a daily brief.
type BriefItem struct {
	Issue *models.Issue `json:"issue"`
	Score int           `json:"score"`
}

// Brief is the response for GET /api/v1/brief.
type Brief struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Items       []BriefItem `json:"items"`
	// Sparse reports that fewer items qualified than the advisory minimum,
	// letting clients suppress a near-empty digest.
	Sparse bool `json:"sparse"`
}

// NewBriefHandler returns an http.HandlerFunc for GET /api/v1/brief.
func NewBriefHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appID, ok := mw.GetAppID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing app", nil)
			return
		}

		q := r.URL.Query()
		cfg := score.DefaultConfig()

		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > candidatePool {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be between 1 and 100", nil)
				return
			}
			cfg.MaxItems = n
		}
		if v := q.Get("min_severity"); v != "" {
			s := models.Severity(v)
			if !s.Valid() {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "min_severity must be P0-P3", nil)
				return
			}
			cfg.MinSeverity = s
		}
		cfg.IncludeRecentlyClosed = q.Get("include_recently_closed") == "true"

		env := q.Get("environment")
		if env != "" && !models.ValidEnvironment(env) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Unknown environment", nil)
			return
		}

		issues, _, err := st.ListIssues(r.Context(), store.IssueFilter{
			AppID:       appID,
			Environment: env,
			Page:        1,
			Limit:       candidatePool,
		})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load issues", nil)
			return
		}

		now := time.Now().UTC()
		ranked := score.Select(issues, cfg, now)

		brief := Brief{
			GeneratedAt: now,
			Items:       make([]BriefItem, 0, len(ranked)),
			Sparse:      len(ranked) < cfg.MinItems,
		}
		for _, entry := range ranked {
			brief.Items = append(brief.Items, BriefItem{Issue: entry.Issue, Score: entry.Score})
		}
		response.JSON(w, brief)
	}
}
