package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/issuehound/internal/store"
	"github.com/kiranshivaraju/issuehound/pkg/models"
)

func seedBriefIssue(t *testing.T, st *store.MemoryStore, appID uuid.UUID, sev models.Severity, title string) *models.Issue {
	t.Helper()
	issue, err := st.CreateIssue(context.Background(), models.IssueSeed{
		AppID:       appID,
		Environment: models.EnvProd,
		Severity:    sev,
		Title:       title,
		Type:        models.IssueTypeBug,
		EventID:     uuid.New(),
		SeenAt:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed issue: %v", err)
	}
	return issue
}

func TestBriefHandler_RanksBySeverity(t *testing.T) {
	st := store.NewMemoryStore()
	appID := uuid.New()
	seedBriefIssue(t, st, appID, models.SeverityP3, "minor glitch")
	seedBriefIssue(t, st, appID, models.SeverityP0, "checkout down")

	h := NewBriefHandler(st)
	rec := httptest.NewRecorder()

	r := httptest.NewRequest(http.MethodGet, "/api/v1/brief", nil)
	r = r.WithContext(setAppCtx(r.Context(), appID))
	h.ServeHTTP(rec, r)

	data := parseData(t, rec, http.StatusOK)
	items := data["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	first := items[0].(map[string]any)
	if first["issue"].(map[string]any)["title"] != "checkout down" {
		t.Errorf("P0 issue should rank first, got %v", first["issue"])
	}
	if int(first["score"].(float64)) <= 0 {
		t.Errorf("expected positive score, got %v", first["score"])
	}
	if data["sparse"] != false {
		t.Errorf("expected sparse=false, got %v", data["sparse"])
	}
}

func TestBriefHandler_MinSeverityFilter(t *testing.T) {
	st := store.NewMemoryStore()
	appID := uuid.New()
	seedBriefIssue(t, st, appID, models.SeverityP3, "minor glitch")
	seedBriefIssue(t, st, appID, models.SeverityP1, "pool exhausted")

	h := NewBriefHandler(st)
	rec := httptest.NewRecorder()

	r := httptest.NewRequest(http.MethodGet, "/api/v1/brief?min_severity=P2", nil)
	r = r.WithContext(setAppCtx(r.Context(), appID))
	h.ServeHTTP(rec, r)

	data := parseData(t, rec, http.StatusOK)
	items := data["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	title := items[0].(map[string]any)["issue"].(map[string]any)["title"]
	if title != "pool exhausted" {
		t.Errorf("unexpected item: %v", title)
	}
}

func TestBriefHandler_SparseWhenEmpty(t *testing.T) {
	h := NewBriefHandler(store.NewMemoryStore())
	rec := httptest.NewRecorder()

	r := httptest.NewRequest(http.MethodGet, "/api/v1/brief", nil)
	r = r.WithContext(setAppCtx(r.Context(), uuid.New()))
	h.ServeHTTP(rec, r)

	data := parseData(t, rec, http.StatusOK)
	if data["sparse"] != true {
		t.Errorf("expected sparse=true, got %v", data["sparse"])
	}
	if len(data["items"].([]any)) != 0 {
		t.Errorf("expected no items, got %v", data["items"])
	}
}

func TestBriefHandler_LimitValidation(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"zero", "limit=0"},
		{"negative", "limit=-5"},
		{"above pool", "limit=101"},
		{"not a number", "limit=ten"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewBriefHandler(store.NewMemoryStore())
			rec := httptest.NewRecorder()

			r := httptest.NewRequest(http.MethodGet, "/api/v1/brief?"+tt.query, nil)
			r = r.WithContext(setAppCtx(r.Context(), uuid.New()))
			h.ServeHTTP(rec, r)

			status, code := parseErr(t, rec)
			if status != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", status)
			}
			if code != "INVALID_REQUEST" {
				t.Errorf("expected INVALID_REQUEST, got %s", code)
			}
		})
	}
}

func TestBriefHandler_BadMinSeverity(t *testing.T) {
	h := NewBriefHandler(store.NewMemoryStore())
	rec := httptest.NewRecorder()

	r := httptest.NewRequest(http.MethodGet, "/api/v1/brief?min_severity=urgent", nil)
	r = r.WithContext(setAppCtx(r.Context(), uuid.New()))
	h.ServeHTTP(rec, r)

	status, code := parseErr(t, rec)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", status)
	}
	if code != "INVALID_REQUEST" {
		t.Errorf("expected INVALID_REQUEST, got %s", code)
	}
}
