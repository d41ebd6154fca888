package triage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/issuehound/internal/ai/mock"
	"github.com/kiranshivaraju/issuehound/internal/cache"
	"github.com/kiranshivaraju/issuehound/internal/config"
	"github.com/kiranshivaraju/issuehound/internal/store"
	"github.com/kiranshivaraju/issuehound/pkg/models"
)

func openTriageCfg() config.TriageConfig {
	return config.TriageConfig{
		SeverityFloor:     "P3",
		MinRecurrence:     1,
		CoolDown:          time.Hour,
		MaxCallsPerMinute: 600,
	}
}

// seedIssue creates an app, one error event, and the issue aggregating it.
func seedIssue(t *testing.T, st *store.MemoryStore) *models.Issue {
	t.Helper()
	ctx := context.Background()

	appID := uuid.New()
	require.NoError(t, st.CreateApp(ctx, &models.App{ID: appID, Name: "shopfront"}))

	event := &models.Event{
		ID:          uuid.New(),
		AppID:       appID,
		Environment: models.EnvProd,
		Type:        models.EventTypeBackendError,
		Timestamp:   time.Now().UTC(),
		Route:       "/checkout",
		Payload: models.EventPayload{
			Error: &models.ErrorPayload{
				Message:   "connection pool exhausted",
				Stack:     "at acquire (pool.go:42)",
				ErrorType: "PoolError",
			},
		},
	}
	require.NoError(t, st.CreateEvent(ctx, event))

	fp := "abcd1234abcd1234"
	issue, err := st.CreateIssue(ctx, models.IssueSeed{
		AppID:       appID,
		Environment: models.EnvProd,
		Severity:    models.SeverityP1,
		Title:       "PoolError: connection pool exhausted",
		Type:        models.IssueTypeBug,
		Fingerprint: &fp,
		EventID:     event.ID,
		SeenAt:      time.Now().UTC(),
	})
	require.NoError(t, err)
	return issue
}

func waitForJob(t *testing.T, st *store.MemoryStore, jobID, appID uuid.UUID, status string) *models.Job {
	t.Helper()
	var job *models.Job
	require.Eventually(t, func() bool {
		j, err := st.GetJob(context.Background(), jobID, appID)
		if err != nil {
			return false
		}
		job = j
		return j.Status == status
	}, 3*time.Second, 10*time.Millisecond, "job never reached %s", status)
	return job
}

func TestTriggerAnalysis_CompletesJob(t *testing.T) {
	st := store.NewMemoryStore()
	issue := seedIssue(t, st)
	svc := NewService(st, cache.NewMemoryCache(), mock.NewMockProvider(), openTriageCfg(), 5*time.Second)

	job, decision, err := svc.TriggerAnalysis(context.Background(), issue, false)
	require.NoError(t, err)
	assert.True(t, decision.Eligible)
	assert.Equal(t, models.JobStatusPending, job.Status)

	done := waitForJob(t, st, job.ID, issue.AppID, models.JobStatusCompleted)
	assert.NotNil(t, done.CompletedAt)

	result, err := st.GetAnalysisByJobID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, issue.ID, result.IssueID)
	assert.Equal(t, "mock", result.Provider)
	assert.NotEmpty(t, result.RootCause)

	updated, err := st.GetIssue(context.Background(), issue.ID, issue.AppID)
	require.NoError(t, err)
	assert.NotNil(t, updated.LastAnalyzedAt)
}

func TestTriggerAnalysis_ProviderFailureMarksJobFailed(t *testing.T) {
	st := store.NewMemoryStore()
	issue := seedIssue(t, st)
	provider := mock.NewFailingProvider(models.ErrProviderUnavailable)
	svc := NewService(st, cache.NewMemoryCache(), provider, openTriageCfg(), 5*time.Second)

	job, _, err := svc.TriggerAnalysis(context.Background(), issue, false)
	require.NoError(t, err)

	failed := waitForJob(t, st, job.ID, issue.AppID, models.JobStatusFailed)
	require.NotNil(t, failed.ErrorMessage)
	assert.True(t, strings.Contains(*failed.ErrorMessage, "unavailable"),
		"error message should carry the provider error, got %q", *failed.ErrorMessage)

	_, err = st.GetAnalysisByJobID(context.Background(), job.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTriggerAnalysis_GateRejectsWithoutForce(t *testing.T) {
	st := store.NewMemoryStore()
	issue := seedIssue(t, st)

	cfg := openTriageCfg()
	cfg.MinRecurrence = 3 // the seeded issue has a single occurrence
	svc := NewService(st, cache.NewMemoryCache(), mock.NewMockProvider(), cfg, 5*time.Second)

	job, decision, err := svc.TriggerAnalysis(context.Background(), issue, false)
	require.ErrorIs(t, err, ErrNotEligible)
	assert.Nil(t, job)
	assert.False(t, decision.Eligible)
	assert.Contains(t, decision.Reason, "minimum")
}

func TestTriggerAnalysis_ForceBypassesGate(t *testing.T) {
	st := store.NewMemoryStore()
	issue := seedIssue(t, st)

	cfg := openTriageCfg()
	cfg.MinRecurrence = 3
	svc := NewService(st, cache.NewMemoryCache(), mock.NewMockProvider(), cfg, 5*time.Second)

	job, decision, err := svc.TriggerAnalysis(context.Background(), issue, true)
	require.NoError(t, err)
	assert.True(t, decision.Eligible)
	assert.Equal(t, "forced by operator", decision.Reason)

	waitForJob(t, st, job.ID, issue.AppID, models.JobStatusCompleted)
}

func TestTriggerAnalysis_ClampsConfidence(t *testing.T) {
	st := store.NewMemoryStore()
	issue := seedIssue(t, st)

	provider := &mock.MockProvider{
		Name_: "mock",
		AnalyzeFunc: func(_ context.Context, req models.AnalysisRequest) (models.AnalysisResult, error) {
			return models.AnalysisResult{
				RootCause:  "overconfident",
				Confidence: 3.2,
				NextAction: models.NextActionFix,
			}, nil
		},
	}
	svc := NewService(st, cache.NewMemoryCache(), provider, openTriageCfg(), 5*time.Second)

	job, _, err := svc.TriggerAnalysis(context.Background(), issue, false)
	require.NoError(t, err)
	waitForJob(t, st, job.ID, issue.AppID, models.JobStatusCompleted)

	result, err := st.GetAnalysisByJobID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestTriggerAnalysis_RejectsNilIssue(t *testing.T) {
	st := store.NewMemoryStore()
	svc := NewService(st, cache.NewMemoryCache(), mock.NewMockProvider(), openTriageCfg(), 5*time.Second)

	_, _, err := svc.TriggerAnalysis(context.Background(), nil, false)
	assert.Error(t, err)

	_, _, err = svc.TriggerAnalysis(context.Background(), &models.Issue{}, false)
	assert.Error(t, err)
}

func TestNotifyIngest_SkipsUnfingerprintedIssues(t *testing.T) {
	st := store.NewMemoryStore()
	called := false
	provider := &mock.MockProvider{
		Name_: "mock",
		AnalyzeFunc: func(_ context.Context, _ models.AnalysisRequest) (models.AnalysisResult, error) {
			called = true
			return models.AnalysisResult{RootCause: "x"}, nil
		},
	}
	svc := NewService(st, cache.NewMemoryCache(), provider, openTriageCfg(), 5*time.Second)

	svc.NotifyIngest(nil)
	svc.NotifyIngest(&models.Issue{ID: uuid.New(), Severity: models.SeverityP1, Occurrences24h: 10})

	time.Sleep(50 * time.Millisecond)
	assert.False(t, called, "feedback issues without a fingerprint must never auto-trigger analysis")
}
