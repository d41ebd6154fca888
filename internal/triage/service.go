// Package triage decides which issues deserve automated AI analysis and
// runs those analyses as background jobs.
package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kiranshivaraju/issuehound/internal/cache"
	"github.com/kiranshivaraju/issuehound/internal/config"
	"github.com/kiranshivaraju/issuehound/internal/redact"
	"github.com/kiranshivaraju/issuehound/internal/store"
	"github.com/kiranshivaraju/issuehound/pkg/models"
)

// ErrNotEligible is returned by TriggerAnalysis when the gate rejects an
// issue and force was not set. The Decision carries the reason.
var ErrNotEligible = errors.New("issue not eligible for analysis")

const jobStatusTTL = 30 * time.Minute

// Service orchestrates AI analysis: eligibility gating, job lifecycle, and
// the background provider call.
type Service struct {
	store    store.Store
	cache    cache.Cache
	provider models.AIProvider
	limiter  *rate.Limiter
	gate     GateConfig
	timeout  time.Duration
}

// NewService creates a triage Service.
func NewService(st store.Store, ca cache.Cache, provider models.AIProvider, cfg config.TriageConfig, timeout time.Duration) *Service {
	perMinute := cfg.MaxCallsPerMinute
	if perMinute < 1 {
		perMinute = 1
	}
	return &Service{
		store:    st,
		cache:    ca,
		provider: provider,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		gate: GateConfig{
			SeverityFloor: models.Severity(cfg.SeverityFloor),
			MinRecurrence: cfg.MinRecurrence,
			CoolDown:      cfg.CoolDown,
		},
		timeout: timeout,
	}
}

// Gate exposes the configured thresholds, mainly for handlers that report
// eligibility without triggering anything.
func (s *Service) Gate() GateConfig { return s.gate }

// TriggerAnalysis creates a pending job and dispatches analysis in a
// background goroutine. Returns the job immediately without waiting for the
// provider. When force is false the eligibility gate applies and an
// ineligible issue yields ErrNotEligible plus the gating decision.
func (s *Service) TriggerAnalysis(ctx context.Context, issue *models.Issue, force bool) (*models.Job, Decision, error) {
	if issue == nil || issue.ID == uuid.Nil {
		return nil, Decision{}, fmt.Errorf("invalid issue: ID is required")
	}

	decision := Evaluate(issue, s.gate, time.Now().UTC())
	if !decision.Eligible {
		if !force {
			return nil, decision, ErrNotEligible
		}
		decision = Decision{Eligible: true, Reason: "forced by operator"}
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:        uuid.New(),
		AppID:     issue.AppID,
		Type:      "analysis",
		Status:    models.JobStatusPending,
		IssueID:   &issue.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, decision, fmt.Errorf("creating job: %w", err)
	}
	_ = s.cache.SetJobStatus(ctx, job.ID, models.JobStatusPending, jobStatusTTL)

	go s.runAnalysis(issue, job.ID)

	return job, decision, nil
}

// NotifyIngest is the automatic path: called after an occurrence lands on an
// issue. Ineligible issues are skipped silently; failures only log, ingestion
// never depends on triage.
func (s *Service) NotifyIngest(issue *models.Issue) {
	if issue == nil || issue.Fingerprint == nil {
		return
	}
	_, decision, err := s.TriggerAnalysis(context.Background(), issue, false)
	if errors.Is(err, ErrNotEligible) {
		slog.Debug("triage gate skipped issue", "issue_id", issue.ID, "reason", decision.Reason)
		return
	}
	if err != nil {
		slog.Error("auto triage failed", "issue_id", issue.ID, "error", err)
	}
}

// runAnalysis performs the actual AI analysis in a goroutine.
// It recovers from panics and always marks the job as completed or failed.
func (s *Service) runAnalysis(issue *models.Issue, jobID uuid.UUID) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in runAnalysis", "error", r, "job_id", jobID)
			s.failJob(ctx, jobID, fmt.Sprintf("panic: %v", r))
		}
	}()

	_ = s.store.UpdateJobStatus(ctx, jobID, models.JobStatusRunning)
	_ = s.cache.SetJobStatus(ctx, jobID, models.JobStatusRunning, jobStatusTTL)

	waitCtx, cancelWait := context.WithTimeout(ctx, 2*time.Minute)
	err := s.limiter.Wait(waitCtx)
	cancelWait()
	if err != nil {
		s.failJob(ctx, jobID, fmt.Sprintf("rate limit wait: %v", err))
		return
	}

	req, err := s.buildRequest(ctx, issue)
	if err != nil {
		s.failJob(ctx, jobID, fmt.Sprintf("building analysis request: %v", err))
		return
	}

	analysisCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.provider.Analyze(analysisCtx, req)
	if err != nil {
		s.failJob(ctx, jobID, err.Error())
		return
	}

	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1.0 {
		result.Confidence = 1.0
	}
	result.RootCause = truncateString(result.RootCause, 4000)
	result.Summary = truncateString(result.Summary, 2000)

	result.ID = uuid.New()
	result.JobID = jobID
	result.IssueID = issue.ID
	result.AppID = issue.AppID
	result.Provider = s.provider.Name()
	result.CreatedAt = time.Now().UTC()

	if err := s.store.CreateAnalysisResult(ctx, &result); err != nil {
		s.failJob(ctx, jobID, fmt.Sprintf("storing result: %v", err))
		return
	}

	_ = s.store.UpdateJobStatus(ctx, jobID, models.JobStatusCompleted, store.WithIssueID(issue.ID))
	_ = s.cache.SetJobStatus(ctx, jobID, models.JobStatusCompleted, jobStatusTTL)
}

func (s *Service) failJob(ctx context.Context, jobID uuid.UUID, msg string) {
	_ = s.store.UpdateJobStatus(ctx, jobID, models.JobStatusFailed, store.WithErrorMessage(msg))
	_ = s.cache.SetJobStatus(ctx, jobID, models.JobStatusFailed, jobStatusTTL)
}

// buildRequest assembles the sanitized snapshot sent to the provider. Event
// payloads were redacted at ingestion; every free-text field is scrubbed once
// more here so nothing that slipped through a lax profile reaches the
// provider.
func (s *Service) buildRequest(ctx context.Context, issue *models.Issue) (models.AnalysisRequest, error) {
	app, err := s.store.GetApp(ctx, issue.AppID)
	if err != nil {
		return models.AnalysisRequest{}, fmt.Errorf("loading app: %w", err)
	}

	req := models.AnalysisRequest{
		IssueID:     issue.ID,
		AppName:     app.Name,
		Environment: issue.Environment,
		Severity:    issue.Severity,
		Occurrences: issue.OccurrencesTotal,
		UniqueUsers: issue.UniqueUsers24hEst,
		FirstSeenAt: issue.CreatedAt,
		LastSeenAt:  issue.LastSeenAt,
	}
	req.Title, _ = redact.Scrub(issue.Title)

	if n := len(issue.EventRefs); n > 0 {
		event, err := s.store.GetEvent(ctx, issue.EventRefs[n-1], issue.AppID)
		if err == nil && event.Payload.Error != nil {
			p := event.Payload.Error
			req.ErrorType = p.ErrorType
			req.SampleMessage, _ = redact.Scrub(truncateString(p.Message, 2000))
			req.SampleStack, _ = redact.Scrub(truncateString(p.Stack, 4000))
			req.Route = event.Route
		} else if err == nil && event.Payload.Feedback != nil {
			req.SampleMessage, _ = redact.Scrub(truncateString(event.Payload.Feedback.Description, 2000))
			req.Route = event.Route
		}
	}

	if report := redact.Validate(map[string]any{
		"title":   req.Title,
		"message": req.SampleMessage,
		"stack":   req.SampleStack,
	}); !report.Safe {
		return models.AnalysisRequest{}, fmt.Errorf("sanitization check failed: %v", report.Found)
	}

	return req, nil
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
