package models

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AIProvider is the core interface that all AI integrations must implement.
// Never call specific AI providers directly; always inject this interface.
type AIProvider interface {
	// Analyze performs root cause analysis on a sanitized issue snapshot.
	Analyze(ctx context.Context, req AnalysisRequest) (AnalysisResult, error)
	// Name returns the provider identifier (e.g., "anthropic", "openai").
	Name() string
}

// AnalysisRequest is the input to an AI analysis operation. Every field must
// already have passed redaction and the safety validator; raw payloads are
// never sent to a provider.
type AnalysisRequest struct {
	IssueID       uuid.UUID
	AppName       string
	Environment   string
	Severity      Severity
	Title         string
	ErrorType     string
	SampleMessage string
	SampleStack   string
	Route         string
	Occurrences   int
	UniqueUsers   int
	FirstSeenAt   time.Time
	LastSeenAt    time.Time
}

// Next actions a provider may suggest.
const (
	NextActionFix         = "fix"
	NextActionInvestigate = "investigate"
	NextActionIgnore      = "ignore"
	NextActionEscalate    = "escalate"
)

// AnalysisResult holds AI-generated root-cause output for an issue. Only
// RootCause, Confidence, and NextAction are inspected by the pipeline; the
// rest is passed through to humans.
type AnalysisResult struct {
	ID              uuid.UUID `db:"id"               json:"id"`
	IssueID         uuid.UUID `db:"issue_id"         json:"issue_id"`
	AppID           uuid.UUID `db:"app_id"           json:"app_id"`
	JobID           uuid.UUID `db:"job_id"           json:"job_id"`
	Provider        string    `db:"provider"         json:"provider"`
	Model           string    `db:"model"            json:"model"`
	RootCause       string    `db:"root_cause"       json:"root_cause"`
	Confidence      float64   `db:"confidence"       json:"confidence"`
	Summary         string    `db:"summary"          json:"summary"`
	NextAction      string    `db:"next_action"      json:"next_action"`
	SuggestedPatch  *string   `db:"suggested_patch"  json:"suggested_patch,omitempty"`
	CreatedAt       time.Time `db:"created_at"       json:"created_at"`
}
