package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/issuehound/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateApp(ctx context.Context, app *models.App) error
	GetApp(ctx context.Context, id uuid.UUID) (*models.App, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, appID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, appID uuid.UUID) error

	CreateEvent(ctx context.Context, event *models.Event) error
	GetEvent(ctx context.Context, id uuid.UUID, appID uuid.UUID) (*models.Event, error)
	AttachEventFiles(ctx context.Context, eventID uuid.UUID, keys []string) error

	// FindOpenIssueByFingerprint returns the single non-terminal issue with
	// the given fingerprint in (app, environment), or ErrNotFound.
	FindOpenIssueByFingerprint(ctx context.Context, appID uuid.UUID, environment, fp string) (*models.Issue, error)
	// CreateIssue inserts a new issue from a seed. Returns ErrDuplicateKey
	// when another non-terminal issue with the same fingerprint already
	// exists; callers retry the occurrence as an append.
	CreateIssue(ctx context.Context, seed models.IssueSeed) (*models.Issue, error)
	// AppendEventAndIncrement atomically appends an event ref and bumps the
	// occurrence counters. Returns ErrNotFound if the issue is terminal or
	// gone.
	AppendEventAndIncrement(ctx context.Context, issueID, eventID uuid.UUID, seenAt time.Time) (*models.Issue, error)
	GetIssue(ctx context.Context, id uuid.UUID, appID uuid.UUID) (*models.Issue, error)
	ListIssues(ctx context.Context, filter IssueFilter) ([]*models.Issue, int, error)
	UpdateIssue(ctx context.Context, id uuid.UUID, appID uuid.UUID, update IssueUpdate) (*models.Issue, error)
	SetUniqueUsersEstimate(ctx context.Context, issueID uuid.UUID, estimate int) error
	// TransactionalMerge absorbs the sources into the target in a single
	// transaction: refs unioned, counts summed, sources resolved with a
	// merged_into pointer. Partial application is never an outcome.
	TransactionalMerge(ctx context.Context, appID, targetID uuid.UUID, sourceIDs []uuid.UUID) (*models.Issue, error)

	CreateAnalysisResult(ctx context.Context, result *models.AnalysisResult) error
	GetLatestAnalysis(ctx context.Context, issueID uuid.UUID) (*models.AnalysisResult, error)
	GetAnalysisByJobID(ctx context.Context, jobID uuid.UUID) (*models.AnalysisResult, error)

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID, appID uuid.UUID) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error
}

// IssueFilter selects issues for listing and brief generation.
type IssueFilter struct {
	AppID       uuid.UUID
	Environment string
	Status      string
	MinSeverity models.Severity
	Since       time.Time
	Page        int
	Limit       int
}

// IssueUpdate carries the mutable fields of a manual issue update. Nil
// fields are left untouched.
type IssueUpdate struct {
	Status         *string
	Severity       *models.Severity
	Title          *string
	Description    *string
	AssignedTo     *string
	ResolutionNote *string
	Tags           []string
}

type jobUpdateParams struct {
	ErrorMessage *string
	IssueID      *uuid.UUID
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithIssueID(id uuid.UUID) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.IssueID = &id
	}
}
