package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/issuehound/pkg/models"
)

// MemoryStore is an in-memory Store used by unit tests. A single mutex
// guards all state, which gives it the same atomicity the Postgres
// implementation gets from its unique index and single-statement updates:
// find-or-create races resolve to ErrDuplicateKey for the loser, and
// concurrent increments never lose updates.
type MemoryStore struct {
	mu       sync.Mutex
	apps     map[uuid.UUID]*models.App
	keys     map[uuid.UUID]*models.APIKey
	events   map[uuid.UUID]*models.Event
	issues   map[uuid.UUID]*models.Issue
	analyses []*models.AnalysisResult
	jobs     map[uuid.UUID]*models.Job
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		apps:   map[uuid.UUID]*models.App{},
		keys:   map[uuid.UUID]*models.APIKey{},
		events: map[uuid.UUID]*models.Event{},
		issues: map[uuid.UUID]*models.Issue{},
		jobs:   map[uuid.UUID]*models.Job{},
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) CreateApp(_ context.Context, app *models.App) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *app
	s.apps[app.ID] = &cp
	return nil
}

func (s *MemoryStore) GetApp(_ context.Context, id uuid.UUID) (*models.App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *app
	return &cp, nil
}

func (s *MemoryStore) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.keys[id]; ok {
		now := time.Now().UTC()
		k.LastUsedAt = &now
	}
	return nil
}

func (s *MemoryStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *key
	s.keys[key.ID] = &cp
	return nil
}

func (s *MemoryStore) ListAPIKeys(_ context.Context, appID uuid.UUID) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.AppID == appID && k.DeletedAt == nil {
			cp := *k
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) RevokeAPIKey(_ context.Context, id uuid.UUID, appID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok || k.AppID != appID || k.DeletedAt != nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	k.DeletedAt = &now
	return nil
}

func (s *MemoryStore) CreateEvent(_ context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *event
	s.events[event.ID] = &cp
	return nil
}

func (s *MemoryStore) AttachEventFiles(_ context.Context, eventID uuid.UUID, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return ErrNotFound
	}
	e.AttachmentKeys = append(e.AttachmentKeys, keys...)
	return nil
}

func (s *MemoryStore) GetEvent(_ context.Context, id uuid.UUID, appID uuid.UUID) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok || e.AppID != appID {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) FindOpenIssueByFingerprint(_ context.Context, appID uuid.UUID, environment, fp string) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue := s.findOpenLocked(appID, environment, fp)
	if issue == nil {
		return nil, ErrNotFound
	}
	cp := *issue
	return &cp, nil
}

func (s *MemoryStore) findOpenLocked(appID uuid.UUID, environment, fp string) *models.Issue {
	for _, issue := range s.issues {
		if issue.AppID == appID && issue.Environment == environment &&
			issue.Fingerprint != nil && *issue.Fingerprint == fp &&
			!models.TerminalStatus(issue.Status) {
			return issue
		}
	}
	return nil
}

func (s *MemoryStore) CreateIssue(_ context.Context, seed models.IssueSeed) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seed.Fingerprint != nil {
		if existing := s.findOpenLocked(seed.AppID, seed.Environment, *seed.Fingerprint); existing != nil {
			return nil, ErrDuplicateKey
		}
	}

	issue := &models.Issue{
		ID:               uuid.New(),
		AppID:            seed.AppID,
		Environment:      seed.Environment,
		Status:           models.StatusNew,
		Severity:         seed.Severity,
		Title:            seed.Title,
		Description:      seed.Description,
		Type:             seed.Type,
		Fingerprint:      seed.Fingerprint,
		EventRefs:        []uuid.UUID{seed.EventID},
		OccurrencesTotal: 1,
		Occurrences24h:   1,
		ReportedBy:       seed.ReportedBy,
		AssignedTo:       seed.AssignedTo,
		Tags:             seed.Tags,
		CreatedAt:        seed.SeenAt,
		LastSeenAt:       seed.SeenAt,
		UpdatedAt:        seed.SeenAt,
	}
	s.issues[issue.ID] = issue
	cp := *issue
	return &cp, nil
}

func (s *MemoryStore) AppendEventAndIncrement(_ context.Context, issueID, eventID uuid.UUID, seenAt time.Time) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issue, ok := s.issues[issueID]
	if !ok || models.TerminalStatus(issue.Status) {
		return nil, ErrNotFound
	}

	found := false
	for _, r := range issue.EventRefs {
		if r == eventID {
			found = true
			break
		}
	}
	if !found {
		issue.EventRefs = append(issue.EventRefs, eventID)
	}
	issue.OccurrencesTotal++
	if seenAt.Sub(issue.LastSeenAt) > 24*time.Hour {
		issue.Occurrences24h = 1
	} else {
		issue.Occurrences24h++
	}
	if seenAt.After(issue.LastSeenAt) {
		issue.LastSeenAt = seenAt
	}
	issue.UpdatedAt = time.Now().UTC()

	cp := *issue
	cp.EventRefs = append([]uuid.UUID{}, issue.EventRefs...)
	return &cp, nil
}

func (s *MemoryStore) GetIssue(_ context.Context, id uuid.UUID, appID uuid.UUID) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[id]
	if !ok || issue.AppID != appID {
		return nil, ErrNotFound
	}
	cp := *issue
	cp.EventRefs = append([]uuid.UUID{}, issue.EventRefs...)
	return &cp, nil
}

func (s *MemoryStore) ListIssues(_ context.Context, filter IssueFilter) ([]*models.Issue, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Issue
	for _, issue := range s.issues {
		if issue.AppID != filter.AppID {
			continue
		}
		if filter.Environment != "" && issue.Environment != filter.Environment {
			continue
		}
		if filter.Status != "" && issue.Status != filter.Status {
			continue
		}
		if filter.MinSeverity.Valid() && !issue.Severity.AtLeast(filter.MinSeverity) {
			continue
		}
		if !filter.Since.IsZero() && issue.LastSeenAt.Before(filter.Since) {
			continue
		}
		cp := *issue
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeenAt.After(out[j].LastSeenAt) })
	return out, len(out), nil
}

func (s *MemoryStore) UpdateIssue(_ context.Context, id uuid.UUID, appID uuid.UUID, update IssueUpdate) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issue, ok := s.issues[id]
	if !ok || issue.AppID != appID {
		return nil, ErrNotFound
	}

	if update.Status != nil {
		issue.Status = *update.Status
		if models.TerminalStatus(*update.Status) {
			now := time.Now().UTC()
			issue.ResolvedAt = &now
		} else {
			if issue.Fingerprint != nil {
				if other := s.findOpenLocked(issue.AppID, issue.Environment, *issue.Fingerprint); other != nil && other.ID != issue.ID {
					return nil, ErrDuplicateKey
				}
			}
			issue.ResolvedAt = nil
			issue.MergedInto = nil
		}
	}
	if update.Severity != nil {
		issue.Severity = *update.Severity
	}
	if update.Title != nil {
		issue.Title = *update.Title
	}
	if update.Description != nil {
		issue.Description = *update.Description
	}
	if update.AssignedTo != nil {
		issue.AssignedTo = update.AssignedTo
	}
	if update.ResolutionNote != nil {
		issue.ResolutionNote = update.ResolutionNote
	}
	if update.Tags != nil {
		issue.Tags = update.Tags
	}
	issue.UpdatedAt = time.Now().UTC()

	cp := *issue
	return &cp, nil
}

func (s *MemoryStore) SetUniqueUsersEstimate(_ context.Context, issueID uuid.UUID, estimate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if issue, ok := s.issues[issueID]; ok {
		issue.UniqueUsers24hEst = estimate
	}
	return nil
}

func (s *MemoryStore) TransactionalMerge(_ context.Context, appID, targetID uuid.UUID, sourceIDs []uuid.UUID) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.issues[targetID]
	if !ok || target.AppID != appID {
		return nil, ErrNotFound
	}

	// Validate everything up front so the merge is all-or-nothing.
	sources := make([]*models.Issue, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		src, ok := s.issues[id]
		if !ok || src.AppID != appID || src.ID == targetID {
			return nil, ErrNotFound
		}
		sources = append(sources, src)
	}

	refSet := make(map[uuid.UUID]bool, len(target.EventRefs))
	for _, r := range target.EventRefs {
		refSet[r] = true
	}

	now := time.Now().UTC()
	for _, src := range sources {
		target.OccurrencesTotal += src.OccurrencesTotal
		target.Occurrences24h += src.Occurrences24h
		if src.LastSeenAt.After(target.LastSeenAt) {
			target.LastSeenAt = src.LastSeenAt
		}
		for _, r := range src.EventRefs {
			if !refSet[r] {
				refSet[r] = true
				target.EventRefs = append(target.EventRefs, r)
			}
		}
		src.Status = models.StatusResolved
		tid := targetID
		src.MergedInto = &tid
		resolvedAt := now
		src.ResolvedAt = &resolvedAt
		src.UpdatedAt = now
	}
	target.UpdatedAt = now

	cp := *target
	cp.EventRefs = append([]uuid.UUID{}, target.EventRefs...)
	return &cp, nil
}

func (s *MemoryStore) CreateAnalysisResult(_ context.Context, result *models.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *result
	s.analyses = append(s.analyses, &cp)
	if issue, ok := s.issues[result.IssueID]; ok {
		at := result.CreatedAt
		issue.LastAnalyzedAt = &at
	}
	return nil
}

func (s *MemoryStore) GetLatestAnalysis(_ context.Context, issueID uuid.UUID) (*models.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.AnalysisResult
	for _, r := range s.analyses {
		if r.IssueID == issueID && (latest == nil || r.CreatedAt.After(latest.CreatedAt)) {
			latest = r
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) GetAnalysisByJobID(_ context.Context, jobID uuid.UUID) (*models.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.analyses {
		if r.JobID == jobID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id uuid.UUID, appID uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.AppID != appID {
		return nil, ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *MemoryStore) UpdateJobStatus(_ context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}

	now := time.Now().UTC()
	job.Status = status
	job.UpdatedAt = now
	if status == models.JobStatusRunning {
		job.StartedAt = &now
	}
	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		job.CompletedAt = &now
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.IssueID != nil {
		job.IssueID = params.IssueID
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
