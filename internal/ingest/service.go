// Package ingest implements the event intake pipeline: validation,
// redaction, fingerprinting, and aggregation into issues.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kiranshivaraju/issuehound/internal/cache"
	"github.com/kiranshivaraju/issuehound/internal/fingerprint"
	"github.com/kiranshivaraju/issuehound/internal/redact"
	"github.com/kiranshivaraju/issuehound/internal/severity"
	"github.com/kiranshivaraju/issuehound/internal/store"
	"github.com/kiranshivaraju/issuehound/pkg/models"
)

const (
	// MaxBatchSize caps a single batch ingest request.
	MaxBatchSize = 100

	batchConcurrency = 8
	titleMaxRunes    = 60
)

// Archiver receives accepted events for cold storage. Implementations must
// not block; a nil Archiver disables archiving.
type Archiver interface {
	Enqueue(event *models.Event)
}

// BlobStore persists raw attachment bytes and returns a storage key.
type BlobStore interface {
	PutAttachment(ctx context.Context, appID, eventID uuid.UUID, filename, contentType string, data []byte) (string, error)
}

// TriageNotifier is poked after an occurrence lands on an error issue.
type TriageNotifier interface {
	NotifyIngest(issue *models.Issue)
}

// RejectionError marks a per-event business failure (malformed payload,
// unknown profile). Infrastructure failures are returned as plain errors.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string { return "event rejected: " + e.Reason }

func reject(format string, args ...any) error {
	return &RejectionError{Reason: fmt.Sprintf(format, args...)}
}

// RawEvent is the wire shape SDKs post to the ingest endpoints. The app is
// taken from the authenticated API key, never from the body.
type RawEvent struct {
	Type        string                  `json:"event_type"`
	Environment string                  `json:"environment"`
	Timestamp   *time.Time              `json:"timestamp,omitempty"`
	SessionID   string                  `json:"session_id,omitempty"`
	Route       string                  `json:"route_or_url,omitempty"`
	Version     string                  `json:"version,omitempty"`
	User        *models.EventUser       `json:"user,omitempty"`
	TraceID     *string                 `json:"trace_id,omitempty"`
	Error       *models.ErrorPayload    `json:"error,omitempty"`
	Feedback    *models.FeedbackPayload `json:"feedback,omitempty"`
	// Profile optionally names the redaction profile to apply.
	Profile string `json:"redaction_profile,omitempty"`
}

// Result reports what ingestion did with one event.
type Result struct {
	Event       *models.Event
	Issue       *models.Issue
	IsNewIssue  bool
	Redactions  int
	Fingerprint *string
}

// BatchItem is the per-event outcome of a batch ingest.
type BatchItem struct {
	Index    int        `json:"index"`
	Accepted bool       `json:"accepted"`
	Reason   string     `json:"reason,omitempty"`
	EventID  *uuid.UUID `json:"event_id,omitempty"`
	IssueID  *uuid.UUID `json:"issue_id,omitempty"`
}

// Service runs the intake pipeline.
type Service struct {
	store          store.Store
	cache          cache.Cache
	profiles       *redact.Registry
	defaultProfile string
	archiver       Archiver
	blobs          BlobStore
	triage         TriageNotifier
}

// NewService creates an ingest Service. archiver, blobs, and triage may be
// nil; the corresponding steps are skipped.
func NewService(st store.Store, ca cache.Cache, profiles *redact.Registry, defaultProfile string, archiver Archiver, blobs BlobStore, triage TriageNotifier) *Service {
	return &Service{
		store:          st,
		cache:          ca,
		profiles:       profiles,
		defaultProfile: defaultProfile,
		archiver:       archiver,
		blobs:          blobs,
		triage:         triage,
	}
}

// ProcessEvent runs one event through the full pipeline. A *RejectionError
// return means the event itself was bad; any other error is infrastructure.
func (s *Service) ProcessEvent(ctx context.Context, appID uuid.UUID, raw RawEvent) (*Result, error) {
	app, err := s.store.GetApp(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("loading app: %w", err)
	}

	profile, err := s.resolveProfile(raw.Profile)
	if err != nil {
		return nil, err
	}

	event, redactions, err := s.buildEvent(appID, raw, profile)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("storing event: %w", err)
	}

	issue, isNew, err := s.aggregate(ctx, app, event)
	if err != nil {
		return nil, fmt.Errorf("aggregating event %s: %w", event.ID, err)
	}

	s.recordUniqueUser(ctx, issue, event)

	if s.archiver != nil {
		s.archiver.Enqueue(event)
	}
	if s.triage != nil && event.Fingerprint != nil {
		s.triage.NotifyIngest(issue)
	}

	return &Result{
		Event:       event,
		Issue:       issue,
		IsNewIssue:  isNew,
		Redactions:  redactions,
		Fingerprint: event.Fingerprint,
	}, nil
}

// ProcessBatch ingests up to MaxBatchSize events with bounded concurrency.
// One bad or failing event never aborts its siblings; every outcome is
// reported per item.
func (s *Service) ProcessBatch(ctx context.Context, appID uuid.UUID, raws []RawEvent) ([]BatchItem, error) {
	if len(raws) == 0 {
		return nil, reject("batch is empty")
	}
	if len(raws) > MaxBatchSize {
		return nil, reject("batch of %d exceeds the maximum of %d", len(raws), MaxBatchSize)
	}

	items := make([]BatchItem, len(raws))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, raw := range raws {
		g.Go(func() error {
			item := BatchItem{Index: i}
			res, err := s.ProcessEvent(gctx, appID, raw)
			switch {
			case err == nil:
				item.Accepted = true
				item.EventID = &res.Event.ID
				if res.Issue != nil {
					item.IssueID = &res.Issue.ID
				}
			default:
				var rejErr *RejectionError
				if errors.As(err, &rejErr) {
					item.Reason = rejErr.Reason
				} else {
					slog.Error("batch ingest item failed", "app_id", appID, "index", i, "error", err)
					item.Reason = "internal error"
				}
			}
			items[i] = item
			return nil
		})
	}
	_ = g.Wait()

	return items, nil
}

// MergeIssues absorbs the source issues into the target. All issues must
// belong to the same app; the store applies the merge transactionally.
func (s *Service) MergeIssues(ctx context.Context, appID, targetID uuid.UUID, sourceIDs []uuid.UUID) (*models.Issue, error) {
	if len(sourceIDs) == 0 {
		return nil, reject("no source issues given")
	}

	seen := map[uuid.UUID]bool{targetID: true}
	deduped := make([]uuid.UUID, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		if id == targetID {
			return nil, reject("target issue cannot be merged into itself")
		}
		if !seen[id] {
			seen[id] = true
			deduped = append(deduped, id)
		}
	}

	return s.store.TransactionalMerge(ctx, appID, targetID, deduped)
}

// Attachment is one uploaded file accompanying an event.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// AttachFiles uploads attachments for an existing event and records their
// storage keys on it.
func (s *Service) AttachFiles(ctx context.Context, appID, eventID uuid.UUID, files []Attachment) ([]string, error) {
	if s.blobs == nil {
		return nil, reject("attachment storage is not enabled")
	}
	if len(files) == 0 {
		return nil, reject("no files given")
	}

	if _, err := s.store.GetEvent(ctx, eventID, appID); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(files))
	for _, f := range files {
		key, err := s.blobs.PutAttachment(ctx, appID, eventID, f.Filename, f.ContentType, f.Data)
		if err != nil {
			return nil, fmt.Errorf("uploading %q: %w", f.Filename, err)
		}
		keys = append(keys, key)
	}

	if err := s.store.AttachEventFiles(ctx, eventID, keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Service) resolveProfile(name string) (redact.Profile, error) {
	if name == "" {
		name = s.defaultProfile
	}
	profile, ok := s.profiles.Resolve(name)
	if !ok {
		return redact.Profile{}, reject("unknown redaction profile %q", name)
	}
	return profile, nil
}

// buildEvent validates the raw event and assembles the immutable Event
// record with all free text already redacted.
func (s *Service) buildEvent(appID uuid.UUID, raw RawEvent, profile redact.Profile) (*models.Event, int, error) {
	if !models.ValidEventType(raw.Type) {
		return nil, 0, reject("unknown event_type %q", raw.Type)
	}
	if !models.ValidEnvironment(raw.Environment) {
		return nil, 0, reject("unknown environment %q", raw.Environment)
	}
	if raw.Error != nil && raw.Feedback != nil {
		return nil, 0, reject("event carries both error and feedback payloads")
	}

	now := time.Now().UTC()
	ts := now
	if raw.Timestamp != nil {
		ts = raw.Timestamp.UTC()
		// Client clocks drift; anything claiming to be from the future is
		// clamped to arrival time.
		if ts.After(now.Add(5 * time.Minute)) {
			ts = now
		}
	}

	event := &models.Event{
		ID:          uuid.New(),
		AppID:       appID,
		Environment: raw.Environment,
		Type:        raw.Type,
		Timestamp:   ts,
		SessionID:   raw.SessionID,
		Route:       raw.Route,
		Version:     raw.Version,
		User:        raw.User,
		TraceID:     raw.TraceID,
		CreatedAt:   now,
	}

	var redactions int
	switch {
	case models.IsErrorType(raw.Type):
		if raw.Error == nil || strings.TrimSpace(raw.Error.Message) == "" {
			return nil, 0, reject("%s event requires an error payload with a message", raw.Type)
		}
		p, n := redactErrorPayload(raw.Error, profile)
		redactions = n
		event.Payload.Error = p

		fp := fingerprint.Compute(fingerprint.Input{
			ErrorType: p.ErrorType,
			Message:   p.Message,
			Stack:     p.Stack,
			Route:     raw.Route,
		})
		event.Fingerprint = &fp

	default:
		if raw.Feedback == nil || strings.TrimSpace(raw.Feedback.Description) == "" {
			return nil, 0, reject("%s event requires a feedback payload with a description", raw.Type)
		}
		p, n := redactFeedbackPayload(raw.Feedback, profile)
		redactions = n
		event.Payload.Feedback = p
	}

	return event, redactions, nil
}

func redactErrorPayload(p *models.ErrorPayload, profile redact.Profile) (*models.ErrorPayload, int) {
	cp := *p
	var total int

	cp.Message, total = redact.String(p.Message, profile)
	stack, n := redact.String(p.Stack, profile)
	cp.Stack = stack
	total += n

	if p.Context != nil {
		redacted, n := redact.Tree(p.Context, profile, redact.DefaultMaxDepth)
		total += n
		if m, ok := redacted.(map[string]any); ok {
			cp.Context = m
		}
	}
	return &cp, total
}

func redactFeedbackPayload(p *models.FeedbackPayload, profile redact.Profile) (*models.FeedbackPayload, int) {
	cp := *p
	var total int

	cp.Description, total = redact.String(p.Description, profile)
	steps, n := redact.String(p.ReproductionSteps, profile)
	cp.ReproductionSteps = steps
	total += n

	if p.Context != nil {
		redacted, n := redact.Tree(p.Context, profile, redact.DefaultMaxDepth)
		total += n
		if m, ok := redacted.(map[string]any); ok {
			cp.Context = m
		}
	}
	return &cp, total
}

// aggregate attaches the event to an issue: fingerprinted events find or
// create the open issue for their fingerprint, everything else always opens
// a fresh issue.
func (s *Service) aggregate(ctx context.Context, app *models.App, event *models.Event) (*models.Issue, bool, error) {
	if event.Fingerprint == nil {
		issue, err := s.store.CreateIssue(ctx, s.seedFromEvent(app, event))
		if err != nil {
			return nil, false, err
		}
		return issue, true, nil
	}

	fp := *event.Fingerprint
	// Two passes close the race against a concurrent creator: if our insert
	// loses on the unique index, the second pass appends to the winner.
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.store.FindOpenIssueByFingerprint(ctx, event.AppID, event.Environment, fp)
		if err == nil {
			updated, err := s.store.AppendEventAndIncrement(ctx, existing.ID, event.ID, event.Timestamp)
			if err == nil {
				return updated, false, nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return nil, false, err
			}
			// Issue went terminal between find and append; create a new one.
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, false, err
		}

		created, err := s.store.CreateIssue(ctx, s.seedFromEvent(app, event))
		if err == nil {
			return created, true, nil
		}
		if !errors.Is(err, store.ErrDuplicateKey) {
			return nil, false, err
		}
	}
	return nil, false, fmt.Errorf("find-or-create did not converge for fingerprint %s", fp)
}

func (s *Service) seedFromEvent(app *models.App, event *models.Event) models.IssueSeed {
	seed := models.IssueSeed{
		AppID:       event.AppID,
		Environment: event.Environment,
		Severity:    severity.Classify(event),
		Fingerprint: event.Fingerprint,
		AssignedTo:  app.FirstOwner(),
		EventID:     event.ID,
		SeenAt:      event.Timestamp,
	}

	if event.User != nil && !event.User.Anonymous && event.User.ID != "" {
		reporter := event.User.ID
		seed.ReportedBy = &reporter
	}

	switch {
	case event.Payload.Error != nil:
		p := event.Payload.Error
		seed.Type = models.IssueTypeBug
		seed.Title = deriveTitle(errorTitle(p))
		seed.Description = p.Message
	case event.Payload.Feedback != nil:
		p := event.Payload.Feedback
		seed.Type = feedbackIssueType(event.Type, p.Category)
		seed.Title = deriveTitle(p.Description)
		seed.Description = p.Description
	}
	return seed
}

func errorTitle(p *models.ErrorPayload) string {
	errType := p.ErrorType
	if errType == "" {
		errType = fingerprint.UnknownErrorType
	}
	return errType + ": " + p.Message
}

func feedbackIssueType(eventType, category string) string {
	if eventType == models.EventTypeQuestion {
		return models.IssueTypeQuestion
	}
	switch category {
	case "bug":
		return models.IssueTypeBug
	case "feature":
		return models.IssueTypeFeature
	default:
		return models.IssueTypeFeedback
	}
}

// deriveTitle collapses whitespace and truncates to a single short line.
func deriveTitle(s string) string {
	fields := strings.Fields(s)
	title := strings.Join(fields, " ")
	runes := []rune(title)
	if len(runes) <= titleMaxRunes {
		return title
	}
	return string(runes[:titleMaxRunes-1]) + "…"
}

// recordUniqueUser feeds the per-issue distinct user estimate. Best effort:
// a cache outage degrades the estimate, never the ingestion.
func (s *Service) recordUniqueUser(ctx context.Context, issue *models.Issue, event *models.Event) {
	if issue == nil || event.User == nil || event.User.Anonymous || event.User.ID == "" {
		return
	}

	est, err := s.cache.AddUniqueUser(ctx, issue.ID, event.Timestamp, event.User.ID)
	if err != nil {
		slog.Warn("unique user tracking failed", "issue_id", issue.ID, "error", err)
		return
	}
	if err := s.store.SetUniqueUsersEstimate(ctx, issue.ID, int(est)); err != nil {
		slog.Warn("persisting unique user estimate failed", "issue_id", issue.ID, "error", err)
		return
	}
	issue.UniqueUsers24hEst = int(est)
}
