package models

import (
	"time"

	"github.com/google/uuid"
)

// Issue statuses. Merged sources are recorded as resolved with a MergedInto
// pointer rather than a distinct status value.
const (
	StatusNew        = "new"
	StatusTriaged    = "triaged"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusSnoozed    = "snoozed"
	StatusWontFix    = "wont_fix"
)

// Issue types.
const (
	IssueTypeBug      = "bug"
	IssueTypeFeature  = "feature"
	IssueTypeFeedback = "feedback"
	IssueTypeQuestion = "question"
)

// TerminalStatus reports whether status excludes the issue from
// fingerprint-based matching of future events.
func TerminalStatus(status string) bool {
	return status == StatusResolved || status == StatusWontFix
}

// validStatusTransitions encodes the issue state machine. wont_fix is
// additionally reachable from any non-terminal state.
var validStatusTransitions = map[string][]string{
	StatusNew:        {StatusTriaged, StatusInProgress},
	StatusTriaged:    {StatusInProgress, StatusSnoozed, StatusResolved},
	StatusInProgress: {StatusResolved, StatusSnoozed},
	StatusSnoozed:    {StatusTriaged, StatusInProgress, StatusResolved},
	StatusResolved:   {StatusTriaged}, // reopen
	StatusWontFix:    {},
}

// ValidStatusTransition reports whether an issue may move from one status to
// another.
func ValidStatusTransition(from, to string) bool {
	if to == StatusWontFix {
		return from != StatusWontFix
	}
	for _, allowed := range validStatusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Issue is the deduplicated, mutable aggregate of one or more events that
// represent a single underlying defect or feedback thread.
//
// When Fingerprint is non-nil it is unique among non-terminal issues within
// the same (app, environment); the store enforces this with a partial unique
// index.
type Issue struct {
	ID          uuid.UUID `db:"id"                  json:"id"`
	AppID       uuid.UUID `db:"app_id"              json:"app_id"`
	Environment string    `db:"environment"         json:"environment"`
	Status      string    `db:"status"              json:"status"`
	Severity    Severity  `db:"severity"            json:"severity"`
	Title       string    `db:"title"               json:"title"`
	Description string    `db:"description"         json:"description"`
	Type        string    `db:"issue_type"          json:"issue_type"`
	Fingerprint *string   `db:"primary_fingerprint" json:"primary_fingerprint,omitempty"`

	EventRefs         []uuid.UUID `db:"event_refs"           json:"event_refs"`
	OccurrencesTotal  int         `db:"occurrences_total"    json:"occurrences_total"`
	Occurrences24h    int         `db:"occurrences_24h"      json:"occurrences_24h"`
	UniqueUsers24hEst int         `db:"unique_users_24h_est" json:"unique_users_24h_est"`

	ReportedBy     *string    `db:"reported_by"      json:"reported_by,omitempty"`
	AssignedTo     *string    `db:"assigned_to"      json:"assigned_to,omitempty"`
	ResolutionNote *string    `db:"resolution_note"  json:"resolution_note,omitempty"`
	MergedInto     *uuid.UUID `db:"merged_into"      json:"merged_into,omitempty"`
	Tags           []string   `db:"tags"             json:"tags,omitempty"`
	LastAnalyzedAt *time.Time `db:"last_analyzed_at" json:"last_analyzed_at,omitempty"`

	CreatedAt  time.Time  `db:"created_at"  json:"created_at"`
	LastSeenAt time.Time  `db:"last_seen_at" json:"last_seen_at"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	UpdatedAt  time.Time  `db:"updated_at"  json:"updated_at"`
}

// IssueSeed carries the fields the aggregator derives from a triggering event
// when no open issue matches its fingerprint.
type IssueSeed struct {
	AppID       uuid.UUID
	Environment string
	Severity    Severity
	Title       string
	Description string
	Type        string
	Fingerprint *string
	ReportedBy  *string
	AssignedTo  *string
	Tags        []string
	EventID     uuid.UUID
	SeenAt      time.Time
}
