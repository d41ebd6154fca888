// Package models contains shared data models used across the IssueHound codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types accepted from client SDKs.
const (
	EventTypeFrontendError = "frontend_error"
	EventTypeBackendError  = "backend_error"
	EventTypeFeedback      = "feedback"
	EventTypeQuestion      = "question"
)

// Deployment environments.
const (
	EnvProd  = "prod"
	EnvStage = "stage"
	EnvDev   = "dev"
)

// ValidEventType reports whether t is a known event type.
func ValidEventType(t string) bool {
	switch t {
	case EventTypeFrontendError, EventTypeBackendError, EventTypeFeedback, EventTypeQuestion:
		return true
	}
	return false
}

// ValidEnvironment reports whether env is a known environment.
func ValidEnvironment(env string) bool {
	switch env {
	case EnvProd, EnvStage, EnvDev:
		return true
	}
	return false
}

// IsErrorType reports whether t is an error-class event type. Only error-class
// events are fingerprinted; feedback and questions never dedup automatically.
func IsErrorType(t string) bool {
	return t == EventTypeFrontendError || t == EventTypeBackendError
}

// EventUser identifies the user a telemetry event was captured for.
// Anonymous users carry no ID and are never recorded as reporters.
type EventUser struct {
	ID        string `json:"id,omitempty"`
	Role      string `json:"role,omitempty"`
	Anonymous bool   `json:"anonymous"`
}

// ErrorPayload is the payload variant for frontend_error and backend_error
// events.
type ErrorPayload struct {
	Message    string         `json:"message"`
	Stack      string         `json:"stack,omitempty"`
	ErrorType  string         `json:"error_type,omitempty"`
	HTTPStatus int            `json:"http_status,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

// FeedbackPayload is the payload variant for feedback and question events.
type FeedbackPayload struct {
	Description       string         `json:"description"`
	ReproductionSteps string         `json:"reproduction_steps,omitempty"`
	Category          string         `json:"category,omitempty"`
	Context           map[string]any `json:"context,omitempty"`
}

// EventPayload is a tagged union keyed by the event's Type: exactly one
// variant is non-nil for a well-formed event.
type EventPayload struct {
	Error    *ErrorPayload    `json:"error,omitempty"`
	Feedback *FeedbackPayload `json:"feedback,omitempty"`
}

// Event is a single immutable telemetry observation. Events are created once
// on ingestion and never mutated afterwards, except to attach post-hoc
// attachment references.
type Event struct {
	ID             uuid.UUID    `db:"id"              json:"id"`
	AppID          uuid.UUID    `db:"app_id"          json:"app_id"`
	Environment    string       `db:"environment"     json:"environment"`
	Type           string       `db:"event_type"      json:"event_type"`
	Timestamp      time.Time    `db:"occurred_at"     json:"timestamp"`
	SessionID      string       `db:"session_id"      json:"session_id,omitempty"`
	Route          string       `db:"route"           json:"route_or_url,omitempty"`
	Version        string       `db:"version"         json:"version,omitempty"`
	User           *EventUser   `db:"user_info"       json:"user,omitempty"`
	Payload        EventPayload `db:"payload"         json:"payload"`
	Fingerprint    *string      `db:"fingerprint"     json:"fingerprint,omitempty"`
	TraceID        *string      `db:"trace_id"        json:"trace_id,omitempty"`
	AttachmentKeys []string     `db:"attachment_keys" json:"attachment_ids,omitempty"`
	CreatedAt      time.Time    `db:"created_at"      json:"created_at"`
}
