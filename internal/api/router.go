package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/kiranshivaraju/issuehound/internal/api/middleware"
	"github.com/kiranshivaraju/issuehound/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	IngestHandler      http.HandlerFunc
	BatchIngestHandler http.HandlerFunc
	AttachmentsHandler http.HandlerFunc

	ListIssuesHandler  http.HandlerFunc
	GetIssueHandler    http.HandlerFunc
	UpdateIssueHandler http.HandlerFunc
	MergeIssuesHandler http.HandlerFunc

	AnalyzeHandler http.HandlerFunc
	PollJobHandler http.HandlerFunc

	BriefHandler http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/events", orNotImplemented(deps.IngestHandler))
		r.Post("/api/v1/events/batch", orNotImplemented(deps.BatchIngestHandler))
		r.Post("/api/v1/events/{eventID}/attachments", orNotImplemented(deps.AttachmentsHandler))

		r.Get("/api/v1/issues", orNotImplemented(deps.ListIssuesHandler))
		r.Post("/api/v1/issues/merge", orNotImplemented(deps.MergeIssuesHandler))
		r.Get("/api/v1/issues/{issueID}", orNotImplemented(deps.GetIssueHandler))
		r.Patch("/api/v1/issues/{issueID}", orNotImplemented(deps.UpdateIssueHandler))
		r.Post("/api/v1/issues/{issueID}/analyze", orNotImplemented(deps.AnalyzeHandler))

		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.PollJobHandler))
		r.Get("/api/v1/brief", orNotImplemented(deps.BriefHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
