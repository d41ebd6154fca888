// Package prompt builds analysis prompts and parses structured model
// replies. It is shared by every provider so they all speak the same
// request/response contract.
package prompt

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/kiranshivaraju/issuehound/pkg/models"
)

// BuildAnalysis renders the root-cause analysis prompt for a sanitized
// issue snapshot. Callers are responsible for redacting the snapshot
// before it gets here.
func BuildAnalysis(req models.AnalysisRequest) string {
	var b strings.Builder

	b.WriteString("You are a senior engineer triaging a production issue. ")
	b.WriteString("Analyze the following aggregated error report and respond with ONLY a JSON object, no prose, matching this schema:\n")
	b.WriteString(`{"root_cause": string, "confidence": number between 0 and 1, "summary": string, "next_action": "fix"|"investigate"|"ignore"|"escalate", "suggested_patch": string or null}`)
	b.WriteString("\n\nIssue report:\n")

	fmt.Fprintf(&b, "App: %s\n", req.AppName)
	fmt.Fprintf(&b, "Environment: %s\n", req.Environment)
	fmt.Fprintf(&b, "Severity: %s\n", req.Severity)
	fmt.Fprintf(&b, "Title: %s\n", req.Title)
	if req.ErrorType != "" {
		fmt.Fprintf(&b, "Error type: %s\n", req.ErrorType)
	}
	if req.Route != "" {
		fmt.Fprintf(&b, "Route: %s\n", req.Route)
	}
	fmt.Fprintf(&b, "Occurrences: %d (distinct users affected in last 24h: ~%d)\n", req.Occurrences, req.UniqueUsers)
	fmt.Fprintf(&b, "First seen: %s\nLast seen: %s\n", req.FirstSeenAt.UTC().Format("2006-01-02 15:04:05"), req.LastSeenAt.UTC().Format("2006-01-02 15:04:05"))
	if req.SampleMessage != "" {
		fmt.Fprintf(&b, "\nSample message:\n%s\n", req.SampleMessage)
	}
	if req.SampleStack != "" {
		fmt.Fprintf(&b, "\nSample stack trace:\n%s\n", req.SampleStack)
	}

	return b.String()
}

type reply struct {
	RootCause      string  `json:"root_cause"`
	Confidence     float64 `json:"confidence"`
	Summary        string  `json:"summary"`
	NextAction     string  `json:"next_action"`
	SuggestedPatch *string `json:"suggested_patch"`
}

var validNextActions = map[string]bool{
	models.NextActionFix:         true,
	models.NextActionInvestigate: true,
	models.NextActionIgnore:      true,
	models.NextActionEscalate:    true,
}

// ParseReply extracts the structured analysis from a raw model reply.
// Models occasionally wrap the JSON in code fences or prose; we take the
// outermost braces and parse those. Returns models.ErrInvalidResponse
// when no usable JSON object is found.
func ParseReply(raw string) (models.AnalysisResult, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return models.AnalysisResult{}, fmt.Errorf("%w: no JSON object in reply", models.ErrInvalidResponse)
	}

	var r reply
	if err := json.Unmarshal([]byte(raw[start:end+1]), &r); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("%w: %v", models.ErrInvalidResponse, err)
	}
	if r.RootCause == "" {
		return models.AnalysisResult{}, fmt.Errorf("%w: missing root_cause", models.ErrInvalidResponse)
	}

	action := strings.ToLower(strings.TrimSpace(r.NextAction))
	if !validNextActions[action] {
		action = models.NextActionInvestigate
	}

	patch := r.SuggestedPatch
	if patch != nil && strings.TrimSpace(*patch) == "" {
		patch = nil
	}

	return models.AnalysisResult{
		RootCause:      r.RootCause,
		Confidence:     r.Confidence,
		Summary:        r.Summary,
		NextAction:     action,
		SuggestedPatch: patch,
	}, nil
}
