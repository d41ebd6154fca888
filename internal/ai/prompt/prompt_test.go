package prompt

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kiranshivaraju/issuehound/pkg/models"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		rootCause  string
		nextAction string
	}{
		{
			name:       "clean JSON",
			raw:        `{"root_cause": "nil map write", "confidence": 0.9, "summary": "s", "next_action": "fix"}`,
			rootCause:  "nil map write",
			nextAction: models.NextActionFix,
		},
		{
			name:       "fenced JSON",
			raw:        "```json\n{\"root_cause\": \"race on init\", \"next_action\": \"escalate\"}\n```",
			rootCause:  "race on init",
			nextAction: models.NextActionEscalate,
		},
		{
			name:       "prose around the object",
			raw:        `Here is my analysis: {"root_cause": "stale cache", "next_action": "investigate"} Hope that helps!`,
			rootCause:  "stale cache",
			nextAction: models.NextActionInvestigate,
		},
		{
			name:       "unknown next_action falls back to investigate",
			raw:        `{"root_cause": "x", "next_action": "panic"}`,
			rootCause:  "x",
			nextAction: models.NextActionInvestigate,
		},
		{
			name:       "next_action case insensitive",
			raw:        `{"root_cause": "x", "next_action": " Fix "}`,
			rootCause:  "x",
			nextAction: models.NextActionFix,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseReply(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.RootCause != tt.rootCause {
				t.Errorf("root cause: expected %q, got %q", tt.rootCause, result.RootCause)
			}
			if result.NextAction != tt.nextAction {
				t.Errorf("next action: expected %q, got %q", tt.nextAction, result.NextAction)
			}
		})
	}
}

func TestParseReply_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no JSON at all", "I could not determine a root cause."},
		{"empty reply", ""},
		{"malformed JSON", `{"root_cause": `},
		{"missing root_cause", `{"confidence": 0.5, "summary": "s"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReply(tt.raw)
			if !errors.Is(err, models.ErrInvalidResponse) {
				t.Errorf("expected ErrInvalidResponse, got %v", err)
			}
		})
	}
}

func TestParseReply_EmptyPatchBecomesNil(t *testing.T) {
	result, err := ParseReply(`{"root_cause": "x", "suggested_patch": "  "}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SuggestedPatch != nil {
		t.Errorf("blank patch should be dropped, got %q", *result.SuggestedPatch)
	}

	result, err = ParseReply(`{"root_cause": "x", "suggested_patch": "diff --git a/b"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SuggestedPatch == nil || *result.SuggestedPatch != "diff --git a/b" {
		t.Error("real patch should be kept")
	}
}

func TestBuildAnalysis(t *testing.T) {
	req := models.AnalysisRequest{
		AppName:       "shopfront",
		Environment:   models.EnvProd,
		Severity:      models.SeverityP1,
		Title:         "TimeoutError: payment gateway timed out",
		ErrorType:     "TimeoutError",
		SampleMessage: "payment gateway timed out",
		SampleStack:   "at charge (billing.go:42)",
		Route:         "/checkout",
		Occurrences:   12,
		UniqueUsers:   4,
		FirstSeenAt:   time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		LastSeenAt:    time.Date(2026, 3, 1, 11, 30, 0, 0, time.UTC),
	}

	p := BuildAnalysis(req)
	for _, want := range []string{
		"shopfront",
		"TimeoutError",
		"/checkout",
		"payment gateway timed out",
		"billing.go:42",
		`"root_cause"`,
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildAnalysis_OmitsEmptySections(t *testing.T) {
	p := BuildAnalysis(models.AnalysisRequest{AppName: "a", Environment: models.EnvDev, Severity: models.SeverityP3, Title: "t"})
	if strings.Contains(p, "Sample stack trace") {
		t.Error("empty stack should not be rendered")
	}
	if strings.Contains(p, "Error type:") {
		t.Error("empty error type should not be rendered")
	}
}
