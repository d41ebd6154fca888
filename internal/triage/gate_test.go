package triage

import (
	"testing"
	"time"

	"github.com/kiranshivaraju/issuehound/pkg/models"
)

var gateNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func gateCfg() GateConfig {
	return GateConfig{
		SeverityFloor: models.SeverityP2,
		MinRecurrence: 3,
		CoolDown:      time.Hour,
	}
}

func gatedIssue() *models.Issue {
	return &models.Issue{
		Status:         models.StatusNew,
		Severity:       models.SeverityP1,
		Occurrences24h: 5,
	}
}

func TestEvaluate(t *testing.T) {
	analyzedRecently := gateNow.Add(-30 * time.Minute)
	analyzedLongAgo := gateNow.Add(-90 * time.Minute)

	tests := []struct {
		name     string
		mutate   func(*models.Issue)
		eligible bool
	}{
		{
			name:     "all thresholds cleared",
			mutate:   func(*models.Issue) {},
			eligible: true,
		},
		{
			name:     "resolved issue never eligible",
			mutate:   func(i *models.Issue) { i.Status = models.StatusResolved },
			eligible: false,
		},
		{
			name:     "wont_fix issue never eligible",
			mutate:   func(i *models.Issue) { i.Status = models.StatusWontFix },
			eligible: false,
		},
		{
			name:     "snoozed issue stays eligible",
			mutate:   func(i *models.Issue) { i.Status = models.StatusSnoozed },
			eligible: true,
		},
		{
			name:     "severity below floor",
			mutate:   func(i *models.Issue) { i.Severity = models.SeverityP3 },
			eligible: false,
		},
		{
			name:     "severity exactly at floor",
			mutate:   func(i *models.Issue) { i.Severity = models.SeverityP2 },
			eligible: true,
		},
		{
			name:     "recurrence below minimum",
			mutate:   func(i *models.Issue) { i.Occurrences24h = 2 },
			eligible: false,
		},
		{
			name:     "recurrence exactly at minimum",
			mutate:   func(i *models.Issue) { i.Occurrences24h = 3 },
			eligible: true,
		},
		{
			name:     "analyzed within cool-down",
			mutate:   func(i *models.Issue) { i.LastAnalyzedAt = &analyzedRecently },
			eligible: false,
		},
		{
			name:     "cool-down elapsed",
			mutate:   func(i *models.Issue) { i.LastAnalyzedAt = &analyzedLongAgo },
			eligible: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issue := gatedIssue()
			tt.mutate(issue)

			decision := Evaluate(issue, gateCfg(), gateNow)
			if decision.Eligible != tt.eligible {
				t.Errorf("expected eligible=%v, got %v (%s)", tt.eligible, decision.Eligible, decision.Reason)
			}
			if decision.Reason == "" {
				t.Error("decision reason should always be populated")
			}
		})
	}
}

func TestEvaluate_ChecksInOrder(t *testing.T) {
	// A terminal issue that also fails every other threshold must report its
	// status, not a downstream reason.
	issue := gatedIssue()
	issue.Status = models.StatusResolved
	issue.Severity = models.SeverityP3
	issue.Occurrences24h = 0

	decision := Evaluate(issue, gateCfg(), gateNow)
	if decision.Reason != "issue is resolved" {
		t.Errorf("expected status reason first, got %q", decision.Reason)
	}
}
