package triage

import (
	"fmt"
	"time"

	"github.com/kiranshivaraju/issuehound/pkg/models"
)

// GateConfig holds the thresholds an issue must clear before automated AI
// analysis spends tokens on it.
type GateConfig struct {
	// SeverityFloor is the least urgent severity still eligible.
	SeverityFloor models.Severity
	// MinRecurrence is the minimum occurrences in the last 24h.
	MinRecurrence int
	// CoolDown is the minimum gap between analyses of the same issue.
	CoolDown time.Duration
}

// Decision is the outcome of an eligibility evaluation. Reason is always
// populated so callers can surface why an issue was skipped.
type Decision struct {
	Eligible bool
	Reason   string
}

// Evaluate applies the eligibility gate to an issue. It is pure: all inputs
// come from the issue and config, and now is injected for testability.
//
// The manual force path bypasses this entirely; Evaluate itself never
// considers overrides.
func Evaluate(issue *models.Issue, cfg GateConfig, now time.Time) Decision {
	if models.TerminalStatus(issue.Status) {
		return Decision{Reason: fmt.Sprintf("issue is %s", issue.Status)}
	}

	if !issue.Severity.AtLeast(cfg.SeverityFloor) {
		return Decision{Reason: fmt.Sprintf("severity %s is below the %s floor", issue.Severity, cfg.SeverityFloor)}
	}

	if issue.Occurrences24h < cfg.MinRecurrence {
		return Decision{Reason: fmt.Sprintf("seen %d times in the last 24h, minimum is %d", issue.Occurrences24h, cfg.MinRecurrence)}
	}

	if issue.LastAnalyzedAt != nil {
		elapsed := now.Sub(*issue.LastAnalyzedAt)
		if elapsed < cfg.CoolDown {
			return Decision{Reason: fmt.Sprintf("analyzed %s ago, cool-down is %s", elapsed.Round(time.Minute), cfg.CoolDown)}
		}
	}

	return Decision{Eligible: true, Reason: "eligible for analysis"}
}
