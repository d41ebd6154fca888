// Package score ranks issues for digest inclusion. Scoring is a pure
// function over the issue collection; it runs on demand, never as part of
// ingestion.
package score

import (
	"sort"
	"time"

	"github.com/kiranshivaraju/issuehound/pkg/models"
)

// Config controls selection for a brief.
type Config struct {
	MaxItems int
	// MinItems is advisory: callers use it to decide whether to suppress a
	// sparse digest. Selection never pads to reach it.
	MinItems              int
	MinSeverity           models.Severity
	IncludeRecentlyClosed bool
}

// DefaultConfig matches the daily digest defaults.
func DefaultConfig() Config {
	return Config{
		MaxItems:    10,
		MinItems:    1,
		MinSeverity: models.SeverityP3,
	}
}

// Severity base weights.
var severityWeight = map[models.Severity]int{
	models.SeverityP0: 100,
	models.SeverityP1: 60,
	models.SeverityP2: 30,
	models.SeverityP3: 10,
}

const (
	recurrenceThreshold = 10
	recurrenceCap       = 50
	userImpactThreshold = 5
	userImpactFactor    = 3
	userImpactCap       = 30
	newIssueBonus       = 20
	analysisBonus       = 10
	recentWindow        = 24 * time.Hour
)

// Ranked pairs an issue with its computed score.
type Ranked struct {
	Issue *models.Issue
	Score int
}

// Score computes the priority score of a single issue at time now.
func Score(issue *models.Issue, now time.Time) int {
	s := severityWeight[issue.Severity]

	if issue.Occurrences24h > recurrenceThreshold {
		bonus := issue.Occurrences24h
		if bonus > recurrenceCap {
			bonus = recurrenceCap
		}
		s += bonus
	}

	if issue.UniqueUsers24hEst > userImpactThreshold {
		bonus := issue.UniqueUsers24hEst * userImpactFactor
		if bonus > userImpactCap {
			bonus = userImpactCap
		}
		s += bonus
	}

	if now.Sub(issue.CreatedAt) < recentWindow {
		s += newIssueBonus
	}

	if issue.LastAnalyzedAt != nil {
		s += analysisBonus
	}

	return s
}

// Select filters and ranks issues for a brief, returning at most
// cfg.MaxItems entries in descending score order. Ties keep input order
// (stable sort), so selection is deterministic.
func Select(issues []*models.Issue, cfg Config, now time.Time) []Ranked {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultConfig().MaxItems
	}
	if !cfg.MinSeverity.Valid() {
		cfg.MinSeverity = models.SeverityP3
	}

	ranked := make([]Ranked, 0, len(issues))
	for _, issue := range issues {
		if !eligible(issue, cfg, now) {
			continue
		}
		ranked = append(ranked, Ranked{Issue: issue, Score: Score(issue, now)})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if len(ranked) > cfg.MaxItems {
		ranked = ranked[:cfg.MaxItems]
	}
	return ranked
}

func eligible(issue *models.Issue, cfg Config, now time.Time) bool {
	if !issue.Severity.AtLeast(cfg.MinSeverity) {
		return false
	}
	if models.TerminalStatus(issue.Status) {
		if !cfg.IncludeRecentlyClosed {
			return false
		}
		if issue.ResolvedAt == nil || now.Sub(*issue.ResolvedAt) > recentWindow {
			return false
		}
	}
	return true
}
