// Package severity assigns the initial triage priority of a new issue from
// its triggering event. The classification runs exactly once, at issue
// creation; humans and automated analysis may change severity afterwards and
// the classifier never re-runs on existing issues.
package severity

import (
	"strings"

	"github.com/kiranshivaraju/issuehound/pkg/models"
)

// Classify maps an event's type, environment, and payload to an initial
// severity.
func Classify(event *models.Event) models.Severity {
	switch event.Type {
	case models.EventTypeBackendError:
		return classifyBackend(event)
	case models.EventTypeFrontendError:
		if event.Environment == models.EnvProd {
			return models.SeverityP2
		}
		return models.SeverityP3
	case models.EventTypeFeedback, models.EventTypeQuestion:
		return classifyFeedback(event)
	default:
		return models.SeverityP3
	}
}

func classifyBackend(event *models.Event) models.Severity {
	if event.Environment != models.EnvProd {
		return models.SeverityP2
	}
	if p := event.Payload.Error; p != nil {
		errType := strings.ToLower(p.ErrorType)
		if strings.Contains(errType, "critical") || strings.Contains(errType, "fatal") {
			return models.SeverityP1
		}
		if p.HTTPStatus >= 500 {
			return models.SeverityP1
		}
	}
	return models.SeverityP2
}

func classifyFeedback(event *models.Event) models.Severity {
	p := event.Payload.Feedback
	if p != nil && strings.EqualFold(p.Category, "bug") {
		if event.Environment == models.EnvProd {
			return models.SeverityP2
		}
		return models.SeverityP3
	}
	return models.SeverityP3
}
