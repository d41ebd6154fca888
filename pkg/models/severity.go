package models

// Severity is the triage priority of an issue, ordered P0 (most urgent)
// through P3.
type Severity string

const (
	SeverityP0 Severity = "P0"
	SeverityP1 Severity = "P1"
	SeverityP2 Severity = "P2"
	SeverityP3 Severity = "P3"
)

// Rank maps a severity to its ordinal: P0=0 .. P3=3. Unknown severities rank
// below P3 so they never pass a severity floor.
func (s Severity) Rank() int {
	switch s {
	case SeverityP0:
		return 0
	case SeverityP1:
		return 1
	case SeverityP2:
		return 2
	case SeverityP3:
		return 3
	default:
		return 4
	}
}

// AtLeast reports whether s is at or above floor in urgency.
func (s Severity) AtLeast(floor Severity) bool {
	return s.Rank() <= floor.Rank()
}

// Valid reports whether s is one of the four known severities.
func (s Severity) Valid() bool {
	return s.Rank() <= 3
}
