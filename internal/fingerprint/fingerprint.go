package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// UnknownErrorType is the sentinel used when an error event declares no type.
// Two differently-typed errors with identical messages and no declared type
// therefore collide on purpose; the namespace is scoped per app+environment,
// which keeps that tradeoff cheap.
const UnknownErrorType = "UnknownError"

// hexLen is the length of the hex prefix kept from the full digest. 16 chars
// (64 bits) is plenty within a single app+environment namespace.
const hexLen = 16

// Input is the transient descriptor a fingerprint is computed from. Only the
// resulting hash is persisted.
type Input struct {
	ErrorType string
	Message   string
	Stack     string
	Route     string
}

// normalized applies all normalization rules to an input.
func (in Input) normalized() Input {
	errType := in.ErrorType
	if errType == "" {
		errType = UnknownErrorType
	}
	return Input{
		ErrorType: errType,
		Message:   NormalizeMessage(in.Message),
		Stack:     NormalizeStack(in.Stack),
		Route:     NormalizeRoute(in.Route),
	}
}

// Compute derives the stable identity hash for an error descriptor:
// sha256 over type, normalized message, normalized top frames, and
// normalized route, truncated to a fixed-length hex prefix.
func Compute(in Input) string {
	n := in.normalized()
	sum := sha256.Sum256([]byte(
		n.ErrorType + "::" + n.Message + "::" + n.Stack + "::" + n.Route,
	))
	return hex.EncodeToString(sum[:])[:hexLen]
}

// Similarity weights. Tuned for triage suggestions, not statistical
// optimality; similarity is never used for the primary dedup decision.
const (
	weightType    = 0.3
	weightMessage = 0.4
	weightStack   = 0.2
	weightRoute   = 0.1
)

// Similarity scores how alike two error descriptors are, in [0, 1]. It is an
// independent heuristic over normalized fields: exact type match, word-set
// Jaccard of normalized messages, exact normalized frame match, and exact
// normalized route match.
func Similarity(a, b Input) float64 {
	na, nb := a.normalized(), b.normalized()

	score := 0.0
	if na.ErrorType == nb.ErrorType {
		score += weightType
	}
	if na.Message == nb.Message {
		score += weightMessage
	} else {
		score += weightMessage * jaccard(wordSet(na.Message), wordSet(nb.Message))
	}
	if na.Stack == nb.Stack && na.Stack != "" {
		score += weightStack
	}
	if na.Route == nb.Route && na.Route != "" {
		score += weightRoute
	}
	return score
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
