// Package redact removes PII and secrets from event payloads before they are
// stored, summarized, or handed to an AI provider.
package redact

import (
	"regexp"
)

// Category names a class of sensitive data matched by a pattern.
type Category string

const (
	CategorySecret     Category = "secret"
	CategoryCreditCard Category = "credit_card"
	CategorySSN        Category = "ssn"
	CategoryEmail      Category = "email"
	CategoryPhone      Category = "phone"
	CategoryIPAddress  Category = "ip_address"
	CategoryAccountID  Category = "account_id"
	CategoryAddress    Category = "address"
)

// DefaultMaxDepth bounds the payload tree walk. Values nested deeper than
// this pass through unredacted. Callers that need a hard guarantee must
// run the safety validator as well.
const DefaultMaxDepth = 10

// Category patterns compiled once at package init. The replacement tokens
// contain no digits or '@', so already-redacted text never re-matches and
// redaction is idempotent.
var categoryPatterns = map[Category]*regexp.Regexp{
	CategorySecret:     regexp.MustCompile(`(?i)(?:bearer\s+[A-Za-z0-9._~+/\-]{8,}=*|sk-[A-Za-z0-9]{16,}|AKIA[0-9A-Z]{16}|(?:api[_-]?key|secret|token|password)["']?\s*[:=]\s*["']?[A-Za-z0-9._\-]{8,})`),
	CategoryCreditCard: regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{3,4}\b`),
	CategorySSN:        regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	CategoryEmail:      regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
	CategoryPhone:      regexp.MustCompile(`\+?\d{1,3}[ .\-]?\(?\d{2,4}\)?[ .\-]?\d{3,4}[ .\-]?\d{4}\b`),
	CategoryIPAddress:  regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
	CategoryAccountID:  regexp.MustCompile(`(?i)\b(?:acct|account)[ _\-]?(?:id|no|number)?\s*[:#]?\s*\d{4,}\b`),
	CategoryAddress:    regexp.MustCompile(`(?i)\b\d{1,5}\s+[A-Za-z][A-Za-z ]{1,40}\s(?:street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr|court|ct|way|place|pl)\b\.?`),
}

// categoryOrder fixes the order categories are applied in, for reproducible
// output. Digit-heavy patterns run before looser ones so a credit card is
// labeled as such rather than as a phone number.
var categoryOrder = []Category{
	CategorySecret,
	CategoryCreditCard,
	CategorySSN,
	CategoryEmail,
	CategoryPhone,
	CategoryIPAddress,
	CategoryAccountID,
	CategoryAddress,
}

// AllCategories returns every known category in application order.
func AllCategories() []Category {
	out := make([]Category, len(categoryOrder))
	copy(out, categoryOrder)
	return out
}

// Token returns the replacement token for a category, e.g. [REDACTED_EMAIL].
func Token(c Category) string {
	return "[REDACTED_" + upper(string(c)) + "]"
}

func upper(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'a' && b[i] <= 'z' {
			b[i] -= 'a' - 'A'
		}
	}
	return string(b)
}

// String replaces every match of the profile's categories in s and returns
// the sanitized string plus the number of replacements.
func String(s string, p Profile) (string, int) {
	count := 0
	for _, cat := range categoryOrder {
		if !p.has(cat) {
			continue
		}
		re := categoryPatterns[cat]
		matches := re.FindAllStringIndex(s, -1)
		if len(matches) == 0 {
			continue
		}
		count += len(matches)
		s = re.ReplaceAllString(s, Token(cat))
	}
	return s, count
}

// frame is one pending node in the iterative tree walk. Containers are
// copied before their children are pushed, so the input tree is never
// mutated.
type frame struct {
	value  any
	depth  int
	assign func(any)
}

// Tree walks an arbitrary nested map/array/scalar tree and redacts every
// string value reached within maxDepth. Returns a new tree (the input is not
// modified) and the total number of replacements.
//
// Values nested deeper than maxDepth pass through unredacted; see
// DefaultMaxDepth. Non-string scalars are copied as-is.
func Tree(payload any, p Profile, maxDepth int) (any, int) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	var root any
	total := 0

	// Explicit worklist instead of recursion: bounds stack usage and keeps
	// the depth-limit behavior testable on its own.
	stack := []frame{{value: payload, depth: 0, assign: func(v any) { root = v }}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch v := f.value.(type) {
		case string:
			s, n := String(v, p)
			total += n
			f.assign(s)
		case map[string]any:
			if f.depth >= maxDepth {
				f.assign(v)
				continue
			}
			dst := make(map[string]any, len(v))
			f.assign(dst)
			for k, child := range v {
				key := k
				stack = append(stack, frame{
					value:  child,
					depth:  f.depth + 1,
					assign: func(cv any) { dst[key] = cv },
				})
			}
		case []any:
			if f.depth >= maxDepth {
				f.assign(v)
				continue
			}
			dst := make([]any, len(v))
			f.assign(dst)
			for i, child := range v {
				idx := i
				stack = append(stack, frame{
					value:  child,
					depth:  f.depth + 1,
					assign: func(cv any) { dst[idx] = cv },
				})
			}
		default:
			// Numbers, bools, nil, and unexpected shapes pass through;
			// redaction never errors on payload shape.
			f.assign(v)
		}
	}

	return root, total
}
