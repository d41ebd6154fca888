package redact

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Report is the result of a safety validation pass.
type Report struct {
	Safe  bool
	Found []Category
}

// Validate flattens arbitrary content to a single string and scans it with
// every category pattern, regardless of profile. It is the last-resort gate
// before content is handed to the AI provider: a redaction pass bounded by
// depth or a context-specific leak (e.g. an oddly formatted bearer token) can
// leave residual PII that this check still catches.
func Validate(content any) Report {
	flat := Flatten(content)
	var found []Category
	for _, cat := range categoryOrder {
		if categoryPatterns[cat].MatchString(flat) {
			found = append(found, cat)
		}
	}
	return Report{Safe: len(found) == 0, Found: found}
}

// Scrub applies every category to s in one whole-string pass. Used as the
// stricter second pass when Validate finds residual sensitive data.
func Scrub(s string) (string, int) {
	return String(s, builtinProfiles[ProfileStrict])
}

// Flatten renders a nested map/array/scalar tree as a single string with
// dotted key paths, bounded by a fixed depth and key count so hostile
// payloads cannot blow up validation cost.
func Flatten(value any) string {
	out := make(map[string]string)
	flattenInto(out, "", value, 0)

	keys := make([]string, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		if k != "" {
			b.WriteString(k)
			b.WriteByte('=')
		}
		b.WriteString(out[k])
		b.WriteByte('\n')
	}
	return b.String()
}

const (
	flattenMaxDepth = 16
	flattenMaxKeys  = 5000
)

func flattenInto(out map[string]string, prefix string, value any, depth int) {
	if len(out) >= flattenMaxKeys {
		return
	}
	if depth > flattenMaxDepth {
		out[prefix] = fmt.Sprintf("<max_depth:%d>", flattenMaxDepth)
		return
	}

	switch v := value.(type) {
	case map[string]any:
		for k, child := range v {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flattenInto(out, key, child, depth+1)
			if len(out) >= flattenMaxKeys {
				return
			}
		}
	case []any:
		for i, child := range v {
			idx := strconv.Itoa(i)
			key := idx
			if prefix != "" {
				key = prefix + "[" + idx + "]"
			}
			flattenInto(out, key, child, depth+1)
			if len(out) >= flattenMaxKeys {
				return
			}
		}
	case string:
		out[prefix] = v
	case nil:
		out[prefix] = ""
	default:
		out[prefix] = fmt.Sprint(v)
	}
}
