// Package fingerprint derives a stable identity for "the same underlying
// defect" across repeated error occurrences, plus an auxiliary similarity
// score for related-issue suggestions.
package fingerprint

import (
	"net/url"
	"regexp"
	"strings"
)

// Normalization regexes compiled once at package init. Application order
// matters: timestamps and UUIDs are replaced before bare hex/digit runs so
// their components are not partially consumed, and paths are rewritten
// before the digit rule so numeric file names still collapse to <ID>.
var (
	reTimestamp = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`)
	reUUID      = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)
	rePosixPath = regexp.MustCompile(`(?:/[\w.\-]+){2,}/?`)
	reWinPath   = regexp.MustCompile(`[A-Za-z]:\\(?:[\w.\- ]+\\)+[\w.\-]+`)
	reHexRun    = regexp.MustCompile(`\b[0-9a-fA-F]{32,}\b`)
	reDigitRun  = regexp.MustCompile(`\d{6,}`)

	reFramePos    = regexp.MustCompile(`(?::\d+){1,2}\)?\s*$`)
	reWhitespace  = regexp.MustCompile(`\s+`)
	reNumericSeg  = regexp.MustCompile(`^\d+$`)
	reUUIDSeg     = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// topFrames is the number of stack frames that participate in identity.
const topFrames = 5

// NormalizeMessage replaces volatile substrings (UUIDs, timestamps, long
// digit runs, long hex runs, filesystem paths) with stable tokens and
// collapses whitespace. Idempotent: normalizing an already-normalized
// message is a no-op.
func NormalizeMessage(msg string) string {
	msg = reTimestamp.ReplaceAllString(msg, "<TIMESTAMP>")
	msg = reUUID.ReplaceAllString(msg, "<UUID>")
	msg = reWinPath.ReplaceAllStringFunc(msg, normalizePathToken)
	msg = rePosixPath.ReplaceAllStringFunc(msg, normalizePathToken)
	msg = reHexRun.ReplaceAllString(msg, "<HASH>")
	msg = reDigitRun.ReplaceAllString(msg, "<ID>")
	msg = reWhitespace.ReplaceAllString(msg, " ")
	return strings.TrimSpace(msg)
}

// normalizePathToken rewrites a matched filesystem path as <PATH>/<basename>.
func normalizePathToken(p string) string {
	trimmed := strings.TrimRight(p, "/\\")
	idx := strings.LastIndexAny(trimmed, `/\`)
	base := trimmed
	if idx >= 0 {
		base = trimmed[idx+1:]
	}
	if base == "" || base == "<PATH>" {
		return p
	}
	return "<PATH>/" + base
}

// NormalizeStack extracts the top call frames from a raw stack trace and
// normalizes them. Only lines that begin with a frame marker participate;
// message lines, caused-by headers, and blank lines are skipped. Trailing
// :line:column positions and query strings are stripped, and paths are
// normalized the same way as messages.
func NormalizeStack(stack string) string {
	if stack == "" {
		return ""
	}

	var frames []string
	for _, line := range strings.Split(stack, "\n") {
		trimmed := strings.TrimSpace(line)
		if !isFrameLine(trimmed) {
			continue
		}
		if q := strings.IndexByte(trimmed, '?'); q >= 0 {
			end := strings.IndexAny(trimmed[q:], " )")
			if end >= 0 {
				trimmed = trimmed[:q] + trimmed[q+end:]
			} else {
				trimmed = trimmed[:q]
			}
		}
		trimmed = reFramePos.ReplaceAllString(trimmed, "")
		frames = append(frames, NormalizeMessage(trimmed))
		if len(frames) == topFrames {
			break
		}
	}
	return strings.Join(frames, " | ")
}

// isFrameLine reports whether a trimmed stack line is a call frame.
// Covers the common JS ("at fn (file:1:2)"), Python ("File \"x.py\", line 1"),
// and PHP ("#0 /app/index.php(12)") frame shapes.
func isFrameLine(line string) bool {
	return strings.HasPrefix(line, "at ") ||
		strings.HasPrefix(line, "File ") ||
		strings.HasPrefix(line, "#")
}

// NormalizeRoute strips query string and fragment from a route or URL,
// replaces purely numeric path segments with <id> and UUID-shaped segments
// with <uuid>, and strips any trailing slash.
func NormalizeRoute(route string) string {
	if route == "" {
		return ""
	}

	path := route
	if strings.Contains(route, "://") {
		if u, err := url.Parse(route); err == nil {
			path = u.Path
		}
	}
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}

	segments := strings.Split(path, "/")
	for i, seg := range segments {
		switch {
		case seg == "":
		case reNumericSeg.MatchString(seg):
			segments[i] = "<id>"
		case reUUIDSeg.MatchString(seg):
			segments[i] = "<uuid>"
		}
	}
	path = strings.Join(segments, "/")

	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}
