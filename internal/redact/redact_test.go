package redact

import (
	"strings"
	"testing"
)

func strict(t *testing.T) Profile {
	t.Helper()
	p, ok := BuiltinProfile(ProfileStrict)
	if !ok {
		t.Fatal("strict profile missing")
	}
	return p
}

func TestString_Categories(t *testing.T) {
	tests := []struct {
		name  string
		input string
		token string
	}{
		{"email", "contact jane.doe@example.com for details", "[REDACTED_EMAIL]"},
		{"credit card", "paid with 4111 1111 1111 1111 today", "[REDACTED_CREDIT_CARD]"},
		{"ssn", "ssn 123-45-6789 on file", "[REDACTED_SSN]"},
		{"bearer token", "auth Bearer abc123def456ghi789 rejected", "[REDACTED_SECRET]"},
		{"api key assignment", `api_key="sk_live_9a8b7c6d" invalid`, "[REDACTED_SECRET]"},
		{"ip address", "request from 192.168.10.42 refused", "[REDACTED_IP_ADDRESS]"},
		{"street address", "deliver to 42 Elm Street please", "[REDACTED_ADDRESS]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n := String(tt.input, strict(t))
			if !strings.Contains(got, tt.token) {
				t.Errorf("expected %s in output, got %q", tt.token, got)
			}
			if n == 0 {
				t.Error("expected a nonzero replacement count")
			}
		})
	}
}

func TestString_CleanTextUntouched(t *testing.T) {
	input := "checkout failed with a null pointer"
	got, n := String(input, strict(t))
	if got != input {
		t.Errorf("clean text modified: %q", got)
	}
	if n != 0 {
		t.Errorf("expected 0 replacements, got %d", n)
	}
}

func TestString_Idempotent(t *testing.T) {
	input := "user jane@example.com card 4111-1111-1111-1111 from 10.0.0.1"
	once, n1 := String(input, strict(t))
	twice, n2 := String(once, strict(t))
	if once != twice {
		t.Errorf("redaction not idempotent:\nonce:  %q\ntwice: %q", once, twice)
	}
	if n1 == 0 || n2 != 0 {
		t.Errorf("expected replacements only on the first pass, got %d then %d", n1, n2)
	}
}

func TestString_ProfileLimitsCategories(t *testing.T) {
	relaxed, ok := BuiltinProfile(ProfileRelaxed)
	if !ok {
		t.Fatal("relaxed profile missing")
	}
	got, _ := String("mail jane@example.com ssn 123-45-6789", relaxed)
	if strings.Contains(got, "[REDACTED_EMAIL]") {
		t.Errorf("relaxed profile should keep emails: %q", got)
	}
	if !strings.Contains(got, "[REDACTED_SSN]") {
		t.Errorf("relaxed profile should still redact SSNs: %q", got)
	}
}

func TestStandardProfile_KeepsIPs(t *testing.T) {
	standard, ok := BuiltinProfile(ProfileStandard)
	if !ok {
		t.Fatal("standard profile missing")
	}
	got, _ := String("peer 10.1.2.3 disconnected, wrote ops@example.com", standard)
	if strings.Contains(got, "[REDACTED_IP_ADDRESS]") {
		t.Errorf("standard profile should keep IPs: %q", got)
	}
	if !strings.Contains(got, "[REDACTED_EMAIL]") {
		t.Errorf("standard profile should redact emails: %q", got)
	}
}

func TestTree_RedactsNestedStrings(t *testing.T) {
	payload := map[string]any{
		"message": "jane@example.com hit an error",
		"request": map[string]any{
			"headers": []any{"Authorization: Bearer abcdef123456789xyz"},
			"retries": 3,
		},
	}

	got, n := Tree(payload, strict(t), DefaultMaxDepth)
	if n < 2 {
		t.Fatalf("expected at least 2 replacements, got %d", n)
	}

	m := got.(map[string]any)
	if !strings.Contains(m["message"].(string), "[REDACTED_EMAIL]") {
		t.Errorf("top-level string not redacted: %v", m["message"])
	}
	headers := m["request"].(map[string]any)["headers"].([]any)
	if !strings.Contains(headers[0].(string), "[REDACTED_SECRET]") {
		t.Errorf("nested array string not redacted: %v", headers[0])
	}
	if m["request"].(map[string]any)["retries"] != 3 {
		t.Error("non-string scalar should pass through unchanged")
	}
}

func TestTree_DoesNotMutateInput(t *testing.T) {
	payload := map[string]any{"email": "jane@example.com"}
	Tree(payload, strict(t), DefaultMaxDepth)
	if payload["email"] != "jane@example.com" {
		t.Error("input tree was mutated")
	}
}

func TestTree_DepthLimitPassesThrough(t *testing.T) {
	leaf := map[string]any{"email": "jane@example.com"}
	payload := map[string]any{"a": map[string]any{"b": leaf}}

	got, n := Tree(payload, strict(t), 2)
	if n != 0 {
		t.Errorf("expected no replacements beyond the depth limit, got %d", n)
	}
	deep := got.(map[string]any)["a"].(map[string]any)["b"].(map[string]any)
	if deep["email"] != "jane@example.com" {
		t.Error("values beyond the depth limit should pass through unmodified")
	}
}

func TestValidate_FlagsResidualPII(t *testing.T) {
	report := Validate(map[string]any{
		"note": "card 4111111111111111 leaked",
	})
	if report.Safe {
		t.Error("expected unsafe report")
	}
	found := false
	for _, c := range report.Found {
		if c == CategoryCreditCard {
			found = true
		}
	}
	if !found {
		t.Errorf("expected credit_card in findings, got %v", report.Found)
	}
}

func TestValidate_CleanContentIsSafe(t *testing.T) {
	report := Validate(map[string]any{"note": "nothing sensitive here"})
	if !report.Safe || len(report.Found) != 0 {
		t.Errorf("expected safe report, got %+v", report)
	}
}

func TestScrub_AppliesEveryCategory(t *testing.T) {
	got, n := Scrub("jane@example.com from 10.0.0.1")
	if n != 2 {
		t.Errorf("expected 2 replacements, got %d (%q)", n, got)
	}
	if report := Validate(got); !report.Safe {
		t.Errorf("scrubbed output still flagged: %v", report.Found)
	}
}

func TestRegistry_ResolveAndCustom(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Resolve(ProfileStandard); !ok {
		t.Error("built-in profile should resolve")
	}
	if _, ok := r.Resolve("nope"); ok {
		t.Error("unknown profile should not resolve")
	}

	custom, err := NewProfile("support", []Category{CategoryEmail})
	if err != nil {
		t.Fatalf("NewProfile: %v", err)
	}
	r.custom["support"] = custom
	p, ok := r.Resolve("support")
	if !ok || p.Name != "support" {
		t.Error("custom profile should resolve by name")
	}
}

func TestNewProfile_RejectsUnknownCategory(t *testing.T) {
	if _, err := NewProfile("bad", []Category{"made_up"}); err == nil {
		t.Error("expected error for unknown category")
	}
}
