package datalayer

import (
	"strings"
	"testing"
)

func TestSessionKey(t *testing.T) {
	if got := SessionKey("abc-123"); got != "session:abc-123" {
		t.Fatalf("SessionKey = %q, want %q", got, "session:abc-123")
	}
}

func TestSearchKeyNormalization(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  string
	}{
		{"lowercases", "What IS Shipping", "search:what_is_shipping"},
		{"trims", "  refunds  ", "search:refunds"},
		{"collapses whitespace", "return \t policy\n\nplease", "search:return_policy_please"},
		{"identical after normalization", "Return Policy", "search:return_policy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SearchKey(tc.query); got != tc.want {
				t.Fatalf("SearchKey(%q) = %q, want %q", tc.query, got, tc.want)
			}
		})
	}
}

func TestSearchKeyDeterministic(t *testing.T) {
	a := SearchKey("what is   The  refund POLICY")
	b := SearchKey("what is the refund policy")
	if a != b {
		t.Fatalf("equivalent queries derived different keys: %q vs %q", a, b)
	}
}

func TestSearchKeyLongQueryExceedsBound(t *testing.T) {
	query := strings.Repeat("z", DefaultMaxKeyLength+10)
	if got := SearchKey(query); len(got) <= DefaultMaxKeyLength {
		t.Fatalf("key length = %d, want > %d", len(got), DefaultMaxKeyLength)
	}
}
