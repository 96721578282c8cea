package search

import (
	"slices"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		keywords []string
		user     string
		page     int
	}{
		{"empty", "", nil, "", 1},
		{"whitespace only", "   ", nil, "", 1},
		{"page jump", "* 3", nil, "", 3},
		{"page jump extra spaces", "  *   7 ", nil, "", 7},
		{"user page jump", "@alice * 4", nil, "alice", 4},
		{"single keyword", "foo", []string{"foo"}, "", 1},
		{"keywords", "foo bar", []string{"foo", "bar"}, "", 1},
		{"keywords with page", "foo bar 2", []string{"foo", "bar"}, "", 2},
		{"user with keyword and page", "@alice foo 2", []string{"foo"}, "alice", 2},
		{"user only", "@alice", nil, "alice", 1},
		{"user with page", "@alice 5", nil, "alice", 5},
		{"numeric keyword kept when not last", "404 error", []string{"404", "error"}, "", 1},
		{"trailing number consumed as page", "error 404", []string{"error"}, "", 404},
		{"zero page clamped", "foo 0", []string{"foo"}, "", 1},
		{"lone star is a keyword", "*", []string{"*"}, "", 1},
		{"star without page", "* foo", []string{"*", "foo"}, "", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Parse(tt.raw)
			if !slices.Equal(q.Keywords, tt.keywords) {
				t.Errorf("Keywords = %v, want %v", q.Keywords, tt.keywords)
			}
			if q.User != tt.user {
				t.Errorf("User = %q, want %q", q.User, tt.user)
			}
			if q.Page != tt.page {
				t.Errorf("Page = %d, want %d", q.Page, tt.page)
			}
			if q.TimeRange != nil {
				t.Error("structured syntax must never produce a time range")
			}
		})
	}
}

func TestParseNeverFails(t *testing.T) {
	// Garbage in, page-1 descriptor out.
	for _, raw := range []string{"@", "@ *", "* * *", "@@@@", "\t\n"} {
		q := Parse(raw)
		if q.Page < 1 {
			t.Errorf("Parse(%q).Page = %d, want >= 1", raw, q.Page)
		}
	}
}
