// Package search holds the canonical search query descriptor and the
// executor that runs it against the message archive.
package search

import (
	"slices"
	"strings"
	"time"
)

// TimeRange bounds a query to messages sent within [Start, End], UTC.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Query is the canonical representation of a search intent. It is pure
// data: it never carries caller identity or chat scope, which are supplied
// separately at execution time.
type Query struct {
	Keywords  []string // ANDed substring matches; nil = no keyword filter
	User      string   // case-insensitive substring over fullname or username
	Chat      string   // case-insensitive substring over chat title
	TimeRange *TimeRange
	Page      int // 1-based
}

// Equal reports whether two queries describe the same search intent.
func (q Query) Equal(other Query) bool {
	if q.User != other.User || q.Chat != other.Chat || q.Page != other.Page {
		return false
	}
	if !slices.Equal(q.Keywords, other.Keywords) {
		return false
	}
	if (q.TimeRange == nil) != (other.TimeRange == nil) {
		return false
	}
	if q.TimeRange != nil {
		return q.TimeRange.Start.Equal(other.TimeRange.Start) &&
			q.TimeRange.End.Equal(other.TimeRange.End)
	}
	return true
}

// ChatRef identifies one chat a caller may search.
type ChatRef struct {
	ID    int64
	Title string
}

// Scope is the caller-specific set of searchable chats. It is computed by
// the transport layer per request and re-supplied on every page turn.
type Scope []ChatRef

// IDs returns the chat ids in scope.
func (s Scope) IDs() []int64 {
	ids := make([]int64, len(s))
	for i, c := range s {
		ids[i] = c.ID
	}
	return ids
}

// Narrow returns the subset of the scope whose titles contain the given
// substring, case-insensitively.
func (s Scope) Narrow(substr string) Scope {
	needle := strings.ToLower(strings.TrimSpace(substr))
	var out Scope
	for _, c := range s {
		if strings.Contains(strings.ToLower(c.Title), needle) {
			out = append(out, c)
		}
	}
	return out
}

// Title returns the title for a chat id in scope.
func (s Scope) Title(id int64) (string, bool) {
	for _, c := range s {
		if c.ID == id {
			return c.Title, true
		}
	}
	return "", false
}

// Row is one matched message, resolved for display.
type Row struct {
	MsgID     int64
	Link      string
	Text      string // type-tagged display text
	SentAt    time.Time
	Sender    string
	ChatTitle string
	Kind      string
}

// Result is one page of matches plus the total count under the filter.
type Result struct {
	Rows  []Row
	Total int
}
