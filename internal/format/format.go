// Package format renders search result pages into the markdown text sent
// back through the chat transport.
package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/qiaoborui/telegram-search-bot/internal/search"
)

// Text budget per rendered message.
const maxMessageChars = 200

const chatDivider = "━━━━━━━━━━━━━━━\n"

// Formatter renders result rows grouped by chat, with timestamps shown in
// a fixed display timezone.
type Formatter struct {
	loc *time.Location
}

// New creates a formatter that displays timestamps in the given location.
func New(loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.UTC
	}
	return &Formatter{loc: loc}
}

// Results renders one page of rows. Rows are grouped by chat title in
// first-seen order.
func (f *Formatter) Results(rows []search.Row, total int) string {
	if len(rows) == 0 {
		return "No results found"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Search Results* (Total: %d)\n", total)

	var order []string
	groups := make(map[string][]search.Row)
	for _, row := range rows {
		if _, seen := groups[row.ChatTitle]; !seen {
			order = append(order, row.ChatTitle)
		}
		groups[row.ChatTitle] = append(groups[row.ChatTitle], row)
	}

	for _, title := range order {
		fmt.Fprintf(&b, "\n*%s*\n", escapeMarkdown(title))
		b.WriteString(chatDivider)
		for _, row := range groups[title] {
			text := truncate(row.Text, maxMessageChars)
			when := row.SentAt.In(f.loc).Format("2006-01-02 15:04")
			fmt.Fprintf(&b, "[*%s*: %s](%s) | %s\n",
				escapeMarkdown(row.Sender), escapeMarkdown(text), row.Link, when)
		}
	}
	return b.String()
}

// QueryEcho renders the parsed-query block shown above natural-language
// search results so the caller can verify what was understood.
func (f *Formatter) QueryEcho(q search.Query) string {
	var b strings.Builder
	b.WriteString("*Parsed query:*\n")

	if q.TimeRange != nil {
		start := q.TimeRange.Start.In(f.loc).Format("2006-01-02 15:04:05")
		end := q.TimeRange.End.In(f.loc).Format("2006-01-02 15:04:05")
		fmt.Fprintf(&b, "📅 Time range: %s to %s\n", start, end)
	}
	if len(q.Keywords) > 0 {
		fmt.Fprintf(&b, "🔍 Keywords: %s\n", escapeMarkdown(strings.Join(q.Keywords, ", ")))
	} else {
		b.WriteString("🔍 Keywords: none\n")
	}
	if q.User != "" {
		fmt.Fprintf(&b, "👤 User: %s\n", escapeMarkdown(q.User))
	}
	if q.Chat != "" {
		fmt.Fprintf(&b, "💬 Chat: %s\n", escapeMarkdown(q.Chat))
	}
	b.WriteString("\n")
	return b.String()
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

var markdownEscaper = strings.NewReplacer(
	"*", "\\*",
	"_", "\\_",
	"[", "\\[",
	"]", "\\]",
	"`", "\\`",
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
