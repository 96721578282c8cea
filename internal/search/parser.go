package search

import "strings"

// Parse turns a raw structured search string into a Query. It never fails:
// input without recognizable structure degrades to an unfiltered page-1
// query.
//
// The grammar is checked in fixed priority order against the trimmed input:
//
//	* N          page jump, no filters
//	@user * N    page jump within a user filter
//	[@user] kw... [N]   keywords, optional leading user, optional trailing page
func Parse(raw string) Query {
	q := Query{Page: 1}

	tokens := strings.Fields(raw)
	if len(tokens) == 0 {
		return q
	}

	if len(tokens) == 2 && tokens[0] == "*" {
		if page, ok := parsePage(tokens[1]); ok {
			q.Page = page
			return q
		}
	}

	if len(tokens) == 3 && strings.HasPrefix(tokens[0], "@") && tokens[1] == "*" {
		if page, ok := parsePage(tokens[2]); ok {
			q.User = strings.TrimPrefix(tokens[0], "@")
			q.Page = page
			return q
		}
	}

	if page, ok := parsePage(tokens[len(tokens)-1]); ok {
		q.Page = page
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) > 0 && strings.HasPrefix(tokens[0], "@") {
		q.User = strings.TrimPrefix(tokens[0], "@")
		tokens = tokens[1:]
	}
	if len(tokens) > 0 {
		q.Keywords = tokens
	}
	return q
}

// parsePage accepts all-digit tokens only; a parsed page is clamped to 1.
func parsePage(tok string) (int, bool) {
	if tok == "" {
		return 0, false
	}
	page := 0
	for _, r := range tok {
		if r < '0' || r > '9' {
			return 0, false
		}
		page = page*10 + int(r-'0')
		if page > 1_000_000 {
			return 0, false
		}
	}
	if page < 1 {
		page = 1
	}
	return page, true
}
