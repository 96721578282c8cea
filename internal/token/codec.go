package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/qiaoborui/telegram-search-bot/internal/search"
)

// The transport caps callback data at 64 bytes, including the fixed frame
// prefix that routes the interaction to the page-turn handler.
const (
	MaxCallbackBytes = 64
	FramePrefix      = "pg|"
)

// Field budgets applied before encoding. Stage 2 narrows the user filter
// further; the widened result set is an accepted loss.
const (
	maxKeywords     = 3
	maxFieldRunes   = 10
	stage2UserRunes = 3
)

const timeLayout = "20060102T150405"

var (
	// ErrInvalidToken means the token does not parse as any known stage.
	ErrInvalidToken = errors.New("invalid pagination token")
	// ErrStaleQuery means a session-cache token points at an entry that is
	// gone or was overwritten by a newer search.
	ErrStaleQuery = errors.New("stale query")
)

// Frame wraps a bare token in the transport callback framing.
func Frame(tok string) string {
	return FramePrefix + tok
}

// Unframe strips the callback framing from incoming data.
func Unframe(data string) (string, bool) {
	return strings.CutPrefix(data, FramePrefix)
}

// Codec encodes queries into stage-tagged pagination tokens. Stages are
// tried in order and each is strictly smaller than the last for the same
// query; the first one that fits the budget wins:
//
//	0  full fidelity, compact datetimes
//	1  same fields, time bounds as epoch seconds
//	2  keywords and chat dropped, user narrowed
//	3  full query parked in the session cache, token carries page only
type Codec struct {
	cache  SessionCache
	budget int
}

// NewCodec creates a codec with the transport's real budget.
func NewCodec(cache SessionCache) *Codec {
	return &Codec{cache: cache, budget: MaxCallbackBytes - len(FramePrefix)}
}

// NewCodecWithBudget creates a codec with a custom bare-token budget.
func NewCodecWithBudget(cache SessionCache, budget int) *Codec {
	return &Codec{cache: cache, budget: budget}
}

// Encode produces a bare token for the query, at the least lossy stage
// that fits. Only stage 3 touches the session cache, overwriting the
// caller's slot (last writer wins).
func (c *Codec) Encode(ctx context.Context, callerID int64, q search.Query) (string, error) {
	for _, encode := range []func(search.Query) string{encodeStage0, encodeStage1, encodeStage2} {
		if tok := encode(q); len(tok) <= c.budget {
			return tok, nil
		}
	}
	if err := c.cache.Put(ctx, callerID, q); err != nil {
		return "", fmt.Errorf("park query in session cache: %w", err)
	}
	return "3|" + strconv.Itoa(page(q)), nil
}

// Decode reconstructs the query a token was encoded from. The leading
// stage tag is authoritative; tokens without one are rejected.
func (c *Codec) Decode(ctx context.Context, callerID int64, tok string) (search.Query, error) {
	parts := strings.Split(tok, "|")
	switch parts[0] {
	case "0":
		return decodeFull(parts, decodeDatetimeRange)
	case "1":
		return decodeFull(parts, decodeEpochRange)
	case "2":
		return decodeMinimal(parts)
	case "3":
		return c.decodeSession(ctx, callerID, parts)
	default:
		return search.Query{}, fmt.Errorf("%w: unknown stage %q", ErrInvalidToken, parts[0])
	}
}

func page(q search.Query) int {
	if q.Page < 1 {
		return 1
	}
	return q.Page
}

// sanitizeField truncates to a rune budget and strips the characters the
// token format uses structurally.
func sanitizeField(s string, maxRunes int) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '|', ',', '~':
			return -1
		}
		return r
	}, s)
	runes := []rune(s)
	if len(runes) > maxRunes {
		runes = runes[:maxRunes]
	}
	return string(runes)
}

func encodeKeywords(keywords []string) string {
	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}
	parts := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = sanitizeField(kw, maxFieldRunes); kw != "" {
			parts = append(parts, kw)
		}
	}
	return strings.Join(parts, ",")
}

func encodeStage0(q search.Query) string {
	tr := ""
	if q.TimeRange != nil {
		tr = q.TimeRange.Start.UTC().Format(timeLayout) + "~" + q.TimeRange.End.UTC().Format(timeLayout)
	}
	return strings.Join([]string{
		"0",
		strconv.Itoa(page(q)),
		encodeKeywords(q.Keywords),
		sanitizeField(q.User, maxFieldRunes),
		sanitizeField(q.Chat, maxFieldRunes),
		tr,
	}, "|")
}

func encodeStage1(q search.Query) string {
	tr := ""
	if q.TimeRange != nil {
		tr = strconv.FormatInt(q.TimeRange.Start.Unix(), 10) + "~" + strconv.FormatInt(q.TimeRange.End.Unix(), 10)
	}
	return strings.Join([]string{
		"1",
		strconv.Itoa(page(q)),
		encodeKeywords(q.Keywords),
		sanitizeField(q.User, maxFieldRunes),
		sanitizeField(q.Chat, maxFieldRunes),
		tr,
	}, "|")
}

func encodeStage2(q search.Query) string {
	tr := ""
	if q.TimeRange != nil {
		tr = strconv.FormatInt(q.TimeRange.Start.Unix(), 10) + "~" + strconv.FormatInt(q.TimeRange.End.Unix(), 10)
	}
	return strings.Join([]string{
		"2",
		strconv.Itoa(page(q)),
		sanitizeField(q.User, stage2UserRunes),
		tr,
	}, "|")
}

func decodeFull(parts []string, parseRange func(string) (*search.TimeRange, error)) (search.Query, error) {
	if len(parts) != 6 {
		return search.Query{}, fmt.Errorf("%w: want 6 fields, got %d", ErrInvalidToken, len(parts))
	}
	pg, err := decodePage(parts[1])
	if err != nil {
		return search.Query{}, err
	}
	tr, err := parseRange(parts[5])
	if err != nil {
		return search.Query{}, err
	}
	q := search.Query{
		User:      parts[3],
		Chat:      parts[4],
		TimeRange: tr,
		Page:      pg,
	}
	if parts[2] != "" {
		q.Keywords = strings.Split(parts[2], ",")
	}
	return q, nil
}

func decodeMinimal(parts []string) (search.Query, error) {
	if len(parts) != 4 {
		return search.Query{}, fmt.Errorf("%w: want 4 fields, got %d", ErrInvalidToken, len(parts))
	}
	pg, err := decodePage(parts[1])
	if err != nil {
		return search.Query{}, err
	}
	tr, err := decodeEpochRange(parts[3])
	if err != nil {
		return search.Query{}, err
	}
	return search.Query{User: parts[2], TimeRange: tr, Page: pg}, nil
}

func (c *Codec) decodeSession(ctx context.Context, callerID int64, parts []string) (search.Query, error) {
	if len(parts) != 2 {
		return search.Query{}, fmt.Errorf("%w: want 2 fields, got %d", ErrInvalidToken, len(parts))
	}
	pg, err := decodePage(parts[1])
	if err != nil {
		return search.Query{}, err
	}
	q, ok, err := c.cache.Get(ctx, callerID)
	if err != nil {
		return search.Query{}, fmt.Errorf("session cache get: %w", err)
	}
	if !ok {
		return search.Query{}, ErrStaleQuery
	}
	q.Page = pg
	return q, nil
}

func decodePage(s string) (int, error) {
	pg, err := strconv.Atoi(s)
	if err != nil || pg < 1 {
		return 0, fmt.Errorf("%w: bad page %q", ErrInvalidToken, s)
	}
	return pg, nil
}

func decodeDatetimeRange(s string) (*search.TimeRange, error) {
	if s == "" {
		return nil, nil
	}
	start, end, ok := strings.Cut(s, "~")
	if !ok {
		return nil, fmt.Errorf("%w: bad time range %q", ErrInvalidToken, s)
	}
	startT, err := time.Parse(timeLayout, start)
	if err != nil {
		return nil, fmt.Errorf("%w: bad time %q", ErrInvalidToken, start)
	}
	endT, err := time.Parse(timeLayout, end)
	if err != nil {
		return nil, fmt.Errorf("%w: bad time %q", ErrInvalidToken, end)
	}
	return &search.TimeRange{Start: startT, End: endT}, nil
}

func decodeEpochRange(s string) (*search.TimeRange, error) {
	if s == "" {
		return nil, nil
	}
	start, end, ok := strings.Cut(s, "~")
	if !ok {
		return nil, fmt.Errorf("%w: bad time range %q", ErrInvalidToken, s)
	}
	startSec, err := strconv.ParseInt(start, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad epoch %q", ErrInvalidToken, start)
	}
	endSec, err := strconv.ParseInt(end, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad epoch %q", ErrInvalidToken, end)
	}
	return &search.TimeRange{
		Start: time.Unix(startSec, 0).UTC(),
		End:   time.Unix(endSec, 0).UTC(),
	}, nil
}
