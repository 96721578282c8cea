// Package session orchestrates one search interaction end to end: parse
// or normalize, execute within the caller's scope, format, and encode the
// continuation token.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qiaoborui/telegram-search-bot/internal/format"
	"github.com/qiaoborui/telegram-search-bot/internal/nlquery"
	"github.com/qiaoborui/telegram-search-bot/internal/search"
	"github.com/qiaoborui/telegram-search-bot/internal/token"
)

// Kind classifies a rendered page. Empty scope and empty result are
// business outcomes, not errors, and stay distinguishable.
type Kind int

const (
	KindResults Kind = iota
	KindEmptyScope
	KindEmptyResult
	KindExhausted
)

// Controls describes the pagination row handed to the transport. Data
// fields carry framed callback payloads and are empty at the ends of the
// result set.
type Controls struct {
	PrevData string
	Label    string
	NextData string
}

// Page is one rendered search response.
type Page struct {
	Kind       Kind
	Text       string
	Page       int
	TotalPages int
	Total      int
	Controls   *Controls
}

// Normalizer is the natural-language delegate boundary.
type Normalizer interface {
	Normalize(ctx context.Context, text string, now time.Time, callerID, repliedToID int64) (search.Query, error)
}

// Session wires parser, executor, formatter and token codec together.
type Session struct {
	exec      *search.Executor
	codec     *token.Codec
	formatter *format.Formatter
	norm      Normalizer // nil when NL search is not configured
	pageSize  int
	logger    *zap.Logger
}

// New creates a search session orchestrator. norm may be nil.
func New(exec *search.Executor, codec *token.Codec, formatter *format.Formatter, norm Normalizer, pageSize int, logger *zap.Logger) *Session {
	if pageSize <= 0 {
		pageSize = search.DefaultPageSize
	}
	return &Session{
		exec:      exec,
		codec:     codec,
		formatter: formatter,
		norm:      norm,
		pageSize:  pageSize,
		logger:    logger,
	}
}

// FreshSearch runs a structured-syntax search from page 1 (or the page the
// syntax jumps to).
func (s *Session) FreshSearch(ctx context.Context, raw string, callerID int64, scope search.Scope) (*Page, error) {
	log := s.requestLogger(callerID)
	if len(scope) == 0 {
		return emptyScopePage(), nil
	}
	q := search.Parse(raw)
	log.Info("fresh search", zap.Strings("keywords", q.Keywords), zap.String("user", q.User), zap.Int("page", q.Page))
	return s.run(ctx, q, callerID, scope, false)
}

// FreshNLSearch runs a natural-language search. repliedToID is zero when
// the request did not reply to another message. On normalization failure
// no token is issued and nothing is written to the session cache.
func (s *Session) FreshNLSearch(ctx context.Context, text string, now time.Time, callerID, repliedToID int64, scope search.Scope) (*Page, error) {
	log := s.requestLogger(callerID)
	if s.norm == nil {
		return nil, fmt.Errorf("%w: natural-language search is not configured", nlquery.ErrUpstream)
	}
	if len(scope) == 0 {
		return emptyScopePage(), nil
	}
	q, err := s.norm.Normalize(ctx, text, now, callerID, repliedToID)
	if err != nil {
		return nil, err
	}
	q.Page = 1
	log.Info("nl search normalized", zap.Strings("keywords", q.Keywords), zap.String("user", q.User), zap.String("chat", q.Chat))
	return s.run(ctx, q, callerID, scope, true)
}

// TurnPage resumes a search from a continuation token. The scope is the
// caller's current one, re-computed by the transport: chats the caller
// lost access to since the original search are out, no matter what the
// token says.
func (s *Session) TurnPage(ctx context.Context, data string, callerID int64, scope search.Scope) (*Page, error) {
	tok, ok := token.Unframe(data)
	if !ok {
		return nil, fmt.Errorf("%w: unframed callback data", token.ErrInvalidToken)
	}
	q, err := s.codec.Decode(ctx, callerID, tok)
	if err != nil {
		return nil, err
	}
	if len(scope) == 0 {
		return emptyScopePage(), nil
	}
	s.requestLogger(callerID).Info("page turn", zap.Int("page", q.Page))
	return s.run(ctx, q, callerID, scope, false)
}

func (s *Session) run(ctx context.Context, q search.Query, callerID int64, scope search.Scope, echo bool) (*Page, error) {
	res, err := s.exec.Execute(q, scope, s.pageSize)
	if err != nil {
		return nil, err
	}
	if res.Total == 0 {
		return &Page{Kind: KindEmptyResult, Text: "No results found"}, nil
	}

	totalPages := (res.Total + s.pageSize - 1) / s.pageSize
	pageNum := q.Page
	if pageNum < 1 {
		pageNum = 1
	}
	if pageNum > totalPages {
		return &Page{Kind: KindExhausted, Page: pageNum, TotalPages: totalPages, Total: res.Total}, nil
	}

	text := s.formatter.Results(res.Rows, res.Total)
	if echo {
		text = s.formatter.QueryEcho(q) + text
	}

	controls, err := s.buildControls(ctx, q, callerID, pageNum, totalPages)
	if err != nil {
		return nil, err
	}

	return &Page{
		Kind:       KindResults,
		Text:       text,
		Page:       pageNum,
		TotalPages: totalPages,
		Total:      res.Total,
		Controls:   controls,
	}, nil
}

func (s *Session) buildControls(ctx context.Context, q search.Query, callerID int64, pageNum, totalPages int) (*Controls, error) {
	c := &Controls{Label: fmt.Sprintf("%d/%d", pageNum, totalPages)}
	if pageNum > 1 {
		q.Page = pageNum - 1
		tok, err := s.codec.Encode(ctx, callerID, q)
		if err != nil {
			return nil, fmt.Errorf("encode prev token: %w", err)
		}
		c.PrevData = token.Frame(tok)
	}
	if pageNum < totalPages {
		q.Page = pageNum + 1
		tok, err := s.codec.Encode(ctx, callerID, q)
		if err != nil {
			return nil, fmt.Errorf("encode next token: %w", err)
		}
		c.NextData = token.Frame(tok)
	}
	return c, nil
}

func (s *Session) requestLogger(callerID int64) *zap.Logger {
	return s.logger.With(
		zap.String("request_id", uuid.NewString()),
		zap.Int64("caller_id", callerID),
	)
}

func emptyScopePage() *Page {
	return &Page{
		Kind: KindEmptyScope,
		Text: "No searchable chats. Enable the bot in a group first.",
	}
}

// CallerMessage maps an orchestration error to the text shown to the
// caller. No error escapes the interaction as a hard failure.
func CallerMessage(err error) string {
	switch {
	case errors.Is(err, token.ErrStaleQuery):
		return "This search has expired, please run it again"
	case errors.Is(err, token.ErrInvalidToken):
		return "Invalid page control, please run the search again"
	case errors.Is(err, nlquery.ErrUpstream):
		return "Sorry, I couldn't understand your query. Please try a different wording."
	default:
		return "Error processing your search, please try again"
	}
}
