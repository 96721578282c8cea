// Package nlquery turns free-form search requests into canonical queries
// by delegating to a remote chat-completion model.
package nlquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/qiaoborui/telegram-search-bot/internal/search"
)

// ErrUpstream reports that the normalizer could not produce a trustworthy
// query: the remote call failed or its response did not match the expected
// shape. Shape mismatches are never silently degraded to "no filter" — a
// wrong time range is worse than an explicit failure.
var ErrUpstream = errors.New("query normalizer upstream failure")

const responseTimeLayout = "2006-01-02 15:04:05"

// NameResolver resolves sender ids to display names for pronoun
// substitution in the outbound request.
type NameResolver interface {
	UserFullname(id int64) (string, bool)
}

// Config holds the remote delegate's connection settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Normalizer adapts the remote model into the Query shape the rest of the
// bot understands.
type Normalizer struct {
	client  openai.Client
	model   string
	loc     *time.Location
	names   NameResolver
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a normalizer. The location is the timezone the delegate is
// instructed to answer in; responses are converted to UTC.
func New(cfg Config, loc *time.Location, names NameResolver, logger *zap.Logger) (*Normalizer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("normalizer: API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("normalizer: model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Normalizer{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		loc:     loc,
		names:   names,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Normalize parses free-form text into a Query. repliedToID is zero when
// the request did not reply to another message.
func (n *Normalizer) Normalize(ctx context.Context, text string, now time.Time, callerID, repliedToID int64) (search.Query, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	prompt := n.buildPrompt(text, now, callerID, repliedToID)

	out, err := n.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.1),
		Model:       openai.ChatModel(n.model),
	})
	if err != nil {
		return search.Query{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if len(out.Choices) == 0 {
		return search.Query{}, fmt.Errorf("%w: empty response", ErrUpstream)
	}

	q, err := parseResponse(out.Choices[0].Message.Content, n.loc)
	if err != nil {
		n.logger.Warn("normalizer returned malformed response", zap.Error(err))
		return search.Query{}, err
	}
	return q, nil
}

func (n *Normalizer) buildPrompt(text string, now time.Time, callerID, repliedToID int64) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Current time: %s (%s)\n\n", now.In(n.loc).Format(responseTimeLayout), n.loc)
	if name, ok := n.names.UserFullname(callerID); ok {
		fmt.Fprintf(&b, "Current user: %s\n", name)
	}
	if repliedToID != 0 {
		if name, ok := n.names.UserFullname(repliedToID); ok {
			fmt.Fprintf(&b, "Replied-to user: %s\n", name)
		}
	}

	fmt.Fprintf(&b, `
You parse chat-archive search requests. Convert the query below into JSON.

Rules:
1. All times must be local to the timezone stated above.
2. Any time expression in the query ("yesterday", "last week", "recently")
   must produce a time_range. "Recently" means the past 7 days, "last week"
   the previous calendar week, "yesterday" 00:00:00 through 23:59:59 of the
   previous day.
3. "me" refers to the current user; "him"/"her"/"them" in a reply refers to
   the replied-to user. Substitute the real name.

Query: %s

Reply with nothing but JSON in this shape (omit fields that do not apply):
{
  "keywords": [],
  "time_range": {"start": "YYYY-MM-DD HH:MM:SS", "end": "YYYY-MM-DD HH:MM:SS"},
  "user": null,
  "chat": null
}
`, text)
	return b.String()
}

// parseResponse validates and coerces the delegate's JSON into a Query,
// converting local timestamps to UTC. Any deviation from the expected
// shape fails with ErrUpstream.
func parseResponse(content string, loc *time.Location) (search.Query, error) {
	var resp struct {
		Keywords  []string `json:"keywords"`
		TimeRange *struct {
			Start string `json:"start"`
			End   string `json:"end"`
		} `json:"time_range"`
		User string `json:"user"`
		Chat string `json:"chat"`
	}

	if err := json.Unmarshal([]byte(stripFences(content)), &resp); err != nil {
		return search.Query{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	q := search.Query{
		User: strings.TrimSpace(resp.User),
		Chat: strings.TrimSpace(resp.Chat),
		Page: 1,
	}
	for _, kw := range resp.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			q.Keywords = append(q.Keywords, kw)
		}
	}

	if resp.TimeRange != nil {
		start, err := time.ParseInLocation(responseTimeLayout, resp.TimeRange.Start, loc)
		if err != nil {
			return search.Query{}, fmt.Errorf("%w: bad time_range start %q", ErrUpstream, resp.TimeRange.Start)
		}
		end, err := time.ParseInLocation(responseTimeLayout, resp.TimeRange.End, loc)
		if err != nil {
			return search.Query{}, fmt.Errorf("%w: bad time_range end %q", ErrUpstream, resp.TimeRange.End)
		}
		q.TimeRange = &search.TimeRange{Start: start.UTC(), End: end.UTC()}
	}
	return q, nil
}

// stripFences removes a markdown code fence some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
