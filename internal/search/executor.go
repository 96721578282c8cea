package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/qiaoborui/telegram-search-bot/internal/store"
	"go.uber.org/zap"
)

func timeUTC(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// DefaultPageSize is the number of result rows per page.
const DefaultPageSize = 25

// Store is the slice of the archive the executor queries.
type Store interface {
	FindUsers(substr string) ([]store.User, error)
	GetUser(id int64) (*store.User, error)
	CountMessages(f store.MessageFilter) (int, error)
	QueryMessages(f store.MessageFilter, limit, offset int) ([]store.Message, error)
}

// Executor runs a Query against the archive within an authorization scope.
type Executor struct {
	store  Store
	logger *zap.Logger
}

// NewExecutor creates an executor backed by the given store.
func NewExecutor(st Store, logger *zap.Logger) *Executor {
	return &Executor{store: st, logger: logger}
}

// Execute runs one page of the query. A zero Total means the query matched
// nothing; callers distinguish that from an empty scope before calling.
//
// User and chat filters short-circuit: when either matches no candidates
// the message table is never touched.
func (e *Executor) Execute(q Query, scope Scope, pageSize int) (Result, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	var filter store.MessageFilter
	senderNames := make(map[int64]string)

	if q.User != "" {
		users, err := e.store.FindUsers(strings.TrimSpace(q.User))
		if err != nil {
			return Result{}, fmt.Errorf("resolve user filter: %w", err)
		}
		if len(users) == 0 {
			e.logger.Info("no users match filter", zap.String("user", q.User))
			return Result{}, nil
		}
		for _, u := range users {
			filter.SenderIDs = append(filter.SenderIDs, u.ID)
			senderNames[u.ID] = u.Fullname
		}
	}

	if q.Chat != "" {
		scope = scope.Narrow(q.Chat)
		if len(scope) == 0 {
			return Result{}, nil
		}
	}

	filter.ChatIDs = scope.IDs()
	filter.Keywords = q.Keywords
	if q.TimeRange != nil {
		start, end := q.TimeRange.Start, q.TimeRange.End
		filter.Since = &start
		filter.Until = &end
	}

	total, err := e.store.CountMessages(filter)
	if err != nil {
		return Result{}, fmt.Errorf("count matches: %w", err)
	}
	if total == 0 {
		return Result{}, nil
	}

	msgs, err := e.store.QueryMessages(filter, pageSize, (page-1)*pageSize)
	if err != nil {
		return Result{}, fmt.Errorf("fetch page: %w", err)
	}

	result := Result{Total: total}
	for _, m := range msgs {
		row, ok := e.resolveRow(m, scope, senderNames)
		if ok {
			result.Rows = append(result.Rows, row)
		}
	}
	return result, nil
}

// resolveRow turns a stored message into a display row. Messages whose
// rendered text ends up empty are dropped from the page; they still count
// toward the total. Missing sender or chat records get placeholder names
// instead of failing the page.
func (e *Executor) resolveRow(m store.Message, scope Scope, senderNames map[int64]string) (Row, bool) {
	text := m.Text
	if m.Kind != "text" && m.Kind != "" {
		text = "[" + m.Kind + "] " + m.Text
	}
	if text == "" {
		return Row{}, false
	}

	sender := senderNames[m.SenderID]
	if sender == "" {
		if u, err := e.store.GetUser(m.SenderID); err == nil && u != nil {
			sender = u.Fullname
		}
		if sender == "" {
			sender = fmt.Sprintf("user:%d", m.SenderID)
		}
		senderNames[m.SenderID] = sender
	}

	title, ok := scope.Title(m.ChatID)
	if !ok {
		title = fmt.Sprintf("chat:%d", m.ChatID)
	}

	return Row{
		MsgID:     m.MsgID,
		Link:      m.Link,
		Text:      text,
		SentAt:    timeUTC(m.SentAt),
		Sender:    sender,
		ChatTitle: title,
		Kind:      m.Kind,
	}, true
}
