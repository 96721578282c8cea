package store

import (
	"fmt"
	"strings"
	"time"
)

// MessageFilter composes the conjunctive conditions a search narrows
// messages by. Zero-value fields are skipped.
type MessageFilter struct {
	ChatIDs   []int64
	SenderIDs []int64
	Keywords  []string // ANDed, case-insensitive containment
	Since     *time.Time
	Until     *time.Time
}

func (f MessageFilter) where() (string, []any) {
	var conds []string
	var args []any

	if len(f.ChatIDs) > 0 {
		conds = append(conds, "chat_id IN ("+placeholders(len(f.ChatIDs))+")")
		for _, id := range f.ChatIDs {
			args = append(args, id)
		}
	}
	if len(f.SenderIDs) > 0 {
		conds = append(conds, "sender_id IN ("+placeholders(len(f.SenderIDs))+")")
		for _, id := range f.SenderIDs {
			args = append(args, id)
		}
	}
	for _, kw := range f.Keywords {
		conds = append(conds, "LOWER(text) LIKE ?")
		args = append(args, "%"+strings.ToLower(kw)+"%")
	}
	if f.Since != nil {
		conds = append(conds, "sent_at >= ?")
		args = append(args, f.Since.Unix())
	}
	if f.Until != nil {
		conds = append(conds, "sent_at <= ?")
		args = append(args, f.Until.Unix())
	}

	if len(conds) == 0 {
		return "1=1", nil
	}
	return strings.Join(conds, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// UpsertMessage inserts or updates a message (idempotent on chat_id + msg_id).
func (db *DB) UpsertMessage(m *Message) error {
	now := time.Now().Unix()
	_, err := db.Exec(`
		INSERT INTO messages (msg_id, chat_id, sender_id, link, kind, text, sent_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, msg_id) DO UPDATE SET
			link = excluded.link,
			kind = excluded.kind,
			text = excluded.text`,
		m.MsgID, m.ChatID, m.SenderID, m.Link, m.Kind, m.Text, m.SentAt, now)
	return err
}

// CountMessages returns the number of messages matching the filter.
func (db *DB) CountMessages(f MessageFilter) (int, error) {
	where, args := f.where()
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM messages WHERE "+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// QueryMessages returns one page of messages matching the filter, most
// recent first. Ties on sent_at break by insertion order (rowid).
func (db *DB) QueryMessages(f MessageFilter, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = 25
	}
	where, args := f.where()
	args = append(args, limit, offset)
	rows, err := db.Query(`
		SELECT id, msg_id, chat_id, sender_id, link, kind, text, sent_at
		FROM messages
		WHERE `+where+`
		ORDER BY sent_at DESC, id DESC
		LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.MsgID, &m.ChatID, &m.SenderID, &m.Link, &m.Kind, &m.Text, &m.SentAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
