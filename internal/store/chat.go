package store

import (
	"database/sql"
	"time"
)

// UpsertChat inserts or updates a chat record.
func (db *DB) UpsertChat(c *Chat) error {
	now := time.Now().Unix()
	_, err := db.Exec(`
		INSERT INTO chats (id, title, enabled, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = CASE WHEN excluded.title != '' THEN excluded.title ELSE chats.title END,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`,
		c.ID, c.Title, c.Enabled, now)
	return err
}

// SetChatEnabled flips archival and searchability for a chat.
func (db *DB) SetChatEnabled(id int64, enabled bool) error {
	now := time.Now().Unix()
	_, err := db.Exec(`UPDATE chats SET enabled = ?, updated_at = ? WHERE id = ?`, enabled, now, id)
	return err
}

// GetChat returns a chat by id, or nil if unknown.
func (db *DB) GetChat(id int64) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`SELECT id, title, enabled FROM chats WHERE id = ?`, id).
		Scan(&c.ID, &c.Title, &c.Enabled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// EnabledChats returns all chats the bot currently archives.
func (db *DB) EnabledChats() ([]Chat, error) {
	rows, err := db.Query(`SELECT id, title, enabled FROM chats WHERE enabled = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.Title, &c.Enabled); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// DeleteChat removes a chat and all of its archived messages.
func (db *DB) DeleteChat(id int64) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE chat_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM chats WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// ChatCount returns the total number of chats.
func (db *DB) ChatCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&count)
	return count, err
}

// MessageCount returns the total number of archived messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
