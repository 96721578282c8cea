package store

import (
	"database/sql"
	"strings"
	"time"
)

// UpsertUser inserts or updates a user, keeping existing non-empty names
// when the update carries empty ones.
func (db *DB) UpsertUser(u *User) error {
	now := time.Now().Unix()
	_, err := db.Exec(`
		INSERT INTO users (id, fullname, username, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			fullname = CASE WHEN excluded.fullname != '' THEN excluded.fullname ELSE users.fullname END,
			username = CASE WHEN excluded.username != '' THEN excluded.username ELSE users.username END,
			updated_at = excluded.updated_at`,
		u.ID, u.Fullname, u.Username, now)
	return err
}

// GetUser returns a user by id, or nil if unknown.
func (db *DB) GetUser(id int64) (*User, error) {
	var u User
	err := db.QueryRow(`SELECT id, fullname, username FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Fullname, &u.Username)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindUsers returns users whose fullname or username contains the given
// substring, case-insensitively.
func (db *DB) FindUsers(substr string) ([]User, error) {
	pattern := "%" + strings.ToLower(substr) + "%"
	rows, err := db.Query(`
		SELECT id, fullname, username FROM users
		WHERE LOWER(fullname) LIKE ? OR LOWER(username) LIKE ?`, pattern, pattern)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Fullname, &u.Username); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UserCount returns the total number of known users.
func (db *DB) UserCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}
