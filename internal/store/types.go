package store

// Chat represents an archived group chat.
type Chat struct {
	ID      int64
	Title   string
	Enabled bool
}

// User represents a known message sender.
type User struct {
	ID       int64
	Fullname string
	Username string
}

// Message represents one archived chat message.
type Message struct {
	ID       int64 // internal rowid
	MsgID    int64 // transport-assigned message id, unique per chat
	ChatID   int64
	SenderID int64
	Link     string
	Kind     string // text, photo, video, audio, voice, ...
	Text     string
	SentAt   int64 // unix seconds, UTC
}
