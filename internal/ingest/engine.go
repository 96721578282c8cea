// Package ingest moves inbound chat traffic into the archive store.
package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/qiaoborui/telegram-search-bot/internal/bus"
	"github.com/qiaoborui/telegram-search-bot/internal/store"
)

// Inbound is the payload of a "tg.message" event: one archived message
// together with the sender and chat metadata seen on the update.
type Inbound struct {
	Chat    store.Chat
	User    store.User
	Message store.Message
}

// Engine consumes "tg." events from the bus and writes them to the store
// idempotently.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewEngine creates an ingestion engine.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		db:     db,
		bus:    b,
		logger: logger,
	}
}

// Start subscribes to inbound transport events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("tg.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case "tg.message":
		in, ok := evt.Payload.(*Inbound)
		if !ok {
			return
		}
		if err := e.IngestMessage(in); err != nil {
			e.logger.Error("failed to ingest message", zap.Error(err),
				zap.Int64("chat_id", in.Message.ChatID), zap.Int64("msg_id", in.Message.MsgID))
		}
	case "tg.history_batch":
		batch, ok := evt.Payload.([]*Inbound)
		if !ok {
			return
		}
		if err := e.IngestHistoryBatch(batch); err != nil {
			e.logger.Error("failed to ingest history batch", zap.Error(err), zap.Int("count", len(batch)))
		} else {
			e.logger.Info("history batch ingested", zap.Int("messages", len(batch)))
		}
	}
}

// IngestMessage stores one inbound message. Re-delivery of the same
// (chat, msg) pair updates the stored copy instead of duplicating it.
func (e *Engine) IngestMessage(in *Inbound) error {
	if err := e.db.UpsertChat(&in.Chat); err != nil {
		return fmt.Errorf("upsert chat: %w", err)
	}
	if err := e.db.UpsertUser(&in.User); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	if err := e.db.UpsertMessage(&in.Message); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}

	e.bus.Publish(bus.Event{
		Kind:      "ingest.stored",
		Timestamp: time.Now(),
		Payload: map[string]int64{
			"chat_id": in.Message.ChatID,
			"msg_id":  in.Message.MsgID,
		},
	})

	return nil
}

// IngestHistoryBatch stores a batch of backfilled messages in one
// transaction.
func (e *Engine) IngestHistoryBatch(batch []*Inbound) error {
	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, in := range batch {
		if _, err := tx.Exec(`
			INSERT INTO chats (id, title, enabled, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = CASE WHEN excluded.title != '' THEN excluded.title ELSE chats.title END,
				updated_at = excluded.updated_at`,
			in.Chat.ID, in.Chat.Title, in.Chat.Enabled, now); err != nil {
			return fmt.Errorf("upsert chat in batch: %w", err)
		}

		if _, err := tx.Exec(`
			INSERT INTO users (id, fullname, username, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				fullname = CASE WHEN excluded.fullname != '' THEN excluded.fullname ELSE users.fullname END,
				username = CASE WHEN excluded.username != '' THEN excluded.username ELSE users.username END,
				updated_at = excluded.updated_at`,
			in.User.ID, in.User.Fullname, in.User.Username, now); err != nil {
			return fmt.Errorf("upsert user in batch: %w", err)
		}

		if _, err := tx.Exec(`
			INSERT INTO messages (msg_id, chat_id, sender_id, link, kind, text, sent_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(chat_id, msg_id) DO UPDATE SET
				link = excluded.link,
				kind = excluded.kind,
				text = excluded.text`,
			in.Message.MsgID, in.Message.ChatID, in.Message.SenderID,
			in.Message.Link, in.Message.Kind, in.Message.Text, in.Message.SentAt, now); err != nil {
			return fmt.Errorf("upsert message in batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	e.bus.Publish(bus.Event{
		Kind:      "ingest.history_batch",
		Timestamp: time.Now(),
		Payload:   map[string]int{"messages_count": len(batch)},
	})

	return nil
}
