package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
)

// UpsertChats stores the backend's chat list in one transaction. The
// backend's unread count and last message win over local values.
func (db *DB) UpsertChats(summaries []chat.Summary) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, s := range summaries {
		var (
			at      int64
			preview string
			sender  string
		)
		if s.LastMessage != nil {
			at = unixMilli(s.LastMessage.Timestamp)
			preview = chat.Message{Text: s.LastMessage.Text}.Preview(previewLen)
			sender = s.LastMessage.SenderID
		}
		if _, err := tx.Exec(`
			INSERT INTO chats (chat_id, with_user, with_user_id, unread_count, last_message_at, last_message_preview, last_sender_id, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(chat_id) DO UPDATE SET
				with_user = excluded.with_user,
				with_user_id = CASE WHEN excluded.with_user_id != '' THEN excluded.with_user_id ELSE chats.with_user_id END,
				unread_count = excluded.unread_count,
				last_message_at = excluded.last_message_at,
				last_message_preview = excluded.last_message_preview,
				last_sender_id = excluded.last_sender_id,
				updated_at = excluded.updated_at`,
			s.ChatID, s.WithUser, s.WithUserID, s.UnreadCount, at, preview, sender, now); err != nil {
			return fmt.Errorf("upsert chat %s: %w", s.ChatID, err)
		}
	}
	return tx.Commit()
}

// TouchChat records m as the chat's latest message if it is newer than
// the stored one, creating the row when missing.
func (db *DB) TouchChat(m chat.Message) error {
	ts := unixMilli(m.Timestamp)
	_, err := db.Exec(`
		INSERT INTO chats (chat_id, last_message_at, last_message_preview, last_sender_id, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			last_message_preview = CASE WHEN excluded.last_message_at >= chats.last_message_at THEN excluded.last_message_preview ELSE chats.last_message_preview END,
			last_sender_id = CASE WHEN excluded.last_message_at >= chats.last_message_at THEN excluded.last_sender_id ELSE chats.last_sender_id END,
			last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
			updated_at = excluded.updated_at`,
		m.ChatID, ts, m.Preview(previewLen), m.SenderID, time.Now().UnixMilli())
	return err
}

// BumpUnread adds one to a chat's unread count.
func (db *DB) BumpUnread(chatID string) error {
	_, err := db.Exec(`
		INSERT INTO chats (chat_id, unread_count, updated_at) VALUES (?, 1, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			unread_count = chats.unread_count + 1,
			updated_at = excluded.updated_at`,
		chatID, time.Now().UnixMilli())
	return err
}

// ClearUnread resets a chat's unread count.
func (db *DB) ClearUnread(chatID string) error {
	_, err := db.Exec(`UPDATE chats SET unread_count = 0, updated_at = ? WHERE chat_id = ?`,
		time.Now().UnixMilli(), chatID)
	return err
}

// ListChats returns cached chats, most recent activity first.
func (db *DB) ListChats(limit, offset int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT chat_id, with_user, with_user_id, unread_count, last_message_at, last_message_preview, last_sender_id
		FROM chats
		ORDER BY last_message_at DESC, chat_id
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ChatID, &c.WithUser, &c.WithUserID, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview, &c.LastSenderID); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat returns a single chat, or nil when it is not cached.
func (db *DB) GetChat(chatID string) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`
		SELECT chat_id, with_user, with_user_id, unread_count, last_message_at, last_message_preview, last_sender_id
		FROM chats WHERE chat_id = ?`, chatID).
		Scan(&c.ChatID, &c.WithUser, &c.WithUserID, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview, &c.LastSenderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
