package store

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
)

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// UpsertMessage inserts or updates a message (idempotent on chat_id +
// msg_key).
func (db *DB) UpsertMessage(m chat.Message) error {
	return upsertMessage(db, m)
}

func upsertMessage(ex execer, m chat.Message) error {
	status := m.Status
	if status == "" {
		status = chat.StatusConfirmed
	}
	_, err := ex.Exec(`
		INSERT INTO messages (chat_id, msg_key, msg_id, sender_id, sender_name, body, status, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, msg_key) DO UPDATE SET
			sender_name = excluded.sender_name,
			body = excluded.body,
			status = excluded.status,
			timestamp = excluded.timestamp`,
		m.ChatID, m.Key(), m.ID, m.SenderID, m.SenderName, m.Text, string(status), unixMilli(m.Timestamp), time.Now().UnixMilli())
	return err
}

// ReplaceMessages swaps a chat's cached messages for msgs in one
// transaction.
func (db *DB) ReplaceMessages(chatID string, msgs []chat.Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("clear chat %s: %w", chatID, err)
	}
	for _, m := range msgs {
		if m.ChatID == "" {
			m.ChatID = chatID
		}
		if err := upsertMessage(tx, m); err != nil {
			return fmt.Errorf("insert message %s: %w", m.Key(), err)
		}
	}
	return tx.Commit()
}

// ListMessages returns up to limit of a chat's most recent messages in
// timestamp order. beforeTs > 0 pages back from that unix-ms instant.
func (db *DB) ListMessages(chatID string, beforeTs int64, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = math.MaxInt64
	}
	rows, err := db.Query(`
		SELECT chat_id, msg_id, sender_id, sender_name, body, status, timestamp
		FROM messages
		WHERE chat_id = ? AND timestamp < ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, chatID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []chat.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (chat.Message, error) {
	var (
		m      chat.Message
		status string
		ts     int64
	)
	if err := row.Scan(&m.ChatID, &m.ID, &m.SenderID, &m.SenderName, &m.Text, &status, &ts); err != nil {
		return chat.Message{}, err
	}
	m.Status = chat.Status(status)
	if ts > 0 {
		m.Timestamp = time.UnixMilli(ts).UTC()
	}
	return m, nil
}
