package store

import (
	"fmt"
	"net/http"
	"time"
)

// LoadCookies returns the saved backend session cookies.
func (db *DB) LoadCookies() ([]*http.Cookie, error) {
	rows, err := db.Query(`SELECT name, value FROM cookies ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var cookies []*http.Cookie
	for rows.Next() {
		c := &http.Cookie{Path: "/"}
		if err := rows.Scan(&c.Name, &c.Value); err != nil {
			return nil, err
		}
		cookies = append(cookies, c)
	}
	return cookies, rows.Err()
}

// SaveCookies replaces the saved cookies with cookies.
func (db *DB) SaveCookies(cookies []*http.Cookie) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM cookies`); err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	for _, c := range cookies {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO cookies (name, value, updated_at) VALUES (?, ?, ?)`,
			c.Name, c.Value, now); err != nil {
			return fmt.Errorf("save cookie %s: %w", c.Name, err)
		}
	}
	return tx.Commit()
}
