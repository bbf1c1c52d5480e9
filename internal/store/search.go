package store

import "strings"

// SearchMessages finds cached messages whose text contains query,
// newest first. chatID narrows the search to one chat.
func (db *DB) SearchMessages(query string, chatID string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT chat_id, msg_id, sender_id, sender_name, body, status, timestamp
		FROM messages
		WHERE body LIKE ? ESCAPE '\'`
	args := []any{"%" + escapeLike(query) + "%"}
	if chatID != "" {
		q += " AND chat_id = ?"
		args = append(args, chatID)
	}
	q += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{Message: m, Snippet: snippet(m.Text, query, 32)})
	}
	return results, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// snippet marks the first case-insensitive match of query in text with
// << >> and trims the surroundings to about width runes on each side.
func snippet(text, query string, width int) string {
	idx := strings.Index(strings.ToLower(text), strings.ToLower(query))
	if idx < 0 {
		return text
	}
	before := []rune(text[:idx])
	match := text[idx : idx+len(query)]
	after := []rune(text[idx+len(query):])

	prefix := ""
	if len(before) > width {
		before = before[len(before)-width:]
		prefix = "..."
	}
	suffix := ""
	if len(after) > width {
		after = after[:width]
		suffix = "..."
	}
	return prefix + string(before) + "<<" + match + ">>" + string(after) + suffix
}
