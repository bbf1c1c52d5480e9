package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrNotObject is returned for message data that is not a JSON object.
var ErrNotObject = errors.New("message is not a JSON object")

type wireMessage struct {
	MongoID    json.RawMessage `json:"_id"`
	ID         json.RawMessage `json:"id"`
	ChatID     string          `json:"chatId"`
	SenderID   json.RawMessage `json:"senderId"`
	SenderName string          `json:"senderName"`
	Text       *string         `json:"text"`
	Timestamp  json.RawMessage `json:"timestamp"`
}

// DecodeMessage converts a server message into a Message. It never fails on
// missing or mistyped fields: the sender becomes "unknown", the text stays
// empty and an unreadable timestamp becomes the zero time. Only data that is
// not a JSON object at all returns an error.
func DecodeMessage(data json.RawMessage) (Message, error) {
	obj, ok := asObject(data)
	if !ok {
		return Message{}, ErrNotObject
	}
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		w = lenientWire(obj)
	}
	return w.message(), nil
}

// DecodeMessages decodes a list, keeping every element that is an object.
func DecodeMessages(items []json.RawMessage) []Message {
	out := make([]Message, 0, len(items))
	for _, item := range items {
		m, err := DecodeMessage(item)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (w wireMessage) message() Message {
	m := Message{
		ID:         idString(w.MongoID),
		ChatID:     w.ChatID,
		SenderID:   idString(w.SenderID),
		SenderName: w.SenderName,
		Timestamp:  ParseTimestamp(w.Timestamp),
		Status:     StatusConfirmed,
	}
	if m.ID == "" {
		m.ID = idString(w.ID)
	}
	if m.SenderID == "" {
		m.SenderID = UnknownSender
	}
	if w.Text != nil {
		m.Text = *w.Text
	}
	return m
}

// lenientWire pulls fields one by one when the object as a whole has a
// field of the wrong type.
func lenientWire(obj map[string]json.RawMessage) wireMessage {
	var w wireMessage
	w.MongoID = obj["_id"]
	w.ID = obj["id"]
	w.SenderID = obj["senderId"]
	w.Timestamp = obj["timestamp"]
	_ = json.Unmarshal(obj["chatId"], &w.ChatID)
	_ = json.Unmarshal(obj["senderName"], &w.SenderName)
	var text string
	if json.Unmarshal(obj["text"], &text) == nil {
		w.Text = &text
	}
	return w
}

func asObject(data json.RawMessage) (map[string]json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// idString accepts a string, a number or an {"$oid": "..."} object.
func idString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	var oid struct {
		OID string `json:"$oid"`
	}
	if json.Unmarshal(raw, &oid) == nil {
		return oid.OID
	}
	return ""
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp reads an ISO 8601 string (with or without zone) or unix
// milliseconds. Anything else yields the zero time.
func ParseTimestamp(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return time.Time{}
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return parseTimestampString(s)
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		if ms, err := n.Int64(); err == nil {
			return time.UnixMilli(ms).UTC()
		}
		if f, err := n.Float64(); err == nil {
			return time.UnixMilli(int64(f)).UTC()
		}
	}
	return time.Time{}
}

func parseTimestampString(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	return time.Time{}
}
