package chat

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecodeMessage(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   string
		want Message
	}{
		{
			name: "mongo id and iso timestamp",
			in:   `{"_id":"m1","chatId":"c1","senderId":"u1","senderName":"ana","text":"hi","timestamp":"2024-03-01T10:00:00Z"}`,
			want: Message{ID: "m1", ChatID: "c1", SenderID: "u1", SenderName: "ana", Text: "hi", Timestamp: ts, Status: StatusConfirmed},
		},
		{
			name: "plain id and unix millis",
			in:   `{"id":"m2","chatId":"c1","senderId":"u2","text":"yo","timestamp":1709287200000}`,
			want: Message{ID: "m2", ChatID: "c1", SenderID: "u2", Text: "yo", Timestamp: ts, Status: StatusConfirmed},
		},
		{
			name: "naive iso timestamp read as utc",
			in:   `{"_id":"m3","senderId":"u1","text":"x","timestamp":"2024-03-01T10:00:00.000"}`,
			want: Message{ID: "m3", SenderID: "u1", Text: "x", Timestamp: ts, Status: StatusConfirmed},
		},
		{
			name: "oid object",
			in:   `{"_id":{"$oid":"abc"},"senderId":"u1","text":"x","timestamp":"2024-03-01T10:00:00Z"}`,
			want: Message{ID: "abc", SenderID: "u1", Text: "x", Timestamp: ts, Status: StatusConfirmed},
		},
		{
			name: "missing fields fall back",
			in:   `{"chatId":"c1"}`,
			want: Message{ChatID: "c1", SenderID: UnknownSender, Status: StatusConfirmed},
		},
		{
			name: "mistyped fields fall back",
			in:   `{"_id":7,"chatId":"c1","senderId":null,"text":"ok","timestamp":"yesterday"}`,
			want: Message{ID: "7", ChatID: "c1", SenderID: UnknownSender, Text: "ok", Status: StatusConfirmed},
		},
		{
			name: "wrong type for text keeps the rest",
			in:   `{"_id":"m4","chatId":"c1","senderId":"u1","text":42,"timestamp":"2024-03-01T10:00:00Z"}`,
			want: Message{ID: "m4", ChatID: "c1", SenderID: "u1", Timestamp: ts, Status: StatusConfirmed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeMessage(json.RawMessage(tt.in))
			if err != nil {
				t.Fatalf("DecodeMessage() error = %v", err)
			}
			if !got.Timestamp.Equal(tt.want.Timestamp) {
				t.Errorf("Timestamp = %v, want %v", got.Timestamp, tt.want.Timestamp)
			}
			got.Timestamp, tt.want.Timestamp = time.Time{}, time.Time{}
			if got != tt.want {
				t.Errorf("DecodeMessage() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeMessageRejectsNonObject(t *testing.T) {
	for _, in := range []string{`"text"`, `[1,2]`, `null`, `{`} {
		if _, err := DecodeMessage(json.RawMessage(in)); err == nil {
			t.Errorf("DecodeMessage(%s) should fail", in)
		}
	}
}

func TestDecodeMessagesSkipsNonObjects(t *testing.T) {
	items := []json.RawMessage{
		json.RawMessage(`{"_id":"a","text":"1"}`),
		json.RawMessage(`5`),
		json.RawMessage(`{"_id":"b","text":"2"}`),
	}
	got := DecodeMessages(items)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("DecodeMessages() = %+v", got)
	}
}

func TestKey(t *testing.T) {
	ts := time.Unix(100, 5)
	withID := Message{ID: "m1", SenderID: "u1", Text: "hi", Timestamp: ts}
	if withID.Key() != "id:m1" {
		t.Errorf("Key() = %q", withID.Key())
	}

	a := Message{SenderID: "u1", Text: "hi", Timestamp: ts}
	b := Message{SenderID: "u1", Text: "hi", Timestamp: ts}
	if a.Key() != b.Key() {
		t.Error("content-equal messages should share a key")
	}
	c := Message{SenderID: "u1", Text: "hi", Timestamp: ts.Add(time.Millisecond)}
	if a.Key() == c.Key() {
		t.Error("different timestamps should not share a key")
	}
}

func TestPreview(t *testing.T) {
	m := Message{Text: "first line\nsecond"}
	if got := m.Preview(20); got != "first line" {
		t.Errorf("Preview() = %q", got)
	}
	if got := m.Preview(5); got != "first…" {
		t.Errorf("Preview(5) = %q", got)
	}
}
