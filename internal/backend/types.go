// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/MoriitoDev/Ollector/internal/model"
)

// =============================================================================
// TIMESTAMP
// =============================================================================

// Timestamp decodes RFC 3339 strings as well as Unix epoch numbers (seconds or
// milliseconds). It always encodes as RFC 3339.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				t.Time = parsed
				return nil
			}
		}
		return fmt.Errorf("invalid timestamp %q", s)
	}

	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s", data)
	}
	// Values past year 33658 in seconds are milliseconds.
	if f > 1e12 {
		t.Time = time.UnixMilli(int64(f))
	} else {
		sec := int64(f)
		t.Time = time.Unix(sec, int64((f-float64(sec))*1e9))
	}
	return nil
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// Message is a stored chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatSummary is a chat as returned by POST /chats and GET /chats.
type ChatSummary struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	CreatedAt     Timestamp `json:"createdAt"`
	UpdatedAt     Timestamp `json:"updatedAt"`
	HasAttachment bool      `json:"hasAttachment"`
	Messages      []Message `json:"messages,omitempty"`
}

// ChatDetail is a chat as returned by GET /chats/{id}.
type ChatDetail struct {
	ChatSummary
}

// ListChatsResponse is the body of GET /chats.
type ListChatsResponse struct {
	Chats []ChatSummary `json:"chats"`
}

// Session converts the summary to session metadata.
func (c ChatSummary) Session() model.Session {
	return model.Session{
		ID:            c.ID,
		Title:         c.Title,
		CreatedAt:     c.CreatedAt.Time,
		UpdatedAt:     c.UpdatedAt.Time,
		HasAttachment: c.HasAttachment,
		MessageCount:  len(c.Messages),
	}
}

// Turns converts stored messages to transcript turns. Messages with empty
// content are kept so indices match the backend.
func (c ChatDetail) Turns() []model.Turn {
	turns := make([]model.Turn, 0, len(c.Messages))
	for _, m := range c.Messages {
		turns = append(turns, model.Turn{Role: model.ParseRole(m.Role), Content: m.Content})
	}
	return turns
}

// =============================================================================
// ATTACHMENT
// =============================================================================

// MaxAttachmentSize is the largest document the client will upload.
const MaxAttachmentSize = 20 << 20

// Attachment is a document sent along with a message.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// LoadAttachment reads a document from disk.
func LoadAttachment(path string) (*Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > MaxAttachmentSize {
		return nil, fmt.Errorf("%s is too large (%d bytes, max %d)", path, info.Size(), MaxAttachmentSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	name := filepath.Base(path)
	ct := mime.TypeByExtension(filepath.Ext(name))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &Attachment{Name: name, ContentType: ct, Data: data}, nil
}

// Size returns the attachment size in bytes.
func (a *Attachment) Size() int {
	if a == nil {
		return 0
	}
	return len(a.Data)
}

// =============================================================================
// AUDIO
// =============================================================================

// Audio is synthesized speech.
type Audio struct {
	Data        []byte
	ContentType string
}
