// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sort"
	"time"
)

// DefaultSessionTitle is shown for sessions the backend has not titled yet.
const DefaultSessionTitle = "New Conversation"

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session holds lightweight metadata for a backend chat session.
// The ID is always assigned by the backend.
type Session struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	HasAttachment bool      `json:"has_attachment"`
	MessageCount  int       `json:"message_count"`
}

// DisplayTitle returns the session title or a default.
func (s Session) DisplayTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return DefaultSessionTitle
}

// SortByRecent orders sessions by UpdatedAt, most recent first. Ties keep
// their relative order.
func SortByRecent(sessions []Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
}
