// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// Role says who wrote a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) String() string { return string(r) }

// DisplayName is the label shown above a turn.
func (r Role) DisplayName() string {
	if r == RoleUser {
		return "You"
	}
	return "Teacher"
}

// ParseRole reads a role from the backend. Everything except "user" is an
// answer.
func ParseRole(s string) Role {
	if s == string(RoleUser) {
		return RoleUser
	}
	return RoleAssistant
}

// Turn is one message of a transcript.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func UserTurn(content string) Turn      { return Turn{Role: RoleUser, Content: content} }
func AssistantTurn(content string) Turn { return Turn{Role: RoleAssistant, Content: content} }

// IsEmpty reports whether nothing has been written to the turn.
func (t Turn) IsEmpty() bool { return t.Content == "" }
