// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// sessions.go - List and print stored chats.

package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/MoriitoDev/Ollector/internal/backend"
	"github.com/MoriitoDev/Ollector/internal/logging"
	"github.com/MoriitoDev/Ollector/internal/model"
	"github.com/MoriitoDev/Ollector/internal/session"
)

// sessionJSON is the --json form of a chat.
type sessionJSON struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	CreatedAt     string            `json:"createdAt"`
	UpdatedAt     string            `json:"updatedAt"`
	HasAttachment bool              `json:"hasAttachment"`
	Messages      []backend.Message `json:"messages,omitempty"`
}

func toSessionJSON(s model.Session) sessionJSON {
	return sessionJSON{
		ID:            s.ID,
		Title:         s.DisplayTitle(),
		CreatedAt:     s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     s.UpdatedAt.UTC().Format(time.RFC3339),
		HasAttachment: s.HasAttachment,
	}
}

func newSessionsCmd(a *app) *cobra.Command {
	var jsonMode bool

	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"chats"},
		Short:   "List and show stored chats",
	}
	cmd.PersistentFlags().BoolVar(&jsonMode, "json", false, "print JSON")

	list := &cobra.Command{
		Use:   "list",
		Short: "List chats, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := a.newRegistry()
			return respond(cmd.OutOrStdout(), jsonMode, "sessions list", func() (any, error) {
				sessions, err := registry.List(cmd.Context())
				if err != nil {
					return nil, err
				}
				if !jsonMode {
					if len(sessions) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), dim("No chats yet."))
						return nil, nil
					}
					fmt.Fprint(cmd.OutOrStdout(), formatSessionList(sessions, ""))
					return nil, nil
				}
				out := make([]sessionJSON, 0, len(sessions))
				for _, s := range sessions {
					out = append(out, toSessionJSON(s))
				}
				return out, nil
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <n|id>",
		Short: "Print a chat; n is a position in 'sessions list'",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := a.newRegistry()
			return respond(cmd.OutOrStdout(), jsonMode, "sessions show", func() (any, error) {
				id, err := resolveSessionID(cmd.Context(), registry, args[0])
				if err != nil {
					return nil, err
				}
				if err := registry.Open(cmd.Context(), id); err != nil {
					if errors.Is(err, session.ErrSessionNotFound) {
						return nil, &NotFoundError{Kind: "chat", ID: id}
					}
					return nil, err
				}
				meta, _ := registry.Lookup(id)
				turns := registry.View().Turns()

				if !jsonMode {
					theme := a.theme()
					fmt.Fprintln(cmd.OutOrStdout(), theme.HeaderTitle.Render(meta.DisplayTitle()))
					fmt.Fprint(cmd.OutOrStdout(), formatTranscript(turns, theme, a.markdown(theme)))
					return nil, nil
				}
				out := toSessionJSON(meta)
				out.ID = id
				for _, t := range turns {
					out.Messages = append(out.Messages, backend.Message{Role: t.Role.String(), Content: t.Content})
				}
				return out, nil
			})
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func (a *app) newRegistry() *session.Registry {
	return session.NewRegistry(a.newClient(), logging.With("session"))
}

// resolveSessionID maps a 1-based list position to an id. Anything else is
// taken as an id.
func resolveSessionID(ctx context.Context, registry *session.Registry, arg string) (string, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return arg, nil
	}
	sessions, err := registry.List(ctx)
	if err != nil {
		return "", err
	}
	if n < 1 || n > len(sessions) {
		return "", &InputError{
			Name:    "position",
			Value:   arg,
			Problem: fmt.Sprintf("there are %d chats", len(sessions)),
		}
	}
	return sessions[n-1].ID, nil
}
