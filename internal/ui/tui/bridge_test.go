// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MoriitoDev/Ollector/internal/model"
)

func countRefresh(msgs []tea.Msg) int {
	n := 0
	for _, m := range msgs {
		if _, ok := m.(refreshMsg); ok {
			n++
		}
	}
	return n
}

func TestBridge_CoalescesTranscriptEvents(t *testing.T) {
	log := &msgLog{}
	b := NewBridge()
	b.setPost(log.post)

	tr := model.NewTranscript()
	if !b.Watch(tr) {
		t.Fatal("Watch() = false for a new transcript")
	}
	if b.Watch(tr) {
		t.Error("Watch() = true for the same transcript")
	}

	_ = tr.AppendUser("q")
	_ = tr.BeginAssistant()
	for _, d := range []string{"a", "b", "c"} {
		_ = tr.AppendDelta(d)
	}
	if n := countRefresh(log.take()); n != 1 {
		t.Errorf("refreshes before ack = %d, want 1", n)
	}

	b.ack()
	_ = tr.AppendDelta("d")
	if n := countRefresh(log.take()); n != 1 {
		t.Errorf("refreshes after ack = %d, want 1", n)
	}
}

func TestBridge_WatchReplacesSubscription(t *testing.T) {
	log := &msgLog{}
	b := NewBridge()
	b.setPost(log.post)

	old := model.NewTranscript()
	b.Watch(old)
	b.Watch(model.NewTranscript())
	log.take()
	b.ack()

	_ = old.AppendUser("ignored")
	if n := countRefresh(log.take()); n != 0 {
		t.Errorf("old transcript still posts refreshes (%d)", n)
	}
}

func TestBridge_InputState(t *testing.T) {
	b := NewBridge()

	if enabled, clear := b.takeInput(); !enabled || clear {
		t.Errorf("initial takeInput() = %v, %v", enabled, clear)
	}

	b.Clear()
	b.SetEnabled(false)
	if enabled, clear := b.takeInput(); enabled || !clear {
		t.Errorf("takeInput() = %v, %v, want disabled with clear", enabled, clear)
	}
	if _, clear := b.takeInput(); clear {
		t.Error("clear was not consumed")
	}
}

func TestBridge_DropsUntilAttached(t *testing.T) {
	b := NewBridge()
	b.SetEnabled(false)
	b.RegistryChanged()
	b.PlaybackChanged()

	log := &msgLog{}
	b.setPost(log.post)
	b.Close()
	b.RegistryChanged()
	if msgs := log.take(); len(msgs) != 0 {
		t.Errorf("closed bridge posted %d messages", len(msgs))
	}
}
