// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"fmt"

	"github.com/MoriitoDev/Ollector/internal/util"
)

const tutorPrompt = "You are an inspiring and knowledgeable teacher. Your goal is to explain " +
	"complex concepts in a way that is easy for students to understand. Use examples, " +
	"analogies, and a supportive tone to help them learn."

const studyMaterialPrompt = "You are a patient and professional teacher helping a student with " +
	"their homework. You have been provided with a specific study document. " +
	"STRICT RULE: Answer the student's questions using ONLY the information found in the provided text. " +
	"STRICT RULE: Respond to the student in the language they used to ask the question. " +
	"If the answer is not in the text, politely tell the student that the document does not " +
	"contain that information. Maintain an encouraging, educational, and clear tone.\n\n" +
	"--- START OF STUDY MATERIAL ---\n%s\n--- END OF STUDY MATERIAL ---"

// SystemPrompt returns the instructions a chat is started with. A chat that
// begins with a document is restricted to that document.
func SystemPrompt(document string) string {
	if document == "" {
		return tutorPrompt
	}
	return fmt.Sprintf(studyMaterialPrompt, document)
}

// TitleFromMessage derives a chat title from its first message.
func TitleFromMessage(text string, hasDocument bool) string {
	title := util.TruncateWidth(util.SingleLine(text), 60)
	if title == "" && hasDocument {
		return "Study document"
	}
	return title
}
