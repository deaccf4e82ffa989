// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render turns finished answers into terminal markdown with glamour.
//
// Only finalized assistant turns are rendered. The in-progress turn is shown
// as plain text so partially streamed markup never flickers.
//
// # Usage
//
//	md := render.NewMarkdown(render.StyleFor(theme), width, cfg.UI.Markdown)
//	fmt.Println(md.Render(turn.Content))
package render
