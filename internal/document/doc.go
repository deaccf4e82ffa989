// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package document turns an uploaded study document into plain text for the
// model's system prompt.
//
// PDFs are read with github.com/ledongthuc/pdf. Plain text and markdown pass
// through after UTF-8 validation.
//
// # Usage
//
//	text, err := document.Extract(name, contentType, data)
//	if errors.Is(err, document.ErrUnsupported) {
//	    // reject the upload
//	}
package document
