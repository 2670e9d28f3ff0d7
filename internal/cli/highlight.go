// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
)

// codeBlock is one fenced block from a markdown reply.
type codeBlock struct {
	Language string
	Code     string
}

// label names the block's language, detecting it when the fence has none.
func (b codeBlock) label() string {
	if b.Language != "" {
		return b.Language
	}
	if lexer := lexers.Analyse(b.Code); lexer != nil {
		return strings.ToLower(lexer.Config().Name)
	}
	return "text"
}

// extractCodeBlocks returns the fenced blocks of text in order. An
// unclosed final fence still yields its lines.
func extractCodeBlocks(text string) []codeBlock {
	var (
		blocks []codeBlock
		lines  []string
		lang   string
		inside bool
	)
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if inside {
				blocks = append(blocks, codeBlock{Language: lang, Code: strings.Join(lines, "\n")})
				lines, lang, inside = nil, "", false
			} else {
				lang = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
				inside = true
			}
			continue
		}
		if inside {
			lines = append(lines, line)
		}
	}
	if inside && len(lines) > 0 {
		blocks = append(blocks, codeBlock{Language: lang, Code: strings.Join(lines, "\n")})
	}
	return blocks
}

// highlightCode renders b with terminal colors, or returns the plain code
// when color is off or tokenizing fails.
func highlightCode(b codeBlock, color bool) string {
	if !color {
		return b.Code
	}

	lexer := lexers.Get(b.Language)
	if lexer == nil {
		lexer = lexers.Analyse(b.Code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, b.Code)
	if err != nil {
		return b.Code
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return b.Code
	}
	return strings.TrimRight(buf.String(), "\n")
}
