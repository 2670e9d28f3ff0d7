// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"
)

// maxLineSize bounds a single NDJSON line.
const maxLineSize = 1 << 20

// =============================================================================
// LINE READER
// =============================================================================

// lineReader decodes newline-delimited JSON, skipping blank lines.
type lineReader struct {
	scanner *bufio.Scanner
}

func newLineReader(r io.Reader) *lineReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &lineReader{scanner: s}
}

// decode reads the next non-empty line into v. It returns io.EOF at the end.
func (l *lineReader) decode(v any) error {
	for l.scanner.Scan() {
		line := bytes.TrimSpace(l.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		return json.Unmarshal(line, v)
	}
	if err := l.scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

// =============================================================================
// STREAM READER
// =============================================================================

// ErrIncompleteStream is returned when a chat stream ends without a done line.
var ErrIncompleteStream = errors.New("stream ended before completion")

// StreamReader reads chunks from a /api/chat response body.
type StreamReader struct {
	body  io.ReadCloser
	lines *lineReader

	// PERFORMANCE: strings.Builder avoids quadratic allocations
	accumulator strings.Builder
	tokenCount  int
	model       string
	done        bool

	closeOnce sync.Once
}

// NewStreamReader creates a stream reader over a response body.
func NewStreamReader(body io.ReadCloser) *StreamReader {
	return &StreamReader{body: body, lines: newLineReader(body)}
}

// Next returns the next chunk. After the done chunk it returns io.EOF.
// Malformed lines are skipped; server error lines become ClientErrors.
func (s *StreamReader) Next() (StreamChunk, error) {
	for {
		if s.done {
			return StreamChunk{}, io.EOF
		}

		var line chatLine
		err := s.lines.decode(&line)
		if err == io.EOF {
			return StreamChunk{}, &ClientError{Type: ErrTypeInvalidResponse, Message: "chat stream failed", Cause: ErrIncompleteStream}
		}
		if err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				continue
			}
			return StreamChunk{}, &ClientError{Type: ErrTypeConnection, Message: "chat stream interrupted", Cause: err}
		}
		if line.Error != "" {
			return StreamChunk{}, &ClientError{Type: ErrTypeInvalidResponse, Message: "chat stream failed", Cause: errors.New(line.Error)}
		}

		if line.Model != "" {
			s.model = line.Model
		}
		content := line.Message.Content
		if content != "" {
			s.accumulator.WriteString(content)
			s.tokenCount++
		}

		chunk := StreamChunk{Content: content, Done: line.Done, Model: s.model}
		if line.Done {
			s.done = true
			chunk.DoneReason = line.DoneReason
			chunk.TotalDuration = time.Duration(line.TotalDuration)
			chunk.LoadDuration = time.Duration(line.LoadDuration)
			chunk.EvalDuration = time.Duration(line.EvalDuration)
			chunk.PromptTokens = line.PromptEvalCount
			chunk.CompletionTokens = line.EvalCount
		}
		if content == "" && !line.Done {
			continue
		}
		return chunk, nil
	}
}

// Accumulated returns all content received so far.
func (s *StreamReader) Accumulated() string {
	return s.accumulator.String()
}

// TokenCount returns the number of non-empty chunks received.
func (s *StreamReader) TokenCount() int {
	return s.tokenCount
}

// Model returns the model name reported by the stream.
func (s *StreamReader) Model() string {
	return s.model
}

// Done reports whether the done line has been read.
func (s *StreamReader) Done() bool {
	return s.done
}

// Close releases the response body. Safe to call more than once.
func (s *StreamReader) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.body.Close() })
	return err
}
