// Package confirm asks a human at a terminal to approve sensitive tool calls.
package confirm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"aura-agents/internal/domain"
)

// maxArgsDisplay truncates long argument payloads in the prompt.
const maxArgsDisplay = 2000

// Terminal prompts on w and reads answers from r, one line per question.
// Answering "a" (always) approves the same tool for the rest of the session.
// It is safe for concurrent use; prompts are serialised.
type Terminal struct {
	writer io.Writer

	mu     sync.Mutex
	always map[string]bool

	startOnce sync.Once
	reader    *bufio.Reader
	lines     chan lineResult
}

type lineResult struct {
	line string
	err  error
}

// NewTerminal creates a prompter over r and w.
func NewTerminal(r io.Reader, w io.Writer) *Terminal {
	return &Terminal{
		writer: w,
		reader: bufio.NewReader(r),
		always: make(map[string]bool),
		lines:  make(chan lineResult, 1),
	}
}

// Confirm asks whether toolID may run with argsJSON. An empty answer means
// no. It returns ctx's error if ctx ends before an answer arrives, and the
// read error if input is closed.
func (t *Terminal) Confirm(ctx context.Context, toolID, description, argsJSON string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.always[toolID] {
		fmt.Fprintf(t.writer, "tool %s approved for this session\n", toolID)
		return true, nil
	}
	t.startOnce.Do(func() { go t.readLoop() })

	border := strings.Repeat("-", 60)
	fmt.Fprintf(t.writer, "\n%s\n", border)
	fmt.Fprintf(t.writer, "  Tool call requires approval: %s\n", toolID)
	if description != "" {
		fmt.Fprintf(t.writer, "  %s\n", description)
	}
	fmt.Fprintf(t.writer, "%s\n%s\n%s\n", border, formatArgs(argsJSON), border)
	fmt.Fprint(t.writer, "Allow? [y/N/a=always]: ")

	select {
	case <-ctx.Done():
		fmt.Fprintln(t.writer)
		return false, domain.Classify("Terminal.Confirm", ctx.Err())
	case res, ok := <-t.lines:
		if !ok {
			return false, fmt.Errorf("read approval: %w", io.EOF)
		}
		if res.err != nil && res.line == "" {
			fmt.Fprintln(t.writer)
			return false, fmt.Errorf("read approval: %w", res.err)
		}
		switch strings.ToLower(strings.TrimSpace(res.line)) {
		case "y", "yes":
			return true, nil
		case "a", "always":
			t.always[toolID] = true
			return true, nil
		}
		return false, nil
	}
}

// readLoop is the only reader of t.reader. It closes t.lines after the
// first read error.
func (t *Terminal) readLoop() {
	defer close(t.lines)
	for {
		line, err := t.reader.ReadString('\n')
		t.lines <- lineResult{line: line, err: err}
		if err != nil {
			return
		}
	}
}

func formatArgs(argsJSON string) string {
	s := argsJSON
	var buf bytes.Buffer
	if json.Indent(&buf, []byte(argsJSON), "  ", "  ") == nil {
		s = buf.String()
	}
	s = "  " + s
	if len(s) > maxArgsDisplay {
		s = s[:maxArgsDisplay] + "\n  ... (truncated)"
	}
	return s
}
