// Package format renders step content for the terminal with TTY detection.
package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/glamour"

	"github.com/tombee/pixelflow/pkg/artifact"
)

const (
	maxJSONSize     = 10 * 1024 * 1024
	maxMarkdownSize = 5 * 1024 * 1024
)

// ansiEscapeRegex matches ANSI escape sequences.
var ansiEscapeRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// sanitizeANSI removes ANSI escape sequences so provider output cannot
// drive the terminal.
func sanitizeANSI(s string) string {
	return ansiEscapeRegex.ReplaceAllString(s, "")
}

// Markdown renders text as markdown when isTTY is set. Provider text is
// stripped of escape sequences first. Rendering failures and oversized
// content fall back to the plain text.
func Markdown(content string, isTTY bool) string {
	content = sanitizeANSI(content)
	if !isTTY || len(content) > maxMarkdownSize {
		return content
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return content
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}

// JSON pretty-prints JSON with 2-space indentation and, when isTTY is set,
// syntax highlighting.
func JSON(content string, isTTY bool) (string, error) {
	if len(content) > maxJSONSize {
		return "", fmt.Errorf("output size (%d bytes) exceeds maximum for json format (%d bytes)", len(content), maxJSONSize)
	}

	var obj any
	if err := json.Unmarshal([]byte(content), &obj); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}
	formatted, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format JSON: %w", err)
	}
	if !isTTY {
		return string(formatted), nil
	}

	// Control characters inside strings are escaped by MarshalIndent, so
	// the only escape sequences here are the highlighter's own.
	var buf bytes.Buffer
	if err := quick.Highlight(&buf, string(formatted), "json", "terminal256", "monokai"); err != nil {
		return string(formatted), nil
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// Source highlights a definition file for the terminal. lexer names a
// chroma lexer such as "yaml" or "hcl". Plain content is returned when
// isTTY is unset or highlighting fails.
func Source(content, lexer string, isTTY bool) string {
	if !isTTY {
		return content
	}
	var buf bytes.Buffer
	if err := quick.Highlight(&buf, content, lexer, "terminal256", "monokai"); err != nil {
		return content
	}
	return buf.String()
}

// Content renders a step's text or JSON content. JSON that fails to parse
// is shown as text; event content may have been truncated mid-document.
func Content(content string, typ artifact.DataType, isTTY bool) string {
	if typ == artifact.DataJSON {
		if out, err := JSON(content, isTTY); err == nil {
			return out
		}
		return sanitizeANSI(content)
	}
	return Markdown(content, isTTY)
}

// Bytes formats a byte count for humans, e.g. "1.5 KiB".
func Bytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
