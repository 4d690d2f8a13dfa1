package format

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/pixelflow/pkg/artifact"
)

func TestMarkdown(t *testing.T) {
	tests := []struct {
		name    string
		content string
		isTTY   bool
		want    string
	}{
		{name: "plain when not a tty", content: "# Title\n\nbody", isTTY: false, want: "# Title\n\nbody"},
		{name: "escape sequences stripped", content: "\x1b[31mred\x1b[0m caption", isTTY: false, want: "red caption"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Markdown(tt.content, tt.isTTY))
		})
	}
}

func TestMarkdown_TTYRendersText(t *testing.T) {
	out := Markdown("A **bold** caption\x1b[2J", true)
	assert.Contains(t, out, "bold")
	assert.Contains(t, out, "caption")
	assert.NotContains(t, out, "\x1b[2J")
}

func TestJSON(t *testing.T) {
	out, err := JSON(`{"b":1,"a":[true,null]}`, false)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": [\n    true,\n    null\n  ],\n  \"b\": 1\n}", out)

	_, err = JSON(`{"broken"`, false)
	assert.ErrorContains(t, err, "invalid JSON")

	_, err = JSON(strings.Repeat(" ", maxJSONSize+1), false)
	assert.ErrorContains(t, err, "exceeds maximum")
}

func TestJSON_TTYHighlights(t *testing.T) {
	out, err := JSON(`{"a":1}`, true)
	require.NoError(t, err)
	assert.Contains(t, out, "\x1b[")
	assert.Equal(t, "{\n  \"a\": 1\n}", sanitizeANSI(out))
}

func TestContent(t *testing.T) {
	assert.Equal(t, "{\n  \"x\": 1\n}", Content(`{"x":1}`, artifact.DataJSON, false))
	assert.Equal(t, `{"x":`, Content(`{"x":`, artifact.DataJSON, false), "truncated JSON shown as is")
	assert.Equal(t, "hello", Content("hello", artifact.DataText, false))
}

func TestBytes(t *testing.T) {
	assert.Equal(t, "512 B", Bytes(512))
	assert.Equal(t, "1.5 KiB", Bytes(1536))
	assert.Equal(t, "2.0 MiB", Bytes(2*1024*1024))
}

func TestSanitizeANSI(t *testing.T) {
	assert.Equal(t, "plain", sanitizeANSI("\x1b[1;32mplain\x1b[0m"))
}

func TestSource(t *testing.T) {
	src := "name: covers\nsteps: []\n"
	assert.Equal(t, src, Source(src, "yaml", false))

	out := Source(src, "yaml", true)
	assert.Contains(t, out, "\x1b[")
	assert.Contains(t, sanitizeANSI(out), "covers")
}

func TestColorEnabled(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		terminal bool
		want     bool
	}{
		{name: "terminal", env: map[string]string{"TERM": "xterm-256color"}, terminal: true, want: true},
		{name: "piped", env: map[string]string{"TERM": "xterm"}, terminal: false, want: false},
		{name: "no color", env: map[string]string{"TERM": "xterm", "NO_COLOR": "1"}, terminal: true, want: false},
		{name: "dumb terminal", env: map[string]string{"TERM": "dumb"}, terminal: true, want: false},
		{name: "unset TERM", env: map[string]string{}, terminal: true, want: false},
		{name: "forced", env: map[string]string{"CLICOLOR_FORCE": "1"}, terminal: false, want: true},
		{name: "force disabled", env: map[string]string{"CLICOLOR_FORCE": "0", "TERM": "xterm"}, terminal: false, want: false},
		{name: "no color beats force", env: map[string]string{"CLICOLOR_FORCE": "1", "NO_COLOR": "1"}, terminal: true, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getenv := func(k string) string { return tt.env[k] }
			got := colorEnabled(getenv, func() bool { return tt.terminal })
			assert.Equal(t, tt.want, got)
		})
	}
}
