package tools

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderExtendedHelp(t *testing.T) {
	help := &ExtendedHelp{
		WhenToUse: "Questions about current events",
		ParameterDetails: map[string]string{
			"query": "The question",
		},
		Examples: []ToolExample{{
			Description:    "Ask about a release",
			Arguments:      map[string]any{"query": "latest Go release"},
			ExpectedResult: "An answer with citations",
		}},
		CommonPatterns: []string{"Ask full questions"},
		Troubleshooting: []TroubleshootingTip{{
			Problem:  "auth error",
			Solution: "Set an API key",
		}},
	}

	out := RenderExtendedHelp("web_search", help)

	assert.True(t, strings.HasPrefix(out, "web_search\n\n"))
	assert.Contains(t, out, "When to use:\n  Questions about current events")
	assert.Contains(t, out, "  query: The question")
	assert.Contains(t, out, `arguments: {"query":"latest Go release"}`)
	assert.Contains(t, out, "  - Ask full questions")
	assert.Contains(t, out, "  auth error\n    Set an API key")
	assert.NotContains(t, out, "When not to use")
	assert.True(t, strings.HasSuffix(out, "Set an API key\n"))

	assert.Equal(t, "No extended help available for x\n", RenderExtendedHelp("x", nil))
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func readEntries(t *testing.T, path string) []ToolErrorLogEntry {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var entries []ToolErrorLogEntry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry ToolErrorLogEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.NoError(t, scanner.Err())
	return entries
}

func TestToolErrorLogger_WritesSanitisedEntries(t *testing.T) {
	dir := t.TempDir()
	l, err := NewToolErrorLogger(dir, newTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	assert.True(t, l.IsEnabled())
	assert.Equal(t, filepath.Join(dir, "tool-errors.log"), l.GetLogFilePath())

	l.LogToolError("web_search", map[string]any{
		"query":   "go release",
		"api_key": "sk-secret-value",
	}, "upstream", "openai returned 500", "stdio")

	entries := readEntries(t, l.GetLogFilePath())
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "web_search", entry.ToolName)
	assert.Equal(t, "upstream", entry.ErrorType)
	assert.Equal(t, "openai returned 500", entry.Error)
	assert.Equal(t, "stdio", entry.Transport)
	assert.Contains(t, string(entry.Arguments), "go release")
	assert.NotContains(t, string(entry.Arguments), "sk-secret-value")
}

func TestToolErrorLogger_DisabledIsNoop(t *testing.T) {
	l := GetGlobalErrorLogger()
	assert.False(t, l.IsEnabled())
	l.LogToolError("web_search", nil, "auth", "missing key", "stdio")
	assert.NoError(t, l.Close())
}

func TestToolErrorLogger_RotateDropsOldEntries(t *testing.T) {
	dir := t.TempDir()
	l, err := NewToolErrorLogger(dir, newTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now.AddDate(0, 0, -(DefaultLogRetentionDays + 1)) }
	l.LogToolError("web_search", nil, "upstream", "old", "stdio")
	l.now = func() time.Time { return now }
	l.LogToolError("web_search", nil, "upstream", "recent", "stdio")

	require.NoError(t, l.rotateOldLogs())

	entries := readEntries(t, l.GetLogFilePath())
	require.Len(t, entries, 1)
	assert.Equal(t, "recent", entries[0].Error)

	// the file is reopened for appending after rotation
	l.LogToolError("web_search", nil, "auth", "after", "stdio")
	assert.Len(t, readEntries(t, l.GetLogFilePath()), 2)
}
