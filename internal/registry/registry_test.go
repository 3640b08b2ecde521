package registry

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcp-websearch/internal/tools"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct {
	name string
}

func (s *stubTool) Definition() mcp.Tool {
	return mcp.NewTool(s.name)
}

func (s *stubTool) Execute(_ context.Context, _ *logrus.Logger, _ *sync.Map, _ map[string]any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(s.name), nil
}

type helpfulTool struct {
	stubTool
}

func (h *helpfulTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{WhenToUse: "always"}
}

func resetRegistry(t *testing.T) {
	t.Helper()
	saved := toolRegistry
	toolRegistry = make(map[string]tools.Tool)
	t.Cleanup(func() { toolRegistry = saved })

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	Init(logger)
}

func TestRegisterAndGet(t *testing.T) {
	t.Setenv("DISABLED_TOOLS", "")
	resetRegistry(t)

	Register(&stubTool{name: "alpha"})
	Register(&helpfulTool{stubTool{name: "beta"}})

	tool, ok := GetTool("alpha")
	require.True(t, ok)
	assert.Equal(t, "alpha", tool.Definition().Name)

	assert.Equal(t, []string{"alpha", "beta"}, GetEnabledToolNames())
	assert.Equal(t, []string{"beta"}, GetToolNamesWithExtendedHelp())
	assert.NotNil(t, GetCache())
	assert.NotNil(t, GetLogger())
}

func TestDisabledTools(t *testing.T) {
	t.Setenv("DISABLED_TOOLS", " Web-Search , other")
	resetRegistry(t)

	Register(&stubTool{name: "web_search"})
	Register(&stubTool{name: "alpha"})

	_, ok := GetTool("web_search")
	assert.False(t, ok)
	assert.Equal(t, []string{"alpha"}, GetEnabledToolNames())
}

func TestDisabledAfterRegistration(t *testing.T) {
	t.Setenv("DISABLED_TOOLS", "")
	resetRegistry(t)
	Register(&stubTool{name: "web_search"})

	t.Setenv("DISABLED_TOOLS", "web_search")
	Init(GetLogger())

	_, ok := GetTool("web_search")
	assert.False(t, ok)
	assert.Empty(t, GetEnabledTools())
}
