package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
)

// Tool is the interface that all MCP tool implementations must satisfy
type Tool interface {
	// Definition returns the tool's definition for MCP registration
	Definition() mcp.Tool

	// Execute runs the tool using shared resources (logger, cache) and parsed arguments
	Execute(ctx context.Context, logger *logrus.Logger, cache *sync.Map, args map[string]any) (*mcp.CallToolResult, error)
}

// ExtendedHelpProvider is an optional interface for tools with detailed
// usage information, examples and troubleshooting help
type ExtendedHelpProvider interface {
	ProvideExtendedInfo() *ExtendedHelp
}

// ExtendedHelp contains detailed information about a tool's usage
type ExtendedHelp struct {
	Examples         []ToolExample        `json:"examples,omitempty"`
	CommonPatterns   []string             `json:"common_patterns,omitempty"`
	Troubleshooting  []TroubleshootingTip `json:"troubleshooting,omitempty"`
	ParameterDetails map[string]string    `json:"parameter_details,omitempty"`
	WhenToUse        string               `json:"when_to_use,omitempty"`
	WhenNotToUse     string               `json:"when_not_to_use,omitempty"`
}

// ToolExample represents a usage example for a tool
type ToolExample struct {
	Description    string         `json:"description"`
	Arguments      map[string]any `json:"arguments"`
	ExpectedResult string         `json:"expected_result,omitempty"`
}

// TroubleshootingTip represents a troubleshooting tip for a tool
type TroubleshootingTip struct {
	Problem  string `json:"problem"`
	Solution string `json:"solution"`
}

// RenderExtendedHelp formats help as plain text for the command line
func RenderExtendedHelp(toolName string, help *ExtendedHelp) string {
	if help == nil {
		return fmt.Sprintf("No extended help available for %s\n", toolName)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", toolName)

	if help.WhenToUse != "" {
		fmt.Fprintf(&b, "When to use:\n  %s\n\n", help.WhenToUse)
	}
	if help.WhenNotToUse != "" {
		fmt.Fprintf(&b, "When not to use:\n  %s\n\n", help.WhenNotToUse)
	}

	if len(help.ParameterDetails) > 0 {
		b.WriteString("Parameters:\n")
		names := make([]string, 0, len(help.ParameterDetails))
		for name := range help.ParameterDetails {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			fmt.Fprintf(&b, "  %s: %s\n", name, help.ParameterDetails[name])
		}
		b.WriteString("\n")
	}

	if len(help.Examples) > 0 {
		b.WriteString("Examples:\n")
		for _, ex := range help.Examples {
			fmt.Fprintf(&b, "  %s\n", ex.Description)
			if args, err := json.Marshal(ex.Arguments); err == nil {
				fmt.Fprintf(&b, "    arguments: %s\n", args)
			}
			if ex.ExpectedResult != "" {
				fmt.Fprintf(&b, "    result: %s\n", ex.ExpectedResult)
			}
		}
		b.WriteString("\n")
	}

	if len(help.CommonPatterns) > 0 {
		b.WriteString("Tips:\n")
		for _, pattern := range help.CommonPatterns {
			fmt.Fprintf(&b, "  - %s\n", pattern)
		}
		b.WriteString("\n")
	}

	if len(help.Troubleshooting) > 0 {
		b.WriteString("Troubleshooting:\n")
		for _, tip := range help.Troubleshooting {
			fmt.Fprintf(&b, "  %s\n    %s\n", tip.Problem, tip.Solution)
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}
