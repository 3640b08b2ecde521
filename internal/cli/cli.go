// Package cli runs the web_search tool from the command line without an MCP
// server. Tools are invoked in-process through the registry.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcp-websearch/internal/registry"
	"github.com/sammcj/mcp-websearch/internal/tools"
	"github.com/sammcj/mcp-websearch/internal/tools/websearch"
	"github.com/sammcj/mcp-websearch/internal/tools/websearch/grounding"
	"github.com/sirupsen/logrus"
)

// OutputFormat controls how results are rendered.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

// ErrSearchFailed is returned when the search produced an error result. The
// error itself has already been printed.
var ErrSearchFailed = errors.New("web search failed")

// ParseOutputFormat validates an --output value
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (expected text or json)", s)
}

// Runner executes CLI commands against the tool registry.
type Runner struct {
	logger *logrus.Logger
	cache  *sync.Map
	output OutputFormat
	out    io.Writer
}

// NewRunner creates a Runner that uses the given logger, cache, and output format.
func NewRunner(logger *logrus.Logger, cache *sync.Map, output OutputFormat) *Runner {
	return &Runner{logger: logger, cache: cache, output: output, out: os.Stdout}
}

// Search runs web_search for query with the provider built by load
func (r *Runner) Search(ctx context.Context, query string, load websearch.ProviderLoader) error {
	tool := websearch.NewWebSearchTool(load)

	result, err := tool.Execute(ctx, r.logger, r.cache, map[string]any{"query": query})
	if err != nil {
		return fmt.Errorf("tool error: %w", err)
	}
	return r.renderSearch(result)
}

func (r *Runner) renderSearch(result *mcp.CallToolResult) error {
	text := resultText(result)

	var res grounding.Result
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		return fmt.Errorf("unexpected tool output: %w", err)
	}

	if r.output == OutputJSON {
		if err := writeJSON(r.out, res); err != nil {
			return err
		}
		if res.Error != nil {
			return ErrSearchFailed
		}
		return nil
	}

	if res.Error != nil {
		red := color.New(color.FgRed, color.Bold).SprintFunc()
		fmt.Fprintf(r.out, "%s %s\n", red("Error ("+res.Error.Type+"):"), res.Error.Message)
		return ErrSearchFailed
	}

	body, _, _ := strings.Cut(res.LLMContent, "\n\nSources:\n")
	fmt.Fprintln(r.out, body)

	if len(res.Sources) > 0 {
		heading := color.New(color.FgCyan, color.Bold).SprintFunc()
		faint := color.New(color.Faint).SprintFunc()

		fmt.Fprintf(r.out, "\n%s\n", heading("Sources:"))
		for i, src := range res.Sources {
			title := src.Title
			if title == "" {
				title = "Untitled"
			}
			fmt.Fprintf(r.out, "[%d] %s %s\n", i+1, title, faint("("+src.URI+")"))
		}
	}
	return nil
}

// ListTools prints all enabled tools with their descriptions.
func (r *Runner) ListTools() error {
	enabled := registry.GetEnabledTools()

	withHelp := toSet(registry.GetToolNamesWithExtendedHelp())

	type entry struct {
		Name         string `json:"name"`
		Description  string `json:"description"`
		ExtendedHelp bool   `json:"extended_help"`
	}
	entries := make([]entry, 0, len(enabled))
	for _, t := range enabled {
		def := t.Definition()
		entries = append(entries, entry{
			Name:         def.Name,
			Description:  firstLine(def.Description),
			ExtendedHelp: withHelp[def.Name],
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	if r.output == OutputJSON {
		return writeJSON(r.out, entries)
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		helpMark := ""
		if e.ExtendedHelp {
			helpMark = " (see help-tool)"
		}
		fmt.Fprintf(w, "%s\t%s%s\n", e.Name, e.Description, helpMark)
	}
	return w.Flush()
}

// HelpTool prints the parameters and extended help for a single tool.
func (r *Runner) HelpTool(name string) error {
	tool, ok := resolveTool(name)
	if !ok {
		return fmt.Errorf("unknown tool: %s (run 'mcp-websearch tools' to see available tools)", name)
	}

	def := tool.Definition()
	var help *tools.ExtendedHelp
	if provider, ok := tool.(tools.ExtendedHelpProvider); ok {
		help = provider.ProvideExtendedInfo()
	}

	if r.output == OutputJSON {
		return writeJSON(r.out, struct {
			Tool         mcp.Tool            `json:"tool"`
			ExtendedHelp *tools.ExtendedHelp `json:"extended_help,omitempty"`
		}{def, help})
	}

	fmt.Fprintf(r.out, "Tool: %s\n\n", def.Name)
	if def.Description != "" {
		fmt.Fprintf(r.out, "%s\n\n", def.Description)
	}

	props := def.InputSchema.Properties
	required := toSet(def.InputSchema.Required)

	if len(props) > 0 {
		fmt.Fprintln(r.out, "Parameters:")

		names := make([]string, 0, len(props))
		for k := range props {
			names = append(names, k)
		}
		slices.Sort(names)

		w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
		for _, pName := range names {
			pMap, ok := props[pName].(map[string]any)
			if !ok {
				continue
			}
			pType, _ := pMap["type"].(string)
			pDesc, _ := pMap["description"].(string)

			reqMark := ""
			if required[pName] {
				reqMark = " (required)"
			}
			fmt.Fprintf(w, "  %s\t%s\t%s%s\n", pName, pType, firstLine(pDesc), reqMark)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(r.out)
	}

	if help != nil {
		fmt.Fprint(r.out, tools.RenderExtendedHelp(def.Name, help))
	}
	return nil
}

// resolveTool looks a tool up by name, accepting kebab-case for snake_case
// registrations.
func resolveTool(name string) (tools.Tool, bool) {
	if tool, ok := registry.GetTool(name); ok {
		return tool, true
	}
	if snakeName := strings.ReplaceAll(name, "-", "_"); snakeName != name {
		return registry.GetTool(snakeName)
	}
	return nil, false
}

func resultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, content := range result.Content {
		if c, ok := content.(mcp.TextContent); ok {
			return c.Text
		}
	}
	return ""
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstLine(s string) string {
	if before, _, found := strings.Cut(s, "\n"); found {
		return before
	}
	return s
}

func toSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}
