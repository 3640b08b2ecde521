package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/sammcj/mcp-websearch/internal/cli"
	"github.com/sammcj/mcp-websearch/internal/config"
	"github.com/sammcj/mcp-websearch/internal/registry"
	"github.com/sammcj/mcp-websearch/internal/telemetry"
	"github.com/sammcj/mcp-websearch/internal/tools"
	"github.com/sammcj/mcp-websearch/internal/tools/websearch"
	"github.com/sirupsen/logrus"
	urfavecli "github.com/urfave/cli/v3"

	// Import all tool packages to register them
	_ "github.com/sammcj/mcp-websearch/internal/imports"
)

// Version information (set during build)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Global resources that need cleanup. Atomic so signal handlers and cleanup
// cannot race.
var (
	debugLogFile atomic.Pointer[os.File]
	isStdioMode  atomic.Bool
)

const (
	// DefaultMemoryLimit is the default soft memory limit for the process (1GB)
	DefaultMemoryLimit = 1024 * 1024 * 1024

	serverName = "mcp-websearch"
)

// parseLogLevel parses LOG_LEVEL, defaulting to warn when unset or invalid.
func parseLogLevel() logrus.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.WarnLevel
	}
}

// setMemoryLimit configures the Go runtime memory limit
func setMemoryLimit() {
	var memLimit int64 = DefaultMemoryLimit
	if raw := os.Getenv("MCP_WEBSEARCH_MEMORY_LIMIT"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 {
			memLimit = parsed
		}
	}
	debug.SetMemoryLimit(memLimit)
}

func main() {
	setMemoryLimit()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Output is discarded until the transport is known so nothing reaches
	// stdout ahead of the stdio protocol.
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(parseLogLevel())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// reported once the logger has somewhere to write
	dotEnvErr := config.LoadDotEnv()
	registry.Init(logger)

	defer performCleanup(logger)

	app := &urfavecli.Command{
		Name:    serverName,
		Usage:   "MCP server that answers web searches with cited sources",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate),
		Flags: []urfavecli.Flag{
			&urfavecli.StringFlag{
				Name:    "transport",
				Aliases: []string{"t"},
				Value:   "stdio",
				Usage:   "Transport type (stdio, sse, or http)",
			},
			&urfavecli.StringFlag{
				Name:  "port",
				Value: "18080",
				Usage: "Port to use for HTTP transports (SSE and Streamable HTTP)",
			},
			&urfavecli.StringFlag{
				Name:  "base-url",
				Value: "http://localhost",
				Usage: "Base URL for HTTP transports",
			},
			&urfavecli.StringFlag{
				Name:    "auth-token",
				Usage:   "Bearer token required by the Streamable HTTP transport (optional)",
				Sources: urfavecli.EnvVars("MCP_WEBSEARCH_AUTH_TOKEN"),
			},
			&urfavecli.StringFlag{
				Name:  "endpoint-path",
				Value: "/http",
				Usage: "Endpoint path for Streamable HTTP transport",
			},
			&urfavecli.DurationFlag{
				Name:  "session-timeout",
				Value: 30 * time.Minute,
				Usage: "Session timeout for Streamable HTTP transport",
			},
		},
		Commands: []*urfavecli.Command{
			{
				Name:  "version",
				Usage: "Print version information",
				Action: func(ctx context.Context, cmd *urfavecli.Command) error {
					fmt.Printf("%s version %s\n", serverName, Version)
					fmt.Printf("Commit: %s\n", Commit)
					fmt.Printf("Built: %s\n", BuildDate)
					return nil
				},
			},
			searchCommand(logger, dotEnvErr),
			{
				Name:  "tools",
				Usage: "List the tools this server provides",
				Flags: []urfavecli.Flag{outputFlag()},
				Action: func(ctx context.Context, cmd *urfavecli.Command) error {
					runner, err := newRunner(logger, cmd, dotEnvErr)
					if err != nil {
						return err
					}
					return runner.ListTools()
				},
			},
			{
				Name:      "help-tool",
				Usage:     "Show parameters, examples and troubleshooting for a tool",
				ArgsUsage: "<tool>",
				Flags:     []urfavecli.Flag{outputFlag()},
				Action: func(ctx context.Context, cmd *urfavecli.Command) error {
					if cmd.Args().Len() != 1 {
						return fmt.Errorf("expected exactly one tool name")
					}
					runner, err := newRunner(logger, cmd, dotEnvErr)
					if err != nil {
						return err
					}
					return runner.HelpTool(cmd.Args().First())
				},
			},
		},
		Action: func(cliCtx context.Context, cmd *urfavecli.Command) error {
			return serve(cliCtx, cmd, logger, dotEnvErr)
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		// In stdio mode nothing may be written to stdout or stderr
		if !isStdioMode.Load() && !errors.Is(err, cli.ErrSearchFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		// os.Exit skips deferred calls
		performCleanup(logger)
		os.Exit(1)
	}
}

func outputFlag() urfavecli.Flag {
	return &urfavecli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Value:   string(cli.OutputText),
		Usage:   "Output format (text or json)",
	}
}

func newRunner(logger *logrus.Logger, cmd *urfavecli.Command, dotEnvErr error) (*cli.Runner, error) {
	format, err := cli.ParseOutputFormat(cmd.String("output"))
	if err != nil {
		return nil, err
	}
	logger.SetOutput(os.Stderr)
	warnDotEnv(logger, dotEnvErr)
	return cli.NewRunner(logger, registry.GetCache(), format), nil
}

func warnDotEnv(logger *logrus.Logger, err error) {
	if err != nil {
		logger.WithError(err).Warn("Ignoring malformed .env file")
	}
}

// searchCommand runs a single search in-process and prints the answer
func searchCommand(logger *logrus.Logger, dotEnvErr error) *urfavecli.Command {
	return &urfavecli.Command{
		Name:      "search",
		Usage:     "Run a web search from the command line",
		ArgsUsage: "<query>",
		Flags: []urfavecli.Flag{
			&urfavecli.StringFlag{
				Name:  "provider",
				Usage: "Provider to use (gemini, gemini-oauth, openai or openrouter)",
			},
			&urfavecli.StringFlag{
				Name:  "model",
				Usage: "Model to use, overriding the configured one",
			},
			&urfavecli.StringFlag{
				Name:    "config",
				Usage:   "Path to the config file (default: ~/.mcp-websearch/config.yaml)",
				Sources: urfavecli.EnvVars(config.ConfigEnvVar),
			},
			outputFlag(),
		},
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			query := strings.Join(cmd.Args().Slice(), " ")
			if strings.TrimSpace(query) == "" {
				return fmt.Errorf("a search query is required")
			}

			runner, err := newRunner(logger, cmd, dotEnvErr)
			if err != nil {
				return err
			}
			return runner.Search(ctx, query, websearch.ConfigLoader(cmd.String("config"), cmd.String("provider"), cmd.String("model")))
		},
	}
}

// serve runs the MCP server on the selected transport
func serve(ctx context.Context, cmd *urfavecli.Command, logger *logrus.Logger, dotEnvErr error) error {
	transport := cmd.String("transport")
	isStdioMode.Store(transport == "stdio")

	configureLogging(logger, transport)
	warnDotEnv(logger, dotEnvErr)

	if err := tools.InitGlobalErrorLogger(logger); err != nil {
		logger.WithError(err).Warn("Failed to initialise tool error logger")
	}

	shutdownTracer, err := telemetry.InitTracer(logger, Version)
	if err != nil {
		logger.WithError(err).Warn("Failed to initialise tracing")
	} else {
		defer func() {
			if err := shutdownTracer(); err != nil {
				logger.WithError(err).Debug("Tracer shutdown failed")
			}
		}()
	}

	if transport != "stdio" {
		logger.Infof("Starting %s version %s (commit: %s, built: %s)", serverName, Version, Commit, BuildDate)
	}

	mcpSrv := newMCPServer(logger, transport)

	logger.WithField("transport", transport).Debug("Starting server")
	switch transport {
	case "stdio":
		return mcpserver.ServeStdio(mcpSrv)
	case "sse":
		port := cmd.String("port")
		logger.WithField("port", port).Debug("Starting SSE server")
		sseServer := mcpserver.NewSSEServer(mcpSrv, mcpserver.WithBaseURL(cmd.String("base-url")+"/sse"))
		return sseServer.Start(":" + port)
	case "http":
		return startStreamableHTTPServer(ctx, cmd, mcpSrv, logger)
	default:
		return fmt.Errorf("unsupported transport: %s", transport)
	}
}

// newMCPServer registers every enabled tool on a new MCP server
func newMCPServer(logger *logrus.Logger, transport string) *mcpserver.MCPServer {
	mcpSrv := mcpserver.NewMCPServer(serverName, Version, mcpserver.WithToolCapabilities(false))

	for _, name := range registry.GetEnabledToolNames() {
		tool, _ := registry.GetTool(name)
		if transport != "stdio" {
			logger.Infof("Registering tool: %s", name)
		}
		mcpSrv.AddTool(tool.Definition(), newToolHandler(name, transport, logger))
	}
	return mcpSrv
}

// configureLogging sends logs to ~/.mcp-websearch/logs. stdio never logs to
// the terminal since stdout carries the protocol.
func configureLogging(logger *logrus.Logger, transport string) {
	logLevel := parseLogLevel()
	if transport == "stdio" && logLevel < logrus.WarnLevel {
		logLevel = logrus.WarnLevel
	}
	logger.SetLevel(logLevel)
	logrus.SetLevel(logLevel)

	file, err := openLogFile()
	if err != nil {
		var fallback io.Writer = os.Stderr
		if transport == "stdio" {
			fallback = io.Discard
		}
		logger.SetOutput(fallback)
		logrus.SetOutput(fallback)
		return
	}

	debugLogFile.Store(file)
	logger.SetOutput(file)
	logrus.SetOutput(file)
	logger.WithField("level", logLevel.String()).Debug("Logging configured")
}

func openLogFile() (*os.File, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	logDir := filepath.Join(homeDir, ".mcp-websearch", "logs")
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(logDir, serverName+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
}

// performCleanup releases resources on shutdown
func performCleanup(logger *logrus.Logger) {
	if errorLogger := tools.GetGlobalErrorLogger(); errorLogger != nil {
		if err := errorLogger.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close tool error logger")
		}
	}

	// Closed last since the logger may be writing to it
	if file := debugLogFile.Load(); file != nil {
		_ = file.Close()
	}
}
