package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/sammcj/mcp-websearch/internal/registry"
	"github.com/sammcj/mcp-websearch/internal/telemetry"
	"github.com/sammcj/mcp-websearch/internal/tools"
	"github.com/sirupsen/logrus"
	urfavecli "github.com/urfave/cli/v3"
)

// newToolHandler wraps a registered tool with tracing and error logging.
// Tools log through the registry's shared logger.
func newToolHandler(name, transport string, logger *logrus.Logger) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tool, ok := registry.GetTool(name)
		if !ok {
			return nil, fmt.Errorf("tool not found: %s", name)
		}

		args, ok := request.Params.Arguments.(map[string]any)
		if !ok {
			if request.Params.Arguments != nil {
				return nil, fmt.Errorf("invalid arguments type: expected object, got %T", request.Params.Arguments)
			}
			args = map[string]any{}
		}

		ctx, span := telemetry.StartToolSpan(ctx, name, transport, args)

		result, err := tool.Execute(ctx, registry.GetLogger(), registry.GetCache(), args)
		if err != nil {
			telemetry.EndToolSpan(span, err)
			logger.WithError(err).Errorf("Tool execution failed: %s", name)
			logToolError(name, args, "internal", err.Error(), transport)
			return nil, fmt.Errorf("tool execution failed: %w", err)
		}

		if result != nil && result.IsError {
			errType, message := resultError(result)
			telemetry.EndToolSpan(span, errors.New(message))
			logToolError(name, args, errType, message, transport)
			return result, nil
		}

		telemetry.EndToolSpan(span, nil)
		return result, nil
	}
}

func logToolError(name string, args map[string]any, errType, message, transport string) {
	if errorLogger := tools.GetGlobalErrorLogger(); errorLogger.IsEnabled() {
		errorLogger.LogToolError(name, args, errType, message, transport)
	}
}

// resultError reads the error object a failed tool result carries in its
// JSON text content
func resultError(result *mcp.CallToolResult) (string, string) {
	for _, content := range result.Content {
		text, ok := content.(mcp.TextContent)
		if !ok {
			continue
		}
		var payload struct {
			Error *struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal([]byte(text.Text), &payload); err == nil && payload.Error != nil {
			return payload.Error.Type, payload.Error.Message
		}
		return "", text.Text
	}
	return "", "tool returned an error"
}

// startStreamableHTTPServer serves MCP over Streamable HTTP until ctx is cancelled
func startStreamableHTTPServer(ctx context.Context, cmd *urfavecli.Command, mcpServer *mcpserver.MCPServer, logger *logrus.Logger) error {
	port := cmd.String("port")
	authToken := cmd.String("auth-token")
	endpointPath := cmd.String("endpoint-path")
	sessionTimeout := cmd.Duration("session-timeout")

	logger.Infof("Starting Streamable HTTP server on port %s with endpoint %s", port, endpointPath)

	opts := []mcpserver.StreamableHTTPOption{
		mcpserver.WithEndpointPath(endpointPath),
		mcpserver.WithLogger(&logrusAdapter{logger: logger}),
	}

	heartbeatInterval := 30 * time.Second
	if sessionTimeout > 0 {
		opts = append(opts, mcpserver.WithSessionIdManager(NewTimeoutSessionManager(sessionTimeout, logger)))
		heartbeatInterval = sessionTimeout / 4
	}
	opts = append(opts, mcpserver.WithHeartbeatInterval(heartbeatInterval))

	streamable := mcpserver.NewStreamableHTTPServer(mcpServer, opts...)

	var handler http.Handler = streamable
	if authToken != "" {
		handler = requireBearerToken(authToken, logger, streamable)
		logger.Info("Bearer token authentication enabled")
	}

	mux := http.NewServeMux()
	mux.Handle(endpointPath, handler)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
		return err
	}
	logger.Info("HTTP server stopped gracefully")
	return nil
}

// requireBearerToken rejects requests without the expected bearer token
func requireBearerToken(expectedToken string, logger *logrus.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			logger.Warn("Rejected request with missing or invalid bearer token")
			w.Header().Set("WWW-Authenticate", `Bearer realm="mcp-websearch"`)
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TimeoutSessionManager issues session ids and expires sessions idle for
// longer than timeout
type TimeoutSessionManager struct {
	timeout time.Duration
	logger  *logrus.Logger
	now     func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewTimeoutSessionManager creates a TimeoutSessionManager
func NewTimeoutSessionManager(timeout time.Duration, logger *logrus.Logger) *TimeoutSessionManager {
	return &TimeoutSessionManager{
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
	}
}

func (t *TimeoutSessionManager) Generate() string {
	id := uuid.NewString()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSeen[id] = t.now()
	return id
}

// Validate reports whether the session has been terminated. Sessions idle
// past the timeout are terminated on their next use.
func (t *TimeoutSessionManager) Validate(sessionID string) (bool, error) {
	if sessionID == "" {
		return false, fmt.Errorf("empty session ID")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	seen, ok := t.lastSeen[sessionID]
	if !ok {
		return false, fmt.Errorf("unknown session ID")
	}
	now := t.now()
	if now.Sub(seen) > t.timeout {
		delete(t.lastSeen, sessionID)
		t.logger.Debugf("Session expired: %s", sessionID)
		return true, nil
	}
	t.lastSeen[sessionID] = now
	return false, nil
}

func (t *TimeoutSessionManager) Terminate(sessionID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.lastSeen, sessionID)
	t.logger.Debugf("Session terminated: %s", sessionID)
	return false, nil
}

// logrusAdapter adapts logrus.Logger to the mcp-go util.Logger interface
type logrusAdapter struct {
	logger *logrus.Logger
}

func (l *logrusAdapter) Infof(format string, args ...any) {
	l.logger.Infof(format, args...)
}

func (l *logrusAdapter) Errorf(format string, args ...any) {
	l.logger.Errorf(format, args...)
}
