package tools

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/sammcj/mcp-websearch/internal/telemetry"
	"github.com/sirupsen/logrus"
)

const (
	// ErrorLogEnvVar enables the tool error log when set to "true"
	ErrorLogEnvVar = "LOG_TOOL_ERRORS"

	// DefaultLogRetentionDays is how long entries are kept in the tool error log
	DefaultLogRetentionDays = 60

	errorLogFileName = "tool-errors.log"
)

// ToolErrorLogEntry is one line of the tool error log
type ToolErrorLogEntry struct {
	Timestamp string `json:"timestamp"`
	ToolName  string `json:"tool_name"`
	// Arguments are stored with credentials redacted
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Error     string          `json:"error"`
	ErrorType string          `json:"error_type,omitempty"`
	Transport string          `json:"transport,omitempty"`
}

// ToolErrorLogger appends failed tool calls to a JSON lines file
type ToolErrorLogger struct {
	enabled  bool
	logFile  *os.File
	logger   *logrus.Logger
	mu       sync.Mutex
	filePath string
	now      func() time.Time
}

var (
	globalErrorLogger *ToolErrorLogger
	errorLoggerOnce   sync.Once
)

// InitGlobalErrorLogger initialises the process wide error logger under
// ~/.mcp-websearch/logs when LOG_TOOL_ERRORS=true
func InitGlobalErrorLogger(logger *logrus.Logger) error {
	var initErr error
	errorLoggerOnce.Do(func() {
		if os.Getenv(ErrorLogEnvVar) != "true" {
			globalErrorLogger = &ToolErrorLogger{logger: logger}
			return
		}

		homeDir, err := os.UserHomeDir()
		if err != nil {
			initErr = fmt.Errorf("failed to get home directory: %w", err)
			return
		}

		globalErrorLogger, initErr = NewToolErrorLogger(filepath.Join(homeDir, ".mcp-websearch", "logs"), logger)
		if initErr != nil {
			return
		}

		go func() {
			if rotateErr := globalErrorLogger.rotateOldLogs(); rotateErr != nil {
				logger.WithError(rotateErr).Warn("Failed to rotate old tool error logs")
			}
		}()

		logger.Infof("Tool error logging enabled: %s", globalErrorLogger.filePath)
	})

	return initErr
}

// NewToolErrorLogger opens (creating if needed) the error log in dir
func NewToolErrorLogger(dir string, logger *logrus.Logger) (*ToolErrorLogger, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &ToolErrorLogger{
		enabled:  true,
		logger:   logger,
		filePath: filepath.Join(dir, errorLogFileName),
		now:      time.Now,
	}
	if err := l.reopenLogFileLocked(); err != nil {
		return nil, err
	}
	return l, nil
}

// GetGlobalErrorLogger returns the global error logger, disabled if it was never initialised
func GetGlobalErrorLogger() *ToolErrorLogger {
	if globalErrorLogger == nil {
		return &ToolErrorLogger{}
	}
	return globalErrorLogger
}

// LogToolError records a failed tool call
func (l *ToolErrorLogger) LogToolError(toolName string, args map[string]any, errType, message, transport string) {
	if !l.enabled {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile == nil {
		return
	}

	entry := ToolErrorLogEntry{
		Timestamp: l.now().UTC().Format(time.RFC3339),
		ToolName:  toolName,
		Arguments: json.RawMessage(telemetry.SanitiseArguments(args)),
		Error:     message,
		ErrorType: errType,
		Transport: transport,
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		l.warn(err, "Failed to marshal tool error log entry")
		return
	}

	if _, err := l.logFile.Write(append(jsonData, '\n')); err != nil {
		l.warn(err, "Failed to write tool error log entry")
		return
	}
	if err := l.logFile.Sync(); err != nil {
		l.warn(err, "Failed to sync tool error log file")
	}
}

func (l *ToolErrorLogger) warn(err error, msg string) {
	if l.logger != nil {
		l.logger.WithError(err).Error(msg)
	}
}

// Close closes the log file
func (l *ToolErrorLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile == nil {
		return nil
	}
	err := l.logFile.Close()
	l.logFile = nil
	return err
}

// IsEnabled returns whether error logging is enabled
func (l *ToolErrorLogger) IsEnabled() bool {
	return l.enabled
}

// GetLogFilePath returns the path to the error log file
func (l *ToolErrorLogger) GetLogFilePath() string {
	return l.filePath
}

// rotateOldLogs drops entries older than the retention period. Lines that
// cannot be parsed are kept. Rotation is skipped while another process holds
// the lock file.
func (l *ToolErrorLogger) rotateOldLogs() error {
	if !l.enabled || l.filePath == "" {
		return nil
	}

	fileLock := flock.New(l.filePath + ".lock")
	locked, err := fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire rotation lock: %w", err)
	}
	if !locked {
		return nil
	}
	defer func() { _ = fileLock.Unlock() }()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		if err := l.logFile.Close(); err != nil {
			return fmt.Errorf("failed to close log file for rotation: %w", err)
		}
		l.logFile = nil
	}

	kept, err := l.retainedEntries()
	if err != nil {
		_ = l.reopenLogFileLocked()
		return err
	}

	var content string
	if len(kept) > 0 {
		content = strings.Join(kept, "\n") + "\n"
	}

	tmpPath := l.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(content), 0600); err != nil {
		_ = l.reopenLogFileLocked()
		return fmt.Errorf("failed to write temporary rotated log file: %w", err)
	}
	if err := os.Rename(tmpPath, l.filePath); err != nil {
		_ = os.Remove(tmpPath)
		_ = l.reopenLogFileLocked()
		return fmt.Errorf("failed to rename temporary log file during rotation: %w", err)
	}

	return l.reopenLogFileLocked()
}

func (l *ToolErrorLogger) retainedEntries() ([]string, error) {
	file, err := os.Open(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open log file for rotation: %w", err)
	}
	defer func() { _ = file.Close() }()

	cutoff := l.now().AddDate(0, 0, -DefaultLogRetentionDays)

	var kept []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var entry ToolErrorLogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			kept = append(kept, line)
			continue
		}
		entryTime, err := time.Parse(time.RFC3339, entry.Timestamp)
		if err != nil || entryTime.After(cutoff) {
			kept = append(kept, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading log file during rotation: %w", err)
	}
	return kept, nil
}

// reopenLogFileLocked opens the log file for appending. Caller holds mu or
// has exclusive access.
func (l *ToolErrorLogger) reopenLogFileLocked() error {
	logFile, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open tool error log file: %w", err)
	}
	l.logFile = logFile
	return nil
}
