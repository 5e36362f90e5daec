package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventRunStart    AuditEventType = "run.start"
	AuditEventRunComplete AuditEventType = "run.complete"
	AuditEventDocument    AuditEventType = "document.process"
	AuditEventIndexReset  AuditEventType = "index.reset"
	AuditEventLLMError    AuditEventType = "llm.error"
	AuditEventQuery       AuditEventType = "query"
	AuditEventFallback    AuditEventType = "query.fallback"
)

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp   time.Time      `json:"timestamp"`
	EventType   AuditEventType `json:"event_type"`
	SessionID   string         `json:"session_id"`
	RunID       string         `json:"run_id,omitempty"`
	Success     bool           `json:"success"`
	Duration    time.Duration  `json:"duration_ms,omitempty"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	ErrorDetail string         `json:"error_detail,omitempty"`
}

// AuditLogger writes audit events as JSON lines.
type AuditLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	sessionID string
	enabled   bool
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // File path or "stdout"/"stderr"
	SessionID  string
}

// DefaultAuditConfig returns default audit configuration.
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		Enabled:    true,
		OutputPath: "stdout",
	}
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(config *AuditConfig) (*AuditLogger, error) {
	if config == nil {
		config = DefaultAuditConfig()
	}

	var writer io.Writer
	switch config.OutputPath {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		writer = f
	}

	sessionID := config.SessionID
	if sessionID == "" {
		sessionID = fmt.Sprintf("session-%d", time.Now().UnixNano())
	}

	return &AuditLogger{
		writer:    writer,
		sessionID: sessionID,
		enabled:   config.Enabled,
	}, nil
}

// Log writes an audit event.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

// LogRunStart logs the start of an ingestion run.
func (l *AuditLogger) LogRunStart(ctx context.Context, runID, dir string, docCount int) {
	l.Log(&AuditEvent{
		EventType: AuditEventRunStart,
		RunID:     runID,
		Success:   true,
		Message:   fmt.Sprintf("Ingestion started: %d documents", docCount),
		Details: map[string]any{
			"dir":            dir,
			"document_count": docCount,
		},
	})
}

// LogRunComplete logs the end of an ingestion run.
func (l *AuditLogger) LogRunComplete(ctx context.Context, runID string, duration time.Duration, succeeded, failed, chunksAdded int) {
	l.Log(&AuditEvent{
		EventType: AuditEventRunComplete,
		RunID:     runID,
		Success:   failed == 0,
		Duration:  duration,
		Message:   fmt.Sprintf("Ingestion completed: %d succeeded, %d failed", succeeded, failed),
		Details: map[string]any{
			"succeeded":    succeeded,
			"failed":       failed,
			"chunks_added": chunksAdded,
		},
	})
}

// LogDocument logs the outcome of a single document.
func (l *AuditLogger) LogDocument(ctx context.Context, runID, filename string, chunks int, reason string) {
	event := &AuditEvent{
		EventType: AuditEventDocument,
		RunID:     runID,
		Success:   reason == "",
		Message:   fmt.Sprintf("Processed %s", filename),
		Details: map[string]any{
			"filename": filename,
			"chunks":   chunks,
		},
	}
	if reason != "" {
		event.Message = fmt.Sprintf("Rejected %s", filename)
		event.ErrorDetail = reason
	}
	l.Log(event)
}

// LogIndexReset logs a collection reset.
func (l *AuditLogger) LogIndexReset(ctx context.Context, runID, collection string, err error) {
	event := &AuditEvent{
		EventType: AuditEventIndexReset,
		RunID:     runID,
		Success:   err == nil,
		Message:   fmt.Sprintf("Reset collection %s", collection),
		Details: map[string]any{
			"collection": collection,
		},
	}
	if err != nil {
		event.ErrorDetail = err.Error()
	}
	l.Log(event)
}

// LogLLMError logs a failed model call.
func (l *AuditLogger) LogLLMError(ctx context.Context, model string, err error) {
	l.Log(&AuditEvent{
		EventType:   AuditEventLLMError,
		Success:     false,
		Message:     fmt.Sprintf("LLM error from %s", model),
		ErrorDetail: err.Error(),
		Details: map[string]any{
			"model": model,
		},
	})
}

// LogQuery logs an answered question. Only a preview of the question is
// recorded.
func (l *AuditLogger) LogQuery(ctx context.Context, question string, matches int, model string, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType: AuditEventQuery,
		Success:   true,
		Duration:  duration,
		Message:   "Question answered",
		Details: map[string]any{
			"question_preview": preview(question, 80),
			"matches":          matches,
			"model":            model,
		},
	})
}

// LogFallback logs a query answered by the extractive fallback.
func (l *AuditLogger) LogFallback(ctx context.Context, reason string) {
	l.Log(&AuditEvent{
		EventType: AuditEventFallback,
		Success:   true,
		Message:   "Answer produced without a generation backend",
		Details: map[string]any{
			"reason": reason,
		},
	})
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// Close closes the audit logger (if using a file).
func (l *AuditLogger) Close() error {
	if closer, ok := l.writer.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			return closer.Close()
		}
	}
	return nil
}

// Global audit logger instance
var globalAuditLogger *AuditLogger
var auditOnce sync.Once

// InitGlobalAuditLogger initializes the global audit logger.
func InitGlobalAuditLogger(config *AuditConfig) error {
	var err error
	auditOnce.Do(func() {
		globalAuditLogger, err = NewAuditLogger(config)
	})
	return err
}

// Audit returns the global audit logger.
func Audit() *AuditLogger {
	if globalAuditLogger == nil {
		return &AuditLogger{enabled: false}
	}
	return globalAuditLogger
}
