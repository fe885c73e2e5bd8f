package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentdesk/internal/observability"
	"github.com/haasonsaas/agentdesk/pkg/models"
)

// Logger queues audit records and writes them from a single goroutine.
//
// Usage:
//
//	logger, err := audit.NewLogger(cfg, store, slog.Default())
//	defer logger.Close()
//
//	logger.LogAgentAction(ctx, rec)
type Logger struct {
	config   Config
	recorder Recorder
	log      *slog.Logger
	output   io.WriteCloser
	stream   *slog.Logger
	buffer   chan *Event
	wg       sync.WaitGroup
	done     chan struct{}
	once     sync.Once
	mu       sync.RWMutex
	closed   bool
	now      func() time.Time
}

// NewLogger starts the writer goroutine. A nil recorder only streams.
func NewLogger(config Config, recorder Recorder, logger *slog.Logger) (*Logger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}
	if config.PersistTimeout <= 0 {
		config.PersistTimeout = 5 * time.Second
	}

	l := &Logger{
		config:   config,
		recorder: recorder,
		log:      logger.With("component", "audit"),
		buffer:   make(chan *Event, config.BufferSize),
		done:     make(chan struct{}),
		now:      time.Now,
	}

	if config.Enabled {
		output, err := openOutput(config.Output)
		if err != nil {
			return nil, err
		}
		l.output = output
		var handler slog.Handler
		if config.Format == FormatText {
			handler = slog.NewTextHandler(output, nil)
		} else {
			handler = slog.NewJSONHandler(output, nil)
		}
		l.stream = slog.New(handler).With("component", "audit")
	}

	l.wg.Add(1)
	go l.writeLoop()
	return l, nil
}

func openOutput(output string) (io.WriteCloser, error) {
	switch {
	case output == "" || output == "stdout":
		return os.Stdout, nil
	case output == "stderr":
		return os.Stderr, nil
	case strings.HasPrefix(output, "file:"):
		path := strings.TrimPrefix(output, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open audit log file: %w", err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unsupported audit output: %s", output)
	}
}

// Close drains queued events and stops the writer. It is safe to call twice.
func (l *Logger) Close() error {
	var err error
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		close(l.done)
		l.wg.Wait()
		if l.output != nil && l.output != os.Stdout && l.output != os.Stderr {
			err = l.output.Close()
		}
	})
	return err
}

// LogSecurityFlag queues a scanner match. It never fails.
func (l *Logger) LogSecurityFlag(ctx context.Context, rec models.SecurityFlagRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = l.now().UTC()
	}
	l.enqueue(ctx, &Event{Type: EventSecurityFlag, Timestamp: rec.CreatedAt, Flag: &rec})
	return nil
}

// LogAgentAction queues a pipeline run. It never fails.
func (l *Logger) LogAgentAction(ctx context.Context, rec models.AgentActionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = l.now().UTC()
	}
	l.enqueue(ctx, &Event{Type: EventAgentAction, Timestamp: rec.CreatedAt, Action: &rec})
	return nil
}

func (l *Logger) enqueue(ctx context.Context, event *Event) {
	event.ID = uuid.NewString()
	event.TraceID = observability.GetTraceID(ctx)
	event.SpanID = observability.GetSpanID(ctx)

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		// Write inline so late records are not lost.
		l.writeEvent(event)
		return
	}
	select {
	case l.buffer <- event:
	default:
		// Buffer full, write directly (slower but doesn't drop).
		l.writeEvent(event)
	}
}

func (l *Logger) writeLoop() {
	defer l.wg.Done()
	for {
		select {
		case event := <-l.buffer:
			l.writeEvent(event)
		case <-l.done:
			l.flushBuffer()
			return
		}
	}
}

func (l *Logger) flushBuffer() {
	for {
		select {
		case event := <-l.buffer:
			l.writeEvent(event)
		default:
			return
		}
	}
}

func (l *Logger) writeEvent(event *Event) {
	if l.stream != nil {
		l.stream.LogAttrs(context.Background(), slog.LevelInfo, "audit", l.attrs(event)...)
	}
	if l.recorder == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.config.PersistTimeout)
	defer cancel()
	var err error
	switch event.Type {
	case EventSecurityFlag:
		err = l.recorder.LogSecurityFlag(ctx, *event.Flag)
	case EventAgentAction:
		err = l.recorder.LogAgentAction(ctx, *event.Action)
	}
	if err != nil {
		l.log.Warn("audit persist failed", "audit_id", event.ID, "audit_type", event.Type, "error", err)
	}
}

func (l *Logger) attrs(event *Event) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("audit_id", event.ID),
		slog.String("audit_type", string(event.Type)),
		slog.String("timestamp", event.Timestamp.Format(time.RFC3339Nano)),
	}
	if event.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", event.TraceID), slog.String("span_id", event.SpanID))
	}
	switch {
	case event.Flag != nil:
		snippet := event.Flag.InputSnippet
		if l.config.HashSnippets {
			snippet = hashString(snippet)
		}
		attrs = append(attrs,
			slog.String("user_id", event.Flag.UserID),
			slog.String("source", event.Flag.Source),
			slog.String("flag_type", event.Flag.FlagType),
			slog.String("severity", event.Flag.Severity),
			slog.String("pattern", event.Flag.Pattern),
			slog.String("input_snippet", snippet),
			slog.String("action", event.Flag.Action),
		)
	case event.Action != nil:
		attrs = append(attrs,
			slog.String("user_id", event.Action.UserID),
			slog.String("action", event.Action.Action),
			slog.String("resource", event.Action.Resource),
			slog.String("caller_type", event.Action.CallerType),
			slog.String("caller_identity", event.Action.CallerIdentity),
			slog.Int("token_count", event.Action.TokenCount),
			slog.String("status", event.Action.Status),
		)
	}
	return attrs
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return "sha256:" + hex.EncodeToString(sum[:8])
}
