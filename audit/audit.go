// Package audit provides structured audit logging for route decisions.
package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	gate "github.com/agroconnect/gate-go"
	"go.uber.org/zap"
)

// Event represents one route decision.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Role      string    `json:"role,omitempty"`
	Action    string    `json:"action"` // route_decision, login, logout
	Resource  string    `json:"resource,omitempty"`
	Result    string    `json:"result"` // render, redirect_login, redirect_profile, retry, cancelled
	Location  string    `json:"location,omitempty"`
	Code      string    `json:"code,omitempty"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Handler processes audit events. Implementations should not block.
type Handler func(event Event)

// Logger emits audit events to configured handlers. It implements gate.Auditor.
type Logger struct {
	handlers []Handler
	queue    chan Event
	done     chan struct{}
	closed   sync.Once
	wg       sync.WaitGroup
	dropped  atomic.Int64
}

// compile-time check
var _ gate.Auditor = (*Logger)(nil)

// Option configures Logger behavior.
type Option func(*Logger)

// WithZapHandler adds a handler that writes events through l at info level.
func WithZapHandler(l *zap.Logger) Option {
	return func(lg *Logger) {
		lg.AddHandler(func(e Event) {
			l.Info("audit",
				zap.Time("timestamp", e.Timestamp),
				zap.String("request_id", e.RequestID),
				zap.String("action", e.Action),
				zap.String("result", e.Result),
				zap.String("user_id", e.UserID),
				zap.String("role", e.Role),
				zap.String("resource", e.Resource),
				zap.String("location", e.Location),
				zap.String("code", e.Code),
				zap.String("ip", e.IP),
				zap.String("error", e.Error),
			)
		})
	}
}

// WithHandler adds a custom event handler.
func WithHandler(h Handler) Option {
	return func(l *Logger) {
		l.AddHandler(h)
	}
}

// New creates a new audit logger with buffered async emission.
// bufferSize: event queue buffer size (default: 1000).
func New(bufferSize int, opts ...Option) *Logger {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	logger := &Logger{
		handlers: make([]Handler, 0),
		queue:    make(chan Event, bufferSize),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(logger)
	}

	logger.wg.Add(1)
	go logger.process()

	return logger
}

// AddHandler adds a handler to receive audit events. Call before the first Log.
func (l *Logger) AddHandler(h Handler) {
	l.handlers = append(l.handlers, h)
}

// Log emits an audit event asynchronously. When the queue is full or the
// logger is closed the event is dropped and counted.
func (l *Logger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case <-l.done:
		l.dropped.Add(1)
		return
	default:
	}

	select {
	case l.queue <- event:
	default:
		l.dropped.Add(1)
	}
}

// Decision records a settled route activation.
func (l *Logger) Decision(ctx context.Context, d gate.Decision, user *gate.User) {
	info := RequestFromContext(ctx)
	e := Event{
		RequestID: info.ID,
		Role:      string(d.Role),
		Action:    "route_decision",
		Resource:  info.Path,
		Result:    d.Outcome.String(),
		Location:  d.Location,
		Code:      string(gate.CodeOf(d.Err)),
		IP:        info.IP,
		UserAgent: info.UserAgent,
	}
	switch {
	case user != nil:
		e.UserID = user.ID
	case d.Claims != nil:
		e.UserID = d.Claims.UserID
	}
	if d.Err != nil {
		e.Error = d.Err.Error()
	}
	l.Log(e)
}

// Dropped returns the number of events discarded so far.
func (l *Logger) Dropped() int64 { return l.dropped.Load() }

// process handles events from the queue.
func (l *Logger) process() {
	defer l.wg.Done()

	for {
		select {
		case event := <-l.queue:
			l.emit(event)
		case <-l.done:
			// Drain remaining events
			for {
				select {
				case event := <-l.queue:
					l.emit(event)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) emit(e Event) {
	for _, h := range l.handlers {
		h(e)
	}
}

// Close flushes pending events and stops the logger. Safe to call twice.
func (l *Logger) Close() error {
	l.closed.Do(func() { close(l.done) })
	l.wg.Wait()
	return nil
}

// RequestInfo describes the HTTP request an event belongs to.
type RequestInfo struct {
	ID        string
	Path      string
	IP        string
	UserAgent string
}

// WithRequest stores request information in context.
func WithRequest(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, contextKeyRequest, info)
}

// RequestFromContext retrieves request information from context.
func RequestFromContext(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(contextKeyRequest).(RequestInfo)
	return info
}

type contextKey string

const contextKeyRequest contextKey = "audit.request"
