package audit

import (
	"context"

	"github.com/butterflysys/butterfly/internal/capability"
	"github.com/butterflysys/butterfly/internal/observability"
)

// Sink persists audit events. The storage adapter implements it.
type Sink interface {
	LogEvent(ctx context.Context, event *Event) error
}

// Logger records resolution and token outcomes. Implementations must
// never let a recording failure alter the decision being recorded,
// which is why no method returns an error.
type Logger interface {
	// LogHandshakeSuccess records a granted resolution.
	LogHandshakeSuccess(ctx context.Context, callerID, resource, reason string)

	// LogHandshakeFailure records a denied or failed resolution.
	LogHandshakeFailure(ctx context.Context, callerID, resource, reason string)

	// LogPointerFailure records a failed token validation.
	LogPointerFailure(ctx context.Context, callerID, resource, reason string)

	// Close releases resources.
	Close() error
}

// logger implements Logger over a Sink.
type logger struct {
	sink    Sink
	log     observability.Logger
	metrics *Metrics
}

// Option is a functional option for the logger.
type Option func(*logger)

// WithLogger sets the diagnostic logger.
func WithLogger(log observability.Logger) Option {
	return func(l *logger) {
		l.log = log
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(l *logger) {
		l.metrics = metrics
	}
}

// NewLogger creates an audit logger persisting through the sink.
func NewLogger(sink Sink, opts ...Option) Logger {
	l := &logger{
		sink: sink,
		log:  observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.metrics == nil {
		l.metrics = NewMetrics("butterfly")
	}

	return l
}

// LogHandshakeSuccess records a granted resolution.
func (l *logger) LogHandshakeSuccess(ctx context.Context, callerID, resource, reason string) {
	l.record(ctx, KindHandshakeSuccess, callerID, resource, reason)
	l.log.WithContext(ctx).Info("handshake granted",
		observability.String("caller", callerID),
		observability.String("resource", resource),
	)
}

// LogHandshakeFailure records a denied or failed resolution.
func (l *logger) LogHandshakeFailure(ctx context.Context, callerID, resource, reason string) {
	l.record(ctx, KindHandshakeFailure, callerID, resource, reason)
	l.log.WithContext(ctx).Info("handshake denied",
		observability.String("caller", callerID),
		observability.String("resource", resource),
		observability.String("reason", reason),
	)
}

// LogPointerFailure records a failed token validation. Integrity
// failures are surfaced at error level; an expired token is routine
// and logs at info.
func (l *logger) LogPointerFailure(ctx context.Context, callerID, resource, reason string) {
	l.record(ctx, KindPointerFailure, callerID, resource, reason)

	log := l.log.WithContext(ctx)
	fields := []observability.Field{
		observability.String("caller", callerID),
		observability.String("resource", resource),
		observability.String("reason", reason),
	}
	if reason == capability.ErrIntegrity.Error() {
		log.Error("capability token integrity failure", fields...)
		return
	}
	log.Info("capability token rejected", fields...)
}

// record persists the event. A sink failure is logged and counted but
// deliberately not propagated.
func (l *logger) record(ctx context.Context, kind Kind, callerID, resource, reason string) {
	event := NewEvent(kind, observability.TraceIDFromContext(ctx), callerID, resource, reason)

	if err := l.sink.LogEvent(ctx, event); err != nil {
		l.metrics.RecordWriteFailure()
		l.log.WithContext(ctx).Error("audit event write failed",
			observability.String("kind", string(kind)),
			observability.Error(err),
		)
		return
	}

	l.metrics.RecordEvent(kind)
}

// Close releases resources.
func (l *logger) Close() error {
	return nil
}

// nopLogger discards all events.
type nopLogger struct{}

// NopLogger returns a Logger that records nothing.
func NopLogger() Logger {
	return nopLogger{}
}

func (nopLogger) LogHandshakeSuccess(context.Context, string, string, string) {}
func (nopLogger) LogHandshakeFailure(context.Context, string, string, string) {}
func (nopLogger) LogPointerFailure(context.Context, string, string, string)   {}
func (nopLogger) Close() error                                                { return nil }

// Ensure implementations satisfy Logger.
var (
	_ Logger = (*logger)(nil)
	_ Logger = nopLogger{}
)
