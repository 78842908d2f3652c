// Package audit records authentication events as OpenTelemetry log records and counts them
// on the auth.events counter.
package audit

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "content-with-coffee/auth"

// Action names an audited auth operation.
type Action string

const (
	ActionRegister      Action = "register"
	ActionLogin         Action = "login"
	ActionRefresh       Action = "refresh"
	ActionRefreshReplay Action = "refresh_replay"
	ActionLogout        Action = "logout"
	ActionGoogleLogin   Action = "google_login"
)

// Outcome is the result of an audited operation.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is one audited auth operation. UserID and Reason are optional.
type Event struct {
	Action  Action
	Outcome Outcome
	UserID  string
	Reason  string
}

// Name returns the dotted event name, e.g. auth.login.failure.
func (e Event) Name() string {
	return "auth." + string(e.Action) + "." + string(e.Outcome)
}

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// Recorder records audit events. Record is best-effort and never fails the caller.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// Nop is a Recorder that discards events.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}

// Logger implements Recorder on an OTel logger and an auth.events counter.
type Logger struct {
	logger      otellog.Logger
	events      metric.Int64Counter
	ipExtractor IPExtractor
}

// NewLogger returns a Logger emitting through lp and counting through mp.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(lp otellog.LoggerProvider, mp metric.MeterProvider, ipExtractor IPExtractor) (*Logger, error) {
	events, err := mp.Meter(instrumentationName).Int64Counter("auth.events",
		metric.WithDescription("Authentication events by action and outcome."),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}
	return &Logger{
		logger:      lp.Logger(instrumentationName),
		events:      events,
		ipExtractor: ipExtractor,
	}, nil
}

// Record emits e as a log record and increments the counter.
func (l *Logger) Record(ctx context.Context, e Event) {
	if l == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}

	var rec otellog.Record
	rec.SetTimestamp(time.Now().UTC())
	rec.SetBody(otellog.StringValue(e.Name()))
	if e.Outcome == OutcomeFailure {
		rec.SetSeverity(otellog.SeverityWarn)
		rec.SetSeverityText("WARN")
	} else {
		rec.SetSeverity(otellog.SeverityInfo)
		rec.SetSeverityText("INFO")
	}
	rec.AddAttributes(
		otellog.String("action", string(e.Action)),
		otellog.String("outcome", string(e.Outcome)),
		otellog.String("ip", ip),
	)
	if e.UserID != "" {
		rec.AddAttributes(otellog.String("user_id", e.UserID))
	}
	if e.Reason != "" {
		rec.AddAttributes(otellog.String("reason", e.Reason))
	}
	l.logger.Emit(ctx, rec)

	l.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", string(e.Action)),
		attribute.String("outcome", string(e.Outcome)),
	))
}

// SlogRecorder writes events to a slog logger. Used where no OTel pipeline is configured, e.g. cmd/seed.
type SlogRecorder struct {
	Logger *slog.Logger
}

func (s SlogRecorder) Record(ctx context.Context, e Event) {
	if s.Logger == nil {
		return
	}
	level := slog.LevelInfo
	if e.Outcome == OutcomeFailure {
		level = slog.LevelWarn
	}
	s.Logger.Log(ctx, level, e.Name(), "user_id", e.UserID, "reason", e.Reason)
}
