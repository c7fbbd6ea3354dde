// Package notify defines the sink that receives user-facing events.
// Delivery is fire-and-forget; managers never block on or branch on it.
package notify

import "go.uber.org/zap"

// Severity of a user-facing notification.
type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Warning Severity = "warning"
	Error   Severity = "error"
)

// Sink consumes notifications produced by the managers. The presentation
// layer subscribes here; the core only ever calls Notify.
type Sink interface {
	Notify(message string, severity Severity)
}

// Zap routes notifications to a structured logger.
type Zap struct{ logger *zap.Logger }

// NewZap constructs a logger-backed sink.
func NewZap(logger *zap.Logger) *Zap { return &Zap{logger: logger} }

func (z *Zap) Notify(message string, severity Severity) {
	switch severity {
	case Warning:
		z.logger.Warn(message, zap.String("severity", string(severity)))
	case Error:
		z.logger.Error(message, zap.String("severity", string(severity)))
	default:
		z.logger.Info(message, zap.String("severity", string(severity)))
	}
}

// Noop drops every notification.
type Noop struct{}

func (Noop) Notify(string, Severity) {}

// Func adapts a function to the Sink interface.
type Func func(message string, severity Severity)

func (f Func) Notify(message string, severity Severity) { f(message, severity) }

var (
	_ Sink = (*Zap)(nil)
	_ Sink = Noop{}
	_ Sink = Func(nil)
)
