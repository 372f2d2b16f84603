package notify

import (
	"context"

	"github.com/Nomadcxx/embress/internal/logging"
)

// LogNotifier writes run summaries to the application log.
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Name() string                 { return "log" }
func (l *LogNotifier) Enabled() bool                { return l.logger != nil }
func (l *LogNotifier) Ping(ctx context.Context) error { return nil }

func (l *LogNotifier) Notify(ctx context.Context, event RunEvent) *NotifyResult {
	fields := []logging.Field{
		logging.F("kind", event.Kind.String()),
		logging.F("run_id", event.RunID),
		logging.F("outcome", event.Outcome),
		logging.F("applied", event.Applied),
		logging.F("failed", event.Failed),
	}
	if event.Kind == EventScan {
		fields = append(fields, logging.F("unrenamed", event.Unrenamed), logging.F("warnings", event.Warnings))
	}
	if event.Failed > 0 {
		l.logger.Warn("notify", FormatEventSummary(event), fields...)
	} else {
		l.logger.Info("notify", FormatEventSummary(event), fields...)
	}
	return &NotifyResult{Service: l.Name(), Success: true}
}
