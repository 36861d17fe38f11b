package notification

import (
	"context"
	"log/slog"

	"github.com/vnshop/authgate/internal/logging"
)

const (
	// KindOTP carries a one-time passcode to its destination.
	KindOTP = "otp"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Purpose     string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems (SMS gateway, mailer).
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that records deliveries in the log.
// The message body is omitted because it contains the passcode.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message metadata to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("kind", message.Kind),
		slog.String("purpose", message.Purpose),
		slog.String("destination", mask(message.Destination)),
	)
	return nil
}

func mask(destination string) string {
	for i := 0; i < len(destination); i++ {
		if destination[i] == '@' {
			if i == 0 {
				return destination
			}
			return destination[:1] + "***" + destination[i:]
		}
	}
	return logging.MaskPhone(destination)
}
