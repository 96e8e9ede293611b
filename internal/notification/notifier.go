// Package notification delivers motion alerts by email.
package notification

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/mikeyg42/motionwatch/internal/config"
	"github.com/mikeyg42/motionwatch/internal/logging"
)

// ErrDelivery is matched by every error a Notifier returns from Send.
var ErrDelivery = errors.New("notification delivery failed")

// Alert is one message to the operator. AttachmentPath, when set, must point
// to a file that has been completely written.
type Alert struct {
	CameraID       string
	Subject        string
	Body           string
	AttachmentPath string

	// Event details, used by the HTML template and message headers.
	EventID    string
	Token      string
	DetectedAt time.Time
	Region     image.Rectangle
	Area       float64
}

// Notifier sends alerts. Send blocks until the message is accepted or all
// retries are exhausted.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
	Close() error
}

// DeliveryError wraps the last failure of a send.
type DeliveryError struct {
	Method   string
	CameraID string
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery for camera %s failed: %v", e.Method, e.CameraID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool { return target == ErrDelivery }

// New builds the notifier selected by cfg.Method.
func New(ctx context.Context, cfg config.NotificationConfig, logger *zap.Logger) (Notifier, error) {
	logger = logging.Component(logger, "notification")

	switch cfg.Method {
	case "smtp":
		return NewSMTPNotifier(cfg, logger)
	case "mailersend":
		return NewMailSendNotifier(cfg, logger)
	case "gmail":
		return NewGmailNotifier(ctx, cfg, logger)
	case "none", "":
		return &LogNotifier{logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown notification method %q", cfg.Method)
	}
}

// LogNotifier only logs alerts. It is used when email is disabled.
type LogNotifier struct {
	logger *zap.Logger
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	n.logger.Info("Motion alert (email disabled)",
		zap.String("camera", alert.CameraID),
		zap.String("subject", alert.Subject),
		zap.String("attachment", alert.AttachmentPath))
	return nil
}

func (n *LogNotifier) Close() error { return nil }

// attachmentFor reads the alert's attachment, if any.
func attachmentFor(alert Alert) ([]Attachment, error) {
	if alert.AttachmentPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(alert.AttachmentPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}
	return []Attachment{{
		Filename:    filepath.Base(alert.AttachmentPath),
		ContentType: contentTypeFor(alert.AttachmentPath),
		Data:        data,
	}}, nil
}
