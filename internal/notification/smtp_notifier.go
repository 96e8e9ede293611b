package notification

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"net/textproto"

	"go.uber.org/zap"

	"github.com/mikeyg42/motionwatch/internal/config"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends alerts through an authenticated SMTP relay using
// STARTTLS, e.g. smtp.gmail.com:587 with an app password.
type SMTPNotifier struct {
	addr       string
	auth       smtp.Auth
	from       string
	to         string
	systemName string
	retry      config.RetryConfig
	logger     *zap.Logger

	sendMail sendMailFunc
}

func NewSMTPNotifier(cfg config.NotificationConfig, logger *zap.Logger) (*SMTPNotifier, error) {
	if cfg.SMTP.Host == "" || cfg.SMTP.Port == 0 {
		return nil, fmt.Errorf("SMTP host and port are required")
	}
	if cfg.ToEmail == "" {
		return nil, fmt.Errorf("notification email address is required")
	}

	from := cfg.SMTP.FromEmail
	if from == "" {
		from = cfg.SMTP.Username
	}

	var auth smtp.Auth
	if cfg.SMTP.Username != "" {
		auth = smtp.PlainAuth("", cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.Host)
	}

	return &SMTPNotifier{
		addr:       fmt.Sprintf("%s:%d", cfg.SMTP.Host, cfg.SMTP.Port),
		auth:       auth,
		from:       from,
		to:         cfg.ToEmail,
		systemName: cfg.SystemName,
		retry:      cfg.Retry,
		logger:     logger.Named("smtp"),
		sendMail:   smtp.SendMail,
	}, nil
}

func (n *SMTPNotifier) Send(ctx context.Context, alert Alert) error {
	email, err := RenderEmail(alert, n.systemName, n.from, n.to)
	if err != nil {
		return &DeliveryError{Method: "smtp", CameraID: alert.CameraID, Err: err}
	}
	msg, err := BuildMIMEMessage(email)
	if err != nil {
		return &DeliveryError{Method: "smtp", CameraID: alert.CameraID, Err: err}
	}

	err = SendWithRetry(ctx, n.retry, func(ctx context.Context) error {
		if err := n.sendMail(n.addr, n.auth, n.from, []string{n.to}, msg); err != nil {
			n.logger.Warn("SMTP send attempt failed", zap.String("camera", alert.CameraID), zap.Error(err))
			// 5xx replies will not change on retry.
			var tpErr *textproto.Error
			if errors.As(err, &tpErr) && tpErr.Code >= 500 {
				return permanent(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return &DeliveryError{Method: "smtp", CameraID: alert.CameraID, Err: err}
	}

	n.logger.Info("Alert sent", zap.String("camera", alert.CameraID), zap.String("to", n.to))
	return nil
}

func (n *SMTPNotifier) Close() error { return nil }
