package notification

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mikeyg42/motionwatch/internal/config"
)

// MailSendNotifier sends alerts through the MailerSend HTTP API.
type MailSendNotifier struct {
	http       *resty.Client
	from       string
	to         string
	systemName string
	retry      config.RetryConfig
	logger     *zap.Logger
}

// MailSendEmailRequest is the body of POST /email.
type MailSendEmailRequest struct {
	From        EmailRecipient       `json:"from"`
	To          []EmailRecipient     `json:"to"`
	Subject     string               `json:"subject"`
	Text        string               `json:"text"`
	HTML        string               `json:"html,omitempty"`
	Attachments []MailSendAttachment `json:"attachments,omitempty"`
}

// EmailRecipient represents an email recipient with name and address
type EmailRecipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type MailSendAttachment struct {
	Content     string `json:"content"`
	Filename    string `json:"filename"`
	Disposition string `json:"disposition"`
}

func NewMailSendNotifier(cfg config.NotificationConfig, logger *zap.Logger) (*MailSendNotifier, error) {
	if cfg.MailSend.APIToken == "" {
		return nil, fmt.Errorf("MailerSend API token is required")
	}
	if cfg.ToEmail == "" {
		return nil, fmt.Errorf("notification email address is required")
	}
	if cfg.MailSend.FromEmail == "" {
		return nil, fmt.Errorf("MailerSend sender address is required")
	}

	client := resty.New().
		SetBaseURL(cfg.MailSend.BaseURL).
		SetAuthToken(cfg.MailSend.APIToken).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(30 * time.Second)
	client.JSONMarshal = json.Marshal
	client.JSONUnmarshal = json.Unmarshal

	return &MailSendNotifier{
		http:       client,
		from:       cfg.MailSend.FromEmail,
		to:         cfg.ToEmail,
		systemName: cfg.SystemName,
		retry:      cfg.Retry,
		logger:     logger.Named("mailersend"),
	}, nil
}

func (n *MailSendNotifier) Send(ctx context.Context, alert Alert) error {
	email, err := RenderEmail(alert, n.systemName, n.from, n.to)
	if err != nil {
		return &DeliveryError{Method: "mailersend", CameraID: alert.CameraID, Err: err}
	}

	req := MailSendEmailRequest{
		From:    EmailRecipient{Email: email.From, Name: email.FromName},
		To:      []EmailRecipient{{Email: email.To}},
		Subject: email.Subject,
		Text:    email.TextBody,
		HTML:    email.HTMLBody,
	}
	for _, att := range email.Attachments {
		req.Attachments = append(req.Attachments, MailSendAttachment{
			Content:     base64.StdEncoding.EncodeToString(att.Data),
			Filename:    att.Filename,
			Disposition: "attachment",
		})
	}

	var messageID string
	err = SendWithRetry(ctx, n.retry, func(ctx context.Context) error {
		id, err := n.post(ctx, req)
		if err != nil {
			n.logger.Warn("MailerSend attempt failed", zap.String("camera", alert.CameraID), zap.Error(err))
			return err
		}
		messageID = id
		return nil
	})
	if err != nil {
		return &DeliveryError{Method: "mailersend", CameraID: alert.CameraID, Err: err}
	}

	n.logger.Info("Alert sent",
		zap.String("camera", alert.CameraID),
		zap.String("message_id", messageID))
	return nil
}

// post sends one request. MailerSend answers 202 Accepted on success.
func (n *MailSendNotifier) post(ctx context.Context, req MailSendEmailRequest) (string, error) {
	resp, err := n.http.R().
		SetContext(ctx).
		SetBody(req).
		Post("/email")
	if err != nil {
		return "", fmt.Errorf("failed to send HTTP request: %w", err)
	}

	if resp.StatusCode() != http.StatusAccepted {
		apiErr := fmt.Errorf("MailerSend API error (status %d): %s", resp.StatusCode(), resp.String())
		// Client errors other than rate limiting are not retried.
		if resp.StatusCode() >= 400 && resp.StatusCode() < 500 && resp.StatusCode() != http.StatusTooManyRequests {
			return "", permanent(apiErr)
		}
		return "", apiErr
	}
	return resp.Header().Get("X-Message-Id"), nil
}

func (n *MailSendNotifier) Close() error { return nil }
