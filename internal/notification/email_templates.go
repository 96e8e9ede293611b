package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"image"
	"time"

	"github.com/google/uuid"
)

const (
	motionBody   = "Motion has been detected. Please look at the attached image."
	testSubject  = "motionwatch test - email configuration successful"
	testBody     = "This test message confirms that motion alerts can be delivered to this address."
	fromNameText = "motionwatch"
)

// MotionSubject is the subject line of a motion alert.
func MotionSubject(cameraID string) string {
	return fmt.Sprintf("Motion Detected by Camera %s!", cameraID)
}

// NewMotionAlert builds the alert for one recorded event.
func NewMotionAlert(cameraID, token, snapshotPath string, detectedAt time.Time, region image.Rectangle, area float64) Alert {
	return Alert{
		CameraID:       cameraID,
		Subject:        MotionSubject(cameraID),
		Body:           motionBody,
		AttachmentPath: snapshotPath,
		EventID:        uuid.NewString(),
		Token:          token,
		DetectedAt:     detectedAt,
		Region:         region,
		Area:           area,
	}
}

// NewTestAlert builds the message sent by the test-email command.
func NewTestAlert() Alert {
	return Alert{
		CameraID:   "test",
		Subject:    testSubject,
		Body:       testBody,
		EventID:    uuid.NewString(),
		DetectedAt: time.Now(),
	}
}

type emailData struct {
	Alert
	SystemName string
	Time       string
	HasRegion  bool
}

var alertHTML = template.Must(template.New("alert").Parse(alertHTMLTemplate))

// RenderEmail turns an alert into a message from -> to, attaching the
// alert's file when it has one.
func RenderEmail(alert Alert, systemName, from, to string) (*Email, error) {
	attachments, err := attachmentFor(alert)
	if err != nil {
		return nil, err
	}

	detectedAt := alert.DetectedAt
	if detectedAt.IsZero() {
		detectedAt = time.Now()
	}

	data := emailData{
		Alert:      alert,
		SystemName: systemName,
		Time:       detectedAt.Format("Monday, January 2, 2006 at 3:04:05 PM MST"),
		HasRegion:  !alert.Region.Empty(),
	}

	var html bytes.Buffer
	if err := alertHTML.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("failed to execute HTML template: %w", err)
	}

	eventID := alert.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}

	return &Email{
		From:        from,
		FromName:    fromNameText,
		To:          to,
		Subject:     alert.Subject,
		TextBody:    alert.Body,
		HTMLBody:    html.String(),
		MessageID:   generateMessageID(eventID),
		AlertID:     eventID,
		SystemName:  systemName,
		Date:        detectedAt,
		Attachments: attachments,
	}, nil
}

const alertHTMLTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <title>{{.Subject}}</title>
    <style>
        .email-container { max-width: 600px; margin: 0 auto; font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; }
        .header { background: #2d3748; color: white; padding: 24px 20px; text-align: center; }
        .content { padding: 24px 20px; background: white; }
        .alert-box { background: #fff3cd; border: 1px solid #ffeaa7; border-radius: 8px; padding: 16px; margin: 16px 0; }
        .footer { background: #f8f9fa; color: #666; padding: 16px; text-align: center; font-size: 12px; }
    </style>
</head>
<body style="margin: 0; padding: 0; background-color: #f4f4f7;">
    <div class="email-container">
        <div class="header">
            <h1 style="margin: 0; font-size: 24px; font-weight: 300;">{{.Subject}}</h1>
        </div>
        <div class="content">
            <p style="font-size: 16px; line-height: 1.6; color: #333;">{{.Body}}</p>
            <div class="alert-box">
                <strong>Camera:</strong> {{.CameraID}}<br>
                <strong>When:</strong> {{.Time}}<br>
                {{if .HasRegion}}<strong>Region:</strong> {{.Region}} ({{printf "%.0f" .Area}} px)<br>{{end}}
                {{if .Token}}<strong>Recording:</strong> {{.Token}}<br>{{end}}
                <strong>Alert ID:</strong> {{.EventID}}
            </div>
        </div>
        <div class="footer">
            This is an automated message from {{.SystemName}}.
        </div>
    </div>
</body>
</html>`
