package validate

import (
	"fmt"
	"net"
	"net/mail"
	"os"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/mikeyg42/motionwatch/internal/config"
)

// -----------------------------------------------------------------------------
// Top-level full-config validation
// -----------------------------------------------------------------------------

type Validator struct{ errors []string }

func (v *Validator) AddError(format string, args ...interface{}) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}
func (v *Validator) HasErrors() bool  { return len(v.errors) > 0 }
func (v *Validator) Errors() []string { return v.errors }

// ValidateConfig delegates to per-section validators.
func ValidateConfig(cfg *config.Config) error {
	v := &Validator{}

	validateCameras(v, cfg.Cameras)
	validateMotionConfig(v, &cfg.Motion)
	validateCooldownConfig(v, &cfg.Cooldown)
	validateRecordingConfig(v, &cfg.Recording)
	validateEmailConfig(v, &cfg.Notification)
	validateMQTTConfig(v, &cfg.MQTT)
	validateDisplayConfig(v, cfg)
	validateGeneralConfig(v, cfg)

	if v.HasErrors() {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(v.Errors(), "\n"))
	}
	return nil
}

// ValidateMotionConfig is exported for callers that build a detector directly.
func ValidateMotionConfig(cfg *config.MotionConfig) error {
	v := &Validator{}
	validateMotionConfig(v, cfg)
	if v.HasErrors() {
		return fmt.Errorf("motion config invalid:\n%s", strings.Join(v.Errors(), "\n"))
	}
	return nil
}

// ValidateNotificationConfig checks only the email settings, for commands
// that do not need cameras.
func ValidateNotificationConfig(cfg *config.NotificationConfig) error {
	v := &Validator{}
	validateEmailConfig(v, cfg)
	if v.HasErrors() {
		return fmt.Errorf("notification config invalid:\n%s", strings.Join(v.Errors(), "\n"))
	}
	return nil
}

// -----------------------------------------------------------------------------
// Sections
// -----------------------------------------------------------------------------

var flipModes = []string{"none", "horizontal", "vertical", "both"}

func validateCameras(v *Validator, cams []config.CameraConfig) {
	if len(cams) == 0 {
		v.AddError("at least one camera must be configured")
		return
	}

	ids := lo.Map(cams, func(c config.CameraConfig, _ int) string { return c.ID })
	if dups := lo.FindDuplicates(ids); len(dups) > 0 {
		v.AddError("duplicate camera ids: %s", strings.Join(dups, ", "))
	}

	for i, cam := range cams {
		name := cam.ID
		if strings.TrimSpace(name) == "" {
			v.AddError("camera %d: id cannot be empty", i)
			name = strconv.Itoa(i)
		} else if !isAlphanumericWithDashes(name) {
			v.AddError("camera %s: id may only contain letters, digits, '-' and '_'", name)
		}
		if strings.TrimSpace(cam.Address) == "" {
			v.AddError("camera %s: address cannot be empty", name)
		}
		if cam.Scale < 1 || cam.Scale > 16 {
			v.AddError("camera %s: scale must be 1..16, got %d", name, cam.Scale)
		}
		if !lo.Contains(flipModes, cam.Flip) {
			v.AddError("camera %s: flip must be one of %s", name, strings.Join(flipModes, ", "))
		}
		if cam.Width < 0 || cam.Height < 0 || cam.Width > 8192 || cam.Height > 8192 {
			v.AddError("camera %s: invalid dimensions %dx%d", name, cam.Width, cam.Height)
		}
		if (cam.Width == 0) != (cam.Height == 0) {
			v.AddError("camera %s: width and height must be overridden together", name)
		}
		if cam.FrameRate < 0 || cam.FrameRate > 120 {
			v.AddError("camera %s: invalid frame rate %d (0–120)", name, cam.FrameRate)
		}
		if cam.ReadTimeout <= 0 {
			v.AddError("camera %s: read timeout must be positive", name)
		}
	}
}

func validateMotionConfig(v *Validator, cfg *config.MotionConfig) {
	if cfg.BlurSize < 1 || cfg.BlurSize%2 == 0 {
		v.AddError("blur size must be a positive odd number, got %d", cfg.BlurSize)
	}
	if cfg.DiffThreshold < 1 || cfg.DiffThreshold > 255 {
		v.AddError("difference threshold must be 1..255")
	}
	if cfg.MinimumArea < 0 {
		v.AddError("minimum area cannot be negative")
	}
	for _, c := range cfg.BoxColor {
		if c < 0 || c > 255 {
			v.AddError("box colour components must be 0..255")
			break
		}
	}
	if cfg.BoxThickness < 1 {
		v.AddError("box thickness must be positive")
	}
}

func validateCooldownConfig(v *Validator, cfg *config.CooldownConfig) {
	if cfg.Initial < 0 {
		v.AddError("initial cooldown cannot be negative")
	}
	if cfg.Steady < 0 {
		v.AddError("steady cooldown cannot be negative")
	}
}

func validateRecordingConfig(v *Validator, cfg *config.RecordingConfig) {
	if cfg.DurationSeconds < 0 || cfg.DurationSeconds > 600 {
		v.AddError("recording duration must be 0..600 seconds")
	}
	if len(cfg.Codec) != 4 {
		v.AddError("recording codec must be a FourCC, got %q", cfg.Codec)
	}
	if cfg.DefaultFrameRate < 1 || cfg.DefaultFrameRate > 120 {
		v.AddError("default frame rate must be 1..120")
	}
	// output directories are external inputs; they must already exist
	if !isExistingDirectory(cfg.SnapshotDir) {
		v.AddError("snapshot directory does not exist: %s", cfg.SnapshotDir)
	}
	if !isExistingDirectory(cfg.ClipDir) {
		v.AddError("clip directory does not exist: %s", cfg.ClipDir)
	}
}

func validateEmailConfig(v *Validator, cfg *config.NotificationConfig) {
	switch cfg.Method {
	case "none":
		return
	case "smtp":
		validateSMTPConfig(v, &cfg.SMTP)
	case "mailersend":
		validateMailSendConfig(v, &cfg.MailSend)
	case "gmail":
		validateGmailConfig(v, &cfg.Gmail)
	default:
		v.AddError("invalid email method %q (smtp, mailersend, gmail, none)", cfg.Method)
		return
	}

	if !isValidEmail(cfg.ToEmail) {
		v.AddError("invalid recipient email address: %q", cfg.ToEmail)
	}
	if cfg.Retry.MaxAttempts < 1 {
		v.AddError("notification retry attempts must be >= 1")
	}
	if cfg.Retry.Delay < 0 || cfg.Retry.MaxDelay < cfg.Retry.Delay {
		v.AddError("notification retry delays must satisfy 0 <= delay <= max_delay")
	}
}

func validateSMTPConfig(v *Validator, cfg *config.SMTPConfig) {
	if cfg.Host == "" || !isValidHostname(cfg.Host) {
		v.AddError("invalid SMTP host: %q", cfg.Host)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		v.AddError("invalid SMTP port: %d", cfg.Port)
	}
	if cfg.Username == "" {
		v.AddError("SMTP username is required")
	}
	if cfg.FromEmail != "" && !isValidEmail(cfg.FromEmail) {
		v.AddError("invalid SMTP from address: %q", cfg.FromEmail)
	}
}

func validateMailSendConfig(v *Validator, cfg *config.MailSendConfig) {
	if cfg.APIToken == "" {
		v.AddError("MailerSend API token is required")
	}
	if cfg.FromEmail != "" && !isValidEmail(cfg.FromEmail) {
		v.AddError("invalid MailerSend from address: %q", cfg.FromEmail)
	}
}

func validateGmailConfig(v *Validator, cfg *config.GmailOAuth2Config) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		v.AddError("Gmail OAuth2 client id and secret are required")
	}
	if strings.TrimSpace(cfg.TokenStorePath) == "" {
		v.AddError("Gmail token store path is required")
	}
}

func validateMQTTConfig(v *Validator, cfg *config.MQTTConfig) {
	if !cfg.Enabled {
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Broker); err != nil {
		v.AddError("MQTT broker must be host:port: %v", err)
	}
	if cfg.QoS > 2 {
		v.AddError("MQTT QoS must be 0, 1 or 2")
	}
	if strings.TrimSpace(cfg.TopicPrefix) == "" {
		v.AddError("MQTT topic prefix cannot be empty")
	}
}

func validateDisplayConfig(v *Validator, cfg *config.Config) {
	d := cfg.Display
	if d.Interval <= 0 {
		v.AddError("display interval must be positive")
	}
	if !d.MJPEG && !cfg.Metrics.Enabled {
		return
	}
	_, portStr, err := net.SplitHostPort(d.HTTPAddr)
	if err != nil {
		v.AddError("HTTP address must be host:port: %v", err)
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		v.AddError("invalid port in HTTP address: %s", portStr)
	}
}

func validateGeneralConfig(v *Validator, cfg *config.Config) {
	if cfg.RTSPTransport != "tcp" && cfg.RTSPTransport != "udp" {
		v.AddError("rtsp_transport must be tcp or udp")
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		v.AddError("invalid log level: %s", cfg.Logging.Level)
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		v.AddError("metrics path must start with '/'")
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func isValidEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isValidHostname(hostname string) bool {
	if net.ParseIP(hostname) != nil {
		return true
	}
	if len(hostname) > 253 {
		return false
	}
	for _, label := range strings.Split(hostname, ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if !isAlphanumericWithDashes(label) {
			return false
		}
	}
	return true
}

func isExistingDirectory(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isAlphanumericWithDashes(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}
