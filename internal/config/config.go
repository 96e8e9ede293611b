package config

import (
	"image/color"
	"time"
)

// Config holds all application configuration
type Config struct {
	Cameras      []CameraConfig     `yaml:"cameras"`
	Motion       MotionConfig       `yaml:"motion"`
	Cooldown     CooldownConfig     `yaml:"cooldown"`
	Recording    RecordingConfig    `yaml:"recording"`
	Notification NotificationConfig `yaml:"notification"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	Display      DisplayConfig      `yaml:"display"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Logging      LoggingConfig      `yaml:"logging"`

	// RTSPTransport is passed to the FFmpeg backend as rtsp_transport (tcp or udp).
	RTSPTransport string `yaml:"rtsp_transport" env:"MOTIONWATCH_RTSP_TRANSPORT"`
}

// CameraConfig describes one feed. Width, Height and FrameRate are optional
// overrides; zero means "use what the capture reports".
type CameraConfig struct {
	ID          string        `yaml:"id"`
	Address     string        `yaml:"address"`
	Scale       int           `yaml:"scale"`
	Flip        string        `yaml:"flip"` // none, horizontal, vertical, both
	Width       int           `yaml:"width"`
	Height      int           `yaml:"height"`
	FrameRate   int           `yaml:"frame_rate"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// MotionConfig contains the frame differencing parameters
type MotionConfig struct {
	BlurSize      int     `yaml:"blur_size"`      // odd, square Gaussian kernel
	DiffThreshold int     `yaml:"diff_threshold"` // 1..255, pixels >= cutoff are motion
	MinimumArea   float64 `yaml:"minimum_area"`   // native-resolution pixels
	BoxColor      [3]int  `yaml:"box_color"`      // R, G, B
	BoxThickness  int     `yaml:"box_thickness"`
}

// CooldownConfig controls how often a camera may notify
type CooldownConfig struct {
	Initial time.Duration `yaml:"initial"`
	Steady  time.Duration `yaml:"steady"`
}

type RecordingConfig struct {
	DurationSeconds  int    `yaml:"duration_seconds"`
	SnapshotDir      string `yaml:"snapshot_dir"`
	ClipDir          string `yaml:"clip_dir"`
	Codec            string `yaml:"codec"`
	DefaultFrameRate int    `yaml:"default_frame_rate"`
}

type NotificationConfig struct {
	Method     string            `yaml:"method" env:"MOTIONWATCH_EMAIL_METHOD"` // smtp, mailersend, gmail, none
	ToEmail    string            `yaml:"to_email" env:"MOTIONWATCH_TO_EMAIL"`
	SystemName string            `yaml:"system_name"`
	SMTP       SMTPConfig        `yaml:"smtp"`
	MailSend   MailSendConfig    `yaml:"mailersend"`
	Gmail      GmailOAuth2Config `yaml:"gmail"`
	Retry      RetryConfig       `yaml:"retry"`
}

type SMTPConfig struct {
	Host      string `yaml:"host" env:"MOTIONWATCH_SMTP_HOST"`
	Port      int    `yaml:"port" env:"MOTIONWATCH_SMTP_PORT"`
	Username  string `yaml:"username" env:"MOTIONWATCH_SMTP_USERNAME"`
	Password  string `yaml:"password" env:"MOTIONWATCH_SMTP_PASSWORD"`
	FromEmail string `yaml:"from_email" env:"MOTIONWATCH_SMTP_FROM"`
}

type MailSendConfig struct {
	APIToken  string `yaml:"api_token" env:"MOTIONWATCH_MAILERSEND_TOKEN"`
	FromEmail string `yaml:"from_email"`
	BaseURL   string `yaml:"base_url"`
}

type GmailOAuth2Config struct {
	ClientID       string `yaml:"client_id" env:"MOTIONWATCH_GMAIL_CLIENT_ID"`
	ClientSecret   string `yaml:"client_secret" env:"MOTIONWATCH_GMAIL_CLIENT_SECRET"`
	RedirectURL    string `yaml:"redirect_url"`
	TokenStorePath string `yaml:"token_store_path"`
	FromEmail      string `yaml:"from_email"`
	// TokenKey, when set, seals the stored token with AES-GCM.
	TokenKey string `yaml:"token_key" env:"MOTIONWATCH_GMAIL_TOKEN_KEY"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled" env:"MOTIONWATCH_MQTT_ENABLED"`
	Broker      string `yaml:"broker" env:"MOTIONWATCH_MQTT_BROKER"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username" env:"MOTIONWATCH_MQTT_USERNAME"`
	Password    string `yaml:"password" env:"MOTIONWATCH_MQTT_PASSWORD"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

type DisplayConfig struct {
	Window   bool          `yaml:"window"`
	Interval time.Duration `yaml:"interval"`
	HTTPAddr string        `yaml:"http_addr" env:"MOTIONWATCH_HTTP_ADDR"`
	MJPEG    bool          `yaml:"mjpeg"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level       string `yaml:"level" env:"MOTIONWATCH_LOG_LEVEL"`
	Development bool   `yaml:"development"`
}

// BoxRGBA converts the configured box colour for drawing.
func (m MotionConfig) BoxRGBA() color.RGBA {
	return color.RGBA{R: uint8(m.BoxColor[0]), G: uint8(m.BoxColor[1]), B: uint8(m.BoxColor[2]), A: 0}
}

// RecordingDuration returns the clip length as a time.Duration.
func (r RecordingConfig) RecordingDuration() time.Duration {
	return time.Duration(r.DurationSeconds) * time.Second
}

// NewDefaultConfig returns a Config with default values
func NewDefaultConfig() *Config {
	return &Config{
		RTSPTransport: "tcp",
		Motion: MotionConfig{
			BlurSize:      25,
			DiffThreshold: 5,
			MinimumArea:   1000,
			BoxColor:      [3]int{0, 255, 0},
			BoxThickness:  2,
		},
		Cooldown: CooldownConfig{
			Initial: 5 * time.Second,
			Steady:  10 * time.Second, // email accounts have daily limits
		},
		Recording: RecordingConfig{
			DurationSeconds:  5,
			SnapshotDir:      "./motion_detection_pictures",
			ClipDir:          "./motion_detection_videos",
			Codec:            "mp4v",
			DefaultFrameRate: 20,
		},
		Notification: NotificationConfig{
			Method:     "smtp",
			SystemName: "motionwatch",
			SMTP: SMTPConfig{
				Host: "smtp.gmail.com",
				Port: 587,
			},
			MailSend: MailSendConfig{
				BaseURL: "https://api.mailersend.com/v1",
			},
			Gmail: GmailOAuth2Config{
				RedirectURL:    "http://127.0.0.1:8787/oauth2/callback",
				TokenStorePath: "./gmail_token.json",
			},
			Retry: RetryConfig{
				MaxAttempts: 3,
				Delay:       time.Second,
				MaxDelay:    5 * time.Second,
			},
		},
		MQTT: MQTTConfig{
			ClientID:    "motionwatch",
			TopicPrefix: "motionwatch/cameras",
			QoS:         1,
		},
		Display: DisplayConfig{
			Window:   true,
			Interval: 33 * time.Millisecond,
			HTTPAddr: "localhost:8080",
			MJPEG:    false,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ApplyCameraDefaults fills per-camera fields left empty in the file.
func (c *Config) ApplyCameraDefaults() {
	for i := range c.Cameras {
		cam := &c.Cameras[i]
		if cam.Scale == 0 {
			cam.Scale = 2
		}
		if cam.Flip == "" {
			cam.Flip = "both"
		}
		if cam.ReadTimeout == 0 {
			cam.ReadTimeout = 5 * time.Second
		}
	}
}
