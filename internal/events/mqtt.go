// Package events announces motion events on an MQTT broker so home
// automation can react without waiting for email.
package events

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mikeyg42/motionwatch/internal/config"
	"github.com/mikeyg42/motionwatch/internal/logging"
)

const publishTimeout = 2 * time.Second

// MotionEvent is the JSON payload published for every recorded event.
type MotionEvent struct {
	EventID      string    `json:"event_id"`
	CameraID     string    `json:"camera_id"`
	DetectedAt   time.Time `json:"detected_at"`
	Token        string    `json:"token"`
	Region       Region    `json:"region"`
	Area         float64   `json:"area"`
	SnapshotPath string    `json:"snapshot_path"`
	ClipPath     string    `json:"clip_path,omitempty"`
	Notified     bool      `json:"notified"`
}

type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func RegionOf(r image.Rectangle) Region {
	return Region{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Topic returns <prefix>/<camera>/motion.
func Topic(prefix, cameraID string) string {
	return fmt.Sprintf("%s/%s/motion", prefix, cameraID)
}

// mqttClient is the part of mqtt.Client the publisher uses.
type mqttClient interface {
	Connect() mqtt.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes MotionEvents. Publishing never blocks a camera
// for longer than the publish timeout.
type MQTTPublisher struct {
	client mqttClient
	prefix string
	qos    byte
	logger *zap.Logger

	mu        sync.Mutex
	published uint64
	failed    uint64
}

// NewMQTTPublisher builds a publisher with auto-reconnect enabled. Call
// Connect before publishing.
func NewMQTTPublisher(cfg config.MQTTConfig, logger *zap.Logger) *MQTTPublisher {
	logger = logging.Component(logger, "mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("MQTT connection established", zap.String("broker", cfg.Broker))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost, will auto-reconnect", zap.Error(err))
	}

	return newPublisher(mqtt.NewClient(opts), cfg, logger)
}

func newPublisher(client mqttClient, cfg config.MQTTConfig, logger *zap.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		client: client,
		prefix: cfg.TopicPrefix,
		qos:    cfg.QoS,
		logger: logger,
	}
}

// Connect waits for the first connection or ctx.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	token := p.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("mqtt connect: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

// Publish sends ev to the camera's motion topic.
func (p *MQTTPublisher) Publish(ctx context.Context, ev MotionEvent) error {
	if !p.client.IsConnected() {
		p.count(false)
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		p.count(false)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := Topic(p.prefix, ev.CameraID)
	token := p.client.Publish(topic, p.qos, false, payload)

	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-timer.C:
		p.count(false)
		return fmt.Errorf("publish to %s timed out", topic)
	case <-ctx.Done():
		p.count(false)
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		p.count(false)
		return fmt.Errorf("publish to %s failed: %w", topic, err)
	}

	p.count(true)
	p.logger.Debug("Event published", zap.String("topic", topic), zap.Int("size", len(payload)))
	return nil
}

// Stats returns how many events were published and how many failed.
func (p *MQTTPublisher) Stats() (published, failed uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published, p.failed
}

func (p *MQTTPublisher) Close() error {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	return nil
}

func (p *MQTTPublisher) count(ok bool) {
	p.mu.Lock()
	if ok {
		p.published++
	} else {
		p.failed++
	}
	p.mu.Unlock()
}
