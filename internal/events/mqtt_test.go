package events

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"go.uber.org/zap/zaptest"

	"github.com/mikeyg42/motionwatch/internal/config"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mu         sync.Mutex
	connected  bool
	publishErr error
	messages   []published
}

func (c *fakeClient) Connect() mqtt.Token {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return completedToken(nil)
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return completedToken(c.publishErr)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func testMQTTConfig() config.MQTTConfig {
	return config.MQTTConfig{Enabled: true, Broker: "tcp://localhost:1883", TopicPrefix: "home/cameras", QoS: 1}
}

func TestPublishMotionEvent(t *testing.T) {
	client := &fakeClient{}
	p := newPublisher(client, testMQTTConfig(), zaptest.NewLogger(t))

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	ev := MotionEvent{
		EventID:    "e1",
		CameraID:   "front",
		DetectedAt: time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC),
		Token:      "2024-03-09T14-05-07.000Z",
		Region:     RegionOf(image.Rect(100, 100, 150, 160)),
		Area:       2304,
		Notified:   true,
	}
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if len(client.messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(client.messages))
	}
	msg := client.messages[0]
	if msg.topic != "home/cameras/front/motion" || msg.qos != 1 {
		t.Fatalf("Unexpected topic %q qos %d", msg.topic, msg.qos)
	}

	var decoded map[string]any
	if err := json.Unmarshal(msg.payload, &decoded); err != nil {
		t.Fatalf("Payload is not JSON: %v", err)
	}
	region := decoded["region"].(map[string]any)
	if region["width"].(float64) != 50 || region["height"].(float64) != 60 {
		t.Fatalf("Unexpected region %v", region)
	}
	if _, ok := decoded["clip_path"]; ok {
		t.Fatal("Empty clip path should be omitted")
	}

	if pub, failed := p.Stats(); pub != 1 || failed != 0 {
		t.Fatalf("Expected 1 published 0 failed, got %d/%d", pub, failed)
	}
}

func TestPublishFailures(t *testing.T) {
	t.Run("not connected", func(t *testing.T) {
		p := newPublisher(&fakeClient{}, testMQTTConfig(), zaptest.NewLogger(t))
		if err := p.Publish(context.Background(), MotionEvent{CameraID: "front"}); err == nil {
			t.Fatal("Expected error when not connected")
		}
		if _, failed := p.Stats(); failed != 1 {
			t.Fatalf("Expected 1 failure, got %d", failed)
		}
	})

	t.Run("broker error", func(t *testing.T) {
		client := &fakeClient{connected: true, publishErr: errors.New("not authorized")}
		p := newPublisher(client, testMQTTConfig(), zaptest.NewLogger(t))
		if err := p.Publish(context.Background(), MotionEvent{CameraID: "front"}); err == nil {
			t.Fatal("Expected broker error")
		}
	})
}

func TestCloseDisconnects(t *testing.T) {
	client := &fakeClient{connected: true}
	p := newPublisher(client, testMQTTConfig(), zaptest.NewLogger(t))
	p.Close()
	if client.IsConnected() {
		t.Fatal("Expected client to be disconnected")
	}
}
