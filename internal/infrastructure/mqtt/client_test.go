package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/nerrad567/sensorhub-core/internal/infrastructure/config"
)

// freeAddress returns a loopback address with an unused TCP port.
func freeAddress(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

// startBroker runs an embedded broker for the test and returns a client
// config pointing at it.
func startBroker(t *testing.T) (*Broker, config.MQTTConfig) {
	t.Helper()
	addr := freeAddress(t)

	broker, err := NewBroker(config.EmbeddedBrokerConfig{Enabled: true, Address: addr}, nil)
	if err != nil {
		t.Fatalf("NewBroker() error = %v", err)
	}
	if err := broker.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { broker.Close() })

	host, portStr, _ := net.SplitHostPort(addr)
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parsing port %q: %v", portStr, err)
	}

	return broker, config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     host,
			Port:     port,
			ClientID: "sensorhub-test",
		},
		QoS:         1,
		Reconnect:   config.MQTTReconnectConfig{MaxDelay: 5},
		TopicPrefix: "sensorhub-test",
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	_, cfg := startBroker(t)

	client, err := Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if got := client.Topics().SystemStatus(); got != "sensorhub-test/system/status" {
		t.Errorf("Topics().SystemStatus() = %q", got)
	}
}

func TestConnect_BrokerRefused(t *testing.T) {
	_, cfg := startBroker(t)
	cfg.Broker.Port = 1 // nothing listens here

	_, err := Connect(cfg, nil)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClose(t *testing.T) {
	_, cfg := startBroker(t)

	client, err := Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestCloseNil(t *testing.T) {
	var client *Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() on empty client error = %v", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}
	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

// =============================================================================
// Health Check Tests
// =============================================================================

func TestHealthCheck(t *testing.T) {
	_, cfg := startBroker(t)

	client, err := Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	_, cfg := startBroker(t)

	client, err := Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close()

	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestPublish_DeliveredThroughBroker(t *testing.T) {
	broker, cfg := startBroker(t)

	topics := Topics{Prefix: cfg.TopicPrefix}
	received := make(chan packets.Packet, 1)
	err := broker.server.Subscribe(topics.AllAlerts(), 1, func(_ *mochi.Client, _ packets.Subscription, pk packets.Packet) {
		received <- pk
	})
	if err != nil {
		t.Fatalf("inline Subscribe() error = %v", err)
	}

	client, err := Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topic := topics.Alert("station01", "temperaturec")
	if err := client.Publish(topic, []byte(`{"value":31}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case pk := <-received:
		if pk.TopicName != topic {
			t.Errorf("topic = %q, want %q", pk.TopicName, topic)
		}
		if string(pk.Payload) != `{"value":31}` {
			t.Errorf("payload = %s", pk.Payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishValidation(t *testing.T) {
	_, cfg := startBroker(t)

	client, err := Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"invalid QoS", "a/b", []byte("x"), 3, ErrInvalidQoS},
		{"oversized payload", "a/b", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"nil payload", "a/b", nil, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Publish() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublishDisconnected(t *testing.T) {
	_, cfg := startBroker(t)

	client, err := Connect(cfg, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close()

	err = client.Publish("a/b", []byte("x"), 1, false)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Info(msg string, _ ...any) { l.record(msg) }
func (l *recordingLogger) Warn(msg string, _ ...any) { l.record(msg) }

func (l *recordingLogger) record(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, msg)
}

func (l *recordingLogger) has(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Contains(l.lines, msg)
}

func TestConnect_LogsConnection(t *testing.T) {
	_, cfg := startBroker(t)
	logger := &recordingLogger{}

	client, err := Connect(cfg, logger)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	deadline := time.Now().Add(2 * time.Second)
	for !logger.has("MQTT connected") {
		if time.Now().After(deadline) {
			t.Fatal("connect handler did not log")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestConnectionLost(t *testing.T) {
	logger := &recordingLogger{}
	client := &Client{logger: logger}
	client.connected.Store(true)

	client.handleDisconnect(errors.New("connection reset"))

	if client.IsConnected() {
		t.Error("IsConnected() = true after connection lost")
	}
	if !logger.has("MQTT connection lost") {
		t.Errorf("logged %v, want connection lost", logger.lines)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Topics and payload Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"Alert default prefix", Topics{}.Alert("station01", "temperaturec"), "sensorhub/alert/station01/temperaturec"},
		{"Alert custom prefix", Topics{Prefix: "site-a/"}.Alert("station01", "co2ppm"), "site-a/alert/station01/co2ppm"},
		{"Alert sanitises levels", Topics{}.Alert("dev/1+#", ""), "sensorhub/alert/dev_1__/_"},
		{"AllAlerts", Topics{}.AllAlerts(), "sensorhub/alert/#"},
		{"SystemStatus", Topics{Prefix: "x"}.SystemStatus(), "x/system/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %q, want %q", tt.got, tt.expected)
			}
		})
	}
}

func TestBuildStatusPayload(t *testing.T) {
	var msg statusMessage
	if err := json.Unmarshal([]byte(buildStatusPayload("core-1", "offline", "graceful_shutdown")), &msg); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if msg.Status != "offline" || msg.ClientID != "core-1" || msg.Reason != "graceful_shutdown" {
		t.Errorf("payload = %+v", msg)
	}
	if _, err := time.Parse(time.RFC3339, msg.Timestamp); err != nil {
		t.Errorf("timestamp %q is not RFC3339", msg.Timestamp)
	}

	online := buildStatusPayload("core-1", "online", "")
	if !json.Valid([]byte(online)) || strings.Contains(online, "reason") {
		t.Errorf("online payload = %s, want valid JSON without reason", online)
	}
}
