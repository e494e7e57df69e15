package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/sensorhub-core/internal/infrastructure/config"
	"github.com/nerrad567/sensorhub-core/internal/infrastructure/metrics"
	"github.com/nerrad567/sensorhub-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/sensorhub-core/internal/ingest"
)

// ErrInvalidRule is returned when a configured rule cannot be used.
var ErrInvalidRule = errors.New("alert: invalid rule")

// Direction is the side of the threshold that triggers a rule.
type Direction string

// Rule directions.
const (
	Above Direction = config.DirectionAbove
	Below Direction = config.DirectionBelow
)

// Rule raises a notification when a reading crosses a threshold.
type Rule struct {
	// Device restricts the rule to one device. Empty matches every device.
	Device string

	// Category is the normalised category key the rule watches.
	Category string

	// Label is the category as configured, used in messages.
	Label string

	Threshold float64
	Direction Direction
}

// Matches reports whether the rule watches the given series.
func (r Rule) Matches(deviceID, category string) bool {
	return (r.Device == "" || r.Device == deviceID) && r.Category == category
}

// Triggered reports whether value is strictly beyond the threshold.
func (r Rule) Triggered(value float64) bool {
	if r.Direction == Below {
		return value < r.Threshold
	}
	return value > r.Threshold
}

// Notification is the JSON document published for a triggered rule.
type Notification struct {
	DeviceID  string    `json:"device_id"`
	Category  string    `json:"category"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Direction Direction `json:"direction"`
	Message   string    `json:"message"`
}

// Publisher sends a payload to a topic. *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger is the logging interface used by the notifier.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Options configures a Notifier.
type Options struct {
	// Topics builds the notification topics.
	Topics mqtt.Topics

	// QoS for published notifications.
	QoS byte

	Logger  Logger
	Metrics *metrics.Metrics
}

// Notifier evaluates alert rules against freshly ingested readings and
// publishes a notification for each rule crossed. The push gateway that
// delivers notifications to users subscribes to the alert topics.
type Notifier struct {
	rules   []Rule
	pub     Publisher
	topics  mqtt.Topics
	qos     byte
	logger  Logger
	metrics *metrics.Metrics
}

// NewNotifier builds a notifier from configured rules.
//
// Parameters:
//   - rules: Alert rules from config; categories may use any spelling
//   - pub: Destination for notifications
//   - opts: Topic builder, QoS, logger and metrics
//
// Returns:
//   - *Notifier: Notifier whose Check method can be used as an ingest.Hook
//   - error: ErrInvalidRule if a rule has no category or an unknown direction
func NewNotifier(rules []config.AlertRuleConfig, pub Publisher, opts Options) (*Notifier, error) {
	n := &Notifier{
		pub:     pub,
		topics:  opts.Topics,
		qos:     opts.QoS,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}

	for i, rc := range rules {
		category := ingest.Normalize(rc.Category)
		if category == "" {
			return nil, fmt.Errorf("%w: rules[%d] has no category", ErrInvalidRule, i)
		}
		dir := Direction(rc.Direction)
		if dir != Above && dir != Below {
			return nil, fmt.Errorf("%w: rules[%d] direction %q", ErrInvalidRule, i, rc.Direction)
		}
		n.rules = append(n.rules, Rule{
			Device:    rc.Device,
			Category:  category,
			Label:     rc.Category,
			Threshold: rc.Threshold,
			Direction: dir,
		})
	}
	return n, nil
}

// Rules returns the notifier's rules.
func (n *Notifier) Rules() []Rule {
	return n.rules
}

// Evaluate returns the notifications a reading triggers.
func (n *Notifier) Evaluate(deviceID, category string, value float64) []Notification {
	var out []Notification
	for _, r := range n.rules {
		if !r.Matches(deviceID, category) || !r.Triggered(value) {
			continue
		}
		out = append(out, Notification{
			DeviceID:  deviceID,
			Category:  r.Label,
			Value:     value,
			Threshold: r.Threshold,
			Direction: r.Direction,
			Message:   fmt.Sprintf("%s on %s is %s %g (reading %g)", r.Label, deviceID, r.Direction, r.Threshold, value),
		})
	}
	return out
}

// Check evaluates a reading and publishes every triggered notification.
// Failures are logged and counted; they never propagate to the caller.
// Its signature matches ingest.Hook.
func (n *Notifier) Check(_ context.Context, deviceID, category string, value float64) {
	for _, note := range n.Evaluate(deviceID, category, value) {
		err := n.publish(note, category)
		n.metrics.RecordAlert(err)
		if err != nil {
			n.warn("alert publish failed", "device_id", deviceID, "category", note.Category, "error", err)
			continue
		}
		n.info("alert published", "device_id", deviceID, "category", note.Category, "value", value)
	}
}

func (n *Notifier) publish(note Notification, category string) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshalling notification: %w", err)
	}
	return n.pub.Publish(n.topics.Alert(note.DeviceID, category), payload, n.qos, false)
}

func (n *Notifier) info(msg string, args ...any) {
	if n.logger != nil {
		n.logger.Info(msg, args...)
	}
}

func (n *Notifier) warn(msg string, args ...any) {
	if n.logger != nil {
		n.logger.Warn(msg, args...)
	}
}
