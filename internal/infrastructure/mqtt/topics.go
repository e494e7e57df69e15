package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the root topic level when none is configured.
const DefaultTopicPrefix = "sensorhub"

// levelReplacer strips characters that would change the topic structure
// when a device ID or category is used as a topic level.
var levelReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_")

// Topics provides builders for sensorhub MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{Prefix: "sensorhub"}
//	topics.Alert("station01", "temperaturec")
//	// Returns: "sensorhub/alert/station01/temperaturec"
type Topics struct {
	// Prefix is the root level. Empty means DefaultTopicPrefix.
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// Alert returns the topic for threshold notifications of one series.
//
// Example: sensorhub/alert/station01/temperaturec
func (t Topics) Alert(deviceID, category string) string {
	return fmt.Sprintf("%s/alert/%s/%s", t.prefix(), level(deviceID), level(category))
}

// AllAlerts returns a pattern matching every alert topic.
//
// Pattern: sensorhub/alert/#
func (t Topics) AllAlerts() string {
	return fmt.Sprintf("%s/alert/#", t.prefix())
}

// SystemStatus returns the service status topic (online/offline, LWT).
//
// Example: sensorhub/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}

func level(s string) string {
	if s == "" {
		return "_"
	}
	return levelReplacer.Replace(s)
}
