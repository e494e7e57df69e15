// Package mqtt provides MQTT connectivity for the sensorhub service.
//
// This package manages:
//   - Connection to an MQTT broker with auto-reconnect
//   - Publishing threshold alerts with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//   - An optional embedded broker for single-box deployments
//
// # Topics
//
// All topics live under a configurable prefix (default "sensorhub"):
//
//	<prefix>/alert/<device>/<category>   threshold alerts, not retained
//	<prefix>/system/status                online/offline status, retained
//
// Device and category levels have "/", "+" and "#" replaced with "_" so a
// device id can never inject extra levels or wildcards.
//
// # Security Considerations
//
//   - TLS should be enabled when the broker is off-host (cfg.Broker.TLS=true)
//   - The embedded broker accepts every client; bind it to loopback or a
//     trusted network
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, log.Component("mqtt"))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := client.Topics().Alert("station01", "temperaturec")
//	err = client.Publish(topic, payload, 1, false)
package mqtt
