// Package mqtt provides MQTT client connectivity for the BacPipes worker.
//
// It wraps the eclipse/paho.mqtt.golang library with BacPipes-specific
// patterns for connection management, publishing, and subscriptions.
//
// # Architecture
//
// MQTT is the worker's northbound bus: polled BACnet readings flow out on
// per-point and per-equipment topics, write commands flow in on a fixed
// command topic, and the time-series sink consumes the point stream.
//
//	BACnet devices ↔ BacPipes worker ↔ MQTT Broker ↔ {sink, BMS, dashboards}
//
// # Features
//
//   - Automatic reconnection with exponential backoff, logged as it happens
//   - Subscription replay after reconnect (clean sessions keep no
//     broker-side state)
//   - Retained JSON status messages on bacnet/system/status, with a Last
//     Will distinguishing a crash ("connection_lost") from an operator
//     stop ("shutdown")
//   - Thread-safe publish/subscribe with panic-guarded handlers
//
// # Topic Structure
//
// Individual readings: <site>/<equipType>_<equipId>/<pointName>/presentValue
// Equipment batches:   <site>/<equipType>_<equipId>/batch
// Write commands:      bacnet/write/command
// Write results:       bacnet/write/result
// Worker status:       bacnet/system/status (retained)
//
// Use the Topics type for consistent topic construction.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, logger.Component("mqtt"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to write commands
//	client.Subscribe(mqtt.Topics{}.WriteCommand(), 1, handleCommand)
//
//	// Publish a reading
//	client.Publish(point.MQTTTopic, payload, byte(point.QoS), false)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Message handlers are invoked in separate goroutines by the paho library.
package mqtt
