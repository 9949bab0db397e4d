// Package mqtt provides the broker bridge for the telemetry ingestion
// pipeline.
//
// It wraps paho.mqtt.golang with connection lifecycle management, tracked
// subscriptions that survive reconnects, panic-isolated message handlers,
// and best-effort publishing.
//
// # Design
//
//   - Exactly one Client (and therefore one broker connection) exists per
//     process; it is constructed in main and injected into the components
//     that need it.
//   - Reconnection is delegated to paho's auto-reconnect with exponential
//     backoff; the bridge only tracks a connected flag for observability
//     and restores subscriptions when the link returns.
//   - A handler panic or error is logged and absorbed per-message: one bad
//     message never crashes the bridge or blocks the next message.
//   - Outbound publishes while disconnected fail fast with ErrNotConnected;
//     there is no outbound queue. Callers treat this as drop-and-log.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil { ... }
//	defer client.Close()
//
//	for _, topic := range mqtt.DefaultSubscriptions() {
//	    if err := client.Subscribe(topic, 1, handler); err != nil { ... }
//	}
package mqtt
