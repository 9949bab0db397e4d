// Package live pushes pipeline events to WebSocket clients in real
// time.
//
// Clients connect through the HTTP API's /ws endpoint and speak a small
// JSON envelope protocol: join:device and leave:device manage per-device
// room subscriptions, device:command relays a command back out over
// MQTT, and ping checks liveness. Outbound, the hub delivers per-device
// readings and status changes to room members and a dashboard firehose
// to everyone.
//
// Delivery is lossy on purpose. Each client has a bounded send buffer;
// when it fills, events for that client are dropped so a slow consumer
// never applies backpressure to ingestion.
package live
