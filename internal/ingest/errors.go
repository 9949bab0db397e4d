package ingest

import "errors"

// Sentinel errors for message classification.
//
// Both are drop conditions: the bridge logs the message and moves on,
// they never tear down the subscription.
var (
	// ErrNoDeviceID indicates a message with no device identifier in
	// either the topic or the payload.
	ErrNoDeviceID = errors.New("message has no device id")

	// ErrUnroutableTopic indicates a topic that matches no known shape.
	ErrUnroutableTopic = errors.New("topic matches no known route")
)
