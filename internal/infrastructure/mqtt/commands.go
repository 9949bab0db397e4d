package mqtt

import "fmt"

// SendCommand publishes a command payload to the device's command topic
// at the configured QoS. It satisfies the live hub's CommandPublisher,
// closing the loop from WebSocket clients back out to devices.
func (c *Client) SendCommand(deviceID string, command map[string]any) error {
	if deviceID == "" {
		return fmt.Errorf("%w: empty device id", ErrInvalidTopic)
	}

	return c.PublishJSON(CommandTopic(deviceID), command, byte(c.cfg.QoS), false)
}
