package hassiomqtt

import (
	"encoding/json"
	"fmt"
)

type Device struct {
	client      *Client
	id          string
	statusTopic string
	model       DeviceModel
}

// NewDevice creates a new device with a unique id
func NewDevice(client *Client, id string, model *DeviceModel) *Device {
	return &Device{
		client:      client,
		id:          id,
		statusTopic: fmt.Sprintf("%s/%s/state", client.DiscoveryPrefix, id),
		model:       *model,
	}
}

// SendStatus publishes the device state; it is marshalled to JSON
// unless it already is a string or byte slice.
func (d *Device) SendStatus(status interface{}) error {
	payload := status
	switch status.(type) {
	case string, []byte:
	default:
		data, err := json.Marshal(status)
		if err != nil {
			return err
		}
		payload = data
	}

	return d.client.publish(d.statusTopic, 0, false, payload)
}

func (d *Device) StatusTopic() string {
	return d.statusTopic
}
