package hassiomqtt

import (
	"encoding/json"
	"fmt"
)

type Sensor struct {
	device      *Device
	model       SensorModel
	component   string
	configTopic string
}

func NewSensor(device *Device, component string, id string, model *SensorModel) (*Sensor, error) {
	s := &Sensor{
		device:      device,
		model:       *model,
		component:   component,
		configTopic: fmt.Sprintf("%s/%s/%s/%s/config", device.client.DiscoveryPrefix, component, device.client.id, id),
	}

	s.model.StateTopic = device.statusTopic
	s.model.UniqueID = id
	s.model.Device = &device.model
	s.model.Availability = []AvailabilityModel{{
		Topic:               device.client.AvailabilityTopic,
		PayloadAvailable:    PayloadOnline,
		PayloadNotAvailable: PayloadOffline,
	}}

	err := s.Refresh()
	if err != nil {
		return nil, err
	}

	device.client.addEntity(id, s)

	return s, nil
}

// Refresh (re)publishes the discovery config.
func (s *Sensor) Refresh() error {
	data, err := json.Marshal(s.model)
	if err != nil {
		return err
	}

	return s.device.client.publish(s.configTopic, 1, true, data)
}

// Remove deletes the entity from Home Assistant by clearing its retained
// discovery config.
func (s *Sensor) Remove() error {
	s.device.client.removeEntity(s.model.UniqueID)
	return s.device.client.publish(s.configTopic, 1, true, []byte{})
}

func (s *Sensor) ConfigTopic() string {
	return s.configTopic
}
