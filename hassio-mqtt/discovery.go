// Package hassiomqtt publishes Home Assistant MQTT discovery entities.
package hassiomqtt

// ConnectionModel is the tuple [connection_type,connection_identifier]
//
// For a UniRemote node this is ["mac", "2e:f4:32:12:d5:73"].
type ConnectionModel [2]string

// DeviceModel provides information about the device the entity is part of.
type DeviceModel struct {
	Connections  []ConnectionModel `json:"connections,omitempty"`
	Identifiers  []string          `json:"identifiers,omitempty"`
	Manufacturer string            `json:"manufacturer,omitempty"`
	Model        string            `json:"model,omitempty"`
	Name         string            `json:"name,omitempty"`

	// ViaDevice names the gateway that relays this device's messages
	ViaDevice string `json:"via_device,omitempty"`
}

type AvailabilityModel struct {
	PayloadAvailable    string `json:"payload_available"`
	PayloadNotAvailable string `json:"payload_not_available"`
	Topic               string `json:"topic"`
}

type EntityModel struct {
	Availability []AvailabilityModel `json:"availability,omitempty"`
	Device       *DeviceModel        `json:"device,omitempty"`

	// EntityCategory is empty, "config" or "diagnostic"
	EntityCategory string `json:"entity_category,omitempty"`

	// Icon is one of the MDI icons, eg. "mdi:remote"
	Icon string `json:"icon,omitempty"`

	Name          string `json:"name,omitempty"`
	ObjectID      string `json:"object_id,omitempty"`
	StateTopic    string `json:"state_topic,omitempty"`
	UniqueID      string `json:"unique_id,omitempty"`
	ValueTemplate string `json:"value_template,omitempty"`
}

type SensorModel struct {
	EntityModel

	// StateClass is one of 'measurement', 'total' or 'total_increasing'
	StateClass string `json:"state_class,omitempty"`

	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
}
