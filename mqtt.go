package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/netleapio/uniremote-gateway/espnow"
	hassiomqtt "github.com/netleapio/uniremote-gateway/hassio-mqtt"
)

var hassNodeSensors = []struct {
	key        string
	name       string
	icon       string
	stateClass string
}{
	{key: "last_command", name: "Last command", icon: "mdi:remote"},
	{key: "messages", name: "Messages", icon: "mdi:counter", stateClass: "total_increasing"},
	{key: "last_seq", name: "Last sequence", icon: "mdi:pound"},
}

type mqttNode struct {
	hassDevice   *hassiomqtt.Device
	hassEntities map[string]*hassiomqtt.Sensor
}

type jsonNodeState struct {
	LastCommand string `json:"last_command"`
	Messages    uint64 `json:"messages"`
	LastSeq     uint32 `json:"last_seq"`
}

// MQTTListener mirrors known nodes into Home Assistant.
type MQTTListener struct {
	eventChannel chan NodeChange
	mqtt         *hassiomqtt.Client
	manager      *NodeManager
	nodes        map[espnow.MAC]mqttNode
}

func NewMQTTListener(cfg *MQTTSettings) *MQTTListener {
	return &MQTTListener{
		eventChannel: make(chan NodeChange, 10),
		mqtt: hassiomqtt.NewClient(cfg.Broker, cfg.Port, cfg.ClientID, cfg.User, cfg.Password,
			cfg.DiscoveryPrefix, log.WithField("component", "mqtt")),
		nodes: map[espnow.MAC]mqttNode{},
	}
}

func (l *MQTTListener) Init(manager *NodeManager) {
	l.manager = manager
	manager.AddListener(l.eventChannel)
}

func (l *MQTTListener) Start(ctx context.Context) {
	l.mqtt.Start(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case change := <-l.eventChannel:
				l.handle(change)
			}
		}
	}()
}

func (l *MQTTListener) handle(change NodeChange) {
	n := l.manager.GetNode(change.Node)
	if n == nil || change.Changes&ChangeNodeGone != 0 {
		l.removeNode(change.Node)
		return
	}

	dev, ok := l.nodes[n.Addr]
	if !ok {
		dev = l.newNode(n)
		l.nodes[n.Addr] = dev
	}

	// Sensors whose discovery publish failed are retried on every update.
	if len(dev.hassEntities) < len(hassNodeSensors) {
		l.addSensors(n.Addr, dev)
	}

	l.updateNodeState(n)
}

func hassNodeID(addr espnow.MAC) string {
	return "uniremote_" + strings.ReplaceAll(addr.String(), ":", "")
}

func (l *MQTTListener) newNode(n *NodeState) mqttNode {
	nodeID := hassNodeID(n.Addr)

	return mqttNode{
		hassDevice: hassiomqtt.NewDevice(l.mqtt, nodeID, &hassiomqtt.DeviceModel{
			Connections:  []hassiomqtt.ConnectionModel{{"mac", n.Addr.String()}},
			Identifiers:  []string{nodeID},
			Manufacturer: "UniRemote",
			Model:        "UniRemote ESP-NOW node",
			Name:         fmt.Sprintf("UniRemote %s", n.Addr),
		}),
		hassEntities: map[string]*hassiomqtt.Sensor{},
	}
}

func (l *MQTTListener) addSensors(addr espnow.MAC, dev mqttNode) {
	nodeID := hassNodeID(addr)

	for _, md := range hassNodeSensors {
		if _, ok := dev.hassEntities[md.key]; ok {
			continue
		}

		sensorID := fmt.Sprintf("%s_%s", nodeID, md.key)

		s, err := hassiomqtt.NewSensor(dev.hassDevice, "sensor", sensorID, &hassiomqtt.SensorModel{
			EntityModel: hassiomqtt.EntityModel{
				Icon:          md.icon,
				Name:          md.name,
				ObjectID:      sensorID,
				ValueTemplate: fmt.Sprintf("{{value_json.%s}}", md.key),
			},
			StateClass: md.stateClass,
		})
		if err != nil {
			log.WithError(err).WithField("entity", sensorID).Warn("mqtt discovery failed")
			continue
		}
		dev.hassEntities[md.key] = s
	}
}

func (l *MQTTListener) removeNode(addr espnow.MAC) {
	dev, ok := l.nodes[addr]
	if !ok {
		return
	}

	for _, s := range dev.hassEntities {
		if err := s.Remove(); err != nil {
			log.WithError(err).WithField("node", addr).Warn("mqtt entity removal failed")
		}
	}
	delete(l.nodes, addr)
}

func (l *MQTTListener) updateNodeState(n *NodeState) {
	dev, ok := l.nodes[n.Addr]
	if !ok {
		return
	}

	err := dev.hassDevice.SendStatus(jsonNodeState{
		LastCommand: n.LastCommand,
		Messages:    n.Messages,
		LastSeq:     n.LastSeq,
	})
	if err != nil {
		log.WithError(err).WithField("node", n.Addr).Warn("mqtt state publish failed")
	}
}
