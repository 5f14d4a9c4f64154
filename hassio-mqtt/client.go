package hassiomqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Client publishes Home Assistant discovery and state messages.
type Client struct {
	Client            mqtt.Client
	id                string
	DiscoveryPrefix   string
	AvailabilityTopic string
	log               logrus.FieldLogger

	lock     sync.Mutex
	entities map[string]*Sensor // Change Sensor to a generic Entity in future
}

func NewClient(broker string, port int, clientId string, user string, password string, discoveryPrefix string, log logrus.FieldLogger) *Client {
	c := &Client{
		id:                clientId,
		DiscoveryPrefix:   discoveryPrefix,
		AvailabilityTopic: fmt.Sprintf("%s/%s/availability", discoveryPrefix, clientId),
		log:               log,
		entities:          make(map[string]*Sensor),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", broker, port))
	opts.SetClientID(clientId)
	opts.SetUsername(user)
	opts.SetPassword(password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetWill(c.AvailabilityTopic, PayloadOffline, 1, true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		c.onConnect()
	})

	c.Client = mqtt.NewClient(opts)
	return c
}

// Start connects in the background, retrying until ctx is done.
func (c *Client) Start(ctx context.Context) {
	go func() {
		for !c.Client.IsConnected() {
			if ctx.Err() != nil {
				return
			}
			tok := c.Client.Connect()
			if !tok.WaitTimeout(5 * time.Second) {
				c.log.Warn("timeout connecting to MQTT broker, retrying")
				continue
			}
			if err := tok.Error(); err != nil {
				c.log.WithError(err).Error("error connecting to MQTT broker")
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Second):
				}
				continue
			}
			break
		}

		<-ctx.Done()
		c.publish(c.AvailabilityTopic, 1, true, PayloadOffline)
		c.Client.Disconnect(250)
	}()
}

// onConnect runs after every (re)connection.
func (c *Client) onConnect() {
	c.log.Info("connected to MQTT broker")

	c.publish(c.AvailabilityTopic, 1, true, PayloadOnline)

	c.Client.Subscribe(c.DiscoveryPrefix+"/status", 0, func(cl mqtt.Client, m mqtt.Message) {
		c.log.WithField("status", string(m.Payload())).Info("hass status changed")
		if string(m.Payload()) == PayloadOnline {
			c.refreshAll()
		}
	})
}

func (c *Client) refreshAll() {
	c.lock.Lock()
	sensors := make([]*Sensor, 0, len(c.entities))
	for _, s := range c.entities {
		sensors = append(sensors, s)
	}
	c.lock.Unlock()

	for _, s := range sensors {
		if err := s.Refresh(); err != nil {
			c.log.WithError(err).WithField("entity", s.model.UniqueID).Warn("refresh failed")
		}
	}
}

func (c *Client) addEntity(id string, s *Sensor) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.entities[id] = s
}

func (c *Client) removeEntity(id string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	delete(c.entities, id)
}

func (c *Client) publish(topic string, qos byte, retained bool, payload interface{}) error {
	tok := c.Client.Publish(topic, qos, retained, payload)
	if !tok.WaitTimeout(time.Second) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	return tok.Error()
}
