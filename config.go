package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/netleapio/uniremote-gateway/rcvr"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath = "uniremote.yaml"

	// minNodeTimeout keeps the idle-node sweep, which runs every
	// timeout/2, at a sane rate.
	minNodeTimeout = time.Second
)

type RadioSettings struct {
	// Port and Baud select the ESP32 serial bridge.
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`

	// Multicast is the group used by the simulated radio.
	Multicast string `yaml:"multicast"`
}

type ReceiverSettings struct {
	Slots        int           `yaml:"slots"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type MQTTSettings struct {
	Enabled         bool   `yaml:"enabled"`
	Broker          string `yaml:"broker"`
	Port            int    `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	ClientID        string `yaml:"client_id"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
}

type MetricsSettings struct {
	Addr string `yaml:"addr"`
}

type WebSettings struct {
	Addr string `yaml:"addr"`

	// StartOnCommand defers the web server until a node sends
	// Commands.WebStart.
	StartOnCommand bool `yaml:"start_on_command"`
}

type NodeSettings struct {
	Timeout time.Duration `yaml:"timeout"`
}

type CommandSettings struct {
	WebStart string `yaml:"web_start"`
	Status   string `yaml:"status"`
}

type LogSettings struct {
	Level string `yaml:"level"`
}

type Config struct {
	Radio    RadioSettings    `yaml:"radio"`
	Receiver ReceiverSettings `yaml:"receiver"`
	Mqtt     MQTTSettings     `yaml:"mqtt"`
	Metrics  MetricsSettings  `yaml:"metrics"`
	Web      WebSettings      `yaml:"web"`
	Nodes    NodeSettings     `yaml:"nodes"`
	Commands CommandSettings  `yaml:"commands"`
	Log      LogSettings      `yaml:"log"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Radio.Port == "" {
		c.Radio.Port = "/dev/ttyUSB0"
	}
	if c.Radio.Baud == 0 {
		c.Radio.Baud = 115200
	}
	if c.Radio.Multicast == "" {
		c.Radio.Multicast = "224.0.0.1:9999"
	}
	if c.Receiver.Slots == 0 {
		c.Receiver.Slots = rcvr.DefaultSlots
	}
	if c.Receiver.PollInterval == 0 {
		c.Receiver.PollInterval = 10 * time.Millisecond
	}
	if c.Mqtt.Port == 0 {
		c.Mqtt.Port = 1883
	}
	if c.Mqtt.ClientID == "" {
		c.Mqtt.ClientID = "uniremote-gateway"
	}
	if c.Mqtt.DiscoveryPrefix == "" {
		c.Mqtt.DiscoveryPrefix = "homeassistant"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":8080"
	}
	if c.Web.Addr == "" {
		c.Web.Addr = ":3456"
	}
	if c.Nodes.Timeout == 0 {
		c.Nodes.Timeout = 3 * time.Minute
	}
	if c.Commands.WebStart == "" {
		c.Commands.WebStart = "WEB START"
	}
	if c.Commands.Status == "" {
		c.Commands.Status = "STATUS"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) validate() error {
	if c.Receiver.Slots < 2 {
		return fmt.Errorf("receiver.slots must be at least 2, got %d", c.Receiver.Slots)
	}
	if c.Receiver.PollInterval < 0 {
		return errors.New("receiver.poll_interval must be positive")
	}
	if c.Mqtt.Enabled && c.Mqtt.Broker == "" {
		return errors.New("mqtt.broker is required when mqtt is enabled")
	}
	if c.Nodes.Timeout < minNodeTimeout {
		return fmt.Errorf("nodes.timeout must be at least %s, got %s", minNodeTimeout, c.Nodes.Timeout)
	}
	if c.Commands.WebStart == c.Commands.Status {
		return fmt.Errorf("commands.web_start and commands.status are both %q", c.Commands.Status)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}
