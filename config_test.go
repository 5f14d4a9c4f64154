package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "uniremote.yaml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
radio:
  port: /dev/ttyACM0
receiver:
  slots: 5
mqtt:
  enabled: true
  broker: localhost
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Radio.Port != "/dev/ttyACM0" || cfg.Radio.Baud != 115200 {
		t.Fatalf("unexpected radio settings %+v", cfg.Radio)
	}
	if cfg.Receiver.Slots != 5 {
		t.Fatalf("expected 5 slots, got %d", cfg.Receiver.Slots)
	}
	if cfg.Receiver.PollInterval != 10*time.Millisecond {
		t.Fatalf("expected 10ms poll interval, got %s", cfg.Receiver.PollInterval)
	}
	if cfg.Mqtt.Port != 1883 || cfg.Mqtt.DiscoveryPrefix != "homeassistant" {
		t.Fatalf("unexpected mqtt defaults %+v", cfg.Mqtt)
	}
	if cfg.Metrics.Addr != ":8080" || cfg.Web.Addr != ":3456" {
		t.Fatalf("unexpected listen addresses %q %q", cfg.Metrics.Addr, cfg.Web.Addr)
	}
	if cfg.Nodes.Timeout != 3*time.Minute {
		t.Fatalf("expected 3m node timeout, got %s", cfg.Nodes.Timeout)
	}
	if cfg.Commands.WebStart != "WEB START" || cfg.Commands.Status != "STATUS" {
		t.Fatalf("unexpected command defaults %+v", cfg.Commands)
	}
}

func TestLoadConfigDurations(t *testing.T) {
	path := writeConfig(t, `
receiver:
  poll_interval: 250ms
nodes:
  timeout: 90s
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Receiver.PollInterval != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", cfg.Receiver.PollInterval)
	}
	if cfg.Nodes.Timeout != 90*time.Second {
		t.Fatalf("expected 90s, got %s", cfg.Nodes.Timeout)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	for name, data := range map[string]string{
		"one slot":       "receiver:\n  slots: 1\n",
		"mqtt no broker": "mqtt:\n  enabled: true\n",
		"bad level":      "log:\n  level: chatty\n",
		"same commands":  "commands:\n  web_start: GO\n  status: GO\n",
		"not yaml":       "radio: [",
		"tiny timeout":   "nodes:\n  timeout: 1ns\n",
		"neg timeout":    "nodes:\n  timeout: -5s\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, data)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
