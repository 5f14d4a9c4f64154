package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/netleapio/uniremote-gateway/rcvr"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func configureLogging(cfg *LogSettings) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}

	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}

type radioTransport interface {
	rcvr.Transport
	io.Closer
}

// openReceiver starts receiving from t. The transport is closed again if
// the receiver cannot be initialised.
func openReceiver(cfg *ReceiverSettings, t radioTransport) (*rcvr.Receiver, error) {
	rx, err := rcvr.New(cfg.Slots, rcvr.WithLogger(log.WithField("component", "receiver")))
	if err != nil {
		return nil, err
	}

	if err := rx.Init(t); err != nil {
		if cerr := t.Close(); cerr != nil {
			log.WithError(cerr).Warn("closing radio")
		}
		return nil, err
	}

	return rx, nil
}

func mainImpl(ctx context.Context, configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	if err := configureLogging(&cfg.Log); err != nil {
		return err
	}

	r := newRadio(cfg.Radio)
	rx, err := openReceiver(&cfg.Receiver, r)
	if err != nil {
		return err
	}
	defer r.Close()

	nodes := NewNodeManager(cfg.Nodes.Timeout)

	if cfg.Mqtt.Enabled {
		mqttListener := NewMQTTListener(&cfg.Mqtt)
		mqttListener.Init(nodes)
		mqttListener.Start(ctx)
	}

	web := NewWebSocketListener(rx.ExtendedStatus)
	web.Init(nodes)
	web.Start(ctx)

	nodes.Start(ctx)

	m := newMetrics(rx)
	go func() {
		if err := m.serve(ctx, cfg.Metrics.Addr); err != nil {
			log.WithError(err).Error("metrics server stopped")
		}
	}()

	gw := newGateway(cfg, rx, nodes, m, web)
	if !cfg.Web.StartOnCommand {
		gw.requestWeb()
	}

	gw.run(ctx)

	log.Info("shutting down")
	return nil
}

func main() {
	configPath := defaultConfigPath
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mainImpl(ctx, configPath); err != nil {
		fmt.Fprintf(os.Stderr, "uniremote-gateway: %s.\n", err)
		os.Exit(1)
	}
}
