//go:build !simulated

package main

import (
	"errors"
	"io"
	"sync/atomic"

	"github.com/netleapio/uniremote-gateway/espnow"
	"github.com/netleapio/uniremote-gateway/rcvr"
	"go.bug.st/serial"
)

var errPortNotOpen = errors.New("serial port not open")

// radio receives ESP-NOW datagrams forwarded by an ESP32 bridge over a
// serial line.
type radio struct {
	settings RadioSettings
	port     serial.Port
	closed   atomic.Bool
	done     chan struct{}
}

func newRadio(settings RadioSettings) *radio {
	return &radio{settings: settings}
}

func (r *radio) Init() error {
	p, err := serial.Open(r.settings.Port, &serial.Mode{BaudRate: r.settings.Baud})
	if err != nil {
		return err
	}

	r.port = p

	log.WithField("port", r.settings.Port).WithField("baud", r.settings.Baud).Info("serial bridge open")

	return nil
}

func (r *radio) RegisterRecvCallback(cb rcvr.RecvFunc) error {
	if r.port == nil {
		return errPortNotOpen
	}

	r.done = make(chan struct{})
	go r.rxLoop(cb)

	return nil
}

// rxLoop is the only caller of cb.
func (r *radio) rxLoop(cb rcvr.RecvFunc) {
	defer close(r.done)

	fr := espnow.NewReader(r.port)
	fr.OnResync = func() {
		log.Warn("serial bridge out of sync, skipped to next frame")
	}

	for {
		frameAddr, data, err := fr.ReadFrame()
		switch {
		case err == nil:
			cb(frameAddr, data)
		case errors.Is(err, espnow.ErrShortBody), errors.Is(err, espnow.ErrBodyTooBig):
			log.WithError(err).Warn("dropping malformed bridge frame")
		case r.closed.Load():
			return
		case errors.Is(err, io.EOF):
			log.Warn("serial bridge closed")
			return
		default:
			log.WithError(err).Error("serial read failed")
			return
		}
	}
}

func (r *radio) Close() error {
	if r.port == nil {
		return nil
	}

	r.closed.Store(true)
	err := r.port.Close()

	// No callback runs once Close returns.
	if r.done != nil {
		<-r.done
	}
	return err
}
