//go:build simulated

package main

import (
	"errors"
	"net"
	"sync/atomic"

	"github.com/netleapio/uniremote-gateway/espnow"
	"github.com/netleapio/uniremote-gateway/rcvr"
)

const maxDatagramSize = espnow.MaxBodyLen

var errNotListening = errors.New("multicast socket not open")

// radio receives datagrams from cmd/uniremote-sim over UDP multicast. Each
// UDP datagram is a frame address followed by the payload.
type radio struct {
	settings RadioSettings
	lc       *net.UDPConn
	closed   atomic.Bool
	done     chan struct{}
}

func newRadio(settings RadioSettings) *radio {
	return &radio{settings: settings}
}

func (r *radio) Init() error {
	addr, err := net.ResolveUDPAddr("udp", r.settings.Multicast)
	if err != nil {
		return err
	}

	lc, err := net.ListenMulticastUDP("udp", nil, addr)
	if err != nil {
		return err
	}
	if err := lc.SetReadBuffer(64 * maxDatagramSize); err != nil {
		lc.Close()
		return err
	}
	r.lc = lc

	log.WithField("group", r.settings.Multicast).Info("simulated radio listening")

	return nil
}

func (r *radio) RegisterRecvCallback(cb rcvr.RecvFunc) error {
	if r.lc == nil {
		return errNotListening
	}

	r.done = make(chan struct{})
	go r.rxLoop(cb)

	return nil
}

func (r *radio) rxLoop(cb rcvr.RecvFunc) {
	defer close(r.done)

	buf := make([]byte, maxDatagramSize+1)
	for {
		n, _, err := r.lc.ReadFromUDP(buf)
		if err != nil {
			if !r.closed.Load() {
				log.WithError(err).Error("multicast read failed")
			}
			return
		}

		frameAddr, data, err := espnow.SplitDatagram(buf[:n])
		if err != nil {
			log.WithError(err).Warn("dropping short datagram")
			continue
		}

		cb(frameAddr, data)
	}
}

func (r *radio) Close() error {
	if r.lc == nil {
		return nil
	}

	r.closed.Store(true)
	err := r.lc.Close()

	// No callback runs once Close returns.
	if r.done != nil {
		<-r.done
	}
	return err
}
