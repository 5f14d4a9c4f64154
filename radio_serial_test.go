//go:build !simulated

package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/netleapio/uniremote-gateway/espnow"
	"github.com/netleapio/uniremote-gateway/rcvr"
	"go.bug.st/serial"
)

// fakePort serves a fixed byte stream and then reports EOF.
type fakePort struct {
	serial.Port
	r *bytes.Reader
}

func (p *fakePort) Read(b []byte) (int, error) { return p.r.Read(b) }
func (p *fakePort) Close() error               { return nil }

func TestSerialRadioDeliversFrames(t *testing.T) {
	var stream []byte
	stream, _ = espnow.AppendFrame(stream, espnow.FrameAddr(remoteA), []byte("CMD1"))
	stream = append(stream, 'E', 'N', 'W', 0x00, 0x01) // too short, skipped
	stream, _ = espnow.AppendFrame(stream, espnow.FrameAddr(remoteB), []byte("CMD2"))

	r := newRadio(RadioSettings{Port: "fake"})
	r.port = &fakePort{r: bytes.NewReader(stream)}

	rx, err := rcvr.New(rcvr.DefaultSlots)
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}
	// Init opens the real port, so register directly.
	if err := r.RegisterRecvCallback(rx.Ingest); err != nil {
		t.Fatalf("register: %v", err)
	}

	select {
	case <-r.done:
	case <-time.After(time.Second):
		t.Fatalf("rx loop did not finish")
	}

	st := rx.ExtendedStatus()
	if st.Callbacks != 2 || st.Pending() != 2 {
		t.Fatalf("expected two delivered frames, got %+v", st)
	}
}

func TestSerialRadioRegisterBeforeInit(t *testing.T) {
	r := newRadio(RadioSettings{})
	if err := r.RegisterRecvCallback(func([]byte, []byte) {}); !errors.Is(err, errPortNotOpen) {
		t.Fatalf("expected errPortNotOpen, got %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close without port: %v", err)
	}
}

// blockingPort blocks reads until it is closed, like an idle serial line.
type blockingPort struct {
	serial.Port
	closed chan struct{}
}

func (p *blockingPort) Read(b []byte) (int, error) {
	<-p.closed
	return 0, errors.New("port closed")
}

func (p *blockingPort) Close() error {
	close(p.closed)
	return nil
}

func TestSerialRadioCloseWaitsForRxLoop(t *testing.T) {
	r := newRadio(RadioSettings{Port: "fake"})
	r.port = &blockingPort{closed: make(chan struct{})}

	if err := r.RegisterRecvCallback(func([]byte, []byte) {}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case <-r.done:
	default:
		t.Fatalf("close returned while the rx loop was still running")
	}
}
