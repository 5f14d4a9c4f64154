//go:build simulated

package main

import (
	"net"
	"testing"
	"time"

	"github.com/netleapio/uniremote-gateway/espnow"
	"github.com/netleapio/uniremote-gateway/rcvr"
)

// boundRadio skips joining the multicast group; the socket is already bound.
type boundRadio struct{ *radio }

func (boundRadio) Init() error { return nil }

func TestSimulatedRadioDeliversDatagrams(t *testing.T) {
	lc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	r := newRadio(RadioSettings{})
	r.lc = lc

	rx, err := rcvr.New(rcvr.DefaultSlots, rcvr.WithLogger(log))
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}
	if err := rx.Init(boundRadio{r}); err != nil {
		t.Fatalf("init: %v", err)
	}

	conn, err := net.DialUDP("udp", nil, lc.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hdr := espnow.FrameAddr(remoteA)
	for _, pkt := range [][]byte{
		{0x01, 0x02}, // shorter than a frame address, skipped
		espnow.AppendDatagram(nil, hdr, []byte("LIGHTS ON")),
	} {
		if _, err := conn.Write(pkt); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for rx.ExtendedStatus().Callbacks == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("datagram never delivered")
		}
		time.Sleep(time.Millisecond)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case <-r.done:
	default:
		t.Fatalf("close returned while the rx loop was still running")
	}

	var msg rcvr.Message
	res := rx.GetMsg(&msg)
	if !res.Received || res.Status != rcvr.StatusOK {
		t.Fatalf("expected a message, got %+v", res)
	}
	if msg.Addr != remoteA || string(msg.Payload()) != "LIGHTS ON" || msg.Seq != 1 {
		t.Fatalf("unexpected message from %s seq %d: %q", msg.Addr, msg.Seq, msg.Payload())
	}
	if st := rx.ExtendedStatus(); st.Callbacks != 1 || st.Pending() != 0 {
		t.Fatalf("short datagram should not reach the receiver, got %+v", st)
	}
}
