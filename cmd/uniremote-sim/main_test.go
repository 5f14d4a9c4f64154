package main

import (
	"testing"

	"github.com/netleapio/uniremote-gateway/espnow"
)

type datagrams [][]byte

func (d *datagrams) Write(p []byte) (int, error) {
	*d = append(*d, append([]byte(nil), p...))
	return len(p), nil
}

func TestSenderWritesOneDatagramPerCommand(t *testing.T) {
	from, err := espnow.ParseMAC("24:6f:28:aa:bb:cc")
	if err != nil {
		t.Fatalf("parse mac: %v", err)
	}

	var out datagrams
	s := &sender{w: &out, from: from}

	if err := s.send([]string{"LIGHTS ON", "FAN"}, 2); err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(out) != 4 {
		t.Fatalf("expected 4 datagrams, got %d", len(out))
	}

	want := []string{"LIGHTS ON", "FAN", "LIGHTS ON", "FAN"}
	for i, pkt := range out {
		frameAddr, data, err := espnow.SplitDatagram(pkt)
		if err != nil {
			t.Fatalf("datagram %d: %v", i, err)
		}
		if got := espnow.MACFromFrameAddr(frameAddr); got != from {
			t.Fatalf("datagram %d: expected sender %s, got %s", i, from, got)
		}
		if string(data) != want[i] {
			t.Fatalf("datagram %d: expected %q, got %q", i, want[i], data)
		}
	}
}
