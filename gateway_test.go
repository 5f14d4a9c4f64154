package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/netleapio/uniremote-gateway/espnow"
	"github.com/netleapio/uniremote-gateway/rcvr"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestGateway(t *testing.T, slots int) (*gateway, *nopTransport) {
	t.Helper()

	cfg := &Config{}
	cfg.applyDefaults()

	rx, tr := newTestRx(t, slots)
	nodes := NewNodeManager(time.Minute)
	web := NewWebSocketListener(rx.ExtendedStatus)
	web.Init(nodes)

	g := newGateway(cfg, rx, nodes, newMetrics(rx), web)
	return g, tr
}

func TestGatewayPollDrainsQueue(t *testing.T) {
	g, tr := newTestGateway(t, 4)

	tr.send(remoteA, "LIGHTS ON")
	tr.send(remoteB, "FAN")
	tr.send(remoteA, "LIGHTS OFF")

	if n := g.poll(); n != 3 {
		t.Fatalf("expected 3 messages, got %d", n)
	}
	if n := g.poll(); n != 0 {
		t.Fatalf("expected empty poll, got %d", n)
	}

	a := g.nodes.GetNode(remoteA)
	if a == nil || a.LastCommand != "LIGHTS OFF" || a.Messages != 2 {
		t.Fatalf("unexpected node A %+v", a)
	}
	if got := testutil.ToFloat64(g.metrics.seqGaps); got != 0 {
		t.Fatalf("expected no gaps, got %f", got)
	}
}

func TestGatewayReportsAndClearsDrops(t *testing.T) {
	g, tr := newTestGateway(t, 3)

	tr.send(remoteA, "CMD1")
	tr.send(remoteA, "CMD2")
	tr.send(remoteA, "CMD3") // dropped
	tr.send(remoteA, strings.Repeat("x", espnow.MaxDataLen))

	if n := g.poll(); n != 2 {
		t.Fatalf("expected 2 messages, got %d", n)
	}

	st := g.rx.ExtendedStatus()
	if st.FlagQueueFull || st.FlagOversize {
		t.Fatalf("poll loop should clear flags after reporting, got %+v", st)
	}
	if got := testutil.ToFloat64(g.metrics.faults.WithLabelValues("queue_full")); got != 1 {
		t.Fatalf("expected one queue_full report, got %f", got)
	}

	tr.send(remoteA, "CMD5")
	g.poll()

	// CMD3 and the oversize datagram are the gap between seq 2 and 5.
	if got := testutil.ToFloat64(g.metrics.seqGaps); got != 2 {
		t.Fatalf("expected gap of 2, got %f", got)
	}
	if n := g.nodes.GetNode(remoteA); n.LastSeq != 5 {
		t.Fatalf("expected last seq 5, got %d", n.LastSeq)
	}
}

func TestGatewayWebStartCommand(t *testing.T) {
	g, tr := newTestGateway(t, rcvr.DefaultSlots)

	starts := 0
	g.startWeb = func(context.Context) error {
		starts++
		return nil
	}

	ctx := context.Background()

	g.serviceWeb(ctx)
	if starts != 0 || g.webState != webNotInit {
		t.Fatalf("web must not start before it is requested")
	}

	tr.send(remoteA, " WEB START \n")
	g.poll()
	if g.webState != webRequested {
		t.Fatalf("expected requested state, got %v", g.webState)
	}

	g.serviceWeb(ctx)
	if starts != 1 || g.webState != webStarted {
		t.Fatalf("expected started state after one start, got %v (%d starts)", g.webState, starts)
	}

	tr.send(remoteA, "WEB START")
	g.poll()
	g.serviceWeb(ctx)
	if starts != 1 || g.webState != webStarted {
		t.Fatalf("repeated request must be ignored, got %v (%d starts)", g.webState, starts)
	}
}

func TestGatewayWebStartFailureAllowsRetry(t *testing.T) {
	g, tr := newTestGateway(t, rcvr.DefaultSlots)

	g.startWeb = func(context.Context) error { return errors.New("address in use") }

	tr.send(remoteA, "WEB START")
	g.poll()
	g.serviceWeb(context.Background())

	if g.webState != webNotInit {
		t.Fatalf("failed start should fall back to not_init, got %v", g.webState)
	}
}

func TestGatewayIgnoresUninitializedReceiver(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	rx, err := rcvr.New(rcvr.DefaultSlots, rcvr.WithLogger(log))
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}
	nodes := NewNodeManager(time.Minute)
	web := NewWebSocketListener(rx.ExtendedStatus)
	g := newGateway(cfg, rx, nodes, newMetrics(rx), web)

	if n := g.poll(); n != 0 {
		t.Fatalf("expected nothing from an uninitialized receiver")
	}
	if got := testutil.ToFloat64(g.metrics.faults.WithLabelValues("not_initialized")); got != 0 {
		t.Fatalf("not initialized is not a fault, got %f reports", got)
	}
}

func TestGatewayRunStopsOnCancel(t *testing.T) {
	g, tr := newTestGateway(t, rcvr.DefaultSlots)
	g.cfg.Receiver.PollInterval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.run(ctx)
		close(done)
	}()

	tr.send(remoteB, "PING")

	deadline := time.After(2 * time.Second)
	for g.nodes.GetNode(remoteB) == nil {
		select {
		case <-deadline:
			t.Fatalf("message was never polled")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("run did not stop")
	}
}
