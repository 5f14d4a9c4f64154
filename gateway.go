package main

import (
	"context"
	"strings"
	"time"

	"github.com/netleapio/uniremote-gateway/rcvr"
	"github.com/sirupsen/logrus"
)

// webState tracks the deferred start of the web server. A node asks for
// it with a command; the poll loop does the actual start.
type webState int

const (
	webNotInit webState = iota
	webRequested
	webStarted
)

func (s webState) String() string {
	switch s {
	case webNotInit:
		return "not_init"
	case webRequested:
		return "requested"
	case webStarted:
		return "started"
	}
	return "unknown"
}

// gateway owns the consumer side of the receiver. All of its fields are
// only touched from the poll loop.
type gateway struct {
	cfg     *Config
	rx      *rcvr.Receiver
	nodes   *NodeManager
	metrics *metrics
	web     *WebSocket

	webState webState
	startWeb func(ctx context.Context) error

	tracker rcvr.SeqTracker
	msg     rcvr.Message
}

func newGateway(cfg *Config, rx *rcvr.Receiver, nodes *NodeManager, m *metrics, web *WebSocket) *gateway {
	g := &gateway{
		cfg:     cfg,
		rx:      rx,
		nodes:   nodes,
		metrics: m,
		web:     web,
	}
	g.startWeb = func(ctx context.Context) error {
		return web.Serve(ctx, cfg.Web.Addr)
	}
	return g
}

// run polls the receiver until ctx is done.
func (g *gateway) run(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.Receiver.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.poll()
			g.serviceWeb(ctx)
		}
	}
}

// poll drains everything pending and returns the number of messages
// handled.
func (g *gateway) poll() int {
	n := 0

	for {
		res := g.rx.GetMsg(&g.msg)
		if res.Status != rcvr.StatusOK {
			g.reportFault(res)
		}
		if !res.Received {
			return n
		}

		n++
		g.handleMessage(&g.msg)
	}
}

// reportFault logs a sticky fault once and clears the flags so the next
// occurrence can be told apart.
func (g *gateway) reportFault(res rcvr.Result) {
	if res.Status == rcvr.StatusNotInit {
		return
	}

	st := g.rx.ExtendedStatus()
	log.WithFields(statusFields(st)).WithField("status", res.Status).Warn("receiver reported a fault")

	g.metrics.fault(res.Status)
	g.rx.ClearExtendedStatusFlags()

	if g.webState == webStarted {
		g.web.PublishStatus(g.rx.ExtendedStatus())
	}
}

func (g *gateway) handleMessage(msg *rcvr.Message) {
	entry := log.WithField("node", msg.Addr).WithField("seq", msg.Seq)

	if gap := g.tracker.Observe(msg.Seq); gap > 0 {
		entry.WithField("missed", gap).Warn("sequence gap, messages were lost")
		g.metrics.gap(gap)
	}

	cmd := strings.TrimSpace(string(msg.Payload()))
	entry.WithField("command", cmd).Debug("message received")

	g.metrics.messageReceived(msg.Addr)
	g.nodes.MessageReceived(msg)

	switch cmd {
	case g.cfg.Commands.WebStart:
		g.requestWeb()
	case g.cfg.Commands.Status:
		log.WithFields(statusFields(g.rx.ExtendedStatus())).Info("receiver status")
	}
}

func (g *gateway) requestWeb() {
	if g.webState != webNotInit {
		log.WithField("state", g.webState).Debug("web server already requested")
		return
	}
	g.webState = webRequested
}

func (g *gateway) serviceWeb(ctx context.Context) {
	if g.webState != webRequested {
		return
	}

	if err := g.startWeb(ctx); err != nil {
		log.WithError(err).Error("starting web server")
		g.webState = webNotInit
		return
	}
	g.webState = webStarted
}

func statusFields(st rcvr.ExtendedStatus) logrus.Fields {
	return logrus.Fields{
		"callbacks":  st.Callbacks,
		"queue_full": st.FlagQueueFull,
		"oversize":   st.FlagOversize,
		"write_idx":  st.WriteIdx,
		"read_idx":   st.ReadIdx,
		"slots":      st.Slots,
		"dropped":    st.Dropped,
		"oversized":  st.Oversized,
	}
}
