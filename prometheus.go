package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/netleapio/uniremote-gateway/espnow"
	"github.com/netleapio/uniremote-gateway/rcvr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsNamespace = "uniremote"
	receiverSubsys   = "receiver"
)

type metrics struct {
	reg *prometheus.Registry

	messages *prometheus.CounterVec
	seqGaps  prometheus.Counter
	faults   *prometheus.CounterVec
}

// newMetrics registers the gateway metrics. Receiver diagnostics are read
// from the snapshot at scrape time.
func newMetrics(rx *rcvr.Receiver) *metrics {
	reg := prometheus.NewRegistry()

	// Add Go module build info.
	reg.MustRegister(collectors.NewBuildInfoCollector())
	reg.MustRegister(collectors.NewGoCollector(
		collectors.WithGoCollections(collectors.GoRuntimeMemStatsCollection | collectors.GoRuntimeMetricsCollection),
	))

	m := &metrics{
		reg: reg,
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_total",
			Help:      "Messages received, by sending node.",
		}, []string{"node"}),
		seqGaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: receiverSubsys,
			Name:      "seq_gaps_total",
			Help:      "Callbacks missing between consecutively received messages.",
		}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: receiverSubsys,
			Name:      "fault_reports_total",
			Help:      "Sticky fault flags observed and cleared by the poll loop.",
		}, []string{"status"}),
	}

	reg.MustRegister(m.messages, m.seqGaps, m.faults)

	reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: receiverSubsys,
			Name:      "callbacks_total",
			Help:      "Datagrams delivered by the radio, stored or not.",
		}, func() float64 { return float64(rx.ExtendedStatus().Callbacks) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: receiverSubsys,
			Name:      "dropped_total",
			Help:      "Datagrams dropped because the queue was full.",
		}, func() float64 { return float64(rx.ExtendedStatus().Dropped) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: receiverSubsys,
			Name:      "oversize_total",
			Help:      "Datagrams rejected for exceeding the ESP-NOW payload limit.",
		}, func() float64 { return float64(rx.ExtendedStatus().Oversized) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: receiverSubsys,
			Name:      "queue_pending",
			Help:      "Messages waiting to be polled.",
		}, func() float64 { return float64(rx.Pending()) }),
	)

	return m
}

func (m *metrics) messageReceived(addr espnow.MAC) {
	m.messages.WithLabelValues(addr.String()).Inc()
}

func (m *metrics) gap(n uint32) {
	m.seqGaps.Add(float64(n))
}

func (m *metrics) fault(st rcvr.Status) {
	m.faults.WithLabelValues(st.String()).Inc()
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(
		m.reg,
		promhttp.HandlerOpts{
			// Opt into OpenMetrics to support exemplars.
			EnableOpenMetrics: true,
		},
	)
}

// serve exposes /metrics until ctx is done.
func (m *metrics) serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("serving metrics")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
