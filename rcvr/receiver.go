// Package rcvr implements the UniRemote receive pipeline.
//
// A radio transport delivers datagrams to Ingest from its own goroutine.
// Ingest stores them in a small fixed ring without blocking; the
// application drains the ring by polling GetMsg. Anything that could not
// be stored is recorded in sticky flags that stay set until the consumer
// clears them with ClearExtendedStatusFlags, and as a gap in the sequence
// numbers of the messages it does receive.
//
// Exactly one goroutine may call Ingest and exactly one may call GetMsg.
package rcvr

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/netleapio/uniremote-gateway/espnow"
	"github.com/sirupsen/logrus"
)

// DefaultSlots is the ring size used by the UniRemote firmware: two
// messages can be pending before the next one is dropped.
const DefaultSlots = 3

var (
	ErrTooFewSlots        = errors.New("receiver needs at least 2 slots")
	ErrAlreadyInitialized = errors.New("receiver already initialized")
	ErrNoTransport        = errors.New("no transport")
)

// RecvFunc is called by a transport for every datagram it receives.
// frameAddr carries the sender's station address at espnow.HdrMACOffset.
// Neither slice is retained after the call returns.
type RecvFunc func(frameAddr []byte, data []byte)

// Transport is a radio driver able to deliver datagrams.
//
// A transport must never invoke the registered callback concurrently with
// itself.
type Transport interface {
	// Init puts the radio into a receive-capable mode.
	Init() error

	// RegisterRecvCallback installs cb and starts delivery.
	RegisterRecvCallback(cb RecvFunc) error
}

// Message is one received datagram.
type Message struct {
	Len    int
	Data   [espnow.MaxDataLen]byte
	Addr   espnow.MAC
	Seq    uint32
	Status Status
}

// Payload returns the received bytes.
func (m *Message) Payload() []byte {
	return m.Data[:m.Len]
}

// Result is the outcome of one GetMsg call.
//
// Received and Status are independent: a message may be returned in the
// same call that reports an earlier drop.
type Result struct {
	Received bool
	Status   Status

	// Dropped is the number of datagrams lost to a full queue since the
	// receiver was created.
	Dropped uint32
}

// Receiver couples the ingest callback with the ring and its diagnostics.
type Receiver struct {
	log logrus.FieldLogger

	q *ring

	callbacks     atomic.Uint32
	flagQueueFull atomic.Bool
	flagOversize  atomic.Bool
	dropped       atomic.Uint32
	oversized     atomic.Uint32

	initMu      sync.Mutex
	initialized atomic.Bool
}

// Option customises a Receiver.
type Option func(*Receiver)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Receiver) {
		r.log = l
	}
}

// New creates a receiver with a ring of the given number of slots. One slot
// is kept free, so slots-1 messages can be pending.
func New(slots int, opts ...Option) (*Receiver, error) {
	if slots < 2 {
		return nil, ErrTooFewSlots
	}

	r := &Receiver{
		log: logrus.StandardLogger(),
		q:   newRing(slots),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Init initialises the transport and registers Ingest with it. On failure
// the receiver stays uninitialised and Init may be retried.
func (r *Receiver) Init(t Transport) error {
	if t == nil {
		return ErrNoTransport
	}

	r.initMu.Lock()
	defer r.initMu.Unlock()

	if r.initialized.Load() {
		return ErrAlreadyInitialized
	}

	if err := t.Init(); err != nil {
		return fmt.Errorf("transport init: %w", err)
	}

	if err := t.RegisterRecvCallback(r.Ingest); err != nil {
		return fmt.Errorf("register receive callback: %w", err)
	}

	r.initialized.Store(true)
	r.log.WithField("slots", len(r.q.slots)).Info("receiver initialized")

	return nil
}

// Initialized reports whether Init has succeeded.
func (r *Receiver) Initialized() bool {
	return r.initialized.Load()
}

// Ingest is the transport callback. It never blocks.
func (r *Receiver) Ingest(frameAddr []byte, data []byte) {
	seq := r.callbacks.Add(1)

	if len(data) >= espnow.MaxDataLen {
		r.flagOversize.Store(true)
		r.oversized.Add(1)
		return
	}

	r.enqueue(data, espnow.MACFromFrameAddr(frameAddr), seq)
}

func (r *Receiver) enqueue(data []byte, addr espnow.MAC, seq uint32) Status {
	if !r.q.put(data, addr, seq) {
		r.flagQueueFull.Store(true)
		r.dropped.Add(1)
		return StatusQueueFull
	}
	return StatusOK
}

// GetMsg moves the oldest pending message into dst and reports the sticky
// fault state. When nothing is pending dst.Len is set to zero and the rest
// of dst is left alone.
//
// Status is StatusQueueFull if a drop has been flagged since the last
// ClearExtendedStatusFlags, else StatusOversize if an oversize datagram
// has been flagged, else StatusOK. It does not say whether this particular
// message followed a drop; use the sequence numbers for that.
func (r *Receiver) GetMsg(dst *Message) Result {
	if !r.initialized.Load() {
		dst.Len = 0
		return Result{Status: StatusNotInit}
	}

	res := Result{
		Received: r.q.get(dst),
		Status:   StatusOK,
	}

	switch {
	case r.flagQueueFull.Load():
		res.Status = StatusQueueFull
	case r.flagOversize.Load():
		res.Status = StatusOversize
	}
	res.Dropped = r.dropped.Load()

	return res
}

// ExtendedStatus returns a snapshot of the diagnostics and ring indices.
func (r *Receiver) ExtendedStatus() ExtendedStatus {
	read, write := r.q.cursors()
	return ExtendedStatus{
		Callbacks:     r.callbacks.Load(),
		FlagQueueFull: r.flagQueueFull.Load(),
		FlagOversize:  r.flagOversize.Load(),
		WriteIdx:      int(write),
		ReadIdx:       int(read),
		Slots:         len(r.q.slots),
		Dropped:       r.dropped.Load(),
		Oversized:     r.oversized.Load(),
	}
}

// ClearExtendedStatusFlags resets both sticky flags. Counters and ring
// indices are not affected.
func (r *Receiver) ClearExtendedStatusFlags() {
	r.flagQueueFull.Store(false)
	r.flagOversize.Store(false)
}

// Pending returns the number of messages waiting in the ring.
func (r *Receiver) Pending() int {
	return r.q.pending()
}
