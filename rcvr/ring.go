package rcvr

import (
	"sync/atomic"

	"github.com/netleapio/uniremote-gateway/espnow"
)

// ring is a bounded single-producer/single-consumer queue of messages.
//
// The producer owns write and the slot under it; the consumer owns read
// and the slot under it. A slot is published by storing the advanced
// cursor after the slot has been filled (or drained). One slot is always
// left unused so that full and empty can be told apart from the two
// cursors alone.
type ring struct {
	slots []Message
	write atomic.Uint32
	read  atomic.Uint32
}

func newRing(n int) *ring {
	return &ring{slots: make([]Message, n)}
}

func (q *ring) next(i uint32) uint32 {
	i++
	if i == uint32(len(q.slots)) {
		return 0
	}
	return i
}

// put copies a message into the next free slot. It reports false, without
// touching any slot, when the ring is full.
func (q *ring) put(data []byte, addr espnow.MAC, seq uint32) bool {
	w := q.write.Load()
	nw := q.next(w)
	if nw == q.read.Load() {
		return false
	}

	s := &q.slots[w]
	s.Len = copy(s.Data[:], data)
	s.Addr = addr
	s.Seq = seq
	s.Status = StatusOK

	q.write.Store(nw)
	return true
}

// get copies the oldest message into dst. On an empty ring only dst.Len is
// changed (to zero).
func (q *ring) get(dst *Message) bool {
	r := q.read.Load()
	if r == q.write.Load() {
		dst.Len = 0
		return false
	}

	s := &q.slots[r]
	dst.Len = s.Len
	copy(dst.Data[:s.Len], s.Data[:s.Len])
	clear(dst.Data[s.Len:])
	dst.Addr = s.Addr
	dst.Seq = s.Seq
	dst.Status = s.Status

	q.read.Store(q.next(r))
	return true
}

func (q *ring) pending() int {
	return q.distance(q.cursors())
}

// cursors loads read before write, so a consumer advance between the two
// loads cannot make the ring look nearly full.
func (q *ring) cursors() (r, w uint32) {
	r = q.read.Load()
	w = q.write.Load()
	return r, w
}

func (q *ring) distance(read, write uint32) int {
	w, r := int(write), int(read)
	if w >= r {
		return w - r
	}
	return len(q.slots) - r + w
}
