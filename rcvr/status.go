package rcvr

import "fmt"

// Status is the result code reported by GetMsg and carried by each
// message.
type Status uint8

const (
	StatusOK Status = iota
	StatusNotInit
	StatusQueueFull
	StatusOversize
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotInit:
		return "not_initialized"
	case StatusQueueFull:
		return "queue_full"
	case StatusOversize:
		return "oversize"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ExtendedStatus is a point-in-time view of the receiver diagnostics.
//
// Fields are read one after another; an Ingest running at the same time
// may be reflected in some fields and not others. The flags are sticky, so
// a fault is never lost, only seen one snapshot later.
type ExtendedStatus struct {
	// Callbacks counts every Ingest call, stored or not.
	Callbacks uint32 `json:"callbacks"`

	FlagQueueFull bool `json:"flag_queue_full"`
	FlagOversize  bool `json:"flag_oversize"`

	WriteIdx int `json:"write_idx"`
	ReadIdx  int `json:"read_idx"`
	Slots    int `json:"slots"`

	// Dropped and Oversized are running totals; clearing the flags does
	// not reset them.
	Dropped   uint32 `json:"dropped"`
	Oversized uint32 `json:"oversized"`
}

// Pending is the number of messages in the ring at snapshot time.
func (s ExtendedStatus) Pending() int {
	if s.WriteIdx >= s.ReadIdx {
		return s.WriteIdx - s.ReadIdx
	}
	return s.Slots - s.ReadIdx + s.WriteIdx
}

// SeqTracker detects gaps between the sequence numbers of successively
// received messages.
// Sequence numbers start at 1, so callbacks lost before the first
// received message count as a gap too.
type SeqTracker struct {
	last uint32
}

// Observe records seq and returns how many callbacks were skipped since the
// previous message.
func (t *SeqTracker) Observe(seq uint32) uint32 {
	gap := seq - t.last - 1
	t.last = seq
	return gap
}
