package espnow

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
)

// Serial bridge frame:
//
//	+-----+-----+-----+--------+--------+----------------+-----------+
//	| 'E' | 'N' | 'W' | len hi | len lo | frame address  |  payload  |
//	+-----+-----+-----+--------+--------+----------------+-----------+
//
// len covers the frame address and payload. The bridge forwards whatever
// the radio delivered, so payloads above MaxDataLen can appear and are
// left for the receiver to reject.
const (
	markerLen = 3
	hdrLen    = markerLen + 2

	// MaxBodyLen bounds a frame body on the wire.
	MaxBodyLen = FrameAddrLen + 2*MaxDataLen
)

var marker = [markerLen]byte{'E', 'N', 'W'}

var (
	ErrShortBody  = errors.New("frame body shorter than frame address")
	ErrBodyTooBig = errors.New("frame body too large")
)

// AppendFrame appends a serial bridge frame to dst.
func AppendFrame(dst []byte, frameAddr [FrameAddrLen]byte, data []byte) ([]byte, error) {
	body := FrameAddrLen + len(data)
	if body > MaxBodyLen {
		return dst, ErrBodyTooBig
	}

	dst = append(dst, marker[:]...)
	dst = binary.BigEndian.AppendUint16(dst, uint16(body))
	dst = append(dst, frameAddr[:]...)
	return append(dst, data...), nil
}

// Reader decodes serial bridge frames from a byte stream.
type Reader struct {
	r   *bufio.Reader
	buf [MaxBodyLen]byte

	// OnResync, if set, is called whenever the reader had to discard
	// bytes to find the next frame marker.
	OnResync func()
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 2*(hdrLen+MaxBodyLen))}
}

// ReadFrame returns the frame address and payload of the next frame. The
// returned slices alias the reader's buffer and are only valid until the
// next call.
//
// A length error is returned after the offending header has been consumed,
// so the caller may simply call ReadFrame again.
func (fr *Reader) ReadFrame() (frameAddr []byte, data []byte, err error) {
	if err := fr.sync(); err != nil {
		return nil, nil, err
	}

	var lenBuf [2]byte
	if _, err := io.ReadFull(fr.r, lenBuf[:]); err != nil {
		return nil, nil, err
	}

	body := int(binary.BigEndian.Uint16(lenBuf[:]))
	switch {
	case body < FrameAddrLen:
		return nil, nil, ErrShortBody
	case body > MaxBodyLen:
		return nil, nil, ErrBodyTooBig
	}

	if _, err := io.ReadFull(fr.r, fr.buf[:body]); err != nil {
		return nil, nil, err
	}

	return fr.buf[:FrameAddrLen], fr.buf[FrameAddrLen:body], nil
}

// sync consumes bytes until a complete marker has been read.
func (fr *Reader) sync() error {
	matched := 0
	skipped := false

	for matched < markerLen {
		b, err := fr.r.ReadByte()
		if err != nil {
			return err
		}

		switch {
		case b == marker[matched]:
			matched++
		case b == marker[0]:
			skipped = true
			matched = 1
		default:
			skipped = true
			matched = 0
		}
	}

	if skipped && fr.OnResync != nil {
		fr.OnResync()
	}

	return nil
}

// AppendDatagram appends the UDP form of a datagram (no marker, no length)
// to dst.
func AppendDatagram(dst []byte, frameAddr [FrameAddrLen]byte, data []byte) []byte {
	dst = append(dst, frameAddr[:]...)
	return append(dst, data...)
}

// SplitDatagram splits a UDP datagram into frame address and payload.
func SplitDatagram(pkt []byte) (frameAddr []byte, data []byte, err error) {
	if len(pkt) < FrameAddrLen {
		return nil, nil, ErrShortBody
	}
	return pkt[:FrameAddrLen], pkt[FrameAddrLen:], nil
}
