// Package espnow holds the ESP-NOW datagram constants shared by the radio
// transports and the receive pipeline, and the framing used to carry
// datagrams from an ESP32 bridge to the host.
package espnow

import (
	"errors"
	"fmt"
)

const (
	// MaxDataLen is the largest payload ESP-NOW will deliver.
	MaxDataLen = 250

	// MACLen is the length of a station address.
	MACLen = 6

	// HdrMACOffset is where the sender's station address sits inside the
	// frame address delivered with each datagram.
	HdrMACOffset = 12

	// FrameAddrLen is the size of the frame address header that precedes
	// the payload.
	FrameAddrLen = HdrMACOffset + MACLen
)

var errBadMAC = errors.New("malformed MAC address")

// MAC is the 6-byte station address of a node.
type MAC [MACLen]byte

func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

func (m MAC) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *MAC) UnmarshalText(text []byte) error {
	parsed, err := ParseMAC(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMAC parses the colon separated form produced by String.
func ParseMAC(s string) (MAC, error) {
	var m MAC
	if len(s) != 3*MACLen-1 {
		return m, errBadMAC
	}

	n, err := fmt.Sscanf(s, "%02x:%02x:%02x:%02x:%02x:%02x", &m[0], &m[1], &m[2], &m[3], &m[4], &m[5])
	if err != nil || n != MACLen {
		return MAC{}, errBadMAC
	}

	return m, nil
}

// MACFromFrameAddr extracts the station address from a frame address.
// Short frame addresses yield a zero MAC.
func MACFromFrameAddr(frameAddr []byte) MAC {
	var m MAC
	if len(frameAddr) >= FrameAddrLen {
		copy(m[:], frameAddr[HdrMACOffset:FrameAddrLen])
	}
	return m
}

// FrameAddr builds the frame address header for a given sender.
func FrameAddr(m MAC) [FrameAddrLen]byte {
	var hdr [FrameAddrLen]byte
	copy(hdr[HdrMACOffset:], m[:])
	return hdr
}
