// Command uniremote-sim pretends to be a group of UniRemote nodes. It sends
// commands as UDP multicast datagrams to a gateway built with the
// simulated tag.
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/netleapio/uniremote-gateway/espnow"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

type sender struct {
	w        io.Writer
	from     espnow.MAC
	interval time.Duration
	buf      []byte
}

// send writes every command count times, one datagram each.
func (s *sender) send(commands []string, count int) error {
	hdr := espnow.FrameAddr(s.from)

	for i := 0; i < count; i++ {
		for _, cmd := range commands {
			if len(cmd) >= espnow.MaxDataLen {
				log.WithField("len", len(cmd)).Warn("sending oversize command")
			}

			s.buf = espnow.AppendDatagram(s.buf[:0], hdr, []byte(cmd))
			if _, err := s.w.Write(s.buf); err != nil {
				return err
			}

			log.WithField("from", s.from).WithField("command", cmd).Debug("sent")

			if s.interval > 0 {
				time.Sleep(s.interval)
			}
		}
	}

	return nil
}

func mainImpl() error {
	addr := flag.String("addr", "224.0.0.1:9999", "multicast group of the simulated radio")
	mac := flag.String("mac", "24:6f:28:00:00:01", "sender MAC address")
	count := flag.Int("count", 1, "number of times to send each command")
	interval := flag.Duration("interval", 100*time.Millisecond, "delay between datagrams")
	verbose := flag.Bool("v", false, "log every datagram")
	flag.Parse()

	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	from, err := espnow.ParseMAC(*mac)
	if err != nil {
		return err
	}

	commands := flag.Args()
	if len(commands) == 0 {
		commands = []string{"STATUS"}
	}

	udpAddr, err := net.ResolveUDPAddr("udp", *addr)
	if err != nil {
		return err
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	s := &sender{w: conn, from: from, interval: *interval}
	if err := s.send(commands, *count); err != nil {
		return err
	}

	log.WithField("datagrams", len(commands)*(*count)).Info("done")
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "uniremote-sim: %s.\n", err)
		os.Exit(1)
	}
}
