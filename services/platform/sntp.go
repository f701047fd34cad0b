package platform

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"time"

	"luxmon-go/errcode"
)

const (
	sntpPort     = "123"
	sntpPacketSz = 48
	ntpEpochUnix = 2208988800 // seconds from 1900-01-01 to 1970-01-01
)

var errBadReply = errors.New("sntp: bad reply")

// SNTPService queries a pool with a single SNTPv3 client request. It needs
// only a datagram socket, so it runs on network stacks without the
// extended socket options full NTP clients depend on.
type SNTPService struct {
	offsetClock
	pool string

	// Dial defaults to net.Dial.
	Dial func(network, addr string) (net.Conn, error)
}

func NewSNTPService() *SNTPService { return &SNTPService{} }

func (s *SNTPService) Configure(tz, pool string) error {
	if pool == "" {
		return errors.New("empty time pool")
	}
	if err := s.setZone(tz); err != nil {
		return err
	}
	s.pool = pool
	return nil
}

func (s *SNTPService) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dial := s.Dial
	if dial == nil {
		dial = net.Dial
	}
	addr := s.pool
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, sntpPort)
	}
	conn, err := dial("udp", addr)
	if err != nil {
		return errcode.Wrap(errcode.LinkDown, "sntp.dial", err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(5 * time.Second)
	}
	_ = conn.SetDeadline(deadline)

	var pkt [sntpPacketSz]byte
	pkt[0] = 0x1B // LI 0, VN 3, mode 3 (client)
	sent := time.Now()
	if _, err := conn.Write(pkt[:]); err != nil {
		return errcode.Wrap(errcode.SyncTimeout, "sntp.write", err)
	}
	n, err := conn.Read(pkt[:])
	recv := time.Now()
	if err != nil {
		return errcode.Wrap(errcode.SyncTimeout, "sntp.read", err)
	}
	server, err := parseReply(pkt[:n])
	if err != nil {
		return errcode.Wrap(errcode.SyncTimeout, "sntp.parse", err)
	}
	rtt := recv.Sub(sent)
	s.setOffset(server.Add(rtt / 2).Sub(recv))
	return nil
}

// parseReply extracts the server transmit timestamp.
func parseReply(b []byte) (time.Time, error) {
	if len(b) < sntpPacketSz {
		return time.Time{}, errBadReply
	}
	if mode := b[0] & 0x07; mode != 4 {
		return time.Time{}, errBadReply
	}
	if b[1] == 0 { // stratum 0: kiss-o'-death
		return time.Time{}, errBadReply
	}
	secs := binary.BigEndian.Uint32(b[40:44])
	frac := binary.BigEndian.Uint32(b[44:48])
	if secs == 0 {
		return time.Time{}, errBadReply
	}
	nsec := (uint64(frac) * 1e9) >> 32
	return time.Unix(int64(secs)-ntpEpochUnix, int64(nsec)).UTC(), nil
}
