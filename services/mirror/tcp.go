package mirror

import (
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"
)

const defaultWriteTimeout = 2 * time.Second

// TCPListener adapts a net.Listener to the non-blocking Listener contract.
// A background accept loop parks at most one connection; further
// connections wait in the kernel backlog until the slot is taken.
type TCPListener struct {
	ln           net.Listener
	pending      chan net.Conn
	done         chan struct{}
	WriteTimeout time.Duration
}

// Listen opens a TCP listener on addr ("tcp" network).
func Listen(addr string) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewTCPListener(ln), nil
}

// NewTCPListener starts accepting on ln.
func NewTCPListener(ln net.Listener) *TCPListener {
	l := &TCPListener{
		ln:           ln,
		pending:      make(chan net.Conn, 1),
		done:         make(chan struct{}),
		WriteTimeout: defaultWriteTimeout,
	}
	go l.acceptLoop()
	return l
}

func (l *TCPListener) acceptLoop() {
	for {
		c, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-l.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}
		select {
		case l.pending <- c:
		case <-l.done:
			_ = c.Close()
			return
		}
	}
}

// Poll returns a pending connection if one is queued.
func (l *TCPListener) Poll() (Peer, bool) {
	select {
	case c := <-l.pending:
		return newConnPeer(c, l.WriteTimeout), true
	default:
		return nil, false
	}
}

func (l *TCPListener) Addr() net.Addr { return l.ln.Addr() }

// Close stops the accept loop and the underlying listener.
func (l *TCPListener) Close() error {
	select {
	case <-l.done:
		return nil
	default:
		close(l.done)
	}
	return l.ln.Close()
}

// connPeer is a server-to-client session. Input is read and discarded so
// that a closed socket is noticed without a write.
type connPeer struct {
	c       net.Conn
	alive   atomic.Bool
	timeout time.Duration
}

func newConnPeer(c net.Conn, timeout time.Duration) *connPeer {
	p := &connPeer{c: c, timeout: timeout}
	p.alive.Store(true)
	go p.drain()
	return p
}

func (p *connPeer) drain() {
	_, _ = io.Copy(io.Discard, p.c)
	p.alive.Store(false)
}

func (p *connPeer) Write(b []byte) (int, error) {
	if p.timeout > 0 {
		_ = p.c.SetWriteDeadline(time.Now().Add(p.timeout))
	}
	n, err := p.c.Write(b)
	if err != nil {
		p.alive.Store(false)
	}
	return n, err
}

func (p *connPeer) Connected() bool { return p.alive.Load() }

func (p *connPeer) Close() error {
	p.alive.Store(false)
	return p.c.Close()
}

func (p *connPeer) String() string { return p.c.RemoteAddr().String() }
