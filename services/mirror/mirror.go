// Package mirror replicates the agent's log stream to the diagnostic
// console and to at most one remote text session.
package mirror

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// Console is the always-available local sink.
type Console interface {
	WriteLine(line string)
}

// Peer is one accepted remote session.
type Peer interface {
	io.Writer
	Connected() bool
	Close() error
}

// Listener yields pending peers without blocking.
type Listener interface {
	Poll() (Peer, bool)
}

// Mirror owns the session handle. It is driven from the agent loop only.
type Mirror struct {
	console  Console
	listener Listener
	peer     Peer
	log      zerolog.Logger

	// OnSession is called when the session state changes.
	OnSession func(connected bool, peer Peer)
}

// New builds a Mirror. A nil listener disables remote sessions.
func New(console Console, listener Listener, log zerolog.Logger) *Mirror {
	return &Mirror{
		console:  console,
		listener: listener,
		log:      log.With().Str("component", "mirror").Logger(),
	}
}

// Connected reports whether a peer is held and still established.
func (m *Mirror) Connected() bool {
	return m.peer != nil && m.peer.Connected()
}

// AcceptIfIdle polls the listener when no session is active. A new peer
// replaces any stale handle and is announced on both sinks.
func (m *Mirror) AcceptIfIdle() bool {
	if m.listener == nil || m.Connected() {
		return false
	}
	if m.peer != nil {
		m.log.Debug().Msg("remote session dropped")
		_ = m.peer.Close()
		m.peer = nil
		m.notify(false, nil)
	}
	p, ok := m.listener.Poll()
	if !ok {
		return false
	}
	m.peer = p
	m.notify(true, p)
	m.Broadcast("New telnet client connected.")
	return true
}

// Broadcast writes line to the console and, if a session is connected, to
// the peer. Peer write errors surface later through Connected.
func (m *Mirror) Broadcast(line string) {
	m.console.WriteLine(line)
	if !m.Connected() {
		return
	}
	if _, err := io.WriteString(m.peer, line+"\r\n"); err != nil {
		m.log.Debug().Err(err).Msg("session write failed")
	}
}

// Broadcastf formats and broadcasts one line.
func (m *Mirror) Broadcastf(format string, args ...any) {
	m.Broadcast(fmt.Sprintf(format, args...))
}

func (m *Mirror) notify(connected bool, p Peer) {
	if m.OnSession != nil {
		m.OnSession(connected, p)
	}
}
