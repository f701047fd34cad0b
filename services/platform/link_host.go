//go:build !rp2040 && !rp2350

package platform

import (
	"net"
)

// IfaceLink reports a host interface as connected when it is up and holds
// a global unicast address. Association belongs to the OS, so Connect only
// records the request.
type IfaceLink struct {
	name string

	// lookup defaults to net.InterfaceByName.
	lookup func(name string) (iface, error)
}

// iface is the part of net.Interface the link needs.
type iface interface {
	Up() bool
	Addrs() ([]net.Addr, error)
}

type netIface struct{ *net.Interface }

func (i netIface) Up() bool { return i.Flags&net.FlagUp != 0 }

func NewIfaceLink(name string) *IfaceLink {
	return &IfaceLink{name: name, lookup: func(n string) (iface, error) {
		ifc, err := net.InterfaceByName(n)
		if err != nil {
			return nil, err
		}
		return netIface{ifc}, nil
	}}
}

func (l *IfaceLink) Connect(ssid, password string) error { return nil }

func (l *IfaceLink) Connected() bool {
	ifc, err := l.lookup(l.name)
	if err != nil || !ifc.Up() {
		return false
	}
	addrs, err := ifc.Addrs()
	if err != nil {
		return false
	}
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip != nil && ip.IsGlobalUnicast() {
			return true
		}
	}
	return false
}
