// Package hal is the Hardware Abstraction Layer: one capability set
// every CAN back-end (virtual, Linux SocketCAN, PCAN USB) must provide,
// plus a registry and interface-enumeration helper.
package hal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/canscope/engine/frame"
)

// BusState mirrors the classic CAN error-state machine.
type BusState int

const (
	BusStateUnknown BusState = iota
	BusStateActive
	BusStateWarning
	BusStatePassive
	BusStateBusOff
)

func (s BusState) String() string {
	switch s {
	case BusStateActive:
		return "active"
	case BusStateWarning:
		return "warning"
	case BusStatePassive:
		return "passive"
	case BusStateBusOff:
		return "bus_off"
	default:
		return "unknown"
	}
}

// Info is the pure, side-effect-free description of an interface.
type Info struct {
	ID        string
	Name      string
	Type      string
	Available bool
}

// IDFilter is the hardware-level identifier filter accepted by
// set_filter. A nil *IDFilter clears any active filter.
type IDFilter struct {
	Min uint32
	Max uint32
}

var (
	ErrAlreadyConnected = errors.New("hal: already connected")
	ErrNotConnected     = errors.New("hal: not connected")
	ErrNoFrame          = errors.New("hal: no frame available")
	ErrUnavailable      = errors.New("hal: interface unavailable")
)

// Backend is the uniform capability set every CAN back-end implements.
type Backend interface {
	Info() Info
	Connect(bitrate int) error
	Disconnect() error
	IsConnected() bool
	Send(f frame.Frame) error
	// Receive is non-blocking: it returns (frame, true) if a frame was
	// available, (zero, false) if not, and an error only on a device
	// failure distinct from "no data".
	Receive() (frame.Frame, bool, error)
	SetFilter(filter *IDFilter) error
	BusState() BusState
}

// Factory constructs a Backend bound to a given interface id (e.g.
// "vcan0", "can0", "pcan0").
type Factory func(interfaceID string) (Backend, error)

var registry = map[string]Factory{}

// Register adds a backend constructor under a scheme name. Called from
// each backend's init().
func Register(scheme string, factory Factory) {
	registry[scheme] = factory
}

// New selects a backend by the interface-id prefix, per spec.md §4.C:
// "vcan*" → virtual, "can*" → Linux native, "pcan*" → USB native.
func New(interfaceID string) (Backend, error) {
	scheme := schemeFor(interfaceID)
	factory, ok := registry[scheme]
	if !ok {
		return nil, fmt.Errorf("hal: no backend registered for interface %q (scheme %q)", interfaceID, scheme)
	}
	return factory(interfaceID)
}

func schemeFor(interfaceID string) string {
	switch {
	case len(interfaceID) >= 4 && interfaceID[:4] == "vcan":
		return "virtual"
	case len(interfaceID) >= 4 && interfaceID[:4] == "pcan":
		return "pcan"
	case len(interfaceID) >= 3 && interfaceID[:3] == "can":
		return "socketcan"
	case strings.Contains(interfaceID, ":"):
		// host:port addresses select the TCP virtual-bus broker client
		// rather than the in-process loopback.
		return "virtualtcp"
	default:
		return "virtual"
	}
}

// Enumerator lists the interfaces a given backend family exposes.
// Implemented per platform (see enumerate_linux.go, virtual.go and
// pcan.go / pcan_stub.go).
type Enumerator func() []Info

var enumerators []Enumerator

// RegisterEnumerator adds an interface-enumeration source.
func RegisterEnumerator(e Enumerator) {
	enumerators = append(enumerators, e)
}

// Enumerate aggregates every registered enumerator's interface list.
func Enumerate() []Info {
	var out []Info
	for _, e := range enumerators {
		out = append(out, e()...)
	}
	return out
}
