//go:build !linux

package hal

import (
	"github.com/canscope/engine/frame"
)

// NewLinuxBackend is unavailable on non-Linux platforms: SocketCAN is a
// Linux kernel facility. The "can*" scheme resolves to a backend that
// always refuses to connect, so callers see Unavailable rather than a
// missing-registration error.
func NewLinuxBackend(interfaceID string) (Backend, error) {
	return &unavailableLinuxBackend{id: interfaceID}, nil
}

func init() {
	Register("socketcan", NewLinuxBackend)
}

type unavailableLinuxBackend struct {
	id string
}

func (b *unavailableLinuxBackend) Info() Info {
	return Info{ID: b.id, Name: "SocketCAN " + b.id, Type: "socketcan", Available: false}
}
func (b *unavailableLinuxBackend) Connect(int) error                { return ErrUnavailable }
func (b *unavailableLinuxBackend) Disconnect() error                { return ErrNotConnected }
func (b *unavailableLinuxBackend) IsConnected() bool                { return false }
func (b *unavailableLinuxBackend) Send(frame.Frame) error           { return ErrNotConnected }
func (b *unavailableLinuxBackend) Receive() (frame.Frame, bool, error) {
	return frame.Frame{}, false, ErrNotConnected
}
func (b *unavailableLinuxBackend) SetFilter(*IDFilter) error { return ErrNotConnected }
func (b *unavailableLinuxBackend) BusState() BusState        { return BusStateUnknown }
