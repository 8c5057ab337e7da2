//go:build linux || !cgo

package hal

import (
	"github.com/canscope/engine/frame"
)

func init() {
	Register("pcan", NewPCANBackend)
	RegisterEnumerator(enumeratePCAN)
}

// pcanSlots is the fixed probe list of up to eight adapter slots,
// per spec.md §4.B, each reporting unavailable: the vendor shared
// library cannot be linked without cgo.
var pcanSlots = []string{"pcan0", "pcan1", "pcan2", "pcan3", "pcan4", "pcan5", "pcan6", "pcan7"}

// NewPCANBackend reports the interface as permanently unavailable:
// PCAN-Basic only ships Windows/macOS drivers, so a Linux host is
// always refused, and any host without cgo cannot link the vendor
// library at all.
func NewPCANBackend(interfaceID string) (Backend, error) {
	return &unavailablePCANBackend{id: interfaceID}, nil
}

type unavailablePCANBackend struct {
	id string
}

func (b *unavailablePCANBackend) Info() Info {
	return Info{ID: b.id, Name: "PCAN " + b.id, Type: "pcan", Available: false}
}
func (b *unavailablePCANBackend) Connect(int) error      { return ErrUnavailable }
func (b *unavailablePCANBackend) Disconnect() error      { return ErrNotConnected }
func (b *unavailablePCANBackend) IsConnected() bool      { return false }
func (b *unavailablePCANBackend) Send(frame.Frame) error { return ErrNotConnected }
func (b *unavailablePCANBackend) Receive() (frame.Frame, bool, error) {
	return frame.Frame{}, false, ErrNotConnected
}
func (b *unavailablePCANBackend) SetFilter(*IDFilter) error { return ErrNotConnected }
func (b *unavailablePCANBackend) BusState() BusState        { return BusStateUnknown }

func enumeratePCAN() []Info {
	out := make([]Info, 0, len(pcanSlots))
	for _, id := range pcanSlots {
		out = append(out, Info{ID: id, Name: "PCAN " + id, Type: "pcan", Available: false})
	}
	return out
}
