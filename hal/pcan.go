//go:build cgo && !linux

package hal

/*
#cgo LDFLAGS: -lpcanbasic

#include <stdint.h>
#include <PCANBasic.h>
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/canscope/engine/frame"
	log "github.com/sirupsen/logrus"
)

func init() {
	Register("pcan", NewPCANBackend)
	RegisterEnumerator(enumeratePCAN)
}

// pcanChannelTable maps an interface id suffix to the vendor's channel
// handle constant, following the PCAN-Basic channel numbering used
// throughout the morgadow/gopcan bindings.
var pcanChannelTable = map[string]C.TPCANHandle{
	"pcan0": C.PCAN_USBBUS1,
	"pcan1": C.PCAN_USBBUS2,
	"pcan2": C.PCAN_USBBUS3,
	"pcan3": C.PCAN_USBBUS4,
	"pcan4": C.PCAN_USBBUS5,
	"pcan5": C.PCAN_USBBUS6,
	"pcan6": C.PCAN_USBBUS7,
	"pcan7": C.PCAN_USBBUS8,
}

// pcanBitrateTable maps bits-per-second to the vendor BTR0BTR1 bitrate
// code, per spec.md §4.B; an unrecognized bitrate falls back to 500k.
var pcanBitrateTable = map[int]C.TPCANBaudrate{
	1000000: C.PCAN_BAUD_1M,
	800000:  C.PCAN_BAUD_800K,
	500000:  C.PCAN_BAUD_500K,
	250000:  C.PCAN_BAUD_250K,
	125000:  C.PCAN_BAUD_125K,
	100000:  C.PCAN_BAUD_100K,
	50000:   C.PCAN_BAUD_50K,
	20000:   C.PCAN_BAUD_20K,
	10000:   C.PCAN_BAUD_10K,
	5000:    C.PCAN_BAUD_5K,
}

func bitrateCode(bitrate int) C.TPCANBaudrate {
	if code, ok := pcanBitrateTable[bitrate]; ok {
		return code
	}
	return C.PCAN_BAUD_500K
}

// PCANBackend drives the PEAK-Systems vendor library via its C ABI.
// This file is compiled only for cgo builds on non-Linux hosts and links
// against the vendor library; Linux and non-cgo builds compile
// pcan_stub.go instead. Whether the library is installed is not checked
// at run time: a cgo build on a host without it fails to link.
type PCANBackend struct {
	mu        sync.Mutex
	id        string
	handle    C.TPCANHandle
	connected bool
	logger    *log.Entry
}

func NewPCANBackend(interfaceID string) (Backend, error) {
	handle, ok := pcanChannelTable[interfaceID]
	if !ok {
		return nil, fmt.Errorf("hal: unknown pcan interface %q", interfaceID)
	}
	return &PCANBackend{
		id:     interfaceID,
		handle: handle,
		logger: log.WithField("backend", "pcan").WithField("interface", interfaceID),
	}, nil
}

func (p *PCANBackend) Info() Info {
	return Info{ID: p.id, Name: "PCAN " + p.id, Type: "pcan", Available: true}
}

func (p *PCANBackend) Connect(bitrate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		return ErrAlreadyConnected
	}
	status := C.CAN_Initialize(p.handle, bitrateCode(bitrate), 0, 0, 0)
	if status != C.PCAN_ERROR_OK {
		return fmt.Errorf("hal: pcan initialize failed: status 0x%X", uint32(status))
	}
	p.connected = true
	return nil
}

func (p *PCANBackend) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return ErrNotConnected
	}
	C.CAN_Uninitialize(p.handle)
	p.connected = false
	return nil
}

func (p *PCANBackend) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *PCANBackend) Send(f frame.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return ErrNotConnected
	}
	if err := f.Validate(); err != nil {
		return err
	}

	var msg C.TPCANMsg
	msg.ID = C.uint32_t(f.ID)
	msg.LEN = C.BYTE(f.DLC)
	msg.MSGTYPE = C.PCAN_MESSAGE_STANDARD
	if f.IsExtended {
		msg.MSGTYPE = C.PCAN_MESSAGE_EXTENDED
	}
	if f.IsRemote {
		msg.MSGTYPE |= C.PCAN_MESSAGE_RTR
	}
	for i, b := range f.Data {
		msg.DATA[i] = C.BYTE(b)
	}

	status := C.CAN_Write(p.handle, &msg)
	if status != C.PCAN_ERROR_OK {
		return fmt.Errorf("hal: pcan write failed: status 0x%X", uint32(status))
	}
	return nil
}

func (p *PCANBackend) Receive() (frame.Frame, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return frame.Frame{}, false, ErrNotConnected
	}

	var msg C.TPCANMsg
	var ts C.TPCANTimestamp
	status := C.CAN_Read(p.handle, &msg, &ts)
	if status == C.PCAN_ERROR_QRCVEMPTY {
		return frame.Frame{}, false, nil
	}
	if status != C.PCAN_ERROR_OK {
		return frame.Frame{}, false, fmt.Errorf("hal: pcan read failed: status 0x%X", uint32(status))
	}

	dlc := uint8(msg.LEN)
	data := make([]byte, dlc)
	for i := 0; i < int(dlc); i++ {
		data[i] = byte(msg.DATA[i])
	}
	f := frame.Frame{
		ID:         uint32(msg.ID),
		IsExtended: msg.MSGTYPE&C.PCAN_MESSAGE_EXTENDED != 0,
		IsRemote:   msg.MSGTYPE&C.PCAN_MESSAGE_RTR != 0,
		DLC:        dlc,
		Data:       data,
	}
	return f, true, nil
}

func (p *PCANBackend) SetFilter(filter *IDFilter) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if filter == nil {
		C.CAN_SetValue(p.handle, C.PCAN_MESSAGE_FILTER, unsafe.Pointer(&[]C.BYTE{C.PCAN_FILTER_OPEN}[0]), 1)
		return nil
	}
	// PCAN-Basic's software filter is a single id/range pair on standard
	// CAN ids; spec.md's filter is id-range based so it maps directly.
	lo := C.DWORD(filter.Min)
	hi := C.DWORD(filter.Max)
	status := C.CAN_FilterMessages(p.handle, lo, hi, C.PCAN_MESSAGE_STANDARD)
	if status != C.PCAN_ERROR_OK {
		return fmt.Errorf("hal: pcan set filter failed: status 0x%X", uint32(status))
	}
	return nil
}

func (p *PCANBackend) BusState() BusState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return BusStateUnknown
	}
	var status C.TPCANStatus
	ret := C.CAN_GetStatus(p.handle)
	status = ret
	switch {
	case status == C.PCAN_ERROR_OK:
		return BusStateActive
	case status&C.PCAN_ERROR_BUSWARNING != 0:
		return BusStateWarning
	case status&C.PCAN_ERROR_BUSPASSIVE != 0:
		return BusStatePassive
	case status&C.PCAN_ERROR_BUSOFF != 0:
		return BusStateBusOff
	default:
		return BusStateUnknown
	}
}

// enumeratePCAN lists the fixed eight adapter slots and marks every one
// available; no slot or library is probed. Builds that compile
// pcan_stub.go instead (Linux, or no cgo) report every slot unavailable.
func enumeratePCAN() []Info {
	out := make([]Info, 0, len(pcanChannelTable))
	for id := range pcanChannelTable {
		out = append(out, Info{ID: id, Name: "PCAN " + id, Type: "pcan", Available: true})
	}
	return out
}
