//go:build linux

package hal

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"unsafe"

	"github.com/canscope/engine/frame"
	"golang.org/x/sys/unix"
)

func init() {
	Register("socketcan", NewLinuxBackend)
	RegisterEnumerator(enumerateLinuxCAN)
}

// socketCANFrameSize is the wire size of struct can_frame.
const socketCANFrameSize = 16

// rawCANFrame mirrors the kernel's struct can_frame, carrying the
// extended/RTR flag bits the kernel folds into the id field.
type rawCANFrame struct {
	id   uint32
	dlc  uint8
	pad  uint8
	res0 uint8
	res1 uint8
	data [8]uint8
}

// LinuxBackend opens a raw kernel CAN socket on the named interface in
// non-blocking mode, per spec.md §4.B. On Linux the kernel bitrate is
// assumed pre-configured by the operator; the bitrate argument is
// recorded but not applied.
type LinuxBackend struct {
	mu        sync.Mutex
	id        string
	fd        int
	connected bool
	bitrate   int
}

func NewLinuxBackend(interfaceID string) (Backend, error) {
	return &LinuxBackend{id: interfaceID, fd: -1}, nil
}

func (b *LinuxBackend) Info() Info {
	return Info{ID: b.id, Name: "SocketCAN " + b.id, Type: "socketcan", Available: true}
}

func (b *LinuxBackend) Connect(bitrate int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connected {
		return ErrAlreadyConnected
	}

	idx, err := interfaceIndex(b.id)
	if err != nil {
		return fmt.Errorf("hal: resolving interface %s: %w", b.id, err)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return fmt.Errorf("hal: opening CAN socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return fmt.Errorf("hal: setting non-blocking: %w", err)
	}
	addr := &unix.SockaddrCAN{Ifindex: idx}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return fmt.Errorf("hal: binding to %s: %w", b.id, err)
	}

	b.fd = fd
	b.bitrate = bitrate
	b.connected = true
	return nil
}

func (b *LinuxBackend) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return ErrNotConnected
	}
	unix.Close(b.fd)
	b.fd = -1
	b.connected = false
	return nil
}

func (b *LinuxBackend) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *LinuxBackend) Send(f frame.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return ErrNotConnected
	}
	if err := f.Validate(); err != nil {
		return err
	}

	id := f.ID
	if f.IsExtended {
		id |= unix.CAN_EFF_FLAG
	}
	if f.IsRemote {
		id |= unix.CAN_RTR_FLAG
	}

	raw := rawCANFrame{id: id, dlc: f.DLC}
	copy(raw.data[:], f.Data)

	buf := (*(*[socketCANFrameSize]byte)(unsafe.Pointer(&raw)))[:]
	n, err := unix.Write(b.fd, buf)
	if err != nil {
		return fmt.Errorf("hal: writing frame: %w", err)
	}
	if n != socketCANFrameSize {
		return fmt.Errorf("hal: short write (%d of %d bytes)", n, socketCANFrameSize)
	}
	return nil
}

func (b *LinuxBackend) Receive() (frame.Frame, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return frame.Frame{}, false, ErrNotConnected
	}

	buf := make([]byte, socketCANFrameSize)
	n, err := unix.Read(b.fd, buf)
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
		return frame.Frame{}, false, nil
	}
	if err != nil {
		return frame.Frame{}, false, fmt.Errorf("hal: reading frame: %w", err)
	}
	if n != socketCANFrameSize {
		return frame.Frame{}, false, fmt.Errorf("hal: short read (%d of %d bytes)", n, socketCANFrameSize)
	}

	raw := (*rawCANFrame)(unsafe.Pointer(&buf[0]))
	isExtended := raw.id&unix.CAN_EFF_FLAG != 0
	isRemote := raw.id&unix.CAN_RTR_FLAG != 0
	id := raw.id & unix.CAN_EFF_MASK
	if !isExtended {
		id = raw.id & unix.CAN_SFF_MASK
	}

	f := frame.Frame{
		ID:         id,
		IsExtended: isExtended,
		IsRemote:   isRemote,
		DLC:        raw.dlc,
		Data:       append([]byte(nil), raw.data[:raw.dlc]...),
	}
	return f, true, nil
}

func (b *LinuxBackend) SetFilter(filter *IDFilter) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return ErrNotConnected
	}
	if filter == nil {
		return unix.SetsockoptCanRawFilter(b.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, nil)
	}
	// A single id/mask pair spanning [min, max] collapsed to an exact
	// match mask when the range is a single id, else accept-all within
	// range is approximated with a mask covering the differing bits.
	mask := filter.Min ^ filter.Max
	mask = ^mask & unix.CAN_SFF_MASK
	filters := []unix.CanFilter{{Id: filter.Min, Mask: mask}}
	return unix.SetsockoptCanRawFilter(b.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, filters)
}

func (b *LinuxBackend) BusState() BusState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return BusStateUnknown
	}
	return BusStateActive
}

func interfaceIndex(name string) (int, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return 0, err
	}
	return iface.Index, nil
}
