package hal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/canscope/engine/frame"
)

func init() {
	Register("virtualtcp", NewVirtualTCPBackend)
}

// wireFrame is the fixed-width binary layout exchanged with a virtual-bus
// broker: a 4-byte big-endian length prefix followed by a
// binary.BigEndian-encoded fixed record.
type wireFrame struct {
	ID         uint32
	IsExtended uint8
	IsRemote   uint8
	DLC        uint8
	_          uint8 // padding, keeps the struct a fixed size across platforms
	Data       [8]byte
}

func serializeWireFrame(f frame.Frame) []byte {
	w := wireFrame{
		ID:  f.ID,
		DLC: f.DLC,
	}
	if f.IsExtended {
		w.IsExtended = 1
	}
	if f.IsRemote {
		w.IsRemote = 1
	}
	copy(w.Data[:], f.Data)

	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, w)
	body := buf.Bytes()

	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out, uint32(len(body)))
	copy(out[4:], body)
	return out
}

func deserializeWireFrame(body []byte) (frame.Frame, error) {
	var w wireFrame
	if err := binary.Read(bytes.NewReader(body), binary.BigEndian, &w); err != nil {
		return frame.Frame{}, err
	}
	dlc := w.DLC
	if int(dlc) > len(w.Data) {
		dlc = uint8(len(w.Data))
	}
	return frame.Frame{
		ID:         w.ID,
		IsExtended: w.IsExtended != 0,
		IsRemote:   w.IsRemote != 0,
		DLC:        dlc,
		Data:       append([]byte(nil), w.Data[:dlc]...),
		Direction:  frame.DirectionRx,
	}, nil
}

// VirtualTCPBackend dials a virtual-bus broker over TCP and exchanges
// length-prefixed serialized frames with it. The broker address is the
// interface id itself (e.g. "localhost:18000").
type VirtualTCPBackend struct {
	mu        sync.Mutex
	addr      string
	conn      net.Conn
	connected bool
	filter    *IDFilter
	logger    *slog.Logger
}

func NewVirtualTCPBackend(interfaceID string) (Backend, error) {
	return &VirtualTCPBackend{
		addr:   interfaceID,
		logger: slog.Default().With("backend", "virtualtcp", "addr", interfaceID),
	}, nil
}

func (v *VirtualTCPBackend) Info() Info {
	return Info{ID: v.addr, Name: "Virtual CAN broker " + v.addr, Type: "virtualtcp", Available: true}
}

func (v *VirtualTCPBackend) Connect(bitrate int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.connected {
		return ErrAlreadyConnected
	}
	conn, err := net.DialTimeout("tcp", v.addr, 2*time.Second)
	if err != nil {
		return fmt.Errorf("hal: dial virtual bus broker %s: %w", v.addr, err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}
	v.conn = conn
	v.connected = true
	return nil
}

func (v *VirtualTCPBackend) Disconnect() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.connected {
		return ErrNotConnected
	}
	v.connected = false
	err := v.conn.Close()
	v.conn = nil
	return err
}

func (v *VirtualTCPBackend) IsConnected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connected
}

func (v *VirtualTCPBackend) Send(f frame.Frame) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.connected {
		return ErrNotConnected
	}
	_ = v.conn.SetWriteDeadline(time.Now().Add(10 * time.Millisecond))
	_, err := v.conn.Write(serializeWireFrame(f))
	return err
}

// Receive is non-blocking: a short read deadline turns "broker has
// nothing for us right now" into (zero, false, nil) rather than a
// blocking call, per the HAL's pull contract.
func (v *VirtualTCPBackend) Receive() (frame.Frame, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.connected {
		return frame.Frame{}, false, ErrNotConnected
	}

	_ = v.conn.SetReadDeadline(time.Now().Add(5 * time.Millisecond))
	header := make([]byte, 4)
	if _, err := readFull(v.conn, header); err != nil {
		if isTimeout(err) {
			return frame.Frame{}, false, nil
		}
		return frame.Frame{}, false, err
	}
	length := binary.BigEndian.Uint32(header)
	body := make([]byte, length)
	_ = v.conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	if _, err := readFull(v.conn, body); err != nil {
		return frame.Frame{}, false, err
	}

	f, err := deserializeWireFrame(body)
	if err != nil {
		return frame.Frame{}, false, err
	}
	if !v.passesFilter(f) {
		return frame.Frame{}, false, nil
	}
	return f, true, nil
}

func (v *VirtualTCPBackend) passesFilter(f frame.Frame) bool {
	if v.filter == nil {
		return true
	}
	return f.ID >= v.filter.Min && f.ID <= v.filter.Max
}

func (v *VirtualTCPBackend) SetFilter(filter *IDFilter) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.filter = filter
	return nil
}

func (v *VirtualTCPBackend) BusState() BusState {
	return BusStateActive
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
