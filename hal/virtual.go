package hal

import (
	"log/slog"
	"sync"

	"github.com/canscope/engine/frame"
)

func init() {
	Register("virtual", NewVirtualBackend)
	RegisterEnumerator(enumerateVirtual)
}

// virtualRingSize is the bounded ring buffer capacity for loopback
// send/receive, per spec.md §4.B ("dropping the oldest on overflow").
const virtualRingSize = 1000

// Bus is the optional collaborator that broadcasts a frame to every
// other virtual node attached to the same named bus, excluding the
// sender: an in-process registry so multiple VirtualBackends can share
// one segment without requiring an external broker process. See
// VirtualTCPBackend for the out-of-process, TCP-based equivalent.
type Bus struct {
	mu    sync.Mutex
	nodes map[*VirtualBackend]struct{}
}

func NewBus() *Bus {
	return &Bus{nodes: make(map[*VirtualBackend]struct{})}
}

func (b *Bus) join(v *VirtualBackend) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodes[v] = struct{}{}
}

func (b *Bus) leave(v *VirtualBackend) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.nodes, v)
}

// Broadcast delivers f to every node on the bus except sender.
func (b *Bus) Broadcast(sender *VirtualBackend, f frame.Frame) {
	b.mu.Lock()
	targets := make([]*VirtualBackend, 0, len(b.nodes))
	for n := range b.nodes {
		if n != sender {
			targets = append(targets, n)
		}
	}
	b.mu.Unlock()
	for _, n := range targets {
		n.deliver(f)
	}
}

// VirtualBackend is a software loopback CAN backend: send places a
// frame (direction rewritten to rx, timestamp assigned by the owning
// channel) into a bounded ring buffer; receive pops from the head.
type VirtualBackend struct {
	mu        sync.Mutex
	id        string
	connected bool
	ring      []frame.Frame
	filter    *IDFilter
	bus       *Bus
	logger    *slog.Logger
}

func NewVirtualBackend(interfaceID string) (Backend, error) {
	return &VirtualBackend{
		id:     interfaceID,
		logger: slog.Default().With("backend", "virtual", "interface", interfaceID),
	}, nil
}

// AttachBus joins this backend to a shared virtual bus so its sends
// are also broadcast to every other node on the same bus.
func (v *VirtualBackend) AttachBus(b *Bus) {
	v.bus = b
	b.join(v)
}

func (v *VirtualBackend) Info() Info {
	return Info{ID: v.id, Name: "Virtual CAN " + v.id, Type: "virtual", Available: true}
}

func (v *VirtualBackend) Connect(bitrate int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.connected {
		return ErrAlreadyConnected
	}
	v.connected = true
	v.ring = nil
	return nil
}

func (v *VirtualBackend) Disconnect() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.connected {
		return ErrNotConnected
	}
	v.connected = false
	v.ring = nil
	if v.bus != nil {
		v.bus.leave(v)
	}
	return nil
}

func (v *VirtualBackend) IsConnected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connected
}

// Send pushes the frame onto the ring as an rx frame (loopback), and
// broadcasts it to any shared bus. Filters are applied in software on
// the buffer-push path per spec.md §4.B.
func (v *VirtualBackend) Send(f frame.Frame) error {
	v.mu.Lock()
	if !v.connected {
		v.mu.Unlock()
		return ErrNotConnected
	}
	loop := f
	loop.Direction = frame.DirectionRx
	if v.passesFilter(loop) {
		v.pushLocked(loop)
	}
	bus := v.bus
	v.mu.Unlock()

	if bus != nil {
		bus.Broadcast(v, f)
	}
	return nil
}

// deliver is invoked by Bus.Broadcast to hand a frame from another
// node to this one.
func (v *VirtualBackend) deliver(f frame.Frame) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.connected {
		return
	}
	f.Direction = frame.DirectionRx
	if v.passesFilter(f) {
		v.pushLocked(f)
	}
}

func (v *VirtualBackend) pushLocked(f frame.Frame) {
	if len(v.ring) >= virtualRingSize {
		v.ring = v.ring[1:]
	}
	v.ring = append(v.ring, f)
}

func (v *VirtualBackend) passesFilter(f frame.Frame) bool {
	if v.filter == nil {
		return true
	}
	return f.ID >= v.filter.Min && f.ID <= v.filter.Max
}

func (v *VirtualBackend) Receive() (frame.Frame, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.connected {
		return frame.Frame{}, false, ErrNotConnected
	}
	if len(v.ring) == 0 {
		return frame.Frame{}, false, nil
	}
	f := v.ring[0]
	v.ring = v.ring[1:]
	return f, true, nil
}

func (v *VirtualBackend) SetFilter(filter *IDFilter) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.filter = filter
	return nil
}

func (v *VirtualBackend) BusState() BusState {
	return BusStateActive
}

// enumerateVirtual always exposes two virtual interfaces, per spec.md §4.B.
func enumerateVirtual() []Info {
	return []Info{
		{ID: "vcan0", Name: "Virtual CAN 0", Type: "virtual", Available: true},
		{ID: "vcan1", Name: "Virtual CAN 1", Type: "virtual", Available: true},
	}
}
