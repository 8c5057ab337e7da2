// Package channel implements the Channel component of spec.md §4.C:
// connection lifecycle, frame I/O, per-channel statistics, and fan-out
// of received frames to multiple subscribers. Locking discipline keeps
// one mutex guarding a small amount of state, with short critical
// sections around backend calls.
package channel

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/canscope/engine/filter"
	"github.com/canscope/engine/frame"
	"github.com/canscope/engine/hal"
	log "github.com/sirupsen/logrus"
)

// State is the connection lifecycle state machine of spec.md §3.
// Transitions flow Disconnected→Connecting→{Connected|Error}→Disconnected;
// Connect is also accepted from Error and moves it straight to Connecting.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "disconnected"
	}
}

var (
	ErrNotConnected     = errors.New("channel: not connected")
	ErrAlreadyConnected = errors.New("channel: already connected")
)

// Config is the connection configuration of spec.md §3.
type Config struct {
	InterfaceID string
	Bitrate     int
	ListenOnly  bool
}

// Stats are the per-channel counters of spec.md §3, reset on each
// successful connect.
type Stats struct {
	TxCount     uint64
	RxCount     uint64
	ErrorCount  uint64
	TxErrors    uint64
	RxErrors    uint64
	BusLoadPct  float64
}

// fanoutCapacity is the broadcast fan-out buffer size; slow subscribers
// that fall behind are dropped silently (lossy), per spec.md §4.C.
const fanoutCapacity = 1000

type subscriber struct {
	id uint64
	ch chan frame.Frame
}

// Channel owns one HAL back-end and broadcasts received frames to
// subscribers (UI stream, logger, filters).
type Channel struct {
	ID string

	mu          sync.RWMutex
	config      Config
	state       State
	errReason   string
	stats       Stats
	filters     filter.Set
	backend     hal.Backend
	connectedAt time.Time

	subMu     sync.Mutex
	subs      []subscriber
	nextSubID uint64

	logger *log.Entry
}

func New(id string) *Channel {
	return &Channel{
		ID:     id,
		state:  StateDisconnected,
		logger: log.WithField("channel", id),
	}
}

// Connect selects a back-end by the interface-id prefix, transitions
// Disconnected→Connecting, and on success resets statistics and
// transitions to Connected. On failure it records the error and clears
// the back-end, per spec.md §4.C.
func (c *Channel) Connect(cfg Config) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.config = cfg
	c.mu.Unlock()

	backend, err := hal.New(cfg.InterfaceID)
	if err != nil {
		c.mu.Lock()
		c.state = StateError
		c.errReason = err.Error()
		c.mu.Unlock()
		return err
	}

	if err := backend.Connect(cfg.Bitrate); err != nil {
		c.mu.Lock()
		c.state = StateError
		c.errReason = err.Error()
		c.backend = nil
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.backend = backend
	c.connectedAt = time.Now()
	c.stats = Stats{}
	c.state = StateConnected
	c.errReason = ""
	c.mu.Unlock()
	c.logger.WithField("interface", cfg.InterfaceID).Info("channel connected")
	return nil
}

// Disconnect releases the backend and returns to Disconnected. From the
// Error state, where no backend is held, it only clears the error.
func (c *Channel) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend == nil {
		if c.state == StateError {
			c.state = StateDisconnected
			c.errReason = ""
			return nil
		}
		return ErrNotConnected
	}
	err := c.backend.Disconnect()
	c.backend = nil
	c.state = StateDisconnected
	return err
}

func (c *Channel) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Connected reports whether the channel is presently in the Connected
// state; it lets callers like the scheduler check liveness at a tick
// boundary without reasoning about the full State enum.
func (c *Channel) Connected() bool {
	return c.State() == StateConnected
}

func (c *Channel) ErrorReason() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errReason
}

func (c *Channel) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// ResetStats zeroes the channel's tx/rx counters and bus-load estimate
// without otherwise disturbing its connection state.
func (c *Channel) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = Stats{}
}

func (c *Channel) SetFilter(set filter.Set) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = set
}

func (c *Channel) Filter() filter.Set {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filters
}

func (c *Channel) elapsed() float64 {
	return time.Since(c.connectedAt).Seconds()
}

// Send stamps the frame (timestamp, direction, channel id) and
// delegates to the back-end. Refused unless Connected.
func (c *Channel) Send(f frame.Frame) error {
	c.mu.Lock()
	if c.state != StateConnected || c.backend == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	f.Timestamp = c.elapsed()
	f.Direction = frame.DirectionTx
	f.Channel = c.ID
	backend := c.backend
	c.mu.Unlock()

	if err := backend.Send(f); err != nil {
		c.mu.Lock()
		c.stats.ErrorCount++
		c.stats.TxErrors++
		c.mu.Unlock()
		return fmt.Errorf("channel %s: send: %w", c.ID, err)
	}

	c.mu.Lock()
	c.stats.TxCount++
	c.mu.Unlock()

	c.Publish(f)
	return nil
}

// Receive polls the back-end once. If a frame is available it is
// stamped (timestamp, direction rx), then the active filter set is
// applied: frames that pass are published and returned, frames that
// fail are still counted in rx_count (wire traffic, not post-filter
// traffic) but not published or returned. On back-end error the error
// count is incremented and the error is propagated.
func (c *Channel) Receive() (frame.Frame, bool, error) {
	c.mu.Lock()
	if c.state != StateConnected || c.backend == nil {
		c.mu.Unlock()
		return frame.Frame{}, false, ErrNotConnected
	}
	backend := c.backend
	ts := c.elapsed()
	c.mu.Unlock()

	f, ok, err := backend.Receive()
	if err != nil {
		c.mu.Lock()
		c.stats.ErrorCount++
		c.stats.RxErrors++
		c.mu.Unlock()
		return frame.Frame{}, false, fmt.Errorf("channel %s: receive: %w", c.ID, err)
	}
	if !ok {
		return frame.Frame{}, false, nil
	}

	f.Timestamp = ts
	f.Direction = frame.DirectionRx
	f.Channel = c.ID

	c.mu.Lock()
	c.stats.RxCount++
	set := c.filters
	c.mu.Unlock()

	if !set.Matches(f) {
		return frame.Frame{}, false, nil
	}

	c.Publish(f)
	return f, true, nil
}

// Subscribe returns an independent receiver positioned at the current
// broadcast tail, with the fan-out's fixed lossy capacity.
func (c *Channel) Subscribe() (<-chan frame.Frame, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.nextSubID++
	id := c.nextSubID
	ch := make(chan frame.Frame, fanoutCapacity)
	c.subs = append(c.subs, subscriber{id: id, ch: ch})

	cancel := func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				close(s.ch)
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}
	return ch, cancel
}

// Publish broadcasts f to every subscriber. Slow subscribers that
// cannot keep up are dropped silently rather than blocking I/O.
func (c *Channel) Publish(f frame.Frame) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, s := range c.subs {
		select {
		case s.ch <- f:
		default:
			// lossy: drop for this slow subscriber
		}
	}
}

// UpdateBusLoad recomputes the bus-load estimate from an externally
// observed message rate, per spec.md §4.C: a single average of 100
// bits per message is used across classic frames (a deliberate
// approximation), clamped to 100%.
func (c *Channel) UpdateBusLoad(messageRate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.config.Bitrate <= 0 {
		c.stats.BusLoadPct = 0
		return
	}
	load := messageRate * 100 / float64(c.config.Bitrate) * 100
	if load > 100 {
		load = 100
	}
	if load < 0 {
		load = 0
	}
	c.stats.BusLoadPct = load
}

func (c *Channel) BusState() hal.BusState {
	c.mu.RLock()
	backend := c.backend
	c.mu.RUnlock()
	if backend == nil {
		return hal.BusStateUnknown
	}
	return backend.BusState()
}
