package channel

import (
	"sync"
	"time"
)

// statsTickInterval is the bus-stats event cadence of spec.md §6.
const statsTickInterval = 100 * time.Millisecond

// StatsSnapshot is the channel-tagged statistics payload published on
// the bus-stats event stream.
type StatsSnapshot struct {
	ChannelID string
	Stats     Stats
	BusState  string
}

// StatsListener receives a snapshot every tick while the channel is
// Connected.
type StatsListener func(StatsSnapshot)

// StatsTicker samples tx/rx counters every 100ms, derives the
// estimated message rate, feeds it to the channel's bus-load estimate,
// and hands a snapshot to every registered listener.
type StatsTicker struct {
	mu        sync.Mutex
	listeners []StatsListener
	stop      chan struct{}
	running   bool
}

func NewStatsTicker() *StatsTicker {
	return &StatsTicker{}
}

func (t *StatsTicker) Subscribe(l StatsListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}

// Start begins sampling ch every 100ms until the channel leaves the
// Connected state or Stop is called.
func (t *StatsTicker) Start(ch *Channel) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.stop = make(chan struct{})
	stop := t.stop
	t.mu.Unlock()

	go t.run(ch, stop)
}

func (t *StatsTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	close(t.stop)
	t.running = false
}

func (t *StatsTicker) run(ch *Channel, stop chan struct{}) {
	ticker := time.NewTicker(statsTickInterval)
	defer ticker.Stop()

	var lastRx uint64
	last := time.Now()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if ch.State() != StateConnected {
				return
			}
			stats := ch.Stats()
			elapsed := now.Sub(last).Seconds()
			if elapsed > 0 {
				rate := float64(stats.RxCount-lastRx) / elapsed
				ch.UpdateBusLoad(rate)
			}
			lastRx = stats.RxCount
			last = now

			snapshot := StatsSnapshot{
				ChannelID: ch.ID,
				Stats:     ch.Stats(),
				BusState:  ch.BusState().String(),
			}
			t.mu.Lock()
			listeners := append([]StatsListener(nil), t.listeners...)
			t.mu.Unlock()
			for _, l := range listeners {
				l(snapshot)
			}
		}
	}
}
