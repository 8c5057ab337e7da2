package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/canscope/engine/channel"
	"github.com/canscope/engine/filter"
	"github.com/canscope/engine/frame"
	"github.com/canscope/engine/hal"
	"github.com/canscope/engine/project"
	"github.com/canscope/engine/scheduler"
	"github.com/canscope/engine/symbol"
	"github.com/canscope/engine/trace"
	"github.com/sirupsen/logrus"
)

// PlaybackState mirrors trace.State for callers that only depend on
// the engine package.
type PlaybackState = trace.State

// Event is one asynchronous notification pushed to the UI, per
// spec.md §6: can-message on send/receive/playback, bus-stats at
// 100ms cadence while a channel is Connected.
type Event struct {
	Kind     string // "can-message" | "bus-stats"
	Frame    *frame.Payload
	BusStats *channel.StatsSnapshot
}

// Engine ties the channel manager, symbolic-database registry, trace
// logger/player, and periodic scheduler into the command surface of
// spec.md §6.
type Engine struct {
	cfg       Config
	log       *logrus.Logger
	channels  *channel.Manager
	symbols   *symbol.Registry
	scheduler *scheduler.Scheduler

	tickers map[string]*channel.StatsTicker
	logger  *trace.Logger
	player  *trace.Player

	events chan Event
}

// New constructs an Engine from cfg, registering its own async event
// stream.
func New(cfg Config) *Engine {
	log := NewLogger(cfg)
	return &Engine{
		cfg:       cfg,
		log:       log,
		channels:  channel.NewManager(),
		symbols:   symbol.NewRegistry(),
		scheduler: scheduler.New(log.WithField("component", "scheduler")),
		tickers:   make(map[string]*channel.StatsTicker),
		events:    make(chan Event, 1000),
	}
}

// Events returns the channel async notifications are pushed on.
func (e *Engine) Events() <-chan Event {
	return e.events
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		e.log.Warn("engine: event stream full, dropping event")
	}
}

// GetInterfaces implements get_interfaces.
func (e *Engine) GetInterfaces() []hal.Info {
	found := hal.Enumerate()
	if len(found) > 0 {
		return found
	}
	out := make([]hal.Info, 0, len(e.cfg.DefaultProbeInterfaces))
	for _, id := range e.cfg.DefaultProbeInterfaces {
		out = append(out, hal.Info{ID: id, Name: id, Type: "virtual", Available: true})
	}
	return out
}

// ConnectChannel implements connect_channel(channel_id, interface_id, bitrate).
func (e *Engine) ConnectChannel(channelID, interfaceID string, bitrate int) error {
	ch := e.channels.GetOrCreate(channelID)
	if err := ch.Connect(channel.Config{InterfaceID: interfaceID, Bitrate: bitrate}); err != nil {
		return err
	}
	e.channels.SetActive(channelID)

	e.forwardFrames(ch)

	ticker := channel.NewStatsTicker()
	ticker.Subscribe(func(s channel.StatsSnapshot) {
		e.emit(Event{Kind: "bus-stats", BusStats: &s})
	})
	ticker.Start(ch)
	e.tickers[channelID] = ticker
	return nil
}

// Connect implements the single-channel convenience form connect(interface_id, bitrate).
func (e *Engine) Connect(interfaceID string, bitrate int) error {
	return e.ConnectChannel(interfaceID, interfaceID, bitrate)
}

func (e *Engine) forwardFrames(ch *channel.Channel) {
	sub, _ := ch.Subscribe()
	go func() {
		for f := range sub {
			payload := frame.FromFrame(f)
			e.emit(Event{Kind: "can-message", Frame: &payload})
			if e.logger != nil {
				e.logger.Log(f)
			}
		}
	}()
}

// DisconnectChannel implements disconnect_channel(channel_id).
func (e *Engine) DisconnectChannel(channelID string) error {
	ch, ok := e.channels.Get(channelID)
	if !ok {
		return fmt.Errorf("engine: unknown channel %q", channelID)
	}
	if ticker, ok := e.tickers[channelID]; ok {
		ticker.Stop()
		delete(e.tickers, channelID)
	}
	return ch.Disconnect()
}

// SendMessage implements send_message(frame_payload). The frame goes to
// channelID; when that is empty, to the payload's ChannelID, and when
// both are absent, to the active channel.
func (e *Engine) SendMessage(channelID string, payload frame.Payload) error {
	if channelID == "" && payload.ChannelID != nil {
		channelID = *payload.ChannelID
	}
	var ch *channel.Channel
	var ok bool
	if channelID == "" {
		ch, ok = e.channels.Active()
	} else {
		ch, ok = e.channels.Get(channelID)
	}
	if !ok {
		return fmt.Errorf("engine: unknown channel %q", channelID)
	}
	return ch.Send(payload.ToFrame())
}

// GetBusStats implements get_bus_stats.
func (e *Engine) GetBusStats(channelID string) (channel.Stats, error) {
	ch, ok := e.channels.Get(channelID)
	if !ok {
		return channel.Stats{}, fmt.Errorf("engine: unknown channel %q", channelID)
	}
	return ch.Stats(), nil
}

// StartPeriodicTransmit implements start_periodic_transmit.
func (e *Engine) StartPeriodicTransmit(channelID string, payload frame.Payload, intervalMS int) (string, error) {
	ch, ok := e.channels.Get(channelID)
	if !ok {
		return "", fmt.Errorf("engine: unknown channel %q", channelID)
	}
	id := e.scheduler.Start(ch, payload.ToFrame(), time.Duration(intervalMS)*time.Millisecond)
	return id, nil
}

// StopPeriodicTransmit implements stop_periodic_transmit(job_id).
func (e *Engine) StopPeriodicTransmit(jobID string) {
	e.scheduler.Stop(jobID)
}

// SetAdvancedFilter implements set_advanced_filter(channel_id, filter_set).
func (e *Engine) SetAdvancedFilter(channelID string, set filter.Set) error {
	ch, ok := e.channels.Get(channelID)
	if !ok {
		return fmt.Errorf("engine: unknown channel %q", channelID)
	}
	ch.SetFilter(set)
	return nil
}

// SetFilter implements the legacy set_filter(id, mask) command. It predates
// set_advanced_filter and is kept as a no-op placeholder for callers that
// still send it; hardware-level id/mask filtering is not wired through it.
func (e *Engine) SetFilter(id, mask *uint32) error {
	return nil
}

// ClearMessages implements clear_messages: it resets the active channel's
// statistics, mirroring a manual "clear" action in the UI.
func (e *Engine) ClearMessages() error {
	ch, ok := e.channels.Active()
	if !ok {
		return nil
	}
	ch.ResetStats()
	return nil
}

// StartLogging implements start_logging(path, format). A relative path
// is resolved against the configured TraceDir.
func (e *Engine) StartLogging(path string, format trace.Format) error {
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.cfg.TraceDir, path)
	}
	l, err := trace.Start(trace.Config{Format: format, Path: path}, e.log.WithField("component", "trace"))
	if err != nil {
		return err
	}
	e.logger = l
	return nil
}

// StopLogging implements stop_logging.
func (e *Engine) StopLogging() {
	if e.logger == nil {
		return
	}
	e.logger.Stop()
	e.logger = nil
}

// LoadTrace implements load_trace(path) -> frame_count.
func (e *Engine) LoadTrace(path string, busChannels map[int]string) (int, error) {
	frames, err := trace.Load(path, trace.LoadOptions{BusChannels: busChannels})
	if err != nil {
		return 0, err
	}
	now := time.Now()
	e.player = trace.NewPlayer(frames, func() float64 {
		return time.Since(now).Seconds()
	})
	return len(frames), nil
}

// StartPlayback implements start_playback.
func (e *Engine) StartPlayback() error {
	if e.player == nil {
		return fmt.Errorf("engine: no trace loaded")
	}
	return e.player.Start()
}

// StopPlayback implements stop_playback.
func (e *Engine) StopPlayback() {
	if e.player != nil {
		e.player.Stop()
	}
}

// PausePlayback implements pause_playback.
func (e *Engine) PausePlayback() error {
	if e.player == nil {
		return fmt.Errorf("engine: no trace loaded")
	}
	return e.player.Pause()
}

// ResumePlayback implements resume_playback.
func (e *Engine) ResumePlayback() error {
	if e.player == nil {
		return fmt.Errorf("engine: no trace loaded")
	}
	return e.player.Resume()
}

// SetPlaybackSpeed implements set_playback_speed(speed).
func (e *Engine) SetPlaybackSpeed(speed float64) {
	if e.player != nil {
		e.player.SetSpeed(speed)
	}
}

// GetPlaybackState implements get_playback_state.
func (e *Engine) GetPlaybackState() PlaybackState {
	if e.player == nil {
		return trace.StateStopped
	}
	return e.player.State()
}

// DrivePlayback pulls frames from the loaded player and sends each one
// through channelID's send path, honoring the player's delay contract.
// Intended to run on its own goroutine; returns when playback stops or
// is paused.
func (e *Engine) DrivePlayback(channelID string) {
	ch, ok := e.channels.Get(channelID)
	if !ok || e.player == nil {
		return
	}
	for {
		f, delay, ok := e.player.GetNextFrame()
		if !ok {
			return
		}
		if err := ch.Send(f); err != nil {
			e.log.WithError(err).Warn("engine: playback send failed")
		}
		if delay > 0 {
			time.Sleep(time.Duration(delay * float64(time.Second)))
		}
	}
}

// LoadDBC implements load_dbc(channel_id, path) -> message_count. The
// `.sym` extension selects the SYM parser, otherwise DBC.
func (e *Engine) LoadDBC(channelID, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("engine: open %s: %w", path, err)
	}
	defer f.Close()

	var db *symbol.Database
	if strings.HasSuffix(strings.ToLower(path), ".sym") {
		db, err = symbol.ParseSYM(f)
	} else {
		db, err = symbol.ParseDBC(f)
	}
	if err != nil {
		return 0, err
	}
	e.symbols.Set(channelID, db)
	return len(db.Messages), nil
}

// DecodeMessage implements decode_message(channel_id, message_id, data).
func (e *Engine) DecodeMessage(channelID string, messageID uint32, data []byte) ([]symbol.DecodedSignal, bool) {
	return e.symbols.Decode(channelID, messageID, data)
}

// GetMessageInfo implements get_message_info(channel_id, message_id).
func (e *Engine) GetMessageInfo(channelID string, messageID uint32) (*symbol.Message, bool) {
	db, ok := e.symbols.Get(channelID)
	if !ok {
		return nil, false
	}
	msg, ok := db.Messages[messageID]
	return msg, ok
}

// SaveProject implements save_project.
func (e *Engine) SaveProject(path string, proj project.File) error {
	return project.Save(path, proj)
}

// LoadProject implements load_project.
func (e *Engine) LoadProject(path string) (project.File, error) {
	return project.Load(path,
		func(ifaceID string) bool {
			for _, info := range e.GetInterfaces() {
				if info.ID == ifaceID {
					return true
				}
			}
			return false
		},
		func(p string) bool {
			_, err := os.Stat(p)
			return err == nil
		},
	)
}
