package channel

import (
	"testing"

	_ "github.com/canscope/engine/hal" // registers the virtual backend
	"github.com/canscope/engine/filter"
	"github.com/canscope/engine/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelConnectLifecycle(t *testing.T) {
	ch := New("vcan0")
	assert.Equal(t, StateDisconnected, ch.State())

	require.NoError(t, ch.Connect(Config{InterfaceID: "vcan0", Bitrate: 500000}))
	assert.Equal(t, StateConnected, ch.State())

	require.NoError(t, ch.Disconnect())
	assert.Equal(t, StateDisconnected, ch.State())
}

func TestChannelSendRefusedWhenDisconnected(t *testing.T) {
	ch := New("vcan0")
	err := ch.Send(frame.New(0x1, nil))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestChannelSendIncrementsTxCountAndPublishes(t *testing.T) {
	ch := New("vcan0")
	require.NoError(t, ch.Connect(Config{InterfaceID: "vcan0", Bitrate: 500000}))

	sub, cancel := ch.Subscribe()
	defer cancel()

	f := frame.New(0x123, []byte{1, 2, 3, 4})
	require.NoError(t, ch.Send(f))

	assert.Equal(t, uint64(1), ch.Stats().TxCount)

	published := <-sub
	assert.Equal(t, frame.DirectionTx, published.Direction)
	assert.Equal(t, "vcan0", published.Channel)
}

func TestResetStatsClearsCountersWithoutDisconnecting(t *testing.T) {
	ch := New("vcan0")
	require.NoError(t, ch.Connect(Config{InterfaceID: "vcan0", Bitrate: 500000}))
	require.NoError(t, ch.Send(frame.New(0x123, []byte{1, 2, 3, 4})))
	assert.Equal(t, uint64(1), ch.Stats().TxCount)

	ch.ResetStats()

	assert.Zero(t, ch.Stats().TxCount)
	assert.Equal(t, StateConnected, ch.State())
}

// E1 — Virtual loopback scenario from spec.md §8.
func TestScenarioE1VirtualLoopback(t *testing.T) {
	ch := New("vcan0")
	require.NoError(t, ch.Connect(Config{InterfaceID: "vcan0", Bitrate: 500000}))

	sent := frame.New(0x123, []byte{0x01, 0x02, 0x03, 0x04})
	require.NoError(t, ch.Send(sent))

	got, ok, err := ch.Receive()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sent.ID, got.ID)
	assert.Equal(t, sent.Data, got.Data)
	assert.Equal(t, frame.DirectionRx, got.Direction)
}

func TestReceiveCountsFilteredFramesButDoesNotPublish(t *testing.T) {
	ch := New("vcan0")
	require.NoError(t, ch.Connect(Config{InterfaceID: "vcan0", Bitrate: 500000}))
	ch.SetFilter(filter.Set{
		Rules: []filter.Rule{filter.IDExact(0x999)},
		Logic: filter.LogicAND,
	})

	sub, cancel := ch.Subscribe()
	defer cancel()

	require.NoError(t, ch.Send(frame.New(0x123, nil)))

	f, ok, err := ch.Receive()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, f.ID)
	assert.Equal(t, uint64(1), ch.Stats().RxCount)

	// Only the send itself reaches subscribers; the filtered rx frame does not.
	published := <-sub
	assert.Equal(t, frame.DirectionTx, published.Direction)
	assert.Empty(t, sub)
}

func TestTimestampMonotoneNonDecreasing(t *testing.T) {
	ch := New("vcan0")
	require.NoError(t, ch.Connect(Config{InterfaceID: "vcan0", Bitrate: 500000}))

	require.NoError(t, ch.Send(frame.New(0x1, nil)))
	require.NoError(t, ch.Send(frame.New(0x2, nil)))

	f1, _, _ := ch.Receive()
	f2, _, _ := ch.Receive()
	assert.GreaterOrEqual(t, f2.Timestamp, f1.Timestamp)
	assert.GreaterOrEqual(t, f1.Timestamp, 0.0)
}

func TestStatsResetOnReconnect(t *testing.T) {
	ch := New("vcan0")
	require.NoError(t, ch.Connect(Config{InterfaceID: "vcan0", Bitrate: 500000}))
	require.NoError(t, ch.Send(frame.New(0x1, nil)))
	assert.Equal(t, uint64(1), ch.Stats().TxCount)

	require.NoError(t, ch.Disconnect())
	require.NoError(t, ch.Connect(Config{InterfaceID: "vcan0", Bitrate: 500000}))
	assert.Zero(t, ch.Stats().TxCount)
}

func TestDoubleConnectRefused(t *testing.T) {
	ch := New("vcan0")
	require.NoError(t, ch.Connect(Config{InterfaceID: "vcan0", Bitrate: 500000}))
	assert.ErrorIs(t, ch.Connect(Config{InterfaceID: "vcan0", Bitrate: 500000}), ErrAlreadyConnected)
}
