package hal

import (
	"testing"

	"github.com/canscope/engine/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVirtualBackendLoopback(t *testing.T) {
	b, err := NewVirtualBackend("vcan0")
	require.NoError(t, err)

	require.NoError(t, b.Connect(500000))
	assert.True(t, b.IsConnected())

	f := frame.New(0x123, []byte{0x01, 0x02, 0x03, 0x04})
	require.NoError(t, b.Send(f))

	got, ok, err := b.Receive()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, f.Data, got.Data)
	assert.Equal(t, frame.DirectionRx, got.Direction)
}

func TestVirtualBackendReceiveEmptyIsNotError(t *testing.T) {
	b, _ := NewVirtualBackend("vcan0")
	require.NoError(t, b.Connect(500000))

	_, ok, err := b.Receive()
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestVirtualBackendDoubleConnectRefused(t *testing.T) {
	b, _ := NewVirtualBackend("vcan0")
	require.NoError(t, b.Connect(500000))
	assert.ErrorIs(t, b.Connect(500000), ErrAlreadyConnected)
}

func TestVirtualBackendDisconnectWhenNotConnectedRefused(t *testing.T) {
	b, _ := NewVirtualBackend("vcan0")
	assert.ErrorIs(t, b.Disconnect(), ErrNotConnected)
}

func TestVirtualBackendRingOverflowDropsOldest(t *testing.T) {
	b, _ := NewVirtualBackend("vcan0")
	require.NoError(t, b.Connect(500000))
	vb := b.(*VirtualBackend)

	for i := 0; i < virtualRingSize+10; i++ {
		require.NoError(t, vb.Send(frame.New(uint32(i%0x7FF), nil)))
	}
	assert.Len(t, vb.ring, virtualRingSize)
	// The oldest 10 entries should have been dropped; the head is id 10.
	assert.Equal(t, uint32(10), vb.ring[0].ID)
}

func TestVirtualBackendSoftwareFilter(t *testing.T) {
	b, _ := NewVirtualBackend("vcan0")
	require.NoError(t, b.Connect(500000))
	require.NoError(t, b.SetFilter(&IDFilter{Min: 0x100, Max: 0x200}))

	require.NoError(t, b.Send(frame.New(0x050, nil))) // filtered out
	require.NoError(t, b.Send(frame.New(0x150, nil))) // passes

	_, ok, err := b.Receive()
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = b.Receive()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBusBroadcastsExcludingSender(t *testing.T) {
	bus := NewBus()
	a, _ := NewVirtualBackend("vcan0")
	c, _ := NewVirtualBackend("vcan1")
	va := a.(*VirtualBackend)
	vc := c.(*VirtualBackend)
	require.NoError(t, va.Connect(500000))
	require.NoError(t, vc.Connect(500000))
	va.AttachBus(bus)
	vc.AttachBus(bus)

	require.NoError(t, va.Send(frame.New(0x321, []byte{9})))

	_, ok, _ := va.Receive() // its own loopback
	require.True(t, ok)

	got, ok, _ := vc.Receive()
	require.True(t, ok)
	assert.Equal(t, uint32(0x321), got.ID)
}

func TestSchemeSelection(t *testing.T) {
	assert.Equal(t, "virtual", schemeFor("vcan0"))
	assert.Equal(t, "socketcan", schemeFor("can0"))
	assert.Equal(t, "pcan", schemeFor("pcan0"))
	assert.Equal(t, "virtualtcp", schemeFor("localhost:18000"))
}

func TestEnumerateIncludesTwoVirtualInterfaces(t *testing.T) {
	infos := Enumerate()
	var names []string
	for _, i := range infos {
		names = append(names, i.ID)
	}
	assert.Contains(t, names, "vcan0")
	assert.Contains(t, names, "vcan1")
}
