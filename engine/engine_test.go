package engine

import (
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/canscope/engine/hal" // registers the virtual backend
	"github.com/canscope/engine/filter"
	"github.com/canscope/engine/frame"
	"github.com/stretchr/testify/require"
)

func TestEngineConnectSendReceiveEvent(t *testing.T) {
	e := New(DefaultConfig())
	require.NoError(t, e.Connect("vcan0", 500000))

	require.NoError(t, e.SendMessage("vcan0", frame.FromFrame(frame.New(0x123, []byte{1, 2, 3, 4}))))

	select {
	case ev := <-e.Events():
		require.Equal(t, "can-message", ev.Kind)
		require.NotNil(t, ev.Frame)
		require.Equal(t, uint32(0x123), ev.Frame.ID)
	case <-time.After(time.Second):
		t.Fatal("expected a can-message event")
	}
}

func TestEngineDBCLoadAndDecode(t *testing.T) {
	e := New(DefaultConfig())
	dir := t.TempDir()
	path := dir + "/db.dbc"
	const dbc = "BO_ 100 EngineSpeed: 8 ECU\n SG_ Speed : 0|16@1+ (0.1,0) [0|6553.5] \"km/h\" ECU\n"
	require.NoError(t, os.WriteFile(path, []byte(dbc), 0o644))

	count, err := e.LoadDBC("vcan0", path)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	decoded, ok := e.DecodeMessage("vcan0", 100, []byte{0x10, 0x27, 0, 0, 0, 0, 0, 0})
	require.True(t, ok)
	require.Equal(t, "Speed", decoded[0].Name)
}

func TestEngineSYMExtensionSelection(t *testing.T) {
	e := New(DefaultConfig())
	dir := t.TempDir()
	path := dir + "/db.sym"
	require.NoError(t, os.WriteFile(path, []byte("FormatVersion=6.0\n"), 0o644))

	count, err := e.LoadDBC("vcan0", path)
	require.NoError(t, err)
	require.Equal(t, 0, count)
	require.True(t, strings.HasSuffix(path, ".sym"))
}

func TestEngineSetAdvancedFilterUnknownChannel(t *testing.T) {
	e := New(DefaultConfig())
	err := e.SetAdvancedFilter("nope", filter.Set{})
	require.Error(t, err)
}

func TestEngineSetFilterLegacyNoOp(t *testing.T) {
	e := New(DefaultConfig())
	id, mask := uint32(0x100), uint32(0x7FF)
	require.NoError(t, e.SetFilter(&id, &mask))
	require.NoError(t, e.SetFilter(nil, nil))
}

func TestEngineClearMessagesResetsActiveChannelStats(t *testing.T) {
	e := New(DefaultConfig())
	require.NoError(t, e.Connect("vcan0", 500000))
	require.NoError(t, e.SendMessage("vcan0", frame.FromFrame(frame.New(0x123, []byte{1, 2, 3, 4}))))

	ch, ok := e.channels.Get("vcan0")
	require.True(t, ok)
	require.NotZero(t, ch.Stats().TxCount)

	require.NoError(t, e.ClearMessages())
	require.Zero(t, ch.Stats().TxCount)
}

func TestEngineClearMessagesNoActiveChannelIsNoOp(t *testing.T) {
	e := New(DefaultConfig())
	require.NoError(t, e.ClearMessages())
}
