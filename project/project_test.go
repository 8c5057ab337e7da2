package project

import (
	"path/filepath"
	"testing"

	"github.com/canscope/engine/filter"
	"github.com/canscope/engine/frame"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.json")

	iface := "vcan0"
	dbc := "/tmp/db.dbc"
	proj := File{
		Channels: []ChannelConfig{
			{ID: "ch0", Name: "Main", InterfaceID: &iface, Bitrate: 500000, DBCFile: &dbc},
		},
		Filters: []filter.Set{
			{Rules: []filter.Rule{filter.IDExact(0x100)}, Logic: filter.LogicAND},
		},
		TransmitJobs: []TransmitJob{
			{ID: "job1", Frame: frame.FromFrame(frame.New(0x1, []byte{1, 2})), IntervalMS: 100, Enabled: true},
		},
	}
	require.NoError(t, Save(path, proj))

	loaded, err := Load(path, func(string) bool { return true }, func(string) bool { return true })
	require.NoError(t, err)
	require.Equal(t, "1.0", loaded.Version)
	require.Len(t, loaded.Channels, 1)
	require.Equal(t, "vcan0", *loaded.Channels[0].InterfaceID)
	require.Equal(t, "/tmp/db.dbc", *loaded.Channels[0].DBCFile)
	require.Len(t, loaded.Filters, 1)
	require.Len(t, loaded.TransmitJobs, 1)
}

func TestLoadNullsUnknownInterfaceAndMissingDBC(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.json")

	iface := "ghost0"
	dbc := "/does/not/exist.dbc"
	proj := File{Channels: []ChannelConfig{{ID: "ch0", InterfaceID: &iface, DBCFile: &dbc}}}
	require.NoError(t, Save(path, proj))

	loaded, err := Load(path, func(string) bool { return false }, func(string) bool { return false })
	require.NoError(t, err)
	require.Nil(t, loaded.Channels[0].InterfaceID)
	require.Nil(t, loaded.Channels[0].DBCFile)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/path.json", nil, nil)
	require.Error(t, err)
}
