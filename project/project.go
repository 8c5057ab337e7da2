// Package project persists and restores the UI-facing workspace
// state described in spec.md §6: connected channels, their filters,
// and running periodic-transmit jobs, as a single JSON document.
package project

import (
	"fmt"
	"os"

	"github.com/canscope/engine/filter"
	"github.com/canscope/engine/frame"
	json "github.com/goccy/go-json"
)

const fileVersion = "1.0"

// ChannelConfig is one saved channel's connection state.
type ChannelConfig struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	InterfaceID *string `json:"interface_id,omitempty"`
	Bitrate     uint32  `json:"bitrate"`
	DBCFile     *string `json:"dbc_file,omitempty"`
}

// TransmitJob is one saved periodic-transmit job.
type TransmitJob struct {
	ID         string       `json:"id"`
	Frame      frame.Payload `json:"frame"`
	IntervalMS uint32       `json:"interval_ms"`
	Enabled    bool         `json:"enabled"`
}

// File is the on-disk project document, per spec.md §6.
type File struct {
	Version      string          `json:"version"`
	Channels     []ChannelConfig `json:"channels"`
	Filters      []filter.Set    `json:"filters"`
	TransmitJobs []TransmitJob   `json:"transmit_jobs"`
}

// Save writes proj to path as JSON, stamping the version field.
func Save(path string, proj File) error {
	proj.Version = fileVersion
	data, err := json.MarshalIndent(proj, "", "  ")
	if err != nil {
		return fmt.Errorf("project: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("project: write %s: %w", path, err)
	}
	return nil
}

// KnownInterfaces reports whether ifaceID names an interface the host
// currently exposes; Load uses it to null out stale references rather
// than fail the whole load, per spec.md §6.
type KnownInterfaces func(ifaceID string) bool

// DBCExists reports whether path exists on disk.
type DBCExists func(path string) bool

// Load reads and validates a project file. Unknown interface ids and
// missing DBC paths are nulled out rather than causing a failure.
func Load(path string, knownIface KnownInterfaces, dbcExists DBCExists) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("project: read %s: %w", path, err)
	}
	var proj File
	if err := json.Unmarshal(data, &proj); err != nil {
		return File{}, fmt.Errorf("project: parse %s: %w", path, err)
	}

	for i := range proj.Channels {
		c := &proj.Channels[i]
		if c.InterfaceID != nil && knownIface != nil && !knownIface(*c.InterfaceID) {
			c.InterfaceID = nil
		}
		if c.DBCFile != nil && dbcExists != nil && !dbcExists(*c.DBCFile) {
			c.DBCFile = nil
		}
	}
	return proj, nil
}
