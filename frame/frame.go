// Package frame defines the canonical in-memory CAN frame representation
// and its conversion to/from the IPC-facing payload form.
package frame

import (
	"fmt"
)

// Direction indicates whether a frame was transmitted or received.
type Direction string

const (
	DirectionRx Direction = "rx"
	DirectionTx Direction = "tx"
)

// MaxStandardID is the highest legal identifier for a standard (11-bit) frame.
const MaxStandardID = 0x7FF

// MaxExtendedID is the highest legal identifier for an extended (29-bit) frame.
const MaxExtendedID = 0x1FFFFFFF

// MaxClassicDLC is the payload cap for a classic CAN frame.
const MaxClassicDLC = 8

// MaxFDDLC is the payload cap for a CAN-FD frame, carried only as an
// extension of the classic frame kind (see spec.md §1 Non-goals).
const MaxFDDLC = 64

// Frame is the canonical representation of one CAN frame crossing any
// internal boundary (HAL, channel fan-out, trace logger/player, decoder).
type Frame struct {
	ID         uint32
	IsExtended bool
	IsRemote   bool
	IsFD       bool
	DLC        uint8
	Data       []byte
	Timestamp  float64 // seconds, monotone, origin = channel connect
	Channel    string
	Direction  Direction
}

func maxDLCFor(isFD bool) uint8 {
	if isFD {
		return MaxFDDLC
	}
	return MaxClassicDLC
}

// clampPayload enforces payload.len() == min(dlc, max_for_frame_kind).
func clampPayload(data []byte, dlc uint8, isFD bool) ([]byte, uint8) {
	maxDLC := maxDLCFor(isFD)
	if dlc > maxDLC {
		dlc = maxDLC
	}
	out := make([]byte, dlc)
	copy(out, data)
	return out, dlc
}

// New builds a frame, inferring the extended-ID flag from id > 0x7FF
// when the caller does not request remote-frame semantics. This is the
// "default constructor" behavior from spec.md §4.A.
func New(id uint32, data []byte) Frame {
	isExtended := id > MaxStandardID
	payload, dlc := clampPayload(data, uint8(len(data)), false)
	return Frame{
		ID:         id,
		IsExtended: isExtended,
		DLC:        dlc,
		Data:       payload,
	}
}

// NewExtended always builds an extended (29-bit) frame, honoring the
// caller's explicit choice regardless of the id's magnitude.
func NewExtended(id uint32, data []byte) Frame {
	payload, dlc := clampPayload(data, uint8(len(data)), false)
	return Frame{
		ID:         id,
		IsExtended: true,
		DLC:        dlc,
		Data:       payload,
	}
}

// NewStandard always builds a standard (11-bit) frame.
func NewStandard(id uint32, data []byte) Frame {
	payload, dlc := clampPayload(data, uint8(len(data)), false)
	return Frame{
		ID:         id,
		IsExtended: false,
		DLC:        dlc,
		Data:       payload,
	}
}

// NewRemote builds a remote-transmission-request frame. Remote frames
// carry no payload (is_remote ⇒ payload is empty).
func NewRemote(id uint32, dlc uint8, isExtended bool) Frame {
	if !isExtended {
		isExtended = id > MaxStandardID
	}
	maxDLC := maxDLCFor(false)
	if dlc > maxDLC {
		dlc = maxDLC
	}
	return Frame{
		ID:         id,
		IsExtended: isExtended,
		IsRemote:   true,
		DLC:        dlc,
		Data:       []byte{},
	}
}

// Validate checks the invariants from spec.md §3:
//
//	is_extended ⇒ id ≤ 0x1FFFFFFF, else id ≤ 0x7FF
//	is_remote   ⇒ payload is empty
func (f Frame) Validate() error {
	if f.IsExtended {
		if f.ID > MaxExtendedID {
			return fmt.Errorf("frame: extended id 0x%X exceeds 29-bit range", f.ID)
		}
	} else if f.ID > MaxStandardID {
		return fmt.Errorf("frame: standard id 0x%X exceeds 11-bit range", f.ID)
	}
	if f.IsRemote && len(f.Data) != 0 {
		return fmt.Errorf("frame: remote frame must carry an empty payload")
	}
	return nil
}

// HexID renders the identifier as the TRC/CSV convention expects:
// three nibbles for standard frames, eight for extended.
func (f Frame) HexID() string {
	if f.IsExtended {
		return fmt.Sprintf("%08X", f.ID)
	}
	return fmt.Sprintf("%03X", f.ID)
}

// HexData renders the payload as space-separated upper-case hex bytes.
func (f Frame) HexData() string {
	out := make([]byte, 0, len(f.Data)*3)
	for i, b := range f.Data {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, []byte(fmt.Sprintf("%02X", b))...)
	}
	return string(out)
}

// Payload is the IPC-facing form of a frame. It omits timestamp and
// direction (the channel supplies both on send) and carries an
// optional channel id; when absent the active channel is used.
type Payload struct {
	ID         uint32  `json:"id"`
	IsExtended bool    `json:"is_extended"`
	IsRemote   bool    `json:"is_remote"`
	DLC        uint8   `json:"dlc"`
	Data       []byte  `json:"data"`
	ChannelID  *string `json:"channel_id,omitempty"`
}

// ToFrame converts an IPC payload into an internal Frame. Timestamp
// and direction are left zero-valued; the channel fills them in on send.
func (p Payload) ToFrame() Frame {
	isExtended := p.IsExtended || p.ID > MaxStandardID
	payload, dlc := clampPayload(p.Data, p.DLC, false)
	if p.IsRemote {
		payload = []byte{}
	}
	return Frame{
		ID:         p.ID,
		IsExtended: isExtended,
		IsRemote:   p.IsRemote,
		DLC:        dlc,
		Data:       payload,
	}
}

// FromFrame projects an internal Frame down to its IPC payload form.
func FromFrame(f Frame) Payload {
	channelID := f.Channel
	var ch *string
	if channelID != "" {
		ch = &channelID
	}
	return Payload{
		ID:         f.ID,
		IsExtended: f.IsExtended,
		IsRemote:   f.IsRemote,
		DLC:        f.DLC,
		Data:       append([]byte(nil), f.Data...),
		ChannelID:  ch,
	}
}
