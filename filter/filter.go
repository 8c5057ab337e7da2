// Package filter implements the composable per-frame rule engine of
// spec.md §4.E: ID range/exact, data-byte match, DLC, direction,
// extended/RTR flags, combined with AND/OR logic.
package filter

import "github.com/canscope/engine/frame"

// Logic is the composition operator for a Set's rules.
type Logic int

const (
	LogicAND Logic = iota
	LogicOR
)

// ByteMatch is one data-byte comparison inside a DataPattern rule.
type ByteMatch struct {
	Position int  `json:"position"`
	Value    byte `json:"value"`
	Mask     byte `json:"mask"`
}

// Rule is a tagged union over the seven rule kinds from spec.md §3.
// Exactly one Kind-selected field is meaningful per rule.
type Kind int

const (
	KindIDRange Kind = iota
	KindIDExact
	KindDataPattern
	KindDLCRange
	KindDirection
	KindExtendedID
	KindRemoteFrame
)

type Rule struct {
	Kind Kind `json:"kind"`

	IDMin          uint32      `json:"id_min,omitempty"`
	IDMax          uint32      `json:"id_max,omitempty"`
	ID             uint32      `json:"id,omitempty"` // KindIDExact
	Bytes          []ByteMatch `json:"bytes,omitempty"`
	DLCMin         uint8       `json:"dlc_min,omitempty"`
	DLCMax         uint8       `json:"dlc_max,omitempty"`
	Rx             bool        `json:"rx,omitempty"` // KindDirection
	Tx             bool        `json:"tx,omitempty"`
	Extended       bool        `json:"extended,omitempty"`
	Remote         bool        `json:"remote,omitempty"`
}

func IDRange(min, max uint32) Rule   { return Rule{Kind: KindIDRange, IDMin: min, IDMax: max} }
func IDExact(id uint32) Rule         { return Rule{Kind: KindIDExact, ID: id} }
func DataPattern(m ...ByteMatch) Rule {
	return Rule{Kind: KindDataPattern, Bytes: append([]ByteMatch(nil), m...)}
}
func DLCRange(min, max uint8) Rule     { return Rule{Kind: KindDLCRange, DLCMin: min, DLCMax: max} }
func Direction(rx, tx bool) Rule       { return Rule{Kind: KindDirection, Rx: rx, Tx: tx} }
func ExtendedID(extended bool) Rule    { return Rule{Kind: KindExtendedID, Extended: extended} }
func RemoteFrame(remote bool) Rule     { return Rule{Kind: KindRemoteFrame, Remote: remote} }

// Matches evaluates a single rule against a frame. Filters have no
// side effects.
func (r Rule) Matches(f frame.Frame) bool {
	switch r.Kind {
	case KindIDRange:
		return f.ID >= r.IDMin && f.ID <= r.IDMax
	case KindIDExact:
		return f.ID == r.ID
	case KindDataPattern:
		for _, m := range r.Bytes {
			if m.Position < 0 || m.Position >= len(f.Data) {
				return false
			}
			if f.Data[m.Position]&m.Mask != m.Value&m.Mask {
				return false
			}
		}
		return true
	case KindDLCRange:
		return f.DLC >= r.DLCMin && f.DLC <= r.DLCMax
	case KindDirection:
		switch f.Direction {
		case frame.DirectionRx:
			return r.Rx
		case frame.DirectionTx:
			return r.Tx
		default:
			return false
		}
	case KindExtendedID:
		return f.IsExtended == r.Extended
	case KindRemoteFrame:
		return f.IsRemote == r.Remote
	default:
		return false
	}
}

// Set is a rule list plus its composition logic. An empty rule set
// matches every frame regardless of logic (bypass), per spec.md §3/§4.E.
type Set struct {
	Rules []Rule `json:"rules"`
	Logic Logic  `json:"logic"`
}

// Matches evaluates the whole set against f, short-circuiting.
func (s Set) Matches(f frame.Frame) bool {
	if len(s.Rules) == 0 {
		return true
	}
	switch s.Logic {
	case LogicOR:
		for _, r := range s.Rules {
			if r.Matches(f) {
				return true
			}
		}
		return false
	default: // LogicAND
		for _, r := range s.Rules {
			if !r.Matches(f) {
				return false
			}
		}
		return true
	}
}
