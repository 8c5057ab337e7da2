package filter

import (
	"testing"

	"github.com/canscope/engine/frame"
	"github.com/stretchr/testify/assert"
)

func TestEmptySetMatchesEverything(t *testing.T) {
	s := Set{}
	assert.True(t, s.Matches(frame.New(0x7FF, nil)))
	assert.True(t, s.Matches(frame.New(0x0, nil)))
}

func TestIDRangeAndDirectionAND(t *testing.T) {
	s := Set{
		Rules: []Rule{
			IDRange(0x100, 0x200),
			Direction(true, false),
		},
		Logic: LogicAND,
	}

	passing := frame.New(0x150, nil)
	passing.Direction = frame.DirectionRx
	assert.True(t, s.Matches(passing))

	wrongDirection := frame.New(0x150, nil)
	wrongDirection.Direction = frame.DirectionTx
	assert.False(t, s.Matches(wrongDirection))

	outOfRange := frame.New(0x300, nil)
	outOfRange.Direction = frame.DirectionRx
	assert.False(t, s.Matches(outOfRange))
}

func TestORLogicMatchesAny(t *testing.T) {
	s := Set{
		Rules: []Rule{IDExact(0x10), IDExact(0x20)},
		Logic: LogicOR,
	}
	assert.True(t, s.Matches(frame.New(0x10, nil)))
	assert.True(t, s.Matches(frame.New(0x20, nil)))
	assert.False(t, s.Matches(frame.New(0x30, nil)))
}

func TestDataPatternRequiresAllByteMatches(t *testing.T) {
	r := DataPattern(
		ByteMatch{Position: 0, Value: 0x0F, Mask: 0xFF},
		ByteMatch{Position: 1, Value: 0x00, Mask: 0xF0},
	)
	good := frame.New(0x1, []byte{0x0F, 0x5A})
	assert.True(t, r.Matches(good))

	bad := frame.New(0x1, []byte{0x0E, 0x5A})
	assert.False(t, r.Matches(bad))
}

func TestDataPatternOutOfRangePositionFails(t *testing.T) {
	r := DataPattern(ByteMatch{Position: 7, Value: 1, Mask: 0xFF})
	f := frame.New(0x1, []byte{1, 2})
	assert.False(t, r.Matches(f))
}

func TestDLCRange(t *testing.T) {
	r := DLCRange(2, 4)
	assert.True(t, r.Matches(frame.New(0x1, []byte{1, 2, 3})))
	assert.False(t, r.Matches(frame.New(0x1, []byte{1})))
}

func TestExtendedAndRemoteFlags(t *testing.T) {
	ext := ExtendedID(true)
	assert.True(t, ext.Matches(frame.NewExtended(0x10, nil)))
	assert.False(t, ext.Matches(frame.NewStandard(0x10, nil)))

	rtr := RemoteFrame(true)
	assert.True(t, rtr.Matches(frame.NewRemote(0x10, 0, false)))
}

func TestScenarioE2FilterSpec(t *testing.T) {
	s := Set{
		Rules: []Rule{
			IDRange(0x100, 0x200),
			Direction(true, false),
		},
		Logic: LogicAND,
	}

	rxMatch := frame.New(0x150, nil)
	rxMatch.Direction = frame.DirectionRx
	assert.True(t, s.Matches(rxMatch))

	txFiltered := frame.New(0x150, nil)
	txFiltered.Direction = frame.DirectionTx
	assert.False(t, s.Matches(txFiltered))
}
