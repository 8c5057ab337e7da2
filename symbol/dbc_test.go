package symbol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleDBC = `VERSION "1.0"

BU_: ECU Dash

BO_ 100 EngineSpeed: 8 ECU
 SG_ Speed : 0|16@1+ (0.1,0) [0|6553.5] "km/h" ECU

VAL_ 100 Speed 0 "Stopped" 1 "Moving" ;
`

func TestParseDBCBasics(t *testing.T) {
	db, err := ParseDBC(strings.NewReader(sampleDBC))
	require.NoError(t, err)
	require.Equal(t, "1.0", db.Version)
	require.Equal(t, []string{"ECU", "Dash"}, db.Nodes)

	msg, ok := db.Messages[100]
	require.True(t, ok)
	require.Equal(t, "EngineSpeed", msg.Name)
	require.Equal(t, uint8(8), msg.DLC)
	require.Len(t, msg.Signals, 1)
	require.Equal(t, "Speed", msg.Signals[0].Name)
	require.Equal(t, LittleEndian, msg.Signals[0].ByteOrder)
	require.Equal(t, "km/h", msg.Signals[0].Unit)
}

// E3 — decode the DBC-defined Speed signal from spec.md §8.
func TestScenarioE3DecodeSpeed(t *testing.T) {
	db, err := ParseDBC(strings.NewReader(sampleDBC))
	require.NoError(t, err)

	decoded, ok := db.DecodeMessage(100, []byte{0x10, 0x27, 0, 0, 0, 0, 0, 0})
	require.True(t, ok)
	require.Len(t, decoded, 1)
	require.Equal(t, "Speed", decoded[0].Name)
	require.Equal(t, int64(10000), decoded[0].RawValue)
	require.InDelta(t, 1000.0, decoded[0].Physical, 0.001)
	require.Equal(t, "km/h", decoded[0].Unit)
}

// E4 — value-table label resolves after parsing, invariant 4.
func TestScenarioE4ValueTableLabel(t *testing.T) {
	db, err := ParseDBC(strings.NewReader(sampleDBC))
	require.NoError(t, err)

	msg := db.Messages[100]
	require.NotEmpty(t, msg.Signals[0].ValueTable)
	vt, ok := db.ValueTables[msg.Signals[0].ValueTable]
	require.True(t, ok)
	require.Equal(t, "Stopped", vt.Labels[0])
	require.Equal(t, "Moving", vt.Labels[1])
}

func TestParseDBCUnresolvedValueTableClearedByPostPass(t *testing.T) {
	db := NewDatabase()
	db.Messages[1] = &Message{ID: 1, Signals: []Signal{{Name: "X", ValueTable: "missing"}}}
	postPassResolveValueTables(db)
	require.Empty(t, db.Messages[1].Signals[0].ValueTable)
}

func TestParseDBCMotorolaSignal(t *testing.T) {
	const motorolaDBC = `BO_ 200 Brake: 8 ECU
 SG_ Pressure : 7|16@0+ (1,0) [0|65535] "kPa" Dash
`
	db, err := ParseDBC(strings.NewReader(motorolaDBC))
	require.NoError(t, err)
	msg := db.Messages[200]
	require.Len(t, msg.Signals, 1)
	require.Equal(t, BigEndian, msg.Signals[0].ByteOrder)
	require.Equal(t, 7, msg.Signals[0].StartBit)
	require.Equal(t, 16, msg.Signals[0].Length)
}

func TestParseDBCSignedSignal(t *testing.T) {
	const signedDBC = `BO_ 300 Temp: 8 ECU
 SG_ Celsius : 0|8@1- (1,0) [-40|215] "C" Dash
`
	db, err := ParseDBC(strings.NewReader(signedDBC))
	require.NoError(t, err)

	decoded, ok := db.DecodeMessage(300, []byte{0xFB, 0, 0, 0, 0, 0, 0, 0}) // -5
	require.True(t, ok)
	require.Equal(t, int64(-5), decoded[0].RawValue)
	require.InDelta(t, -5.0, decoded[0].Physical, 0.001)
}

func TestParseDBCUnknownMessageSkipsSignal(t *testing.T) {
	const noHeader = `SG_ Orphan : 0|8@1+ (1,0) [0|255] "" ECU
`
	db, err := ParseDBC(strings.NewReader(noHeader))
	require.NoError(t, err)
	require.Empty(t, db.Messages)
}

func TestParseDBCComments(t *testing.T) {
	const withComments = `BO_ 100 EngineSpeed: 8 ECU
 SG_ Speed : 0|16@1+ (0.1,0) [0|6553.5] "km/h" ECU

CM_ BO_ 100 "Engine speed message";
CM_ SG_ 100 Speed "Vehicle road speed";
`
	db, err := ParseDBC(strings.NewReader(withComments))
	require.NoError(t, err)
	require.Equal(t, "Engine speed message", db.Messages[100].Comment)
	require.Equal(t, "Vehicle road speed", db.Messages[100].Signals[0].Comment)
}
