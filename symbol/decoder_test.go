package symbol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBigEndianBitPositionsSawtooth(t *testing.T) {
	// A 16-bit Motorola signal starting at bit 7 (MSB of byte 0) spans
	// byte 0 MSB-to-LSB then jumps to byte 1 MSB-to-LSB.
	pos := bigEndianBitPositions(7, 16)
	require.Equal(t, []int{7, 6, 5, 4, 3, 2, 1, 0, 15, 14, 13, 12, 11, 10, 9, 8}, pos)
}

func TestExtractRawLittleEndian(t *testing.T) {
	sig := Signal{StartBit: 0, Length: 16, ByteOrder: LittleEndian}
	raw := extractRaw([]byte{0x10, 0x27, 0, 0, 0, 0, 0, 0}, sig)
	require.Equal(t, uint64(10000), raw)
}

func TestExtractRawBigEndian(t *testing.T) {
	sig := Signal{StartBit: 7, Length: 16, ByteOrder: BigEndian}
	raw := extractRaw([]byte{0x27, 0x10, 0, 0, 0, 0, 0, 0}, sig)
	require.Equal(t, uint64(10000), raw)
}

func TestSignExtendNegative(t *testing.T) {
	require.Equal(t, int64(-5), signExtend(0xFB, 8))
	require.Equal(t, int64(5), signExtend(0x05, 8))
}

func TestDecodeMessageFloat32TruncatesToInt(t *testing.T) {
	db := NewDatabase()
	db.Messages[1] = &Message{ID: 1, Signals: []Signal{
		{Name: "F", StartBit: 0, Length: 32, ByteOrder: LittleEndian, ValueType: Float32, Factor: 1},
	}}
	// 1.5f little-endian bytes; per the documented approximation the
	// raw value is the float truncated to int (1), not 1.5.
	data := []byte{0x00, 0x00, 0xC0, 0x3F}
	decoded, ok := db.DecodeMessage(1, data)
	require.True(t, ok)
	require.Equal(t, int64(1), decoded[0].RawValue)
	require.InDelta(t, 1.0, decoded[0].Physical, 0.0001)
}

func TestDecodeMessageUnknownIDReturnsFalse(t *testing.T) {
	db := NewDatabase()
	_, ok := db.DecodeMessage(99, nil)
	require.False(t, ok)
}

func TestDecodeMessageSkipsSignalExceedingPayload(t *testing.T) {
	db := NewDatabase()
	db.Messages[1] = &Message{ID: 1, Signals: []Signal{
		{Name: "InRange", StartBit: 0, Length: 8, ByteOrder: LittleEndian, Factor: 1},
		{Name: "OutOfRange", StartBit: 56, Length: 16, ByteOrder: LittleEndian, Factor: 1},
	}}
	decoded, ok := db.DecodeMessage(1, []byte{0x05, 0x00, 0x00, 0x00})
	require.True(t, ok)
	require.Len(t, decoded, 1)
	require.Equal(t, "InRange", decoded[0].Name)
}
