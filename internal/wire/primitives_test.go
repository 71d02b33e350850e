package wire_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/nixlite/nixd/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUint64RoundTrip(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, wire.WriteUint64(&buf, 0x0123456789abcdef))
	assert.Equal(t, []byte{0xef, 0xcd, 0xab, 0x89, 0x67, 0x45, 0x23, 0x01}, buf.Bytes())

	v, err := wire.ReadUint64(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0123456789abcdef), v)
}

func TestBoolCanonicalEncoding(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, wire.WriteBool(&buf, true))
	assert.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0}, buf.Bytes())

	buf.Reset()
	require.NoError(t, wire.WriteBool(&buf, false))
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0}, buf.Bytes())
}

func TestBoolDecodesAnyNonzero(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, wire.WriteUint64(&buf, 42))

	b, err := wire.ReadBool(&buf)
	require.NoError(t, err)
	assert.True(t, b)
}

func TestReadUint64EmptyIsEndOfStream(t *testing.T) {
	_, err := wire.ReadUint64(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadUint64ShortIsUnexpectedEOF(t *testing.T) {
	_, err := wire.ReadUint64(bytes.NewReader([]byte{1, 2, 3}))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestBytesPaddedToEightBytes(t *testing.T) {
	for length := 0; length < 20; length++ {
		var buf bytes.Buffer

		data := bytes.Repeat([]byte{0x42}, length)
		require.NoError(t, wire.WriteBytes(&buf, data))
		assert.Zero(t, buf.Len()%8, "length %d: wire size %d not 8-aligned", length, buf.Len())

		got, err := wire.ReadBytes(&buf, wire.MaxBytesSize)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
}

func TestReadBytesRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, wire.WriteUint64(&buf, 1<<20))

	_, err := wire.ReadBytes(&buf, 1024)
	assert.Error(t, err)
}

func TestStringRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, wire.WriteString(&buf, "hello, nix"))

	s, err := wire.ReadString(&buf, wire.MaxBytesSize)
	require.NoError(t, err)
	assert.Equal(t, "hello, nix", s)
}

func TestReadStringRejectsInvalidUTF8(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, wire.WriteBytes(&buf, []byte{0xff, 0xfe, 0xfd}))

	_, err := wire.ReadString(&buf, wire.MaxBytesSize)
	assert.Error(t, err)
}
