package wire_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/nixlite/nixd/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramedReaderSingleFrame(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{5, 0, 0, 0, 0, 0, 0, 0})
	buf.Write([]byte{'h', 'e', 'l', 'l', 'o', 0, 0, 0})
	buf.Write([]byte{0, 0, 0, 0, 0, 0, 0, 0})

	fr := wire.NewFramedReader(&buf)
	data, err := io.ReadAll(fr)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestFramedReaderMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{3, 0, 0, 0, 0, 0, 0, 0})
	buf.Write([]byte{'a', 'b', 'c', 0, 0, 0, 0, 0})
	buf.Write([]byte{2, 0, 0, 0, 0, 0, 0, 0})
	buf.Write([]byte{'d', 'e', 0, 0, 0, 0, 0, 0})
	buf.Write([]byte{0, 0, 0, 0, 0, 0, 0, 0})

	fr := wire.NewFramedReader(&buf)
	data, err := io.ReadAll(fr)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcde"), data)
}

func TestFramedReaderEmptyStream(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0, 0, 0, 0, 0})

	fr := wire.NewFramedReader(&buf)
	data, err := io.ReadAll(fr)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestFramedWriterRoundTrip(t *testing.T) {
	payload := []byte("hello, this is a test of framed writing with some data")

	var buf bytes.Buffer
	fw := wire.NewFramedWriter(&buf)
	_, err := fw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, fw.Close())

	fr := wire.NewFramedReader(&buf)
	data, err := io.ReadAll(fr)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestFramedWriterEmpty(t *testing.T) {
	var buf bytes.Buffer
	fw := wire.NewFramedWriter(&buf)
	require.NoError(t, fw.Close())
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0}, buf.Bytes())
}

func TestFramedReaderRejectsNonZeroPadding(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{3, 0, 0, 0, 0, 0, 0, 0})
	buf.Write([]byte{'a', 'b', 'c', 1, 0, 0, 0, 0}) // bad padding byte
	buf.Write([]byte{0, 0, 0, 0, 0, 0, 0, 0})

	fr := wire.NewFramedReader(&buf)
	_, err := io.ReadAll(fr)
	assert.Error(t, err)
}

func TestFramedWriterMultipleFramesOverThreshold(t *testing.T) {
	var buf bytes.Buffer
	fw := wire.NewFramedWriter(&buf)

	payload := bytes.Repeat([]byte{0x7a}, 70*1024) // forces >1 internal frame flush
	_, err := fw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, fw.Close())

	fr := wire.NewFramedReader(&buf)
	data, err := io.ReadAll(fr)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestFramedWriterRejectsWriteAfterClose(t *testing.T) {
	var buf bytes.Buffer
	fw := wire.NewFramedWriter(&buf)
	require.NoError(t, fw.Close())

	_, err := fw.Write([]byte("late"))
	assert.Error(t, err)
}

func TestFramedReaderDrainConsumesRemainder(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{3, 0, 0, 0, 0, 0, 0, 0})
	buf.Write([]byte{'a', 'b', 'c', 0, 0, 0, 0, 0})
	buf.Write([]byte{0, 0, 0, 0, 0, 0, 0, 0})
	buf.WriteString("next-message-marker")

	fr := wire.NewFramedReader(&buf)
	require.NoError(t, fr.Drain())

	rest, err := io.ReadAll(&buf)
	require.NoError(t, err)
	assert.Equal(t, "next-message-marker", string(rest))
}
