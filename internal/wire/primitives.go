// Package wire implements the primitive encodings of the Nix worker
// protocol: little-endian u64, bool-as-u64, length-prefixed and
// zero-padded byte strings and homogeneous sequences (an optional is a
// bool tag its caller writes before the value, as in proto). Every
// function is polymorphic over io.Reader/io.Writer so the same codec
// serves a raw socket, an in-memory buffer, or a FramedReader/FramedWriter.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"
)

// MaxBytesSize is the default ceiling on a single byte-string/sequence
// length accepted from an untrusted peer. Callers that need a different
// bound (e.g. log text vs. NAR-embedded strings) pass their own maxBytes.
const MaxBytesSize = 64 * 1024 * 1024 // 64 MiB

// paddingLen returns the number of zero bytes needed after a contentLen-byte
// payload to round the total on-wire size up to a multiple of 8.
func paddingLen(contentLen uint64) uint64 {
	return (8 - (contentLen % 8)) % 8
}

// WriteUint64 writes v as eight little-endian bytes.
func WriteUint64(w io.Writer, v uint64) error {
	var buf [8]byte

	binary.LittleEndian.PutUint64(buf[:], v)

	_, err := w.Write(buf[:])

	return err
}

// ReadUint64 reads eight little-endian bytes. A failure to read any bytes
// at all is reported as io.EOF (orderly end-of-stream); a partial read is
// io.ErrUnexpectedEOF.
func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte

	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		if n == 0 && err == io.EOF {
			return 0, io.EOF
		}

		return 0, err
	}

	return binary.LittleEndian.Uint64(buf[:]), nil
}

// WriteBool writes the canonical encoding of b: exactly 0 or 1 as a u64.
func WriteBool(w io.Writer, b bool) error {
	var v uint64
	if b {
		v = 1
	}

	return WriteUint64(w, v)
}

// ReadBool reads a u64 and treats zero as false, any nonzero value as true.
func ReadBool(r io.Reader) (bool, error) {
	v, err := ReadUint64(r)
	if err != nil {
		return false, err
	}

	return v != 0, nil
}

// WriteBytes writes a byte string: u64 length, the bytes, then zero padding
// up to the next 8-byte boundary.
func WriteBytes(w io.Writer, b []byte) error {
	if err := WriteUint64(w, uint64(len(b))); err != nil {
		return err
	}

	if len(b) > 0 {
		if _, err := w.Write(b); err != nil {
			return err
		}
	}

	n := paddingLen(uint64(len(b)))
	if n == 0 {
		return nil
	}

	var pad [8]byte

	_, err := w.Write(pad[:n])

	return err
}

// ReadBytes reads a byte string, enforcing maxBytes as an upper bound on the
// declared length to guard against malformed or hostile peers.
func ReadBytes(r io.Reader, maxBytes uint64) ([]byte, error) {
	length, err := ReadUint64(r)
	if err != nil {
		return nil, err
	}

	if length > maxBytes {
		return nil, fmt.Errorf("wire: byte string length %d exceeds limit %d", length, maxBytes)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, unexpectedEOF(err)
	}

	n := paddingLen(length)
	if n > 0 {
		var pad [8]byte

		if _, err := io.ReadFull(r, pad[:n]); err != nil {
			return nil, unexpectedEOF(err)
		}
	}

	return buf, nil
}

// WriteString writes s as a byte string of its UTF-8 bytes.
func WriteString(w io.Writer, s string) error {
	return WriteBytes(w, []byte(s))
}

// ReadString reads a byte string and validates it as UTF-8.
func ReadString(r io.Reader, maxBytes uint64) (string, error) {
	b, err := ReadBytes(r, maxBytes)
	if err != nil {
		return "", err
	}

	if !utf8.Valid(b) {
		return "", fmt.Errorf("wire: invalid UTF-8 string")
	}

	return string(b), nil
}

// unexpectedEOF normalizes a mid-value short read to io.ErrUnexpectedEOF,
// distinguishing it from a clean end-of-stream at a value boundary.
func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}

	return err
}
