package wire

import (
	"fmt"
	"io"
)

const defaultFrameSize = 32 * 1024 // 32KiB

// skipPadding reads and discards the zero padding bytes following a frame's
// content, validating that the bytes are actually zero.
func skipPadding(r io.Reader, contentLen uint64) error {
	n := paddingLen(contentLen)
	if n == 0 {
		return nil
	}

	var pad [8]byte

	if _, err := io.ReadFull(r, pad[:n]); err != nil {
		return unexpectedEOF(err)
	}

	for _, b := range pad[:n] {
		if b != 0 {
			return fmt.Errorf("wire: non-zero frame padding: %v", pad[:n])
		}
	}

	return nil
}

// writePadding writes the zero padding bytes following a frame's content.
func writePadding(w io.Writer, contentLen uint64) error {
	n := paddingLen(contentLen)
	if n == 0 {
		return nil
	}

	var pad [8]byte

	_, err := w.Write(pad[:n])

	return err
}

// FramedReader adapts a sequence of (u64 length, length bytes) frames,
// zero-padded to 8 bytes and terminated by a zero-length frame, into a
// single logical io.Reader. It is a distinct type from the underlying
// connection reader so that callers cannot accidentally read past the
// frame terminator into the next protocol message.
type FramedReader struct {
	r            io.Reader
	remaining    uint64 // bytes left unread in the current frame
	prevFrameLen uint64 // length of the previous frame, for padding
	needHeader   bool   // true when the next Read must first load a frame header
	done         bool   // true once the zero-length terminator has been read
}

// NewFramedReader wraps r as a FramedReader.
func NewFramedReader(r io.Reader) *FramedReader {
	return &FramedReader{r: r, needHeader: true}
}

// Read implements io.Reader, transparently crossing frame boundaries.
func (fr *FramedReader) Read(p []byte) (int, error) {
	if fr.done {
		return 0, io.EOF
	}

	if fr.needHeader {
		if err := fr.nextFrame(); err != nil {
			return 0, err
		}

		if fr.done {
			return 0, io.EOF
		}
	}

	toRead := uint64(len(p))
	if toRead > fr.remaining {
		toRead = fr.remaining
	}

	n, err := fr.r.Read(p[:toRead])
	fr.remaining -= uint64(n)

	if fr.remaining == 0 {
		fr.needHeader = true
	}

	return n, err
}

// Drain reads and discards any unread content in the current frame and all
// subsequent frames through the zero-length terminator. Per the framed
// stream invariant, this MUST be called before control returns to the
// dispatch loop, even when the higher-level decode failed partway through.
func (fr *FramedReader) Drain() error {
	_, err := io.Copy(io.Discard, fr)

	return err
}

func (fr *FramedReader) nextFrame() error {
	if fr.prevFrameLen > 0 {
		if err := skipPadding(fr.r, fr.prevFrameLen); err != nil {
			return err
		}
	}

	frameLen, err := ReadUint64(fr.r)
	if err != nil {
		return unexpectedEOF(err)
	}

	if frameLen == 0 {
		fr.done = true
		fr.prevFrameLen = 0

		return nil
	}

	fr.remaining = frameLen
	fr.prevFrameLen = frameLen
	fr.needHeader = false

	return nil
}

// FramedWriter buffers writes and flushes them as length-prefixed,
// zero-padded frames once the buffer reaches defaultFrameSize. Close flushes
// any remainder and writes the zero-length terminator frame.
type FramedWriter struct {
	w      io.Writer
	buf    []byte
	closed bool
}

// NewFramedWriter wraps w as a FramedWriter.
func NewFramedWriter(w io.Writer) *FramedWriter {
	return &FramedWriter{w: w, buf: make([]byte, 0, defaultFrameSize)}
}

// Write implements io.Writer. A pending partial frame is topped off
// first; once it reaches defaultFrameSize it is flushed. Any remainder
// at least defaultFrameSize long is then framed straight out of p,
// without copying it through the internal buffer first — only the
// final short tail, if any, is buffered for the next Write or Close.
func (fw *FramedWriter) Write(p []byte) (int, error) {
	if fw.closed {
		return 0, fmt.Errorf("wire: write to closed FramedWriter")
	}

	written := 0

	if len(fw.buf) > 0 {
		n := copy(fw.buf[len(fw.buf):cap(fw.buf)], p)
		fw.buf = fw.buf[:len(fw.buf)+n]
		p = p[n:]
		written += n

		if len(fw.buf) == cap(fw.buf) {
			if err := fw.flush(); err != nil {
				return written, err
			}
		}
	}

	for len(p) >= defaultFrameSize {
		if err := fw.writeFrame(p[:defaultFrameSize]); err != nil {
			return written, err
		}

		p = p[defaultFrameSize:]
		written += defaultFrameSize
	}

	if len(p) > 0 {
		fw.buf = append(fw.buf, p...)
		written += len(p)
	}

	return written, nil
}

// Close flushes any buffered data as a final frame and writes the
// zero-length terminator. Idempotent.
func (fw *FramedWriter) Close() error {
	if fw.closed {
		return nil
	}

	fw.closed = true

	if len(fw.buf) > 0 {
		if err := fw.flush(); err != nil {
			return err
		}
	}

	return WriteUint64(fw.w, 0)
}

func (fw *FramedWriter) flush() error {
	if len(fw.buf) == 0 {
		return nil
	}

	if err := fw.writeFrame(fw.buf); err != nil {
		return err
	}

	fw.buf = fw.buf[:0]

	return nil
}

// writeFrame writes chunk as one complete length-prefixed, zero-padded
// frame. chunk may alias the caller's own slice (the large-write fast
// path in Write) or fw.buf (flush); either way it is never retained
// past the call.
func (fw *FramedWriter) writeFrame(chunk []byte) error {
	if err := WriteUint64(fw.w, uint64(len(chunk))); err != nil {
		return err
	}

	if _, err := fw.w.Write(chunk); err != nil {
		return err
	}

	return writePadding(fw.w, uint64(len(chunk)))
}
