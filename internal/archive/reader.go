// Package archive implements the NAR (Nix ARchive) format: a reader that
// walks a NAR byte stream node by node, a writer that packs a filesystem
// tree into one, and helpers to unpack a NAR directly onto disk. The
// store manager uses the reader during ingest and AddMultipleToStore, and
// the writer/packer when materializing a build's outputs for hashing.
package archive

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"path"
	"strings"
)

var encoding = binary.LittleEndian

var zero [8]byte

func token(parts ...string) []byte {
	var buf bytes.Buffer

	for _, part := range parts {
		_ = binary.Write(&buf, encoding, uint64(len(part)))
		buf.WriteString(part)

		if n := len(part) & 7; n != 0 {
			buf.Write(zero[n:])
		}
	}

	return buf.Bytes()
}

//nolint:gochecknoglobals
var (
	tokNar = token("nix-archive-1", "(", "type")
	tokReg = token("regular", "contents")
	tokExe = token("regular", "executable", "", "contents")
	tokSym = token("symlink", "target")
	tokDir = token("directory")
	tokEnt = token("entry", "(", "name")
	tokNod = token("node", "(", "type")
	tokPar = token(")")
)

// Tag identifies the kind of filesystem node the reader just entered.
type Tag byte

const (
	TagSym Tag = 6
	TagReg Tag = 8
	TagExe Tag = 10
	TagDir Tag = 'y'
)

// Reader walks a NAR stream depth-first, yielding one Tag per node. File
// content is exposed through the embedded io.Reader and must be fully
// consumed (or skipped via the next Next call) before advancing.
type Reader interface {
	Next() (Tag, error)
	Name() string
	Path() string
	Target() string
	Size() uint64
	io.Reader
}

// NewReader wraps rd as a NAR Reader rooted at "/".
func NewReader(rd io.Reader) Reader {
	return &reader{r: bufio.NewReader(rd), path: "/"}
}

type reader struct {
	r     *bufio.Reader
	err   error
	depth uint32

	name   string
	path   string
	target string
	size   uint64
	pad    byte

	pathStack []string
}

var (
	errInvalid = fmt.Errorf("archive: invalid NAR input")
	errSize    = fmt.Errorf("archive: rejecting excessively large NAR field")
)

func (r *reader) fail(err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}

	if r.err == nil {
		r.err = err
	}

	return r.err
}

func (r *reader) Next() (Tag, error) {
	if r.err != nil {
		return 0, r.err
	}

	if r.size != 0 {
		if _, err := io.Copy(io.Discard, r); err != nil {
			r.fail(err)

			return 0, r.err
		}
	}

	for {
		if r.depth == 0 {
			buf := r.peek(16)
			if buf == nil {
				if r.err == io.ErrUnexpectedEOF {
					r.err = io.EOF
				}

				return 0, r.err
			}

			if buf[0] == 1 {
				r.readEnd()

				if r.err == nil {
					r.err = io.EOF
				}

				return 0, r.err
			}

			r.consume(tokNar)
			if r.err != nil {
				return 0, r.err
			}
		} else {
			buf := r.peek(16)
			if buf == nil {
				return 0, r.err
			}

			switch buf[0] {
			default:
				r.fail(errInvalid)

				return 0, r.err
			case 1: // ")" — end of directory
				r.depth--
				r.readEnd()

				if len(r.pathStack) > 0 {
					r.pathStack = r.pathStack[:len(r.pathStack)-1]
				}

				r.updatePath()

				return 0, io.EOF
			case 5: // "entry" — directory entry
				r.consume(tokEnt)
				if r.err != nil {
					return 0, r.err
				}

				r.name = r.readString(255)
				if r.err != nil {
					return 0, r.err
				}

				r.consume(tokNod)
				if r.err != nil {
					return 0, r.err
				}
			}
		}

		break
	}

	buf := r.peek(32)
	if buf == nil {
		return 0, r.err
	}

	switch buf[16] {
	default:
		r.fail(errInvalid)

		return 0, r.err
	case byte(TagSym):
		r.consume(tokSym)
		if r.err != nil {
			return 0, r.err
		}

		r.target = r.readString(4095)
		if r.err != nil {
			return 0, r.err
		}

		r.readEnd()

		return TagSym, r.err
	case byte(TagReg):
		r.consume(tokReg)
		if r.err != nil {
			return 0, r.err
		}

		r.readFile()

		return TagReg, r.err
	case byte(TagExe):
		r.consume(tokExe)
		if r.err != nil {
			return 0, r.err
		}

		r.readFile()

		return TagExe, r.err
	case byte(TagDir):
		r.consume(tokDir)
		if r.err != nil {
			return 0, r.err
		}

		r.depth++
		r.pathStack = append(r.pathStack, r.name)
		r.updatePath()

		return TagDir, r.err
	}
}

func (r *reader) updatePath() {
	if len(r.pathStack) == 0 {
		r.path = "/"
	} else {
		r.path = "/" + path.Join(r.pathStack...)
	}
}

func (r *reader) Path() string {
	if len(r.pathStack) > 0 && r.path != "/" && strings.HasSuffix(r.path, "/"+r.name) {
		return r.path
	}

	if r.name == "" {
		return r.path
	}

	if r.path == "/" {
		return "/" + r.name
	}

	return r.path + "/" + r.name
}

func (r *reader) readFile() {
	r.size, _ = r.readInt()
	r.pad = byte(r.size & 7)

	if r.size > 1<<40 {
		r.fail(errSize)
	}

	if r.size == 0 {
		r.readEnd()
	}
}

func (r *reader) readEnd() {
	r.consume(tokPar)

	if r.depth > 0 {
		r.consume(tokPar)
	}
}

func (r *reader) Name() string { return r.name }

func (r *reader) Target() string { return r.target }

func (r *reader) Size() uint64 { return r.size }

func (r *reader) Read(buf []byte) (int, error) {
	if r.size == 0 {
		return 0, io.EOF
	}

	if uint64(len(buf)) > r.size {
		buf = buf[:r.size]
	}

	n, err := r.r.Read(buf)
	r.size -= uint64(n)

	if err != nil {
		r.fail(err)
	} else if r.size == 0 {
		r.consumePadding(int(r.pad))
		r.pad = 0
		r.readEnd()
	}

	return n, err
}

func (r *reader) peek(n int) []byte {
	if r.err != nil {
		return nil
	}

	buf, err := r.r.Peek(n)
	if err != nil {
		r.fail(err)

		return nil
	}

	return buf
}

func (r *reader) take(n int) []byte {
	buf := r.peek(n)
	if buf == nil {
		return nil
	}

	_, _ = r.r.Discard(n)

	return buf
}

func (r *reader) consume(tok []byte) {
	buf := r.peek(len(tok))
	if buf == nil {
		return
	}

	if !bytes.Equal(buf, tok) {
		r.fail(errInvalid)

		return
	}

	_, _ = r.r.Discard(len(tok))
}

func (r *reader) readInt() (uint64, bool) {
	nbuf := r.take(8)
	if nbuf == nil {
		return 0, false
	}

	return encoding.Uint64(nbuf), true
}

func (r *reader) consumePadding(n int) {
	n &= 7
	if n != 0 {
		r.consume(zero[n:])
	}
}

func (r *reader) readString(maxLen int) string {
	n, ok := r.readInt()
	if !ok {
		return ""
	}

	if n > uint64(maxLen) {
		r.fail(errSize)

		return ""
	}

	if n == 0 {
		r.fail(errInvalid)

		return ""
	}

	s := string(r.take(int(n)))
	r.consumePadding(int(n))

	return s
}
