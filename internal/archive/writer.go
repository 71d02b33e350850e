package archive

import (
	"fmt"
	"io"
	"sort"
)

// Writer packs a filesystem tree into a NAR byte stream. Unlike Reader,
// which is driven node-by-node by its caller, Writer takes a whole Node
// tree at once: the store manager builds the tree in memory while
// scanning a build's output directory, then packs it in a single call.
type Writer struct {
	w io.Writer
}

// NewWriter wraps w as a NAR Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Node is one entry of a filesystem tree to be packed into a NAR.
// Exactly one of Regular/Symlink/Directory-shaped fields applies,
// selected by Tag.
type Node struct {
	Tag        Tag
	Executable bool      // TagReg/TagExe: file is executable iff TagExe
	Contents   io.Reader // TagReg/TagExe
	Size       int64     // TagReg/TagExe: length of Contents
	Target     string    // TagSym
	Entries    map[string]*Node // TagDir
}

// WriteTree packs root as a complete NAR archive.
func (nw *Writer) WriteTree(root *Node) error {
	if err := nw.writeToken(tokNar); err != nil {
		return err
	}

	// writeNode closes the root node's "(" opened by tokNar itself.
	return nw.writeNode(root)
}

func (nw *Writer) writeNode(n *Node) error {
	switch n.Tag {
	case TagSym:
		if err := nw.writeToken(tokSym); err != nil {
			return err
		}

		if err := nw.writeString(n.Target); err != nil {
			return err
		}

		return nw.writeToken(tokPar)
	case TagReg, TagExe:
		tok := tokReg
		if n.Tag == TagExe {
			tok = tokExe
		}

		if err := nw.writeToken(tok); err != nil {
			return err
		}

		return nw.writeFile(n.Contents, n.Size)
	case TagDir:
		if err := nw.writeToken(tokDir); err != nil {
			return err
		}

		names := make([]string, 0, len(n.Entries))
		for name := range n.Entries {
			names = append(names, name)
		}

		sort.Strings(names) // NAR directory entries are sorted by name

		for _, name := range names {
			if err := nw.writeToken(tokEnt); err != nil {
				return err
			}

			if err := nw.writeString(name); err != nil {
				return err
			}

			if err := nw.writeToken(tokNod); err != nil {
				return err
			}

			if err := nw.writeNode(n.Entries[name]); err != nil {
				return err
			}

			if err := nw.writeToken(tokPar); err != nil {
				return err
			}
		}

		return nw.writeToken(tokPar)
	default:
		return fmt.Errorf("archive: unknown node tag %d", n.Tag)
	}
}

func (nw *Writer) writeFile(contents io.Reader, size int64) error {
	if err := nw.writeUint64(uint64(size)); err != nil {
		return err
	}

	if size > 0 {
		n, err := io.Copy(nw.w, contents)
		if err != nil {
			return err
		}

		if n != size {
			return fmt.Errorf("archive: wrote %d bytes, expected %d", n, size)
		}

		if err := nw.writePadding(size); err != nil {
			return err
		}
	}

	return nw.writeToken(tokPar)
}

func (nw *Writer) writeToken(tok []byte) error {
	_, err := nw.w.Write(tok)

	return err
}

func (nw *Writer) writeUint64(v uint64) error {
	var buf [8]byte
	encoding.PutUint64(buf[:], v)
	_, err := nw.w.Write(buf[:])

	return err
}

func (nw *Writer) writeString(s string) error {
	if err := nw.writeUint64(uint64(len(s))); err != nil {
		return err
	}

	if _, err := io.WriteString(nw.w, s); err != nil {
		return err
	}

	return nw.writePadding(int64(len(s)))
}

func (nw *Writer) writePadding(n int64) error {
	if pad := n & 7; pad != 0 {
		if _, err := nw.w.Write(zero[pad:]); err != nil {
			return err
		}
	}

	return nil
}
