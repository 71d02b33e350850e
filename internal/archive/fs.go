package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// PackDir builds a Node tree from a directory on disk, suitable for
// Writer.WriteTree. Every regular file is opened during the walk and held
// as an *os.File whose contents are read only when the tree is written;
// the caller is responsible for closing them via CloseTree once the tree
// has been written.
func PackDir(root string) (*Node, error) {
	info, err := os.Lstat(root)
	if err != nil {
		return nil, err
	}

	return packPath(root, info)
}

func packPath(path string, info os.FileInfo) (*Node, error) {
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return nil, err
		}

		return &Node{Tag: TagSym, Target: target}, nil

	case info.IsDir():
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}

		children := make(map[string]*Node, len(entries))

		for _, entry := range entries {
			childInfo, err := entry.Info()
			if err != nil {
				return nil, err
			}

			child, err := packPath(filepath.Join(path, entry.Name()), childInfo)
			if err != nil {
				return nil, err
			}

			children[entry.Name()] = child
		}

		return &Node{Tag: TagDir, Entries: children}, nil

	case info.Mode().IsRegular():
		f, err := os.Open(path) //nolint:gosec
		if err != nil {
			return nil, err
		}

		tag := TagReg
		if info.Mode()&0o111 != 0 {
			tag = TagExe
		}

		return &Node{Tag: tag, Contents: f, Size: info.Size(), Executable: tag == TagExe}, nil

	default:
		return nil, fmt.Errorf("archive: unsupported file type at %s", path)
	}
}

// CloseTree closes every *os.File opened by PackDir for a regular file
// node, walking the tree depth-first.
func CloseTree(n *Node) {
	if n == nil {
		return
	}

	switch n.Tag {
	case TagReg, TagExe:
		if f, ok := n.Contents.(io.Closer); ok {
			_ = f.Close()
		}
	case TagDir:
		for _, child := range n.Entries {
			CloseTree(child)
		}
	}
}

// Unpack materializes a NAR stream onto disk at dest, which must not
// already exist. It tracks a directory stack so nested entries land at
// the right path regardless of the order Reader yields them in (always
// depth-first, but Unpack does not assume that beyond what Reader itself
// guarantees). The root node may be a directory, a regular file, or a
// symlink — a NAR is self-delimiting regardless of what its root is, so
// dest itself is only created as a directory once a TagDir is actually
// seen, never pre-emptively.
func Unpack(r Reader, dest string) error {
	var stack []string

	root := true
	depth := 0

	for {
		tag, err := r.Next()
		if err == io.EOF {
			if depth == 0 {
				return nil
			}

			depth--
			stack = stack[:len(stack)-1]

			continue
		}

		if err != nil {
			return err
		}

		target := dest
		if !root {
			target = filepath.Join(stack[len(stack)-1], r.Name())
		}

		root = false

		switch tag {
		case TagDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}

			stack = append(stack, target)
			depth++

		case TagSym:
			if err := os.Symlink(r.Target(), target); err != nil {
				return err
			}

		case TagReg, TagExe:
			mode := os.FileMode(0o644)
			if tag == TagExe {
				mode = 0o755
			}

			if err := writeRegularFile(target, r, mode); err != nil {
				return err
			}
		}
	}
}

func writeRegularFile(path string, r io.Reader, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(f, r)

	return err
}
