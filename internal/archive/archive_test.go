package archive_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nixlite/nixd/internal/archive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTripSingleFile(t *testing.T) {
	contents := "hello, nar"
	root := &archive.Node{
		Tag:      archive.TagReg,
		Contents: strings.NewReader(contents),
		Size:     int64(len(contents)),
	}

	var buf bytes.Buffer
	require.NoError(t, archive.NewWriter(&buf).WriteTree(root))

	r := archive.NewReader(&buf)
	tag, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, archive.TagReg, tag)

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, contents, string(data))

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestWriterReaderRoundTripDirectory(t *testing.T) {
	root := &archive.Node{
		Tag: archive.TagDir,
		Entries: map[string]*archive.Node{
			"bin": {
				Tag: archive.TagDir,
				Entries: map[string]*archive.Node{
					"run": {Tag: archive.TagExe, Contents: strings.NewReader("#!/bin/sh\n"), Size: 10},
				},
			},
			"link": {Tag: archive.TagSym, Target: "bin/run"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, archive.NewWriter(&buf).WriteTree(root))

	r := archive.NewReader(&buf)

	var names []string

	// Next reports io.EOF at the end of each directory as well as at the
	// end of the archive, so track open directories as Unpack does.
	depth := 0

	for {
		tag, err := r.Next()
		if err == io.EOF {
			if depth == 0 {
				break
			}

			depth--

			continue
		}

		require.NoError(t, err)
		names = append(names, r.Path())

		if tag == archive.TagDir {
			depth++
		}

		if tag == archive.TagExe {
			data, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, "#!/bin/sh\n", string(data))
		}
	}

	assert.Contains(t, names, "/bin")
	assert.Contains(t, names, "/bin/run")
	assert.Contains(t, names, "/link")
}

func TestPackDirUnpackRoundTrip(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "file.txt"), []byte("payload"), 0o644))
	require.NoError(t, os.Symlink("sub/file.txt", filepath.Join(src, "link")))

	tree, err := archive.PackDir(src)
	require.NoError(t, err)

	defer archive.CloseTree(tree)

	var buf bytes.Buffer
	require.NoError(t, archive.NewWriter(&buf).WriteTree(tree))

	dest := filepath.Join(t.TempDir(), "out")
	require.NoError(t, archive.Unpack(archive.NewReader(&buf), dest))

	got, err := os.ReadFile(filepath.Join(dest, "sub", "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	target, err := os.Readlink(filepath.Join(dest, "link"))
	require.NoError(t, err)
	assert.Equal(t, "sub/file.txt", target)
}
