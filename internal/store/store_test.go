package store_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/nixlite/nixd/internal/archive"
	"github.com/nixlite/nixd/internal/proto"
	"github.com/nixlite/nixd/internal/sandbox"
	"github.com/nixlite/nixd/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func counterClock() func() uint64 {
	n := uint64(1700000000)

	return func() uint64 {
		n++

		return n
	}
}

func TestIngestArchiveRegistersPath(t *testing.T) {
	root := t.TempDir()
	m := store.New(root, &sandbox.Launcher{StoreRoot: root}, zap.NewNop(), counterClock())

	tree := &archive.Node{Tag: archive.TagReg, Contents: bytes.NewReader([]byte("hi")), Size: 2}

	var buf bytes.Buffer
	require.NoError(t, archive.NewWriter(&buf).WriteTree(tree))

	info := &proto.PathInfo{StorePath: "00000000000000000000000000000a-hello"}
	require.NoError(t, m.IngestArchive(info, archive.NewReader(&buf)))

	got, ok := m.Lookup(info.StorePath)
	require.True(t, ok)
	assert.Equal(t, info.StorePath, got.StorePath)
}

func TestIngestArchiveIsIdempotentForSameBaseName(t *testing.T) {
	root := t.TempDir()
	m := store.New(root, &sandbox.Launcher{StoreRoot: root}, zap.NewNop(), counterClock())

	tree := &archive.Node{Tag: archive.TagReg, Contents: bytes.NewReader([]byte("hi")), Size: 2}

	var buf1, buf2 bytes.Buffer
	require.NoError(t, archive.NewWriter(&buf1).WriteTree(tree))
	require.NoError(t, archive.NewWriter(&buf2).WriteTree(tree))

	info := &proto.PathInfo{StorePath: "00000000000000000000000000000a-hello"}
	require.NoError(t, m.IngestArchive(info, archive.NewReader(&buf1)))
	require.NoError(t, m.IngestArchive(info, archive.NewReader(&buf2)))

	_, ok := m.Lookup(info.StorePath)
	assert.True(t, ok)
}

func TestValidSubsetFiltersToRegisteredPaths(t *testing.T) {
	root := t.TempDir()
	m := store.New(root, &sandbox.Launcher{StoreRoot: root}, zap.NewNop(), counterClock())

	tree := &archive.Node{Tag: archive.TagReg, Contents: bytes.NewReader([]byte("hi")), Size: 2}

	var buf bytes.Buffer
	require.NoError(t, archive.NewWriter(&buf).WriteTree(tree))

	info := &proto.PathInfo{StorePath: "00000000000000000000000000000a-hello"}
	require.NoError(t, m.IngestArchive(info, archive.NewReader(&buf)))

	subset := m.ValidSubset([]string{info.StorePath, "missing-path"})
	assert.Equal(t, []string{info.StorePath}, subset)
}

func TestBuildRegistersOutputAndReturnsBuiltStatus(t *testing.T) {
	root := t.TempDir()

	bwrapPath := root + "/fake-bwrap"
	script := "#!/bin/sh\nwhile [ \"$1\" != \"--chdir\" ]; do shift; done\nshift 2\nexec \"$@\"\n"
	require.NoError(t, os.WriteFile(bwrapPath, []byte(script), 0o755))

	m := store.New(root, &sandbox.Launcher{BwrapPath: bwrapPath, StoreRoot: root}, zap.NewNop(), counterClock())

	drv := &proto.BasicDerivation{
		Name:    "hello",
		Builder: "/bin/sh",
		Args:    []string{"-c", "echo hi > $out/file.txt"},
		Outputs: []proto.DerivationOutput{
			{Name: "out", Path: "0000000000000000000000000000000b-hello"},
		},
	}

	result, err := m.Build(context.Background(), drv, proto.BuildModeNormal, 0)
	require.NoError(t, err)
	assert.Equal(t, proto.BuildStatusBuilt, result.Status)
	assert.Contains(t, result.BuiltOutputs, "out")

	_, ok := m.Lookup("0000000000000000000000000000000b-hello")
	assert.True(t, ok)
}

func TestBuildScansReferencesOnlyFromDeclaredInputsAndSortsThem(t *testing.T) {
	root := t.TempDir()

	bwrapPath := root + "/fake-bwrap"
	script := "#!/bin/sh\nwhile [ \"$1\" != \"--chdir\" ]; do shift; done\nshift 2\nexec \"$@\"\n"
	require.NoError(t, os.WriteFile(bwrapPath, []byte(script), 0o755))

	m := store.New(root, &sandbox.Launcher{BwrapPath: bwrapPath, StoreRoot: root}, zap.NewNop(), counterClock())

	// depZ sorts after depA but is declared first in Inputs, so a passing
	// test here also confirms References is sorted rather than merely
	// reflecting declaration order. depOut is a real store path whose
	// hash prefix happens to appear in the output bytes too, but since
	// it is never declared as an input it must not show up as a
	// reference.
	depA := &proto.PathInfo{StorePath: "000000000000000000000000000000aa-depA"}
	depZ := &proto.PathInfo{StorePath: "000000000000000000000000000000zz-depZ"}
	depOut := &proto.PathInfo{StorePath: "0000000000000000000000000000oo-depOut"}

	for _, info := range []*proto.PathInfo{depA, depZ, depOut} {
		tree := &archive.Node{Tag: archive.TagReg, Contents: bytes.NewReader([]byte("x")), Size: 1}

		var buf bytes.Buffer
		require.NoError(t, archive.NewWriter(&buf).WriteTree(tree))
		require.NoError(t, m.IngestArchive(info, archive.NewReader(&buf)))
	}

	drv := &proto.BasicDerivation{
		Name:    "refs",
		Builder: "/bin/sh",
		Args: []string{"-c", fmt.Sprintf(
			"printf '%%s\\n%%s\\n%%s\\n' %s %s %s > $out/file.txt",
			depZ.StorePath, depA.StorePath, depOut.StorePath,
		)},
		Inputs: []string{depZ.StorePath, depA.StorePath},
		Outputs: []proto.DerivationOutput{
			{Name: "out", Path: "0000000000000000000000000000000d-refs"},
		},
	}

	result, err := m.Build(context.Background(), drv, proto.BuildModeNormal, 0)
	require.NoError(t, err)
	require.Equal(t, proto.BuildStatusBuilt, result.Status)

	info, ok := m.Lookup("0000000000000000000000000000000d-refs")
	require.True(t, ok)
	assert.Equal(t, []string{depA.StorePath, depZ.StorePath}, info.References)
}

func TestBuildReportsPermanentFailureOnNonZeroExit(t *testing.T) {
	root := t.TempDir()

	bwrapPath := root + "/fake-bwrap"
	script := "#!/bin/sh\nwhile [ \"$1\" != \"--chdir\" ]; do shift; done\nshift 2\nexec \"$@\"\n"
	require.NoError(t, os.WriteFile(bwrapPath, []byte(script), 0o755))

	m := store.New(root, &sandbox.Launcher{BwrapPath: bwrapPath, StoreRoot: root}, zap.NewNop(), counterClock())

	drv := &proto.BasicDerivation{
		Builder: "/bin/sh",
		Args:    []string{"-c", "exit 1"},
		Outputs: []proto.DerivationOutput{
			{Name: "out", Path: "0000000000000000000000000000000c-broken"},
		},
	}

	result, err := m.Build(context.Background(), drv, proto.BuildModeNormal, 0)
	require.NoError(t, err)
	assert.Equal(t, proto.BuildStatusPermanentFailure, result.Status)

	_, ok := m.Lookup("0000000000000000000000000000000c-broken")
	assert.False(t, ok)
}
