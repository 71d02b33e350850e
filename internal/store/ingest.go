package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nixlite/nixd/internal/archive"
	"github.com/nixlite/nixd/internal/proto"
)

// IngestArchive unpacks a NAR stream into the store and registers info
// under its StorePath. The NAR is first unpacked into a staging
// directory inside the store root; only once unpacking succeeds in full
// is it moved into place with a single os.Rename and the index updated.
// A failure at any point before the rename leaves the store and index
// untouched — AddMultipleToStore relies on this to keep a rejected item
// from corrupting already-ingested ones in the same request.
func (m *Manager) IngestArchive(info *proto.PathInfo, nar archive.Reader) error {
	dest := m.StorePath(filepath.Base(info.StorePath))

	if _, err := os.Lstat(dest); err == nil {
		// Already present with this exact base name; Nix store paths are
		// content-addressed by construction, so re-ingesting the same
		// path is a no-op rather than an error.
		m.insert(info)

		return nil
	}

	staging, err := os.MkdirTemp(m.root, ".ingest-*")
	if err != nil {
		return fmt.Errorf("store: create staging directory: %w", err)
	}

	defer os.RemoveAll(staging)

	unpackedRoot := filepath.Join(staging, "root")
	if err := archive.Unpack(nar, unpackedRoot); err != nil {
		return fmt.Errorf("store: unpack archive for %s: %w", info.StorePath, err)
	}

	if err := os.Rename(unpackedRoot, dest); err != nil {
		return fmt.Errorf("store: move %s into place: %w", info.StorePath, err)
	}

	m.insert(info)

	return nil
}
