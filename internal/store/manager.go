// Package store implements the in-memory store index and the two
// operations that mutate it: ingesting a NAR archive and running a
// derivation build. Both operations are atomic with respect to the
// index — a failure partway through a multi-step ingest or build never
// leaves a partially-registered path visible to a concurrent reader.
package store

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/nixlite/nixd/internal/proto"
	"github.com/nixlite/nixd/internal/sandbox"
	"go.uber.org/zap"
)

// Manager owns the store's on-disk root and its in-memory path index. A
// single Manager is shared by every connection the daemon serves; all
// access goes through its mutex rather than per-connection locks, since
// the index reflects global store state (spec.md §5).
type Manager struct {
	root    string
	log     *zap.Logger
	launch  *sandbox.Launcher
	mu      sync.RWMutex
	index   map[string]*proto.PathInfo
	clock   func() uint64
}

// New constructs a Manager rooted at root, using launcher to run builds.
// clock supplies RegistrationTime/StartTime/StopTime stamps; production
// callers pass a wall-clock reader, tests pass a fixed or incrementing
// counter for determinism.
func New(root string, launcher *sandbox.Launcher, log *zap.Logger, clock func() uint64) *Manager {
	return &Manager{
		root:   root,
		log:    log,
		launch: launcher,
		index:  make(map[string]*proto.PathInfo),
		clock:  clock,
	}
}

// StorePath returns the absolute on-disk path for a store path's base
// name, i.e. <root>/<base-name>.
func (m *Manager) StorePath(baseName string) string {
	return filepath.Join(m.root, baseName)
}

// Lookup returns the PathInfo registered for storePath, if valid.
func (m *Manager) Lookup(storePath string) (*proto.PathInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.index[storePath]

	return info, ok
}

// IsValid reports whether storePath is currently registered as valid.
func (m *Manager) IsValid(storePath string) bool {
	_, ok := m.Lookup(storePath)

	return ok
}

// ValidSubset filters paths down to the ones currently registered as
// valid, preserving input order (QueryValidPaths).
func (m *Manager) ValidSubset(paths []string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(paths))

	for _, p := range paths {
		if _, ok := m.index[p]; ok {
			out = append(out, p)
		}
	}

	return out
}

// AllValidPaths returns every store path currently registered, in no
// particular order.
func (m *Manager) AllValidPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.index))
	for p := range m.index {
		out = append(out, p)
	}

	return out
}

// insert registers info under the lock, called only once every
// on-disk side effect of the calling operation has already succeeded —
// see ingest.go and build.go.
func (m *Manager) insert(info *proto.PathInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.index[info.StorePath] = info
}

// hashPrefix extracts the 32-character hash prefix from a store path's
// base name. The build path uses it to turn declared inputs into
// reference-scan candidates and to leave a newly built output's own hash
// out of them, so self-references are not reported (spec.md §4.5).
func hashPrefix(storePath string) (string, error) {
	base := filepath.Base(storePath)

	idx := strings.IndexByte(base, '-')
	if idx != 32 {
		return "", fmt.Errorf("store: malformed store path base name %q", base)
	}

	return base[:32], nil
}

// scanReferences reports which of candidateHashPrefixes occur as a
// substring anywhere in data, the scan nixd runs over a path's NAR bytes
// to discover its store references. The result is sorted by store path
// so references are listed in a stable, testable order regardless of the
// candidate map's iteration order (spec.md §4.5).
func scanReferences(data []byte, candidates map[string]string) []string {
	text := string(data)

	var refs []string

	for prefix, storePath := range candidates {
		if strings.Contains(text, prefix) {
			refs = append(refs, storePath)
		}
	}

	sort.Strings(refs)

	return refs
}
