package store

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nixlite/nixd/internal/archive"
	"github.com/nixlite/nixd/internal/digest"
	"github.com/nixlite/nixd/internal/proto"
	"go.uber.org/zap"
)

// Build runs drv's builder in a sandbox and, on success, registers each
// declared output as a new valid store path. Every output is packed,
// hashed, and reference-scanned before anything is moved into the store
// or added to the index — a failure on any one output discards the
// entire build rather than registering a partial result. buildCores is
// forwarded to the sandbox as the client's negotiated build-cores
// setting (spec.md §4.5).
func (m *Manager) Build(ctx context.Context, drv *proto.BasicDerivation, mode proto.BuildMode, buildCores uint64) (*proto.BuildResult, error) {
	if mode == proto.BuildModeNormal && m.allOutputsValid(drv) {
		return &proto.BuildResult{Status: proto.BuildStatusAlreadyValid}, nil
	}

	buildDir, err := os.MkdirTemp(m.root, ".build-*")
	if err != nil {
		return nil, fmt.Errorf("store: create build directory: %w", err)
	}

	defer os.RemoveAll(buildDir)

	for _, out := range drv.Outputs {
		if err := os.MkdirAll(filepath.Join(buildDir, out.Name), 0o755); err != nil {
			return nil, fmt.Errorf("store: prepare output directory for %s: %w", out.Name, err)
		}
	}

	start := m.clock()

	result, err := m.launch.Run(ctx, drv, buildDir, buildCores)
	if err != nil {
		return nil, fmt.Errorf("store: run sandbox: %w", err)
	}

	stop := m.clock()

	if result.ExitCode != 0 {
		m.log.Info("build failed",
			zap.String("builder", drv.Builder),
			zap.Int("exit_code", result.ExitCode),
		)

		return &proto.BuildResult{
			Status:     proto.BuildStatusPermanentFailure,
			ErrorMsg:   fmt.Sprintf("builder failed with exit code %d", result.ExitCode),
			TimesBuilt: 1,
			StartTime:  start,
			StopTime:   stop,
		}, nil
	}

	outputs, err := m.registerOutputs(drv, buildDir, start)
	if err != nil {
		return &proto.BuildResult{
			Status:     proto.BuildStatusOutputRejected,
			ErrorMsg:   err.Error(),
			TimesBuilt: 1,
			StartTime:  start,
			StopTime:   stop,
		}, nil
	}

	return &proto.BuildResult{
		Status:       proto.BuildStatusBuilt,
		TimesBuilt:   1,
		StartTime:    start,
		StopTime:     stop,
		BuiltOutputs: outputs,
	}, nil
}

func (m *Manager) allOutputsValid(drv *proto.BasicDerivation) bool {
	for _, out := range drv.Outputs {
		if !m.IsValid(out.Path) {
			return false
		}
	}

	return len(drv.Outputs) > 0
}

// registerOutputs packs, hashes, reference-scans, and stores every
// declared output of a successful build. All outputs are packed and
// moved into the store before any is added to the index, so a failure on
// output N (e.g. a collision) leaves outputs 0..N-1 off the index even
// though their bytes are already on disk. A later Build of the same
// derivation checks only the index, so it runs the builder again; a later
// IngestArchive of one of those paths finds it already present and
// registers it without unpacking (see IngestArchive).
func (m *Manager) registerOutputs(drv *proto.BasicDerivation, buildDir string, registeredAt uint64) (map[string]proto.Realisation, error) {
	candidates, err := inputHashPrefixes(drv.Inputs)
	if err != nil {
		return nil, err
	}

	type packed struct {
		out    proto.DerivationOutput
		info   *proto.PathInfo
		srcDir string
		dest   string
	}

	built := make([]packed, 0, len(drv.Outputs))

	for _, out := range drv.Outputs {
		srcDir := filepath.Join(buildDir, out.Name)

		tree, err := archive.PackDir(srcDir)
		if err != nil {
			return nil, fmt.Errorf("pack output %s: %w", out.Name, err)
		}

		var buf bytes.Buffer

		writeErr := archive.NewWriter(&buf).WriteTree(tree)
		archive.CloseTree(tree)

		if writeErr != nil {
			return nil, fmt.Errorf("serialize output %s: %w", out.Name, writeErr)
		}

		narHash, err := digest.Sum(digest.AlgoSHA256, buf.Bytes())
		if err != nil {
			return nil, fmt.Errorf("hash output %s: %w", out.Name, err)
		}

		prefix, err := hashPrefix(out.Path)
		if err != nil {
			return nil, err
		}

		refs := scanReferences(buf.Bytes(), excludingPrefix(candidates, prefix))

		info := &proto.PathInfo{
			StorePath:        out.Path,
			References:       refs,
			RegistrationTime: registeredAt,
			NarSize:          uint64(buf.Len()),
			Hash:             narHash,
		}

		built = append(built, packed{
			out:    out,
			info:   info,
			srcDir: srcDir,
			dest:   m.StorePath(filepath.Base(out.Path)),
		})
	}

	// buildDir lives under m.root (see Build), so this rename is a same-
	// filesystem, atomic move: every output either lands whole or not at
	// all, with no external mv-and-wait needed.
	for _, b := range built {
		if err := os.Rename(b.srcDir, b.dest); err != nil {
			return nil, fmt.Errorf("move output %s into store: %w", b.out.Name, err)
		}
	}

	outputs := make(map[string]proto.Realisation, len(built))

	for _, b := range built {
		m.insert(b.info)

		outputs[b.out.Name] = proto.Realisation{OutPath: b.out.Path}
	}

	return outputs, nil
}

func excludingPrefix(candidates map[string]string, exclude string) map[string]string {
	out := make(map[string]string, len(candidates))

	for prefix, storePath := range candidates {
		if prefix != exclude {
			out[prefix] = storePath
		}
	}

	return out
}

// inputHashPrefixes builds a hash-prefix → store-path map restricted to
// a derivation's own declared input sources. Reference scanning only
// ever needs to recognize these paths inside a freshly built output —
// scanning the whole store index would both cost more and, per spec.md
// §4.5, wrongly surface references to paths the derivation never
// declared as inputs.
func inputHashPrefixes(inputs []string) (map[string]string, error) {
	out := make(map[string]string, len(inputs))

	for _, storePath := range inputs {
		prefix, err := hashPrefix(storePath)
		if err != nil {
			return nil, fmt.Errorf("input source %s: %w", storePath, err)
		}

		out[prefix] = storePath
	}

	return out, nil
}
