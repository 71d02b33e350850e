package daemon

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"

	"github.com/nixlite/nixd/internal/archive"
	"github.com/nixlite/nixd/internal/proto"
	"github.com/nixlite/nixd/internal/store"
	"github.com/nixlite/nixd/internal/wire"
	"go.uber.org/zap"
)

// Serve runs the worker protocol over conn until the client disconnects
// or a protocol-level fault makes the connection unrecoverable. It
// performs the handshake, then repeatedly reads an operation tag,
// dispatches it against mgr, and replies. The reply body is buffered
// while the operation runs: on success a bare LAST closes the stderr
// sub-protocol and the buffered body follows it; on failure a DaemonError
// is sent in place of the body. An unsupported operation is answered with
// a DaemonError and then ends the connection.
func Serve(ctx context.Context, conn net.Conn, mgr *store.Manager, log *zap.Logger) error {
	// Unblock any in-flight read/write the moment ctx is canceled (server
	// shutdown), rather than waiting for the client to notice on its own.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	info, err := Handshake(r, w)
	if err != nil {
		return err
	}

	sess := newSession(info.Version)

	for {
		op, err := readOperation(r)
		if err != nil {
			return err
		}

		log.Debug("dispatch", zap.Stringer("op", op))

		if !op.Supported() {
			if werr := writeStderrError(w, proto.Unsupported(op)); werr != nil {
				return &proto.ProtocolError{Op: "write unsupported reply", Err: werr}
			}

			if err := w.Flush(); err != nil {
				return &proto.ProtocolError{Op: "flush unsupported reply", Err: err}
			}

			return proto.Unsupported(op)
		}

		var reply bytes.Buffer
		rw := bufio.NewWriter(&reply)

		derr := dispatchOne(ctx, op, r, rw, mgr, sess, log)
		if derr != nil {
			if werr := writeStderrError(w, derr); werr != nil {
				return &proto.ProtocolError{Op: "write error reply", Err: werr}
			}
		} else {
			if werr := writeStderrLast(w); werr != nil {
				return &proto.ProtocolError{Op: "write reply terminator", Err: werr}
			}

			_ = rw.Flush() // writes into a bytes.Buffer, which cannot fail

			if _, werr := w.Write(reply.Bytes()); werr != nil {
				return &proto.ProtocolError{Op: "write reply body", Err: werr}
			}
		}

		if err := w.Flush(); err != nil {
			return &proto.ProtocolError{Op: "flush reply", Err: err}
		}
	}
}

func readOperation(r *bufio.Reader) (proto.Operation, error) {
	tag, err := wire.ReadUint64(r)
	if err != nil {
		return 0, err
	}

	return proto.Operation(tag), nil
}

// dispatchOne executes a single supported operation. A non-nil
// *proto.DaemonError return means the operation completed (the
// connection stays open) but reports a domain-level failure to the
// client; a non-nil plain error from a wire.Read*/Write* call instead
// propagates up through Serve's caller as an unrecoverable protocol
// fault, since the codec may now be desynchronized.
func dispatchOne(
	ctx context.Context,
	op proto.Operation,
	r *bufio.Reader,
	w *bufio.Writer,
	mgr *store.Manager,
	sess *session,
	log *zap.Logger,
) *proto.DaemonError {
	switch op {
	case proto.OpNop:
		return nil

	case proto.OpSetOptions:
		settings, err := proto.ReadClientSettings(r)
		if err != nil {
			return proto.NewDaemonError(fmt.Sprintf("read client settings: %s", err))
		}

		sess.settings = *settings

		log.Debug("client settings accepted, unenforced",
			zap.Uint64("max_build_jobs", settings.MaxBuildJobs),
			zap.Uint64("max_silent_time", settings.MaxSilentTime),
			zap.Bool("keep_failed", settings.KeepFailed),
		)

		return nil

	case proto.OpQueryPathInfo:
		path, err := wire.ReadString(r, proto.MaxStringSize)
		if err != nil {
			return proto.NewDaemonError(fmt.Sprintf("read path: %s", err))
		}

		info, _ := mgr.Lookup(path)

		if werr := proto.WritePathInfoOptional(w, info); werr != nil {
			return proto.NewDaemonError(fmt.Sprintf("write path info: %s", werr))
		}

		return nil

	case proto.OpQueryValidPaths:
		paths, err := wire.ReadStrings(r, proto.MaxStringSize)
		if err != nil {
			return proto.NewDaemonError(fmt.Sprintf("read paths: %s", err))
		}

		if _, err := wire.ReadBool(r); err != nil { // substitute flag, unused
			return proto.NewDaemonError(fmt.Sprintf("read substitute flag: %s", err))
		}

		valid := mgr.ValidSubset(paths)

		if werr := wire.WriteStrings(w, valid); werr != nil {
			return proto.NewDaemonError(fmt.Sprintf("write valid paths: %s", werr))
		}

		return nil

	case proto.OpAddMultipleToStore:
		return dispatchAddMultipleToStore(r, mgr)

	case proto.OpBuildDerivation:
		return dispatchBuildDerivation(ctx, r, w, mgr, sess, log)

	case proto.OpNarFromPath:
		return dispatchNarFromPath(r, w, mgr)

	default:
		return proto.Unsupported(op)
	}
}

func dispatchAddMultipleToStore(r *bufio.Reader, mgr *store.Manager) *proto.DaemonError {
	count, err := wire.ReadUint64(r)
	if err != nil {
		return proto.NewDaemonError(fmt.Sprintf("read item count: %s", err))
	}

	for i := uint64(0); i < count; i++ {
		info, err := proto.ReadKeyedPathInfo(r)
		if err != nil {
			return proto.NewDaemonError(fmt.Sprintf("read path info for item %d: %s", i, err))
		}

		fr := wire.NewFramedReader(r)
		narReader := archive.NewReader(fr)

		if err := mgr.IngestArchive(info, narReader); err != nil {
			_ = fr.Drain()

			return proto.NewDaemonError(fmt.Sprintf("ingest %s: %s", info.StorePath, err))
		}

		if err := fr.Drain(); err != nil {
			return proto.NewDaemonError(fmt.Sprintf("drain archive for %s: %s", info.StorePath, err))
		}
	}

	return nil
}

func dispatchBuildDerivation(
	ctx context.Context,
	r *bufio.Reader,
	w *bufio.Writer,
	mgr *store.Manager,
	sess *session,
	log *zap.Logger,
) *proto.DaemonError {
	drvPath, err := wire.ReadString(r, proto.MaxStringSize)
	if err != nil {
		return proto.NewDaemonError(fmt.Sprintf("read derivation path: %s", err))
	}

	drv, err := proto.ReadBasicDerivation(r)
	if err != nil {
		return proto.NewDaemonError(fmt.Sprintf("read derivation: %s", err))
	}

	drv.Name = drvPath

	modeRaw, err := wire.ReadUint64(r)
	if err != nil {
		return proto.NewDaemonError(fmt.Sprintf("read build mode: %s", err))
	}

	log.Info("building derivation", zap.String("drv", drvPath))

	result, err := mgr.Build(ctx, drv, proto.BuildMode(modeRaw), sess.settings.BuildCores)
	if err != nil {
		return proto.NewDaemonError(fmt.Sprintf("build %s: %s", drvPath, err))
	}

	if werr := proto.WriteBuildResult(w, result); werr != nil {
		return proto.NewDaemonError(fmt.Sprintf("write build result: %s", werr))
	}

	return nil
}

func dispatchNarFromPath(r *bufio.Reader, w *bufio.Writer, mgr *store.Manager) *proto.DaemonError {
	path, err := wire.ReadString(r, proto.MaxStringSize)
	if err != nil {
		return proto.NewDaemonError(fmt.Sprintf("read path: %s", err))
	}

	info, ok := mgr.Lookup(path)
	if !ok {
		return proto.NewDaemonError(fmt.Sprintf("path %s is not valid", path))
	}

	tree, err := archive.PackDir(mgr.StorePath(baseNameOf(info.StorePath)))
	if err != nil {
		return proto.NewDaemonError(fmt.Sprintf("pack %s: %s", path, err))
	}

	defer archive.CloseTree(tree)

	// NarFromPath's reply is the raw, self-delimiting NAR token stream
	// written directly to the connection — unlike AddMultipleToStore's
	// request side, there is no length-prefix framing here; the client
	// recognizes the archive's own closing tokens as the end of the
	// reply.
	if err := archive.NewWriter(w).WriteTree(tree); err != nil {
		return proto.NewDaemonError(fmt.Sprintf("write nar archive: %s", err))
	}

	return nil
}

func baseNameOf(storePath string) string {
	for i := len(storePath) - 1; i >= 0; i-- {
		if storePath[i] == '/' {
			return storePath[i+1:]
		}
	}

	return storePath
}
