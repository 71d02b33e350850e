// Package daemon implements the worker protocol engine: the connection
// handshake, the operation dispatch loop, and the stderr/progress
// sub-protocol that precedes every reply. It holds no store state of its
// own; every operation is served by delegating to a store.Manager.
package daemon

import (
	"bufio"
	"fmt"
	"io"

	"github.com/nixlite/nixd/internal/proto"
	"github.com/nixlite/nixd/internal/wire"
)

// HandshakeInfo holds the negotiated outcome of a successful handshake.
type HandshakeInfo struct {
	Version uint64
}

// Handshake performs the server side of the worker protocol handshake:
// the client sends its magic, the server answers with its own magic and
// preferred version, the client replies with its negotiated version plus
// two obsolete fields that are read and discarded, and the server closes
// the exchange with a stderr-terminator so the client can start issuing
// operations.
func Handshake(r *bufio.Reader, w *bufio.Writer) (*HandshakeInfo, error) {
	clientMagic, err := wire.ReadUint64(r)
	if err != nil {
		return nil, &proto.ProtocolError{Op: "handshake read client magic", Err: err}
	}

	if clientMagic != proto.WorkerMagic1 {
		return nil, &proto.ProtocolError{
			Op:  "handshake validate client magic",
			Err: fmt.Errorf("expected %#x, got %#x", proto.WorkerMagic1, clientMagic),
		}
	}

	if err := wire.WriteUint64(w, proto.WorkerMagic2); err != nil {
		return nil, &proto.ProtocolError{Op: "handshake write server magic", Err: err}
	}

	if err := wire.WriteUint64(w, proto.ProtocolVersion); err != nil {
		return nil, &proto.ProtocolError{Op: "handshake write server version", Err: err}
	}

	if err := w.Flush(); err != nil {
		return nil, &proto.ProtocolError{Op: "handshake flush server greeting", Err: err}
	}

	clientVersion, err := wire.ReadUint64(r)
	if err != nil {
		return nil, &proto.ProtocolError{Op: "handshake read client version", Err: err}
	}

	if clientVersion>>8 != proto.ProtocolMajor || clientVersion&0xff < proto.MinSupportedMinor {
		return nil, &proto.ProtocolError{
			Op:  "handshake validate client version",
			Err: fmt.Errorf("client protocol version %#x is too old", clientVersion),
		}
	}

	// Two obsolete client-sent fields: CPU affinity (bool, v1.14+) and
	// reserve-space (bool, v1.11+). Older clients may omit them entirely;
	// a short read here is benign end-of-handshake, not a fault.
	if _, err := wire.ReadBool(r); err != nil && err != io.EOF {
		return nil, &proto.ProtocolError{Op: "handshake read cpu affinity flag", Err: err}
	}

	if _, err := wire.ReadBool(r); err != nil && err != io.EOF {
		return nil, &proto.ProtocolError{Op: "handshake read reserve space flag", Err: err}
	}

	negotiated := clientVersion
	if proto.ProtocolVersion < negotiated {
		negotiated = proto.ProtocolVersion
	}

	if err := wire.WriteString(w, daemonVersionString); err != nil {
		return nil, &proto.ProtocolError{Op: "handshake write daemon version", Err: err}
	}

	if err := wire.WriteUint64(w, uint64(proto.TrustUnknown)); err != nil {
		return nil, &proto.ProtocolError{Op: "handshake write trust level", Err: err}
	}

	if err := writeStderrLast(w); err != nil {
		return nil, &proto.ProtocolError{Op: "handshake flush stderr terminator", Err: err}
	}

	if err := w.Flush(); err != nil {
		return nil, &proto.ProtocolError{Op: "handshake flush", Err: err}
	}

	return &HandshakeInfo{Version: negotiated}, nil
}

// daemonVersionString is reported to clients during the handshake; it has
// no bearing on protocol behavior.
const daemonVersionString = "nixd-lite 0.1"
