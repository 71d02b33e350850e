package daemon

import (
	"bufio"

	"github.com/nixlite/nixd/internal/proto"
	"github.com/nixlite/nixd/internal/wire"
)

// writeStderrLast writes the StderrLast tag that terminates a stretch of
// the stderr/progress sub-protocol, handing control back to the client
// (either to read a reply, or, during the handshake, to start issuing
// operations).
func writeStderrLast(w *bufio.Writer) error {
	return wire.WriteUint64(w, uint64(proto.StderrLast))
}

// writeStderrError reports a DaemonError to the client in place of a
// reply. nixd never emits traces of its own; Traces is written empty.
func writeStderrError(w *bufio.Writer, derr *proto.DaemonError) error {
	if err := wire.WriteUint64(w, uint64(proto.StderrError)); err != nil {
		return err
	}

	if err := wire.WriteString(w, derr.Type); err != nil {
		return err
	}

	if err := wire.WriteUint64(w, uint64(derr.Level)); err != nil {
		return err
	}

	if err := wire.WriteString(w, derr.Name); err != nil {
		return err
	}

	if err := wire.WriteString(w, derr.Message); err != nil {
		return err
	}

	if err := wire.WriteUint64(w, uint64(len(derr.Traces))); err != nil {
		return err
	}

	for _, tr := range derr.Traces {
		if err := wire.WriteUint64(w, tr.HavePos); err != nil {
			return err
		}

		if err := wire.WriteString(w, tr.Message); err != nil {
			return err
		}
	}

	return nil
}

// writeStderrLine emits a single progress line to the client as a
// StderrWrite message. No operation in this daemon calls it: the sandbox
// captures a builder's output, and that output is not forwarded to the
// client.
func writeStderrLine(w *bufio.Writer, line string) error {
	if err := wire.WriteUint64(w, uint64(proto.StderrWrite)); err != nil {
		return err
	}

	return wire.WriteString(w, line)
}
