// Command nixd serves the Nix worker protocol over a Unix socket,
// backed by an in-memory store index and a sandboxed build executor.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nixlite/nixd/internal/config"
	"github.com/nixlite/nixd/internal/daemon"
	"github.com/nixlite/nixd/internal/sandbox"
	"github.com/nixlite/nixd/internal/store"
	"go.uber.org/zap"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "nixd:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cli, err := config.Parse(args)
	if err != nil {
		return err
	}

	cfg, err := config.Resolve(cli)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	if err := os.MkdirAll(cfg.Store, 0o755); err != nil {
		return fmt.Errorf("create store root %s: %w", cfg.Store, err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Socket), 0o755); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	_ = os.Remove(cfg.Socket) // a stale socket from a previous run blocks Listen

	listener, err := net.Listen("unix", cfg.Socket)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Socket, err)
	}
	defer listener.Close()

	launcher := &sandbox.Launcher{BwrapPath: cfg.Bwrap, ShellPath: cfg.Shell, StoreRoot: cfg.Store}
	mgr := store.New(cfg.Store, launcher, log, wallClock)

	srv := &daemon.Server{Listener: listener, Manager: mgr, Log: log}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("nixd listening", zap.String("socket", cfg.Socket), zap.String("store", cfg.Store))

	return srv.Run(ctx)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	return cfg.Build()
}

func wallClock() uint64 {
	return uint64(time.Now().Unix())
}
