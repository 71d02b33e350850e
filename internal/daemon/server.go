package daemon

import (
	"context"
	"errors"
	"net"

	"github.com/nixlite/nixd/internal/store"
	"go.uber.org/zap"
)

// Server accepts worker protocol connections on a Unix socket and serves
// each on its own goroutine against a shared store.Manager.
type Server struct {
	Listener net.Listener
	Manager  *store.Manager
	Log      *zap.Logger
}

// Run accepts connections until ctx is canceled or the listener is
// closed. Each connection's Serve call inherits ctx, so canceling ctx
// also cancels any build in flight on that connection.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.Listener.Close()
	}()

	for {
		conn, err := s.Listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			return err
		}

		go s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	log := s.Log.With(zap.String("remote", conn.RemoteAddr().String()))

	if err := Serve(ctx, conn, s.Manager, log); err != nil {
		log.Debug("connection closed", zap.Error(err))
	}
}
