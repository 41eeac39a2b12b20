package healthcheck

import (
	"context"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
)

// ReadyMsg is the byte a ready server writes to every waiter.
const ReadyMsg = 0x01

// Server announces collection readiness over a unix socket. Clients
// connect and block; once every collector has settled its attach the
// server writes ReadyMsg to each of them. The wait command is the
// main consumer, so scripts can start their workload only after the
// probes are armed.
type Server struct {
	ln         net.Listener
	readyCh    chan struct{}
	socketPath string
	logger     log.Logger
}

func NewServer(socketPath string, logger log.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		readyCh:    make(chan struct{}),
		logger:     logger.With().Str("component", "healthcheck").Logger(),
	}
}

// Listen binds the unix socket and starts accepting waiters.
func (s *Server) Listen(ctx context.Context) error {
	// A stale socket from a crashed run would block the bind.
	os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", s.socketPath)
	}
	s.ln = ln

	go s.accept(ctx)

	return nil
}

// NotifyReady releases every current and future waiter.
func (s *Server) NotifyReady() {
	s.logger.Debug().Msg("marking collection ready")
	close(s.readyCh)
}

// Close shuts the listener down and removes the socket.
func (s *Server) Close() error {
	if s.ln != nil {
		if err := s.ln.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("closing listener")
		}
	}

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing %s", s.socketPath)
	}

	return nil
}

func (s *Server) accept(ctx context.Context) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn().Err(err).Msg("accept error")
			continue
		}

		go s.serve(ctx, conn)
	}
}

// serve parks one waiter until readiness or shutdown.
func (s *Server) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	select {
	case <-s.readyCh:
		if _, err := conn.Write([]byte{ReadyMsg}); err != nil {
			if !errors.Is(err, syscall.EPIPE) && !errors.Is(err, syscall.ECONNRESET) {
				s.logger.Debug().Err(err).Msg("writing ready message")
			}
		}
	case <-ctx.Done():
	}
}

// WaitReady blocks until a server on socketPath reports readiness or
// the timeout passes. It tolerates the socket not existing yet, so it
// can be started before the collection process.
func WaitReady(socketPath string, timeout time.Duration) error {
	const retryInterval = 500 * time.Millisecond
	deadline := time.Now().Add(timeout)

	for {
		if time.Now().After(deadline) {
			return errors.Errorf("timed out waiting for readiness on %s", socketPath)
		}

		info, err := os.Stat(socketPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return errors.Wrap(err, "checking socket")
			}
			time.Sleep(retryInterval)
			continue
		}
		if info.Mode()&os.ModeSocket == 0 {
			return errors.Errorf("%s exists but is not a unix socket", socketPath)
		}

		conn, err := net.DialTimeout("unix", socketPath, retryInterval)
		if err != nil {
			if errors.Is(err, syscall.EACCES) {
				return errors.Wrap(err, "connecting to socket")
			}
			time.Sleep(retryInterval)
			continue
		}

		buf := make([]byte, 1)
		conn.SetReadDeadline(deadline)
		n, err := conn.Read(buf)
		conn.Close()
		if err == nil && n > 0 && buf[0] == ReadyMsg {
			return nil
		}

		// The server went away or answered with something else, such
		// as a half-started collection; retry until the deadline.
		time.Sleep(retryInterval)
	}
}
