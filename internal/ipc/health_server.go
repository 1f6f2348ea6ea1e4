package ipc

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/aatumaykin/nexbotd/internal/health"
	"github.com/aatumaykin/nexbotd/internal/logger"
)

// ErrBind means the health endpoint could not be bound.
var ErrBind = errors.New("health endpoint unavailable")

const (
	requestReadTimeout = 100 * time.Millisecond
	responseTimeout    = time.Second
	probeDialTimeout   = 500 * time.Millisecond
)

// StatusSource provides the snapshot served to clients. *health.Model
// implements it.
type StatusSource interface {
	Get() health.Status
}

// HealthServer answers health queries on a Unix-domain socket: one JSON line
// per connection, connections handled one at a time.
type HealthServer struct {
	path   string
	source StatusSource
	logger *logger.Logger

	mu       sync.Mutex
	listener net.Listener
	done     chan struct{}
}

// NewHealthServer creates a server for socketPath. It does not bind until Start.
func NewHealthServer(socketPath string, source StatusSource, log *logger.Logger) *HealthServer {
	if log == nil {
		log = logger.Discard()
	}
	return &HealthServer{
		path:   socketPath,
		source: source,
		logger: log.With(logger.Field{Key: "component", Value: "health_server"}),
	}
}

// Path returns the socket path.
func (s *HealthServer) Path() string {
	return s.path
}

// Start binds the socket and begins serving. A socket left behind by a dead
// instance is unlinked and the bind retried once; a socket with a live
// listener fails with ErrBind.
func (s *HealthServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("%w: create socket directory: %w", ErrBind, err)
	}

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		if !errors.Is(err, unix.EADDRINUSE) {
			return fmt.Errorf("%w: %s: %w", ErrBind, s.path, err)
		}
		if endpointAlive(s.path) {
			return fmt.Errorf("%w: %s: another instance is listening", ErrBind, s.path)
		}

		s.logger.Warn("removing stale health socket", logger.Field{Key: "socket", Value: s.path})
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: remove stale socket %s: %w", ErrBind, s.path, err)
		}
		ln, err = net.Listen("unix", s.path)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrBind, s.path, err)
		}
	}

	s.listener = ln
	s.done = make(chan struct{})
	go s.serve(ln, s.done)

	s.logger.Info("health server started", logger.Field{Key: "socket", Value: s.path})
	return nil
}

// Stop closes the listener, waits for the accept loop and removes the
// socket file. Calling Stop on a stopped server is a no-op.
func (s *HealthServer) Stop() error {
	s.mu.Lock()
	ln, done := s.listener, s.done
	s.listener, s.done = nil, nil
	s.mu.Unlock()

	if ln == nil {
		return nil
	}

	err := ln.Close()
	<-done

	if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) {
		err = errors.Join(err, rmErr)
	}

	s.logger.Info("health server stopped", logger.Field{Key: "socket", Value: s.path})
	return err
}

func (s *HealthServer) serve(ln net.Listener, done chan struct{}) {
	defer close(done)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("failed to accept health connection", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		s.handle(conn)
	}
}

func (s *HealthServer) handle(conn net.Conn) {
	defer conn.Close()

	// The request line is optional; whatever arrives is ignored.
	_ = conn.SetReadDeadline(time.Now().Add(requestReadTimeout))
	_, _ = bufio.NewReader(conn).ReadString('\n')

	line, err := s.source.Get().MarshalLine()
	if err != nil {
		s.logger.Error("failed to encode health status", err)
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(responseTimeout))
	if _, err := conn.Write(line); err != nil {
		s.logger.Debug("failed to write health status", logger.Field{Key: "error", Value: err.Error()})
	}
}

func endpointAlive(path string) bool {
	conn, err := net.DialTimeout("unix", path, probeDialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
