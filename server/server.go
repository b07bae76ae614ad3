// Package server wires the network-facing pieces together: the TCP listener
// and per-connection workers, the matchmaker, the heartbeat monitor and the
// metrics/debug HTTP endpoint.
package server

import (
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/lab1702/tank2d-server/config"
	"github.com/lab1702/tank2d-server/session"
)

// Server owns the long-running tasks of the process. All of them observe the
// shutdown channel at their next suspension point.
type Server struct {
	cfg config.Server
	log *zap.SugaredLogger
	reg *session.Manager

	ln       net.Listener
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a server around a fresh session registry.
func New(cfg config.Server, log *zap.SugaredLogger) *Server {
	return &Server{
		cfg:  cfg,
		log:  log,
		reg:  session.NewManager(log),
		done: make(chan struct{}),
	}
}

// Registry exposes the session registry (used by tests).
func (s *Server) Registry() *session.Manager { return s.reg }

// Done exposes the shutdown channel observed by all loops.
func (s *Server) Done() <-chan struct{} { return s.done }

// Start binds the gameplay listener and spawns every background task. It
// returns once the server is accepting connections.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.ListenPort))
	if err != nil {
		return fmt.Errorf("server: listen on %d: %w", s.cfg.ListenPort, err)
	}
	s.ln = ln
	s.log.Infow("listener started", "addr", ln.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runMatchmaker()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runHeartbeatMonitor()
	}()

	if s.cfg.MetricsPort != 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runMetricsEndpoint()
		}()
	}
	return nil
}

// Port returns the actually bound gameplay port (useful when configured 0).
func (s *Server) Port() int {
	if s.ln == nil {
		return 0
	}
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Shutdown signals every loop and waits for them to drain.
func (s *Server) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.ln != nil {
			_ = s.ln.Close()
		}
	})
	s.wg.Wait()
}
