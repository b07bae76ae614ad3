package server

import (
	"errors"
	"net"
)

// acceptLoop accepts gameplay connections and spawns a worker per transport.
// It exits on listener close or a fatal accept error.
func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Errorw("accept failed", "err", err)
			return
		}
		sess := s.reg.AddConnection(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(sess)
		}()
	}
}
