package server

import (
	"errors"
	"net"
	"os"
	"time"

	"github.com/lab1702/tank2d-server/auth"
	"github.com/lab1702/tank2d-server/metrics"
	"github.com/lab1702/tank2d-server/netutil"
	"github.com/lab1702/tank2d-server/protocol"
	"github.com/lab1702/tank2d-server/session"
)

// Worker timing: short read polls keep the loop progressing to the mailbox
// drain even when the client is silent.
const (
	readPollTimeout = 50 * time.Millisecond
	writeTimeout    = 5 * time.Second
)

// serveConn is the per-connection worker. It alternates between draining the
// session's outbound mailbox (batched into one write) and polling the socket
// for inbound frames. On transport close or a protocol error the worker
// exits; the heartbeat monitor eventually reaps the session.
func (s *Server) serveConn(sess *session.Session) {
	conn := sess.Conn
	defer conn.Close()
	s.log.Debugw("connection open", "conn", sess.ConnectionID, "remote", conn.RemoteAddr())

	var parser netutil.FrameParser
	buf := make([]byte, 4096)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		// Flush pending outbound first, all frames in one write.
		if pending := s.reg.DrainMessages(sess); len(pending) > 0 {
			var batch []byte
			for _, msg := range pending {
				raw, err := protocol.EncodeServerMessage(msg)
				if err != nil {
					s.log.Errorw("encode outbound failed", "err", err)
					continue
				}
				batch = append(batch, netutil.BuildFrame(raw)...)
			}
			if err := s.writeAll(conn, batch); err != nil {
				return
			}
		}

		_ = conn.SetReadDeadline(time.Now().Add(readPollTimeout))
		n, err := conn.Read(buf)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			if !errors.Is(err, net.ErrClosed) && !errors.Is(err, os.ErrDeadlineExceeded) {
				s.log.Debugw("connection closed", "conn", sess.ConnectionID, "err", err)
			}
			return
		}
		parser.Feed(buf[:n])
		for {
			payload, ok, perr := parser.TryExtract()
			if perr != nil {
				s.log.Warnw("invalid frame, dropping connection", "conn", sess.ConnectionID, "err", perr)
				return
			}
			if !ok {
				break
			}
			if !s.dispatch(sess, payload) {
				return
			}
		}
	}
}

func (s *Server) writeAll(conn net.Conn, data []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	for len(data) > 0 {
		n, err := conn.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// sendNow frames and writes one message immediately, outside the mailbox.
func (s *Server) sendNow(conn net.Conn, msg protocol.ServerMessage) {
	raw, err := protocol.EncodeServerMessage(msg)
	if err != nil {
		s.log.Errorw("encode reply failed", "err", err)
		return
	}
	_ = s.writeAll(conn, netutil.BuildFrame(raw))
}

// dispatch handles one decoded frame. It returns false when the connection
// must be dropped (undecodable payload).
func (s *Server) dispatch(sess *session.Session, payload []byte) bool {
	msg, err := protocol.DecodeClientMessage(payload)
	if err != nil {
		s.log.Warnw("undecodable message, dropping connection", "conn", sess.ConnectionID, "err", err)
		return false
	}
	switch m := msg.(type) {
	case *protocol.AuthRequest:
		res := auth.Active().Validate(m.OAuthToken)
		if !res.OK {
			metrics.AuthFailures.Inc()
			s.sendNow(sess.Conn, &protocol.AuthResponse{Success: false, Reason: res.Reason})
			return true
		}
		sid := "sess_" + res.UserID
		s.reg.Authenticate(sess, sid)
		s.sendNow(sess.Conn, &protocol.AuthResponse{Success: true, SessionID: sid})
		s.log.Infow("authenticated", "conn", sess.ConnectionID, "session", sid)

	case *protocol.QueueJoin:
		// Immediate placeholder status; the matchmaker's next pass sends
		// accurate values. The hardcoded figures are part of the protocol's
		// observed behavior.
		s.sendNow(sess.Conn, &protocol.QueueStatusUpdate{
			Position:           1,
			PlayersInQueue:     1,
			NeededForMatch:     16,
			TimeoutSecondsLeft: 180,
		})
		if s.reg.IsAuthenticated(sess) {
			s.reg.Enqueue(sess)
			s.log.Infow("queued", "session", s.reg.CurrentSessionID(sess))
		}

	case *protocol.Heartbeat:
		s.reg.UpdateHeartbeat(sess)
		serverMs := uint64(time.Now().UnixMilli())
		delta := uint64(0)
		if serverMs > m.TimeMs {
			delta = serverMs - m.TimeMs
		}
		s.reg.PushMessage(sess, &protocol.HeartbeatResponse{
			SessionID:    s.reg.CurrentSessionID(sess),
			ClientTimeMs: m.TimeMs,
			ServerTimeMs: serverMs,
			DeltaMs:      delta,
		})

	case *protocol.InputCommand:
		if s.reg.IsAuthenticated(sess) {
			s.reg.UpdateInput(sess, m)
		}
	}
	return true
}
