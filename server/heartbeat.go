package server

import "time"

// heartbeatSweepInterval is how often idle sessions are reaped.
const heartbeatSweepInterval = 5 * time.Second

// runHeartbeatMonitor disconnects sessions whose heartbeat went silent for
// longer than the configured timeout. Disconnections propagate into running
// matches through the per-tick disconnect sweep.
func (s *Server) runHeartbeatMonitor() {
	for {
		select {
		case <-s.done:
			return
		case <-time.After(heartbeatSweepInterval):
		}
		s.sweepIdleSessions()
	}
}

func (s *Server) sweepIdleSessions() {
	timeout := time.Duration(s.cfg.HeartbeatTimeoutSeconds) * time.Second
	for _, sess := range s.reg.IdleSessions(timeout) {
		s.log.Warnw("heartbeat timeout, disconnecting",
			"session", s.reg.CurrentSessionID(sess),
			"timeout_s", s.cfg.HeartbeatTimeoutSeconds)
		s.reg.DisconnectSession(sess)
	}
}
