package server

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lab1702/tank2d-server/auth"
	"github.com/lab1702/tank2d-server/config"
	"github.com/lab1702/tank2d-server/netutil"
	"github.com/lab1702/tank2d-server/protocol"
)

// startTestServer boots a full server on an ephemeral port.
func startTestServer(t *testing.T, mutate func(*config.Server)) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.ListenPort = 0
	cfg.MetricsPort = 0
	cfg.MatchmakerPollMs = 50
	if mutate != nil {
		mutate(&cfg)
	}
	auth.SetActive(auth.NewProvider(cfg.AuthMode, cfg.AuthStubPrefix))
	s := New(cfg, zap.NewNop().Sugar())
	require.NoError(t, s.Start())
	t.Cleanup(s.Shutdown)
	return s
}

// testClient speaks the framed binary protocol over a real TCP connection.
type testClient struct {
	t      *testing.T
	conn   net.Conn
	parser netutil.FrameParser
}

func dialClient(t *testing.T, s *Server) *testClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", s.Port()), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn}
}

func (c *testClient) send(msg protocol.ClientMessage) {
	c.t.Helper()
	raw, err := protocol.EncodeClientMessage(msg)
	require.NoError(c.t, err)
	_, err = c.conn.Write(netutil.BuildFrame(raw))
	require.NoError(c.t, err)
}

// next returns the next server message, failing the test at the deadline.
func (c *testClient) next(timeout time.Duration) protocol.ServerMessage {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 4096)
	for {
		if payload, ok, err := c.parser.TryExtract(); err != nil {
			c.t.Fatalf("frame error: %v", err)
		} else if ok {
			msg, err := protocol.DecodeServerMessage(payload)
			require.NoError(c.t, err)
			return msg
		}
		remain := time.Until(deadline)
		if remain <= 0 {
			c.t.Fatalf("timed out waiting for a server message")
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(minDuration(remain, 100*time.Millisecond)))
		n, err := c.conn.Read(buf)
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				continue
			}
			c.t.Fatalf("read error: %v", err)
		}
		c.parser.Feed(buf[:n])
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// waitFor discards messages until one of type T arrives.
func waitFor[T protocol.ServerMessage](c *testClient, timeout time.Duration) T {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remain := time.Until(deadline)
		if remain <= 0 {
			var zero T
			c.t.Fatalf("timed out waiting for %T", zero)
		}
		if m, ok := c.next(remain).(T); ok {
			return m
		}
	}
}

// authAndQueue performs the standard join handshake.
func (c *testClient) authAndQueue() *protocol.AuthResponse {
	c.t.Helper()
	c.send(&protocol.AuthRequest{OAuthToken: "x", ClientVersion: "t"})
	resp := waitFor[*protocol.AuthResponse](c, 3*time.Second)
	require.True(c.t, resp.Success)
	require.NotEmpty(c.t, resp.SessionID)
	c.send(&protocol.QueueJoin{})
	return resp
}

func TestE2EMatchStart(t *testing.T) {
	s := startTestServer(t, func(c *config.Server) {
		c.MaxPlayersPerMatch = 1
		c.FillTimeoutSeconds = 180
		c.TickRate = 30
		c.DisableBotFire = true
	})
	c := dialClient(t, s)
	c.authAndQueue()

	// The immediate queue reply arrives before the matchmaker's pass.
	status := waitFor[*protocol.QueueStatusUpdate](c, 3*time.Second)
	require.NotZero(t, status.Position)

	start := waitFor[*protocol.MatchStart](c, 8*time.Second)
	require.NotEmpty(t, start.MatchID)
	require.Equal(t, uint32(30), start.TickRate)

	snap := waitFor[*protocol.StateSnapshot](c, 8*time.Second)
	require.Equal(t, uint32(0), snap.ServerTick)
	require.Len(t, snap.Tanks, 1)
}

func TestE2EBotFill(t *testing.T) {
	s := startTestServer(t, func(c *config.Server) {
		c.MaxPlayersPerMatch = 4
		c.FillTimeoutSeconds = 1
		c.TickRate = 60
		c.DisableBotFire = true
	})
	c := dialClient(t, s)
	c.authAndQueue()

	start := waitFor[*protocol.MatchStart](c, 6*time.Second)
	require.NotEmpty(t, start.MatchID)
	snap := waitFor[*protocol.StateSnapshot](c, 6*time.Second)
	require.Equal(t, uint32(0), snap.ServerTick)
	require.Len(t, snap.Tanks, 4, "three bots fill the lobby")
}

func TestE2EMovement(t *testing.T) {
	s := startTestServer(t, func(c *config.Server) {
		c.MaxPlayersPerMatch = 1
		c.FillTimeoutSeconds = 180
		c.TickRate = 30
		c.DisableBotFire = true
	})
	c := dialClient(t, s)
	resp := c.authAndQueue()

	waitFor[*protocol.MatchStart](c, 8*time.Second)
	baseline := waitFor[*protocol.StateSnapshot](c, 8*time.Second)
	require.Len(t, baseline.Tanks, 1)
	baseX, baseY := baseline.Tanks[0].X, baseline.Tanks[0].Y

	c.send(&protocol.InputCommand{
		SessionID:  resp.SessionID,
		ClientTick: 1,
		MoveDir:    1.0,
	})

	deadline := time.Now().Add(6 * time.Second)
	for time.Now().Before(deadline) {
		switch m := c.next(6 * time.Second).(type) {
		case *protocol.StateSnapshot:
			if len(m.Tanks) == 1 && (m.Tanks[0].X != baseX || m.Tanks[0].Y != baseY) {
				return // movement observed
			}
		case *protocol.DeltaSnapshot:
			if len(m.Tanks) == 1 && (m.Tanks[0].X != baseX || m.Tanks[0].Y != baseY) {
				return
			}
		}
	}
	t.Fatal("tank never moved away from its baseline position")
}

func TestE2EDamageAndKillFeed(t *testing.T) {
	s := startTestServer(t, func(c *config.Server) {
		c.MaxPlayersPerMatch = 2
		c.FillTimeoutSeconds = 1
		c.TickRate = 30
		c.ProjectileDamage = 50
	})
	c := dialClient(t, s)
	c.authAndQueue()

	waitFor[*protocol.MatchStart](c, 6*time.Second)

	// The bot opens fire; expect combat traffic and an aggregated kill feed.
	sawCombat := false
	sawKillFeed := false
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) && !(sawCombat && sawKillFeed) {
		switch m := c.next(15 * time.Second).(type) {
		case *protocol.DamageEvent:
			require.NotZero(t, m.VictimID)
			sawCombat = true
		case *protocol.TankDestroyed:
			sawCombat = true
		case *protocol.KillFeedUpdate:
			require.NotEmpty(t, m.Events)
			sawKillFeed = true
		}
	}
	require.True(t, sawCombat, "no DamageEvent or TankDestroyed within 15s")
	require.True(t, sawKillFeed, "no KillFeedUpdate within 15s")
}

func TestE2EDeltaSnapshots(t *testing.T) {
	s := startTestServer(t, func(c *config.Server) {
		c.MaxPlayersPerMatch = 1
		c.FillTimeoutSeconds = 180
		c.TickRate = 30
		c.DisableBotFire = true
	})
	c := dialClient(t, s)
	c.authAndQueue()

	waitFor[*protocol.MatchStart](c, 8*time.Second)
	baseline := waitFor[*protocol.StateSnapshot](c, 8*time.Second)
	require.Equal(t, uint32(0), baseline.ServerTick)

	delta := waitFor[*protocol.DeltaSnapshot](c, 10*time.Second)
	require.Equal(t, uint32(0), delta.BaseTick)

	full := waitFor[*protocol.StateSnapshot](c, 10*time.Second)
	require.Greater(t, full.ServerTick, uint32(0))
}

func TestE2EHeartbeat(t *testing.T) {
	s := startTestServer(t, nil)
	c := dialClient(t, s)
	c.send(&protocol.AuthRequest{OAuthToken: "x", ClientVersion: "t"})
	resp := waitFor[*protocol.AuthResponse](c, 3*time.Second)
	require.True(t, resp.Success)

	clientMs := uint64(time.Now().UnixMilli() - 25)
	c.send(&protocol.Heartbeat{SessionID: resp.SessionID, TimeMs: clientMs})

	hb := waitFor[*protocol.HeartbeatResponse](c, 3*time.Second)
	require.Equal(t, clientMs, hb.ClientTimeMs)
	require.GreaterOrEqual(t, hb.ServerTimeMs, clientMs)
	require.Equal(t, hb.ServerTimeMs-hb.ClientTimeMs, hb.DeltaMs)
}

func TestE2EInvalidFrameClosesConnection(t *testing.T) {
	s := startTestServer(t, nil)
	c := dialClient(t, s)

	// Zero length prefix is a protocol violation.
	_, err := c.conn.Write([]byte{0, 0, 0, 0})
	require.NoError(t, err)

	_ = c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 64)
	for {
		_, err := c.conn.Read(buf)
		if err == nil {
			continue
		}
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			t.Fatal("server did not close the connection after an invalid frame")
		}
		return // closed by server
	}
}

func TestE2EAuthFailureKeepsConnection(t *testing.T) {
	s := startTestServer(t, func(c *config.Server) {
		c.AuthMode = "stub"
	})
	c := dialClient(t, s)

	c.send(&protocol.AuthRequest{OAuthToken: "", ClientVersion: "t"})
	resp := waitFor[*protocol.AuthResponse](c, 3*time.Second)
	require.False(t, resp.Success)
	require.Equal(t, "empty_token", resp.Reason)

	// The connection stays usable: authenticate with a valid token.
	c.send(&protocol.AuthRequest{OAuthToken: "tok", ClientVersion: "t"})
	resp = waitFor[*protocol.AuthResponse](c, 3*time.Second)
	require.True(t, resp.Success)
	require.Equal(t, "sess_user_tok", resp.SessionID)
}
