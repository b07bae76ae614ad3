package server

import (
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/lab1702/tank2d-server/game"
	"github.com/lab1702/tank2d-server/metrics"
	"github.com/lab1702/tank2d-server/physics"
	"github.com/lab1702/tank2d-server/protocol"
	"github.com/lab1702/tank2d-server/session"
)

// Match formation floors: damage is floored so engagements resolve inside
// the fallback window, and bot fire is capped for responsiveness.
const (
	minProjectileDamage     = 50
	maxBotFireIntervalTicks = 5
	botSpawnSpacing         = 7.0
)

// runMatchmaker polls the queue, paces bot fill against the fill timeout,
// publishes lobby status and forms matches.
func (s *Server) runMatchmaker() {
	s.log.Infow("matchmaker started", "poll_ms", s.cfg.MatchmakerPollMs)
	poll := time.Duration(s.cfg.MatchmakerPollMs) * time.Millisecond
	for {
		select {
		case <-s.done:
			return
		case <-time.After(poll):
		}
		s.matchmakerPass()
	}
}

func (s *Server) matchmakerPass() {
	maxPlayers := int(s.cfg.MaxPlayersPerMatch)
	queued := s.reg.SnapshotQueue()
	metrics.QueueDepth.Set(float64(len(queued)))

	var earliest time.Time
	for _, q := range queued {
		if earliest.IsZero() || q.QueueJoinTime.Before(earliest) {
			earliest = q.QueueJoinTime
		}
	}

	// Staged bot fill: raise the floor to 25/50/75/100% of the lobby as the
	// oldest waiter approaches the fill timeout.
	if len(queued) > 0 && len(queued) < maxPlayers && s.cfg.FillTimeoutSeconds > 0 {
		waited := time.Since(earliest).Seconds()
		frac := waited / float64(s.cfg.FillTimeoutSeconds)
		targetFrac := 0.0
		switch {
		case frac >= 1.0:
			targetFrac = 1.0
		case frac >= 0.75:
			targetFrac = 0.75
		case frac >= 0.5:
			targetFrac = 0.5
		case frac >= 0.25:
			targetFrac = 0.25
		}
		target := int(math.Ceil(targetFrac * float64(maxPlayers)))
		if target > maxPlayers {
			target = maxPlayers
		}
		if len(queued) < target {
			s.reg.CreateBots(target - len(queued))
			queued = s.reg.SnapshotQueue()
		}
		if frac >= 1.0 && len(queued) < maxPlayers {
			s.reg.CreateBots(maxPlayers - len(queued))
			queued = s.reg.SnapshotQueue()
		}
	}

	// Lobby status to every waiting human; all of them observe this same
	// queue snapshot.
	if len(queued) > 0 {
		playersNow := uint32(len(queued))
		var countdown, projectedFill uint32
		if s.cfg.FillTimeoutSeconds > 0 && !earliest.IsZero() {
			waited := int64(time.Since(earliest).Seconds())
			if waited < 0 {
				waited = 0
			}
			if waited < int64(s.cfg.FillTimeoutSeconds) {
				countdown = s.cfg.FillTimeoutSeconds - uint32(waited)
			}
			if playersNow < s.cfg.MaxPlayersPerMatch {
				projectedFill = s.cfg.MaxPlayersPerMatch - playersNow
			}
		}
		needed := uint32(0)
		if s.cfg.MaxPlayersPerMatch > playersNow {
			needed = s.cfg.MaxPlayersPerMatch - playersNow
		}
		state := "waiting"
		if countdown > 0 {
			state = "countdown"
		}
		for i, sess := range queued {
			if sess.IsBot {
				continue
			}
			s.reg.PushMessage(sess, &protocol.QueueStatusUpdate{
				Position:           uint32(i + 1),
				PlayersInQueue:     playersNow,
				NeededForMatch:     needed,
				TimeoutSecondsLeft: countdown,
				LobbyState:         state,
				LobbyCountdown:     countdown,
				ProjectedBotFill:   projectedFill,
			})
		}
	}

	if len(queued) >= maxPlayers {
		s.formMatch(queued[:maxPlayers])
	}
}

// formMatch atomically pops the group, builds the physics world and tanks,
// announces MatchStart, seeds the baseline snapshot and spawns the runtime.
func (s *Server) formMatch(group []*session.Session) {
	s.reg.PopFromQueue(group)
	seed := rand.Uint32()
	matchID := "m_" + uuid.NewString()[:8]

	tuning := game.Tuning{
		TickRate:                  s.cfg.TickRate,
		SnapshotIntervalTicks:     s.cfg.SnapshotIntervalTicks,
		FullSnapshotIntervalTicks: s.cfg.FullSnapshotIntervalTicks,
		BotFireIntervalTicks:      min(s.cfg.BotFireIntervalTicks, maxBotFireIntervalTicks),
		MovementSpeed:             s.cfg.MovementSpeed,
		ProjectileDamage:          max(s.cfg.ProjectileDamage, minProjectileDamage),
		ReloadIntervalSec:         s.cfg.ReloadIntervalSec,
		ProjectileSpeed:           s.cfg.ProjectileSpeed,
		ProjectileDensity:         s.cfg.ProjectileDensity,
		FireCooldownSec:           s.cfg.FireCooldownSec,
		HullDensity:               s.cfg.HullDensity,
		TurretDensity:             s.cfg.TurretDensity,
		DisableBotFire:            s.cfg.DisableBotFire,
		Quantize:                  s.cfg.SnapshotQuantize,
		MapWidth:                  s.cfg.MapWidth,
		MapHeight:                 s.cfg.MapHeight,
	}

	world := physics.NewWorld()
	tanks := make([]*physics.Tank, 0, len(group))
	entityID := uint32(1)
	botIndex := 0
	for _, sess := range group {
		x, y := 0.0, 0.0
		if sess.IsBot {
			// Bots line up left of the origin so a lone human spawns clear.
			x = -botSpawnSpacing * float64(botIndex+1)
			botIndex++
		}
		tank := physics.CreateTankWithTurret(world, x, y, entityID, tuning.HullDensity, tuning.TurretDensity)
		tank.FireCooldownMax = tuning.FireCooldownSec
		sess.TankEntityID = tank.EntityID
		tanks = append(tanks, tank)
		entityID++

		s.reg.PushMessage(sess, &protocol.MatchStart{
			MatchID:  matchID,
			TickRate: s.cfg.TickRate,
			Seed:     seed,
		})
	}

	m := game.NewMatch(matchID, tuning, group, tanks, world)
	baseline := m.BuildFullSnapshot() // server_tick 0, pre-populates the delta cache
	for _, sess := range group {
		s.reg.PushMessage(sess, baseline)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		m.Run(s.reg, s.log, s.done)
	}()
	s.log.Infow("match created", "match", matchID, "players", len(group), "bots", botIndex)
}
