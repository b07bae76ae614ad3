package game

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/lab1702/tank2d-server/metrics"
	"github.com/lab1702/tank2d-server/physics"
	"github.com/lab1702/tank2d-server/protocol"
	"github.com/lab1702/tank2d-server/session"
)

// Fallback and hard-cap durations in seconds, per the victory rules.
const (
	graceFactorTicks   = 2   // grace period = 2 * tick rate
	fallbackSeconds    = 60  // normal fallback timeout
	noBotFireSeconds   = 300 // fallback/cap when bot fire is disabled
	singlePlayerCapSec = 120 // hard cap for matches formed with one player
)

// Run drives the match at the configured tick rate until a victory, a
// timeout or process shutdown. It owns the physics world exclusively.
func (m *Match) Run(reg *session.Manager, log *zap.SugaredLogger, done <-chan struct{}) {
	log.Infow("match start", "match", m.ID, "players", len(m.Players))
	metrics.ActiveMatches.Inc()
	bots := 0
	for _, p := range m.Players {
		if p.IsBot {
			bots++
		}
	}
	metrics.BotsInMatch.Add(float64(bots))

	defer func() {
		for _, p := range m.Projectiles {
			m.World.DestroyBody(p.Body)
		}
		m.Projectiles = nil
		metrics.ActiveMatches.Dec()
		metrics.BotsInMatch.Sub(float64(bots))
		log.Infow("match end", "match", m.ID, "tick", m.ServerTick, "winner", m.WinnerEntity)
	}()

	dt := 1.0 / float64(m.Tuning.TickRate)
	tickInterval := time.Second / time.Duration(m.Tuning.TickRate)
	next := time.Now()

	for {
		now := time.Now()
		if now.Before(next) {
			select {
			case <-done:
				return
			case <-time.After(next.Sub(now)):
			}
			continue
		}
		select {
		case <-done:
			return
		default:
		}
		tickStart := now
		next = next.Add(tickInterval)

		m.advanceTick(reg, dt)

		if m.evaluateVictory(reg, log) {
			return
		}

		metrics.ProjectilesActive.Set(float64(len(m.Projectiles)))
		metrics.TickDuration.Observe(time.Since(tickStart).Seconds())
	}
}

// advanceTick runs one simulation step: inputs, physics, combat resolution,
// projectile bookkeeping, snapshot emission and the kill feed flush, in that
// order.
func (m *Match) advanceTick(reg *session.Manager, dt float64) {
	m.ServerTick++

	m.sweepDisconnected(reg)
	if len(m.reloadTimers) != len(m.Tanks) {
		grown := make([]float64, len(m.Tanks))
		copy(grown, m.reloadTimers)
		m.reloadTimers = grown
	}

	for i := range m.Tanks {
		m.stepParticipant(reg, i, dt)
	}
	for _, t := range m.Tanks {
		if t.FireCooldownCur > 0 {
			t.FireCooldownCur = math.Max(0, t.FireCooldownCur-dt)
		}
	}

	m.World.Step(dt, 4, 2)
	m.processContacts(reg)
	m.syncProjectiles(dt)
	m.cullOutOfBounds()

	if m.Tuning.SnapshotIntervalTicks > 0 && m.ServerTick%uint64(m.Tuning.SnapshotIntervalTicks) == 0 {
		m.emitSnapshot(reg)
	}
	m.flushKillFeed(reg)
}

// sweepDisconnected destroys tanks whose non-bot session left the registry.
func (m *Match) sweepDisconnected(reg *session.Manager) {
	active := make(map[string]struct{})
	for _, s := range reg.SnapshotAllSessions() {
		if id := reg.CurrentSessionID(s); id != "" {
			active[id] = struct{}{}
		}
	}
	for i, sess := range m.Players {
		if sess.IsBot {
			continue // bots persist until match end
		}
		id := reg.CurrentSessionID(sess)
		if id == "" {
			continue
		}
		if _, ok := active[id]; ok {
			continue
		}
		tank := m.Tanks[i]
		if !tank.Alive() {
			continue
		}
		tank.HP = 0
		m.removedTanksSinceFull = append(m.removedTanksSinceFull, tank.EntityID)
		m.killFeed = append(m.killFeed, protocol.KillFeedEntry{VictimID: tank.EntityID})
		m.broadcast(reg, &protocol.TankDestroyed{VictimID: tank.EntityID})
	}
}

// stepParticipant applies one tick of input, drive, turret aim, firing and
// reload for the participant at index i.
func (m *Match) stepParticipant(reg *session.Manager, i int, dt float64) {
	tank := m.Tanks[i]
	if !tank.Alive() {
		return
	}
	sess := m.Players[i]
	in := reg.InputCopy(sess)
	if sess.IsBot {
		in = m.botInput(i, in)
		reg.SetBotInput(sess, in)
	}

	physics.ApplyTrackedDrive(physics.DriveInput{
		Forward: float64(in.MoveDir),
		Turn:    float64(in.TurnDir),
		Brake:   in.Brake,
	}, tank)

	if math.Abs(float64(in.TurretTurn)) > 1e-4 {
		desired := tank.Turret.Angle() + float64(in.TurretTurn)*TurretTurnSpeedDeg*dt*math.Pi/180
		physics.UpdateTurretAim(tank, desired)
	}

	if in.Fire && tank.Ammo > 0 {
		if body := physics.FireProjectileIfReady(tank, m.World, m.Tuning.ProjectileSpeed, m.Tuning.ProjectileDensity); body != nil {
			dir := tank.Turret.Forward()
			muzzle := tank.Turret.Position().Add(dir.Scale(physics.MuzzleOffset))
			p := &Projectile{
				ID:    m.nextProjectileID,
				X:     muzzle.X,
				Y:     muzzle.Y,
				VX:    dir.X * m.Tuning.ProjectileSpeed,
				VY:    dir.Y * m.Tuning.ProjectileSpeed,
				Owner: tank.EntityID,
				Body:  body,
			}
			m.nextProjectileID++
			m.Projectiles = append(m.Projectiles, p)
			m.bodyToProjectile[body] = p
			if sess.IsBot {
				reg.ClearBotFire(sess)
			}
		}
	}

	// Reload: accumulate toward one shell at a time while below capacity.
	if tank.Ammo < MaxAmmo {
		m.reloadTimers[i] += dt
		if m.reloadTimers[i] >= m.Tuning.ReloadIntervalSec {
			tank.Ammo++
			m.reloadTimers[i] = 0
		}
	} else {
		m.reloadTimers[i] = 0
	}
}

// processContacts resolves this tick's begin-touch events into damage, kills
// and projectile destruction.
func (m *Match) processContacts(reg *session.Manager) {
	for _, c := range m.World.BeginContacts() {
		proj, other := m.matchProjectile(c)
		if proj == nil {
			continue
		}
		ti, isTank := m.hullIndex[other]
		if !isTank {
			continue
		}
		tank := m.Tanks[ti]
		if !tank.Alive() {
			continue
		}
		if tank.EntityID == proj.Owner {
			continue // no friendly fire from your own shell
		}

		damage := m.Tuning.ProjectileDamage
		before := tank.HP
		if uint32(tank.HP) <= damage {
			tank.HP = 0
		} else {
			tank.HP -= uint16(damage)
		}
		m.broadcast(reg, &protocol.DamageEvent{
			VictimID:    tank.EntityID,
			AttackerID:  proj.Owner,
			Amount:      damage,
			RemainingHP: uint32(tank.HP),
		})
		if before > 0 && tank.HP == 0 {
			m.removedTanksSinceFull = append(m.removedTanksSinceFull, tank.EntityID)
			m.killFeed = append(m.killFeed, protocol.KillFeedEntry{VictimID: tank.EntityID, AttackerID: proj.Owner})
			m.broadcast(reg, &protocol.TankDestroyed{VictimID: tank.EntityID, AttackerID: proj.Owner})
		}
		m.destroyProjectile(proj)
	}
}

// matchProjectile identifies which side of a contact is a live projectile.
func (m *Match) matchProjectile(c physics.Contact) (*Projectile, *physics.Body) {
	if p, ok := m.bodyToProjectile[c.A]; ok {
		return p, c.B
	}
	if p, ok := m.bodyToProjectile[c.B]; ok {
		return p, c.A
	}
	return nil, nil
}

// destroyProjectile removes a projectile exactly once.
func (m *Match) destroyProjectile(p *Projectile) {
	if _, live := m.bodyToProjectile[p.Body]; !live {
		return
	}
	delete(m.bodyToProjectile, p.Body)
	m.World.DestroyBody(p.Body)
	m.removedProjectilesSinceFull = append(m.removedProjectilesSinceFull, p.ID)
	for i, q := range m.Projectiles {
		if q == p {
			m.Projectiles = append(m.Projectiles[:i], m.Projectiles[i+1:]...)
			break
		}
	}
}

// syncProjectiles pulls positions from physics bodies, falling back to
// ballistic integration when a body went missing.
func (m *Match) syncProjectiles(dt float64) {
	for _, p := range m.Projectiles {
		if p.Body.Valid() {
			pos := p.Body.Position()
			p.X, p.Y = pos.X, pos.Y
		} else {
			p.X += p.VX * dt
			p.Y += p.VY * dt
		}
	}
}

// worldBound is the out-of-bounds cull distance for projectiles.
const worldBound = 100.0

func (m *Match) cullOutOfBounds() {
	for i := len(m.Projectiles) - 1; i >= 0; i-- {
		p := m.Projectiles[i]
		if math.Abs(p.X) <= worldBound && math.Abs(p.Y) <= worldBound {
			continue
		}
		delete(m.bodyToProjectile, p.Body)
		m.World.DestroyBody(p.Body)
		m.removedProjectilesSinceFull = append(m.removedProjectilesSinceFull, p.ID)
		m.Projectiles = append(m.Projectiles[:i], m.Projectiles[i+1:]...)
	}
}

func (m *Match) flushKillFeed(reg *session.Manager) {
	if len(m.killFeed) == 0 {
		return
	}
	events := make([]protocol.KillFeedEntry, len(m.killFeed))
	copy(events, m.killFeed)
	m.broadcast(reg, &protocol.KillFeedUpdate{Events: events})
	m.killFeed = m.killFeed[:0]
}

// evaluateVictory applies the end-of-match rules and reports whether the
// loop should stop.
func (m *Match) evaluateVictory(reg *session.Manager, log *zap.SugaredLogger) bool {
	tickRate := uint64(m.Tuning.TickRate)
	if !m.Over && m.ServerTick > tickRate*graceFactorTicks {
		alive := 0
		lastAlive := uint32(0)
		for _, t := range m.Tanks {
			if t.Alive() {
				alive++
				lastAlive = t.EntityID
			}
		}
		if alive <= 1 && m.InitialPlayerCount > 1 {
			m.Over = true
			m.WinnerEntity = lastAlive
		} else {
			fallback := uint64(fallbackSeconds)
			if m.Tuning.DisableBotFire {
				fallback = noBotFireSeconds
			}
			if m.ServerTick > tickRate*fallback {
				m.Over = true
			}
		}
		if m.Over {
			m.broadcast(reg, &protocol.MatchEnd{
				MatchID:        m.ID,
				WinnerEntityID: m.WinnerEntity,
				ServerTick:     uint32(m.ServerTick),
			})
			log.Infow("match over", "match", m.ID, "winner", m.WinnerEntity)
		}
	}

	// Hard cap guarantees eventual termination regardless of victory logic.
	capSeconds := uint64(fallbackSeconds)
	if m.InitialPlayerCount <= 1 {
		capSeconds = singlePlayerCapSec
	} else if m.Tuning.DisableBotFire {
		capSeconds = noBotFireSeconds
	}
	return m.Over || m.ServerTick > tickRate*capSeconds
}
