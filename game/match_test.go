package game

import (
	"testing"

	"go.uber.org/zap"

	"github.com/lab1702/tank2d-server/physics"
	"github.com/lab1702/tank2d-server/protocol"
	"github.com/lab1702/tank2d-server/session"
)

const testDt = 1.0 / 30.0

func testTuning() Tuning {
	return Tuning{
		TickRate:                  30,
		SnapshotIntervalTicks:     5,
		FullSnapshotIntervalTicks: 30,
		BotFireIntervalTicks:      5,
		MovementSpeed:             2.0,
		ProjectileDamage:          50,
		ReloadIntervalSec:         3.0,
		ProjectileSpeed:           25.0,
		ProjectileDensity:         0.01,
		FireCooldownSec:           1.0,
		HullDensity:               1.0,
		TurretDensity:             0.5,
		DisableBotFire:            true,
		MapWidth:                  300,
		MapHeight:                 200,
	}
}

// newTestMatch builds a match with the given participant kinds ("human" or
// "bot") spaced 20 units apart on the x axis.
func newTestMatch(t *testing.T, reg *session.Manager, tuning Tuning, kinds ...string) *Match {
	t.Helper()
	world := physics.NewWorld()
	var players []*session.Session
	var tanks []*physics.Tank
	for i, kind := range kinds {
		var s *session.Session
		if kind == "bot" {
			s = reg.CreateBots(1)[0]
		} else {
			s = reg.AddConnection(nil)
			reg.Authenticate(s, "sess_"+string(rune('a'+i)))
		}
		tank := physics.CreateTankWithTurret(world, float64(i)*20, 0, uint32(i+1), tuning.HullDensity, tuning.TurretDensity)
		tank.FireCooldownMax = tuning.FireCooldownSec
		s.TankEntityID = tank.EntityID
		players = append(players, s)
		tanks = append(tanks, tank)
	}
	return NewMatch("m_test", tuning, players, tanks, world)
}

// injectProjectile plants a shell owned by owner directly into the world.
func injectProjectile(m *Match, owner uint32, x, y, vx, vy float64) *Projectile {
	body := physics.CreateProjectile(m.World, x, y, vx, vy, m.Tuning.ProjectileDensity)
	p := &Projectile{ID: m.nextProjectileID, X: x, Y: y, VX: vx, VY: vy, Owner: owner, Body: body}
	m.nextProjectileID++
	m.Projectiles = append(m.Projectiles, p)
	m.bodyToProjectile[body] = p
	return p
}

func drainByType[T protocol.ServerMessage](msgs []protocol.ServerMessage) []T {
	var out []T
	for _, msg := range msgs {
		if m, ok := msg.(T); ok {
			out = append(out, m)
		}
	}
	return out
}

func TestServerTickMonotonic(t *testing.T) {
	reg := session.NewManager(zap.NewNop().Sugar())
	m := newTestMatch(t, reg, testTuning(), "human", "human")
	for want := uint64(1); want <= 10; want++ {
		m.advanceTick(reg, testDt)
		if m.ServerTick != want {
			t.Fatalf("ServerTick = %d, want %d", m.ServerTick, want)
		}
	}
}

func TestMovementObservable(t *testing.T) {
	reg := session.NewManager(zap.NewNop().Sugar())
	m := newTestMatch(t, reg, testTuning(), "human", "human")
	start := m.Tanks[0].Hull.Position()

	reg.UpdateInput(m.Players[0], &protocol.InputCommand{ClientTick: 1, MoveDir: 1.0})
	for i := 0; i < int(m.Tuning.SnapshotIntervalTicks); i++ {
		m.advanceTick(reg, testDt)
	}
	end := m.Tanks[0].Hull.Position()
	if end.Sub(start).Length() <= posEpsilon {
		t.Fatalf("tank did not move within one snapshot interval: %v -> %v", start, end)
	}
}

func TestOwnProjectileNeverDamagesOwner(t *testing.T) {
	reg := session.NewManager(zap.NewNop().Sugar())
	m := newTestMatch(t, reg, testTuning(), "human", "human")
	victim := m.Tanks[0]

	// Owner's own shell sitting inside the owner's hull.
	pos := victim.Hull.Position()
	injectProjectile(m, victim.EntityID, pos.X, pos.Y, 0.1, 0)
	m.advanceTick(reg, testDt)

	msgs := reg.DrainMessages(m.Players[1])
	if dmg := drainByType[*protocol.DamageEvent](msgs); len(dmg) != 0 {
		t.Fatalf("friendly fire produced %d damage events", len(dmg))
	}
	if victim.HP != 100 {
		t.Fatalf("owner hp = %d after own shell contact", victim.HP)
	}
}

func TestHitDamagesAndKillsExactlyOnce(t *testing.T) {
	reg := session.NewManager(zap.NewNop().Sugar())
	m := newTestMatch(t, reg, testTuning(), "human", "human")
	victim := m.Tanks[0]
	victim.HP = 50 // one hit at damage 50 is lethal

	pos := victim.Hull.Position()
	injectProjectile(m, m.Tanks[1].EntityID, pos.X, pos.Y, 0.1, 0)
	m.advanceTick(reg, testDt)

	msgs := reg.DrainMessages(m.Players[1])
	dmg := drainByType[*protocol.DamageEvent](msgs)
	if len(dmg) != 1 {
		t.Fatalf("got %d damage events, want 1", len(dmg))
	}
	if dmg[0].VictimID != victim.EntityID || dmg[0].AttackerID != m.Tanks[1].EntityID {
		t.Fatalf("damage attribution wrong: %+v", dmg[0])
	}
	if dmg[0].RemainingHP != 0 {
		t.Fatalf("remaining hp = %d, want 0", dmg[0].RemainingHP)
	}

	destroyed := drainByType[*protocol.TankDestroyed](msgs)
	if len(destroyed) != 1 {
		t.Fatalf("got %d TankDestroyed, want exactly 1", len(destroyed))
	}
	feeds := drainByType[*protocol.KillFeedUpdate](msgs)
	if len(feeds) != 1 || len(feeds[0].Events) != 1 {
		t.Fatalf("kill feed not flushed as one entry: %+v", feeds)
	}
	if feeds[0].Events[0].VictimID != victim.EntityID {
		t.Fatalf("kill feed victim = %d", feeds[0].Events[0].VictimID)
	}

	// The projectile was consumed by the hit.
	if len(m.Projectiles) != 0 {
		t.Fatalf("%d projectiles left after impact", len(m.Projectiles))
	}

	// Further ticks must not repeat the destruction.
	for i := 0; i < 5; i++ {
		m.advanceTick(reg, testDt)
	}
	more := reg.DrainMessages(m.Players[1])
	if extra := drainByType[*protocol.TankDestroyed](more); len(extra) != 0 {
		t.Fatalf("TankDestroyed repeated %d times after the kill", len(extra))
	}
}

func TestDisconnectSweepDestroysTank(t *testing.T) {
	reg := session.NewManager(zap.NewNop().Sugar())
	m := newTestMatch(t, reg, testTuning(), "human", "human")

	reg.DisconnectSession(m.Players[0])
	m.advanceTick(reg, testDt)

	if m.Tanks[0].Alive() {
		t.Fatal("disconnected participant's tank still alive")
	}
	msgs := reg.DrainMessages(m.Players[1])
	destroyed := drainByType[*protocol.TankDestroyed](msgs)
	if len(destroyed) != 1 {
		t.Fatalf("got %d TankDestroyed, want 1", len(destroyed))
	}
	if destroyed[0].AttackerID != 0 {
		t.Fatalf("disconnect kill attacker = %d, want 0", destroyed[0].AttackerID)
	}
}

func TestProjectileOutOfBoundsCulled(t *testing.T) {
	reg := session.NewManager(zap.NewNop().Sugar())
	m := newTestMatch(t, reg, testTuning(), "human", "human")

	p := injectProjectile(m, 1, 99.9, 0, 3000, 0)
	m.advanceTick(reg, testDt)

	if len(m.Projectiles) != 0 {
		t.Fatalf("out-of-bounds projectile not culled (x=%v)", m.Projectiles[0].X)
	}
	found := false
	for _, id := range m.removedProjectilesSinceFull {
		if id == p.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("culled projectile id not recorded for the next delta")
	}
}

func TestReloadRestoresAmmo(t *testing.T) {
	reg := session.NewManager(zap.NewNop().Sugar())
	tuning := testTuning()
	tuning.ReloadIntervalSec = 0.1
	m := newTestMatch(t, reg, tuning, "human", "human")
	m.Tanks[0].Ammo = 0

	for i := 0; i < 4; i++ { // 4 ticks at 30 Hz > 0.1 s
		m.advanceTick(reg, testDt)
	}
	if m.Tanks[0].Ammo == 0 {
		t.Fatal("ammo did not reload")
	}
}

func TestVictoryLastTankStanding(t *testing.T) {
	reg := session.NewManager(zap.NewNop().Sugar())
	m := newTestMatch(t, reg, testTuning(), "human", "human")
	log := zap.NewNop().Sugar()

	// Kill tank 2, pass the grace period, then evaluate.
	m.Tanks[1].HP = 0
	for i := 0; i < int(m.Tuning.TickRate)*2+2; i++ {
		m.advanceTick(reg, testDt)
	}
	if !m.evaluateVictory(reg, log) {
		t.Fatal("match did not end with one tank standing")
	}
	if m.WinnerEntity != m.Tanks[0].EntityID {
		t.Fatalf("winner = %d, want %d", m.WinnerEntity, m.Tanks[0].EntityID)
	}
	msgs := reg.DrainMessages(m.Players[0])
	ends := drainByType[*protocol.MatchEnd](msgs)
	if len(ends) != 1 {
		t.Fatalf("got %d MatchEnd messages, want 1", len(ends))
	}
	if ends[0].WinnerEntityID != m.Tanks[0].EntityID {
		t.Fatalf("MatchEnd winner = %d", ends[0].WinnerEntityID)
	}
}

func TestNoVictoryDuringGracePeriod(t *testing.T) {
	reg := session.NewManager(zap.NewNop().Sugar())
	m := newTestMatch(t, reg, testTuning(), "human", "human")
	log := zap.NewNop().Sugar()

	m.Tanks[1].HP = 0
	m.advanceTick(reg, testDt)
	if m.evaluateVictory(reg, log) {
		t.Fatal("match ended inside the grace period")
	}
}
