// Package game implements the authoritative match simulation: the fixed-step
// tick loop, bot AI, combat resolution and the full/delta snapshot encoder.
package game

import (
	"github.com/lab1702/tank2d-server/physics"
	"github.com/lab1702/tank2d-server/protocol"
	"github.com/lab1702/tank2d-server/session"
)

// Hull and turret slew rates in degrees per second.
const (
	TurnSpeedDeg       = 90.0
	TurretTurnSpeedDeg = 120.0
)

// MaxAmmo caps reload accumulation.
const MaxAmmo = 10

// Tuning is the per-match configuration snapshot taken at formation time.
type Tuning struct {
	TickRate                  uint32
	SnapshotIntervalTicks     uint32
	FullSnapshotIntervalTicks uint32
	BotFireIntervalTicks      uint32
	MovementSpeed             float64
	ProjectileDamage          uint32
	ReloadIntervalSec         float64
	ProjectileSpeed           float64
	ProjectileDensity         float64
	FireCooldownSec           float64
	HullDensity               float64
	TurretDensity             float64
	DisableBotFire            bool
	Quantize                  bool
	MapWidth                  float64
	MapHeight                 float64
}

// Projectile is the simulation-side record of one shell in flight.
type Projectile struct {
	ID    uint32
	X, Y  float64
	VX    float64
	VY    float64
	Owner uint32
	Body  *physics.Body
}

// cachedTank records the last emitted state of one tank for delta detection.
type cachedTank struct {
	EntityID    uint32
	X, Y        float64
	HullAngle   float64
	TurretAngle float64
	HP          uint16
	Ammo        uint16
	Alive       bool
}

// Match is the state owned by one match runtime. Players and Tanks are
// parallel: Tanks[i] belongs to Players[i]. Only the match goroutine touches
// a Match after formation.
type Match struct {
	ID                 string
	Tuning             Tuning
	Players            []*session.Session
	Tanks              []*physics.Tank
	World              *physics.World
	InitialPlayerCount uint32

	ServerTick           uint64
	LastFullSnapshotTick uint64

	Projectiles      []*Projectile
	nextProjectileID uint32

	removedTanksSinceFull       []uint32
	removedProjectilesSinceFull []uint32
	killFeed                    []protocol.KillFeedEntry

	lastSentTanks []cachedTank
	reloadTimers  []float64

	bodyToProjectile map[*physics.Body]*Projectile
	hullIndex        map[*physics.Body]int

	Over         bool
	WinnerEntity uint32
}

// NewMatch wires a formed participant group into a simulation context. Tanks
// must already exist in the world, index-aligned with players.
func NewMatch(id string, tuning Tuning, players []*session.Session, tanks []*physics.Tank, world *physics.World) *Match {
	m := &Match{
		ID:                 id,
		Tuning:             tuning,
		Players:            players,
		Tanks:              tanks,
		World:              world,
		InitialPlayerCount: uint32(len(players)),
		nextProjectileID:   1,
		bodyToProjectile:   make(map[*physics.Body]*Projectile),
		hullIndex:          make(map[*physics.Body]int, len(tanks)),
		reloadTimers:       make([]float64, len(tanks)),
	}
	for i, t := range tanks {
		m.hullIndex[t.Hull] = i
	}
	return m
}

// broadcast pushes msg to every participant; the registry filters bots.
func (m *Match) broadcast(reg *session.Manager, msg protocol.ServerMessage) {
	for _, p := range m.Players {
		reg.PushMessage(p, msg)
	}
}
