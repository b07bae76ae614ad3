package game

import (
	"math"

	"github.com/lab1702/tank2d-server/metrics"
	"github.com/lab1702/tank2d-server/protocol"
	"github.com/lab1702/tank2d-server/session"
)

// Delta change thresholds: positions below posEpsilon and angles below
// angleEpsilonDeg (degrees) do not count as movement.
const (
	posEpsilon      = 1e-4
	angleEpsilonDeg = 1e-2
)

// Quantization steps applied when Tuning.Quantize is set.
const (
	posScale   = 100.0 // 0.01 units
	angleScale = 10.0  // 0.1 degrees
)

func (m *Match) quantPos(v float64) float32 {
	if m.Tuning.Quantize {
		return float32(math.Round(v*posScale) / posScale)
	}
	return float32(v)
}

func (m *Match) quantAngle(v float64) float32 {
	if m.Tuning.Quantize {
		return float32(math.Round(v*angleScale) / angleScale)
	}
	return float32(v)
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// tankWire reads the authoritative wire state of the tank at index i.
func (m *Match) tankWire(i int) (x, y, hullDeg, turretDeg float64) {
	t := m.Tanks[i]
	pos := t.Hull.Position()
	return pos.X, pos.Y, degrees(t.Hull.Angle()), degrees(t.Turret.Angle())
}

// BuildFullSnapshot assembles an unconditional snapshot of every live tank
// and every projectile, rebuilding the last-sent cache and advancing the
// full-snapshot baseline. The caller broadcasts the result; after a full
// snapshot the removed-id accumulators start over.
func (m *Match) BuildFullSnapshot() *protocol.StateSnapshot {
	snap := &protocol.StateSnapshot{ServerTick: uint32(m.ServerTick)}
	m.lastSentTanks = make([]cachedTank, len(m.Tanks))
	for i, t := range m.Tanks {
		if !t.Alive() {
			continue
		}
		x, y, hullDeg, turretDeg := m.tankWire(i)
		snap.Tanks = append(snap.Tanks, protocol.TankState{
			EntityID:    t.EntityID,
			X:           m.quantPos(x),
			Y:           m.quantPos(y),
			HullAngle:   m.quantAngle(hullDeg),
			TurretAngle: m.quantAngle(turretDeg),
			HP:          uint32(t.HP),
			Ammo:        uint32(t.Ammo),
		})
		m.lastSentTanks[i] = cachedTank{
			EntityID:    t.EntityID,
			X:           x,
			Y:           y,
			HullAngle:   hullDeg,
			TurretAngle: turretDeg,
			HP:          t.HP,
			Ammo:        t.Ammo,
			Alive:       true,
		}
	}
	for _, p := range m.Projectiles {
		snap.Projectiles = append(snap.Projectiles, protocol.ProjectileState{
			ProjectileID: p.ID,
			X:            m.quantPos(p.X),
			Y:            m.quantPos(p.Y),
			VX:           float32(p.VX),
			VY:           float32(p.VY),
		})
	}
	m.LastFullSnapshotTick = m.ServerTick
	m.removedTanksSinceFull = m.removedTanksSinceFull[:0]
	m.removedProjectilesSinceFull = m.removedProjectilesSinceFull[:0]
	return snap
}

// buildDeltaSnapshot assembles a change-only snapshot against the last-sent
// cache, updating cache entries for every included tank. Projectiles are
// resent in full; clients dedupe by id.
func (m *Match) buildDeltaSnapshot() *protocol.DeltaSnapshot {
	delta := &protocol.DeltaSnapshot{
		ServerTick: uint32(m.ServerTick),
		BaseTick:   uint32(m.LastFullSnapshotTick),
	}
	if len(m.lastSentTanks) != len(m.Tanks) {
		grown := make([]cachedTank, len(m.Tanks))
		copy(grown, m.lastSentTanks)
		m.lastSentTanks = grown
	}
	for i, t := range m.Tanks {
		if !t.Alive() {
			continue
		}
		x, y, hullDeg, turretDeg := m.tankWire(i)
		prev := &m.lastSentTanks[i]
		changed := math.Abs(x-prev.X) > posEpsilon ||
			math.Abs(y-prev.Y) > posEpsilon ||
			math.Abs(hullDeg-prev.HullAngle) > angleEpsilonDeg ||
			math.Abs(turretDeg-prev.TurretAngle) > angleEpsilonDeg ||
			t.HP != prev.HP || t.Ammo != prev.Ammo
		if !changed {
			continue
		}
		delta.Tanks = append(delta.Tanks, protocol.TankState{
			EntityID:    t.EntityID,
			X:           m.quantPos(x),
			Y:           m.quantPos(y),
			HullAngle:   m.quantAngle(hullDeg),
			TurretAngle: m.quantAngle(turretDeg),
			HP:          uint32(t.HP),
			Ammo:        uint32(t.Ammo),
		})
		*prev = cachedTank{
			EntityID:    t.EntityID,
			X:           x,
			Y:           y,
			HullAngle:   hullDeg,
			TurretAngle: turretDeg,
			HP:          t.HP,
			Ammo:        t.Ammo,
			Alive:       true,
		}
	}
	delta.RemovedTanks = append(delta.RemovedTanks, m.removedTanksSinceFull...)
	for _, p := range m.Projectiles {
		delta.Projectiles = append(delta.Projectiles, protocol.ProjectileState{
			ProjectileID: p.ID,
			X:            m.quantPos(p.X),
			Y:            m.quantPos(p.Y),
			VX:           float32(p.VX),
			VY:           float32(p.VY),
		})
	}
	delta.RemovedProjectiles = append(delta.RemovedProjectiles, m.removedProjectilesSinceFull...)
	return delta
}

// emitSnapshot broadcasts either a full or a delta snapshot depending on the
// distance from the last full baseline.
func (m *Match) emitSnapshot(reg *session.Manager) {
	full := m.ServerTick-m.LastFullSnapshotTick >= uint64(m.Tuning.FullSnapshotIntervalTicks)
	if full {
		snap := m.BuildFullSnapshot()
		if raw, err := protocol.EncodeServerMessage(snap); err == nil {
			metrics.SnapshotFullBytes.Add(float64(len(raw)))
			metrics.SnapshotFullCount.Inc()
		}
		m.broadcast(reg, snap)
		return
	}
	delta := m.buildDeltaSnapshot()
	if raw, err := protocol.EncodeServerMessage(delta); err == nil {
		metrics.SnapshotDeltaBytes.Add(float64(len(raw)))
		metrics.SnapshotDeltaCount.Inc()
	}
	m.broadcast(reg, delta)
}
