package game

import (
	"math"

	"github.com/lab1702/tank2d-server/session"
)

// Bot target preference: squared distance to real players is scaled by this
// factor so bots hunt humans over other bots. The factor applies to d^2, not
// d, which biases selection more strongly than a linear factor would; the
// behavior is intentional.
const botPlayerPreference = 0.25

// botInput synthesizes one tick of input for the bot at participant index i,
// starting from its current registry input.
func (m *Match) botInput(i int, in session.InputState) session.InputState {
	me := m.Tanks[i]
	myPos := me.Hull.Position()
	myHullAngle := me.Hull.Angle()
	myTurretAngle := me.Turret.Angle()

	targetIndex := -1
	bestD2 := math.MaxFloat64
	for j, other := range m.Tanks {
		if j == i || !other.Alive() {
			continue
		}
		d := other.Hull.Position().Sub(myPos)
		d2 := d.LengthSq()
		if !m.Players[j].IsBot {
			d2 *= botPlayerPreference
		}
		if d2 < bestD2 {
			bestD2 = d2
			targetIndex = j
		}
	}

	if targetIndex < 0 {
		// No target: idle sweep.
		in.TurnDir = 0.2
		in.MoveDir = 0
		in.TurretTurn = 0.3
		in.Fire = false
		return in
	}

	d := m.Tanks[targetIndex].Hull.Position().Sub(myPos)
	desired := math.Atan2(d.Y, d.X)

	hullErr := normalize(desired - myHullAngle)
	in.TurnDir = float32(clampf(hullErr*180/(90*math.Pi), -1, 1))

	dist2 := d.LengthSq()
	switch {
	case dist2 > 25:
		in.MoveDir = 1.0
	case dist2 < 9:
		in.MoveDir = -0.4
	default:
		in.MoveDir = 0.2
	}

	turretErr := normalize(desired - myTurretAngle)
	alignErrDeg := math.Abs(turretErr) * 180 / math.Pi
	if alignErrDeg < 2 {
		in.TurretTurn = 0
	} else {
		in.TurretTurn = float32(clampf(turretErr*180/(30*math.Pi), -1, 1))
	}

	in.Fire = false
	if !m.Tuning.DisableBotFire {
		interval := uint64(m.Tuning.BotFireIntervalTicks)
		if interval == 0 {
			interval = 1
		}
		if m.ServerTick%interval == 0 {
			in.Fire = alignErrDeg < 20
		}
	}
	return in
}

func normalize(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

func clampf(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
