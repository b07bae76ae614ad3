package physics

import "math"

// Drive model constants for the tracked-vehicle approximation. Forces are
// applied at two virtual track contact points offset from the hull center.
const (
	gravity     = 9.8
	kSide       = 0.9 // lateral slip resistance
	kDrive      = 0.7 // propulsion and braking
	kNeutral    = 0.2 // rolling and steering damping
	trackOffset = 2.4
)

// Tank couples a hull body, a turret body and the revolute joint driving the
// turret, plus the combat state the simulation mutates.
type Tank struct {
	EntityID uint32
	Hull     *Body
	Turret   *Body
	Joint    *RevoluteJoint

	HP              uint16
	Ammo            uint16
	FireCooldownCur float64
	FireCooldownMax float64
}

// Alive reports whether the tank still participates in the simulation.
func (t *Tank) Alive() bool { return t.HP > 0 }

// CreateTankWithTurret builds the hull and turret bodies at (x, y) with the
// shape layout used for all tanks: a center slab plus two track boxes on the
// hull, a turret block plus barrel on the turret.
func CreateTankWithTurret(w *World, x, y float64, entityID uint32, hullDensity, turretDensity float64) *Tank {
	t := &Tank{
		EntityID:        entityID,
		HP:              100,
		Ammo:            10,
		FireCooldownMax: 1.0,
	}

	t.Hull = w.CreateBody(BodyDef{
		Position:       Vec2{x, y},
		LinearDamping:  0.5,
		AngularDamping: 0.8,
		UserData:       entityID,
	})
	hullFilter := Filter{Category: CatBody, Mask: CatBody | CatProjectile | CatCrate}
	t.Hull.AddShape(Shape{HalfW: 2.79, HalfH: 2.12, Density: hullDensity, Filter: hullFilter, EnableContactEvents: true})
	t.Hull.AddShape(Shape{HalfW: 3.2, HalfH: 0.7, Offset: Vec2{0, -1.7}, Density: hullDensity, Filter: hullFilter, EnableContactEvents: true})
	t.Hull.AddShape(Shape{HalfW: 3.2, HalfH: 0.7, Offset: Vec2{0, 1.7}, Density: hullDensity, Filter: hullFilter, EnableContactEvents: true})

	t.Turret = w.CreateBody(BodyDef{
		Position:       Vec2{x, y},
		LinearDamping:  0.5,
		AngularDamping: 0.8,
		UserData:       entityID,
	})
	turretFilter := Filter{Category: CatHead, Mask: CatHead | CatProjectile | CatCrate}
	t.Turret.AddShape(Shape{HalfW: 1.25, HalfH: 1.0, Density: turretDensity, Filter: turretFilter, EnableContactEvents: true})
	t.Turret.AddShape(Shape{HalfW: 1.6, HalfH: 0.15, Offset: Vec2{2.4, 0}, Density: turretDensity, Filter: turretFilter, EnableContactEvents: true})

	t.Joint = w.CreateRevoluteJoint(RevoluteJointDef{
		BodyA:          t.Hull,
		BodyB:          t.Turret,
		EnableMotor:    true,
		MaxMotorTorque: 50,
	})
	return t
}

// DriveInput is one tick of movement input, already clamped by the caller or
// clamped again here.
type DriveInput struct {
	Forward float64 // -1..1
	Turn    float64 // -1..1
	Brake   bool
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// ApplyTrackedDrive converts drive input into forces at the two virtual
// track contact points, plus axial drag, lateral slip resistance and
// steering damping.
func ApplyTrackedDrive(in DriveInput, t *Tank) {
	if !t.Hull.Valid() {
		return
	}
	hull := t.Hull
	vLin := hull.LinearVelocity()
	v := vLin.Length()
	forward := hull.Forward()
	right := hull.Right()
	mg := hull.Mass() * gravity

	isDrive := math.Abs(in.Forward) > 1e-4 && !in.Brake
	isTurn := math.Abs(in.Turn) > 1e-4 && !in.Brake

	dy := clamp(in.Forward, -1, 1)
	dx := clamp(in.Turn, -1, 1)
	var e1, e2, b1, b2 float64
	if !in.Brake {
		if dy >= 0 {
			e1 = clamp(dy+dx, 0, 1)
			e2 = clamp(dy-dx, 0, 1)
			b1 = math.Max(0, -(dy + dx))
			b2 = math.Max(0, -(dy - dx))
		} else {
			e1 = clamp(dy+dx, -1, 0)
			e2 = clamp(dy-dx, -1, 0)
			b1 = math.Max(0, dy+dx)
			b2 = math.Max(0, dy-dx)
		}
	}

	p1 := hull.Position().Sub(right.Scale(trackOffset))
	p2 := hull.Position().Add(right.Scale(trackOffset))
	hull.ApplyForce(forward.Scale(e1*mg*kDrive), p1)
	hull.ApplyForce(forward.Scale(e2*mg*kDrive), p2)
	if b1 > 0 || b2 > 0 {
		back := forward.Scale(-1)
		hull.ApplyForce(back.Scale(b1*mg*kDrive), p1)
		hull.ApplyForce(back.Scale(b2*mg*kDrive), p2)
	}

	// Axial drag when coasting or braking.
	if !isDrive && v > 0.01 {
		proj := vLin.Dot(forward) / v
		k := kNeutral
		if in.Brake {
			k = kDrive
		}
		hull.ApplyForceToCenter(forward.Scale(-proj * mg * k))
	}

	// Lateral slip resistance: tracks do not slide sideways.
	lateral := vLin.Dot(right)
	if math.Abs(lateral) > 0.01 {
		s := 0.0
		if v > 0 {
			s = lateral / v
		}
		hull.ApplyForceToCenter(right.Scale(-s * mg * kSide))
	}

	// Steering damping when no turn input.
	av := hull.AngularVelocity()
	if !isTurn && math.Abs(av) > 0.01 {
		s := 1.0
		if av < 0 {
			s = -1.0
		}
		k := kNeutral
		if in.Brake {
			k = 0.5 * (kDrive + kNeutral)
		}
		hull.ApplyTorque(-s * mg * k * trackOffset)
	}
}

// Turret motor bands: fast slew outside 5 degrees, a proportional precision
// band down to 0.01 degrees, stop inside it.
const (
	fastThreshold    = 5.0 * math.Pi / 180
	preciseThreshold = 0.01 * math.Pi / 180
	fastSlewSpeed    = 90.0 * math.Pi / 180
	preciseSlewSpeed = 20.0 * math.Pi / 180
)

// UpdateTurretAim drives the turret joint motor toward the target world
// angle along the shortest arc.
func UpdateTurretAim(t *Tank, targetWorldAngle float64) {
	if !t.Joint.Valid() {
		return
	}
	diff := NormalizeAngle(targetWorldAngle - t.Turret.Angle())
	absDiff := math.Abs(diff)
	speed := 0.0
	switch {
	case absDiff > fastThreshold:
		speed = math.Copysign(fastSlewSpeed, diff)
	case absDiff > preciseThreshold:
		speed = math.Copysign(preciseSlewSpeed*(absDiff/fastThreshold), diff)
	}
	t.Joint.SetMotorSpeed(speed)
}

// CreateProjectile spawns a bullet body with the given velocity. Projectiles
// collide with hulls, turrets and crates but not with each other.
func CreateProjectile(w *World, x, y, vx, vy, density float64) *Body {
	b := w.CreateBody(BodyDef{Position: Vec2{x, y}, Bullet: true})
	b.AddShape(Shape{
		HalfW:               0.1,
		HalfH:               0.1,
		Density:             density,
		Filter:              Filter{Category: CatProjectile, Mask: CatBody | CatHead | CatCrate},
		EnableContactEvents: true,
	})
	b.SetLinearVelocity(Vec2{vx, vy})
	return b
}

// MuzzleOffset is the distance from the turret center to the projectile
// spawn point along the barrel.
const MuzzleOffset = 3.3

// FireProjectileIfReady spawns a projectile at the muzzle when the tank has
// ammo and its cannon cooldown has expired. It returns the spawned body, or
// nil if the tank cannot fire this tick.
func FireProjectileIfReady(t *Tank, w *World, speed, density float64) *Body {
	if t.FireCooldownCur > 0 || t.Ammo == 0 {
		return nil
	}
	dir := t.Turret.Forward()
	muzzle := t.Turret.Position().Add(dir.Scale(MuzzleOffset))
	body := CreateProjectile(w, muzzle.X, muzzle.Y, dir.X*speed, dir.Y*speed, density)
	t.FireCooldownCur = t.FireCooldownMax
	t.Ammo--
	return body
}
