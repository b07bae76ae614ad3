package physics

import "math"

// Collision filter categories. A shape pair collides when each side's
// category intersects the other's mask.
const (
	CatBody uint16 = 1 << iota
	CatHead
	CatProjectile
	CatCrate
)

// Filter selects which shape pairs interact.
type Filter struct {
	Category uint16
	Mask     uint16
}

// Shape is an oriented box fixture in body-local coordinates.
type Shape struct {
	HalfW, HalfH        float64
	Offset              Vec2
	Density             float64
	Filter              Filter
	EnableContactEvents bool
}

// BodyDef configures a new dynamic body.
type BodyDef struct {
	Position       Vec2
	Angle          float64
	LinearDamping  float64
	AngularDamping float64
	Bullet         bool
	UserData       any
}

// Body is a dynamic rigid body.
type Body struct {
	id    uint64
	world *World

	pos    Vec2
	angle  float64
	vel    Vec2
	angVel float64

	force  Vec2
	torque float64

	linearDamping  float64
	angularDamping float64
	bullet         bool
	destroyed      bool

	shapes []Shape

	mass       float64
	invMass    float64
	inertia    float64
	invInertia float64

	// sweepFrom holds the pre-integration position for bullet bodies.
	sweepFrom Vec2

	// UserData is opaque caller state (entity ids, projectile ids).
	UserData any
}

// AddShape attaches a box fixture and recomputes mass properties.
func (b *Body) AddShape(s Shape) {
	b.shapes = append(b.shapes, s)
	b.computeMass()
}

func (b *Body) computeMass() {
	b.mass, b.inertia = 0, 0
	for _, s := range b.shapes {
		w, h := 2*s.HalfW, 2*s.HalfH
		m := s.Density * w * h
		b.mass += m
		// Box inertia about its center, shifted to the body origin.
		b.inertia += m*(w*w+h*h)/12 + m*s.Offset.LengthSq()
	}
	if b.mass > 0 {
		b.invMass = 1 / b.mass
	} else {
		b.invMass = 0
	}
	if b.inertia > 0 {
		b.invInertia = 1 / b.inertia
	} else {
		b.invInertia = 0
	}
}

// Position returns the body origin in world space.
func (b *Body) Position() Vec2 { return b.pos }

// Angle returns the body rotation in radians.
func (b *Body) Angle() float64 { return b.angle }

// Forward returns the body's +x axis in world space.
func (b *Body) Forward() Vec2 {
	return Vec2{math.Cos(b.angle), math.Sin(b.angle)}
}

// Right returns the body's lateral axis (forward rotated -90 degrees).
func (b *Body) Right() Vec2 {
	f := b.Forward()
	return Vec2{f.Y, -f.X}
}

// SetTransform teleports the body to a new position and rotation.
func (b *Body) SetTransform(pos Vec2, angle float64) {
	b.pos = pos
	b.sweepFrom = pos
	b.angle = angle
}

// LinearVelocity returns the current linear velocity.
func (b *Body) LinearVelocity() Vec2 { return b.vel }

// SetLinearVelocity overrides the linear velocity.
func (b *Body) SetLinearVelocity(v Vec2) { b.vel = v }

// AngularVelocity returns the current angular velocity in rad/s.
func (b *Body) AngularVelocity() float64 { return b.angVel }

// Mass returns the body mass derived from its shapes.
func (b *Body) Mass() float64 { return b.mass }

// Valid reports whether the body still belongs to its world.
func (b *Body) Valid() bool { return b != nil && !b.destroyed }

// ApplyForce accumulates a force applied at a world-space point.
func (b *Body) ApplyForce(force, point Vec2) {
	b.force = b.force.Add(force)
	b.torque += point.Sub(b.pos).Cross(force)
}

// ApplyForceToCenter accumulates a force with no torque contribution.
func (b *Body) ApplyForceToCenter(force Vec2) {
	b.force = b.force.Add(force)
}

// ApplyTorque accumulates a torque.
func (b *Body) ApplyTorque(t float64) {
	b.torque += t
}

// worldRadius is a conservative bounding radius for broad-phase culling.
func (b *Body) worldRadius() float64 {
	r := 0.0
	for _, s := range b.shapes {
		d := s.Offset.Length() + math.Hypot(s.HalfW, s.HalfH)
		if d > r {
			r = d
		}
	}
	return r
}
