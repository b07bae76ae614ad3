package physics

import "math"

// Contact is a begin-touch event between two bodies reported once per new
// overlapping pair.
type Contact struct {
	A, B *Body
}

type pairKey struct {
	lo, hi uint64
}

func keyFor(a, b *Body) pairKey {
	if a.id < b.id {
		return pairKey{a.id, b.id}
	}
	return pairKey{b.id, a.id}
}

// World owns bodies and joints and advances them in fixed steps. It is not
// safe for concurrent use; each match runtime owns its world exclusively.
type World struct {
	bodies   []*Body
	joints   []*RevoluteJoint
	touching map[pairKey]struct{}
	begin    []Contact
	nextID   uint64
}

// NewWorld creates an empty world. The simulation is top-down, so there is no
// gravity term.
func NewWorld() *World {
	return &World{touching: make(map[pairKey]struct{})}
}

// CreateBody adds a dynamic body.
func (w *World) CreateBody(def BodyDef) *Body {
	w.nextID++
	b := &Body{
		id:             w.nextID,
		world:          w,
		pos:            def.Position,
		angle:          def.Angle,
		linearDamping:  def.LinearDamping,
		angularDamping: def.AngularDamping,
		bullet:         def.Bullet,
		UserData:       def.UserData,
	}
	w.bodies = append(w.bodies, b)
	return b
}

// DestroyBody removes a body and any touching pairs that reference it.
// Destroying an already-destroyed body is a no-op.
func (w *World) DestroyBody(b *Body) {
	if b == nil || b.destroyed {
		return
	}
	b.destroyed = true
	for i, o := range w.bodies {
		if o == b {
			w.bodies = append(w.bodies[:i], w.bodies[i+1:]...)
			break
		}
	}
	for k := range w.touching {
		if k.lo == b.id || k.hi == b.id {
			delete(w.touching, k)
		}
	}
	for i := 0; i < len(w.joints); {
		j := w.joints[i]
		if j.bodyA == b || j.bodyB == b {
			j.valid = false
			w.joints = append(w.joints[:i], w.joints[i+1:]...)
			continue
		}
		i++
	}
}

// BeginContacts returns the begin-touch events recorded by the last Step.
// The slice is valid until the next Step.
func (w *World) BeginContacts() []Contact {
	return w.begin
}

// Step advances the world by dt seconds. Iteration counts are accepted for
// interface parity with heavier engines; the solver resolves each pair once
// per step with positional correction.
func (w *World) Step(dt float64, velocityIters, positionIters int) {
	_ = velocityIters
	_ = positionIters
	if dt <= 0 {
		return
	}

	// Integrate velocities from accumulated forces, then damp.
	for _, b := range w.bodies {
		b.vel = b.vel.Add(b.force.Scale(b.invMass * dt))
		b.angVel += b.torque * b.invInertia * dt
		b.vel = b.vel.Scale(1 / (1 + dt*b.linearDamping))
		b.angVel /= 1 + dt*b.angularDamping
		b.force = Vec2{}
		b.torque = 0
	}

	// Joints constrain velocities before position integration.
	for _, j := range w.joints {
		j.solve(dt)
	}

	// Integrate positions. Bullets remember their start for the sweep test.
	for _, b := range w.bodies {
		b.sweepFrom = b.pos
		b.pos = b.pos.Add(b.vel.Scale(dt))
		b.angle += b.angVel * dt
	}

	// Joints pin positions after integration.
	for _, j := range w.joints {
		j.postSolve()
	}

	w.detectContacts()
}

const bulletSubSamples = 4

func (w *World) detectContacts() {
	w.begin = w.begin[:0]
	now := make(map[pairKey]struct{}, len(w.touching))

	for i := 0; i < len(w.bodies); i++ {
		for j := i + 1; j < len(w.bodies); j++ {
			a, b := w.bodies[i], w.bodies[j]
			if !filtersMatch(a, b) {
				continue
			}
			// Broad phase: bounding circles over the swept path.
			if !w.broadPhase(a, b) {
				continue
			}
			normal, depth, hit := w.narrowPhase(a, b)
			if !hit {
				continue
			}
			k := keyFor(a, b)
			now[k] = struct{}{}
			if _, was := w.touching[k]; !was && contactEventsEnabled(a, b) {
				w.begin = append(w.begin, Contact{A: a, B: b})
			}
			if !a.bullet && !b.bullet {
				resolveOverlap(a, b, normal, depth)
			}
		}
	}
	w.touching = now
}

func filtersMatch(a, b *Body) bool {
	for _, sa := range a.shapes {
		for _, sb := range b.shapes {
			if sa.Filter.Category&sb.Filter.Mask != 0 && sb.Filter.Category&sa.Filter.Mask != 0 {
				return true
			}
		}
	}
	return false
}

func contactEventsEnabled(a, b *Body) bool {
	for _, s := range a.shapes {
		if s.EnableContactEvents {
			return true
		}
	}
	for _, s := range b.shapes {
		if s.EnableContactEvents {
			return true
		}
	}
	return false
}

func (w *World) broadPhase(a, b *Body) bool {
	ra, rb := a.worldRadius(), b.worldRadius()
	limit := ra + rb
	if a.bullet || b.bullet {
		// Cover the whole swept segment.
		limit += a.pos.Sub(a.sweepFrom).Length() + b.pos.Sub(b.sweepFrom).Length()
	}
	return a.pos.Sub(b.pos).LengthSq() <= limit*limit
}

// narrowPhase runs SAT between every shape pair. Bullet bodies are sampled
// along their swept path so fast projectiles cannot tunnel through a hull in
// one step.
func (w *World) narrowPhase(a, b *Body) (Vec2, float64, bool) {
	if a.bullet || b.bullet {
		for s := 1; s <= bulletSubSamples; s++ {
			t := float64(s) / bulletSubSamples
			pa := lerp(a.sweepFrom, a.pos, t)
			pb := lerp(b.sweepFrom, b.pos, t)
			if n, d, hit := shapePairsOverlap(a, pa, b, pb); hit {
				return n, d, true
			}
		}
		return Vec2{}, 0, false
	}
	return shapePairsOverlap(a, a.pos, b, b.pos)
}

func lerp(from, to Vec2, t float64) Vec2 {
	return from.Add(to.Sub(from).Scale(t))
}

func shapePairsOverlap(a *Body, posA Vec2, b *Body, posB Vec2) (Vec2, float64, bool) {
	bestDepth := 0.0
	var bestNormal Vec2
	found := false
	for _, sa := range a.shapes {
		for _, sb := range b.shapes {
			if sa.Filter.Category&sb.Filter.Mask == 0 || sb.Filter.Category&sa.Filter.Mask == 0 {
				continue
			}
			oa := obb{center: posA.Add(sa.Offset.rotate(a.angle)), angle: a.angle, halfW: sa.HalfW, halfH: sa.HalfH}
			ob := obb{center: posB.Add(sb.Offset.rotate(b.angle)), angle: b.angle, halfW: sb.HalfW, halfH: sb.HalfH}
			if n, d, hit := satOverlap(oa, ob); hit && (!found || d > bestDepth) {
				bestDepth = d
				bestNormal = n
				found = true
			}
		}
	}
	if !found {
		return Vec2{}, 0, false
	}
	return bestNormal, bestDepth, true
}

type obb struct {
	center       Vec2
	angle        float64
	halfW, halfH float64
}

func (o obb) axes() [2]Vec2 {
	f := Vec2{math.Cos(o.angle), math.Sin(o.angle)}
	return [2]Vec2{f, {-f.Y, f.X}}
}

func (o obb) project(axis Vec2) (float64, float64) {
	c := o.center.Dot(axis)
	ax := o.axes()
	r := math.Abs(ax[0].Dot(axis))*o.halfW + math.Abs(ax[1].Dot(axis))*o.halfH
	return c - r, c + r
}

// satOverlap tests two oriented boxes. On overlap it returns the minimum
// translation axis pointing from a toward b and the penetration depth.
func satOverlap(a, b obb) (Vec2, float64, bool) {
	axes := [4]Vec2{}
	aa, ba := a.axes(), b.axes()
	axes[0], axes[1], axes[2], axes[3] = aa[0], aa[1], ba[0], ba[1]

	minDepth := math.MaxFloat64
	var minAxis Vec2
	for _, axis := range axes {
		minA, maxA := a.project(axis)
		minB, maxB := b.project(axis)
		overlap := math.Min(maxA, maxB) - math.Max(minA, minB)
		if overlap <= 0 {
			return Vec2{}, 0, false
		}
		if overlap < minDepth {
			minDepth = overlap
			minAxis = axis
		}
	}
	if b.center.Sub(a.center).Dot(minAxis) < 0 {
		minAxis = minAxis.Scale(-1)
	}
	return minAxis, minDepth, true
}

// resolveOverlap separates two overlapping solid bodies and cancels their
// approaching velocity along the contact normal (zero restitution).
func resolveOverlap(a, b *Body, normal Vec2, depth float64) {
	totalInv := a.invMass + b.invMass
	if totalInv == 0 {
		return
	}
	// Positional correction, split by inverse mass.
	corr := normal.Scale(depth / totalInv)
	a.pos = a.pos.Sub(corr.Scale(a.invMass))
	b.pos = b.pos.Add(corr.Scale(b.invMass))

	relVel := b.vel.Sub(a.vel).Dot(normal)
	if relVel >= 0 {
		return
	}
	impulse := -relVel / totalInv
	a.vel = a.vel.Sub(normal.Scale(impulse * a.invMass))
	b.vel = b.vel.Add(normal.Scale(impulse * b.invMass))
}
