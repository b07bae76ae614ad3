package physics

// RevoluteJointDef configures a revolute joint anchored at both body origins.
type RevoluteJointDef struct {
	BodyA          *Body
	BodyB          *Body
	EnableMotor    bool
	MaxMotorTorque float64
}

// RevoluteJoint pins BodyB's origin to BodyA's origin and drives BodyB's
// rotation with a torque-limited motor. This matches how a turret rides a
// hull: positions locked, rotation independent.
type RevoluteJoint struct {
	bodyA          *Body
	bodyB          *Body
	enableMotor    bool
	maxMotorTorque float64
	motorSpeed     float64
	valid          bool
}

// CreateRevoluteJoint attaches a joint to the world.
func (w *World) CreateRevoluteJoint(def RevoluteJointDef) *RevoluteJoint {
	j := &RevoluteJoint{
		bodyA:          def.BodyA,
		bodyB:          def.BodyB,
		enableMotor:    def.EnableMotor,
		maxMotorTorque: def.MaxMotorTorque,
		valid:          true,
	}
	w.joints = append(w.joints, j)
	return j
}

// SetMotorSpeed sets the target angular velocity in rad/s.
func (j *RevoluteJoint) SetMotorSpeed(speed float64) {
	j.motorSpeed = speed
}

// Valid reports whether both bodies still exist.
func (j *RevoluteJoint) Valid() bool {
	return j != nil && j.valid
}

// solve runs before position integration: the anchored body inherits the
// carrier's linear velocity and the motor steers its angular velocity within
// the torque budget.
func (j *RevoluteJoint) solve(dt float64) {
	j.bodyB.vel = j.bodyA.vel
	if !j.enableMotor {
		return
	}
	want := j.motorSpeed - j.bodyB.angVel
	limit := j.maxMotorTorque * j.bodyB.invInertia * dt
	if want > limit {
		want = limit
	} else if want < -limit {
		want = -limit
	}
	j.bodyB.angVel += want
}

// postSolve re-pins the anchored body after integration so numerical drift
// cannot separate turret from hull.
func (j *RevoluteJoint) postSolve() {
	j.bodyB.pos = j.bodyA.pos
}
