package geom

// Transform is a first-order kinematic transform between two Cartesian
// frames A → B.
//
//	position: p_B = Rot(p_A) + Trans
//	vector:   v_B = Rot(v_A)
//
// RotRate is the angular velocity of frame B with respect to frame A,
// expressed in B; Vel is the velocity of A's origin in B. Both are only used
// by ShiftedBy, which propagates the transform over a small time offset with
// first-order kinematics (rotation by ω·Δt, translation by v·Δt). That is
// exactly what light-time correction needs: the offsets involved are a few
// milliseconds.
type Transform struct {
	Rot     Rotation
	RotRate Vec3
	Trans   Vec3
	Vel     Vec3
}

// TransformPosition maps a position from frame A to frame B.
func (t Transform) TransformPosition(p Vec3) Vec3 {
	return t.Rot.Apply(p).Add(t.Trans)
}

// TransformVector maps a free vector (direction) from frame A to frame B.
func (t Transform) TransformVector(v Vec3) Vec3 {
	return t.Rot.Apply(v)
}

// ShiftedBy returns the approximate transform at t+dt seconds. The rotation
// advances by RotRate·dt around the RotRate axis and the translation by
// Vel·dt; second-order terms are dropped. The frame-coordinate operator obeys
// dC/dt = −[ω]×·C, hence the negative angle below.
func (t Transform) ShiftedBy(dt float64) Transform {
	shifted := t
	shifted.Trans = t.Trans.Add(t.Vel.Scale(dt))
	if rate := t.RotRate.Norm(); rate != 0 {
		shifted.Rot = AxisAngle(t.RotRate, -rate*dt).Compose(t.Rot)
	}
	return shifted
}

// Inverse returns the transform B → A.
func (t Transform) Inverse() Transform {
	inv := t.Rot.Inverse()
	return Transform{
		Rot:     inv,
		RotRate: inv.Apply(t.RotRate).Scale(-1),
		Trans:   inv.Apply(t.Trans).Scale(-1),
		Vel:     inv.Apply(t.Vel.Add(t.RotRate.Cross(t.Trans))).Scale(-1),
	}
}

// Compose chains t (A → B) with next (B → C) into a single A → C transform.
// The velocity composition keeps the Coriolis contribution of next's frame
// rotation so that ShiftedBy on the composed transform stays first-order
// consistent.
func (t Transform) Compose(next Transform) Transform {
	return Transform{
		Rot:     next.Rot.Compose(t.Rot),
		RotRate: next.Rot.Apply(t.RotRate).Add(next.RotRate),
		Trans:   next.TransformPosition(t.Trans),
		Vel:     next.Rot.Apply(t.Vel).Add(next.Vel).Sub(next.RotRate.Cross(next.Rot.Apply(t.Trans))),
	}
}
