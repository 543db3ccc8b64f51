package state

// #region lift
// Lift appends omega as the temporal-phase component.
func Lift(s State4D, omega float64) State5D {
	return State5D{X: s.X, Y: s.Y, Z: s.Z, Psi: s.Psi, Omega: omega}
}

// LiftAll lifts a batch with a shared omega.
func LiftAll(states []State4D, omega float64) []State5D {
	out := make([]State5D, len(states))
	for i, s := range states {
		out[i] = Lift(s, omega)
	}
	return out
}

// #endregion lift

// #region project
// ProjectState drops omega.
func ProjectState(s State5D) State4D {
	return State4D{X: s.X, Y: s.Y, Z: s.Z, Psi: s.Psi}
}

// Proj4D drops the fifth component of a 5D gradient.
func Proj4D(grad State5D) GuidanceVector {
	return GuidanceVector{VX: grad.X, VY: grad.Y, VZ: grad.Z, VPsi: grad.Psi}
}

// #endregion project
