package sim

import "math"

// Advance propagates the spacecraft state by dt seconds of simulated time.
// Like ApplyCommand it is pure; the session loop calls it on every tick.
func Advance(s State, dt float64) State {
	if dt <= 0 {
		return s
	}

	// Mean motion from the semi-major axis drives the anomaly forward.
	const muEarth = 398600.4418
	a := s.Orbit.SemiMajorAxisKm
	if a > 0 {
		n := math.Sqrt(muEarth/(a*a*a)) * (180 / math.Pi) // deg/s
		s.Orbit.TrueAnomalyDeg = math.Mod(s.Orbit.TrueAnomalyDeg+n*dt, 360)
	}

	// Battery integrates the generation/consumption margin at 100 Wh per
	// percent of capacity.
	marginW := -s.Power.LoadW
	if s.Power.ArrayDeployed {
		marginW = s.Power.SolarOutputW - s.Power.LoadW
	}
	s.Power.BatteryPct = clamp(s.Power.BatteryPct+marginW*dt/3600/100, 0, 100)

	// Temperatures relax toward load-dependent equilibria.
	coreEq := 18 + s.Power.LoadW/100
	if s.Thermal.HeatersOn {
		coreEq += 6
	}
	s.Thermal.CoreTempC += (coreEq - s.Thermal.CoreTempC) * math.Min(1, dt/120)
	s.Thermal.RadiatorTempC += (-8 - s.Thermal.RadiatorTempC) * math.Min(1, dt/300)

	// Link margin wanders slightly with the orbit phase.
	if s.Comms.AntennaDeployed {
		s.Comms.SignalDb = clamp(6.5+2*math.Sin(s.Orbit.TrueAnomalyDeg*math.Pi/180), -6, 12)
	}

	return s
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
