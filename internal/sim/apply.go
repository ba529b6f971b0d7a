package sim

import (
	"fmt"
	"math"
)

// Result summarizes the effect of an executed command for the command log and
// the room broadcast.
type Result struct {
	Summary    string  `json:"summary"`
	FuelUsedKg float64 `json:"fuelUsedKg,omitempty"`
}

// Propellant spent per m/s of delta-v, a coarse stand-in for the rocket
// equation at trainer fidelity.
const fuelPerDeltaV = 0.085

// ApplyCommand executes one validated command against the current state and
// returns the next state. It is a pure function: the caller owns serialization
// and decides when the returned state becomes authoritative. An error models a
// simulated hardware fault; the input state is returned unchanged alongside it.
func ApplyCommand(s State, c Command) (State, Result, error) {
	switch c.Type {
	case CommandOrbitalManeuver:
		return applyManeuver(s, *c.Maneuver)
	case CommandAttitudeControl:
		return applyAttitude(s, *c.Attitude)
	case CommandCommsConfig:
		return applyComms(s, *c.Comms)
	case CommandPowerConfig:
		return applyPower(s, *c.Power)
	}
	return s, Result{}, fmt.Errorf("unknown command type %q", c.Type)
}

func applyManeuver(s State, p ManeuverParams) (State, Result, error) {
	fuel := p.DeltaVMps * fuelPerDeltaV
	if fuel > s.Propulsion.FuelKg {
		return s, Result{}, fmt.Errorf("burn needs %.2f kg propellant, %.2f kg remaining", fuel, s.Propulsion.FuelKg)
	}

	// Orbital velocity from the vis-viva relation at the current radius,
	// then scale the semi-major axis by the along-track velocity change.
	const muEarth = 398600.4418 // km^3/s^2
	a := s.Orbit.SemiMajorAxisKm
	v := math.Sqrt(muEarth/a) * 1000 // m/s, near-circular approximation

	switch p.Direction {
	case DirectionPrograde:
		s.Orbit.SemiMajorAxisKm = a * (1 + 2*p.DeltaVMps/v)
	case DirectionRetrograde:
		s.Orbit.SemiMajorAxisKm = a * (1 - 2*p.DeltaVMps/v)
	case DirectionNormal:
		s.Orbit.InclinationDeg += (p.DeltaVMps / v) * (180 / math.Pi)
	case DirectionRadial:
		s.Orbit.Eccentricity = math.Min(0.9, s.Orbit.Eccentricity+p.DeltaVMps/(2*v))
	}

	s.Propulsion.FuelKg -= fuel
	s.Attitude.Mode = ModeManeuver
	res := Result{
		Summary:    fmt.Sprintf("burn complete: %.1f m/s %s", p.DeltaVMps, p.Direction),
		FuelUsedKg: fuel,
	}
	return s, res, nil
}

func applyAttitude(s State, p AttitudeParams) (State, Result, error) {
	s.Attitude.Mode = p.Mode
	s.Attitude.RollDeg = normalizeDeg(p.RollDeg)
	s.Attitude.PitchDeg = normalizeDeg(p.PitchDeg)
	s.Attitude.YawDeg = normalizeDeg(p.YawDeg)

	// Pointing away from the sun starves the arrays until the next slew.
	if p.Mode == ModeInertial {
		s.Power.SolarOutputW *= 0.6
	} else if s.Power.ArrayDeployed {
		s.Power.SolarOutputW = math.Max(s.Power.SolarOutputW, 1100)
	}

	return s, Result{Summary: fmt.Sprintf("attitude set: %s", p.Mode)}, nil
}

func applyComms(s State, p CommsParams) (State, Result, error) {
	if p.DeployAntenna {
		s.Comms.AntennaDeployed = true
		s.Comms.SignalDb = math.Max(s.Comms.SignalDb, 4.0)
	}
	if p.Band != "" {
		s.Comms.Band = p.Band
	}
	s.Comms.DownlinkActive = p.DownlinkActive
	if p.DownlinkActive {
		s.Power.LoadW += 35
	}
	return s, Result{Summary: fmt.Sprintf("comms configured: band=%s downlink=%t", s.Comms.Band, p.DownlinkActive)}, nil
}

func applyPower(s State, p PowerParams) (State, Result, error) {
	if p.DeployArray && !s.Power.ArrayDeployed {
		s.Power.ArrayDeployed = true
		s.Power.SolarOutputW = 1200
	}
	s.Thermal.HeatersOn = p.HeatersOn
	if p.HeatersOn {
		s.Power.LoadW += 80
	}
	s.Power.LoadW = math.Max(120, s.Power.LoadW-p.ShedLoadW)
	return s, Result{Summary: fmt.Sprintf("power configured: load=%.0f W", s.Power.LoadW)}, nil
}

func normalizeDeg(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}
