package sim

import "fmt"

// CommandType enumerates the ground commands the trainer accepts.
type CommandType string

const (
	CommandOrbitalManeuver CommandType = "orbital-maneuver"
	CommandAttitudeControl CommandType = "attitude-control"
	CommandCommsConfig     CommandType = "comms-config"
	CommandPowerConfig     CommandType = "power-config"
)

// Maneuver burn directions.
const (
	DirectionPrograde   = "prograde"
	DirectionRetrograde = "retrograde"
	DirectionNormal     = "normal"
	DirectionRadial     = "radial"
)

// ManeuverParams carries an impulsive burn request.
type ManeuverParams struct {
	DeltaVMps float64 `json:"deltaVMps"`
	Direction string  `json:"direction"`
}

// AttitudeParams carries a pointing-mode change and optional target angles.
type AttitudeParams struct {
	Mode     string  `json:"mode"`
	RollDeg  float64 `json:"rollDeg"`
	PitchDeg float64 `json:"pitchDeg"`
	YawDeg   float64 `json:"yawDeg"`
}

// CommsParams carries a radio reconfiguration request.
type CommsParams struct {
	Band           string `json:"band"`
	DownlinkActive bool   `json:"downlinkActive"`
	DeployAntenna  bool   `json:"deployAntenna"`
}

// PowerParams carries an electrical reconfiguration request.
type PowerParams struct {
	DeployArray bool    `json:"deployArray"`
	HeatersOn   bool    `json:"heatersOn"`
	ShedLoadW   float64 `json:"shedLoadW"`
}

// Command is one fully decoded ground command. Exactly one parameter pointer
// matching Type must be set.
type Command struct {
	Type     CommandType     `json:"type"`
	Maneuver *ManeuverParams `json:"maneuver,omitempty"`
	Attitude *AttitudeParams `json:"attitude,omitempty"`
	Comms    *CommsParams    `json:"comms,omitempty"`
	Power    *PowerParams    `json:"power,omitempty"`
}

// maxDeltaVMps bounds a single burn; larger requests are operator error.
const maxDeltaVMps = 500

// Validate performs structural validation of the command payload. A command
// failing Validate never enters the execution pipeline.
func (c Command) Validate() error {
	switch c.Type {
	case CommandOrbitalManeuver:
		if c.Maneuver == nil {
			return fmt.Errorf("maneuver parameters required")
		}
		if c.Maneuver.DeltaVMps <= 0 || c.Maneuver.DeltaVMps > maxDeltaVMps {
			return fmt.Errorf("delta-v %.1f m/s out of range (0, %d]", c.Maneuver.DeltaVMps, maxDeltaVMps)
		}
		switch c.Maneuver.Direction {
		case DirectionPrograde, DirectionRetrograde, DirectionNormal, DirectionRadial:
		default:
			return fmt.Errorf("unknown burn direction %q", c.Maneuver.Direction)
		}
	case CommandAttitudeControl:
		if c.Attitude == nil {
			return fmt.Errorf("attitude parameters required")
		}
		switch c.Attitude.Mode {
		case ModeSunPointing, ModeNadir, ModeInertial, ModeManeuver:
		default:
			return fmt.Errorf("unknown pointing mode %q", c.Attitude.Mode)
		}
	case CommandCommsConfig:
		if c.Comms == nil {
			return fmt.Errorf("comms parameters required")
		}
		switch c.Comms.Band {
		case "", BandS, BandX, BandKa:
		default:
			return fmt.Errorf("unknown radio band %q", c.Comms.Band)
		}
	case CommandPowerConfig:
		if c.Power == nil {
			return fmt.Errorf("power parameters required")
		}
		if c.Power.ShedLoadW < 0 {
			return fmt.Errorf("shed load must be non-negative")
		}
	default:
		return fmt.Errorf("unknown command type %q", c.Type)
	}
	return nil
}

// Precheck verifies that the spacecraft can accept the command in its current
// state. It runs at the validating stage, after structural validation.
func Precheck(s State, c Command) error {
	switch c.Type {
	case CommandOrbitalManeuver:
		if !s.Propulsion.ThrusterEnabled {
			return fmt.Errorf("thruster assembly disabled")
		}
		if s.Propulsion.FuelKg <= 0 {
			return fmt.Errorf("propellant depleted")
		}
	case CommandCommsConfig:
		if c.Comms.DownlinkActive && !s.Comms.AntennaDeployed && !c.Comms.DeployAntenna {
			return fmt.Errorf("downlink requires a deployed antenna")
		}
	case CommandPowerConfig:
		if c.Power.ShedLoadW > s.Power.LoadW {
			return fmt.Errorf("cannot shed %.0f W of a %.0f W load", c.Power.ShedLoadW, s.Power.LoadW)
		}
	}
	return nil
}
