package sim

// OrbitalElements captures the Keplerian elements tracked for the simulated
// spacecraft. Angles are degrees, the semi-major axis is kilometers.
type OrbitalElements struct {
	SemiMajorAxisKm float64 `json:"semiMajorAxisKm"`
	Eccentricity    float64 `json:"eccentricity"`
	InclinationDeg  float64 `json:"inclinationDeg"`
	RAANDeg         float64 `json:"raanDeg"`
	ArgPerigeeDeg   float64 `json:"argPerigeeDeg"`
	TrueAnomalyDeg  float64 `json:"trueAnomalyDeg"`
}

// PowerState models the electrical subsystem.
type PowerState struct {
	BatteryPct    float64 `json:"batteryPct"`
	SolarOutputW  float64 `json:"solarOutputW"`
	LoadW         float64 `json:"loadW"`
	ArrayDeployed bool    `json:"arrayDeployed"`
}

// ThermalState models coarse spacecraft temperatures.
type ThermalState struct {
	CoreTempC     float64 `json:"coreTempC"`
	RadiatorTempC float64 `json:"radiatorTempC"`
	HeatersOn     bool    `json:"heatersOn"`
}

// PropulsionState models the thruster assembly and remaining propellant.
type PropulsionState struct {
	FuelKg          float64 `json:"fuelKg"`
	ThrustN         float64 `json:"thrustN"`
	ThrusterEnabled bool    `json:"thrusterEnabled"`
}

// AttitudeState models spacecraft orientation and the active pointing mode.
type AttitudeState struct {
	Mode     string  `json:"mode"`
	RollDeg  float64 `json:"rollDeg"`
	PitchDeg float64 `json:"pitchDeg"`
	YawDeg   float64 `json:"yawDeg"`
}

// CommsState models the radio link back to the ground station.
type CommsState struct {
	AntennaDeployed bool    `json:"antennaDeployed"`
	Band            string  `json:"band"`
	SignalDb        float64 `json:"signalDb"`
	DownlinkActive  bool    `json:"downlinkActive"`
}

// State is the full telemetry snapshot for one simulated spacecraft. It is a
// plain value: copying the struct copies the state, which keeps snapshot
// handoff between the session loop and checkpoint writes allocation-cheap.
type State struct {
	Power      PowerState      `json:"power"`
	Thermal    ThermalState    `json:"thermal"`
	Propulsion PropulsionState `json:"propulsion"`
	Attitude   AttitudeState   `json:"attitude"`
	Comms      CommsState      `json:"comms"`
	Orbit      OrbitalElements `json:"orbit"`
}

// Pointing modes accepted by attitude commands.
const (
	ModeSunPointing = "sun-pointing"
	ModeNadir       = "nadir"
	ModeInertial    = "inertial"
	ModeManeuver    = "maneuver"
)

// Radio bands accepted by communication commands.
const (
	BandS  = "s-band"
	BandX  = "x-band"
	BandKa = "ka-band"
)

// signalFloorDb is the weakest link margin that still carries an uplink ack.
const signalFloorDb = -3.0

// DefaultState returns the initial spacecraft state used when a scenario does
// not provide its own starting snapshot: a healthy bird in a 500 km LEO.
func DefaultState() State {
	return State{
		Power: PowerState{
			BatteryPct:    85,
			SolarOutputW:  1200,
			LoadW:         640,
			ArrayDeployed: true,
		},
		Thermal: ThermalState{
			CoreTempC:     21,
			RadiatorTempC: -4,
			HeatersOn:     false,
		},
		Propulsion: PropulsionState{
			FuelKg:          42,
			ThrustN:         22,
			ThrusterEnabled: true,
		},
		Attitude: AttitudeState{
			Mode: ModeNadir,
		},
		Comms: CommsState{
			AntennaDeployed: true,
			Band:            BandS,
			SignalDb:        6.5,
			DownlinkActive:  true,
		},
		Orbit: OrbitalElements{
			SemiMajorAxisKm: 6871,
			Eccentricity:    0.0012,
			InclinationDeg:  51.6,
			RAANDeg:         122.3,
			ArgPerigeeDeg:   87.1,
			TrueAnomalyDeg:  0,
		},
	}
}

// LinkDegraded reports whether the ground-to-spacecraft link is too weak for
// command acknowledgements. Commands transmitted over a degraded link stall at
// awaiting-ack until the pipeline timeout fires.
func LinkDegraded(s State) bool {
	return !s.Comms.AntennaDeployed || s.Comms.SignalDb < signalFloorDb
}
