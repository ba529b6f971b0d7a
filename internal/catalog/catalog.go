// Package catalog publishes the machine-readable command catalog: one JSON
// schema per command type, plus a digest clients use to detect that their
// cached catalog is stale.
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/invopop/jsonschema"

	"satlink/server/internal/sim"
)

// Entry describes one command type the pipeline accepts.
type Entry struct {
	Type        sim.CommandType    `json:"type"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

// Catalog is the full set of entries with a content hash over the canonical
// encoding. The hash ships in the join response.
type Catalog struct {
	Entries []Entry `json:"entries"`
	Hash    string  `json:"hash"`
}

type definition struct {
	title       string
	description string
	params      any
}

var definitions = map[sim.CommandType]definition{
	sim.CommandOrbitalManeuver: {
		title:       "Orbital Maneuver",
		description: "Fire thrusters to change the orbit along a chosen direction.",
		params:      sim.ManeuverParams{},
	},
	sim.CommandAttitudeControl: {
		title:       "Attitude Control",
		description: "Reorient the spacecraft or switch pointing mode.",
		params:      sim.AttitudeParams{},
	},
	sim.CommandCommsConfig: {
		title:       "Comms Configuration",
		description: "Deploy the antenna or retune the downlink.",
		params:      sim.CommsParams{},
	},
	sim.CommandPowerConfig: {
		title:       "Power Configuration",
		description: "Manage heaters and load shedding.",
		params:      sim.PowerParams{},
	},
}

// Build reflects the parameter schemas and computes the catalog hash. The
// result is deterministic for a given build of the binary.
func Build() (*Catalog, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}

	types := make([]sim.CommandType, 0, len(definitions))
	for t := range definitions {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	c := &Catalog{}
	for _, t := range types {
		def := definitions[t]
		schema := reflector.ReflectFromType(reflect.TypeOf(def.params))
		if schema == nil {
			return nil, fmt.Errorf("reflect parameters for %s", t)
		}
		schema.Version = ""
		schema.Title = def.title
		schema.Description = def.description
		c.Entries = append(c.Entries, Entry{
			Type:        t,
			Title:       def.title,
			Description: def.description,
			Parameters:  schema,
		})
	}

	data, err := json.Marshal(c.Entries)
	if err != nil {
		return nil, fmt.Errorf("marshal catalog: %w", err)
	}
	sum := sha256.Sum256(data)
	c.Hash = hex.EncodeToString(sum[:])
	return c, nil
}
