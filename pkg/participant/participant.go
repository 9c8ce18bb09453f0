// Package participant holds the static table of protocol participants.
//
// Each participant is one backend process plus its paired dashboard
// frontend. The table is only used for display and for working out which
// participant the running dashboard belongs to from its serving port.
package participant

import "fmt"

// Descriptor describes one participant. Values are never mutated at runtime.
type Descriptor struct {
	ID           int    `json:"id" toml:"id"`
	Name         string `json:"name" toml:"name"`
	Color        string `json:"color" toml:"color"`
	FrontendPort int    `json:"frontendPort" toml:"frontend_port"`
	BackendPort  int    `json:"backendPort" toml:"backend_port"`
}

// Key returns the participant's stable key, e.g. "participant2".
func (d Descriptor) Key() string {
	return fmt.Sprintf("participant%d", d.ID)
}

var all = [...]Descriptor{
	{ID: 1, Name: "Participant 1", Color: "#2563eb", FrontendPort: 8030, BackendPort: 8083},
	{ID: 2, Name: "Participant 2", Color: "#dc2626", FrontendPort: 8031, BackendPort: 8082},
	{ID: 3, Name: "Participant 3", Color: "#059669", FrontendPort: 8032, BackendPort: 8081},
}

// All returns a copy of the three known participants in id order.
func All() []Descriptor {
	out := make([]Descriptor, len(all))
	copy(out, all[:])
	return out
}

// ByID returns the participant with the given id.
func ByID(id int) (Descriptor, bool) {
	for _, d := range all {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}

// ByFrontendPort returns the participant whose dashboard is served on port.
func ByFrontendPort(port int) (Descriptor, bool) {
	for _, d := range all {
		if d.FrontendPort == port {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Current returns the participant served on frontendPort, falling back to
// participant 1 for unknown ports.
func Current(frontendPort int) Descriptor {
	if d, ok := ByFrontendPort(frontendPort); ok {
		return d
	}
	return all[0]
}

// BackendPorts returns every participant's backend port in id order.
func BackendPorts() []int {
	ports := make([]int, len(all))
	for i, d := range all {
		ports[i] = d.BackendPort
	}
	return ports
}
