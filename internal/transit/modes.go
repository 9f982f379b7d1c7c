package transit

import (
	"strings"
)

// TransportMode is a value accepted by the departure board's verkehrsmittel[] filter.
type TransportMode string

// Transport modes.
const (
	ModeICE            TransportMode = "ICE"
	ModeECIC           TransportMode = "EC_IC"
	ModeIR             TransportMode = "IR"
	ModeRegional       TransportMode = "REGIONAL"
	ModeSBahn          TransportMode = "SBAHN"
	ModeBus            TransportMode = "BUS"
	ModeSchiff         TransportMode = "SCHIFF"
	ModeUBahn          TransportMode = "UBAHN"
	ModeTram           TransportMode = "TRAM"
	ModeAnrufpflichtig TransportMode = "ANRUFPFLICHTIG"
)

// AllTransportModes lists every known mode in upstream order.
var AllTransportModes = []TransportMode{
	ModeICE,
	ModeECIC,
	ModeIR,
	ModeRegional,
	ModeSBahn,
	ModeBus,
	ModeSchiff,
	ModeUBahn,
	ModeTram,
	ModeAnrufpflichtig,
}

// IsValid returns true if the mode is known.
func (m TransportMode) IsValid() bool {
	for _, known := range AllTransportModes {
		if m == known {
			return true
		}
	}
	return false
}

// ParseTransportMode parses a mode name case-insensitively.
func ParseTransportMode(s string) (TransportMode, error) {
	m := TransportMode(strings.ToUpper(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", NewValidationError("transport_modes", "Unknown transport mode: "+s)
	}
	return m, nil
}

// ParseTransportModes parses a list of mode names, failing on the first unknown one.
func ParseTransportModes(values []string) ([]TransportMode, error) {
	if len(values) == 0 {
		return nil, nil
	}
	modes := make([]TransportMode, 0, len(values))
	for _, v := range values {
		m, err := ParseTransportMode(v)
		if err != nil {
			return nil, err
		}
		modes = append(modes, m)
	}
	return modes, nil
}

// ModeStrings converts modes to their wire values.
func ModeStrings(modes []TransportMode) []string {
	out := make([]string, 0, len(modes))
	for _, m := range modes {
		out = append(out, string(m))
	}
	return out
}
