package transit

import (
	"time"
)

// LocationTypeStation is the location type of a proper railway station.
const LocationTypeStation = "ST"

// MessageTypeStopCancelled marks a cancelled departure or stop.
const MessageTypeStopCancelled = "HALT_AUSFALL"

// MessageKeyStopCancelled is the informational message key the journey
// endpoint uses for a cancelled stop.
const MessageKeyStopCancelled = "text.realtime.stop.cancelled"

// Location represents a resolved station or stop.
type Location struct {
	// EVA is the canonical numeric station identifier (ortExtId).
	EVA int64

	// HafasID is the opaque station id (ortId). It embeds coordinates.
	HafasID string

	// Name is the display name.
	Name string

	// Lat/Lon in decimal degrees.
	Lat float64
	Lon float64

	// Type is "ST" for stations; "POI" and "ADR" occur for other results.
	Type string

	// Products lists the supported transport mode codes.
	Products []string
}

// IsStation returns true if the location is a railway station.
func (l *Location) IsStation() bool {
	return l.Type == LocationTypeStation
}

// Message is a service alert attached to a departure or stop.
type Message struct {
	// Type is the upstream message kind, e.g. "HALT_AUSFALL".
	Type string

	// Text is the human-readable alert.
	Text string
}

// Departure is a single entry of a departure board.
type Departure struct {
	// JourneyID is the opaque id used to fetch journey details.
	JourneyID string

	// TrainName is the display name, e.g. "ICE 619".
	TrainName string

	// TrainType is the short type code, e.g. "ICE".
	TrainType string

	// Destination is the final terminus name.
	Destination string

	// Via lists intermediate stops in order. The origin is never included.
	Via []string

	// Platform is the scheduled platform.
	Platform string

	// RTPlatform is the real-time platform, empty when unchanged.
	RTPlatform string

	// ScheduledDeparture is the timetabled departure.
	ScheduledDeparture time.Time

	// RTDeparture is the real-time departure, nil when unknown.
	RTDeparture *time.Time

	// EffectiveDeparture is RTDeparture if set, else ScheduledDeparture.
	EffectiveDeparture time.Time

	// DelayMinutes is the whole-minute delay, never negative.
	DelayMinutes int

	// IsCancelled is true when any message has type HALT_AUSFALL.
	IsCancelled bool

	// Messages are the service alerts for this departure.
	Messages []Message
}

// Journey is the full stop list of a single train run.
type Journey struct {
	JourneyID   string
	TrainName   string
	Date        string
	IsCancelled bool
	Stops       []*JourneyStop
}

// JourneyStop is a single stop of a journey.
// Times are kept as the upstream's ISO-8601 strings; nil means absent.
type JourneyStop struct {
	Name               string
	EVA                string
	Platform           string
	RTPlatform         string
	ScheduledDeparture *string
	RTDeparture        *string
	ScheduledArrival   *string
	RTArrival          *string
	IsCancelled        bool
	IsAdditional       bool
	Messages           []Message
}

// DepartureRequest describes a departure board query.
type DepartureRequest struct {
	// Station is the free-text station name to resolve.
	Station string

	// At is the board start time. Nil means now.
	At *time.Time

	// Modes restricts the board to these transport modes. Empty means all.
	Modes []TransportMode

	// Destination keeps only departures whose destination or via stations
	// contain this text (case-insensitive). Empty disables the filter.
	Destination string

	// MaxResults caps the number of returned departures. Nil uses the
	// service default; zero returns an empty board.
	MaxResults *int
}

// NearbyRequest describes a nearby-stations query.
type NearbyRequest struct {
	Lat    float64
	Lon    float64
	Radius int
	Max    int
}
