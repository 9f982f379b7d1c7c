package models

import (
	"time"

	"github.com/bahnmcp/bahnmcp/internal/transit"
)

// DateTimeLayout is the accepted board time format, interpreted in Europe/Berlin.
const DateTimeLayout = "2006-01-02T15:04:05"

// GetDeparturesRequest is the input of the get_departures tool.
type GetDeparturesRequest struct {
	StationName       string   `json:"station_name" validate:"required"`
	DateTime          *string  `json:"datetime,omitempty"`
	TransportModes    []string `json:"transport_modes,omitempty"`
	DestinationFilter string   `json:"destination_filter,omitempty"`
	MaxResults        *int     `json:"max_results,omitempty" validate:"omitempty,min=0,max=200"`
}

// GetJourneyRequest is the input of the get_journey tool.
type GetJourneyRequest struct {
	JourneyID string `json:"journey_id" validate:"required"`
}

// ToolError is the error payload returned by every tool endpoint.
type ToolError struct {
	Error string `json:"error"`
}

// Station is a resolved station.
type Station struct {
	EVA            int64    `json:"eva"`
	HafasID        string   `json:"hafas_id"`
	Name           string   `json:"name"`
	Lat            float64  `json:"lat"`
	Lon            float64  `json:"lon"`
	LocationType   string   `json:"location_type"`
	TransportModes []string `json:"transport_modes"`
}

// Message is a service message attached to a departure or stop.
type Message struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Departure is one entry of a departure board.
type Departure struct {
	JourneyID          string     `json:"journey_id"`
	TrainName          string     `json:"train_name"`
	TrainType          string     `json:"train_type"`
	Destination        string     `json:"destination"`
	ViaStations        []string   `json:"via_stations"`
	Platform           string     `json:"platform"`
	RTPlatform         string     `json:"rt_platform"`
	ScheduledDeparture time.Time  `json:"scheduled_departure"`
	RTDeparture        *time.Time `json:"rt_departure"`
	EffectiveDeparture time.Time  `json:"effective_departure"`
	DelayMinutes       int        `json:"delay_minutes"`
	IsCancelled        bool       `json:"is_cancelled"`
	Messages           []Message  `json:"messages"`
}

// DeparturesResult is the success payload of the get_departures tool.
// BoardTime echoes the requested datetime and is null when none was given.
type DeparturesResult struct {
	Station    Station     `json:"station"`
	BoardTime  *string     `json:"boardTime"`
	Departures []Departure `json:"departures"`
	Count      int         `json:"count"`
}

// JourneyStop is one stop of a journey. Times are passed through as
// reported upstream.
type JourneyStop struct {
	Name         string    `json:"name"`
	EVA          string    `json:"eva"`
	Platform     string    `json:"platform"`
	RTPlatform   string    `json:"rt_platform"`
	SchedDep     *string   `json:"sched_dep"`
	RTDep        *string   `json:"rt_dep"`
	SchedArr     *string   `json:"sched_arr"`
	RTArr        *string   `json:"rt_arr"`
	IsCancelled  bool      `json:"is_cancelled"`
	IsAdditional bool      `json:"is_additional"`
	Messages     []Message `json:"messages"`
}

// JourneyResult is the success payload of the get_journey tool.
type JourneyResult struct {
	JourneyID   string        `json:"journey_id"`
	TrainName   string        `json:"train_name"`
	Date        string        `json:"date"`
	IsCancelled bool          `json:"is_cancelled"`
	Stops       []JourneyStop `json:"stops"`
}

// NearbyStationsResult lists stations around a coordinate.
type NearbyStationsResult struct {
	Stations []Station `json:"stations"`
	Count    int       `json:"count"`
}

// NewStation converts a domain location.
func NewStation(l *transit.Location) Station {
	products := l.Products
	if products == nil {
		products = []string{}
	}
	return Station{
		EVA:            l.EVA,
		HafasID:        l.HafasID,
		Name:           l.Name,
		Lat:            l.Lat,
		Lon:            l.Lon,
		LocationType:   l.Type,
		TransportModes: products,
	}
}

// NewDeparture converts a domain departure.
func NewDeparture(d *transit.Departure) Departure {
	via := d.Via
	if via == nil {
		via = []string{}
	}
	return Departure{
		JourneyID:          d.JourneyID,
		TrainName:          d.TrainName,
		TrainType:          d.TrainType,
		Destination:        d.Destination,
		ViaStations:        via,
		Platform:           d.Platform,
		RTPlatform:         d.RTPlatform,
		ScheduledDeparture: d.ScheduledDeparture,
		RTDeparture:        d.RTDeparture,
		EffectiveDeparture: d.EffectiveDeparture,
		DelayMinutes:       d.DelayMinutes,
		IsCancelled:        d.IsCancelled,
		Messages:           newMessages(d.Messages),
	}
}

// NewJourneyResult converts a domain journey.
func NewJourneyResult(j *transit.Journey) JourneyResult {
	stops := make([]JourneyStop, 0, len(j.Stops))
	for _, s := range j.Stops {
		stops = append(stops, JourneyStop{
			Name:         s.Name,
			EVA:          s.EVA,
			Platform:     s.Platform,
			RTPlatform:   s.RTPlatform,
			SchedDep:     s.ScheduledDeparture,
			RTDep:        s.RTDeparture,
			SchedArr:     s.ScheduledArrival,
			RTArr:        s.RTArrival,
			IsCancelled:  s.IsCancelled,
			IsAdditional: s.IsAdditional,
			Messages:     newMessages(s.Messages),
		})
	}
	return JourneyResult{
		JourneyID:   j.JourneyID,
		TrainName:   j.TrainName,
		Date:        j.Date,
		IsCancelled: j.IsCancelled,
		Stops:       stops,
	}
}

func newMessages(msgs []transit.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Message{Type: m.Type, Text: m.Text})
	}
	return out
}
