package transit

import (
	"fmt"
	"time"

	"github.com/bahnmcp/bahnmcp/internal/clock"
)

// toLocation converts a station search record to a Location.
func toLocation(r *StationRecord) *Location {
	var eva int64
	switch {
	case r.EVANumber != nil:
		eva = int64(*r.EVANumber)
	case r.ExtID != nil:
		eva = int64(*r.ExtID)
	}

	locType := LocationTypeStation
	if r.Type != nil {
		locType = *r.Type
	}

	products := r.Products
	if products == nil {
		products = []string{}
	}

	return &Location{
		EVA:      eva,
		HafasID:  r.ID,
		Name:     r.Name,
		Lat:      r.Lat,
		Lon:      r.Lon,
		Type:     locType,
		Products: products,
	}
}

// toDeparture converts a board entry to a Departure.
// An unparsable scheduled time fails the whole entry; an unparsable
// real-time value is treated as unknown.
func toDeparture(r *DepartureRecord) (*Departure, error) {
	sched, err := clock.Parse(r.Zeit)
	if err != nil {
		return nil, &ValidationError{
			Field:   "zeit",
			Message: fmt.Sprintf("invalid scheduled departure %q for journey %s", r.Zeit, r.JourneyID),
			Err:     err,
		}
	}

	var rt *time.Time
	if r.EzZeit != "" {
		if t, err := clock.Parse(r.EzZeit); err == nil {
			rt = &t
		}
	}

	via := []string{}
	if len(r.Ueber) > 1 {
		via = append(via, r.Ueber[1:]...)
	}

	messages := toMessages(r.Meldungen)

	return &Departure{
		JourneyID:          r.JourneyID,
		TrainName:          trainName(&r.Verkehrmittel),
		TrainType:          r.Verkehrmittel.KurzText,
		Destination:        r.Terminus,
		Via:                via,
		Platform:           r.Gleis,
		RTPlatform:         r.EzGleis,
		ScheduledDeparture: sched,
		RTDeparture:        rt,
		EffectiveDeparture: EffectiveTime(sched, rt),
		DelayMinutes:       DelayMinutes(sched, rt),
		IsCancelled:        IsCancelled(messages),
		Messages:           messages,
	}, nil
}

// trainName prefers the long, then medium, then short display name.
func trainName(t *TransportRecord) string {
	switch {
	case t.LangText != "":
		return t.LangText
	case t.MittelText != "":
		return t.MittelText
	default:
		return t.KurzText
	}
}

func toMessages(records []MessageRecord) []Message {
	messages := make([]Message, 0, len(records))
	for _, m := range records {
		text := m.Text
		if text == "" {
			text = m.Value
		}
		messages = append(messages, Message{Type: m.Type, Text: text})
	}
	return messages
}

// toJourney converts a journey payload to a Journey.
func toJourney(journeyID string, r *JourneyRecord) *Journey {
	stops := make([]*JourneyStop, 0, len(r.Halte))
	for i := range r.Halte {
		stops = append(stops, toJourneyStop(&r.Halte[i]))
	}

	return &Journey{
		JourneyID:   journeyID,
		TrainName:   r.ZugName,
		Date:        r.Reisetag,
		IsCancelled: r.Cancelled,
		Stops:       stops,
	}
}

func toJourneyStop(h *StopRecord) *JourneyStop {
	records := make([]MessageRecord, 0, len(h.PriorisierteMeldungen)+len(h.RisMeldungen))
	records = append(records, h.PriorisierteMeldungen...)
	records = append(records, h.RisMeldungen...)

	cancelled := h.Canceled
	for _, m := range records {
		if m.Type == MessageTypeStopCancelled || m.Key == MessageKeyStopCancelled {
			cancelled = true
			break
		}
	}

	eva := string(h.EVANumber)
	if eva == "" {
		eva = string(h.ExtID)
	}

	return &JourneyStop{
		Name:               h.Name,
		EVA:                eva,
		Platform:           h.Gleis,
		RTPlatform:         h.EzGleis,
		ScheduledDeparture: optional(h.AbfahrtsZeitpunkt),
		RTDeparture:        optional(h.EzAbfahrtsZeitpunkt),
		ScheduledArrival:   optional(h.AnkunftsZeitpunkt),
		RTArrival:          optional(h.EzAnkunftsZeitpunkt),
		IsCancelled:        cancelled,
		IsAdditional:       h.Additional,
		Messages:           toMessages(records),
	}
}

// optional returns nil for an empty string.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
