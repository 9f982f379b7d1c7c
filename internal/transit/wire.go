package transit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Wire records mirror the bahn.de JSON payloads. Only the fields the
// service reads are declared; absent fields decode to zero values.

// StationRecord is one result of the location search.
type StationRecord struct {
	EVANumber *FlexInt `json:"evaNumber"`
	ExtID     *FlexInt `json:"extId"`
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Lat       float64  `json:"lat"`
	Lon       float64  `json:"lon"`
	Type      *string  `json:"type"`
	Products  []string `json:"products"`
}

// RawType returns the upstream type, empty when absent.
func (r *StationRecord) RawType() string {
	if r.Type == nil {
		return ""
	}
	return *r.Type
}

// BoardQuery identifies a departure board request.
type BoardQuery struct {
	EVA     int64
	HafasID string
	Date    string
	Time    string
	Modes   []string
}

// BoardRecord is the departure board payload.
type BoardRecord struct {
	Entries []DepartureRecord `json:"entries"`
}

// DepartureRecord is a single board entry.
type DepartureRecord struct {
	JourneyID     string          `json:"journeyId"`
	Terminus      string          `json:"terminus"`
	Gleis         string          `json:"gleis"`
	EzGleis       string          `json:"ezGleis"`
	Zeit          string          `json:"zeit"`
	EzZeit        string          `json:"ezZeit"`
	Ueber         []string        `json:"ueber"`
	Verkehrmittel TransportRecord `json:"verkehrmittel"`
	Meldungen     []MessageRecord `json:"meldungen"`
}

// TransportRecord describes the vehicle of a board entry.
type TransportRecord struct {
	KurzText   string `json:"kurzText"`
	MittelText string `json:"mittelText"`
	LangText   string `json:"langText"`
	Name       string `json:"name"`
}

// MessageRecord is an upstream message. Board messages carry type/text,
// journey messages may carry key/value instead.
type MessageRecord struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// JourneyRecord is the journey detail payload.
type JourneyRecord struct {
	ZugName   string       `json:"zugName"`
	Reisetag  string       `json:"reisetag"`
	Cancelled bool         `json:"cancelled"`
	Halte     []StopRecord `json:"halte"`
}

// StopRecord is one stop of a journey.
type StopRecord struct {
	Name                  string          `json:"name"`
	EVANumber             FlexString      `json:"evaNumber"`
	ExtID                 FlexString      `json:"extId"`
	Gleis                 string          `json:"gleis"`
	EzGleis               string          `json:"ezGleis"`
	AbfahrtsZeitpunkt     string          `json:"abfahrtsZeitpunkt"`
	EzAbfahrtsZeitpunkt   string          `json:"ezAbfahrtsZeitpunkt"`
	AnkunftsZeitpunkt     string          `json:"ankunftsZeitpunkt"`
	EzAnkunftsZeitpunkt   string          `json:"ezAnkunftsZeitpunkt"`
	Canceled              bool            `json:"canceled"`
	Additional            bool            `json:"additional"`
	PriorisierteMeldungen []MessageRecord `json:"priorisierteMeldungen"`
	RisMeldungen          []MessageRecord `json:"risMeldungen"`
}

// FlexInt decodes a JSON number or a numeric string.
type FlexInt int64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		data = []byte(s)
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("decoding numeric id %s: %w", data, err)
	}
	*f = FlexInt(n)
	return nil
}

// FlexString decodes a JSON string or number into its string form.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decoding id %s: %w", data, err)
	}
	*f = FlexString(n.String())
	return nil
}
