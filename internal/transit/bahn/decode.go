package bahn

import (
	"bytes"
	"encoding/json"

	"github.com/bahnmcp/bahnmcp/internal/transit"
)

// decodeStations accepts a bare array or an object wrapping the results
// in "items" or "orte".
func decodeStations(body []byte) ([]transit.StationRecord, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var list []transit.StationRecord
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var wrapped struct {
		Items *[]transit.StationRecord `json:"items"`
		Orte  *[]transit.StationRecord `json:"orte"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, err
	}

	switch {
	case wrapped.Items != nil:
		return *wrapped.Items, nil
	case wrapped.Orte != nil:
		return *wrapped.Orte, nil
	default:
		return []transit.StationRecord{}, nil
	}
}

func decodeBoard(body []byte) (*transit.BoardRecord, error) {
	var board transit.BoardRecord
	if err := json.Unmarshal(body, &board); err != nil {
		return nil, err
	}
	return &board, nil
}

func decodeJourney(body []byte) (*transit.JourneyRecord, error) {
	var journey transit.JourneyRecord
	if err := json.Unmarshal(body, &journey); err != nil {
		return nil, err
	}
	return &journey, nil
}
