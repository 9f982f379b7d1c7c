package transit

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var (
	hafasX = regexp.MustCompile(`@X=(-?\d+)`)
	hafasY = regexp.MustCompile(`@Y=(-?\d+)`)
)

// DelayMinutes returns the whole-minute delay of rt against sched.
// A nil rt or an early departure yields 0.
func DelayMinutes(sched time.Time, rt *time.Time) int {
	if rt == nil {
		return 0
	}
	delay := int(rt.Sub(sched) / time.Minute)
	if delay < 0 {
		return 0
	}
	return delay
}

// IsCancelled returns true if any message has type HALT_AUSFALL.
func IsCancelled(messages []Message) bool {
	for _, m := range messages {
		if m.Type == MessageTypeStopCancelled {
			return true
		}
	}
	return false
}

// EffectiveTime returns rt if set, otherwise sched.
func EffectiveTime(sched time.Time, rt *time.Time) time.Time {
	if rt != nil {
		return *rt
	}
	return sched
}

// ParseHafasCoords extracts (lat, lon) from a Hafas station id such as
// "A=1@O=Frankfurt(Main)Hbf@X=8663785@Y=50107149@".
// X carries longitude and Y latitude, both scaled by 1e6.
func ParseHafasCoords(id string) (lat, lon float64, err error) {
	x := hafasX.FindStringSubmatch(id)
	y := hafasY.FindStringSubmatch(id)
	if x == nil || y == nil {
		return 0, 0, NewValidationError("id",
			fmt.Sprintf("could not parse coordinates from hafas id %q: expected @X= and @Y= tokens", id))
	}

	xv, err := strconv.ParseInt(x[1], 10, 64)
	if err != nil {
		return 0, 0, &ValidationError{Field: "id", Message: "invalid @X= value in hafas id", Err: err}
	}
	yv, err := strconv.ParseInt(y[1], 10, 64)
	if err != nil {
		return 0, 0, &ValidationError{Field: "id", Message: "invalid @Y= value in hafas id", Err: err}
	}

	return float64(yv) / 1e6, float64(xv) / 1e6, nil
}
