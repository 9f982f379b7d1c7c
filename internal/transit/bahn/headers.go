package bahn

import (
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
)

// Browser-like headers the bahn.de web API expects.
const (
	headerAccept         = "application/json, text/plain, */*"
	headerAcceptLanguage = "de-DE,de;q=0.9,en-US;q=0.8,en;q=0.7"
	headerOrigin         = "https://www.bahn.de"
	headerReferer        = "https://www.bahn.de/buchung/fahrplan/suche"
	headerSecChUA        = `"Chromium";v="131", "Not?A_Brand";v="24", "Google Chrome";v="131"`
)

// userAgents rotate round-robin across calls.
var userAgents = [...]string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
}

// uaCounter is process-wide; every header set advances it by one.
var uaCounter atomic.Uint64

func nextUserAgent() string {
	n := uaCounter.Add(1) - 1
	return userAgents[n%uint64(len(userAgents))]
}

// newCorrelationID returns "<uuid>_<uuid>".
func newCorrelationID() string {
	return uuid.NewString() + "_" + uuid.NewString()
}

// setHeaders applies the full browser header set to req.
func setHeaders(req *http.Request) {
	h := req.Header
	h.Set("Accept", headerAccept)
	h.Set("Accept-Language", headerAcceptLanguage)
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	h.Set("Origin", headerOrigin)
	h.Set("Referer", headerReferer)
	h.Set("User-Agent", nextUserAgent())
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "same-origin")
	h.Set("sec-ch-ua", headerSecChUA)
	h.Set("sec-ch-ua-mobile", "?0")
	h.Set("x-correlation-id", newCorrelationID())
}
