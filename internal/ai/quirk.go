package ai

import (
	"encoding/json"
	"math"
	"net/http"
	"regexp"
	"strconv"
)

var temperatureQuirk = regexp.MustCompile(`(?i)invalid\s+temperature[^0-9]*only\s+([0-9]+(?:\.[0-9]+)?)\s+is\s+allowed`)

// allowedTemperature inspects a 400 body for the "only N is allowed" temperature
// rejection some providers return and reports N.
func allowedTemperature(status int, body string) (float64, bool) {
	if status != http.StatusBadRequest {
		return 0, false
	}
	msg := body
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err == nil && parsed.Error.Message != "" {
		msg = parsed.Error.Message
	}
	m := temperatureQuirk.FindStringSubmatch(msg)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
