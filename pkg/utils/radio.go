package utils

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// GenerateID generates a random UUID string
func GenerateID() string {
	return uuid.NewString()
}

var callsignPattern = regexp.MustCompile(`^[A-Z0-9]{1,3}[0-9][A-Z0-9]{0,3}[A-Z]$`)

// NormalizeCallsign uppercases and trims a callsign
func NormalizeCallsign(callsign string) string {
	return strings.ToUpper(strings.TrimSpace(callsign))
}

// BaseCallsign strips portable prefixes and suffixes from a callsign.
// "W1AW/2" and "VE3/W1AW" both resolve to "W1AW"; the longest segment
// that looks like a callsign wins.
func BaseCallsign(callsign string) string {
	callsign = NormalizeCallsign(callsign)
	if !strings.Contains(callsign, "/") {
		return callsign
	}

	best := ""
	for _, part := range strings.Split(callsign, "/") {
		if callsignPattern.MatchString(part) && len(part) > len(best) {
			best = part
		}
	}
	if best == "" {
		return callsign
	}
	return best
}

// IsValidCallsign reports whether a string looks like an amateur callsign
func IsValidCallsign(callsign string) bool {
	return callsignPattern.MatchString(BaseCallsign(callsign))
}

// bandEdge defines a band by its frequency range in kHz
type bandEdge struct {
	name string
	low  float64
	high float64
}

var bandPlan = []bandEdge{
	{"2190m", 135.7, 137.8},
	{"630m", 472, 479},
	{"160m", 1800, 2000},
	{"80m", 3500, 4000},
	{"60m", 5330, 5410},
	{"40m", 7000, 7300},
	{"30m", 10100, 10150},
	{"20m", 14000, 14350},
	{"17m", 18068, 18168},
	{"15m", 21000, 21450},
	{"12m", 24890, 24990},
	{"10m", 28000, 29700},
	{"6m", 50000, 54000},
	{"2m", 144000, 148000},
	{"1.25m", 222000, 225000},
	{"70cm", 420000, 450000},
}

// BandForFrequency maps a frequency in kHz to its amateur band name.
// Returns an empty string for frequencies outside the band plan.
func BandForFrequency(kHz float64) string {
	for _, b := range bandPlan {
		if kHz >= b.low && kHz <= b.high {
			return b.name
		}
	}
	return ""
}

// KnownBands returns the band names in ascending frequency order
func KnownBands() []string {
	names := make([]string, len(bandPlan))
	for i, b := range bandPlan {
		names[i] = b.name
	}
	return names
}
