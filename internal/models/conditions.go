package models

import "time"

// SolarConditions holds the space-weather indices that drive HF propagation
type SolarConditions struct {
	SolarFluxIndex float64   `json:"solar_flux_index"`
	AIndex         float64   `json:"a_index"`
	KIndex         float64   `json:"k_index"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// Stale reports whether the reading is older than maxAge
func (s *SolarConditions) Stale(maxAge time.Duration) bool {
	return time.Since(s.FetchedAt) > maxAge
}
