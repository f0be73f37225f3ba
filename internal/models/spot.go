package models

import "time"

// SpotSource identifies a spot feed
type SpotSource string

const (
	SpotSourceRBN  SpotSource = "rbn"
	SpotSourcePOTA SpotSource = "pota"
)

// Spot represents a station heard or reported on the air
type Spot struct {
	ID           string     `json:"id" db:"id"`
	Spotter      string     `json:"spotter" db:"spotter"`
	DXCall       string     `json:"dx_call" db:"dx_call"`
	FrequencyKHz float64    `json:"frequency_khz" db:"frequency_khz"`
	Band         string     `json:"band" db:"band"`
	Mode         string     `json:"mode,omitempty" db:"mode"`
	SNR          int        `json:"snr,omitempty" db:"snr"`
	WPM          int        `json:"wpm,omitempty" db:"wpm"`
	Source       SpotSource `json:"source" db:"source"`
	ParkRef      string     `json:"park_ref,omitempty" db:"park_ref"`
	Comment      string     `json:"comment,omitempty" db:"comment"`
	SpottedAt    time.Time  `json:"spotted_at" db:"spotted_at"`
}

// SpotFilter for querying spots
type SpotFilter struct {
	DXCall *string     `json:"dx_call,omitempty"`
	Band   *string     `json:"band,omitempty"`
	Mode   *string     `json:"mode,omitempty"`
	Source *SpotSource `json:"source,omitempty"`
	Since  *time.Time  `json:"since,omitempty"`
	Limit  int         `json:"limit,omitempty"`
}
