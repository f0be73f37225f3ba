package models

import "time"

// LookupSource identifies the service a callsign record came from
type LookupSource string

const (
	SourceQRZ   LookupSource = "qrz"
	SourceHamDB LookupSource = "hamdb"
	SourceCache LookupSource = "cache"
)

// CallsignInfo holds metadata for a looked-up callsign
type CallsignInfo struct {
	Callsign     string       `json:"callsign" db:"callsign"`
	Name         string       `json:"name,omitempty" db:"name"`
	Grid         string       `json:"grid,omitempty" db:"grid"`
	Country      string       `json:"country,omitempty" db:"country"`
	State        string       `json:"state,omitempty" db:"state"`
	City         string       `json:"city,omitempty" db:"city"`
	LicenseClass string       `json:"license_class,omitempty" db:"license_class"`
	Latitude     float64      `json:"latitude,omitempty" db:"latitude"`
	Longitude    float64      `json:"longitude,omitempty" db:"longitude"`
	Source       LookupSource `json:"source" db:"source"`
	FetchedAt    time.Time    `json:"fetched_at" db:"fetched_at"`
}

// MergeFrom fills empty fields from another record without overwriting
// values already present. Used to combine provider responses by precedence.
func (c *CallsignInfo) MergeFrom(other *CallsignInfo) {
	if other == nil {
		return
	}
	if c.Name == "" {
		c.Name = other.Name
	}
	if c.Grid == "" {
		c.Grid = other.Grid
	}
	if c.Country == "" {
		c.Country = other.Country
	}
	if c.State == "" {
		c.State = other.State
	}
	if c.City == "" {
		c.City = other.City
	}
	if c.LicenseClass == "" {
		c.LicenseClass = other.LicenseClass
	}
	if c.Latitude == 0 && c.Longitude == 0 {
		c.Latitude = other.Latitude
		c.Longitude = other.Longitude
	}
}
