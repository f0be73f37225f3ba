package models

import "time"

// LoggingSession groups QSOs logged during one operating period,
// typically a park activation or a contest sitting.
type LoggingSession struct {
	ID         string     `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	MyCallsign string     `json:"my_callsign" db:"my_callsign" validate:"required"`
	MyGrid     string     `json:"my_grid,omitempty" db:"my_grid"`
	MyPark     string     `json:"my_park,omitempty" db:"my_park"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	QSOCount   int        `json:"qso_count" db:"qso_count"`
}

// Active reports whether the session is still open
func (s *LoggingSession) Active() bool {
	return s.EndedAt == nil
}
