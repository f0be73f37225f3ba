package models

import "time"

// LogEntry records a system event (sync runs, imports, feed reconnects)
type LogEntry struct {
	ID        int64                  `json:"id" db:"id"`
	Type      string                 `json:"type" db:"type"`
	Data      map[string]interface{} `json:"data" db:"data"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}
