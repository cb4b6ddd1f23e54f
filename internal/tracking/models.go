package tracking

import "time"

const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// Ride is one row of the ride history journal.
type Ride struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	ScooterID       string     `json:"scooter_id"`
	SessionID       string     `json:"session_id"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	TokensUsed      int        `json:"tokens_used"`
	DistanceSignals int        `json:"distance_signals"`
	Status          string     `json:"status"`
}

type Summary struct {
	RideID          string  `json:"ride_id"`
	DurationSec     int64   `json:"duration_sec"`
	TokensUsed      int     `json:"tokens_used"`
	DistanceSignals int     `json:"distance_signals"`
	DistanceFt      int     `json:"distance_ft"`
	TokensPerMinute float64 `json:"tokens_per_minute"`
}
