package tracking

import (
	"context"
	"errors"
	"time"

	"scooter-ride/internal/db"
	"scooter-ride/internal/ride"

	"github.com/google/uuid"
)

const ridesLimit = 50

var ErrDisabled = errors.New("ride history disabled")

var _ ride.Recorder = (*Service)(nil)

// Service journals rides to Postgres. It is an audit trail only; the
// workflow remains the source of truth for a ride's charge.
type Service struct {
	db            db.Querier
	feetPerSignal int
	now           func() time.Time
}

// NewService builds the journal. feetPerSignal converts reported distance
// signals into an approximate distance for summaries.
func NewService(q db.Querier, feetPerSignal int) *Service {
	return &Service{db: q, feetPerSignal: feetPerSignal, now: time.Now}
}

// RideStarted inserts an active ride and returns its id.
func (s *Service) RideStarted(ctx context.Context, rec ride.Record) (string, error) {
	if s.db == nil {
		return "", ErrDisabled
	}
	id := uuid.NewString()
	startedAt := rec.StartedAt
	if startedAt.IsZero() {
		startedAt = s.now()
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO ride_sessions (id, email, scooter_id, session_id, started_at, status)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, id, rec.Email, rec.ScooterID, rec.SessionID, startedAt, StatusActive)
	if err := row.Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

// RideEnded closes the ride with its final counters.
func (s *Service) RideEnded(ctx context.Context, id string, rec ride.Record) error {
	if s.db == nil {
		return ErrDisabled
	}
	endedAt := rec.EndedAt
	if endedAt.IsZero() {
		endedAt = s.now()
	}
	_, err := s.db.Exec(ctx, `
		UPDATE ride_sessions
		SET ended_at=$2, tokens_used=$3, distance_signals=$4, status=$5
		WHERE id=$1
	`, id, endedAt, rec.TokensUsed, rec.DistanceSignals, StatusEnded)
	return err
}

// Rides lists the most recent rides for an email, newest first.
func (s *Service) Rides(ctx context.Context, email string) ([]Ride, error) {
	if s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, email, scooter_id, session_id, started_at, ended_at, tokens_used, distance_signals, status
		FROM ride_sessions WHERE email=$1
		ORDER BY started_at DESC
		LIMIT $2
	`, email, ridesLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rides := []Ride{}
	for rows.Next() {
		var r Ride
		if err := rows.Scan(&r.ID, &r.Email, &r.ScooterID, &r.SessionID, &r.StartedAt, &r.EndedAt, &r.TokensUsed, &r.DistanceSignals, &r.Status); err != nil {
			return nil, err
		}
		rides = append(rides, r)
	}
	return rides, rows.Err()
}

func (s *Service) Ride(ctx context.Context, id string) (Ride, error) {
	if s.db == nil {
		return Ride{}, ErrDisabled
	}
	var r Ride
	row := s.db.QueryRow(ctx, `
		SELECT id, email, scooter_id, session_id, started_at, ended_at, tokens_used, distance_signals, status
		FROM ride_sessions WHERE id=$1
	`, id)
	if err := row.Scan(&r.ID, &r.Email, &r.ScooterID, &r.SessionID, &r.StartedAt, &r.EndedAt, &r.TokensUsed, &r.DistanceSignals, &r.Status); err != nil {
		return Ride{}, err
	}
	return r, nil
}

// Summary derives duration and rates for one ride. A ride that has not
// ended is measured up to now.
func (s *Service) Summary(ctx context.Context, id string) (Summary, error) {
	r, err := s.Ride(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return s.Summarize(r), nil
}

func (s *Service) Summarize(r Ride) Summary {
	end := s.now()
	if r.EndedAt != nil {
		end = *r.EndedAt
	}
	duration := end.Sub(r.StartedAt)
	if duration < 0 {
		duration = 0
	}
	perMinute := 0.0
	if duration.Minutes() > 0 {
		perMinute = float64(r.TokensUsed) / duration.Minutes()
	}

	return Summary{
		RideID:          r.ID,
		DurationSec:     int64(duration.Seconds()),
		TokensUsed:      r.TokensUsed,
		DistanceSignals: r.DistanceSignals,
		DistanceFt:      r.DistanceSignals * s.feetPerSignal,
		TokensPerMinute: perMinute,
	}
}
