// Package workflow is the typed facade over the ride session workflow: one
// start command, two signals and two queries, all addressed by a session id
// derived from the scooter id. Calls are never retried or buffered here.
package workflow

import (
	"context"
	"errors"
	"fmt"
)

const (
	TaskQueue     = "scooter-ride-tq"
	WorkflowType  = "ScooterRideWorkflow"
	SessionPrefix = "scooter-session-"

	AddDistanceSignal   = "addDistance"
	EndRideSignal       = "endRide"
	TokensConsumedQuery = "tokensConsumed"
	RideDetailsQuery    = "getRideDetails"
)

var (
	// ErrGatewayUnavailable marks a transport that could not be built.
	ErrGatewayUnavailable = errors.New("workflow gateway unavailable")
	// ErrNoSession is returned for calls made without a scooter id.
	ErrNoSession = errors.New("no ride session")
)

// SessionID derives the remote session id for a scooter.
func SessionID(scooterID string) string {
	return SessionPrefix + scooterID
}

// Transport is the connection to the workflow backend.
type Transport interface {
	StartWorkflow(ctx context.Context, sessionID string, input RideInput) error
	Signal(ctx context.Context, sessionID, name string) error
	Query(ctx context.Context, sessionID, name string, out any) error
	Close()
}

// Dialer builds a Transport.
type Dialer func() (Transport, error)

// Gateway issues the ride session protocol operations for a scooter.
type Gateway interface {
	SessionID(scooterID string) string
	Start(ctx context.Context, email, scooterID string) error
	SignalAddDistance(ctx context.Context, scooterID string) error
	SignalEndRide(ctx context.Context, scooterID string) error
	QueryTokensConsumed(ctx context.Context, scooterID string) (int, error)
	QueryRideDetails(ctx context.Context, scooterID string) (RideDetails, error)
	Close()
}

// NewGateway dials the transport. When dialing fails the returned Gateway is
// the Disconnected variant and the error wraps ErrGatewayUnavailable, so
// callers can log it and keep going.
func NewGateway(dial Dialer) (Gateway, error) {
	if dial == nil {
		return Disconnected{}, fmt.Errorf("%w: no dialer", ErrGatewayUnavailable)
	}
	transport, err := dial()
	if err != nil {
		return Disconnected{}, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}
	if transport == nil {
		return Disconnected{}, fmt.Errorf("%w: dialer returned no transport", ErrGatewayUnavailable)
	}
	return &Remote{transport: transport}, nil
}

// Remote is the connected Gateway.
type Remote struct {
	transport Transport
}

func (g *Remote) SessionID(scooterID string) string {
	return SessionID(scooterID)
}

func (g *Remote) Start(ctx context.Context, email, scooterID string) error {
	if scooterID == "" {
		return ErrNoSession
	}
	sessionID := SessionID(scooterID)
	input := RideInput{EmailAddress: email, ScooterID: scooterID}
	if err := g.transport.StartWorkflow(ctx, sessionID, input); err != nil {
		return fmt.Errorf("start %s: %w", sessionID, err)
	}
	return nil
}

func (g *Remote) SignalAddDistance(ctx context.Context, scooterID string) error {
	return g.signal(ctx, scooterID, AddDistanceSignal)
}

func (g *Remote) SignalEndRide(ctx context.Context, scooterID string) error {
	return g.signal(ctx, scooterID, EndRideSignal)
}

func (g *Remote) QueryTokensConsumed(ctx context.Context, scooterID string) (int, error) {
	var tokens int
	if err := g.query(ctx, scooterID, TokensConsumedQuery, &tokens); err != nil {
		return 0, err
	}
	return tokens, nil
}

func (g *Remote) QueryRideDetails(ctx context.Context, scooterID string) (RideDetails, error) {
	var details RideDetails
	if err := g.query(ctx, scooterID, RideDetailsQuery, &details); err != nil {
		return RideDetails{}, err
	}
	return details, nil
}

func (g *Remote) Close() {
	g.transport.Close()
}

func (g *Remote) signal(ctx context.Context, scooterID, name string) error {
	if scooterID == "" {
		return ErrNoSession
	}
	sessionID := SessionID(scooterID)
	if err := g.transport.Signal(ctx, sessionID, name); err != nil {
		return fmt.Errorf("signal %s to %s: %w", name, sessionID, err)
	}
	return nil
}

func (g *Remote) query(ctx context.Context, scooterID, name string, out any) error {
	if scooterID == "" {
		return ErrNoSession
	}
	sessionID := SessionID(scooterID)
	if err := g.transport.Query(ctx, sessionID, name, out); err != nil {
		return fmt.Errorf("query %s on %s: %w", name, sessionID, err)
	}
	return nil
}

// Disconnected stands in for the gateway when no transport could be built.
// Every call is a no-op and queries return zero values.
type Disconnected struct{}

func (Disconnected) SessionID(scooterID string) string { return SessionID(scooterID) }

func (Disconnected) Start(context.Context, string, string) error { return nil }

func (Disconnected) SignalAddDistance(context.Context, string) error { return nil }

func (Disconnected) SignalEndRide(context.Context, string) error { return nil }

func (Disconnected) QueryTokensConsumed(context.Context, string) (int, error) { return 0, nil }

func (Disconnected) QueryRideDetails(context.Context, string) (RideDetails, error) {
	return RideDetails{}, nil
}

func (Disconnected) Close() {}
