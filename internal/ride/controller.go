// Package ride owns the local ride session: the observable State, the
// Controller that starts and ends remote sessions, and the poll loop that
// mirrors the remote charge and reports distance.
package ride

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"scooter-ride/internal/schedule"
	"scooter-ride/internal/workflow"
)

const (
	DefaultPollInterval      = 500 * time.Millisecond
	DefaultDistanceThreshold = 100
	DefaultCallTimeout       = 2 * time.Second
)

var (
	ErrRideActive   = errors.New("ride already active")
	ErrNoActiveRide = errors.New("no active ride")
	ErrNoScooter    = errors.New("scooter id required")
)

type Phase string

const (
	PhaseIdle   Phase = "idle"
	PhaseActive Phase = "active"
	PhaseEnding Phase = "ending"
)

// Gateway is the remote session protocol as the controller uses it.
type Gateway interface {
	SessionID(scooterID string) string
	Start(ctx context.Context, email, scooterID string) error
	SignalAddDistance(ctx context.Context, scooterID string) error
	SignalEndRide(ctx context.Context, scooterID string) error
	QueryTokensConsumed(ctx context.Context, scooterID string) (int, error)
	QueryRideDetails(ctx context.Context, scooterID string) (workflow.RideDetails, error)
}

// Recorder keeps a history of rides. Failures are logged and ignored.
type Recorder interface {
	RideStarted(ctx context.Context, rec Record) (string, error)
	RideEnded(ctx context.Context, id string, rec Record) error
}

// Record summarises one ride for a Recorder.
type Record struct {
	Email           string
	ScooterID       string
	SessionID       string
	StartedAt       time.Time
	EndedAt         time.Time
	TokensUsed      int
	DistanceSignals int
}

type Options struct {
	PollInterval      time.Duration
	DistanceThreshold int
	CallTimeout       time.Duration
	Recorder          Recorder
	Now               func() time.Time
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.DistanceThreshold <= 0 {
		o.DistanceThreshold = DefaultDistanceThreshold
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Controller drives the ride lifecycle: Idle -> Active on StartRide,
// Active -> Ending -> Idle on EndRide. While Active a poll loop queries the
// remote charge and accumulates distance from the current speed.
//
// Observers of State must not call back into StartRide, EndRide or SetRider:
// those notify them while holding the lifecycle lock.
type Controller struct {
	state *State
	gw    Gateway
	sched schedule.Scheduler
	opts  Options

	// mu serialises lifecycle transitions. Remote calls and the history
	// journal run under it, each bounded by CallTimeout.
	mu        sync.Mutex
	recordID  string
	startedAt time.Time

	// loopMu guards phase and the poll loop. Phase reads never wait on mu.
	loopMu     sync.Mutex
	phase      Phase
	cancelLoop func()

	// guarded by tickMu
	tickMu          sync.Mutex
	feetTraveled    int
	distanceSignals int
}

// NewController creates the ride State and subscribes to its speed changes.
func NewController(gw Gateway, sched schedule.Scheduler, opts Options) *Controller {
	if gw == nil {
		gw = workflow.Disconnected{}
	}
	if sched == nil {
		sched = schedule.NewTicker()
	}
	c := &Controller{
		state: NewState(),
		gw:    gw,
		sched: sched,
		opts:  opts.withDefaults(),
		phase: PhaseIdle,
	}
	c.state.AddObserver(ObserverFunc(c.onChange))
	return c
}

func (c *Controller) State() *State {
	return c.state
}

func (c *Controller) Phase() Phase {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	return c.phase
}

// SetRider selects who rides which scooter. It is rejected while a ride is
// running.
func (c *Controller) SetRider(email, scooterID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Phase() != PhaseIdle {
		return ErrRideActive
	}
	c.state.SetEmail(email)
	c.state.SetScooterID(scooterID)
	return nil
}

// StartRide starts the remote session and the poll loop. A failed start
// command is logged and the ride still advances to Active.
func (c *Controller) StartRide(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Phase() != PhaseIdle {
		return ErrRideActive
	}
	snap := c.state.Snapshot()
	if snap.ScooterID == "" {
		return ErrNoScooter
	}

	if err := c.withTimeout(ctx, func(ctx context.Context) error {
		return c.gw.Start(ctx, snap.Email, snap.ScooterID)
	}); err != nil {
		log.Printf("ride start for scooter %s: %v", snap.ScooterID, err)
	}

	c.tickMu.Lock()
	c.feetTraveled = 0
	c.distanceSignals = 0
	c.tickMu.Unlock()

	sessionID := c.gw.SessionID(snap.ScooterID)
	c.state.SetSessionID(sessionID)
	c.state.SetActive(true)
	c.startedAt = c.opts.Now()

	c.loopMu.Lock()
	c.phase = PhaseActive
	c.cancelLoop = c.sched.Every(c.opts.PollInterval, c.tick)
	c.loopMu.Unlock()
	log.Printf("ride started: session=%s email=%s", sessionID, snap.Email)

	c.recordStart(ctx, snap, sessionID)
	return nil
}

// EndRide signals the end of the session while its id is still set, then
// clears the local session and stops the poll loop.
func (c *Controller) EndRide(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.loopMu.Lock()
	if c.phase != PhaseActive {
		c.loopMu.Unlock()
		return ErrNoActiveRide
	}
	c.phase = PhaseEnding
	c.loopMu.Unlock()
	snap := c.state.Snapshot()

	if err := c.withTimeout(ctx, func(ctx context.Context) error {
		return c.gw.SignalEndRide(ctx, snap.ScooterID)
	}); err != nil {
		log.Printf("ride end for scooter %s: %v", snap.ScooterID, err)
	}
	c.state.SetActive(false)
	c.state.SetSessionID("")

	c.loopMu.Lock()
	c.stopLoopLocked()
	c.loopMu.Unlock()

	c.tickMu.Lock()
	signals := c.distanceSignals
	c.feetTraveled = 0
	c.distanceSignals = 0
	c.tickMu.Unlock()

	log.Printf("ride ended: session=%s tokens=%d", snap.SessionID, c.state.TokensUsed())
	c.recordEnd(ctx, snap, signals)

	c.loopMu.Lock()
	c.phase = PhaseIdle
	c.loopMu.Unlock()
	return nil
}

// RideDetails queries the remote session's detailed status.
func (c *Controller) RideDetails(ctx context.Context) (workflow.RideDetails, error) {
	snap := c.state.Snapshot()
	if !snap.Active || snap.SessionID == "" {
		return workflow.RideDetails{}, ErrNoActiveRide
	}
	return c.gw.QueryRideDetails(ctx, snap.ScooterID)
}

// Close stops the poll loop without ending the remote session.
func (c *Controller) Close() {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	c.stopLoopLocked()
}

// onChange restarts the poll loop when the speed changes mid-ride. The new
// loop ticks immediately, which refreshes tokens and distance eagerly.
func (c *Controller) onChange(change Change) {
	if change.Field != FieldCurrentSpeed {
		return
	}
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	if c.phase != PhaseActive {
		return
	}
	c.stopLoopLocked()
	c.cancelLoop = c.sched.Every(c.opts.PollInterval, c.tick)
}

func (c *Controller) stopLoopLocked() {
	if c.cancelLoop != nil {
		c.cancelLoop()
		c.cancelLoop = nil
	}
}

// tick is one poll: mirror the remote token count, add the current speed
// to the distance counter and report distance past the threshold. A tick
// that lands after EndRide sees no session and does nothing.
func (c *Controller) tick() {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	snap := c.state.Snapshot()
	if !snap.Active || snap.SessionID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.CallTimeout)
	defer cancel()

	tokens, err := c.gw.QueryTokensConsumed(ctx, snap.ScooterID)
	if err != nil {
		log.Printf("ride poll tokens for scooter %s: %v", snap.ScooterID, err)
	} else {
		c.state.SetTokensUsed(tokens)
	}

	c.feetTraveled += c.state.CurrentSpeed()
	if c.feetTraveled > c.opts.DistanceThreshold {
		if err := c.gw.SignalAddDistance(ctx, snap.ScooterID); err != nil {
			log.Printf("ride add distance for scooter %s: %v", snap.ScooterID, err)
		}
		c.distanceSignals++
		// distance past the threshold is dropped, not carried into the next report
		c.feetTraveled = min(0, c.feetTraveled-c.opts.DistanceThreshold)
	}
}

func (c *Controller) withTimeout(ctx context.Context, call func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()
	return call(ctx)
}

func (c *Controller) recordStart(ctx context.Context, snap Snapshot, sessionID string) {
	c.recordID = ""
	if c.opts.Recorder == nil {
		return
	}
	var id string
	err := c.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		id, err = c.opts.Recorder.RideStarted(ctx, Record{
			Email:     snap.Email,
			ScooterID: snap.ScooterID,
			SessionID: sessionID,
			StartedAt: c.startedAt,
		})
		return err
	})
	if err != nil {
		log.Printf("ride history start: %v", err)
		return
	}
	c.recordID = id
}

func (c *Controller) recordEnd(ctx context.Context, snap Snapshot, signals int) {
	if c.opts.Recorder == nil || c.recordID == "" {
		return
	}
	rec := Record{
		Email:           snap.Email,
		ScooterID:       snap.ScooterID,
		SessionID:       snap.SessionID,
		StartedAt:       c.startedAt,
		EndedAt:         c.opts.Now(),
		TokensUsed:      c.state.TokensUsed(),
		DistanceSignals: signals,
	}
	err := c.withTimeout(ctx, func(ctx context.Context) error {
		return c.opts.Recorder.RideEnded(ctx, c.recordID, rec)
	})
	if err != nil {
		log.Printf("ride history end: %v", err)
	}
	c.recordID = ""
}
