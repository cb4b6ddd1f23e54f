package ride

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"scooter-ride/internal/schedule"
	"scooter-ride/internal/workflow"
)

type gatewayCall struct {
	op        string
	sessionID string
}

type fakeGateway struct {
	mu      sync.Mutex
	calls   []gatewayCall
	tokens  int
	err     error
	details workflow.RideDetails
}

func (g *fakeGateway) record(op, scooterID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, gatewayCall{op: op, sessionID: workflow.SessionID(scooterID)})
}

func (g *fakeGateway) SessionID(scooterID string) string { return workflow.SessionID(scooterID) }

func (g *fakeGateway) Start(_ context.Context, _, scooterID string) error {
	g.record("start", scooterID)
	return g.err
}

func (g *fakeGateway) SignalAddDistance(_ context.Context, scooterID string) error {
	g.record("addDistance", scooterID)
	return g.err
}

func (g *fakeGateway) SignalEndRide(_ context.Context, scooterID string) error {
	g.record("endRide", scooterID)
	return g.err
}

func (g *fakeGateway) QueryTokensConsumed(_ context.Context, scooterID string) (int, error) {
	g.record("tokensConsumed", scooterID)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tokens, g.err
}

func (g *fakeGateway) QueryRideDetails(_ context.Context, scooterID string) (workflow.RideDetails, error) {
	g.record("getRideDetails", scooterID)
	return g.details, g.err
}

func (g *fakeGateway) setTokens(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tokens = n
}

func (g *fakeGateway) count(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

func (g *fakeGateway) total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type fakeRecorder struct {
	started []Record
	ended   []Record
	endedID string
	err     error
}

func (r *fakeRecorder) RideStarted(_ context.Context, rec Record) (string, error) {
	r.started = append(r.started, rec)
	return "ride-1", r.err
}

func (r *fakeRecorder) RideEnded(_ context.Context, id string, rec Record) error {
	r.endedID = id
	r.ended = append(r.ended, rec)
	return r.err
}

var errGateway = errors.New("gateway error")

func newTestController(t *testing.T, gw Gateway, opts Options) (*Controller, *schedule.Manual) {
	t.Helper()
	sched := schedule.NewManual()
	c := NewController(gw, sched, opts)
	t.Cleanup(c.Close)
	return c, sched
}

func startRide(t *testing.T, c *Controller, scooterID string) {
	t.Helper()
	if err := c.SetRider("rider@example.com", scooterID); err != nil {
		t.Fatalf("set rider: %v", err)
	}
	if err := c.StartRide(context.Background()); err != nil {
		t.Fatalf("start ride: %v", err)
	}
}

func TestStartRideActivatesAndPolls(t *testing.T) {
	gw := &fakeGateway{tokens: 10}
	c, sched := newTestController(t, gw, Options{})

	startRide(t, c, "S1")

	snap := c.State().Snapshot()
	if !snap.Active || snap.SessionID != "scooter-session-S1" {
		t.Fatalf("unexpected state %+v", snap)
	}
	if c.Phase() != PhaseActive {
		t.Fatalf("phase = %s", c.Phase())
	}
	if gw.count("start") != 1 {
		t.Fatalf("start calls = %d", gw.count("start"))
	}
	// first tick runs right away
	if gw.count("tokensConsumed") != 1 || snap.TokensUsed != 10 {
		t.Fatalf("expected immediate poll, got %d queries, tokens %d", gw.count("tokensConsumed"), snap.TokensUsed)
	}

	gw.setTokens(12)
	sched.Advance(500 * time.Millisecond)
	if c.State().TokensUsed() != 12 {
		t.Fatalf("tokens = %d, want 12", c.State().TokensUsed())
	}
	if gw.count("tokensConsumed") != 2 {
		t.Fatalf("queries = %d, want 2", gw.count("tokensConsumed"))
	}
}

func TestTickAccumulatesAndSignalsPastThreshold(t *testing.T) {
	gw := &fakeGateway{}
	c, sched := newTestController(t, gw, Options{})
	c.State().SetCurrentSpeed(30)

	startRide(t, c, "S1") // tick 1: 30
	for tick, want := range []int{60, 90} {
		sched.Advance(500 * time.Millisecond)
		if gw.count("addDistance") != 0 {
			t.Fatalf("tick %d: unexpected addDistance", tick+2)
		}
		if got := c.feet(); got != want {
			t.Fatalf("tick %d: feet = %d, want %d", tick+2, got, want)
		}
	}

	sched.Advance(500 * time.Millisecond) // tick 4: 120 > 100
	if gw.count("addDistance") != 1 {
		t.Fatalf("addDistance = %d, want 1", gw.count("addDistance"))
	}
	if got := c.feet(); got != 0 {
		t.Fatalf("feet after reset = %d, want 0", got)
	}
}

func TestExactThresholdDoesNotSignal(t *testing.T) {
	gw := &fakeGateway{}
	c, sched := newTestController(t, gw, Options{})
	c.State().SetCurrentSpeed(50)

	startRide(t, c, "S1") // 50
	sched.Advance(500 * time.Millisecond)
	if c.feet() != 100 || gw.count("addDistance") != 0 {
		t.Fatalf("feet = %d, signals = %d", c.feet(), gw.count("addDistance"))
	}
	sched.Advance(500 * time.Millisecond)
	if gw.count("addDistance") != 1 {
		t.Fatalf("signals = %d, want 1", gw.count("addDistance"))
	}
}

func TestTickUsesSpeedAtTickTime(t *testing.T) {
	gw := &fakeGateway{}
	c, sched := newTestController(t, gw, Options{})

	startRide(t, c, "S1") // speed 0
	c.State().SetCurrentSpeed(40)
	// speed change restarts the loop and ticks at once
	if c.feet() != 40 {
		t.Fatalf("feet = %d, want 40", c.feet())
	}
	sched.Advance(500 * time.Millisecond)
	if c.feet() != 80 {
		t.Fatalf("feet = %d, want 80", c.feet())
	}
}

func TestSpeedChangeRestartsLoop(t *testing.T) {
	gw := &fakeGateway{}
	c, sched := newTestController(t, gw, Options{})
	startRide(t, c, "S1")

	sched.Advance(300 * time.Millisecond)
	before := gw.count("tokensConsumed")
	c.State().SetCurrentSpeed(10)
	if gw.count("tokensConsumed") != before+1 {
		t.Fatalf("expected eager refresh on speed change")
	}
	if sched.Pending() != 1 {
		t.Fatalf("pending loops = %d, want 1", sched.Pending())
	}

	// old schedule would have ticked at 500ms; the new one ticks 500ms after the change
	sched.Advance(200 * time.Millisecond)
	if gw.count("tokensConsumed") != before+1 {
		t.Fatalf("old loop still ticking")
	}
	sched.Advance(300 * time.Millisecond)
	if gw.count("tokensConsumed") != before+2 {
		t.Fatalf("new loop did not tick")
	}
}

func TestSpeedChangeWhileIdleDoesNotPoll(t *testing.T) {
	gw := &fakeGateway{}
	c, sched := newTestController(t, gw, Options{})

	c.State().SetCurrentSpeed(20)
	if gw.total() != 0 || sched.Pending() != 0 {
		t.Fatalf("idle speed change triggered polling")
	}
}

func TestEndRideClearsStateAndStopsLoop(t *testing.T) {
	gw := &fakeGateway{}
	c, sched := newTestController(t, gw, Options{})
	c.State().SetCurrentSpeed(30)
	startRide(t, c, "S1")
	sched.Advance(time.Second)

	if err := c.EndRide(context.Background()); err != nil {
		t.Fatalf("end ride: %v", err)
	}

	snap := c.State().Snapshot()
	if snap.Active || snap.SessionID != "" {
		t.Fatalf("unexpected state after end %+v", snap)
	}
	if c.Phase() != PhaseIdle {
		t.Fatalf("phase = %s", c.Phase())
	}
	if gw.count("endRide") != 1 {
		t.Fatalf("endRide calls = %d", gw.count("endRide"))
	}
	if sched.Pending() != 0 {
		t.Fatalf("loop still scheduled")
	}
	if c.feet() != 0 {
		t.Fatalf("feet = %d after end", c.feet())
	}

	calls := gw.total()
	sched.Advance(5 * time.Second)
	if gw.total() != calls {
		t.Fatalf("gateway calls after end: %d -> %d", calls, gw.total())
	}
}

func TestEndRideSignalsWithStillValidSession(t *testing.T) {
	gw := &fakeGateway{}
	c, _ := newTestController(t, gw, Options{})
	startRide(t, c, "S1")

	var sessionAtSignal string
	c.State().AddObserver(ObserverFunc(func(ch Change) {
		if ch.Field == FieldActive && ch.New == false && sessionAtSignal == "" {
			sessionAtSignal = c.State().SessionID()
		}
	}))

	if err := c.EndRide(context.Background()); err != nil {
		t.Fatalf("end ride: %v", err)
	}
	if sessionAtSignal != "scooter-session-S1" {
		t.Fatalf("session cleared before active flag: %q", sessionAtSignal)
	}
	gw.mu.Lock()
	last := gw.calls[len(gw.calls)-1]
	gw.mu.Unlock()
	if last.op != "endRide" || last.sessionID != "scooter-session-S1" {
		t.Fatalf("unexpected end call %+v", last)
	}
}

func TestStaleTickAfterEndIsNoop(t *testing.T) {
	gw := &fakeGateway{}
	c, _ := newTestController(t, gw, Options{})
	startRide(t, c, "S1")
	if err := c.EndRide(context.Background()); err != nil {
		t.Fatalf("end ride: %v", err)
	}

	calls := gw.total()
	c.tick()
	if gw.total() != calls {
		t.Fatalf("stale tick reached the gateway")
	}
}

func TestLifecycleWithRealTicker(t *testing.T) {
	gw := &fakeGateway{}
	c := NewController(gw, schedule.NewTicker(), Options{PollInterval: 2 * time.Millisecond})
	defer c.Close()
	c.State().SetCurrentSpeed(50)

	startRide(t, c, "S1")
	time.Sleep(20 * time.Millisecond)
	if err := c.EndRide(context.Background()); err != nil {
		t.Fatalf("end ride: %v", err)
	}

	calls := gw.total()
	time.Sleep(20 * time.Millisecond)
	if gw.total() != calls {
		t.Fatalf("gateway calls after end: %d -> %d", calls, gw.total())
	}
	if gw.count("tokensConsumed") < 2 {
		t.Fatalf("expected several polls, got %d", gw.count("tokensConsumed"))
	}
}

func TestDerivedSessionIDForAllCalls(t *testing.T) {
	gw := &fakeGateway{}
	c, sched := newTestController(t, gw, Options{})
	c.State().SetCurrentSpeed(50)
	startRide(t, c, "S42")
	sched.Advance(time.Second)
	if _, err := c.RideDetails(context.Background()); err != nil {
		t.Fatalf("details: %v", err)
	}
	if err := c.EndRide(context.Background()); err != nil {
		t.Fatalf("end ride: %v", err)
	}

	for _, op := range []string{"start", "tokensConsumed", "addDistance", "getRideDetails", "endRide"} {
		if gw.count(op) == 0 {
			t.Fatalf("expected a %s call", op)
		}
	}
	gw.mu.Lock()
	defer gw.mu.Unlock()
	for _, call := range gw.calls {
		if call.sessionID != "scooter-session-S42" {
			t.Fatalf("%s used %q", call.op, call.sessionID)
		}
	}
}

func TestGatewayFailuresAreAbsorbed(t *testing.T) {
	gw := &fakeGateway{err: errGateway}
	c, sched := newTestController(t, gw, Options{})
	c.State().SetTokensUsed(4)
	c.State().SetCurrentSpeed(50)

	startRide(t, c, "S1")
	sched.Advance(2 * time.Second)
	if c.State().TokensUsed() != 4 {
		t.Fatalf("tokens = %d, stale value should be kept", c.State().TokensUsed())
	}
	if !c.State().Active() {
		t.Fatalf("ride should stay active after failed start")
	}
	if err := c.EndRide(context.Background()); err != nil {
		t.Fatalf("end ride: %v", err)
	}
}

func TestDisconnectedGatewayDegrades(t *testing.T) {
	gw, err := workflow.NewGateway(func() (workflow.Transport, error) { return nil, errGateway })
	if !errors.Is(err, workflow.ErrGatewayUnavailable) {
		t.Fatalf("err = %v", err)
	}

	c, sched := newTestController(t, gw, Options{})
	c.State().SetTokensUsed(9)
	c.State().SetCurrentSpeed(50)
	startRide(t, c, "S1")
	sched.Advance(3 * time.Second)

	if c.State().TokensUsed() != 0 {
		t.Fatalf("tokens = %d, want sentinel 0", c.State().TokensUsed())
	}
	if err := c.EndRide(context.Background()); err != nil {
		t.Fatalf("end ride: %v", err)
	}
}

func TestNilGatewayDefaultsToDisconnected(t *testing.T) {
	c, _ := newTestController(t, nil, Options{})
	startRide(t, c, "S1")
	if err := c.EndRide(context.Background()); err != nil {
		t.Fatalf("end ride: %v", err)
	}
}

func TestMisuseErrors(t *testing.T) {
	gw := &fakeGateway{}
	c, _ := newTestController(t, gw, Options{})

	if err := c.StartRide(context.Background()); !errors.Is(err, ErrNoScooter) {
		t.Fatalf("start without scooter err = %v", err)
	}
	if err := c.EndRide(context.Background()); !errors.Is(err, ErrNoActiveRide) {
		t.Fatalf("end while idle err = %v", err)
	}
	if _, err := c.RideDetails(context.Background()); !errors.Is(err, ErrNoActiveRide) {
		t.Fatalf("details while idle err = %v", err)
	}

	startRide(t, c, "S1")
	if err := c.StartRide(context.Background()); !errors.Is(err, ErrRideActive) {
		t.Fatalf("double start err = %v", err)
	}
	if err := c.SetRider("other@example.com", "S2"); !errors.Is(err, ErrRideActive) {
		t.Fatalf("set rider while active err = %v", err)
	}
	if gw.count("start") != 1 {
		t.Fatalf("start calls = %d", gw.count("start"))
	}
}

func TestRideCanRestartAfterEnd(t *testing.T) {
	gw := &fakeGateway{}
	c, sched := newTestController(t, gw, Options{})
	c.State().SetCurrentSpeed(30)
	startRide(t, c, "S1")
	sched.Advance(time.Second)
	if err := c.EndRide(context.Background()); err != nil {
		t.Fatalf("end ride: %v", err)
	}

	startRide(t, c, "S2")
	if c.State().SessionID() != "scooter-session-S2" {
		t.Fatalf("session = %q", c.State().SessionID())
	}
	if c.feet() != 30 {
		t.Fatalf("feet = %d, counter should restart from zero", c.feet())
	}
}

func TestRecorderReceivesRide(t *testing.T) {
	gw := &fakeGateway{tokens: 21}
	rec := &fakeRecorder{}
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	c, sched := newTestController(t, gw, Options{
		Recorder: rec,
		Now:      func() time.Time { return now },
	})
	c.State().SetCurrentSpeed(50)

	startRide(t, c, "S1")
	sched.Advance(2 * time.Second)
	if err := c.EndRide(context.Background()); err != nil {
		t.Fatalf("end ride: %v", err)
	}

	if len(rec.started) != 1 || rec.started[0].SessionID != "scooter-session-S1" || rec.started[0].Email != "rider@example.com" {
		t.Fatalf("unexpected start record %+v", rec.started)
	}
	if rec.endedID != "ride-1" || len(rec.ended) != 1 {
		t.Fatalf("unexpected end record %q %+v", rec.endedID, rec.ended)
	}
	end := rec.ended[0]
	if end.TokensUsed != 21 || end.DistanceSignals != gw.count("addDistance") || end.DistanceSignals == 0 {
		t.Fatalf("unexpected end record %+v", end)
	}
}

func TestRecorderErrorsAreIgnored(t *testing.T) {
	rec := &fakeRecorder{err: errGateway}
	c, _ := newTestController(t, &fakeGateway{}, Options{Recorder: rec})
	startRide(t, c, "S1")
	if err := c.EndRide(context.Background()); err != nil {
		t.Fatalf("end ride: %v", err)
	}
	if len(rec.ended) != 0 {
		t.Fatalf("end should be skipped without a record id")
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	if o.PollInterval != 500*time.Millisecond || o.DistanceThreshold != 100 || o.CallTimeout != 2*time.Second || o.Now == nil {
		t.Fatalf("unexpected defaults %+v", o)
	}
}

func (c *Controller) feet() int {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()
	return c.feetTraveled
}
