package ride

import (
	"sync"
	"time"
)

const (
	MinSpeed = 0
	MaxSpeed = 50
)

type Field string

const (
	FieldEmail        Field = "email"
	FieldScooterID    Field = "scooterId"
	FieldSessionID    Field = "sessionId"
	FieldActive       Field = "active"
	FieldTokensUsed   Field = "tokensUsed"
	FieldCurrentSpeed Field = "currentSpeed"
)

// Change describes one field transition. ScooterID is the scooter selected
// at the time of the change.
type Change struct {
	Field     Field     `json:"field"`
	Old       any       `json:"old"`
	New       any       `json:"new"`
	ScooterID string    `json:"scooter_id"`
	At        time.Time `json:"at"`
}

// Observer receives changes in the order they were stored. Delivery runs on
// a writer's goroutine; a write made while another goroutine is delivering
// is queued and handed to that goroutine, so implementations must return
// quickly.
type Observer interface {
	OnChange(Change)
}

type ObserverFunc func(Change)

func (f ObserverFunc) OnChange(c Change) { f(c) }

type Snapshot struct {
	Email        string `json:"email,omitempty"`
	ScooterID    string `json:"scooter_id,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	Active       bool   `json:"active"`
	TokensUsed   int    `json:"tokens_used"`
	CurrentSpeed int    `json:"current_speed"`
}

// State is the observable record of the current ride. One instance lives
// for the whole process and is reset field by field between rides.
type State struct {
	mu        sync.RWMutex
	snap      Snapshot
	observers []registered
	nextID    int
	now       func() time.Time

	// guarded by mu
	pending     []Change
	dispatching bool
}

type registered struct {
	id       int
	observer Observer
}

func NewState() *State {
	return &State{now: time.Now}
}

// AddObserver registers o and returns an id for RemoveObserver.
func (s *State) AddObserver(o Observer) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.observers = append(s.observers, registered{id: s.nextID, observer: o})
	return s.nextID
}

func (s *State) RemoveObserver(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.observers {
		if r.id == id {
			s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
			return
		}
	}
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *State) Email() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Email
}

func (s *State) ScooterID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.ScooterID
}

func (s *State) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.SessionID
}

func (s *State) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Active
}

func (s *State) TokensUsed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.TokensUsed
}

func (s *State) CurrentSpeed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.CurrentSpeed
}

func (s *State) SetEmail(v string) {
	setField(s, FieldEmail, func(sn *Snapshot) *string { return &sn.Email }, v)
}

func (s *State) SetScooterID(v string) {
	setField(s, FieldScooterID, func(sn *Snapshot) *string { return &sn.ScooterID }, v)
}

func (s *State) SetSessionID(v string) {
	setField(s, FieldSessionID, func(sn *Snapshot) *string { return &sn.SessionID }, v)
}

func (s *State) SetActive(v bool) {
	setField(s, FieldActive, func(sn *Snapshot) *bool { return &sn.Active }, v)
}

// SetTokensUsed ignores negative counts.
func (s *State) SetTokensUsed(v int) {
	if v < 0 {
		return
	}
	setField(s, FieldTokensUsed, func(sn *Snapshot) *int { return &sn.TokensUsed }, v)
}

// SetCurrentSpeed ignores values outside [MinSpeed, MaxSpeed].
func (s *State) SetCurrentSpeed(v int) {
	if v < MinSpeed || v > MaxSpeed {
		return
	}
	setField(s, FieldCurrentSpeed, func(sn *Snapshot) *int { return &sn.CurrentSpeed }, v)
}

// setField writes one field and, if the value changed, queues a Change for
// observers. Observers run outside mu so they may read the State.
func setField[T comparable](s *State, field Field, ref func(*Snapshot) *T, v T) {
	s.mu.Lock()
	ptr := ref(&s.snap)
	old := *ptr
	if old == v {
		s.mu.Unlock()
		return
	}
	*ptr = v
	s.pending = append(s.pending, Change{Field: field, Old: old, New: v, ScooterID: s.snap.ScooterID, At: s.now()})
	if s.dispatching {
		s.mu.Unlock()
		return
	}
	s.dispatching = true
	s.mu.Unlock()

	s.dispatch()
}

func (s *State) dispatch() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.dispatching = false
			s.mu.Unlock()
			return
		}
		change := s.pending[0]
		s.pending = s.pending[1:]
		observers := make([]Observer, len(s.observers))
		for i, r := range s.observers {
			observers[i] = r.observer
		}
		s.mu.Unlock()

		for _, o := range observers {
			o.OnChange(change)
		}
	}
}
