package runtime

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/MJE43/idleforge/internal/bignum"
	"github.com/MJE43/idleforge/internal/blueprint"
)

// Status represents a session's lifecycle state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusError   Status = "error"
)

// Emitter receives session snapshots, for example to stream them to a client.
type Emitter interface {
	EmitSnapshot(snap Snapshot)
}

// Saver persists session state. Optional; when nil nothing is saved.
type Saver interface {
	SaveState(sessionID string, st *State) error
}

// Snapshot is a serializable view of a session.
type Snapshot struct {
	SessionID      string  `json:"sessionId"`
	Status         Status  `json:"status"`
	Error          string  `json:"error,omitempty"`
	GameTitle      string  `json:"gameTitle"`
	TicksPerSecond float64 `json:"ticksPerSecond"`
	Overview
}

// emitInterval throttles snapshot emission from the tick loop.
const emitInterval = 100 * time.Millisecond

// Session runs a game: a ticker drives production while purchases arrive
// from callers. Ticks and purchases each run to completion under the session
// lock, so a purchase observes the balances of the last completed tick.
type Session struct {
	mu     sync.RWMutex
	id     string
	bp     *blueprint.GameBlueprint
	st     *State
	status Status
	err    error
	cancel context.CancelFunc
	done   chan struct{}

	interval  time.Duration
	saveEvery time.Duration
	emitter   Emitter
	saver     Saver
	logger    *log.Logger

	startTicks int64
	startTime  time.Time
	lastEmit   time.Time
	lastSave   time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithEmitter attaches a snapshot emitter.
func WithEmitter(e Emitter) Option { return func(s *Session) { s.emitter = e } }

// WithSaver persists state on stop and every interval while running. A zero
// interval saves on stop only.
func WithSaver(sv Saver, every time.Duration) Option {
	return func(s *Session) {
		s.saver = sv
		s.saveEvery = every
	}
}

// WithLogger replaces the session logger.
func WithLogger(l *log.Logger) Option { return func(s *Session) { s.logger = l } }

// WithTickInterval overrides the blueprint tick interval.
func WithTickInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.interval = d
		}
	}
}

// NewSession validates bp and hydrates a session from a deep copy of it. A
// nil saved state starts a fresh game.
func NewSession(id string, bp *blueprint.GameBlueprint, saved *State, opts ...Option) (*Session, error) {
	if err := bp.Validate(); err != nil {
		return nil, fmt.Errorf("runtime: %w", err)
	}
	frozen := bp.Clone()
	s := &Session{
		id:       id,
		bp:       frozen,
		st:       Restore(frozen, saved),
		status:   StatusIdle,
		interval: frozen.Settings.TickInterval(),
		logger:   log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, a := range frozen.Automations {
		if a.Type == blueprint.AutoSellResource {
			s.logger.Printf("automation_unsupported session=%s automation=%s type=%s", id, a.ID, a.Type)
		}
	}
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Blueprint returns the frozen blueprint. Callers must not modify it.
func (s *Session) Blueprint() *blueprint.GameBlueprint { return s.bp }

// Start begins ticking.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.status == StatusRunning {
		s.mu.Unlock()
		return fmt.Errorf("session %s is already running", s.id)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.status = StatusRunning
	s.err = nil
	s.startTime = time.Now()
	s.startTicks = s.st.Ticks
	s.lastSave = s.startTime
	done := s.done
	s.mu.Unlock()

	s.logger.Printf("session_start session=%s interval=%s", s.id, s.interval)
	s.emitState()

	go s.tickLoop(ctx, done)
	return nil
}

// Stop halts ticking, saves the state when a saver is attached and emits a
// final snapshot.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.status != StatusRunning {
		s.mu.Unlock()
		return fmt.Errorf("session %s is not running", s.id)
	}
	s.cancel()
	done := s.done
	s.status = StatusStopped
	s.mu.Unlock()

	<-done

	s.save()
	s.mu.RLock()
	ticks := s.st.Ticks
	s.mu.RUnlock()
	s.logger.Printf("session_stop session=%s ticks=%d", s.id, ticks)
	s.emitState()
	return nil
}

// Status returns the lifecycle state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Snapshot returns the current session view.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// State returns a copy of the live state.
func (s *Session) State() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.Clone()
}

// Advance runs n ticks with automations immediately, independent of the
// ticker.
func (s *Session) Advance(n int) {
	s.mu.Lock()
	for i := 0; i < n; i++ {
		Step(s.bp, s.st)
	}
	s.mu.Unlock()
	s.emitState()
}

// CatchUp credits offline production for the time since the state was saved.
func (s *Session) CatchUp(elapsed time.Duration) int64 {
	s.mu.Lock()
	ticks := ApplyOffline(s.bp, s.st, elapsed)
	s.mu.Unlock()
	if ticks > 0 {
		s.logger.Printf("offline_progress session=%s elapsed=%s ticks=%d", s.id, elapsed, ticks)
		s.emitState()
	}
	return ticks
}

// PurchaseGenerator buys one level of a generator.
func (s *Session) PurchaseGenerator(id string) bool {
	s.mu.Lock()
	ok := PurchaseGenerator(s.bp, s.st, id)
	s.mu.Unlock()
	if ok {
		s.emitState()
	}
	return ok
}

// PurchaseUpgrade buys one level of an upgrade.
func (s *Session) PurchaseUpgrade(id string) bool {
	s.mu.Lock()
	ok := PurchaseUpgrade(s.bp, s.st, id)
	s.mu.Unlock()
	if ok {
		s.emitState()
	}
	return ok
}

// Prestige resets the game through a prestige tier.
func (s *Session) Prestige(tierID string) (bignum.Number, bool) {
	s.mu.Lock()
	payout, ok := Prestige(s.bp, s.st, tierID)
	s.mu.Unlock()
	if ok {
		s.logger.Printf("prestige session=%s tier=%s payout=%s", s.id, tierID, payout.Format())
		s.emitState()
	}
	return payout, ok
}

func (s *Session) tickLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			s.setError(fmt.Errorf("tick panic: %v", r))
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		fired := Step(s.bp, s.st)
		saveDue := s.saver != nil && s.saveEvery > 0 && time.Since(s.lastSave) >= s.saveEvery
		s.mu.Unlock()

		if len(fired) > 0 {
			s.logger.Printf("automation_fired session=%s automations=%v", s.id, fired)
		}
		if saveDue {
			s.save()
		}
		s.throttledEmitState()
	}
}

func (s *Session) save() {
	if s.saver == nil {
		return
	}
	s.mu.Lock()
	st := s.st.Clone()
	s.lastSave = time.Now()
	s.mu.Unlock()

	if err := s.saver.SaveState(s.id, st); err != nil {
		s.logger.Printf("save_failed session=%s error=%v", s.id, err)
	}
}

func (s *Session) setError(err error) {
	s.mu.Lock()
	s.status = StatusError
	s.err = err
	s.mu.Unlock()
	s.logger.Printf("session_error session=%s error=%v", s.id, err)
	s.emitState()
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		SessionID: s.id,
		Status:    s.status,
		GameTitle: s.bp.GameTitle,
		Overview:  Inspect(s.bp, s.st),
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	if s.status == StatusRunning {
		if elapsed := time.Since(s.startTime).Seconds(); elapsed > 0 {
			snap.TicksPerSecond = float64(s.st.Ticks-s.startTicks) / elapsed
		}
	}
	return snap
}

func (s *Session) emitState() {
	if s.emitter == nil {
		return
	}
	s.mu.Lock()
	snap := s.snapshot()
	s.lastEmit = time.Now()
	s.mu.Unlock()
	s.emitter.EmitSnapshot(snap)
}

// throttledEmitState only emits if at least emitInterval has passed since the
// last emission.
func (s *Session) throttledEmitState() {
	s.mu.RLock()
	recent := time.Since(s.lastEmit) < emitInterval
	s.mu.RUnlock()
	if recent {
		return
	}
	s.emitState()
}
