package runtime

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MJE43/idleforge/internal/bignum"
	"github.com/MJE43/idleforge/internal/blueprint"
)

type recordingEmitter struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (e *recordingEmitter) EmitSnapshot(snap Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snaps = append(e.snaps, snap)
}

func (e *recordingEmitter) last() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snaps[len(e.snaps)-1]
}

type memorySaver struct {
	mu    sync.Mutex
	saves map[string]*State
	count int
}

func (s *memorySaver) SaveState(sessionID string, st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saves == nil {
		s.saves = make(map[string]*State)
	}
	s.saves[sessionID] = st
	s.count++
	return nil
}

func TestSessionStartStop(t *testing.T) {
	bp := testBlueprint()
	emitter := &recordingEmitter{}
	saver := &memorySaver{}

	sess, err := NewSession("s1", bp, nil,
		WithEmitter(emitter),
		WithSaver(saver, 0),
		WithTickInterval(5*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	if !sess.PurchaseGenerator("farm") {
		t.Fatal("purchase before start should succeed")
	}

	if err := sess.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := sess.Start(); err == nil {
		t.Error("second Start should fail")
	}

	time.Sleep(100 * time.Millisecond)

	if err := sess.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := sess.Stop(); err == nil {
		t.Error("second Stop should fail")
	}

	snap := sess.Snapshot()
	if snap.Status != StatusStopped {
		t.Errorf("expected stopped, got %s", snap.Status)
	}
	if snap.Ticks == 0 {
		t.Fatal("expected some ticks")
	}
	// 88.5 after the purchase plus 3 gold per tick.
	want := num("88.5").Add(num("3").Mul(bignum.FromInt(snap.Ticks)))
	if !snap.Resources["gold"].Equal(want) {
		t.Errorf("gold = %s, want %s after %d ticks", snap.Resources["gold"], want, snap.Ticks)
	}

	if emitter.last().Status != StatusStopped {
		t.Error("final snapshot not emitted")
	}
	saved := saver.saves["s1"]
	if saved == nil || saved.Ticks != snap.Ticks {
		t.Errorf("state not saved on stop: %+v", saved)
	}
}

func TestSessionDoesNotAliasBlueprint(t *testing.T) {
	bp := testBlueprint()
	sess, err := NewSession("s2", bp, nil)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	bp.Generators[0].BaseCosts[0].Amount = num("1e9")

	if !sess.PurchaseGenerator("farm") {
		t.Fatal("editor change leaked into the session")
	}
}

func TestSessionAdvanceAndPrestige(t *testing.T) {
	bp := testBlueprint()
	bp.Tiers = []blueprint.Tier{{ID: "p", IsPrestigeTier: true, PrestigeCurrencyID: "stars"}}
	bp.Tiers[0].PrestigeFormula.Steps = nil

	sess, err := NewSession("s3", bp, nil)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	sess.PurchaseGenerator("farm")
	sess.Advance(10)

	st := sess.State()
	if st.Ticks != 10 || !st.Resource("gold").Equal(num("118.5")) {
		t.Fatalf("after advance: ticks=%d gold=%s", st.Ticks, st.Resource("gold"))
	}
	if _, ok := sess.Prestige("p"); ok {
		t.Error("empty prestige formula pays nothing")
	}
}

func TestSessionRejectsInvalidBlueprint(t *testing.T) {
	bp := testBlueprint()
	bp.Generators[0].OutputResource = "missing"
	_, err := NewSession("bad", bp, nil)
	if !errors.Is(err, blueprint.ErrUnknownReference) {
		t.Fatalf("expected ErrUnknownReference, got %v", err)
	}
}

func TestSessionCatchUp(t *testing.T) {
	bp := testBlueprint()
	saved := NewState(bp)
	saved.Generators["farm"] = num("1")

	sess, err := NewSession("s4", bp, saved)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	if ticks := sess.CatchUp(5 * time.Second); ticks != 5 {
		t.Fatalf("ticks = %d, want 5", ticks)
	}
	if got := sess.State().Resource("gold"); !got.Equal(num("115")) {
		t.Errorf("gold = %s, want 115", got)
	}
}

func TestManager(t *testing.T) {
	m := NewManager()
	sess, err := m.Create(testBlueprint(), nil, WithTickInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	got, err := m.Get(sess.ID())
	if err != nil || got != sess {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if ids := m.List(); len(ids) != 1 || ids[0] != sess.ID() {
		t.Errorf("List = %v", ids)
	}

	if err := sess.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := m.Remove(sess.ID()); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if sess.Status() != StatusStopped {
		t.Errorf("removed session still %s", sess.Status())
	}
	if _, err := m.Get(sess.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := m.Remove("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}
