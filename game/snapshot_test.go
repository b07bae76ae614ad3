package game

import (
	"sort"
	"testing"

	"go.uber.org/zap"

	"github.com/lab1702/tank2d-server/protocol"
	"github.com/lab1702/tank2d-server/session"
)

func entityIDs(tanks []protocol.TankState) []uint32 {
	ids := make([]uint32, 0, len(tanks))
	for _, t := range tanks {
		ids = append(ids, t.EntityID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func equalIDs(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSnapshotCadenceFullThenDeltas(t *testing.T) {
	reg := session.NewManager(zap.NewNop().Sugar())
	tuning := testTuning()
	tuning.SnapshotIntervalTicks = 1
	tuning.FullSnapshotIntervalTicks = 3
	m := newTestMatch(t, reg, tuning, "human", "human")

	// Baseline at tick 0, as the matchmaker does.
	base := m.BuildFullSnapshot()
	if base.ServerTick != 0 {
		t.Fatalf("baseline tick = %d, want 0", base.ServerTick)
	}

	var kinds []string
	for i := 0; i < 6; i++ {
		m.advanceTick(reg, testDt)
	}
	for _, msg := range reg.DrainMessages(m.Players[0]) {
		switch msg.(type) {
		case *protocol.StateSnapshot:
			kinds = append(kinds, "full")
		case *protocol.DeltaSnapshot:
			kinds = append(kinds, "delta")
		}
	}
	want := []string{"delta", "delta", "full", "delta", "delta", "full"}
	if len(kinds) != len(want) {
		t.Fatalf("got %d snapshots %v, want %d", len(kinds), kinds, len(want))
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("snapshot sequence %v, want %v", kinds, want)
		}
	}
}

func TestDeltaBaseTickPointsAtLastFull(t *testing.T) {
	reg := session.NewManager(zap.NewNop().Sugar())
	tuning := testTuning()
	tuning.SnapshotIntervalTicks = 1
	tuning.FullSnapshotIntervalTicks = 10
	m := newTestMatch(t, reg, tuning, "human", "human")
	m.BuildFullSnapshot()

	m.advanceTick(reg, testDt)
	msgs := reg.DrainMessages(m.Players[0])
	deltas := drainByType[*protocol.DeltaSnapshot](msgs)
	if len(deltas) != 1 {
		t.Fatalf("got %d deltas, want 1", len(deltas))
	}
	if deltas[0].BaseTick != 0 {
		t.Fatalf("BaseTick = %d, want 0", deltas[0].BaseTick)
	}
	if deltas[0].ServerTick != 1 {
		t.Fatalf("ServerTick = %d, want 1", deltas[0].ServerTick)
	}
}

func TestUnchangedTankExcludedFromDelta(t *testing.T) {
	reg := session.NewManager(zap.NewNop().Sugar())
	tuning := testTuning()
	tuning.SnapshotIntervalTicks = 1
	tuning.FullSnapshotIntervalTicks = 1000
	m := newTestMatch(t, reg, tuning, "human", "human")
	m.BuildFullSnapshot()

	// Nobody moves: deltas must be empty of tanks.
	m.advanceTick(reg, testDt)
	m.advanceTick(reg, testDt)
	deltas := drainByType[*protocol.DeltaSnapshot](reg.DrainMessages(m.Players[0]))
	for _, d := range deltas {
		if len(d.Tanks) != 0 {
			t.Fatalf("idle tank included in delta: %+v", d.Tanks)
		}
	}

	// One tank moves: only that tank appears.
	reg.UpdateInput(m.Players[0], &protocol.InputCommand{ClientTick: 1, MoveDir: 1.0})
	for i := 0; i < 5; i++ {
		m.advanceTick(reg, testDt)
	}
	deltas = drainByType[*protocol.DeltaSnapshot](reg.DrainMessages(m.Players[0]))
	sawMover := false
	for _, d := range deltas {
		for _, ts := range d.Tanks {
			if ts.EntityID == m.Tanks[1].EntityID {
				t.Fatal("idle tank included in delta while only tank 1 moved")
			}
			if ts.EntityID == m.Tanks[0].EntityID {
				sawMover = true
			}
		}
	}
	if !sawMover {
		t.Fatal("moving tank never appeared in a delta")
	}
}

// The replay law: F1 plus the intervening deltas reconstructs F2's entity
// set.
func TestDeltaReplayReconstructsFullSnapshot(t *testing.T) {
	reg := session.NewManager(zap.NewNop().Sugar())
	tuning := testTuning()
	tuning.SnapshotIntervalTicks = 1
	tuning.FullSnapshotIntervalTicks = 4
	m := newTestMatch(t, reg, tuning, "human", "human", "human")

	f1 := m.BuildFullSnapshot()

	// Kill tank 3 during the delta window.
	m.advanceTick(reg, testDt)
	victim := m.Tanks[2]
	pos := victim.Hull.Position()
	victim.HP = 50
	injectProjectile(m, m.Tanks[0].EntityID, pos.X, pos.Y, 0.1, 0)
	for i := 0; i < 3; i++ {
		m.advanceTick(reg, testDt)
	}

	var deltas []*protocol.DeltaSnapshot
	var f2 *protocol.StateSnapshot
	for _, msg := range reg.DrainMessages(m.Players[0]) {
		switch s := msg.(type) {
		case *protocol.DeltaSnapshot:
			if f2 == nil {
				deltas = append(deltas, s)
			}
		case *protocol.StateSnapshot:
			f2 = s
		}
	}
	if f2 == nil {
		t.Fatal("no full snapshot emitted in the window")
	}

	// Replay: upsert delta tanks, then drop removed ids.
	alive := make(map[uint32]bool)
	for _, ts := range f1.Tanks {
		alive[ts.EntityID] = true
	}
	for _, d := range deltas {
		for _, ts := range d.Tanks {
			alive[ts.EntityID] = true
		}
		for _, id := range d.RemovedTanks {
			delete(alive, id)
		}
	}
	var got []uint32
	for id := range alive {
		got = append(got, id)
	}
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })

	if !equalIDs(got, entityIDs(f2.Tanks)) {
		t.Fatalf("replayed entity set %v != full snapshot set %v", got, entityIDs(f2.Tanks))
	}
	// The dead tank must be gone from the second full snapshot.
	for _, id := range entityIDs(f2.Tanks) {
		if id == victim.EntityID {
			t.Fatal("dead tank re-included in a full snapshot")
		}
	}
}

func TestRemovedListsClearedByFullSnapshot(t *testing.T) {
	reg := session.NewManager(zap.NewNop().Sugar())
	m := newTestMatch(t, reg, testTuning(), "human", "human")

	m.removedTanksSinceFull = append(m.removedTanksSinceFull, 9)
	m.removedProjectilesSinceFull = append(m.removedProjectilesSinceFull, 7)
	m.BuildFullSnapshot()
	if len(m.removedTanksSinceFull) != 0 || len(m.removedProjectilesSinceFull) != 0 {
		t.Fatal("full snapshot did not clear removed-id accumulators")
	}
}

func TestQuantizationRounding(t *testing.T) {
	reg := session.NewManager(zap.NewNop().Sugar())
	tuning := testTuning()
	tuning.Quantize = true
	m := newTestMatch(t, reg, tuning, "human", "human")

	if got := m.quantPos(1.23456); got != 1.23 {
		t.Errorf("quantPos = %v, want 1.23", got)
	}
	if got := m.quantAngle(33.4567); got != 33.5 {
		t.Errorf("quantAngle = %v, want 33.5", got)
	}

	m.Tuning.Quantize = false
	if got := m.quantPos(1.23456); got != float32(1.23456) {
		t.Errorf("unquantized pos = %v", got)
	}
}
