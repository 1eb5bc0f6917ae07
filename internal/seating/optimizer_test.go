package seating

import (
    "context"
    "testing"

    "github.com/stretchr/testify/require"

    "github.com/iliyamo/event-seating/internal/model"
)

func optimizerState(tables []model.Table, assignments []model.SeatAssignment, edges []model.PreferenceEdge) ChartState {
    return ChartState{Version: 1, Tables: tables, Assignments: assignments, Edges: edges}
}

func tablesWithCapacity(caps ...uint32) []model.Table {
    out := make([]model.Table, len(caps))
    for i, cap := range caps {
        out[i] = model.Table{ID: uint64(i + 1), EventID: 7, Capacity: cap, Shape: model.TableShapeRound}
    }
    return out
}

func assignedTables(t *testing.T, p Proposal) map[uint64]uint64 {
    t.Helper()
    at := make(map[uint64]uint64, len(p.Assignments))
    for _, a := range p.Assignments {
        at[a.GuestID] = a.TableID
    }
    return at
}

func TestOptimizeSeatsEveryoneWhenRoomAllows(t *testing.T) {
    st := optimizerState(tablesWithCapacity(4, 4), nil, nil)
    p := Optimize(context.Background(), 1, []uint64{1, 2, 3, 4, 5, 6}, st)

    require.True(t, p.Exhausted)
    require.Empty(t, p.Unplaced)
    require.Empty(t, p.Infeasible)
    require.Len(t, p.Assignments, 6)
    require.GreaterOrEqual(t, p.Score, 0)
}

func TestOptimizeIsDeterministicForSeed(t *testing.T) {
    edges := []model.PreferenceEdge{
        {GuestA: 1, GuestB: 5, Kind: model.PrefPreferTogether},
        {GuestA: 2, GuestB: 6, Kind: model.PrefPreferTogether},
        {GuestA: 3, GuestB: 4, Kind: model.PrefAvoid},
        {GuestA: 7, GuestB: 8, Kind: model.PrefMustTogether},
    }
    st := optimizerState(tablesWithCapacity(4, 4, 4), nil, edges)
    guests := []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

    first := Optimize(context.Background(), 99, guests, st)
    for i := 0; i < 5; i++ {
        again := Optimize(context.Background(), 99, guests, st)
        require.Equal(t, first, again)
    }
}

func TestOptimizeKeepsMustGroupsTogether(t *testing.T) {
    edges := []model.PreferenceEdge{
        {GuestA: 1, GuestB: 2, Kind: model.PrefMustTogether},
        {GuestA: 2, GuestB: 3, Kind: model.PrefMustTogether},
    }
    st := optimizerState(tablesWithCapacity(2, 4), nil, edges)
    p := Optimize(context.Background(), 1, []uint64{1, 2, 3}, st)

    require.Empty(t, p.Unplaced)
    at := assignedTables(t, p)
    // The trio only fits at table 2.
    require.Equal(t, uint64(2), at[1])
    require.Equal(t, uint64(2), at[2])
    require.Equal(t, uint64(2), at[3])
}

func TestOptimizeSeparatesAvoidPairs(t *testing.T) {
    edges := []model.PreferenceEdge{{GuestA: 1, GuestB: 2, Kind: model.PrefAvoid}}
    st := optimizerState(tablesWithCapacity(4, 4), nil, edges)
    p := Optimize(context.Background(), 1, []uint64{1, 2}, st)

    require.Empty(t, p.Unplaced)
    at := assignedTables(t, p)
    require.NotEqual(t, at[1], at[2])
}

func TestOptimizeGroupsPreferPairs(t *testing.T) {
    edges := []model.PreferenceEdge{{GuestA: 1, GuestB: 2, Kind: model.PrefPreferTogether}}
    st := optimizerState(tablesWithCapacity(4, 4), nil, edges)
    p := Optimize(context.Background(), 1, []uint64{1, 2}, st)

    at := assignedTables(t, p)
    require.Equal(t, at[1], at[2])
    require.Equal(t, 1, p.Score)
}

func TestOptimizeAnchorsToSeatedMustPartner(t *testing.T) {
    edges := []model.PreferenceEdge{{GuestA: 1, GuestB: 2, Kind: model.PrefMustTogether}}
    st := optimizerState(tablesWithCapacity(4, 4),
        []model.SeatAssignment{{GuestID: 2, TableID: 2, SeatIndex: 0}}, edges)
    p := Optimize(context.Background(), 1, []uint64{1}, st)

    require.Empty(t, p.Unplaced)
    at := assignedTables(t, p)
    require.Equal(t, uint64(2), at[1])
}

func TestOptimizeAnchoredGroupUnplacedWhenPartnerTableFull(t *testing.T) {
    edges := []model.PreferenceEdge{{GuestA: 1, GuestB: 2, Kind: model.PrefMustTogether}}
    st := optimizerState(tablesWithCapacity(1, 4),
        []model.SeatAssignment{{GuestID: 2, TableID: 1, SeatIndex: 0}}, edges)
    p := Optimize(context.Background(), 1, []uint64{1}, st)

    // Guest 1 may only join table 1, which is full; an empty table
    // elsewhere does not help.
    require.Equal(t, []uint64{1}, p.Unplaced)
    require.Empty(t, p.Infeasible)
}

// 20 unseated guests, three tables of 8, and a must-together chain of
// nine guests: the chain exceeds every table and is reported infeasible
// while the remaining eleven guests are all seated.
func TestOptimizeReportsOversizedGroupInfeasible(t *testing.T) {
    var edges []model.PreferenceEdge
    for g := uint64(1); g < 9; g++ {
        edges = append(edges, model.PreferenceEdge{GuestA: g, GuestB: g + 1, Kind: model.PrefMustTogether})
    }
    guests := make([]uint64, 0, 20)
    for g := uint64(1); g <= 20; g++ {
        guests = append(guests, g)
    }
    st := optimizerState(tablesWithCapacity(8, 8, 8), nil, edges)
    p := Optimize(context.Background(), 1, guests, st)

    require.True(t, p.Exhausted)
    require.Len(t, p.Infeasible, 1)
    require.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9}, p.Infeasible[0])
    require.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9}, p.Unplaced)
    require.Len(t, p.Assignments, 11)
    at := assignedTables(t, p)
    for g := uint64(10); g <= 20; g++ {
        require.Contains(t, at, g)
    }
}

func TestOptimizeReportsInternallyConflictedGroup(t *testing.T) {
    edges := []model.PreferenceEdge{
        {GuestA: 1, GuestB: 2, Kind: model.PrefMustTogether},
        {GuestA: 2, GuestB: 3, Kind: model.PrefMustTogether},
        {GuestA: 1, GuestB: 3, Kind: model.PrefAvoid},
    }
    st := optimizerState(tablesWithCapacity(8), nil, edges)
    p := Optimize(context.Background(), 1, []uint64{1, 2, 3}, st)

    require.Len(t, p.Infeasible, 1)
    require.Equal(t, []uint64{1, 2, 3}, p.Infeasible[0])
    require.Empty(t, p.Assignments)
}

func TestOptimizeUnplacedLowersScore(t *testing.T) {
    st := optimizerState(tablesWithCapacity(1), nil, nil)
    p := Optimize(context.Background(), 1, []uint64{1, 2}, st)

    require.Len(t, p.Assignments, 1)
    require.Len(t, p.Unplaced, 1)
    require.Equal(t, -unplacedPenalty, p.Score)
}

func TestOptimizeSkipsAlreadySeatedAndDuplicates(t *testing.T) {
    st := optimizerState(tablesWithCapacity(4),
        []model.SeatAssignment{{GuestID: 1, TableID: 1, SeatIndex: 0}}, nil)
    p := Optimize(context.Background(), 1, []uint64{1, 2, 2}, st)

    require.Len(t, p.Assignments, 1)
    require.Equal(t, uint64(2), p.Assignments[0].GuestID)
    // Seat 0 is occupied, so guest 2 takes the next free index.
    require.Equal(t, uint32(1), p.Assignments[0].SeatIndex)
}

func TestOptimizeCancelledContextNotExhausted(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    cancel()
    st := optimizerState(tablesWithCapacity(4), nil, nil)
    p := Optimize(ctx, 1, []uint64{1, 2}, st)

    require.False(t, p.Exhausted)
    require.Equal(t, []uint64{1, 2}, p.Unplaced)
    require.Empty(t, p.Assignments)
}

// A full optimize-then-apply round trip through the mutation path: the
// proposal re-validates cleanly and every entry lands.
func TestOptimizeProposalAppliesCleanly(t *testing.T) {
    edges := []model.PreferenceEdge{
        {GuestA: 1, GuestB: 2, Kind: model.PrefMustTogether},
        {GuestA: 3, GuestB: 4, Kind: model.PrefAvoid},
    }
    c := NewChart(7, ChartState{Tables: tablesWithCapacity(4, 4), Edges: edges})
    p := Optimize(context.Background(), 5, []uint64{1, 2, 3, 4, 5}, c.Snapshot())
    require.Empty(t, p.Unplaced)

    mut, skipped, err := c.PrepareApplyProposal(p.Assignments, c.Version())
    require.NoError(t, err)
    require.Empty(t, skipped)
    c.Commit(mut)
    require.Equal(t, uint64(5), c.Version())
    for g := uint64(1); g <= 5; g++ {
        _, ok := c.SeatOf(g)
        require.True(t, ok)
    }
}
