package seating

import (
    "context"
    "math/rand"
    "sort"

    "github.com/iliyamo/event-seating/internal/model"
)

// unplacedPenalty is subtracted from the proposal score for every guest
// the optimizer could not seat.  It dominates any realistic number of
// satisfied prefer-together edges so partial placements never beat
// fuller ones.
const unplacedPenalty = 1000

// swapAttemptsPerGuest bounds the local-search pass relative to problem
// size.
const swapAttemptsPerGuest = 40

// Proposal is the optimizer's best-effort answer.  It is only a
// suggestion: applying it goes back through the normal mutation path and
// is re-validated there.  Guests the optimizer could not seat are always
// reported in Unplaced, never silently dropped.
type Proposal struct {
    Assignments []model.SeatAssignment `json:"assignments"`
    Unplaced    []uint64               `json:"unplaced,omitempty"`
    Infeasible  [][]uint64             `json:"infeasible_groups,omitempty"` // groups larger than every table
    Score       int                    `json:"score"`
    Exhausted   bool                   `json:"exhausted"` // false when the time budget expired first
}

// placement is the optimizer's working view of one table.
type placement struct {
    table    model.Table
    seated   []uint64 // guests already assigned before optimization
    proposed []uint64 // guests placed by this run
}

func (p *placement) members() []uint64 {
    out := make([]uint64, 0, len(p.seated)+len(p.proposed))
    out = append(out, p.seated...)
    out = append(out, p.proposed...)
    return out
}

func (p *placement) free() int {
    return int(p.table.Capacity) - len(p.seated) - len(p.proposed)
}

// Optimize proposes seats for the given unseated guests against a chart
// snapshot.  The algorithm treats must-together components as indivisible
// groups placed largest-first into the best-fitting admissible table,
// then runs a bounded pairwise-swap local search to improve the
// prefer-together score.  It is deterministic for identical inputs and
// seed.  Cancellation is cooperative: when ctx expires the best solution
// found so far is returned with Exhausted=false.
func Optimize(ctx context.Context, seed int64, unseated []uint64, st ChartState) Proposal {
    graph := NewPrefGraph(st.Edges)

    // Seat lookup for guests already on the chart.
    seatedAt := make(map[uint64]uint64, len(st.Assignments))
    for _, a := range st.Assignments {
        seatedAt[a.GuestID] = a.TableID
    }

    // Deduplicate and drop guests that are already seated.
    seen := make(map[uint64]struct{}, len(unseated))
    guests := make([]uint64, 0, len(unseated))
    for _, g := range unseated {
        if _, dup := seen[g]; dup {
            continue
        }
        seen[g] = struct{}{}
        if _, s := seatedAt[g]; s {
            continue
        }
        guests = append(guests, g)
    }
    sort.Slice(guests, func(i, j int) bool { return guests[i] < guests[j] })

    tables := make([]placement, 0, len(st.Tables))
    maxCap := 0
    for _, t := range st.Tables {
        tables = append(tables, placement{table: t})
        if int(t.Capacity) > maxCap {
            maxCap = int(t.Capacity)
        }
    }
    sort.Slice(tables, func(i, j int) bool { return tables[i].table.ID < tables[j].table.ID })
    tableIdx := make(map[uint64]int, len(tables))
    for i := range tables {
        tableIdx[tables[i].table.ID] = i
    }
    for _, a := range st.Assignments {
        if i, ok := tableIdx[a.TableID]; ok {
            tables[i].seated = append(tables[i].seated, a.GuestID)
        }
    }

    prop := Proposal{Exhausted: true}

    // Largest groups are hardest to place, so they go first.  Ties break
    // on the lowest member id for determinism.
    groups := graph.MustGroups(guests)
    sort.SliceStable(groups, func(i, j int) bool {
        if len(groups[i]) != len(groups[j]) {
            return len(groups[i]) > len(groups[j])
        }
        return groups[i][0] < groups[j][0]
    })

    for _, group := range groups {
        if ctx.Err() != nil {
            prop.Exhausted = false
            prop.Unplaced = append(prop.Unplaced, group...)
            continue
        }
        if len(group) > maxCap {
            prop.Infeasible = append(prop.Infeasible, group)
            prop.Unplaced = append(prop.Unplaced, group...)
            continue
        }
        if groupConflicted(graph, group) {
            prop.Infeasible = append(prop.Infeasible, group)
            prop.Unplaced = append(prop.Unplaced, group...)
            continue
        }
        best := -1
        bestGain, bestFree := -1, 0
        anchor, anchorOK := groupAnchor(graph, group, seatedAt)
        for i := range tables {
            p := &tables[i]
            if anchorOK && p.table.ID != anchor {
                continue
            }
            if p.free() < len(group) {
                continue
            }
            if avoidConflict(graph, group, p.members()) {
                continue
            }
            gain := preferGain(graph, group, p.members())
            free := p.free() - len(group)
            if best == -1 || gain > bestGain || (gain == bestGain && free < bestFree) {
                best, bestGain, bestFree = i, gain, free
            }
        }
        if best == -1 {
            prop.Unplaced = append(prop.Unplaced, group...)
            continue
        }
        tables[best].proposed = append(tables[best].proposed, group...)
    }

    // Local search: swap pairs of singleton placements between tables
    // while it improves the prefer-together score.  Guests inside
    // must-together groups stay put so groups are never split.
    singles := singletonGuests(graph, tables)
    if len(singles) > 1 {
        rng := rand.New(rand.NewSource(seed))
        attempts := swapAttemptsPerGuest * len(singles)
        for n := 0; n < attempts; n++ {
            if ctx.Err() != nil {
                prop.Exhausted = false
                break
            }
            a := singles[rng.Intn(len(singles))]
            b := singles[rng.Intn(len(singles))]
            trySwap(graph, tables, a, b)
        }
    }

    // Materialize seat indices: proposed guests in ascending id take the
    // lowest free indices of their table, so replays are byte-stable.
    occupied := make(map[seatRef]bool, len(st.Assignments))
    for _, a := range st.Assignments {
        occupied[seatRef{TableID: a.TableID, SeatIndex: a.SeatIndex}] = true
    }
    for i := range tables {
        p := &tables[i]
        sort.Slice(p.proposed, func(a, b int) bool { return p.proposed[a] < p.proposed[b] })
        next := uint32(0)
        for _, guest := range p.proposed {
            for occupied[seatRef{TableID: p.table.ID, SeatIndex: next}] {
                next++
            }
            occupied[seatRef{TableID: p.table.ID, SeatIndex: next}] = true
            prop.Assignments = append(prop.Assignments, model.SeatAssignment{
                GuestID: guest, TableID: p.table.ID, SeatIndex: next,
            })
            next++
        }
    }
    sort.Slice(prop.Assignments, func(i, j int) bool {
        return prop.Assignments[i].GuestID < prop.Assignments[j].GuestID
    })
    sort.Slice(prop.Unplaced, func(i, j int) bool { return prop.Unplaced[i] < prop.Unplaced[j] })

    prop.Score = layoutScore(graph, tables) - unplacedPenalty*len(prop.Unplaced)
    return prop
}

// groupAnchor returns the table a group is pinned to when one of its
// members has a must-together edge to an already seated guest.  The
// second return is false when the group is unanchored.
func groupAnchor(g *PrefGraph, group []uint64, seatedAt map[uint64]uint64) (uint64, bool) {
    for _, member := range group {
        for _, partner := range g.Partners(member, model.PrefMustTogether) {
            if tid, ok := seatedAt[partner]; ok {
                return tid, true
            }
        }
    }
    return 0, false
}

// groupConflicted reports whether a must-together group contains an
// internal avoid edge, which makes it unseatable at any table.
func groupConflicted(g *PrefGraph, group []uint64) bool {
    for i := 0; i < len(group); i++ {
        for j := i + 1; j < len(group); j++ {
            if g.Kind(group[i], group[j]) == model.PrefAvoid {
                return true
            }
        }
    }
    return false
}

// avoidConflict reports whether seating the group next to the given
// table members would violate an avoid edge.
func avoidConflict(g *PrefGraph, group, members []uint64) bool {
    for _, a := range group {
        for _, b := range members {
            if g.Kind(a, b) == model.PrefAvoid {
                return true
            }
        }
    }
    return false
}

// preferGain counts prefer-together edges between the group and the
// table's current members plus inside the group itself.
func preferGain(g *PrefGraph, group, members []uint64) int {
    gain := 0
    for _, a := range group {
        for _, b := range members {
            if g.Kind(a, b) == model.PrefPreferTogether {
                gain++
            }
        }
    }
    for i := 0; i < len(group); i++ {
        for j := i + 1; j < len(group); j++ {
            if g.Kind(group[i], group[j]) == model.PrefPreferTogether {
                gain++
            }
        }
    }
    return gain
}

// singletonGuests lists placed guests that do not belong to any
// must-together edge and can therefore be swapped freely.  Sorted for
// determinism.
func singletonGuests(g *PrefGraph, tables []placement) []uint64 {
    var out []uint64
    for i := range tables {
        for _, guest := range tables[i].proposed {
            if len(g.Partners(guest, model.PrefMustTogether)) == 0 {
                out = append(out, guest)
            }
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
    return out
}

// trySwap exchanges two proposed guests between their tables when the
// swap is admissible and strictly improves the layout score.
func trySwap(g *PrefGraph, tables []placement, a, b uint64) {
    ai, bi := -1, -1
    for i := range tables {
        for _, guest := range tables[i].proposed {
            if guest == a {
                ai = i
            }
            if guest == b {
                bi = i
            }
        }
    }
    if ai == -1 || bi == -1 || ai == bi {
        return
    }
    before := tableScore(g, &tables[ai]) + tableScore(g, &tables[bi])
    swapProposed(&tables[ai], &tables[bi], a, b)
    // Reject the swap when it violates an avoid edge or does not help.
    if avoidConflict(g, []uint64{b}, without(tables[ai].members(), b)) ||
        avoidConflict(g, []uint64{a}, without(tables[bi].members(), a)) ||
        tableScore(g, &tables[ai])+tableScore(g, &tables[bi]) <= before {
        swapProposed(&tables[ai], &tables[bi], b, a)
    }
}

func swapProposed(pa, pb *placement, a, b uint64) {
    for i, g := range pa.proposed {
        if g == a {
            pa.proposed[i] = b
        }
    }
    for i, g := range pb.proposed {
        if g == b {
            pb.proposed[i] = a
        }
    }
}

func without(ids []uint64, drop uint64) []uint64 {
    out := make([]uint64, 0, len(ids))
    for _, id := range ids {
        if id != drop {
            out = append(out, id)
        }
    }
    return out
}

// tableScore counts satisfied prefer-together edges among one table's
// members.
func tableScore(g *PrefGraph, p *placement) int {
    members := p.members()
    score := 0
    for i := 0; i < len(members); i++ {
        for j := i + 1; j < len(members); j++ {
            if g.Kind(members[i], members[j]) == model.PrefPreferTogether {
                score++
            }
        }
    }
    return score
}

// layoutScore sums satisfied prefer-together edges across all tables.
func layoutScore(g *PrefGraph, tables []placement) int {
    score := 0
    for i := range tables {
        score += tableScore(g, &tables[i])
    }
    return score
}
