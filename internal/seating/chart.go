package seating

import (
    "sort"

    "github.com/iliyamo/event-seating/internal/model"
)

// Mutation kinds.  The values match the client-facing operation names so
// broadcast payloads can carry the mutation verbatim.
const (
    MutCreateTable   = "createTable"
    MutDeleteTable   = "deleteTable"
    MutAssignSeat    = "assignSeat"
    MutUnassignSeat  = "unassignSeat"
    MutMoveSeat      = "moveSeat"
    MutSetPreference = "setPreference"
    MutApplyProposal = "applyOptimization"
)

// seatRef locates one seat: a (table, seat index) pair.
type seatRef struct {
    TableID   uint64
    SeatIndex uint32
}

// ChartState is a full serializable snapshot of one event's chart.  It
// is what a joining collaborator receives, what the storage collaborator
// returns when a room wakes up, and what replay tests rebuild from.
type ChartState struct {
    Version     uint64                 `json:"version"`
    Tables      []model.Table          `json:"tables"`
    Assignments []model.SeatAssignment `json:"assignments"`
    Edges       []model.PreferenceEdge `json:"preferences"`
}

// Mutation is one accepted (or about to be accepted) chart change.  The
// mutation path is two-phase: Prepare* validates the operation against
// current state and returns a Mutation describing the exact change and
// the version it will produce; the room worker persists it through the
// storage collaborator and only then calls Commit, which applies the
// change in memory and cannot fail.  A failed persistence call therefore
// leaves the chart untouched.
//
// Only the fields relevant to Kind are populated.
type Mutation struct {
    Kind      string                 `json:"kind"`
    Version   uint64                 `json:"version"` // version after commit
    Table     *model.Table           `json:"table,omitempty"`
    TableID   uint64                 `json:"table_id,omitempty"`
    GuestID   uint64                 `json:"guest_id,omitempty"`
    SeatIndex uint32                 `json:"seat_index,omitempty"`
    Edge      *model.PreferenceEdge  `json:"edge,omitempty"`
    Unassigned []uint64              `json:"unassigned,omitempty"` // cascade from deleteTable
    Assignments []model.SeatAssignment `json:"assignments,omitempty"` // applyOptimization batch
    Warnings  int                    `json:"warnings,omitempty"` // unsatisfied prefer-together edges
}

// SkippedAssignment reports one proposal entry that could not be applied
// during applyOptimization while the rest of the batch went through.
type SkippedAssignment struct {
    Assignment model.SeatAssignment `json:"assignment"`
    Code       string               `json:"code"`
    Detail     string               `json:"detail"`
}

// Chart is the authoritative in-memory seating chart for one event: the
// table layout, the guest -> seat assignment map and the preference
// graph, versioned by a monotonic counter bumped on every accepted
// mutation.  A Chart is owned by exactly one room worker and must never
// be mutated from anywhere else, so it carries no lock.
type Chart struct {
    eventID   uint64
    version   uint64
    tables    map[uint64]model.Table
    seats     map[uint64]seatRef // guest -> seat
    occupants map[seatRef]uint64 // seat -> guest
    graph     *PrefGraph
    nextTable uint64
}

// NewChart builds a chart from a stored snapshot.  Assignments referring
// to unknown tables are dropped defensively; storage guarantees they do
// not occur.
func NewChart(eventID uint64, st ChartState) *Chart {
    c := &Chart{
        eventID:   eventID,
        version:   st.Version,
        tables:    make(map[uint64]model.Table, len(st.Tables)),
        seats:     make(map[uint64]seatRef, len(st.Assignments)),
        occupants: make(map[seatRef]uint64, len(st.Assignments)),
        graph:     NewPrefGraph(st.Edges),
        nextTable: 1,
    }
    for _, t := range st.Tables {
        c.tables[t.ID] = t
        if t.ID >= c.nextTable {
            c.nextTable = t.ID + 1
        }
    }
    for _, a := range st.Assignments {
        if _, ok := c.tables[a.TableID]; !ok {
            continue
        }
        ref := seatRef{TableID: a.TableID, SeatIndex: a.SeatIndex}
        c.seats[a.GuestID] = ref
        c.occupants[ref] = a.GuestID
    }
    return c
}

// EventID returns the owning event id.
func (c *Chart) EventID() uint64 { return c.eventID }

// Version returns the current arrangement version.
func (c *Chart) Version() uint64 { return c.version }

// Graph exposes the preference graph for read-only use by the optimizer.
func (c *Chart) Graph() *PrefGraph { return c.graph }

// SeatOf returns the current assignment of a guest, if any.
func (c *Chart) SeatOf(guestID uint64) (model.SeatAssignment, bool) {
    ref, ok := c.seats[guestID]
    if !ok {
        return model.SeatAssignment{}, false
    }
    return model.SeatAssignment{GuestID: guestID, TableID: ref.TableID, SeatIndex: ref.SeatIndex}, true
}

// Tables returns all tables sorted by id.
func (c *Chart) Tables() []model.Table {
    out := make([]model.Table, 0, len(c.tables))
    for _, t := range c.tables {
        out = append(out, t)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out
}

// GuestsAt returns the guests currently seated at a table, sorted.
func (c *Chart) GuestsAt(tableID uint64) []uint64 {
    var out []uint64
    for guest, ref := range c.seats {
        if ref.TableID == tableID {
            out = append(out, guest)
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
    return out
}

// Snapshot returns a deterministic full copy of the chart state.  The
// tables, assignments and edges are sorted so that two charts reached by
// the same mutation sequence serialize identically.
func (c *Chart) Snapshot() ChartState {
    st := ChartState{
        Version: c.version,
        Tables:  c.Tables(),
        Edges:   c.graph.Edges(),
    }
    st.Assignments = make([]model.SeatAssignment, 0, len(c.seats))
    for guest, ref := range c.seats {
        st.Assignments = append(st.Assignments, model.SeatAssignment{
            GuestID: guest, TableID: ref.TableID, SeatIndex: ref.SeatIndex,
        })
    }
    sort.Slice(st.Assignments, func(i, j int) bool {
        return st.Assignments[i].GuestID < st.Assignments[j].GuestID
    })
    return st
}

// checkVersion guards every mutation with the optimistic-concurrency
// check.  Re-submitting an already applied mutation always fails here
// with STALE_VERSION; there is no silent no-op success.
func (c *Chart) checkVersion(expected uint64) *Rejection {
    if expected != c.version {
        return rejectf(CodeStaleVersion, c.version,
            "expected version %d, chart is at %d", expected, c.version)
    }
    return nil
}

// PrepareCreateTable validates a new table and returns the mutation that
// will add it.  Table ids are allocated by the chart so that replaying
// the same mutation sequence yields identical ids.
func (c *Chart) PrepareCreateTable(capacity uint32, shape string, posX, posY float64, expected uint64) (*Mutation, error) {
    if rej := c.checkVersion(expected); rej != nil {
        return nil, rej
    }
    if capacity == 0 {
        return nil, reject(CodeBadRequest, "table capacity must be positive", c.version)
    }
    if !model.ValidShape(shape) {
        return nil, rejectf(CodeBadRequest, c.version, "unknown table shape %q", shape)
    }
    t := model.Table{
        ID:       c.nextTable,
        EventID:  c.eventID,
        Capacity: capacity,
        Shape:    shape,
        PosX:     posX,
        PosY:     posY,
    }
    return &Mutation{Kind: MutCreateTable, Version: c.version + 1, Table: &t}, nil
}

// PrepareDeleteTable validates a table deletion.  Deletion cascades: all
// guests seated at the table become unassigned, and the mutation records
// them so collaborators and storage see the cascade explicitly.
func (c *Chart) PrepareDeleteTable(tableID uint64, expected uint64) (*Mutation, error) {
    if rej := c.checkVersion(expected); rej != nil {
        return nil, rej
    }
    if _, ok := c.tables[tableID]; !ok {
        return nil, rejectf(CodeUnknownTable, c.version, "table %d does not exist", tableID)
    }
    return &Mutation{
        Kind:       MutDeleteTable,
        Version:    c.version + 1,
        TableID:    tableID,
        Unassigned: c.GuestsAt(tableID),
    }, nil
}

// PrepareAssign validates seating a guest and returns the mutation.  The
// full validation order is deterministic (see Validator) so identical
// inputs always produce the same rejection.
func (c *Chart) PrepareAssign(guestID, tableID uint64, seatIndex uint32, expected uint64) (*Mutation, error) {
    if rej := c.checkVersion(expected); rej != nil {
        return nil, rej
    }
    v := Validator{chart: c}
    if viol := v.ValidateAssign(model.SeatAssignment{GuestID: guestID, TableID: tableID, SeatIndex: seatIndex}); viol != nil {
        return nil, reject(viol.Code, viol.Detail, c.version)
    }
    return &Mutation{
        Kind:      MutAssignSeat,
        Version:   c.version + 1,
        GuestID:   guestID,
        TableID:   tableID,
        SeatIndex: seatIndex,
        Warnings:  v.PreferWarnings(guestID, tableID),
    }, nil
}

// PrepareUnassign validates removing a guest's seat.
func (c *Chart) PrepareUnassign(guestID uint64, expected uint64) (*Mutation, error) {
    if rej := c.checkVersion(expected); rej != nil {
        return nil, rej
    }
    ref, ok := c.seats[guestID]
    if !ok {
        return nil, rejectf(CodeNotSeated, c.version, "guest %d has no seat", guestID)
    }
    return &Mutation{
        Kind:      MutUnassignSeat,
        Version:   c.version + 1,
        GuestID:   guestID,
        TableID:   ref.TableID,
        SeatIndex: ref.SeatIndex,
    }, nil
}

// PrepareMove validates an atomic unassign+assign pair against the same
// expected version.  If either half would be rejected the whole move is
// rejected and nothing changes.  A move counts as one accepted mutation.
func (c *Chart) PrepareMove(guestID, tableID uint64, seatIndex uint32, expected uint64) (*Mutation, error) {
    if rej := c.checkVersion(expected); rej != nil {
        return nil, rej
    }
    if _, ok := c.seats[guestID]; !ok {
        return nil, rejectf(CodeNotSeated, c.version, "guest %d has no seat to move from", guestID)
    }
    // Evaluate the assign half on a staging copy with the guest already
    // removed, so moving within a table to a free seat is legal.
    staged := c.clone()
    staged.removeSeat(guestID)
    v := Validator{chart: staged}
    if viol := v.ValidateAssign(model.SeatAssignment{GuestID: guestID, TableID: tableID, SeatIndex: seatIndex}); viol != nil {
        return nil, reject(viol.Code, viol.Detail, c.version)
    }
    return &Mutation{
        Kind:      MutMoveSeat,
        Version:   c.version + 1,
        GuestID:   guestID,
        TableID:   tableID,
        SeatIndex: seatIndex,
        Warnings:  v.PreferWarnings(guestID, tableID),
    }, nil
}

// PrepareSetPreference validates a preference edit.  Setting a hard edge
// that the current seating already violates is rejected, which keeps the
// "hard edges always hold" invariant true in both directions.  An empty
// kind removes the edge.
func (c *Chart) PrepareSetPreference(e model.PreferenceEdge, expected uint64) (*Mutation, error) {
    if rej := c.checkVersion(expected); rej != nil {
        return nil, rej
    }
    if e.GuestA == e.GuestB {
        return nil, reject(CodeBadRequest, "preference edge cannot reference a guest twice", c.version)
    }
    if e.Kind != "" && !model.ValidPrefKind(e.Kind) {
        return nil, rejectf(CodeBadRequest, c.version, "unknown preference kind %q", e.Kind)
    }
    n := model.NormalizeEdge(e)
    seatA, okA := c.seats[n.GuestA]
    seatB, okB := c.seats[n.GuestB]
    if okA && okB {
        switch n.Kind {
        case model.PrefMustTogether:
            if seatA.TableID != seatB.TableID {
                return nil, rejectf(CodeConstraint, c.version,
                    "guests %d and %d are seated at different tables", n.GuestA, n.GuestB)
            }
        case model.PrefAvoid:
            if seatA.TableID == seatB.TableID {
                return nil, rejectf(CodeConstraint, c.version,
                    "guests %d and %d are seated at the same table", n.GuestA, n.GuestB)
            }
        }
    }
    return &Mutation{Kind: MutSetPreference, Version: c.version + 1, Edge: &n}, nil
}

// PrepareApplyProposal validates an optimizer proposal as a batch.  The
// whole batch is guarded by one version check at its start; entries are
// then validated in order against the progressively staged state.  An
// entry that no longer fits (a collaborator edited the chart after the
// proposal was computed) is skipped and reported, the rest apply.  Each
// applied entry bumps the version by one.
func (c *Chart) PrepareApplyProposal(assignments []model.SeatAssignment, expected uint64) (*Mutation, []SkippedAssignment, error) {
    if rej := c.checkVersion(expected); rej != nil {
        return nil, nil, rej
    }
    if len(assignments) == 0 {
        return nil, nil, reject(CodeBadRequest, "proposal contains no assignments", c.version)
    }
    staged := c.clone()
    accepted := make([]model.SeatAssignment, 0, len(assignments))
    var skipped []SkippedAssignment
    for _, a := range assignments {
        v := Validator{chart: staged}
        if viol := v.ValidateAssign(a); viol != nil {
            skipped = append(skipped, SkippedAssignment{Assignment: a, Code: viol.Code, Detail: viol.Detail})
            continue
        }
        staged.addSeat(a.GuestID, seatRef{TableID: a.TableID, SeatIndex: a.SeatIndex})
        accepted = append(accepted, a)
    }
    if len(accepted) == 0 {
        return nil, skipped, reject(CodeConstraint, "no proposal assignment is applicable", c.version)
    }
    return &Mutation{
        Kind:        MutApplyProposal,
        Version:     c.version + uint64(len(accepted)),
        Assignments: accepted,
    }, skipped, nil
}

// Commit applies a prepared mutation to the chart.  It must only be
// called with a mutation returned by one of the Prepare methods and
// after the storage collaborator has persisted it; it cannot fail.
func (c *Chart) Commit(m *Mutation) {
    switch m.Kind {
    case MutCreateTable:
        c.tables[m.Table.ID] = *m.Table
        if m.Table.ID >= c.nextTable {
            c.nextTable = m.Table.ID + 1
        }
    case MutDeleteTable:
        for _, guest := range m.Unassigned {
            c.removeSeat(guest)
        }
        delete(c.tables, m.TableID)
    case MutAssignSeat:
        c.addSeat(m.GuestID, seatRef{TableID: m.TableID, SeatIndex: m.SeatIndex})
    case MutUnassignSeat:
        c.removeSeat(m.GuestID)
    case MutMoveSeat:
        c.removeSeat(m.GuestID)
        c.addSeat(m.GuestID, seatRef{TableID: m.TableID, SeatIndex: m.SeatIndex})
    case MutSetPreference:
        c.graph.Set(m.Edge.GuestA, m.Edge.GuestB, m.Edge.Kind)
    case MutApplyProposal:
        for _, a := range m.Assignments {
            c.addSeat(a.GuestID, seatRef{TableID: a.TableID, SeatIndex: a.SeatIndex})
        }
    }
    c.version = m.Version
}

func (c *Chart) addSeat(guestID uint64, ref seatRef) {
    c.seats[guestID] = ref
    c.occupants[ref] = guestID
}

func (c *Chart) removeSeat(guestID uint64) {
    if ref, ok := c.seats[guestID]; ok {
        delete(c.occupants, ref)
        delete(c.seats, guestID)
    }
}

// clone copies the chart for staging.  The preference graph is shared:
// staged mutations never touch it, and clones never outlive the mutation
// they validate.
func (c *Chart) clone() *Chart {
    cp := &Chart{
        eventID:   c.eventID,
        version:   c.version,
        tables:    make(map[uint64]model.Table, len(c.tables)),
        seats:     make(map[uint64]seatRef, len(c.seats)),
        occupants: make(map[seatRef]uint64, len(c.occupants)),
        graph:     c.graph,
        nextTable: c.nextTable,
    }
    for id, t := range c.tables {
        cp.tables[id] = t
    }
    for g, r := range c.seats {
        cp.seats[g] = r
        cp.occupants[r] = g
    }
    return cp
}
