package seating

import (
    "fmt"

    "github.com/iliyamo/event-seating/internal/model"
)

// Violation describes one failed hard-constraint check.  Code is one of
// the reason codes in errors.go.
type Violation struct {
    Code   string
    Detail string
}

// Validator enforces the hard seating invariants against a chart.  The
// check order is fixed — table existence, capacity, single-seat, then
// pairwise constraints with partners visited in ascending guest id — so
// identical inputs always report the same first violation.
//
// Soft prefer-together edges are never enforced here; they surface only
// as a warning count next to a successful assignment and as optimizer
// score.
type Validator struct {
    chart *Chart
}

// NewValidator returns a validator bound to the given chart.
func NewValidator(c *Chart) Validator { return Validator{chart: c} }

// ValidateAssign checks a proposed seat assignment and returns the first
// violation found, or nil when the assignment is admissible.
func (v Validator) ValidateAssign(a model.SeatAssignment) *Violation {
    c := v.chart
    t, ok := c.tables[a.TableID]
    if !ok {
        return &Violation{Code: CodeUnknownTable, Detail: fmt.Sprintf("table %d does not exist", a.TableID)}
    }
    // Capacity: the seat index must exist at this table.
    if a.SeatIndex >= t.Capacity {
        return &Violation{Code: CodeCapacity,
            Detail: fmt.Sprintf("seat %d out of range for table %d (capacity %d)", a.SeatIndex, a.TableID, t.Capacity)}
    }
    // Single seat: the target must be free and the guest unseated.
    ref := seatRef{TableID: a.TableID, SeatIndex: a.SeatIndex}
    if occ, taken := c.occupants[ref]; taken && occ != a.GuestID {
        return &Violation{Code: CodeDuplicateSeat,
            Detail: fmt.Sprintf("seat %d at table %d is occupied by guest %d", a.SeatIndex, a.TableID, occ)}
    }
    if cur, seated := c.seats[a.GuestID]; seated {
        return &Violation{Code: CodeAlreadySeated,
            Detail: fmt.Sprintf("guest %d is already seated at table %d seat %d; unassign first", a.GuestID, cur.TableID, cur.SeatIndex)}
    }
    // Hard pairwise constraints.  A must-together partner seated at a
    // different table, or an avoid partner seated at the same table,
    // blocks the assignment.
    for _, partner := range c.graph.Partners(a.GuestID, model.PrefMustTogether) {
        if seat, seated := c.seats[partner]; seated && seat.TableID != a.TableID {
            return &Violation{Code: CodeConstraint,
                Detail: fmt.Sprintf("guests %d and %d must sit together but %d is at table %d", a.GuestID, partner, partner, seat.TableID)}
        }
    }
    for _, partner := range c.graph.Partners(a.GuestID, model.PrefAvoid) {
        if seat, seated := c.seats[partner]; seated && seat.TableID == a.TableID {
            return &Violation{Code: CodeConstraint,
                Detail: fmt.Sprintf("guests %d and %d must not share table %d", a.GuestID, partner, a.TableID)}
        }
    }
    return nil
}

// PreferWarnings counts the guest's prefer-together partners who are
// seated at a different table than the one being assigned.  The count is
// advisory and never blocks a mutation.
func (v Validator) PreferWarnings(guestID, tableID uint64) int {
    warnings := 0
    for _, partner := range v.chart.graph.Partners(guestID, model.PrefPreferTogether) {
        if seat, seated := v.chart.seats[partner]; seated && seat.TableID != tableID {
            warnings++
        }
    }
    return warnings
}
