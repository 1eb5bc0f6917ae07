// Package seating implements the in-memory seating chart for one event:
// the seat assignment map, table layout, preference graph, mutation
// validator and the arrangement optimizer.  All state in this package is
// mutated exclusively by the owning room worker in internal/collab, so
// none of the types here carry locks.
package seating

import "fmt"

// Machine-readable rejection reason codes.  Every rejected mutation is
// reported to the originating client with one of these codes plus the
// current authoritative chart version so the client can reconcile.
const (
    CodeCapacity        = "CAPACITY"          // seat_index >= table capacity or table full
    CodeDuplicateSeat   = "DUPLICATE_SEAT"    // target seat occupied by a different guest
    CodeAlreadySeated   = "ALREADY_SEATED"    // guest already seated elsewhere; unassign first
    CodeConstraint      = "CONSTRAINT_VIOLATION" // hard preference edge violated
    CodeStaleVersion    = "STALE_VERSION"     // expected_version behind authoritative version
    CodeInfeasibleGroup = "INFEASIBLE_GROUP"  // must-together group exceeds every table
    CodeUnknownTable    = "UNKNOWN_TABLE"     // referenced table does not exist
    CodeNotSeated       = "NOT_SEATED"        // unassign target has no seat
    CodeBadRequest      = "BAD_REQUEST"       // malformed or out-of-range payload
    CodeStorage         = "STORAGE"           // durable persistence failed; nothing applied
)

// Rejection is returned by every chart mutation that cannot be applied.
// Code is one of the Code* constants above, Detail is a human-readable
// explanation and Version is the authoritative chart version at the time
// of rejection.
type Rejection struct {
    Code    string `json:"code"`
    Detail  string `json:"detail"`
    Version uint64 `json:"version"`
}

// Error implements the error interface.
func (r *Rejection) Error() string {
    return fmt.Sprintf("%s: %s (version=%d)", r.Code, r.Detail, r.Version)
}

func reject(code, detail string, version uint64) *Rejection {
    return &Rejection{Code: code, Detail: detail, Version: version}
}

func rejectf(code string, version uint64, format string, args ...interface{}) *Rejection {
    return &Rejection{Code: code, Detail: fmt.Sprintf(format, args...), Version: version}
}
