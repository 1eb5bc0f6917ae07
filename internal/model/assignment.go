package model

// SeatAssignment binds a guest to one seat at one table.  Guests are
// external entities owned by the guest-management service and are
// referenced here only by their opaque numeric id; the engine never
// touches guest profile data.
//
// Invariants (enforced by the seating validator):
//  - a guest occupies at most one seat across the whole event;
//  - seat_index is unique within a table and strictly below capacity.
//
// Fields:
//  GuestID   – guest occupying the seat.
//  TableID   – table the seat belongs to.
//  SeatIndex – zero-based seat position at the table.
type SeatAssignment struct {
    GuestID   uint64 `json:"guest_id"`   // seat_assignments.guest_id
    TableID   uint64 `json:"table_id"`   // seat_assignments.table_id
    SeatIndex uint32 `json:"seat_index"` // seat_assignments.seat_index
}
