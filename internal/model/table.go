package model

// Table shape values stored in seating_tables.shape.  Round tables are
// rendered as circles by the export collaborator, rectangular tables as
// boxes; the engine itself only cares about capacity.
const (
    TableShapeRound       = "ROUND"
    TableShapeRectangular = "RECTANGULAR"
)

// Table describes one physical table in an event's seating chart.  The
// position is advisory only: it drives the floor-plan rendering and has
// no effect on validation or optimization.
//
// Fields:
//  ID       – primary key identifier.
//  EventID  – event that owns this table.
//  Capacity – number of seats; always positive.
//  Shape    – table shape (ROUND, RECTANGULAR).
//  PosX     – advisory floor-plan x coordinate.
//  PosY     – advisory floor-plan y coordinate.
type Table struct {
    ID       uint64  // seating_tables.id
    EventID  uint64  // seating_tables.event_id
    Capacity uint32  // seating_tables.capacity
    Shape    string  // seating_tables.shape
    PosX     float64 // seating_tables.pos_x
    PosY     float64 // seating_tables.pos_y
}

// ValidShape reports whether s is one of the supported table shapes.
func ValidShape(s string) bool {
    return s == TableShapeRound || s == TableShapeRectangular
}
