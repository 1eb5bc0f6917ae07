// Package collab binds authenticated collaborators to per-event rooms,
// serializes every chart mutation through the owning room's worker and
// fans accepted mutations back out to all connected sessions.
package collab

import (
    "encoding/json"
    "fmt"

    "github.com/iliyamo/event-seating/internal/model"
    "github.com/iliyamo/event-seating/internal/seating"
)

// Client-facing operation names.  Every message from a client carries
// exactly one of these in its "op" field.
const (
    OpJoin                = "join"
    OpCreateTable         = "createTable"
    OpDeleteTable         = "deleteTable"
    OpAssignSeat          = "assignSeat"
    OpUnassignSeat        = "unassignSeat"
    OpMoveSeat            = "moveSeat"
    OpSetPreference       = "setPreference"
    OpRequestOptimization = "requestOptimization"
    OpApplyOptimization   = "applyOptimization"
    OpLeave               = "leave"
)

// Server message types.
const (
    MsgSnapshot = "snapshot" // full chart state, sent on join
    MsgAccepted = "accepted" // an accepted mutation, broadcast to the whole room
    MsgRejected = "rejected" // a rejection, sent only to the originator
    MsgPresence = "presence" // a collaborator joined or left
    MsgProposal = "proposal" // optimizer result, sent only to the requester
)

// Presence actions.
const (
    PresenceJoined = "joined"
    PresenceLeft   = "left"
)

// ClientMessage is the envelope for every client -> server message.  Op
// selects one of the closed set of operations and Data carries the
// op-specific payload, decoded and validated by the payload helpers
// below before any state is touched.
type ClientMessage struct {
    Op              string          `json:"op"`
    ExpectedVersion uint64          `json:"expected_version"`
    Data            json.RawMessage `json:"data,omitempty"`
}

// ServerMessage is the envelope for every server -> client message.
// Only the fields relevant to Type are populated.
type ServerMessage struct {
    Type      string                      `json:"type"`
    Version   uint64                      `json:"version,omitempty"`
    Op        string                      `json:"op,omitempty"`
    ActorID   uint64                      `json:"actor_id,omitempty"`
    Snapshot  *seating.ChartState         `json:"snapshot,omitempty"`
    Members   []model.CollabSession       `json:"members,omitempty"`
    Mutation  *seating.Mutation           `json:"mutation,omitempty"`
    Rejection *seating.Rejection          `json:"rejection,omitempty"`
    Proposal  *seating.Proposal           `json:"proposal,omitempty"`
    Skipped   []seating.SkippedAssignment `json:"skipped,omitempty"`
}

// CreateTablePayload carries a createTable request.
type CreateTablePayload struct {
    Capacity uint32  `json:"capacity"`
    Shape    string  `json:"shape"`
    PosX     float64 `json:"pos_x"`
    PosY     float64 `json:"pos_y"`
}

// DeleteTablePayload carries a deleteTable request.
type DeleteTablePayload struct {
    TableID uint64 `json:"table_id"`
}

// SeatPayload carries assignSeat and moveSeat requests.
type SeatPayload struct {
    GuestID   uint64 `json:"guest_id"`
    TableID   uint64 `json:"table_id"`
    SeatIndex uint32 `json:"seat_index"`
}

// UnassignPayload carries an unassignSeat request.
type UnassignPayload struct {
    GuestID uint64 `json:"guest_id"`
}

// PreferencePayload carries a setPreference request.  An empty kind
// removes the edge between the two guests.
type PreferencePayload struct {
    GuestA uint64 `json:"guest_a"`
    GuestB uint64 `json:"guest_b"`
    Kind   string `json:"kind"`
}

// OptimizePayload carries a requestOptimization request.  GuestIDs are
// the unseated guests to place; Seed makes runs reproducible, clients
// may send 0.
type OptimizePayload struct {
    GuestIDs []uint64 `json:"guest_ids"`
    Seed     int64    `json:"seed"`
}

// ApplyPayload carries an applyOptimization request: the subset of a
// previously returned proposal the client wants applied.
type ApplyPayload struct {
    Assignments []model.SeatAssignment `json:"assignments"`
}

// decodeInto unmarshals a payload strictly: unknown ops and malformed
// JSON both fail before any state is read.
func decodeInto(msg ClientMessage, v interface{}) error {
    if len(msg.Data) == 0 {
        return fmt.Errorf("op %s requires a payload", msg.Op)
    }
    if err := json.Unmarshal(msg.Data, v); err != nil {
        return fmt.Errorf("op %s: malformed payload: %w", msg.Op, err)
    }
    return nil
}

func decodeCreateTable(msg ClientMessage) (CreateTablePayload, error) {
    var p CreateTablePayload
    err := decodeInto(msg, &p)
    return p, err
}

func decodeDeleteTable(msg ClientMessage) (DeleteTablePayload, error) {
    var p DeleteTablePayload
    if err := decodeInto(msg, &p); err != nil {
        return p, err
    }
    if p.TableID == 0 {
        return p, fmt.Errorf("deleteTable requires table_id")
    }
    return p, nil
}

func decodeSeat(msg ClientMessage) (SeatPayload, error) {
    var p SeatPayload
    if err := decodeInto(msg, &p); err != nil {
        return p, err
    }
    if p.GuestID == 0 || p.TableID == 0 {
        return p, fmt.Errorf("%s requires guest_id and table_id", msg.Op)
    }
    return p, nil
}

func decodeUnassign(msg ClientMessage) (UnassignPayload, error) {
    var p UnassignPayload
    if err := decodeInto(msg, &p); err != nil {
        return p, err
    }
    if p.GuestID == 0 {
        return p, fmt.Errorf("unassignSeat requires guest_id")
    }
    return p, nil
}

func decodePreference(msg ClientMessage) (PreferencePayload, error) {
    var p PreferencePayload
    if err := decodeInto(msg, &p); err != nil {
        return p, err
    }
    if p.GuestA == 0 || p.GuestB == 0 {
        return p, fmt.Errorf("setPreference requires guest_a and guest_b")
    }
    return p, nil
}

func decodeOptimize(msg ClientMessage) (OptimizePayload, error) {
    var p OptimizePayload
    if err := decodeInto(msg, &p); err != nil {
        return p, err
    }
    if len(p.GuestIDs) == 0 {
        return p, fmt.Errorf("requestOptimization requires guest_ids")
    }
    return p, nil
}

func decodeApply(msg ClientMessage) (ApplyPayload, error) {
    var p ApplyPayload
    if err := decodeInto(msg, &p); err != nil {
        return p, err
    }
    if len(p.Assignments) == 0 {
        return p, fmt.Errorf("applyOptimization requires assignments")
    }
    return p, nil
}
