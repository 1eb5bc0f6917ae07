package collab

import (
    "encoding/json"
    "testing"

    "github.com/stretchr/testify/require"
)

func rawMsg(op, data string) ClientMessage {
    return ClientMessage{Op: op, Data: json.RawMessage(data)}
}

func TestDecodeSeatPayload(t *testing.T) {
    p, err := decodeSeat(rawMsg(OpAssignSeat, `{"guest_id":5,"table_id":1,"seat_index":2}`))
    require.NoError(t, err)
    require.Equal(t, uint64(5), p.GuestID)
    require.Equal(t, uint64(1), p.TableID)
    require.Equal(t, uint32(2), p.SeatIndex)

    _, err = decodeSeat(rawMsg(OpAssignSeat, `{"table_id":1}`))
    require.Error(t, err)
    _, err = decodeSeat(rawMsg(OpAssignSeat, `{"guest_id":5}`))
    require.Error(t, err)
    _, err = decodeSeat(rawMsg(OpAssignSeat, `{"guest_id":`))
    require.Error(t, err)
    _, err = decodeSeat(ClientMessage{Op: OpAssignSeat})
    require.Error(t, err)
}

func TestDecodeCreateTablePayload(t *testing.T) {
    p, err := decodeCreateTable(rawMsg(OpCreateTable, `{"capacity":8,"shape":"ROUND","pos_x":1.5,"pos_y":-2}`))
    require.NoError(t, err)
    require.Equal(t, uint32(8), p.Capacity)
    require.Equal(t, "ROUND", p.Shape)
    require.Equal(t, 1.5, p.PosX)
    require.Equal(t, -2.0, p.PosY)
}

func TestDecodeDeleteTableRequiresID(t *testing.T) {
    _, err := decodeDeleteTable(rawMsg(OpDeleteTable, `{}`))
    require.Error(t, err)

    p, err := decodeDeleteTable(rawMsg(OpDeleteTable, `{"table_id":3}`))
    require.NoError(t, err)
    require.Equal(t, uint64(3), p.TableID)
}

func TestDecodePreferenceRequiresBothGuests(t *testing.T) {
    p, err := decodePreference(rawMsg(OpSetPreference, `{"guest_a":2,"guest_b":1,"kind":"AVOID"}`))
    require.NoError(t, err)
    require.Equal(t, "AVOID", p.Kind)

    // Edge removal carries an empty kind but still needs both guests.
    _, err = decodePreference(rawMsg(OpSetPreference, `{"guest_a":2}`))
    require.Error(t, err)
}

func TestDecodeOptimizeRequiresGuests(t *testing.T) {
    p, err := decodeOptimize(rawMsg(OpRequestOptimization, `{"guest_ids":[3,1,2],"seed":9}`))
    require.NoError(t, err)
    require.Equal(t, []uint64{3, 1, 2}, p.GuestIDs)
    require.Equal(t, int64(9), p.Seed)

    _, err = decodeOptimize(rawMsg(OpRequestOptimization, `{"guest_ids":[]}`))
    require.Error(t, err)
}

func TestDecodeApplyRequiresAssignments(t *testing.T) {
    p, err := decodeApply(rawMsg(OpApplyOptimization,
        `{"assignments":[{"guest_id":1,"table_id":2,"seat_index":0}]}`))
    require.NoError(t, err)
    require.Len(t, p.Assignments, 1)

    _, err = decodeApply(rawMsg(OpApplyOptimization, `{"assignments":[]}`))
    require.Error(t, err)
}
