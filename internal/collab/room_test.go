package collab

import (
    "context"
    "encoding/json"
    "errors"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/require"

    "github.com/iliyamo/event-seating/internal/auth"
    "github.com/iliyamo/event-seating/internal/model"
    "github.com/iliyamo/event-seating/internal/seating"
)

const testSecret = "room-test-secret"

// fakeStore is an in-memory ChartStore.  failNext makes the next
// ApplyMutation call fail once; gate, when set, parks ApplyMutation
// until the channel is closed (entered reports the park).
type fakeStore struct {
    mu       sync.Mutex
    state    seating.ChartState
    applied  []*seating.Mutation
    failNext bool
    loads    int
    gate     chan struct{}
    entered  chan struct{}
}

func (s *fakeStore) LoadChart(ctx context.Context, eventID uint64) (seating.ChartState, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.loads++
    return s.state, nil
}

func (s *fakeStore) ApplyMutation(ctx context.Context, eventID uint64, m *seating.Mutation) error {
    s.mu.Lock()
    gate, entered := s.gate, s.entered
    s.mu.Unlock()
    if entered != nil {
        entered <- struct{}{}
    }
    if gate != nil {
        <-gate
    }
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.failNext {
        s.failNext = false
        return errors.New("store unavailable")
    }
    s.applied = append(s.applied, m)
    return nil
}

func (s *fakeStore) appliedCount() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return len(s.applied)
}

// fakeSender records messages the room pushes to one connection.
type fakeSender struct {
    ch     chan ServerMessage
    closed chan struct{}
    once   sync.Once
}

func newFakeSender() *fakeSender {
    return &fakeSender{ch: make(chan ServerMessage, 64), closed: make(chan struct{})}
}

func (s *fakeSender) Send(m ServerMessage) {
    select {
    case s.ch <- m:
    default:
    }
}

func (s *fakeSender) Close() {
    s.once.Do(func() { close(s.closed) })
}

// next blocks for the sender's next message or fails the test.
func next(t *testing.T, s *fakeSender) ServerMessage {
    t.Helper()
    select {
    case m := <-s.ch:
        return m
    case <-time.After(2 * time.Second):
        t.Fatal("timed out waiting for a server message")
        return ServerMessage{}
    }
}

// fakePublisher records mutation fanout calls.
type fakePublisher struct {
    ch chan *seating.Mutation
}

func (p *fakePublisher) PublishMutation(ctx context.Context, eventID, actorID uint64, m *seating.Mutation) error {
    p.ch <- m
    return nil
}

func newTestHub(t *testing.T, publisher MutationPublisher) (*Hub, *fakeStore) {
    t.Helper()
    store := &fakeStore{state: seating.ChartState{
        Version: 0,
        Tables: []model.Table{
            {ID: 1, EventID: 42, Capacity: 8, Shape: model.TableShapeRound},
        },
    }}
    return NewHub(store, auth.NewVerifier(testSecret), publisher, time.Second), store
}

// joinRoom issues a real room token, joins and consumes the snapshot
// message the room sends first.
func joinRoom(t *testing.T, h *Hub, userID, eventID uint64) (*Room, model.CollabSession, *fakeSender, ServerMessage) {
    t.Helper()
    tok, err := auth.IssueRoomToken(testSecret, userID, eventID, time.Minute)
    require.NoError(t, err)
    out := newFakeSender()
    room, sess, err := h.Join(context.Background(), tok.Token, out)
    require.NoError(t, err)
    snap := next(t, out)
    require.Equal(t, MsgSnapshot, snap.Type)
    return room, sess, out, snap
}

func clientMsg(t *testing.T, op string, version uint64, payload interface{}) ClientMessage {
    t.Helper()
    data, err := json.Marshal(payload)
    require.NoError(t, err)
    return ClientMessage{Op: op, ExpectedVersion: version, Data: data}
}

func TestJoinDeliversSnapshotThenPresence(t *testing.T) {
    h, store := newTestHub(t, nil)

    _, sessA, outA, snapA := joinRoom(t, h, 10, 42)
    require.NotNil(t, snapA.Snapshot)
    require.Len(t, snapA.Snapshot.Tables, 1)
    require.Len(t, snapA.Members, 1)

    _, sessB, _, snapB := joinRoom(t, h, 11, 42)
    require.Len(t, snapB.Members, 2)

    presence := next(t, outA)
    require.Equal(t, MsgPresence, presence.Type)
    require.Equal(t, PresenceJoined, presence.Op)
    require.Equal(t, sessB.UserID, presence.ActorID)

    require.NotEqual(t, sessA.ConnectionID, sessB.ConnectionID)
    require.Equal(t, 1, h.ActiveRooms())
    require.Equal(t, 1, store.loads) // second join reused the live room
}

func TestInvalidTokenNeverCreatesSession(t *testing.T) {
    h, _ := newTestHub(t, nil)

    _, _, err := h.Join(context.Background(), "not-a-token", newFakeSender())
    require.ErrorIs(t, err, auth.ErrInvalidToken)

    // A token signed with a different secret is refused too.
    foreign, err := auth.IssueRoomToken("other-secret", 10, 42, time.Minute)
    require.NoError(t, err)
    _, _, err = h.Join(context.Background(), foreign.Token, newFakeSender())
    require.ErrorIs(t, err, auth.ErrInvalidToken)

    require.Equal(t, 0, h.ActiveRooms())
}

func TestAcceptedMutationBroadcastsToEveryoneIncludingOriginator(t *testing.T) {
    h, store := newTestHub(t, nil)
    room, sessA, outA, _ := joinRoom(t, h, 10, 42)
    _, _, outB, _ := joinRoom(t, h, 11, 42)
    next(t, outA) // drain B's presence event

    room.Forward(sessA.ConnectionID, clientMsg(t, OpAssignSeat, 0,
        SeatPayload{GuestID: 5, TableID: 1, SeatIndex: 2}))

    gotA := next(t, outA)
    gotB := next(t, outB)
    for _, got := range []ServerMessage{gotA, gotB} {
        require.Equal(t, MsgAccepted, got.Type)
        require.Equal(t, OpAssignSeat, got.Op)
        require.Equal(t, uint64(1), got.Version)
        require.Equal(t, sessA.UserID, got.ActorID)
        require.NotNil(t, got.Mutation)
        require.Equal(t, uint64(5), got.Mutation.GuestID)
    }
    require.Equal(t, 1, store.appliedCount())
}

func TestRejectionGoesOnlyToOriginator(t *testing.T) {
    h, _ := newTestHub(t, nil)
    room, sessA, outA, _ := joinRoom(t, h, 10, 42)
    _, _, outB, _ := joinRoom(t, h, 11, 42)
    next(t, outA) // presence

    // Stale expected version: the chart is at 0, the client claims 7.
    room.Forward(sessA.ConnectionID, clientMsg(t, OpAssignSeat, 7,
        SeatPayload{GuestID: 5, TableID: 1, SeatIndex: 0}))

    got := next(t, outA)
    require.Equal(t, MsgRejected, got.Type)
    require.NotNil(t, got.Rejection)
    require.Equal(t, seating.CodeStaleVersion, got.Rejection.Code)
    require.Equal(t, uint64(0), got.Rejection.Version)

    // The worker finished the envelope before answering A, so B's inbox
    // is final for this op: nothing was broadcast.
    require.Empty(t, outB.ch)
}

func TestMalformedPayloadRejected(t *testing.T) {
    h, _ := newTestHub(t, nil)
    room, sess, out, _ := joinRoom(t, h, 10, 42)

    room.Forward(sess.ConnectionID, ClientMessage{Op: OpAssignSeat, Data: json.RawMessage(`{"guest_id":`)})
    got := next(t, out)
    require.Equal(t, MsgRejected, got.Type)
    require.Equal(t, seating.CodeBadRequest, got.Rejection.Code)

    room.Forward(sess.ConnectionID, ClientMessage{Op: "renameVenue", ExpectedVersion: 0})
    got = next(t, out)
    require.Equal(t, MsgRejected, got.Type)
    require.Equal(t, seating.CodeBadRequest, got.Rejection.Code)
}

func TestStorageFailureRejectsAndLeavesChartUntouched(t *testing.T) {
    h, store := newTestHub(t, nil)
    room, sess, out, _ := joinRoom(t, h, 10, 42)

    store.mu.Lock()
    store.failNext = true
    store.mu.Unlock()

    room.Forward(sess.ConnectionID, clientMsg(t, OpAssignSeat, 0,
        SeatPayload{GuestID: 5, TableID: 1, SeatIndex: 0}))
    got := next(t, out)
    require.Equal(t, MsgRejected, got.Type)
    require.Equal(t, seating.CodeStorage, got.Rejection.Code)

    // The version did not move, so the same expected version now works.
    room.Forward(sess.ConnectionID, clientMsg(t, OpAssignSeat, 0,
        SeatPayload{GuestID: 5, TableID: 1, SeatIndex: 0}))
    got = next(t, out)
    require.Equal(t, MsgAccepted, got.Type)
    require.Equal(t, uint64(1), got.Version)
    require.Equal(t, 1, store.appliedCount())
}

func TestOptimizeProposalDeliveredToRequesterOnly(t *testing.T) {
    h, _ := newTestHub(t, nil)
    room, sessA, outA, _ := joinRoom(t, h, 10, 42)
    _, _, outB, _ := joinRoom(t, h, 11, 42)
    next(t, outA) // presence

    room.Forward(sessA.ConnectionID, clientMsg(t, OpRequestOptimization, 0,
        OptimizePayload{GuestIDs: []uint64{1, 2, 3}, Seed: 7}))

    got := next(t, outA)
    require.Equal(t, MsgProposal, got.Type)
    require.NotNil(t, got.Proposal)
    require.Len(t, got.Proposal.Assignments, 3)
    require.Empty(t, got.Proposal.Unplaced)
    require.Empty(t, outB.ch)
}

func TestApplyOptimizationReportsSkipsToOriginatorOnly(t *testing.T) {
    h, _ := newTestHub(t, nil)
    room, sessA, outA, _ := joinRoom(t, h, 10, 42)
    _, _, outB, _ := joinRoom(t, h, 11, 42)
    next(t, outA) // presence

    // Occupy seat 0 so one proposal entry conflicts.
    room.Forward(sessA.ConnectionID, clientMsg(t, OpAssignSeat, 0,
        SeatPayload{GuestID: 9, TableID: 1, SeatIndex: 0}))
    next(t, outA)
    next(t, outB)

    room.Forward(sessA.ConnectionID, clientMsg(t, OpApplyOptimization, 1,
        ApplyPayload{Assignments: []model.SeatAssignment{
            {GuestID: 1, TableID: 1, SeatIndex: 0}, // conflicts with guest 9
            {GuestID: 2, TableID: 1, SeatIndex: 1},
        }}))

    gotA := next(t, outA)
    gotB := next(t, outB)
    require.Equal(t, MsgAccepted, gotA.Type)
    require.Len(t, gotA.Skipped, 1)
    require.Equal(t, uint64(1), gotA.Skipped[0].Assignment.GuestID)
    require.Equal(t, MsgAccepted, gotB.Type)
    require.Empty(t, gotB.Skipped)
    require.Equal(t, uint64(2), gotA.Version) // one applied entry
}

func TestLeaveBroadcastsPresenceAndRetiresEmptyRoom(t *testing.T) {
    h, _ := newTestHub(t, nil)
    room, sessA, outA, _ := joinRoom(t, h, 10, 42)
    _, sessB, outB, _ := joinRoom(t, h, 11, 42)
    next(t, outA) // presence

    room.Leave(sessB.ConnectionID)
    got := next(t, outA)
    require.Equal(t, MsgPresence, got.Type)
    require.Equal(t, PresenceLeft, got.Op)
    require.Equal(t, sessB.UserID, got.ActorID)
    select {
    case <-outB.closed:
    case <-time.After(2 * time.Second):
        t.Fatal("departing sender was not closed")
    }

    room.Leave(sessA.ConnectionID)
    require.Eventually(t, func() bool { return h.ActiveRooms() == 0 },
        2*time.Second, 10*time.Millisecond)
}

func TestRejoinAfterRetirementRehydratesFromStorage(t *testing.T) {
    h, store := newTestHub(t, nil)
    room, sess, out, _ := joinRoom(t, h, 10, 42)

    room.Forward(sess.ConnectionID, clientMsg(t, OpAssignSeat, 0,
        SeatPayload{GuestID: 5, TableID: 1, SeatIndex: 0}))
    next(t, out)

    // Make the durable state reflect the applied mutation the way the
    // real store would.
    store.mu.Lock()
    store.state.Version = 1
    store.state.Assignments = []model.SeatAssignment{{GuestID: 5, TableID: 1, SeatIndex: 0}}
    store.mu.Unlock()

    room.Leave(sess.ConnectionID)
    require.Eventually(t, func() bool { return h.ActiveRooms() == 0 },
        2*time.Second, 10*time.Millisecond)

    _, _, _, snap := joinRoom(t, h, 10, 42)
    require.Equal(t, uint64(1), snap.Version)
    require.Len(t, snap.Snapshot.Assignments, 1)
    require.Equal(t, 2, store.loads)
}

func TestAcceptedMutationsFanOutThroughPublisher(t *testing.T) {
    pub := &fakePublisher{ch: make(chan *seating.Mutation, 4)}
    h, _ := newTestHub(t, pub)
    room, sess, out, _ := joinRoom(t, h, 10, 42)

    room.Forward(sess.ConnectionID, clientMsg(t, OpAssignSeat, 0,
        SeatPayload{GuestID: 5, TableID: 1, SeatIndex: 0}))
    next(t, out)

    select {
    case m := <-pub.ch:
        require.Equal(t, seating.MutAssignSeat, m.Kind)
        require.Equal(t, uint64(1), m.Version)
    case <-time.After(2 * time.Second):
        t.Fatal("mutation was not published")
    }
}

// A flooding client can fill a room's inbox while its own leave empties
// the room and the worker sits in a slow storage call.  A concurrent
// join to that room may have to wait for inbox space, but it waits
// without holding the hub lock: other hub operations stay responsive
// and the join completes once the worker drains the backlog.
func TestJoinWithFullInboxDoesNotWedgeHub(t *testing.T) {
    h, store := newTestHub(t, nil)
    room, sess, _, _ := joinRoom(t, h, 10, 42)

    gate := make(chan struct{})
    entered := make(chan struct{}, 1)
    store.mu.Lock()
    store.gate, store.entered = gate, entered
    store.mu.Unlock()

    // Park the worker inside the storage call.
    room.Forward(sess.ConnectionID, clientMsg(t, OpAssignSeat, 0,
        SeatPayload{GuestID: 5, TableID: 1, SeatIndex: 0}))
    select {
    case <-entered:
    case <-time.After(2 * time.Second):
        t.Fatal("worker never reached the storage call")
    }
    store.mu.Lock()
    store.entered = nil
    store.mu.Unlock()

    // Queue the flooder's leave, then saturate the inbox behind it.
    room.Leave(sess.ConnectionID)
    for i := 0; i < inboxSize-1; i++ {
        room.Forward("ghost", ClientMessage{Op: OpLeave})
    }

    victim := newFakeSender()
    tok, err := auth.IssueRoomToken(testSecret, 11, 42, time.Minute)
    require.NoError(t, err)
    joined := make(chan error, 1)
    go func() {
        _, _, jerr := h.Join(context.Background(), tok.Token, victim)
        joined <- jerr
    }()

    // While that join waits for inbox space, the hub must not be wedged.
    rooms := make(chan int, 1)
    go func() { rooms <- h.ActiveRooms() }()
    select {
    case n := <-rooms:
        require.Equal(t, 1, n)
    case <-time.After(2 * time.Second):
        t.Fatal("hub blocked behind a full room inbox")
    }

    // Unpark the worker; it drains the flood and admits the victim.
    close(gate)
    select {
    case err := <-joined:
        require.NoError(t, err)
    case <-time.After(5 * time.Second):
        t.Fatal("join never completed after the worker resumed")
    }
    snap := next(t, victim)
    require.Equal(t, MsgSnapshot, snap.Type)
    require.Len(t, snap.Members, 1)
    require.Equal(t, 1, h.ActiveRooms())
}

func TestRoomsForDifferentEventsAreIndependent(t *testing.T) {
    h, _ := newTestHub(t, nil)
    roomA, sessA, outA, _ := joinRoom(t, h, 10, 42)
    roomB, sessB, outB, _ := joinRoom(t, h, 10, 43)
    require.NotEqual(t, roomA, roomB)
    require.Equal(t, 2, h.ActiveRooms())

    roomA.Forward(sessA.ConnectionID, clientMsg(t, OpAssignSeat, 0,
        SeatPayload{GuestID: 5, TableID: 1, SeatIndex: 0}))
    got := next(t, outA)
    require.Equal(t, MsgAccepted, got.Type)

    // Event 43's room never hears about event 42's mutation.
    require.Empty(t, outB.ch)
    roomB.Forward(sessB.ConnectionID, clientMsg(t, OpAssignSeat, 0,
        SeatPayload{GuestID: 5, TableID: 1, SeatIndex: 0}))
    got = next(t, outB)
    require.Equal(t, MsgAccepted, got.Type)
    require.Equal(t, uint64(1), got.Version)
}
