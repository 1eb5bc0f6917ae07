package collab

import (
    "context"
    "log"
    "sync"
    "time"

    "github.com/iliyamo/event-seating/internal/model"
    "github.com/iliyamo/event-seating/internal/seating"
)

// Sender is the room's view of one connected client.  Send must never
// block the room worker; the websocket transport satisfies this with a
// buffered outbound queue and drops the connection when the queue is
// full.
type Sender interface {
    Send(m ServerMessage)
    Close()
}

// persistTimeout bounds the storage call on the mutation path.  A slow
// store rejects the mutation instead of stalling the whole room.
const persistTimeout = 5 * time.Second

// inboxSize buffers bursts of client messages per room.
const inboxSize = 256

// envelope kinds processed by the room worker.
const (
    evJoin = iota
    evLeave
    evMessage
    evProposal
)

// envelope is one unit of work for the room's serialized worker.
type envelope struct {
    kind     int
    member   *member
    connID   string
    msg      ClientMessage
    proposal *seating.Proposal
}

// member is one admitted collaboration session.
type member struct {
    sess model.CollabSession
    out  Sender
}

// Room owns all mutable state for one event's seating chart while at
// least one collaborator is connected.  Every mutation is validated,
// persisted and applied by the single run loop, which is what makes
// version-based optimistic concurrency sufficient: no two mutations for
// the same event are ever in flight at once.  Rooms for different
// events run fully in parallel.
type Room struct {
    eventID uint64
    hub     *Hub
    chart   *seating.Chart
    members map[string]*member
    inbox   chan envelope
    done    chan struct{}

    // Join/retire handshake.  A join first reserves a slot under mu,
    // then enqueues its envelope without holding any lock; retirement
    // refuses while a reservation or queued work exists.  The inbox
    // send can therefore block on a full inbox without holding mu or
    // the hub lock, and the worker is guaranteed to keep draining.
    mu           sync.Mutex
    retired      bool
    pendingJoins int
}

func newRoom(hub *Hub, eventID uint64, state seating.ChartState) *Room {
    return &Room{
        eventID: eventID,
        hub:     hub,
        chart:   seating.NewChart(eventID, state),
        members: make(map[string]*member),
        inbox:   make(chan envelope, inboxSize),
        done:    make(chan struct{}),
    }
}

// deliver enqueues work for the room worker.  Senders racing with room
// teardown unblock via the done channel; their envelope is dropped,
// which is safe because teardown implies the room has no members left.
func (r *Room) deliver(ev envelope) {
    select {
    case r.inbox <- ev:
    case <-r.done:
    }
}

// reserveJoin claims a join slot.  It fails only when the room already
// retired, in which case the caller must look the room up again.  While
// a reservation is outstanding the worker cannot retire, so the
// reserved join envelope is never lost.
func (r *Room) reserveJoin() bool {
    r.mu.Lock()
    defer r.mu.Unlock()
    if r.retired {
        return false
    }
    r.pendingJoins++
    return true
}

// finishJoin releases a reservation after its envelope is enqueued.
func (r *Room) finishJoin() {
    r.mu.Lock()
    r.pendingJoins--
    r.mu.Unlock()
}

// Forward hands a decoded client message to the room worker.  Called
// from transport read loops.
func (r *Room) Forward(connID string, msg ClientMessage) {
    r.deliver(envelope{kind: evMessage, connID: connID, msg: msg})
}

// Leave removes a session, either on an explicit leave op or when the
// transport drops.  Idempotent.
func (r *Room) Leave(connID string) {
    r.deliver(envelope{kind: evLeave, connID: connID})
}

// run is the room worker.  It exits when the last member leaves and the
// hub confirms retirement.
func (r *Room) run() {
    defer close(r.done)
    for ev := range r.inbox {
        switch ev.kind {
        case evJoin:
            r.handleJoin(ev.member)
        case evLeave:
            if r.handleLeave(ev.connID) {
                return
            }
        case evMessage:
            r.handleMessage(ev.connID, ev.msg)
        case evProposal:
            if m, ok := r.members[ev.connID]; ok {
                m.out.Send(ServerMessage{Type: MsgProposal, Version: r.chart.Version(), Proposal: ev.proposal})
            }
        }
    }
}

// handleJoin admits a session: the joiner receives the full snapshot
// plus the current member list, everyone else a presence event.
func (r *Room) handleJoin(m *member) {
    r.members[m.sess.ConnectionID] = m
    snap := r.chart.Snapshot()
    m.out.Send(ServerMessage{
        Type:     MsgSnapshot,
        Version:  snap.Version,
        Snapshot: &snap,
        Members:  r.memberList(),
    })
    r.broadcastExcept(m.sess.ConnectionID, ServerMessage{
        Type:    MsgPresence,
        Op:      PresenceJoined,
        ActorID: m.sess.UserID,
        Members: []model.CollabSession{m.sess},
    })
}

// handleLeave removes the session and reports whether the room retired.
func (r *Room) handleLeave(connID string) bool {
    m, ok := r.members[connID]
    if !ok {
        return false
    }
    delete(r.members, connID)
    m.out.Close()
    r.broadcastExcept(connID, ServerMessage{
        Type:    MsgPresence,
        Op:      PresenceLeft,
        ActorID: m.sess.UserID,
        Members: []model.CollabSession{m.sess},
    })
    if len(r.members) == 0 && r.hub.retire(r) {
        // In-memory state is evicted; storage already holds every
        // accepted mutation, so the next join rebuilds from there.
        return true
    }
    return false
}

func (r *Room) handleMessage(connID string, msg ClientMessage) {
    m, ok := r.members[connID]
    if !ok {
        return
    }
    switch msg.Op {
    case OpLeave:
        r.Leave(connID)
    case OpRequestOptimization:
        r.handleOptimize(m, msg)
    case OpCreateTable, OpDeleteTable, OpAssignSeat, OpUnassignSeat,
        OpMoveSeat, OpSetPreference, OpApplyOptimization:
        r.handleMutation(m, msg)
    default:
        m.out.Send(ServerMessage{
            Type:    MsgRejected,
            Op:      msg.Op,
            Version: r.chart.Version(),
            Rejection: &seating.Rejection{
                Code: seating.CodeBadRequest, Detail: "unknown operation", Version: r.chart.Version(),
            },
        })
    }
}

// handleMutation runs the full mutation path: decode -> validate
// (Prepare) -> persist -> apply (Commit) -> broadcast -> notify.  The
// originator alone hears about rejections; acceptances go to the whole
// room, originator included, so every client converges on the
// server-confirmed state.
func (r *Room) handleMutation(m *member, msg ClientMessage) {
    var (
        mut     *seating.Mutation
        skipped []seating.SkippedAssignment
        err     error
    )
    switch msg.Op {
    case OpCreateTable:
        var p CreateTablePayload
        if p, err = decodeCreateTable(msg); err == nil {
            mut, err = r.chart.PrepareCreateTable(p.Capacity, p.Shape, p.PosX, p.PosY, msg.ExpectedVersion)
        }
    case OpDeleteTable:
        var p DeleteTablePayload
        if p, err = decodeDeleteTable(msg); err == nil {
            mut, err = r.chart.PrepareDeleteTable(p.TableID, msg.ExpectedVersion)
        }
    case OpAssignSeat:
        var p SeatPayload
        if p, err = decodeSeat(msg); err == nil {
            mut, err = r.chart.PrepareAssign(p.GuestID, p.TableID, p.SeatIndex, msg.ExpectedVersion)
        }
    case OpUnassignSeat:
        var p UnassignPayload
        if p, err = decodeUnassign(msg); err == nil {
            mut, err = r.chart.PrepareUnassign(p.GuestID, msg.ExpectedVersion)
        }
    case OpMoveSeat:
        var p SeatPayload
        if p, err = decodeSeat(msg); err == nil {
            mut, err = r.chart.PrepareMove(p.GuestID, p.TableID, p.SeatIndex, msg.ExpectedVersion)
        }
    case OpSetPreference:
        var p PreferencePayload
        if p, err = decodePreference(msg); err == nil {
            edge := model.PreferenceEdge{GuestA: p.GuestA, GuestB: p.GuestB, Kind: p.Kind}
            mut, err = r.chart.PrepareSetPreference(edge, msg.ExpectedVersion)
        }
    case OpApplyOptimization:
        var p ApplyPayload
        if p, err = decodeApply(msg); err == nil {
            mut, skipped, err = r.chart.PrepareApplyProposal(p.Assignments, msg.ExpectedVersion)
        }
    }
    if err != nil {
        r.rejectTo(m, msg.Op, err)
        return
    }

    // Persist before touching in-memory state.  A failed storage call
    // leaves the chart exactly as it was and the mutation is reported
    // as rejected, never applied-then-rolled-back.
    ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
    err = r.hub.store.ApplyMutation(ctx, r.eventID, mut)
    cancel()
    if err != nil {
        log.Printf("room %d: persist %s failed: %v", r.eventID, msg.Op, err)
        r.rejectTo(m, msg.Op, &seating.Rejection{
            Code: seating.CodeStorage, Detail: "durable store rejected the mutation", Version: r.chart.Version(),
        })
        return
    }
    r.chart.Commit(mut)

    accepted := ServerMessage{
        Type:     MsgAccepted,
        Op:       msg.Op,
        Version:  mut.Version,
        ActorID:  m.sess.UserID,
        Mutation: mut,
    }
    r.broadcastExcept(m.sess.ConnectionID, accepted)
    accepted.Skipped = skipped // only the originator cares about skips
    m.out.Send(accepted)

    if r.hub.publisher != nil {
        // Best-effort notification fanout; failure never affects the
        // already committed and broadcast mutation.
        go func(ev *seating.Mutation, actor uint64) {
            ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
            defer cancel()
            if err := r.hub.publisher.PublishMutation(ctx, r.eventID, actor, ev); err != nil {
                log.Printf("room %d: publish mutation failed: %v", r.eventID, err)
            }
        }(mut, m.sess.UserID)
    }
}

// handleOptimize runs the optimizer out-of-band on a snapshot so the
// room keeps serving single-seat edits while the search runs.  The
// proposal is delivered back through the inbox and sent only to the
// requester.
func (r *Room) handleOptimize(m *member, msg ClientMessage) {
    p, err := decodeOptimize(msg)
    if err != nil {
        r.rejectTo(m, msg.Op, err)
        return
    }
    snap := r.chart.Snapshot()
    connID := m.sess.ConnectionID
    budget := r.hub.optimizeBudget
    go func() {
        ctx, cancel := context.WithTimeout(context.Background(), budget)
        defer cancel()
        prop := seating.Optimize(ctx, p.Seed, p.GuestIDs, snap)
        r.deliver(envelope{kind: evProposal, connID: connID, proposal: &prop})
    }()
}

// rejectTo answers the originator with a machine-readable reason and the
// authoritative version so the client can resync.
func (r *Room) rejectTo(m *member, op string, err error) {
    rej, ok := err.(*seating.Rejection)
    if !ok {
        rej = &seating.Rejection{Code: seating.CodeBadRequest, Detail: err.Error(), Version: r.chart.Version()}
    }
    m.out.Send(ServerMessage{Type: MsgRejected, Op: op, Version: r.chart.Version(), Rejection: rej})
}

func (r *Room) broadcastExcept(connID string, m ServerMessage) {
    for id, member := range r.members {
        if id == connID {
            continue
        }
        member.out.Send(m)
    }
}

func (r *Room) memberList() []model.CollabSession {
    out := make([]model.CollabSession, 0, len(r.members))
    for _, m := range r.members {
        out = append(out, m.sess)
    }
    return out
}
