package collab

import (
    "context"
    "fmt"
    "sync"
    "time"

    "github.com/google/uuid"

    "github.com/iliyamo/event-seating/internal/auth"
    "github.com/iliyamo/event-seating/internal/model"
    "github.com/iliyamo/event-seating/internal/seating"
)

// ChartStore is the storage collaborator contract.  LoadChart returns
// the full durable state of an event's chart when a room transitions
// from empty to active; ApplyMutation persists one accepted mutation
// (including its new version) atomically.
type ChartStore interface {
    LoadChart(ctx context.Context, eventID uint64) (seating.ChartState, error)
    ApplyMutation(ctx context.Context, eventID uint64, m *seating.Mutation) error
}

// TokenVerifier is the auth collaborator contract used at join time.
type TokenVerifier interface {
    Verify(token string) (auth.Claims, error)
}

// MutationPublisher fans accepted mutations out to the notification and
// export collaborators.  Implementations must treat delivery as
// best-effort.
type MutationPublisher interface {
    PublishMutation(ctx context.Context, eventID, actorID uint64, m *seating.Mutation) error
}

// defaultOptimizeBudget caps one optimizer run unless configured
// otherwise.
const defaultOptimizeBudget = 2 * time.Second

// Hub tracks the active rooms, one per event.  A room exists only while
// it has at least one session; the hub creates it on first join (loading
// the chart from storage) and evicts it when the last session leaves.
type Hub struct {
    mu             sync.Mutex
    rooms          map[uint64]*Room
    store          ChartStore
    verifier       TokenVerifier
    publisher      MutationPublisher // may be nil
    optimizeBudget time.Duration
}

// NewHub constructs a hub.  publisher may be nil when no broker is
// configured; optimizeBudget <= 0 selects the default.
func NewHub(store ChartStore, verifier TokenVerifier, publisher MutationPublisher, optimizeBudget time.Duration) *Hub {
    if store == nil || verifier == nil {
        panic("nil store or verifier passed to NewHub")
    }
    if optimizeBudget <= 0 {
        optimizeBudget = defaultOptimizeBudget
    }
    return &Hub{
        rooms:          make(map[uint64]*Room),
        store:          store,
        verifier:       verifier,
        publisher:      publisher,
        optimizeBudget: optimizeBudget,
    }
}

// Join validates a room token, admits the connection into the event's
// room (creating and hydrating the room if this is the first session)
// and returns the room and the new session.  The snapshot is delivered
// asynchronously by the room worker as the session's first message.
// Invalid tokens fail before any session state is created.
func (h *Hub) Join(ctx context.Context, token string, out Sender) (*Room, model.CollabSession, error) {
    claims, err := h.verifier.Verify(token)
    if err != nil {
        return nil, model.CollabSession{}, err
    }

    sess := model.CollabSession{
        ConnectionID: uuid.New().String(),
        UserID:       claims.UserID,
        EventID:      claims.Room,
        JoinedAt:     time.Now().UTC(),
    }

    // Load outside the hub lock so a slow storage call for one event
    // never blocks joins to other rooms.  The load is discarded when a
    // concurrent join won the race to create the room.
    var loaded *seating.ChartState
    h.mu.Lock()
    _, exists := h.rooms[claims.Room]
    h.mu.Unlock()
    if !exists {
        st, err := h.store.LoadChart(ctx, claims.Room)
        if err != nil {
            return nil, model.CollabSession{}, fmt.Errorf("load chart for event %d: %w", claims.Room, err)
        }
        loaded = &st
    }

    h.mu.Lock()
    room, ok := h.rooms[claims.Room]
    if !ok {
        if loaded == nil {
            // The creating join raced a retirement; reload is cheap and
            // rare, so do it under a fresh call rather than holding the
            // lock across storage.
            h.mu.Unlock()
            return h.Join(ctx, token, out)
        }
        room = newRoom(h, claims.Room, *loaded)
        h.rooms[claims.Room] = room
        go room.run()
    }
    h.mu.Unlock()

    // Reserve first, enqueue after releasing every lock.  The
    // reservation pins the worker alive, so a full inbox only delays
    // this one join; it can never wedge the hub or other rooms.
    if !room.reserveJoin() {
        // The room retired between lookup and reservation; start over
        // against the fresh map.
        return h.Join(ctx, token, out)
    }
    room.deliver(envelope{kind: evJoin, member: &member{sess: sess, out: out}})
    room.finishJoin()

    return room, sess, nil
}

// retire removes a room whose last member left.  It refuses when new
// work is queued or a join holds a reservation, in which case the room
// keeps running.  Lock order is room then hub; Join holds neither lock
// while it blocks on the inbox.
func (h *Hub) retire(r *Room) bool {
    r.mu.Lock()
    defer r.mu.Unlock()
    if r.pendingJoins > 0 || len(r.inbox) > 0 {
        return false
    }
    r.retired = true
    h.mu.Lock()
    if h.rooms[r.eventID] == r {
        delete(h.rooms, r.eventID)
    }
    h.mu.Unlock()
    return true
}

// ActiveRooms reports the number of live rooms, used by the health
// endpoint and tests.
func (h *Hub) ActiveRooms() int {
    h.mu.Lock()
    defer h.mu.Unlock()
    return len(h.rooms)
}
