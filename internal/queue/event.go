// Package queue defines message payloads exchanged over the message broker.
package queue

import "github.com/iliyamo/event-seating/internal/seating"

// mutationQueueName is the durable queue carrying accepted seating
// mutations to the notification and export collaborators.
const mutationQueueName = "seating.mutations"

// SeatingMutationEvent is published after a mutation has been persisted,
// applied and broadcast.  It carries enough information for downstream
// consumers to notify collaborators or refresh exports without querying
// the primary database.
type SeatingMutationEvent struct {
    EventID    uint64            `json:"event_id"`
    ActorID    uint64            `json:"actor_id"`
    Mutation   *seating.Mutation `json:"mutation"`
    Version    uint64            `json:"version"`
    OccurredAt string            `json:"occurred_at"`
}
