package repository

import (
    "context"
    "database/sql"
    "fmt"

    "github.com/iliyamo/event-seating/internal/model"
    "github.com/iliyamo/event-seating/internal/seating"
)

// ChartRepo provides durable storage for seating charts: tables, seat
// assignments, preference edges and the per-event arrangement version.
// It satisfies the collab.ChartStore contract.  Table ids are allocated
// by the in-memory chart and stored verbatim, so a replayed mutation
// sequence produces identical rows.
type ChartRepo struct {
    db *sql.DB
}

// NewChartRepo returns a ChartRepo bound to the provided database.
func NewChartRepo(db *sql.DB) *ChartRepo { return &ChartRepo{db: db} }

// DB exposes the underlying handle for callers that need to open their
// own transactions.
func (r *ChartRepo) DB() *sql.DB { return r.db }

// LoadChart reads the full chart state for an event.  An event with no
// rows yet yields an empty chart at version 0, which is a valid state:
// the first collaborator starts from a blank floor plan.
func (r *ChartRepo) LoadChart(ctx context.Context, eventID uint64) (seating.ChartState, error) {
    var st seating.ChartState

    err := r.db.QueryRowContext(ctx,
        `SELECT version FROM seating_charts WHERE event_id = ?`, eventID,
    ).Scan(&st.Version)
    if err != nil && err != sql.ErrNoRows {
        return st, fmt.Errorf("load chart version: %w", err)
    }

    rows, err := r.db.QueryContext(ctx,
        `SELECT id, capacity, shape, pos_x, pos_y FROM seating_tables WHERE event_id = ? ORDER BY id`, eventID)
    if err != nil {
        return st, fmt.Errorf("load tables: %w", err)
    }
    for rows.Next() {
        t := model.Table{EventID: eventID}
        if err := rows.Scan(&t.ID, &t.Capacity, &t.Shape, &t.PosX, &t.PosY); err != nil {
            rows.Close()
            return st, err
        }
        st.Tables = append(st.Tables, t)
    }
    if err := rows.Close(); err != nil {
        return st, err
    }

    rows, err = r.db.QueryContext(ctx,
        `SELECT guest_id, table_id, seat_index FROM seat_assignments WHERE event_id = ? ORDER BY guest_id`, eventID)
    if err != nil {
        return st, fmt.Errorf("load assignments: %w", err)
    }
    for rows.Next() {
        var a model.SeatAssignment
        if err := rows.Scan(&a.GuestID, &a.TableID, &a.SeatIndex); err != nil {
            rows.Close()
            return st, err
        }
        st.Assignments = append(st.Assignments, a)
    }
    if err := rows.Close(); err != nil {
        return st, err
    }

    rows, err = r.db.QueryContext(ctx,
        `SELECT guest_a, guest_b, kind FROM preference_edges WHERE event_id = ? ORDER BY guest_a, guest_b`, eventID)
    if err != nil {
        return st, fmt.Errorf("load preferences: %w", err)
    }
    for rows.Next() {
        var e model.PreferenceEdge
        if err := rows.Scan(&e.GuestA, &e.GuestB, &e.Kind); err != nil {
            rows.Close()
            return st, err
        }
        st.Edges = append(st.Edges, e)
    }
    if err := rows.Close(); err != nil {
        return st, err
    }

    return st, nil
}

// ApplyMutation persists one accepted mutation and its new version in a
// single transaction.  The room worker calls this after validation and
// before applying the mutation in memory, so a failure here means the
// mutation simply never happened.
func (r *ChartRepo) ApplyMutation(ctx context.Context, eventID uint64, m *seating.Mutation) error {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return fmt.Errorf("begin: %w", err)
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    switch m.Kind {
    case seating.MutCreateTable:
        _, err = tx.ExecContext(ctx,
            `INSERT INTO seating_tables (event_id, id, capacity, shape, pos_x, pos_y) VALUES (?, ?, ?, ?, ?, ?)`,
            eventID, m.Table.ID, m.Table.Capacity, m.Table.Shape, m.Table.PosX, m.Table.PosY)
    case seating.MutDeleteTable:
        if _, err = tx.ExecContext(ctx,
            `DELETE FROM seat_assignments WHERE event_id = ? AND table_id = ?`, eventID, m.TableID); err == nil {
            _, err = tx.ExecContext(ctx,
                `DELETE FROM seating_tables WHERE event_id = ? AND id = ?`, eventID, m.TableID)
        }
    case seating.MutAssignSeat:
        _, err = tx.ExecContext(ctx,
            `INSERT INTO seat_assignments (event_id, guest_id, table_id, seat_index) VALUES (?, ?, ?, ?)`,
            eventID, m.GuestID, m.TableID, m.SeatIndex)
    case seating.MutUnassignSeat:
        _, err = tx.ExecContext(ctx,
            `DELETE FROM seat_assignments WHERE event_id = ? AND guest_id = ?`, eventID, m.GuestID)
    case seating.MutMoveSeat:
        _, err = tx.ExecContext(ctx,
            `UPDATE seat_assignments SET table_id = ?, seat_index = ? WHERE event_id = ? AND guest_id = ?`,
            m.TableID, m.SeatIndex, eventID, m.GuestID)
    case seating.MutSetPreference:
        if m.Edge.Kind == "" {
            _, err = tx.ExecContext(ctx,
                `DELETE FROM preference_edges WHERE event_id = ? AND guest_a = ? AND guest_b = ?`,
                eventID, m.Edge.GuestA, m.Edge.GuestB)
        } else {
            _, err = tx.ExecContext(ctx,
                `INSERT INTO preference_edges (event_id, guest_a, guest_b, kind) VALUES (?, ?, ?, ?)
                 ON DUPLICATE KEY UPDATE kind = VALUES(kind)`,
                eventID, m.Edge.GuestA, m.Edge.GuestB, m.Edge.Kind)
        }
    case seating.MutApplyProposal:
        query := `INSERT INTO seat_assignments (event_id, guest_id, table_id, seat_index) VALUES `
        args := make([]interface{}, 0, len(m.Assignments)*4)
        for i, a := range m.Assignments {
            if i > 0 {
                query += ","
            }
            query += "(?, ?, ?, ?)"
            args = append(args, eventID, a.GuestID, a.TableID, a.SeatIndex)
        }
        _, err = tx.ExecContext(ctx, query, args...)
    default:
        err = fmt.Errorf("unknown mutation kind %q", m.Kind)
    }
    if err != nil {
        return fmt.Errorf("apply %s: %w", m.Kind, err)
    }

    if _, err = tx.ExecContext(ctx,
        `INSERT INTO seating_charts (event_id, version) VALUES (?, ?)
         ON DUPLICATE KEY UPDATE version = VALUES(version)`,
        eventID, m.Version); err != nil {
        return fmt.Errorf("bump version: %w", err)
    }

    if err = tx.Commit(); err != nil {
        return fmt.Errorf("commit: %w", err)
    }
    committed = true
    return nil
}

// IsCollaborator reports whether the user may edit the event's chart.
// Token issuance checks this before minting a room token.
func (r *ChartRepo) IsCollaborator(ctx context.Context, eventID, userID uint64) (bool, error) {
    var one int
    err := r.db.QueryRowContext(ctx,
        `SELECT 1 FROM event_collaborators WHERE event_id = ? AND user_id = ?`,
        eventID, userID,
    ).Scan(&one)
    if err == sql.ErrNoRows {
        return false, nil
    }
    if err != nil {
        return false, err
    }
    return true, nil
}
