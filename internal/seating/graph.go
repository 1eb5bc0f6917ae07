package seating

import (
    "sort"

    "github.com/iliyamo/event-seating/internal/model"
)

// edgeKey identifies one undirected guest pair with A < B.
type edgeKey struct {
    A uint64
    B uint64
}

func keyFor(a, b uint64) edgeKey {
    if a > b {
        a, b = b, a
    }
    return edgeKey{A: a, B: b}
}

// PrefGraph is the in-memory preference graph for one event.  It stores
// at most one edge per guest pair; setting a new kind for an existing
// pair overwrites the previous edge.  The graph is owned by the chart
// and mutated only through the chart's mutation path.
type PrefGraph struct {
    edges map[edgeKey]string // pair -> preference kind
}

// NewPrefGraph builds a graph from a slice of stored edges.  Edges are
// normalized on insert; a duplicate pair keeps the last kind seen.
func NewPrefGraph(edges []model.PreferenceEdge) *PrefGraph {
    g := &PrefGraph{edges: make(map[edgeKey]string, len(edges))}
    for _, e := range edges {
        n := model.NormalizeEdge(e)
        g.edges[edgeKey{A: n.GuestA, B: n.GuestB}] = n.Kind
    }
    return g
}

// Set records or overwrites the edge between two guests.  An empty kind
// removes the edge.  Callers must have validated the kind and rejected
// self-edges already.
func (g *PrefGraph) Set(a, b uint64, kind string) {
    k := keyFor(a, b)
    if kind == "" {
        delete(g.edges, k)
        return
    }
    g.edges[k] = kind
}

// Kind returns the preference kind between two guests, or "" when no
// edge exists.
func (g *PrefGraph) Kind(a, b uint64) string {
    return g.edges[keyFor(a, b)]
}

// Edges returns all edges sorted by (GuestA, GuestB) so snapshots and
// replays are byte-stable.
func (g *PrefGraph) Edges() []model.PreferenceEdge {
    out := make([]model.PreferenceEdge, 0, len(g.edges))
    for k, kind := range g.edges {
        out = append(out, model.PreferenceEdge{GuestA: k.A, GuestB: k.B, Kind: kind})
    }
    sort.Slice(out, func(i, j int) bool {
        if out[i].GuestA != out[j].GuestA {
            return out[i].GuestA < out[j].GuestA
        }
        return out[i].GuestB < out[j].GuestB
    })
    return out
}

// Partners returns the guests connected to g by an edge of the given
// kind, sorted ascending for deterministic iteration.
func (g *PrefGraph) Partners(guest uint64, kind string) []uint64 {
    var out []uint64
    for k, kd := range g.edges {
        if kd != kind {
            continue
        }
        if k.A == guest {
            out = append(out, k.B)
        } else if k.B == guest {
            out = append(out, k.A)
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
    return out
}

// MustGroups partitions the given guests into must-together components
// using union-find.  Only edges whose both endpoints are in the input
// set contribute.  Each group is sorted ascending and groups are ordered
// by their lowest member, so the result is deterministic.
func (g *PrefGraph) MustGroups(guests []uint64) [][]uint64 {
    d := newDSU(guests)
    for k, kind := range g.edges {
        if kind != model.PrefMustTogether {
            continue
        }
        d.union(k.A, k.B)
    }
    byRoot := make(map[uint64][]uint64)
    for _, id := range guests {
        r := d.find(id)
        byRoot[r] = append(byRoot[r], id)
    }
    groups := make([][]uint64, 0, len(byRoot))
    for _, members := range byRoot {
        sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
        groups = append(groups, members)
    }
    sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
    return groups
}

// dsu is a plain union-find over guest ids.  Ids not registered at
// construction are ignored by union.
type dsu struct {
    parent map[uint64]uint64
    rank   map[uint64]int
}

func newDSU(ids []uint64) *dsu {
    d := &dsu{parent: make(map[uint64]uint64, len(ids)), rank: make(map[uint64]int, len(ids))}
    for _, id := range ids {
        d.parent[id] = id
    }
    return d
}

func (d *dsu) find(x uint64) uint64 {
    p, ok := d.parent[x]
    if !ok {
        return x
    }
    if p != x {
        d.parent[x] = d.find(p)
    }
    return d.parent[x]
}

func (d *dsu) union(a, b uint64) {
    if _, ok := d.parent[a]; !ok {
        return
    }
    if _, ok := d.parent[b]; !ok {
        return
    }
    ra, rb := d.find(a), d.find(b)
    if ra == rb {
        return
    }
    if d.rank[ra] < d.rank[rb] {
        ra, rb = rb, ra
    }
    d.parent[rb] = ra
    if d.rank[ra] == d.rank[rb] {
        d.rank[ra]++
    }
}
