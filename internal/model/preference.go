package model

// Preference kinds stored in preference_edges.kind.  MUST_TOGETHER and
// AVOID are hard constraints enforced on every mutation; PREFER_TOGETHER
// only contributes to the optimizer score and to warning counts.
const (
    PrefMustTogether   = "MUST_TOGETHER"
    PrefPreferTogether = "PREFER_TOGETHER"
    PrefAvoid          = "AVOID"
)

// PreferenceEdge is an undirected social constraint between two guests.
// Edges are normalized so that GuestA < GuestB, which makes (GuestA,
// GuestB) a stable key and prevents duplicate rows for the same pair.
// Self-edges are rejected at the protocol boundary.
//
// Fields:
//  GuestA – lower guest id of the pair.
//  GuestB – higher guest id of the pair.
//  Kind   – constraint kind (MUST_TOGETHER, PREFER_TOGETHER, AVOID).
type PreferenceEdge struct {
    GuestA uint64 `json:"guest_a"` // preference_edges.guest_a
    GuestB uint64 `json:"guest_b"` // preference_edges.guest_b
    Kind   string `json:"kind"`    // preference_edges.kind
}

// NormalizeEdge returns the edge with its guest ids ordered so that
// GuestA < GuestB.  Callers should normalize before comparing or storing
// edges.
func NormalizeEdge(e PreferenceEdge) PreferenceEdge {
    if e.GuestA > e.GuestB {
        e.GuestA, e.GuestB = e.GuestB, e.GuestA
    }
    return e
}

// ValidPrefKind reports whether k names a supported preference kind.
func ValidPrefKind(k string) bool {
    return k == PrefMustTogether || k == PrefPreferTogether || k == PrefAvoid
}
