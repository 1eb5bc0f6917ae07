package auth // package auth issues and verifies room-scoped collaboration tokens

import (
    "errors"
    "time"

    "github.com/golang-jwt/jwt/v5" // JWT library for creating and parsing signed tokens
)

// Namespace is the token namespace for the seating engine.  Tokens
// minted for other namespaces are rejected at join time even when their
// signature is valid, so a token for a different subsystem can never
// open a seating room.
const Namespace = "seating"

// ErrInvalidToken is returned by Verify for any token that is missing,
// malformed, expired, signed with the wrong key or scoped to another
// namespace.  Callers translate it into a refused connection; no session
// is ever created from an invalid token.
var ErrInvalidToken = errors.New("invalid collaboration token")

// Claims is the verified content of a room token.  Room is the event id
// the token grants access to.
type Claims struct {
    UserID    uint64    // authenticated user the token was minted for
    Room      uint64    // event id the token is scoped to
    Namespace string    // always "seating" for valid tokens
    ExpiresAt time.Time // UTC expiry
}

// RoomToken is a signed short-lived token plus its expiry, returned to
// the client that requested access to a room.
type RoomToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// IssueRoomToken builds and signs an HS256 JWT granting userID access to
// the seating room of eventID for ttl.  The claims carry the namespace
// and room so the token cannot be replayed against another event or
// subsystem.
func IssueRoomToken(secret string, userID, eventID uint64, ttl time.Duration) (RoomToken, error) {
    exp := time.Now().UTC().Add(ttl)
    claims := jwt.MapClaims{
        "sub":  userID,
        "ns":   Namespace,
        "room": eventID,
        "exp":  exp.Unix(),
        "iat":  time.Now().UTC().Unix(),
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return RoomToken{}, err
    }
    return RoomToken{Token: signed, Exp: exp}, nil
}

// Verifier checks room tokens before a collaboration session is
// admitted.  It is the engine-side half of the auth collaborator
// contract: verifyToken(token) -> claims | invalid.
type Verifier struct {
    secret string
}

// NewVerifier returns a Verifier bound to the signing secret.
func NewVerifier(secret string) *Verifier { return &Verifier{secret: secret} }

// Verify parses and validates a room token.  Expiry is enforced by the
// JWT library and the claim itself is mandatory: a signed token without
// one would never expire.  The namespace claim is checked here.  Any
// failure maps to ErrInvalidToken so callers cannot leak parsing details
// to clients.
func (v *Verifier) Verify(raw string) (Claims, error) {
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, ErrInvalidToken
        }
        return []byte(v.secret), nil
    }, jwt.WithExpirationRequired())
    if err != nil || !tok.Valid {
        return Claims{}, ErrInvalidToken
    }
    mc, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return Claims{}, ErrInvalidToken
    }
    ns, _ := mc["ns"].(string)
    if ns != Namespace {
        return Claims{}, ErrInvalidToken
    }
    sub, ok := numClaim(mc, "sub")
    if !ok || sub == 0 {
        return Claims{}, ErrInvalidToken
    }
    room, ok := numClaim(mc, "room")
    if !ok || room == 0 {
        return Claims{}, ErrInvalidToken
    }
    var exp time.Time
    if e, err := mc.GetExpirationTime(); err == nil && e != nil {
        exp = e.Time
    }
    return Claims{UserID: sub, Room: room, Namespace: ns, ExpiresAt: exp}, nil
}

// numClaim reads a numeric claim.  JSON decoding turns numbers into
// float64, so the value is converted back to uint64 here.
func numClaim(mc jwt.MapClaims, key string) (uint64, bool) {
    switch v := mc[key].(type) {
    case float64:
        if v < 0 {
            return 0, false
        }
        return uint64(v), true
    case uint64:
        return v, true
    case int64:
        if v < 0 {
            return 0, false
        }
        return uint64(v), true
    default:
        return 0, false
    }
}
