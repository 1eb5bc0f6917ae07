package handler

import (
    "net/http" // HTTP status codes
    "strconv"  // parsing path parameters
    "time"     // room token TTL

    "github.com/gorilla/websocket"
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/event-seating/internal/auth"
    "github.com/iliyamo/event-seating/internal/collab"
    "github.com/iliyamo/event-seating/internal/repository"
    "github.com/iliyamo/event-seating/internal/ws"
)

// upgrader performs the HTTP -> WebSocket switch for seating rooms.
// Origin checking is delegated to the deployment's reverse proxy, as
// with the rest of the API surface.
var upgrader = websocket.Upgrader{
    ReadBufferSize:  4096,
    WriteBufferSize: 4096,
    CheckOrigin:     func(r *http.Request) bool { return true },
}

// SeatingHandler exposes the seating engine over HTTP: room token
// issuance, the WebSocket join endpoint and a read-only snapshot for
// the export collaborator.  Token issuance assumes JWT authentication
// middleware has already stored the caller's user id in the context.
type SeatingHandler struct {
    Repo            *repository.ChartRepo // collaborator checks and snapshots
    Hub             *collab.Hub           // active rooms
    Verifier        *auth.Verifier        // pre-upgrade token validation
    RoomTokenSecret string                // signs room-scoped tokens
    RoomTokenTTL    time.Duration         // lifetime of issued room tokens
}

// NewSeatingHandler constructs a SeatingHandler.  All dependencies must
// be non-nil.
func NewSeatingHandler(repo *repository.ChartRepo, hub *collab.Hub, verifier *auth.Verifier, secret string, ttl time.Duration) *SeatingHandler {
    if repo == nil || hub == nil || verifier == nil {
        panic("nil dependency passed to NewSeatingHandler")
    }
    return &SeatingHandler{Repo: repo, Hub: hub, Verifier: verifier, RoomTokenSecret: secret, RoomTokenTTL: ttl}
}

// IssueToken handles POST /v1/seating/token.  The request body carries
// the event id; the caller must be a collaborator on that event.  On
// success it returns a short-lived token scoped to the seating namespace
// and the event's room, which the client presents when opening the
// WebSocket.
func (h *SeatingHandler) IssueToken(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var body struct {
        EventID uint64 `json:"event_id"`
    }
    if err := c.Bind(&body); err != nil || body.EventID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_id is required"})
    }
    ok, err := h.Repo.IsCollaborator(c.Request().Context(), body.EventID, userID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    if !ok {
        return c.JSON(http.StatusForbidden, echo.Map{"error": repository.ErrForbidden.Error()})
    }
    tok, err := auth.IssueRoomToken(h.RoomTokenSecret, userID, body.EventID, h.RoomTokenTTL)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to issue token"})
    }
    return c.JSON(http.StatusCreated, echo.Map{
        "token":      tok.Token,
        "expires_at": tok.Exp.Format(time.RFC3339),
        "namespace":  auth.Namespace,
        "room_id":    body.EventID,
    })
}

// JoinRoom handles GET /v1/seating/ws?token=...  The room token is
// verified before the connection is upgraded, so invalid or expired
// tokens are refused with plain HTTP status codes and never create a
// collaboration session.  After the upgrade the connection is handed to
// the hub and the client receives the current snapshot as its first
// message.
func (h *SeatingHandler) JoinRoom(c echo.Context) error {
    token := c.QueryParam("token")
    if token == "" {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing token"})
    }
    // Refuse bad tokens with a plain HTTP status before spending an
    // upgrade on them.  The hub re-verifies on join.
    if _, err := h.Verifier.Verify(token); err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
    }
    conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
    if err != nil {
        // Upgrade already wrote the failure response.
        return nil
    }
    client := ws.NewClient(conn)
    room, sess, err := h.Hub.Join(c.Request().Context(), token, client)
    if err != nil {
        // Joining after the upgrade can still fail on a bad token or a
        // storage error; the websocket close frame carries the reason.
        _ = conn.WriteControl(websocket.CloseMessage,
            websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "join refused"),
            time.Now().Add(time.Second))
        client.Close()
        return nil
    }
    client.Run(room, sess.ConnectionID)
    return nil
}

// Snapshot handles GET /v1/seating/events/:id/snapshot.  It serves the
// durable chart state for export and rendering; responses are cacheable
// by the Redis cache middleware.  The caller must collaborate on the
// event.
func (h *SeatingHandler) Snapshot(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || eventID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
    }
    ok, err := h.Repo.IsCollaborator(c.Request().Context(), eventID, userID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    if !ok {
        return c.JSON(http.StatusForbidden, echo.Map{"error": repository.ErrForbidden.Error()})
    }
    st, err := h.Repo.LoadChart(c.Request().Context(), eventID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load chart"})
    }
    return c.JSON(http.StatusOK, st)
}

// getUserID extracts the authenticated user's id from the context, where
// the JWT middleware stored the token's subject claim.  JSON numbers
// arrive as float64; string subjects are parsed for compatibility.
func getUserID(c echo.Context) (uint64, error) {
    switch v := c.Get("user_id").(type) {
    case float64:
        if v > 0 {
            return uint64(v), nil
        }
    case string:
        if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
            return n, nil
        }
    case uint64:
        if v > 0 {
            return v, nil
        }
    }
    return 0, echo.ErrUnauthorized
}
