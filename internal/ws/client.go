// Package ws adapts a gorilla/websocket connection to the collaboration
// hub: one Client per connection, with a read loop feeding the room
// worker and a buffered write loop draining server messages.  Clients
// reconnect on their own with exponential backoff and always re-request
// a full snapshot by rejoining, so the server never replays deltas.
package ws

import (
    "log"
    "sync"
    "time"

    "github.com/gorilla/websocket"

    "github.com/iliyamo/event-seating/internal/collab"
)

const (
    // writeWait bounds a single frame write.
    writeWait = 10 * time.Second
    // pongWait is how long the read loop tolerates silence before the
    // connection is considered dead.
    pongWait = 60 * time.Second
    // pingPeriod must be below pongWait so pings keep the deadline fresh.
    pingPeriod = (pongWait * 9) / 10
    // sendBuffer is the outbound queue per connection.  A client that
    // cannot drain it fast enough is disconnected rather than allowed
    // to stall the room worker.
    sendBuffer = 64
)

// Client pumps messages between one websocket connection and a room.
// It implements collab.Sender.
type Client struct {
    conn   *websocket.Conn
    send   chan collab.ServerMessage
    mu     sync.Mutex
    closed bool
}

// NewClient wraps an upgraded connection.  The write pump starts
// immediately so join-time messages are delivered even before Run is
// called.
func NewClient(conn *websocket.Conn) *Client {
    c := &Client{conn: conn, send: make(chan collab.ServerMessage, sendBuffer)}
    go c.writePump()
    return c
}

// Send enqueues a message without blocking.  When the buffer is full the
// connection is closed: a stuck consumer must reconnect and resync from
// a snapshot instead of holding the room hostage.
func (c *Client) Send(m collab.ServerMessage) {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.closed {
        return
    }
    select {
    case c.send <- m:
    default:
        log.Printf("ws: slow consumer, dropping connection")
        c.closed = true
        close(c.send)
    }
}

// Close shuts the connection down once; safe to call from both the room
// worker and the pumps.
func (c *Client) Close() {
    c.mu.Lock()
    defer c.mu.Unlock()
    if !c.closed {
        c.closed = true
        close(c.send)
    }
}

// Run is the read loop.  It decodes client envelopes and forwards them
// to the room worker; any read or decode failure ends the session.  Run
// returns when the connection is gone, after notifying the room.
func (c *Client) Run(room *collab.Room, connID string) {
    defer room.Leave(connID)
    c.conn.SetReadDeadline(time.Now().Add(pongWait))
    c.conn.SetPongHandler(func(string) error {
        c.conn.SetReadDeadline(time.Now().Add(pongWait))
        return nil
    })
    for {
        var msg collab.ClientMessage
        if err := c.conn.ReadJSON(&msg); err != nil {
            if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
                log.Printf("ws: read failed: %v", err)
            }
            return
        }
        room.Forward(connID, msg)
    }
}

// writePump drains the send queue onto the wire and keeps the
// connection alive with pings.  It owns all writes to the connection.
func (c *Client) writePump() {
    ticker := time.NewTicker(pingPeriod)
    defer func() {
        ticker.Stop()
        _ = c.conn.Close()
    }()
    for {
        select {
        case m, ok := <-c.send:
            _ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
            if !ok {
                _ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
                return
            }
            if err := c.conn.WriteJSON(m); err != nil {
                return
            }
        case <-ticker.C:
            _ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
            if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
                return
            }
        }
    }
}
