package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/notification"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 16
)

var ErrHubStopped = errors.New("notification hub stopped")

type (
	// Message is what clients receive.
	Message struct {
		Type string      `json:"type"`
		Data interface{} `json:"data"`
	}

	envelope struct {
		recipientID string
		payload     []byte
	}

	countRequest struct {
		userID string
		reply  chan int
	}

	// ConnObserver is told about websocket connections coming and going.
	ConnObserver interface {
		ClientConnected()
		ClientDisconnected()
	}

	// Hub fans notifications out to the websocket connections of their recipients.
	// A single goroutine owns the connections; slow clients are dropped.
	Hub struct {
		logger   core.Logger
		observer ConnObserver
		upgrader websocket.Upgrader

		register   chan *client
		unregister chan *client
		publish    chan envelope
		count      chan countRequest
		done       chan struct{}
		stopped    chan struct{}

		clients map[string]map[*client]struct{} // {userID: {client}}
	}
)

var _ notification.Broker = (*Hub)(nil)

// NewHub returns a stopped Hub. observer may be nil.
func NewHub(logger core.Logger, observer ConnObserver) *Hub {
	return &Hub{
		logger:   logger,
		observer: observer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the frontend is served from another origin; auth is done with the token
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		register:   make(chan *client),
		unregister: make(chan *client),
		publish:    make(chan envelope, 256),
		count:      make(chan countRequest),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		clients:    make(map[string]map[*client]struct{}),
	}
}

// Start runs the hub in its own goroutine.
func (h *Hub) Start() {
	go h.run()
}

// Stop disconnects every client and waits for the hub to exit.
func (h *Hub) Stop() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
	<-h.stopped
}

func (h *Hub) run() {
	defer close(h.stopped)
	for {
		select {
		case c := <-h.register:
			conns, ok := h.clients[c.userID]
			if !ok {
				conns = make(map[*client]struct{})
				h.clients[c.userID] = conns
			}
			conns[c] = struct{}{}
			if h.observer != nil {
				h.observer.ClientConnected()
			}

		case c := <-h.unregister:
			h.remove(c)

		case env := <-h.publish:
			for c := range h.clients[env.recipientID] {
				select {
				case c.send <- env.payload:
				default:
					h.logger.Warn(fmt.Sprintf("realtime: dropping slow client of user %s", c.userID))
					h.remove(c)
				}
			}

		case req := <-h.count:
			req.reply <- len(h.clients[req.userID])

		case <-h.done:
			for _, conns := range h.clients {
				for c := range conns {
					close(c.send)
					if h.observer != nil {
						h.observer.ClientDisconnected()
					}
				}
			}
			h.clients = make(map[string]map[*client]struct{})
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	conns, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok = conns[c]; !ok {
		return
	}
	delete(conns, c)
	close(c.send)
	if h.observer != nil {
		h.observer.ClientDisconnected()
	}
	if len(conns) == 0 {
		delete(h.clients, c.userID)
	}
}

// Publish queues the notification for the recipient's connections. It never blocks the caller.
func (h *Hub) Publish(recipientID string, n notification.Notification) {
	payload, err := json.Marshal(Message{Type: "notification", Data: n})
	if err != nil {
		h.logger.Error(fmt.Sprintf("realtime.Publish: %v", err), err)
		return
	}
	select {
	case h.publish <- envelope{recipientID: recipientID, payload: payload}:
	case <-h.done:
	default:
		h.logger.Warn(fmt.Sprintf("realtime: publish queue full, dropping notification %s", n.ID))
	}
}

// Connections returns the number of open connections of a user.
func (h *Hub) Connections(userID string) int {
	req := countRequest{userID: userID, reply: make(chan int, 1)}
	select {
	case h.count <- req:
		return <-req.reply
	case <-h.stopped:
		return 0
	}
}

// ServeWS upgrades the request to a websocket connection that receives userID's notifications.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return errors.Wrap(err, "upgrading connection")
	}

	c := &client{hub: h, userID: userID, conn: conn, send: make(chan []byte, sendBufferSize)}
	select {
	case h.register <- c:
	case <-h.stopped:
		_ = conn.Close()
		return ErrHubStopped
	}

	go c.writePump()
	go c.readPump()
	return nil
}

type client struct {
	hub    *Hub
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

// readPump only handles control frames; clients do not send data.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopped:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
