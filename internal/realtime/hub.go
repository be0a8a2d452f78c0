// Package realtime pushes project lifecycle events to websocket clients.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

type room struct {
	clients map[*client]struct{}
}

// Hub fans events out to the clients subscribed to each project.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*room
	log   logrus.FieldLogger

	upgrader websocket.Upgrader
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		rooms: make(map[string]*room),
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Publish sends an event to every client of projectID. Slow clients whose
// buffer is full miss the event.
func (h *Hub) Publish(projectID, eventType string, data interface{}) {
	payload, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		h.log.WithError(err).Warn("realtime: marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[projectID]
	if !ok {
		return
	}
	for c := range r.clients {
		select {
		case c.send <- payload:
		default:
		}
	}
}

// Subscribers reports the number of clients connected to projectID.
func (h *Hub) Subscribers(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[projectID]; ok {
		return len(r.clients)
	}
	return 0
}

// Serve upgrades the request and streams projectID's events until the
// client disconnects. Access checks happen before Serve is called.
func (h *Hub) Serve(c echo.Context, projectID, userID string) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	cl := &client{conn: ws, send: make(chan []byte, sendBuffer)}
	h.register(projectID, cl)
	go h.writeLoop(cl)

	h.Publish(projectID, "presence_join", echo.Map{"userId": userID})

	// Clients only listen; inbound messages are discarded.
	ws.SetReadLimit(512)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	h.unregister(projectID, cl)
	h.Publish(projectID, "presence_leave", echo.Map{"userId": userID})
	return nil
}

func (h *Hub) register(projectID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[projectID]
	if !ok {
		r = &room{clients: make(map[*client]struct{})}
		h.rooms[projectID] = r
	}
	r.clients[c] = struct{}{}
}

func (h *Hub) unregister(projectID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[projectID]
	if !ok {
		return
	}
	if _, ok := r.clients[c]; ok {
		delete(r.clients, c)
		close(c.send)
	}
	if len(r.clients) == 0 {
		delete(h.rooms, projectID)
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
