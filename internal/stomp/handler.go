package stomp

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"presence-backend/internal/bus"
	"presence-backend/internal/model"
	"presence-backend/internal/session"
)

const readLimit = 512 * 1024

// Handler upgrades HTTP requests to STOMP-over-WebSocket sessions and shuttles
// frames between the socket and the session manager / event bus.
type Handler struct {
	bus      *bus.Bus
	manager  *session.Manager
	upgrader websocket.Upgrader
}

func NewHandler(b *bus.Bus, m *session.Manager) *Handler {
	return &Handler{
		bus:     b,
		manager: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn := newConn(uuid.NewString(), ws)
	h.manager.Connect(conn.ID, conn.Close)
	incConnections()

	go conn.writePump()
	go conn.keepAlive()
	h.readLoop(conn)
}

func (h *Handler) readLoop(conn *Conn) {
	subs := make(map[string]*subscription)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("stomp: recovered in read loop for %s: %v", conn.ID, r)
		}
		for _, sub := range subs {
			h.bus.Unsubscribe(sub.topic, sub.ID())
		}
		h.manager.Disconnect(conn.ID, "transport closed")
		conn.Close()
		decConnections()
	}()

	conn.ws.SetReadLimit(readLimit)

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if closeErr, ok := err.(*websocket.CloseError); ok {
				if closeErr.Code == websocket.CloseNormalClosure ||
					closeErr.Code == websocket.CloseGoingAway ||
					closeErr.Code == websocket.CloseNoStatusReceived {
					return
				}
			}
			log.Printf("stomp: read from %s: %v", conn.ID, err)
			return
		}

		f, err := decodeFrame(data)
		if err != nil {
			log.Printf("stomp: malformed frame from %s: %v", conn.ID, err)
			h.replySystem(conn, subs, "malformed STOMP frame")
			continue
		}
		if f == nil {
			// Heart-beat newline.
			continue
		}

		if h.handleFrame(conn, subs, f) {
			return
		}
	}
}

// handleFrame processes one frame; the return value reports whether the
// client asked to disconnect.
func (h *Handler) handleFrame(conn *Conn, subs map[string]*subscription, f *frame.Frame) bool {
	switch f.Command {
	case frame.CONNECT, frame.STOMP:
		conn.enqueue(frame.New(frame.CONNECTED,
			frame.Version, "1.2",
			frame.HeartBeat, "0,0",
			frame.Session, conn.ID))

	case frame.SUBSCRIBE:
		id := f.Header.Get(frame.Id)
		dest := f.Header.Get(frame.Destination)
		if id == "" || dest == "" {
			h.replySystem(conn, subs, "subscribe requires id and destination")
			return false
		}
		if old, ok := subs[id]; ok {
			h.bus.Unsubscribe(old.topic, old.ID())
		}
		sub := &subscription{id: id, dest: dest, topic: resolveTopic(dest, conn.ID), conn: conn}
		subs[id] = sub
		h.bus.Subscribe(sub.topic, sub)

	case frame.UNSUBSCRIBE:
		id := f.Header.Get(frame.Id)
		if sub, ok := subs[id]; ok {
			h.bus.Unsubscribe(sub.topic, sub.ID())
			delete(subs, id)
		}

	case frame.SEND:
		dest := f.Header.Get(frame.Destination)
		var msg model.WireMessage
		if err := json.Unmarshal(f.Body, &msg); err != nil {
			log.Printf("stomp: malformed body from %s: %v", conn.ID, err)
			h.replySystem(conn, subs, "malformed message body")
			return false
		}
		if err := h.manager.HandleMessage(conn.ID, dest, &msg); err != nil {
			log.Printf("stomp: %s on %s: %v", conn.ID, dest, err)
		}

	case frame.DISCONNECT:
		if receipt := f.Header.Get(frame.Receipt); receipt != "" {
			conn.enqueue(frame.New(frame.RECEIPT, frame.ReceiptId, receipt))
		}
		return true

	default:
		log.Printf("stomp: ignoring %s from %s", f.Command, conn.ID)
	}
	return false
}

// replySystem delivers a SYSTEM error straight to the client's system queue
// subscription, when it has one. Transport-level faults never close the
// connection.
func (h *Handler) replySystem(conn *Conn, subs map[string]*subscription, content string) {
	topic := model.UserQueue(conn.ID, model.QueueSystemStats)
	for _, sub := range subs {
		if sub.topic == topic {
			sub.Deliver(topic, &model.WireMessage{
				Type:      model.MessageSystem,
				Content:   content,
				Timestamp: time.Now().Unix(),
			})
			return
		}
	}
	log.Printf("stomp: dropping error reply for %s, no system queue subscription", conn.ID)
}

// resolveTopic rewrites client-relative /user/queue destinations to the
// connection-scoped topics the bus routes on; everything else passes through.
func resolveTopic(dest, connID string) string {
	if strings.HasPrefix(dest, "/user/queue/") {
		return model.UserQueue(connID, dest)
	}
	return dest
}
