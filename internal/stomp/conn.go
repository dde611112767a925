package stomp

import (
	"bytes"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"presence-backend/internal/model"
)

const outboundBuffer = 16

// Conn is one STOMP session over a websocket. Outbound frames are queued on a
// buffered channel drained by writePump, so publishers never block on the
// socket.
type Conn struct {
	ID string

	ws        *websocket.Conn
	out       chan *frame.Frame
	done      chan struct{}
	mu        sync.Mutex
	isClosed  bool
	closeOnce sync.Once
}

func newConn(id string, ws *websocket.Conn) *Conn {
	return &Conn{
		ID:   id,
		ws:   ws,
		out:  make(chan *frame.Frame, outboundBuffer),
		done: make(chan struct{}),
	}
}

// enqueue queues a frame for writing. Returns false when the connection is
// closing or the buffer is full; callers treat that as a slow client.
func (c *Conn) enqueue(f *frame.Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- f:
		return true
	default:
		return false
	}
}

// Close is idempotent and safe to call from any goroutine.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		c.isClosed = true
		if c.ws != nil {
			c.ws.Close()
		}
		c.mu.Unlock()
	})
}

func (c *Conn) writePump() {
	defer c.Close()

	for {
		select {
		case <-c.done:
			return
		case f := <-c.out:
			data, err := encodeFrame(f)
			if err != nil {
				log.Printf("stomp: encode frame for %s: %v", c.ID, err)
				continue
			}

			c.mu.Lock()
			if c.isClosed {
				c.mu.Unlock()
				return
			}
			err = c.ws.WriteMessage(websocket.TextMessage, data)
			c.mu.Unlock()

			if err != nil {
				log.Printf("stomp: write to %s: %v", c.ID, err)
				return
			}
		}
	}
}

func (c *Conn) keepAlive() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.isClosed {
				c.mu.Unlock()
				return
			}
			err := c.ws.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()

			if err != nil {
				log.Printf("stomp: ping %s: %v", c.ID, err)
				return
			}
		}
	}
}

// subscription is one client SUBSCRIBE registration; it adapts bus delivery
// into MESSAGE frames addressed the way the client subscribed.
type subscription struct {
	id    string // client-chosen subscription id
	dest  string // destination as the client sees it
	topic string // bus topic after /user rewriting
	conn  *Conn
}

func (s *subscription) ID() string {
	return s.conn.ID + ":" + s.id
}

func (s *subscription) Deliver(topic string, msg *model.WireMessage) bool {
	body, err := json.Marshal(msg)
	if err != nil {
		log.Printf("stomp: marshal message for %s: %v", s.ID(), err)
		return true
	}

	f := frame.New(frame.MESSAGE,
		frame.Destination, s.dest,
		frame.Subscription, s.id,
		frame.MessageId, uuid.NewString(),
		frame.ContentType, "application/json")
	f.Body = body

	if !s.conn.enqueue(f) {
		return false
	}
	incDelivered()
	return true
}

func encodeFrame(f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeFrame parses one STOMP frame from a websocket message. A heart-beat
// newline decodes to a nil frame with no error.
func decodeFrame(data []byte) (*frame.Frame, error) {
	return frame.NewReader(bytes.NewReader(data)).Read()
}
