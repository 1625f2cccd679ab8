package telemetry

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"skyshield/interceptor/internal/logging"
)

const sendBufferSize = 256

// subscriber is one attached telemetry consumer.
type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	id   string
}

// Broadcaster fans world snapshots and event envelopes out to attached
// WebSocket clients. Slow consumers are disconnected rather than allowed to
// stall the telemetry loop.
type Broadcaster struct {
	mu           sync.Mutex
	clients      map[*subscriber]bool
	pingInterval time.Duration
	maxClients   int
	log          *logging.Logger
}

// NewBroadcaster builds a hub with the supplied client cap and keepalive cadence.
func NewBroadcaster(maxClients int, pingInterval time.Duration, log *logging.Logger) *Broadcaster {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if log == nil {
		log = logging.L()
	}
	return &Broadcaster{
		clients:      make(map[*subscriber]bool),
		pingInterval: pingInterval,
		maxClients:   maxClients,
		log:          log,
	}
}

// ClientCount reports the number of attached consumers.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Broadcast queues the message for every attached consumer, dropping clients
// whose send buffer is full.
func (b *Broadcaster) Broadcast(msg []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		select {
		case c.send <- msg:
		default:
			//1.- A full buffer means the consumer stopped keeping up; cut it loose.
			close(c.send)
			delete(b.clients, c)
			b.log.Warn("telemetry client evicted", logging.String("client", c.id))
		}
	}
}

// Attach registers an upgraded connection and starts its read and write pumps.
// The connection is closed immediately when the client cap is reached.
func (b *Broadcaster) Attach(conn *websocket.Conn, id string) {
	if conn == nil {
		return
	}
	client := &subscriber{conn: conn, send: make(chan []byte, sendBufferSize), id: id}

	b.mu.Lock()
	if b.maxClients > 0 && len(b.clients) >= b.maxClients {
		b.mu.Unlock()
		b.log.Warn("telemetry client limit reached", logging.String("client", id))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "client limit reached"))
		_ = conn.Close()
		return
	}
	b.clients[client] = true
	b.mu.Unlock()

	go b.readPump(client)
	go b.writePump(client)
}

// Shutdown disconnects every consumer.
func (b *Broadcaster) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		close(c.send)
		delete(b.clients, c)
	}
}

func (b *Broadcaster) readPump(client *subscriber) {
	defer func() {
		b.detach(client)
		_ = client.conn.Close()
	}()
	//1.- Telemetry is one way; the read loop only notices disconnects.
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *Broadcaster) writePump(client *subscriber) {
	ticker := time.NewTicker(b.pingInterval)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-client.send:
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := client.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}

func (b *Broadcaster) detach(client *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[client]; ok {
		delete(b.clients, client)
		close(client.send)
	}
}
