package services

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/necko-moe/necko3-core/internal/events"
	"github.com/necko-moe/necko3-core/internal/metrics"

	"github.com/gorilla/websocket"
)

// WebSocket Upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The /ws endpoint sits behind the ops middleware, origin is not
		// checked again here.
		return true
	},
}

// Connection information
type Connection struct {
	ID       string          `json:"id"`
	Chain    string          `json:"chain"` // empty subscribes to every chain
	Conn     *websocket.Conn `json:"-"`
	Send     chan []byte     `json:"-"`
	LastPing time.Time       `json:"last_ping"`
}

// WebSocketPushService fans gateway events out to connected ops dashboards.
// Events are the same payloads published to NATS, so a dashboard can follow
// invoice and payment state without running its own JetStream consumer.
type WebSocketPushService struct {
	connections map[string]*Connection // key: connectionID
	hub         chan events.GatewayEvent
	register    chan *Connection
	unregister  chan *Connection
	mutex       sync.RWMutex
}

// NewWebSocketPushService creates the hub and starts its dispatch loop.
func NewWebSocketPushService() *WebSocketPushService {
	service := &WebSocketPushService{
		connections: make(map[string]*Connection),
		hub:         make(chan events.GatewayEvent, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
	}

	go service.run()
	return service
}

func (s *WebSocketPushService) run() {
	for {
		select {
		case conn := <-s.register:
			s.handleRegister(conn)

		case conn := <-s.unregister:
			s.handleUnregister(conn)

		case event := <-s.hub:
			s.handleBroadcast(event)
		}
	}
}

// Broadcast queues an event for delivery to every matching connection.
// When the hub is saturated the event is dropped: a slow dashboard must
// never stall settlement or the janitor.
func (s *WebSocketPushService) Broadcast(event events.GatewayEvent) {
	select {
	case s.hub <- event:
	default:
		log.Printf("⚠️ WebSocket hub full, dropped %s event for invoice %s", event.Type, event.InvoiceID)
	}
}

func (s *WebSocketPushService) handleRegister(conn *Connection) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.connections[conn.ID] = conn
	metrics.WSClientsConnected.Set(float64(len(s.connections)))

	log.Printf("📱 WebSocket connection registered: connID=%s, chain=%q", conn.ID, conn.Chain)
}

func (s *WebSocketPushService) handleUnregister(conn *Connection) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.connections[conn.ID]; !exists {
		return
	}
	delete(s.connections, conn.ID)
	metrics.WSClientsConnected.Set(float64(len(s.connections)))

	if conn.Send != nil {
		close(conn.Send)
	}
	if conn.Conn != nil {
		conn.Conn.Close()
	}

	log.Printf("📱 WebSocket connection unregistered: connID=%s", conn.ID)
}

func (s *WebSocketPushService) handleBroadcast(event events.GatewayEvent) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.connections) == 0 {
		return
	}

	data, err := event.Marshal()
	if err != nil {
		log.Printf("❌ Failed to marshal %s event: %v", event.Type, err)
		return
	}
	payload := []byte(data)

	for _, conn := range s.connections {
		if conn.Chain != "" && conn.Chain != event.Chain {
			continue
		}
		select {
		case conn.Send <- payload:
		default:
			// channel full or closed, the read pump will reap the connection
			log.Printf("⚠️ Failed to push %s event to connection %s", event.Type, conn.ID)
		}
	}
}

// HandleWebSocket upgrades the request and wires the connection into the hub.
// chain narrows the subscription to a single chain; empty receives everything.
func (s *WebSocketPushService) HandleWebSocket(w http.ResponseWriter, r *http.Request, chain string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ WebSocket upgrade failed: %v", err)
		return
	}

	connection := &Connection{
		ID:       generateConnectionID(),
		Chain:    chain,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		LastPing: time.Now(),
	}

	s.register <- connection

	go s.handleConnectionWrite(connection)
	go s.handleConnectionRead(connection)
}

func (s *WebSocketPushService) handleConnectionWrite(conn *Connection) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("❌ Write message failed: %v", err)
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *WebSocketPushService) handleConnectionRead(conn *Connection) {
	defer func() {
		s.unregister <- conn
	}()

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.LastPing = time.Now()
		return nil
	})

	for {
		_, _, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("❌ WebSocket read error: %v", err)
			}
			break
		}
	}
}

// GetActiveConnections reports how many dashboards are attached.
func (s *WebSocketPushService) GetActiveConnections() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.connections)
}

func generateConnectionID() string {
	return fmt.Sprintf("conn_%d", time.Now().UnixNano())
}
