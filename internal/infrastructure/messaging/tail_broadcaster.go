package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/AtRiskMedia/tractstack-beacon/internal/domain/telemetry"
	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/observability/logging"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientBuffer   = 64
	maxClientFrame = 512
)

// TailClient represents a single connected live tail viewer.
type TailClient struct {
	Conn *websocket.Conn
	// SessionID limits the client to one session when set.
	SessionID string
	Send      chan []byte
}

// TailMessage is one frame sent to viewers: the records of a single
// accepted envelope that match the viewer's filter.
type TailMessage struct {
	ReceivedAt time.Time         `json:"receivedAt"`
	Events     []telemetry.Event `json:"events"`
}

// TailBroadcaster manages connected tail viewers and fans batches out to
// them. Slow viewers drop frames rather than stall ingest.
type TailBroadcaster struct {
	clients    map[*TailClient]bool
	register   chan *TailClient
	unregister chan *TailClient
	done       chan struct{}
	upgrader   websocket.Upgrader
	logger     *logging.ChanneledLogger
	mu         sync.RWMutex
}

// NewTailBroadcaster creates a broadcaster. checkOrigin may be nil to
// accept same-origin upgrades only.
func NewTailBroadcaster(logger *logging.ChanneledLogger, checkOrigin func(*http.Request) bool) *TailBroadcaster {
	return &TailBroadcaster{
		clients:    make(map[*TailClient]bool),
		register:   make(chan *TailClient),
		unregister: make(chan *TailClient),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// Run starts the broadcaster's main loop. This should be run as a goroutine.
func (b *TailBroadcaster) Run(ctx context.Context) {
	for {
		select {
		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			count := len(b.clients)
			b.mu.Unlock()
			b.logger.Tail().Info("Tail client registered", "sessionFilter", logging.MaskID(client.SessionID), "clients", count)

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client.Send)
			}
			count := len(b.clients)
			b.mu.Unlock()
			b.logger.Tail().Info("Tail client unregistered", "clients", count)

		case <-ctx.Done():
			close(b.done)
			b.mu.Lock()
			for client := range b.clients {
				delete(b.clients, client)
				close(client.Send)
			}
			b.mu.Unlock()
			b.logger.Shutdown().Info("Tail broadcaster stopped")
			return
		}
	}
}

// Publish sends events to every viewer whose filter matches.
func (b *TailBroadcaster) Publish(events []telemetry.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.clients) == 0 {
		return
	}

	now := time.Now().UTC()
	for client := range b.clients {
		matching := filterSession(events, client.SessionID)
		if len(matching) == 0 {
			continue
		}
		message, err := json.Marshal(TailMessage{ReceivedAt: now, Events: matching})
		if err != nil {
			b.logger.Tail().Error("Failed to encode tail message", "sessionFilter", logging.MaskID(client.SessionID), "error", err.Error())
			continue
		}
		select {
		case client.Send <- message:
		default:
			b.logger.Tail().Debug("Tail client is behind, frame dropped")
		}
	}
}

// ClientCount returns the number of connected viewers.
func (b *TailBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func filterSession(events []telemetry.Event, sessionID string) []telemetry.Event {
	if sessionID == "" {
		return events
	}
	var matching []telemetry.Event
	for _, event := range events {
		if event.Header().SessionID == sessionID {
			matching = append(matching, event)
		}
	}
	return matching
}

// ServeWS upgrades the request and streams tail frames until the viewer
// disconnects.
func (b *TailBroadcaster) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) error {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &TailClient{Conn: conn, SessionID: sessionID, Send: make(chan []byte, clientBuffer)}
	select {
	case b.register <- client:
	case <-b.done:
		conn.Close()
		return nil
	}

	go b.writePump(client)
	b.readPump(client)
	return nil
}

// readPump discards viewer input and notices when the viewer goes away.
func (b *TailBroadcaster) readPump(client *TailClient) {
	defer func() {
		select {
		case b.unregister <- client:
		case <-b.done:
		}
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(maxClientFrame)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Tail().Debug("Tail client read failed", "error", err.Error())
			}
			return
		}
	}
}

func (b *TailBroadcaster) writePump(client *TailClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
