package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second

	// Buffered messages per session before it is dropped as too slow.
	sendBuffer = 16
)

func (s *DevServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	closed := s.isShutdown
	s.shutdownMu.RUnlock()
	if closed {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns(),
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		server: s,
	}

	select {
	case s.register <- client:
	case <-s.hubDone:
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go client.writePump()
	client.readPump()
}

// originPatterns allows pages served from the configured host and loopback.
func (s *DevServer) originPatterns() []string {
	patterns := []string{"localhost:*", "127.0.0.1:*", "[::1]:*"}
	if h := s.opts.Host; h != "" && h != "localhost" && h != "127.0.0.1" && h != "0.0.0.0" {
		patterns = append(patterns, h+":*")
	}
	return patterns
}

func (s *DevServer) runWebSocketHub() {
	for {
		select {
		case <-s.hubDone:
			return

		case client := <-s.register:
			select {
			case <-s.hubDone:
				close(client.send)
				_ = client.conn.Close(websocket.StatusGoingAway, "server shutting down")
				continue
			default:
			}
			s.clientsMutex.Lock()
			s.clients[client.conn] = client
			clientCount := len(s.clients)
			s.clientsMutex.Unlock()
			s.recorder.SetSessions(clientCount)
			s.logger.Debug(context.Background(), "Client connected", "sessions", clientCount)

		case conn := <-s.unregister:
			s.clientsMutex.Lock()
			if client, ok := s.clients[conn]; ok {
				delete(s.clients, conn)
				close(client.send)
			}
			clientCount := len(s.clients)
			s.clientsMutex.Unlock()
			s.recorder.SetSessions(clientCount)
			s.logger.Debug(context.Background(), "Client disconnected", "sessions", clientCount)

		case message := <-s.broadcast:
			s.clientsMutex.Lock()
			var failed []*websocket.Conn
			for conn, client := range s.clients {
				select {
				case client.send <- message:
				default:
					failed = append(failed, conn)
				}
			}
			for _, conn := range failed {
				close(s.clients[conn].send)
				delete(s.clients, conn)
				_ = conn.Close(websocket.StatusPolicyViolation, "too slow")
			}
			clientCount := len(s.clients)
			s.clientsMutex.Unlock()
			if len(failed) > 0 {
				s.recorder.SetSessions(clientCount)
			}
		}
	}
}

func (s *DevServer) broadcastMessage(ctx context.Context, msg UpdateMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to encode reload message")
		return
	}

	select {
	case s.broadcast <- data:
		s.recorder.IncNotification(msg.Type)
		s.logger.Debug(ctx, "Broadcast sent", "type", msg.Type, "paths", len(msg.Paths))
	case <-s.hubDone:
	case <-ctx.Done():
	}
}

// readPump discards client frames until the connection closes, then
// unregisters the session.
func (c *Client) readPump() {
	ctx := c.conn.CloseRead(context.Background())
	<-ctx.Done()

	select {
	case c.server.unregister <- c.conn:
	case <-c.server.hubDone:
	}
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}

// writePump pumps messages to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := context.Background()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
