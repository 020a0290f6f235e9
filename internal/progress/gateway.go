// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package progress

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-retriever/internal/logging"
)

// DefaultWriteTimeout bounds a single frame write.
const DefaultWriteTimeout = 10 * time.Second

// Gateway serves GET /ws?sessionId=... and streams that session's events as
// JSON text frames.
type Gateway struct {
	hub          *Hub
	log          *zap.Logger
	writeTimeout time.Duration

	// OriginPatterns authorizes cross-origin browser clients.
	OriginPatterns []string
}

// NewGateway returns a Gateway reading from hub.
func NewGateway(hub *Hub, log *zap.Logger) *Gateway {
	return &Gateway{hub: hub, log: logging.OrNop(log), writeTimeout: DefaultWriteTimeout}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: g.OriginPatterns})
	if err != nil {
		g.log.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	sub := g.hub.Subscribe(sessionID)
	defer g.hub.Unsubscribe(sub)
	g.log.Debug("progress subscriber connected", zap.String("session", sessionID))

	// Clients never send; CloseRead handles control frames and cancels ctx
	// when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			g.log.Debug("progress subscriber left", zap.String("session", sessionID))
			return
		case e, ok := <-sub.Events():
			if !ok {
				conn.Close(websocket.StatusPolicyViolation, "subscriber fell behind")
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				g.log.Error("encoding progress event", zap.Error(err))
				continue
			}
			if err := g.write(ctx, conn, data); err != nil {
				g.log.Debug("progress write failed", zap.String("session", sessionID), zap.Error(err))
				return
			}
		}
	}
}

func (g *Gateway) write(ctx context.Context, conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, g.writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
