package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	closeMissingToken = 4002
	closeInvalidToken = 4003
)

// TokenVerifier resolves a bearer token to the user id it was issued for.
type TokenVerifier interface {
	VerifySubject(token string) (string, error)
}

// VerifierFunc adapts a function to TokenVerifier.
type VerifierFunc func(token string) (string, error)

func (f VerifierFunc) VerifySubject(token string) (string, error) { return f(token) }

// Server accepts websocket connections on its own listener.
type Server struct {
	hub      *Hub
	verifier TokenVerifier
	logger   *zap.Logger
	upgrader websocket.Upgrader
	http     *http.Server
}

// NewServer builds the websocket endpoint at /ws.
func NewServer(addr string, hub *Hub, verifier TokenVerifier, logger *zap.Logger) *Server {
	s := &Server{
		hub:      hub,
		verifier: verifier,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the mux, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks until the listener stops. A graceful shutdown is not an error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("realtime listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	token := bearerToken(r)
	if token == "" {
		closeWith(ws, closeMissingToken, "Missing token")
		return
	}
	userID, err := s.verifier.VerifySubject(token)
	if err != nil || userID == "" {
		closeWith(ws, closeInvalidToken, "Invalid token")
		return
	}

	client := s.hub.Register(userID)
	go s.writePump(ws, client)
	s.readPump(ws, client)
}

func (s *Server) readPump(ws *websocket.Conn, c *Client) {
	defer func() {
		s.hub.Unregister(c)
		_ = ws.Close()
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		s.hub.HandleMessage(c, msg)
	}
}

func (s *Server) writePump(ws *websocket.Conn, c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

func closeWith(ws *websocket.Conn, code int, reason string) {
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	_ = ws.Close()
}
