// Package web serves the single-page painting UI. Every browser session
// gets its own paint.Controller; state changes are pushed over a websocket.
package web

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/blacktop/sdpaint/internal/paint"
)

const (
	cookieName = "sdpaint_session"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

//go:embed index.html
var indexHTML string

var indexTmpl = template.Must(template.New("index").Parse(indexHTML))

// Config configures a Server.
type Config struct {
	// NewController builds the controller for a new session.
	NewController func() (*paint.Controller, error)
	// SessionTTL is how long an idle session without clients is kept.
	SessionTTL time.Duration
	Logger     *log.Logger
}

// Server is the HTTP front-end.
type Server struct {
	router   *mux.Router
	sessions *sessionManager
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewServer creates a new web UI server
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 2 * time.Hour
	}
	s := &Server{
		sessions: newSessionManager(cfg.NewController, cfg.SessionTTL, cfg.Logger),
		logger:   cfg.Logger,
	}
	s.router = mux.NewRouter()
	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/image/{session}", s.handleImage).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWebSocket)
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.sessions.sweep(now)
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down")
	s.sessions.closeAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// session looks up the caller's session from the cookie, creating one if needed.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session, error) {
	var id string
	if c, err := r.Cookie(cookieName); err == nil {
		id = c.Value
	}
	sess, err := s.sessions.getOrCreate(id)
	if err != nil {
		return nil, err
	}
	if sess.id != id {
		http.SetCookie(w, &http.Cookie{
			Name:     cookieName,
			Value:    sess.id,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		s.logger.Error("Failed to create session", "err", err)
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, sess.view(sess.ctrl.Snapshot())); err != nil {
		s.logger.Error("Failed to render page", "err", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.sessions.count(),
	})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.get(mux.Vars(r)["session"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	img := sess.ctrl.Snapshot().Image
	w.Header().Set("Content-Type", img.MIMEType())
	w.Header().Set("Cache-Control", "no-store")
	w.Write(img.Data)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var id string
	if c, err := r.Cookie(cookieName); err == nil {
		id = c.Value
	}
	sess, err := s.sessions.get(id)
	if err != nil {
		http.Error(w, "unknown session, reload the page", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", "err", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 64)}
	sess.addClient(c)
	sess.sendTo(c, Message{Type: "state", State: sess.view(sess.ctrl.Snapshot())})

	go s.writePump(c)
	s.readPump(sess, c)
}

func (s *Server) readPump(sess *session, c *client) {
	defer func() {
		sess.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket error", "err", err)
			}
			return
		}
		sess.handle(c, msg)
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Debug("WebSocket write error", "err", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func imageURL(sessionID string, version int) string {
	return fmt.Sprintf("/image/%s?v=%d", sessionID, version)
}
