package web

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/blacktop/sdpaint/internal/cloudflare"
	"github.com/blacktop/sdpaint/internal/paint"
)

// Message is exchanged over the websocket in both directions.
type Message struct {
	Type      string     `json:"type"`
	Value     string     `json:"value,omitempty"`
	AccountID string     `json:"accountId,omitempty"`
	APIToken  string     `json:"apiToken,omitempty"`
	State     *StateView `json:"state,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// StateView is the JSON form of paint.State sent to the page.
type StateView struct {
	Model         string   `json:"model"`
	Models        []string `json:"models"`
	Prompt        string   `json:"prompt"`
	GuidanceScale int      `json:"guidanceScale"`
	Steps         int      `json:"steps"`
	ShowWarning   bool     `json:"showWarning"`
	Loading       bool     `json:"loading"`
	ImageURL      string   `json:"imageUrl"`
	Placeholder   bool     `json:"placeholder"`
	Failure       string   `json:"failure,omitempty"`
	Error         string   `json:"error,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

type session struct {
	id     string
	ctrl   *paint.Controller
	ctx    context.Context
	cancel context.CancelFunc
	logger *log.Logger

	mu           sync.Mutex
	clients      map[*client]struct{}
	createdAt    time.Time
	lastActivity time.Time
	imageVersion int
	wasLoading   bool
	connected    bool // a websocket client has joined at least once
	unsubscribe  func()
}

func newSession(id string, ctrl *paint.Controller, logger *log.Logger) *session {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	s := &session{
		id:           id,
		ctrl:         ctrl,
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger.With("session", id[:8]),
		clients:      make(map[*client]struct{}),
		createdAt:    now,
		lastActivity: now,
	}
	s.unsubscribe = ctrl.Subscribe(s.onChange)
	return s
}

// onChange pushes every controller change to the connected clients.
func (s *session) onChange(st paint.State) {
	s.mu.Lock()
	if s.wasLoading && !st.Loading {
		s.imageVersion++
	}
	s.wasLoading = st.Loading
	s.mu.Unlock()
	s.broadcast(Message{Type: "state", State: s.view(st)})
}

func (s *session) view(st paint.State) *StateView {
	s.mu.Lock()
	version := s.imageVersion
	s.mu.Unlock()

	v := &StateView{
		Model:         st.Config.Model,
		Models:        cloudflare.Labels(),
		Prompt:        st.Config.Prompt,
		GuidanceScale: st.Config.GuidanceScale,
		Steps:         st.Config.Steps,
		ShowWarning:   st.Warning,
		Loading:       st.Loading,
		ImageURL:      imageURL(s.id, version),
		Placeholder:   st.Image.Placeholder,
	}
	if st.LastError != nil {
		v.Error = st.LastError.Error()
		v.Failure = paint.Result{Err: st.LastError}.Failure().String()
	}
	return v
}

func (s *session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *session) addClient(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.connected = true
	s.lastActivity = time.Now()
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.Debug("Client joined", "clients", n)
}

func (s *session) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		close(c.send)
		delete(s.clients, c)
		s.lastActivity = time.Now()
		s.logger.Debug("Client left", "clients", len(s.clients))
	}
}

func (s *session) broadcast(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("Error marshaling message", "err", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- b:
		default:
			// slow client, drop it
			close(c.send)
			delete(s.clients, c)
		}
	}
}

func (s *session) sendTo(c *client, msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("Error marshaling message", "err", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; !ok {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

// handle applies one client action to the controller.
func (s *session) handle(c *client, msg Message) {
	s.touch()
	switch msg.Type {
	case "set_model":
		if err := s.ctrl.SetModel(msg.Value); err != nil {
			s.sendTo(c, Message{Type: "error", Error: err.Error()})
		}
	case "set_prompt":
		s.ctrl.SetPrompt(msg.Value)
	case "set_guidance":
		if !s.ctrl.SetGuidanceScale(msg.Value) {
			// echo the retained value so the input reverts
			s.sendTo(c, Message{Type: "state", State: s.view(s.ctrl.Snapshot())})
		}
	case "set_steps":
		if !s.ctrl.SetSteps(msg.Value) {
			s.sendTo(c, Message{Type: "state", State: s.view(s.ctrl.Snapshot())})
		}
	case "set_keys":
		s.ctrl.SetCredentials(msg.AccountID, msg.APIToken)
	case "generate":
		ch, err := s.ctrl.Start(s.ctx)
		if err != nil {
			s.sendTo(c, Message{Type: "error", Error: err.Error()})
			return
		}
		go func() {
			res := <-ch
			s.logger.Debug("Generation finished", "ok", res.OK(), "elapsed", res.Elapsed)
		}()
	case "get_state":
		s.sendTo(c, Message{Type: "state", State: s.view(s.ctrl.Snapshot())})
	default:
		s.sendTo(c, Message{Type: "error", Error: "unknown message type: " + msg.Type})
	}
}

func (s *session) close() {
	s.cancel()
	s.unsubscribe()
	s.mu.Lock()
	for c := range s.clients {
		close(c.send)
		delete(s.clients, c)
	}
	s.mu.Unlock()
}

// pendingTTL bounds sessions whose page never opened a websocket.
const pendingTTL = 5 * time.Minute

// sessionManager owns one controller per browser session.
type sessionManager struct {
	mu         sync.RWMutex
	sessions   map[string]*session
	factory    func() (*paint.Controller, error)
	ttl        time.Duration
	pendingTTL time.Duration
	logger     *log.Logger
}

var errNoSession = errors.New("session not found")

func newSessionManager(factory func() (*paint.Controller, error), ttl time.Duration, logger *log.Logger) *sessionManager {
	return &sessionManager{
		sessions:   make(map[string]*session),
		factory:    factory,
		ttl:        ttl,
		pendingTTL: min(ttl, pendingTTL),
		logger:     logger,
	}
}

func (sm *sessionManager) get(id string) (*session, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sessions[id]
	if !ok {
		return nil, errNoSession
	}
	return s, nil
}

// getOrCreate returns the session for id, creating a new one with a fresh
// id when id is empty or unknown.
func (sm *sessionManager) getOrCreate(id string) (*session, error) {
	if id != "" {
		if s, err := sm.get(id); err == nil {
			s.touch()
			return s, nil
		}
	}
	ctrl, err := sm.factory()
	if err != nil {
		return nil, err
	}
	s := newSession(uuid.NewString(), ctrl, sm.logger)

	sm.mu.Lock()
	sm.sessions[s.id] = s
	n := len(sm.sessions)
	sm.mu.Unlock()

	sm.logger.Info("Created new session", "session", s.id[:8], "active", n)
	return s, nil
}

func (sm *sessionManager) count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// sweep drops sessions without clients that have been idle longer than the
// TTL. Sessions that never had a client use the shorter pending TTL.
func (sm *sessionManager) sweep(now time.Time) int {
	sm.mu.Lock()
	var expired []*session
	for id, s := range sm.sessions {
		s.mu.Lock()
		ttl := sm.ttl
		if !s.connected {
			ttl = sm.pendingTTL
		}
		idle := len(s.clients) == 0 && now.Sub(s.lastActivity) > ttl
		s.mu.Unlock()
		if idle {
			delete(sm.sessions, id)
			expired = append(expired, s)
		}
	}
	sm.mu.Unlock()

	for _, s := range expired {
		s.close()
		sm.logger.Debug("Cleaned up inactive session", "session", s.id[:8])
	}
	if len(expired) > 0 {
		sm.logger.Info("Cleaned up inactive sessions", "count", len(expired), "active", sm.count())
	}
	return len(expired)
}

func (sm *sessionManager) closeAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for id, s := range sm.sessions {
		s.close()
		delete(sm.sessions, id)
	}
}
