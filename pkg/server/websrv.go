package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crystal-mush/gridscript/pkg/compiler"
	"github.com/crystal-mush/gridscript/pkg/events"
	"github.com/gorilla/websocket"
)

// WebServer provides the HTTP and WebSocket transports for a Service.
type WebServer struct {
	svc       *Service
	cfg       *Config
	auth      *AuthService
	httpSrv   *http.Server
	mux       *http.ServeMux
	handler   http.Handler
	rl        *rateLimiter
	upgrader  websocket.Upgrader
	startTime time.Time
}

// NewWebServer creates a web server bound to the service.
func NewWebServer(svc *Service, auth *AuthService, cfg *Config) *WebServer {
	ws := &WebServer{
		svc:       svc,
		cfg:       cfg,
		auth:      auth,
		mux:       http.NewServeMux(),
		rl:        newRateLimiter(cfg.RateLimit),
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(cfg.CORSOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, o := range cfg.CORSOrigins {
					if strings.EqualFold(o, origin) {
						return true
					}
				}
				return false
			},
		},
	}
	ws.registerRoutes()
	return ws
}

// Auth returns the auth service.
func (ws *WebServer) Auth() *AuthService { return ws.auth }

// Handler returns the root handler with all middleware applied.
func (ws *WebServer) Handler() http.Handler { return ws.handler }

func (ws *WebServer) registerRoutes() {
	// CORS -> rate limit -> mux
	handler := http.Handler(ws.mux)
	handler = rateLimitMiddleware(ws.rl, handler)
	handler = corsMiddleware(ws.cfg.CORSOrigins, handler)
	ws.handler = handler

	ws.httpSrv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", ws.cfg.Host, ws.cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ws.mux.HandleFunc("GET /ws", ws.handleWebSocket)

	ws.mux.HandleFunc("POST /api/v1/auth/login", ws.handleAuthLogin)
	ws.mux.HandleFunc("POST /api/v1/auth/refresh", ws.handleAuthRefresh)

	ws.RegisterRESTRoutes()

	ws.mux.HandleFunc("GET /health", ws.handleHealth)
	ws.mux.Handle("GET /metrics", ws.svc.Metrics().Handler())
}

// Start begins listening and blocks until the server stops. HTTPS is used
// when the config asks for it and a certificate can be set up; otherwise
// plain HTTP.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ws.rl.cleanup()
				ws.svc.Bus().Cleanup()
			}
		}
	}()

	if ws.cfg.wantsTLS() {
		result, err := SetupTLS(ws.cfg)
		if err != nil {
			log.Printf("web: TLS setup failed (%v), falling back to HTTP", err)
		} else {
			ws.httpSrv.TLSConfig = result.Config
			if result.AutocertMgr != nil {
				go func() {
					acme := &http.Server{
						Addr:              ":80",
						Handler:           result.AutocertMgr.HTTPHandler(nil),
						ReadHeaderTimeout: 10 * time.Second,
					}
					log.Printf("web: ACME HTTP challenge listener on :80")
					if err := acme.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						log.Printf("web: ACME HTTP listener error: %v", err)
					}
				}()
			}
			log.Printf("web: listening on %s (HTTPS)", ws.httpSrv.Addr)
			err = ws.httpSrv.ListenAndServeTLS("", "")
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		}
	}

	log.Printf("web: listening on %s (HTTP)", ws.httpSrv.Addr)
	err := ws.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the web server.
func (ws *WebServer) Stop(ctx context.Context) error {
	return ws.httpSrv.Shutdown(ctx)
}

// --- WebSocket ---

// WSMessage is the JSON message format for WebSocket communication.
//
// Client to server: "login" (Name, Password), "resolve" (Source, Vars,
// Script), "eval" (Source, Env), "ping".
// Server to client: "welcome", "login", "result", "error", "pong", and the
// bus event types ("compiled", "diagnostic", "script_saved", ...).
type WSMessage struct {
	Type     string         `json:"type"`
	ID       string         `json:"id,omitempty"`
	Text     string         `json:"text,omitempty"`
	Source   string         `json:"source,omitempty"`
	Script   string         `json:"script,omitempty"`
	Vars     []string       `json:"vars,omitempty"`
	Env      map[string]any `json:"env,omitempty"`
	Name     string         `json:"name,omitempty"`
	Password string         `json:"password,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// wsSession is one WebSocket client. It subscribes to its author's events
// once authenticated.
type wsSession struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed atomic.Bool
	addr   string
	claims *Claims
}

func (s *wsSession) sendJSON(msg WSMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := s.conn.WriteJSON(msg); err != nil {
		log.Printf("[ws:%s] write error: %v", s.addr, err)
	}
}

// Receive implements events.Subscriber.
func (s *wsSession) Receive(ev events.Event) {
	s.sendJSON(WSMessage{
		Type:   ev.Type.String(),
		Text:   ev.Text,
		Source: ev.Source,
		Script: ev.Script,
		Data:   ev.Data,
	})
}

// Closed implements events.Subscriber.
func (s *wsSession) Closed() bool { return s.closed.Load() }

func (ws *WebServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var claims *Claims
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = bearerToken(r)
	}
	if token != "" {
		var err error
		claims, err = ws.auth.ValidateToken(token)
		if err != nil {
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}
	}

	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}

	sess := &wsSession{conn: conn, addr: clientIP(r)}
	ws.svc.Metrics().wsClients.Inc()

	if claims != nil {
		ws.attach(sess, claims)
	} else {
		sess.sendJSON(WSMessage{Type: "welcome", Text: `Connected. Send {"type":"login","name":...,"password":...} to authenticate.`,
			Data: map[string]any{"version": Version, "grammar": ws.svc.Compiler().Fingerprint()}})
	}

	go ws.wsReadLoop(sess)
}

// attach marks the session as logged in and subscribes it to the author's events.
func (ws *WebServer) attach(sess *wsSession, claims *Claims) {
	sess.claims = claims
	ws.svc.Bus().Subscribe(claims.Author, sess)
	sess.sendJSON(WSMessage{
		Type: "login",
		Data: map[string]any{
			"author":  claims.Author,
			"admin":   claims.Admin,
			"version": Version,
			"grammar": ws.svc.Compiler().Fingerprint(),
		},
	})
}

func (ws *WebServer) wsReadLoop(sess *wsSession) {
	defer func() {
		sess.closed.Store(true)
		if sess.claims != nil {
			ws.svc.Bus().Unsubscribe(sess.claims.Author, sess)
		}
		ws.svc.Metrics().wsClients.Dec()
		sess.conn.Close()
		log.Printf("[ws:%s] WebSocket closed", sess.addr)
	}()

	for {
		_, msgBytes, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws:%s] read error: %v", sess.addr, err)
			}
			return
		}

		var msg WSMessage
		dec := json.NewDecoder(strings.NewReader(string(msgBytes)))
		dec.UseNumber()
		if err := dec.Decode(&msg); err != nil {
			sess.sendJSON(WSMessage{Type: "error", Text: "Invalid JSON message"})
			continue
		}

		switch msg.Type {
		case "ping":
			sess.sendJSON(WSMessage{Type: "pong", ID: msg.ID})
		case "login":
			ws.wsLogin(sess, msg)
		case "resolve", "eval":
			if sess.claims == nil {
				sess.sendJSON(WSMessage{Type: "error", ID: msg.ID, Text: "login required"})
				continue
			}
			ws.wsResolve(sess, msg)
		default:
			sess.sendJSON(WSMessage{Type: "error", ID: msg.ID, Text: fmt.Sprintf("Unknown message type: %s", msg.Type)})
		}
	}
}

func (ws *WebServer) wsLogin(sess *wsSession, msg WSMessage) {
	if sess.claims != nil {
		sess.sendJSON(WSMessage{Type: "error", ID: msg.ID, Text: "already logged in"})
		return
	}
	token, err := ws.auth.Login(msg.Name, msg.Password)
	if err != nil {
		sess.sendJSON(WSMessage{Type: "error", ID: msg.ID, Text: "Invalid credentials"})
		return
	}
	claims, err := ws.auth.ValidateToken(token)
	if err != nil {
		sess.sendJSON(WSMessage{Type: "error", ID: msg.ID, Text: "Invalid credentials"})
		return
	}
	ws.attach(sess, claims)
}

func (ws *WebServer) wsResolve(sess *wsSession, msg WSMessage) {
	var (
		res    *compiler.Result
		cached bool
		err    error
	)
	if msg.Type == "eval" {
		env, envErr := envFromJSON(msg.Env)
		if envErr != nil {
			sess.sendJSON(WSMessage{Type: "error", ID: msg.ID, Text: envErr.Error()})
			return
		}
		res, err = ws.svc.Eval(sess.claims.Author, msg.Source, env)
	} else {
		res, cached, err = ws.svc.Compile(sess.claims.Author, msg.Script, msg.Source, msg.Vars)
	}
	if err != nil {
		reply := WSMessage{Type: "error", ID: msg.ID, Source: msg.Source, Text: err.Error()}
		var d *compiler.Diagnostic
		if errors.As(err, &d) {
			reply.Data = map[string]any{"line": d.Line, "column": d.Column, "code": string(d.Code), "message": d.Message}
		}
		sess.sendJSON(reply)
		return
	}
	sess.sendJSON(WSMessage{Type: "result", ID: msg.ID, Source: res.Source, Script: msg.Script, Data: resultData(res, cached)})
}

// --- Auth HTTP Handlers ---

func (ws *WebServer) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	token, err := ws.auth.Login(req.Name, req.Password)
	if err != nil {
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func (ws *WebServer) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
		return
	}
	newToken, err := ws.auth.RefreshToken(token)
	if err != nil {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": newToken})
}

// --- Health Handler ---

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	g := ws.svc.Compiler().Grammar()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":          "ok",
		"version":         Version,
		"uptime_seconds":  time.Since(ws.startTime).Seconds(),
		"grammar":         g.Name,
		"grammar_version": g.Version,
		"fingerprint":     ws.svc.Compiler().Fingerprint(),
		"storage":         ws.svc.Store() != nil,
		"diagnostics_log": ws.svc.DiagLog() != nil,
	})
}
