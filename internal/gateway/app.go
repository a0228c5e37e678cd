package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"

	"github.com/relaylabs/chatrelay/internal/auth"
	"github.com/relaylabs/chatrelay/internal/config"
	"github.com/relaylabs/chatrelay/internal/server"
	"github.com/relaylabs/chatrelay/internal/storage"
)

const tokenCookieKey = "token"

// App is the HTTP surface: the websocket endpoint plus health and debug
// routes.
type App struct {
	log            *log.Logger
	mgr            *server.Manager
	table          *ClientTable
	verifier       auth.Verifier
	repo           storage.MessageRepository
	srv            *http.Server
	allowedOrigins []string
}

func NewApp(mux *http.ServeMux, logger *log.Logger, mgr *server.Manager, table *ClientTable, verifier auth.Verifier, repo storage.MessageRepository, cfg *config.Config) *App {
	a := &App{
		log:            logger,
		mgr:            mgr,
		table:          table,
		verifier:       verifier,
		repo:           repo,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /ws", a.serveWs)
	mux.HandleFunc("GET /messages", a.getMessages)
	mux.HandleFunc("GET /healthz", a.healthz)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	a.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return a
}

func (a *App) Start() error {
	a.log.Printf("starting server on %s\n", a.srv.Addr)
	return a.srv.ListenAndServe()
}

func (a *App) Shutdown(ctx context.Context) error {
	if err := a.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

// Handler exposes the wrapped handler for tests.
func (a *App) Handler() http.Handler {
	return a.srv.Handler
}

func (a *App) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// credential pulls the auth token from the cookie or, failing that, the
// query string (browser websocket clients cannot set headers).
func credential(r *http.Request) string {
	if cookie, err := r.Cookie(tokenCookieKey); err == nil {
		return cookie.Value
	}

	return r.URL.Query().Get(tokenCookieKey)
}

func (a *App) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(a.allowedOrigins, origin)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Println("error upgrading connection:", err)
		return
	}

	record, err := a.mgr.Connect(r.Context(), credential(r))
	if err != nil {
		if !errors.Is(err, server.ErrAuthenticationFailed) {
			a.log.Println("connect:", err)
		}

		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return
	}

	client := NewClient(record.Id, conn, a.mgr, a.table, a.log)
	a.table.Add(client)

	go client.Write()
	go client.Read()

	client.queueEvent(server.NoErrOK(0, map[string]any{"connection_id": record.Id}))
}
