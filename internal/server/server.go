package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/collab"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/connection"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/database"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/event"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Error bodies returned by the document API.
const (
	msgNotFound     = "No document found with that ID"
	msgAccessFailed = "Could not access document"
	msgCreateFailed = "Could not create document"
)

type Options struct {
	MaxConnections int
	SendBuffer     int
	MaxFrameSize   int64
	WriteWait      time.Duration
	PongWait       time.Duration
	// PingPeriod must be shorter than PongWait.
	PingPeriod time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxConnections: 10000,
		SendBuffer:     64,
		MaxFrameSize:   1 << 20,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
	}
}

// Server exposes the realtime endpoint and the document REST API. Inbound
// frames are handed to the hub through the loop; the hub is never called
// from a connection goroutine directly.
type Server struct {
	docs     database.DocumentStore
	hub      *collab.Hub
	loop     *event.Loop
	conns    *connection.ConnectionManager
	metrics  *collab.Metrics
	requests *httpMetrics
	gatherer prometheus.Gatherer
	opts     Options
	sem      chan struct{}
	upgrader websocket.Upgrader

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer wires the transport. reg may be nil, in which case /metrics is
// not served.
func NewServer(docs database.DocumentStore, hub *collab.Hub, loop *event.Loop, conns *connection.ConnectionManager,
	metrics *collab.Metrics, reg *prometheus.Registry, opts Options) *Server {
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = DefaultOptions().MaxConnections
	}
	s := &Server{
		docs:    docs,
		hub:     hub,
		loop:    loop,
		conns:   conns,
		metrics: metrics,
		opts:    opts,
		sem:     make(chan struct{}, opts.MaxConnections),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	if reg != nil {
		s.gatherer = reg
		s.requests = newHTTPMetrics(reg)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/documents", func(r chi.Router) {
		r.Post("/", s.handleCreateDocument)
		r.Get("/{id}", s.handleGetDocument)
	})
	r.Get("/ws", s.handleWebsocket)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// StartServer blocks serving on port until Invoke shuts the server down.
func (s *Server) StartServer(port int) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	logger.InfoF("Coedit Server Listen On %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
	return nil
}

// Invoke stops accepting requests; it satisfies event.Callable.
func (s *Server) Invoke(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	logger.Info("Shutting down http server")
	return srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": s.conns.Count(),
	})
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.docs.CreateDocument(r.Context())
	if err != nil {
		logger.ErrorF("[%s] Fail to create document, details: %v", middleware.GetReqID(r.Context()), err)
		writeError(w, http.StatusInternalServerError, msgCreateFailed)
		return
	}
	logger.InfoF("Document %s created", doc.PublicID)
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.docs.GetDocument(r.Context(), id)
	switch {
	case errors.Is(err, database.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, msgNotFound)
	case err != nil:
		logger.ErrorF("[%s] Fail to load document %s, details: %v", middleware.GetReqID(r.Context()), id, err)
		writeError(w, http.StatusInternalServerError, msgAccessFailed)
	default:
		writeJSON(w, http.StatusOK, doc)
	}
}
