// Package web serves a playground session over HTTP: a JSON API for canvas
// operations, server-sent events and a websocket for live updates, and the
// prometheus metrics of the process.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/ritzau/kube-playground/pkg/logging"
	"github.com/ritzau/kube-playground/pkg/metrics"
	"github.com/ritzau/kube-playground/pkg/model"
	"github.com/ritzau/kube-playground/pkg/playground"
	"github.com/ritzau/kube-playground/pkg/pubsub"
	"github.com/ritzau/kube-playground/pkg/store"
)

const shutdownTimeout = 5 * time.Second

// maxBodyBytes bounds request bodies, manifests included.
const maxBodyBytes = 4 << 20

// Server represents the web server
type Server struct {
	router    *mux.Router
	session   *playground.Session
	publisher pubsub.Publisher
	metrics   *metrics.Metrics
	validate  *validator.Validate
}

// NewServer creates a server for session. Events the session publishes on
// publisher are streamed to subscribers; metrics may be nil.
func NewServer(session *playground.Session, publisher pubsub.Publisher, m *metrics.Metrics) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		session:   session,
		publisher: publisher,
		metrics:   m,
		validate:  validator.New(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the root handler, request logging included.
func (s *Server) Handler() http.Handler {
	return logging.RequestIDMiddleware(s.router)
}

func (s *Server) setupRoutes() {
	// Streams
	s.router.HandleFunc("/api/subscribe/{topic}", s.handleSubscribe).Methods("GET")
	s.router.HandleFunc("/api/ws", s.handleWebsocket).Methods("GET")

	// Canvas
	s.router.HandleFunc("/api/graph", s.handleGraph).Methods("GET")
	s.router.HandleFunc("/api/graph/focus", s.handleFocus).Methods("GET")
	s.router.HandleFunc("/api/canvas", s.handleClear).Methods("DELETE")
	s.router.HandleFunc("/api/nodes", s.handleAddNode).Methods("POST")
	s.router.HandleFunc("/api/nodes/{id}", s.handleUpdateNode).Methods("PATCH")
	s.router.HandleFunc("/api/nodes/{id}", s.handleRemoveNode).Methods("DELETE")
	s.router.HandleFunc("/api/nodes/{id}/position", s.handleMoveNode).Methods("PUT")
	s.router.HandleFunc("/api/edges", s.handleAddEdge).Methods("POST")
	s.router.HandleFunc("/api/edges/{id}", s.handleRemoveEdge).Methods("DELETE")

	// Manifests and advice
	s.router.HandleFunc("/api/yaml", s.handleGetYAML).Methods("GET")
	s.router.HandleFunc("/api/yaml", s.handleApplyYAML).Methods("POST", "PUT")
	s.router.HandleFunc("/api/advice", s.handleAdvice).Methods("GET")
	s.router.HandleFunc("/api/types", s.handleTypes).Methods("GET")
	s.router.HandleFunc("/api/connections", s.handleConnection).Methods("GET")

	// Snapshots
	s.router.HandleFunc("/api/snapshots", s.handleListSnapshots).Methods("GET")
	s.router.HandleFunc("/api/snapshots/{key}", s.handleSaveSnapshot).Methods("POST", "PUT")
	s.router.HandleFunc("/api/snapshots/{key}", s.handleLoadSnapshot).Methods("GET")

	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "session": s.session.ID()})
	}).Methods("GET")
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Starting web server", "url", "http://"+displayAddr(addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logging.Info("Shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Streams end when ctx, their base context, is cancelled.
	return srv.Shutdown(shutdownCtx)
}

func displayAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || host != "" {
		return addr
	}
	return net.JoinHostPort("localhost", port)
}

// status maps a failed operation to an HTTP status code.
func status(err error) int {
	var applyErr *playground.ApplyError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, model.ErrNodeNotFound),
		errors.Is(err, model.ErrEdgeNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrDuplicateEdge),
		errors.Is(err, model.ErrDuplicateNode):
		return http.StatusConflict
	case errors.Is(err, playground.ErrNoStore):
		return http.StatusServiceUnavailable
	case errors.Is(err, playground.ErrInternal):
		return http.StatusInternalServerError
	case errors.As(err, &applyErr),
		errors.Is(err, playground.ErrIllegalConnection),
		errors.Is(err, playground.ErrUnknownType),
		errors.Is(err, store.ErrInvalidKey):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("failed to write response", "error", err)
	}
}

func writeOutcome(w http.ResponseWriter, out playground.Outcome, created bool) {
	code := status(out.Err)
	if out.OK && created {
		code = http.StatusCreated
	}
	writeJSON(w, code, out)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, playground.Outcome{OK: false, Message: err.Error()})
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}
