package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/ritzau/kube-playground/pkg/logging"
	"github.com/ritzau/kube-playground/pkg/model"
	"github.com/ritzau/kube-playground/pkg/playground"
	"github.com/ritzau/kube-playground/pkg/pubsub"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]

	// Subscribe before taking the initial graph so no diff is lost between
	// the two.
	sub, err := s.publisher.Subscribe(r.Context(), topic)
	switch {
	case errors.Is(err, pubsub.ErrUnknownTopic):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// Initial comment establishes the connection (Safari compatibility)
	pubsub.WriteComment(w, "connected")
	flush(w)

	if topic == pubsub.TopicGraph {
		ev, err := pubsub.Snapshot(s.session.Graph())
		if err != nil {
			logging.ErrorContext(r.Context(), "failed to encode graph", "error", err)
			return
		}
		if err := pubsub.WriteSSE(w, ev); err != nil {
			return
		}
		flush(w)
	}

	for event := range sub.Events() {
		if err := pubsub.WriteSSE(w, event); err != nil {
			logging.DebugContext(r.Context(), "error writing SSE event", "error", err)
			return
		}
		flush(w)
	}
}

func flush(w http.ResponseWriter) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Request is a canvas operation sent over the websocket.
type Request struct {
	// ID is echoed in the reply.
	ID      string          `json:"id,omitempty"`
	Op      string          `json:"op" validate:"required"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reply answers a Request.
type Reply struct {
	ID      string             `json:"id,omitempty"`
	Op      string             `json:"op"`
	Outcome playground.Outcome `json:"outcome"`
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// handleWebsocket streams both topics and accepts canvas operations. The
// first message is the full graph.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer raw.Close()
	conn := &wsConn{conn: raw}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var subs []pubsub.Subscription
	for _, topic := range []string{pubsub.TopicGraph, pubsub.TopicNotifications} {
		sub, err := s.publisher.Subscribe(ctx, topic)
		if err != nil {
			logging.ErrorContext(ctx, "websocket subscribe failed", "topic", topic, "error", err)
			return
		}
		defer sub.Close()
		subs = append(subs, sub)
	}

	ev, err := pubsub.Snapshot(s.session.Graph())
	if err != nil || conn.writeJSON(ev) != nil {
		return
	}

	go s.pump(ctx, cancel, conn, subs[0], subs[1])

	raw.SetReadLimit(maxBodyBytes)
	raw.SetReadDeadline(time.Now().Add(wsPongWait))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		var req Request
		if err := raw.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.WarnContext(ctx, "websocket read failed", "error", err)
			}
			return
		}
		reply := Reply{ID: req.ID, Op: req.Op, Outcome: s.dispatch(ctx, req)}
		if err := conn.writeJSON(reply); err != nil {
			return
		}
	}
}

// pump forwards published events and keeps the connection alive.
func (s *Server) pump(ctx context.Context, cancel context.CancelFunc, conn *wsConn, graph, notes pubsub.Subscription) {
	defer cancel()
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		var (
			ev pubsub.Event
			ok bool
		)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
			continue
		case ev, ok = <-graph.Events():
		case ev, ok = <-notes.Events():
		}
		if !ok {
			return
		}
		if err := conn.writeJSON(ev); err != nil {
			logging.DebugContext(ctx, "websocket write failed", "error", err)
			return
		}
	}
}

// dispatch runs one websocket request against the session.
func (s *Server) dispatch(ctx context.Context, req Request) playground.Outcome {
	if err := s.validate.Struct(req); err != nil {
		return playground.Outcome{Message: err.Error()}
	}
	bad := func(err error) playground.Outcome {
		return playground.Outcome{Message: fmt.Sprintf("invalid %s payload: %v", req.Op, err)}
	}
	decode := func(v any) error {
		if err := json.Unmarshal(req.Payload, v); err != nil {
			return err
		}
		return s.validate.Struct(v)
	}
	type target struct {
		ID string `json:"id" validate:"required"`
	}

	switch req.Op {
	case "add-node":
		var spec playground.NodeSpec
		if err := decode(&spec); err != nil {
			return bad(err)
		}
		return s.session.AddNode(ctx, spec)
	case "remove-node":
		var t target
		if err := decode(&t); err != nil {
			return bad(err)
		}
		return s.session.RemoveNode(ctx, t.ID)
	case "move-node":
		var p struct {
			ID       string         `json:"id" validate:"required"`
			Position model.Position `json:"position"`
		}
		if err := decode(&p); err != nil {
			return bad(err)
		}
		return s.session.MoveNode(ctx, p.ID, p.Position)
	case "update-node-config":
		var p struct {
			ID    string          `json:"id" validate:"required"`
			Patch json.RawMessage `json:"patch" validate:"required"`
		}
		if err := decode(&p); err != nil {
			return bad(err)
		}
		return s.session.UpdateNodeConfig(ctx, p.ID, p.Patch)
	case "add-edge":
		var spec playground.EdgeSpec
		if err := decode(&spec); err != nil {
			return bad(err)
		}
		return s.session.AddEdge(ctx, spec)
	case "remove-edge":
		var t target
		if err := decode(&t); err != nil {
			return bad(err)
		}
		return s.session.RemoveEdge(ctx, t.ID)
	case "apply":
		var p yamlRequest
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return bad(err)
		}
		return s.session.UpdateFromYAML(ctx, p.YAML)
	case "clear":
		return s.session.ClearCanvas(ctx)
	default:
		return playground.Outcome{Message: fmt.Sprintf("unknown operation %q", req.Op)}
	}
}
