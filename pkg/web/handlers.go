package web

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ritzau/kube-playground/pkg/advisor"
	"github.com/ritzau/kube-playground/pkg/connect"
	"github.com/ritzau/kube-playground/pkg/kinds"
	"github.com/ritzau/kube-playground/pkg/model"
	"github.com/ritzau/kube-playground/pkg/playground"
)

type positionRequest struct {
	X *float64 `json:"x" validate:"required"`
	Y *float64 `json:"y" validate:"required"`
}

type yamlRequest struct {
	YAML string `json:"yaml"`
}

// TypeInfo describes a component type for the palette.
type TypeInfo struct {
	Type       kinds.ComponentType   `json:"type"`
	Kind       string                `json:"kind"`
	APIVersion string                `json:"apiVersion,omitempty"`
	Category   kinds.Category        `json:"category"`
	Targets    []kinds.ComponentType `json:"targets"`
}

// ConnectionInfo answers whether two types may be connected.
type ConnectionInfo struct {
	Source       kinds.ComponentType `json:"source"`
	Target       kinds.ComponentType `json:"target"`
	Legal        bool                `json:"legal"`
	Relationship model.Relationship  `json:"relationship,omitempty"`
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Graph())
}

func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ids := q["node"]
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("at least one node is required"))
		return
	}
	radius := 1
	if v := q.Get("radius"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid radius %q", v))
			return
		}
		radius = n
	}
	writeJSON(w, http.StatusOK, s.session.Focus(ids, radius))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, s.session.ClearCanvas(r.Context()), false)
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var spec playground.NodeSpec
	if !s.decode(w, r, &spec) {
		return
	}
	writeOutcome(w, s.session.AddNode(r.Context(), spec), true)
}

func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	patch, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	out := s.session.UpdateNodeConfig(r.Context(), mux.Vars(r)["id"], json.RawMessage(patch))
	writeOutcome(w, out, false)
}

func (s *Server) handleRemoveNode(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, s.session.RemoveNode(r.Context(), mux.Vars(r)["id"]), false)
}

func (s *Server) handleMoveNode(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if !s.decode(w, r, &req) {
		return
	}
	pos := model.Position{X: *req.X, Y: *req.Y}
	writeOutcome(w, s.session.MoveNode(r.Context(), mux.Vars(r)["id"], pos), false)
}

func (s *Server) handleAddEdge(w http.ResponseWriter, r *http.Request) {
	var spec playground.EdgeSpec
	if !s.decode(w, r, &spec) {
		return
	}
	writeOutcome(w, s.session.AddEdge(r.Context(), spec), true)
}

func (s *Server) handleRemoveEdge(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, s.session.RemoveEdge(r.Context(), mux.Vars(r)["id"]), false)
}

func (s *Server) handleGetYAML(w http.ResponseWriter, r *http.Request) {
	text, err := s.session.GenerateYAML(r.Context())
	if err != nil {
		writeError(w, status(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	io.WriteString(w, text)
}

// handleApplyYAML accepts the manifest as the raw body, or as the yaml
// field of a JSON object.
func (s *Server) handleApplyYAML(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	text := string(body)
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "application/json" {
		var req yamlRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
		text = req.YAML
	}
	writeOutcome(w, s.session.UpdateFromYAML(r.Context(), text), false)
}

func (s *Server) handleAdvice(w http.ResponseWriter, r *http.Request) {
	advice := s.session.Advice()
	if advice == nil {
		advice = []advisor.Advice{}
	}
	writeJSON(w, http.StatusOK, advice)
}

func (s *Server) handleTypes(w http.ResponseWriter, r *http.Request) {
	var out []TypeInfo
	for _, t := range kinds.All() {
		out = append(out, TypeInfo{
			Type:       t,
			Kind:       t.Kind(),
			APIVersion: t.APIVersion(),
			Category:   t.Category(),
			Targets:    connect.Targets(t),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	src := kinds.Normalize(r.URL.Query().Get("source"))
	tgt := kinds.Normalize(r.URL.Query().Get("target"))
	if src == "" || tgt == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("source and target types are required"))
		return
	}
	info := ConnectionInfo{Source: src, Target: tgt, Legal: connect.IsLegalConnection(string(src), string(tgt))}
	if info.Legal {
		info.Relationship = connect.Relationship(src, tgt)
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	keys, err := s.session.Snapshots(r.Context())
	if err != nil {
		writeError(w, status(err), err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, keys)
}

func (s *Server) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, s.session.Save(r.Context(), mux.Vars(r)["key"]), true)
}

func (s *Server) handleLoadSnapshot(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, s.session.Load(r.Context(), mux.Vars(r)["key"]), false)
}
