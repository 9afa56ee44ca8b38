package web

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritzau/kube-playground/pkg/lens"
	"github.com/ritzau/kube-playground/pkg/metrics"
	"github.com/ritzau/kube-playground/pkg/playground"
	"github.com/ritzau/kube-playground/pkg/pubsub"
	"github.com/ritzau/kube-playground/pkg/store"
)

const echo = `apiVersion: v1
kind: Service
metadata:
  name: echo
spec:
  selector:
    app: echo
---
apiVersion: apps/v1
kind: Deployment
metadata:
  name: echo
spec:
  replicas: 2
  template:
    metadata:
      labels:
        app: echo
`

type fixture struct {
	server  *Server
	session *playground.Session
	http    *httptest.Server
}

func newFixture(t *testing.T, withStore bool) *fixture {
	t.Helper()
	opts := playground.Options{Metrics: metrics.New()}
	pub := pubsub.NewSSEPublisher()
	opts.Publisher = pub
	if withStore {
		fs, err := store.NewFileStore(t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { fs.Close() })
		opts.Store = fs
	}
	session := playground.New(opts)
	t.Cleanup(session.Close)

	srv := NewServer(session, pub, opts.Metrics)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { pub.Close() })
	return &fixture{server: srv, session: session, http: ts}
}

func (f *fixture) do(t *testing.T, method, path, contentType, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func outcome(t *testing.T, data []byte) playground.Outcome {
	t.Helper()
	var out playground.Outcome
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

func TestCanvasLifecycle(t *testing.T) {
	f := newFixture(t, false)

	resp, data := f.do(t, "POST", "/api/nodes", "application/json", `{"type":"service","name":"web"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	svc := outcome(t, data)
	assert.Equal(t, "service-web", svc.ID)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, data = f.do(t, "POST", "/api/nodes", "application/json", `{"type":"deployment","name":"web","config":{"replicas":1}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	dep := outcome(t, data)

	resp, data = f.do(t, "POST", "/api/edges", "application/json", `{"source":"service-web","target":"`+dep.ID+`"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	edge := outcome(t, data)

	resp, _ = f.do(t, "PUT", "/api/nodes/service-web/position", "application/json", `{"x":10,"y":20}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data = f.do(t, "PATCH", "/api/nodes/"+dep.ID, "application/merge-patch+json", `{"replicas":2}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	resp, data = f.do(t, "GET", "/api/graph", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var graph struct {
		Nodes []struct {
			ID string `json:"id"`
		} `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(data, &graph))
	assert.Len(t, graph.Nodes, 4)

	resp, _ = f.do(t, "DELETE", "/api/edges/"+edge.ID, "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, "DELETE", "/api/edges/"+edge.ID, "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, data = f.do(t, "DELETE", "/api/nodes/"+dep.ID, "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, outcome(t, data).Warnings)

	resp, _ = f.do(t, "DELETE", "/api/canvas", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, f.session.Graph().Len())
}

func TestRejectedRequests(t *testing.T) {
	f := newFixture(t, false)
	f.do(t, "POST", "/api/nodes", "application/json", `{"type":"configmap","name":"a"}`)
	f.do(t, "POST", "/api/nodes", "application/json", `{"type":"ingress","name":"b"}`)

	tests := []struct {
		name, method, path, body string
		want                     int
	}{
		{"missing type", "POST", "/api/nodes", `{"name":"x"}`, http.StatusBadRequest},
		{"malformed body", "POST", "/api/nodes", `{`, http.StatusBadRequest},
		{"unknown type", "POST", "/api/nodes", `{"type":"gizmo"}`, http.StatusUnprocessableEntity},
		{"illegal edge", "POST", "/api/edges", `{"source":"configmap-a","target":"ingress-b"}`, http.StatusUnprocessableEntity},
		{"missing node", "DELETE", "/api/nodes/nope", ``, http.StatusNotFound},
		{"position without y", "PUT", "/api/nodes/configmap-a/position", `{"x":1}`, http.StatusBadRequest},
		{"snapshots disabled", "POST", "/api/snapshots/demo", ``, http.StatusServiceUnavailable},
		{"focus without node", "GET", "/api/graph/focus", ``, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := f.do(t, tt.method, tt.path, "application/json", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode, string(data))
		})
	}
}

func TestYAMLEndpoints(t *testing.T) {
	f := newFixture(t, false)

	resp, data := f.do(t, "POST", "/api/yaml", "application/yaml", echo)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Equal(t, 4, f.session.Graph().Len())

	resp, data = f.do(t, "GET", "/api/yaml", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(data), "kind: Deployment")

	before := f.session.Hash()
	resp, data = f.do(t, "POST", "/api/yaml", "application/json", `{"yaml":"kind: [oops\n"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "Invalid YAML format", outcome(t, data).Message)
	assert.Equal(t, before, f.session.Hash())

	resp, data = f.do(t, "GET", "/api/advice", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"rule"`)
}

func TestFocusAndConnections(t *testing.T) {
	f := newFixture(t, false)
	f.do(t, "POST", "/api/yaml", "text/plain", echo)

	resp, data := f.do(t, "GET", "/api/graph/focus?node=service-echo&radius=1", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view struct {
		Distances map[string]int `json:"distances"`
	}
	require.NoError(t, json.Unmarshal(data, &view))
	assert.Equal(t, 0, view.Distances["service-echo"])
	assert.Equal(t, 1, view.Distances["deployment-echo"])

	_, data = f.do(t, "GET", "/api/connections?source=svc&target=deploy", "", "")
	var info ConnectionInfo
	require.NoError(t, json.Unmarshal(data, &info))
	assert.True(t, info.Legal)
	assert.Equal(t, "routes-traffic", string(info.Relationship))

	_, data = f.do(t, "GET", "/api/connections?source=configmap&target=ingress", "", "")
	require.NoError(t, json.Unmarshal(data, &info))
	assert.False(t, info.Legal)

	_, data = f.do(t, "GET", "/api/types", "", "")
	var types []TypeInfo
	require.NoError(t, json.Unmarshal(data, &types))
	assert.NotEmpty(t, types)
}

func TestSnapshotEndpoints(t *testing.T) {
	f := newFixture(t, true)
	f.do(t, "POST", "/api/yaml", "application/yaml", echo)

	resp, data := f.do(t, "POST", "/api/snapshots/demo", "", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

	_, data = f.do(t, "GET", "/api/snapshots", "", "")
	assert.JSONEq(t, `["demo"]`, string(data))

	f.do(t, "DELETE", "/api/canvas", "", "")
	resp, _ = f.do(t, "GET", "/api/snapshots/demo", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 4, f.session.Graph().Len())

	resp, _ = f.do(t, "GET", "/api/snapshots/missing", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = f.do(t, "POST", "/api/snapshots/Not_Valid", "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestMetricsAndHealth(t *testing.T) {
	f := newFixture(t, false)
	f.do(t, "POST", "/api/nodes", "application/json", `{"type":"service","name":"web"}`)

	resp, data := f.do(t, "GET", "/metrics", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `kube_playground_operations_total{operation="add-node",result="ok"} 1`)

	resp, data = f.do(t, "GET", "/healthz", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), f.session.ID())
}

func TestSubscribeGraph(t *testing.T) {
	f := newFixture(t, false)
	f.do(t, "POST", "/api/nodes", "application/json", `{"type":"service","name":"web"}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", f.http.URL+"/api/subscribe/graph", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func() pubsub.Event {
		t.Helper()
		for lines.Scan() {
			if data, ok := strings.CutPrefix(lines.Text(), "data: "); ok {
				var ev pubsub.Event
				require.NoError(t, json.Unmarshal([]byte(data), &ev))
				return ev
			}
		}
		t.Fatal("stream ended")
		return pubsub.Event{}
	}

	first := next()
	assert.Equal(t, pubsub.EventGraphFull, first.Type)
	var full lens.GraphDiff
	require.NoError(t, json.Unmarshal(first.Data, &full))
	require.Len(t, full.AddedNodes, 1)
	assert.Equal(t, "service-web", full.AddedNodes[0].ID)

	go f.session.AddNode(context.Background(), playground.NodeSpec{Type: "configmap", Name: "settings"})
	ev := next()
	assert.Equal(t, pubsub.EventGraphDiff, ev.Type)
	var diff lens.GraphDiff
	require.NoError(t, json.Unmarshal(ev.Data, &diff))
	require.Len(t, diff.AddedNodes, 1)
	assert.Equal(t, "configmap-settings", diff.AddedNodes[0].ID)

	resp2, _ := f.do(t, "GET", "/api/subscribe/bogus", "", "")
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestWebsocket(t *testing.T) {
	f := newFixture(t, false)
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first pubsub.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, pubsub.EventGraphFull, first.Type)

	require.NoError(t, conn.WriteJSON(Request{ID: "1", Op: "add-node", Payload: json.RawMessage(`{"type":"pod","name":"solo"}`)}))
	require.NoError(t, conn.WriteJSON(Request{ID: "2", Op: "explode"}))

	replies := map[string]Reply{}
	var sawDiff bool
	for len(replies) < 2 || !sawDiff {
		var msg map[string]json.RawMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if _, ok := msg["outcome"]; ok {
			var r Reply
			raw, _ := json.Marshal(msg)
			require.NoError(t, json.Unmarshal(raw, &r))
			replies[r.ID] = r
			continue
		}
		var typ string
		require.NoError(t, json.Unmarshal(msg["type"], &typ))
		if typ == pubsub.EventGraphDiff {
			sawDiff = true
		}
	}

	assert.True(t, replies["1"].Outcome.OK)
	assert.Equal(t, "pod-solo", replies["1"].Outcome.ID)
	assert.False(t, replies["2"].Outcome.OK)
	assert.Contains(t, replies["2"].Outcome.Message, "unknown operation")
}

func TestStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, status(nil))
	assert.Equal(t, http.StatusUnprocessableEntity, status(&playground.ApplyError{Message: "x", Err: io.EOF}))
	assert.Equal(t, http.StatusInternalServerError, status(playground.ErrInternal))
	assert.Equal(t, http.StatusBadRequest, status(io.EOF))
}

func TestDisplayAddr(t *testing.T) {
	assert.Equal(t, "localhost:8080", displayAddr(":8080"))
	assert.Equal(t, "0.0.0.0:80", displayAddr("0.0.0.0:80"))
}
