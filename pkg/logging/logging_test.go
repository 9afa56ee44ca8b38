package logging

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		verbosity string
		verbose   int
		want      slog.Level
		wantErr   bool
	}{
		{"", 0, slog.LevelInfo, false},
		{"", 1, slog.LevelDebug, false},
		{"", 3, LevelTrace, false},
		{"warn", 2, slog.LevelWarn, false},
		{"ERROR", 0, slog.LevelError, false},
		{"trace", 0, LevelTrace, false},
		{"loud", 0, slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.verbosity, tt.verbose)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q, %d) error = %v, wantErr %v", tt.verbosity, tt.verbose, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q, %d) = %v, want %v", tt.verbosity, tt.verbose, got, tt.want)
		}
	}
}

func TestCompactHandler(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewCompactHandler(&buf, &slog.HandlerOptions{Level: LevelTrace})).With("session", "0123456789abcdef")

	l.Log(context.Background(), LevelTrace, "rule applied", "rule", "selector", "edges", 2)
	l.Warn("dropped document", "error", "bad indent", "path", "a b")

	out := buf.String()
	for _, want := range []string{
		"[TRACE] ",
		"rule applied | session=01234567 rule=selector edges=2",
		"[WARN]  ",
		`error="bad indent"`,
		`path="a b"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestCompactHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewCompactHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	l.Info("hidden")
	l.Error("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/graph", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "fixed-id" {
		t.Errorf("handler saw request id %q", seen)
	}
	if rec.Header().Get("X-Request-ID") != "fixed-id" {
		t.Errorf("response header = %q", rec.Header().Get("X-Request-ID"))
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(rec.Header().Get("X-Request-ID")) != 36 {
		t.Errorf("generated id = %q", rec.Header().Get("X-Request-ID"))
	}
}

func TestContextIDs(t *testing.T) {
	ctx := WithSessionID(WithRequestID(context.Background(), "req"), "sess")
	args := withRequestID(ctx, []any{"k", "v"})
	if len(args) != 6 || args[0] != "requestID" || args[2] != "session" {
		t.Errorf("args = %v", args)
	}
}

func TestCompactHandlerOperationAndStack(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewCompactHandler(&buf, nil))

	l.Error("operation panicked", "operation", "add-edge", "panic", "boom", "stack", "goroutine 1 [running]:\nmain.main()\n")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", buf.String())
	}
	if !strings.HasSuffix(lines[0], "add-edge: operation panicked | panic=boom") {
		t.Errorf("first line = %q", lines[0])
	}
	if lines[1] != "    goroutine 1 [running]:" || lines[2] != "    main.main()" {
		t.Errorf("stack lines = %q", lines[1:])
	}
}

func TestCompactHandlerGroupKeepsOperation(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewCompactHandler(&buf, nil)).WithGroup("req")

	l.Info("done", "operation", "clear")

	if out := buf.String(); !strings.Contains(out, "done | req.operation=clear") {
		t.Errorf("output %q", out)
	}
}

func TestMiddlewareLevels(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(slog.LevelInfo)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(slog.LevelInfo)
	})

	tests := []struct {
		name   string
		status int
		header map[string]string
		want   string
	}{
		{"completed", http.StatusOK, nil, "[INFO]  "},
		{"rejected", http.StatusUnprocessableEntity, nil, "[WARN]  "},
		{"failed", http.StatusInternalServerError, nil, "[ERROR] "},
		{"sse", http.StatusOK, map[string]string{"Accept": "text/event-stream"}, "stream closed | "},
		{"websocket", http.StatusOK, map[string]string{"Upgrade": "websocket"}, "stream=websocket"},
		{"unknown topic", http.StatusNotFound, map[string]string{"Accept": "text/event-stream"}, "request rejected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			req := httptest.NewRequest(http.MethodGet, "/api/subscribe/graph", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if out := buf.String(); !strings.Contains(out, tt.want) {
				t.Errorf("output %q missing %q", out, tt.want)
			}
		})
	}
}
