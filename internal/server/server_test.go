package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/koisite/internal/build"
	"github.com/conneroisu/koisite/internal/config"
)

type fakeStatus struct {
	mu       sync.Mutex
	failures []build.Result
	last     map[string]build.Result
}

func (f *fakeStatus) Failures() []build.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]build.Result(nil), f.failures...)
}

func (f *fakeStatus) Last() map[string]build.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *fakeStatus) Metrics() build.MetricsSnapshot {
	return build.MetricsSnapshot{TotalRuns: 3, SuccessfulRuns: 2, FailedRuns: 1}
}

func (f *fakeStatus) fail(results ...build.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = results
}

func newTestServer(t *testing.T) (*Server, *fakeStatus, string) {
	t.Helper()

	cfg := config.Default()
	cfg.Site.Root = t.TempDir()
	dist := cfg.OutputPath()
	require.NoError(t, os.MkdirAll(filepath.Join(dist, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dist, "index.html"), []byte("<html><body><h1>Koi</h1></body></html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dist, "style.css"), []byte("h1{color:red}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dist, "assets", "logo.svg"), []byte("<svg/>"), 0o644))

	status := &fakeStatus{last: map[string]build.Result{}}
	return New(cfg, status, nil), status, dist
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestStaticServesIndexWithReloadScript(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Handler()

	for _, target := range []string{"/", "/index.html"} {
		rec := get(t, h, target)
		assert.Equal(t, http.StatusOK, rec.Code, target)
		body := rec.Body.String()
		assert.Contains(t, body, "<h1>Koi</h1>")
		assert.Contains(t, body, wsPath)
		assert.True(t, strings.HasSuffix(body, "</body></html>"), "script goes before </body>")
		assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	}
}

func TestStaticWithoutLiveReload(t *testing.T) {
	srv, _, _ := newTestServer(t)
	srv.config.Server.LiveReload = false
	h := srv.Handler()

	rec := get(t, h, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html><body><h1>Koi</h1></body></html>", rec.Body.String())

	rec = get(t, h, wsPath)
	assert.NotEqual(t, http.StatusSwitchingProtocols, rec.Code)
}

func TestStaticNonHTML(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Handler()

	rec := get(t, h, "/style.css")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "h1{color:red}", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/css")

	rec = get(t, h, "/assets/logo.svg")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<script>")
}

func TestStaticNotFoundAndTraversal(t *testing.T) {
	srv, _, dist := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(dist), "secret.txt"), []byte("secret"), 0o644))
	h := srv.Handler()

	assert.Equal(t, http.StatusNotFound, get(t, h, "/missing.png").Code)

	assert.Equal(t, filepath.Join(dist, "secret.txt"), srv.resolve("/../secret.txt"))
	assert.Equal(t, filepath.Join(dist, "secret.txt"), srv.resolve("../../secret.txt"))
	assert.Equal(t, http.StatusNotFound, get(t, h, "/secret.txt").Code)
}

func TestStaticRejectsPost(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestOverlayReplacesPagesWhileFailing(t *testing.T) {
	srv, status, _ := newTestServer(t)
	h := srv.Handler()

	status.fail(build.Result{Task: build.TaskCSS, Err: errors.New("sass: expected \"{\"")})

	rec := get(t, h, "/")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Build failed")
	assert.Contains(t, body, "<h2>css</h2>")
	assert.Contains(t, body, wsPath)
	assert.NotContains(t, body, "<h1>Koi</h1>")

	// Assets keep being served so the overlay is the only change.
	rec = get(t, h, "/style.css")
	assert.Equal(t, http.StatusOK, rec.Code)

	status.fail()
	rec = get(t, h, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>Koi</h1>")
}

func TestHealthAndStatus(t *testing.T) {
	srv, status, _ := newTestServer(t)
	status.last[build.TaskHTML] = build.Result{Task: build.TaskHTML, Duration: time.Millisecond, Outputs: []string{"dist/index.html"}}
	status.last[build.TaskCSS] = build.Result{Task: build.TaskCSS, Err: errors.New("boom")}
	h := srv.Handler()

	rec := get(t, h, healthPath)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.EqualValues(t, 0, health["clients"])

	rec = get(t, h, statusPath)
	require.Equal(t, http.StatusOK, rec.Code)
	var st struct {
		Tasks   map[string]taskStatus  `json:"tasks"`
		Metrics map[string]interface{} `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Tasks[build.TaskHTML].OK)
	assert.Equal(t, []string{"dist/index.html"}, st.Tasks[build.TaskHTML].Outputs)
	assert.False(t, st.Tasks[build.TaskCSS].OK)
	assert.Equal(t, "boom", st.Tasks[build.TaskCSS].Error)
	assert.EqualValues(t, 3, st.Metrics["total_runs"])

	req := httptest.NewRequest(http.MethodPost, healthPath, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func dialHub(t *testing.T, srv *Server, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + wsPath
	conn, _, err := websocket.Dial(t.Context(), url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{ts.URL}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })

	require.Eventually(t, func() bool { return srv.Hub().Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestNotifyBroadcasts(t *testing.T) {
	srv, status, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go srv.Hub().Run(ctx)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	conn := dialHub(t, srv, ts)

	srv.Notify(build.TaskPage, nil)
	assert.Equal(t, MessageReload, readMessage(t, conn).Type)

	srv.Notify(build.TaskCSS, nil)
	msg := readMessage(t, conn)
	assert.Equal(t, MessageCSS, msg.Type)
	assert.Equal(t, build.TaskCSS, msg.Task)

	failure := build.Result{Task: build.TaskCSS, Err: errors.New("bad scss")}
	status.fail(failure)
	srv.Notify(build.TaskCSS, failure.Err)
	msg = readMessage(t, conn)
	assert.Equal(t, MessageBuildError, msg.Type)
	assert.Equal(t, []string{"css: bad scss"}, msg.Errors)

	// The overlay is showing, so fixing the stylesheet reloads the page.
	status.fail()
	srv.Notify(build.TaskCSS, nil)
	assert.Equal(t, MessageReload, readMessage(t, conn).Type)

	srv.Notify(build.TaskCSS, nil)
	assert.Equal(t, MessageCSS, readMessage(t, conn).Type)
}

func TestNotifyReportsOtherTaskFailures(t *testing.T) {
	srv, status, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go srv.Hub().Run(ctx)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	conn := dialHub(t, srv, ts)

	status.fail(build.Result{Task: build.TaskHTML, Err: errors.New("missing fragment")})
	srv.Notify(build.TaskAssets, nil)

	msg := readMessage(t, conn)
	assert.Equal(t, MessageBuildError, msg.Type)
	assert.Equal(t, []string{"html: missing fragment"}, msg.Errors)
}

func TestWebSocketOrigin(t *testing.T) {
	srv, _, _ := newTestServer(t)
	srv.config.Server.AllowedOrigins = []string{"https://koi.example.com"}

	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{name: "same host", origin: "http://localhost:8080", host: "localhost:8080", want: true},
		{name: "allowed origin", origin: "https://koi.example.com", host: "localhost:8080", want: true},
		{name: "allowed host only", origin: "http://koi.example.com", host: "localhost:8080", want: false},
		{name: "other host", origin: "http://evil.example.com", host: "localhost:8080", want: false},
		{name: "missing origin", origin: "", host: "localhost:8080", want: false},
		{name: "bad scheme", origin: "file://localhost:8080", host: "localhost:8080", want: false},
		{name: "unparseable", origin: "http://[::1", host: "localhost:8080", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, wsPath, nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, srv.checkOrigin(req))
		})
	}
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go srv.Hub().Run(ctx)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + wsPath
	_, resp, err := websocket.Dial(t.Context(), url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"http://evil.example.com"}},
	})
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
	assert.Equal(t, 0, srv.Hub().Count())
}

func TestShutdownIsIdempotent(t *testing.T) {
	srv, _, _ := newTestServer(t)
	require.NoError(t, srv.Shutdown(t.Context()))
	require.NoError(t, srv.Shutdown(t.Context()))

	// Broadcasting after shutdown never blocks.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 32; i++ {
			srv.Hub().Broadcast([]byte(`{}`))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked after shutdown")
	}
}
