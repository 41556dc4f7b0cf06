package proxy

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"relaydesk/relay/pkg/proxy/types"
)

// upstreamRecord captures what the upstream saw for one request.
type upstreamRecord struct {
	method        string
	host          string
	path          string
	rawQuery      string
	contentType   string
	contentLength int64
	body          string
}

func newUpstream(t *testing.T) (*httptest.Server, func() upstreamRecord) {
	t.Helper()
	var (
		mu   sync.Mutex
		last upstreamRecord
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		last = upstreamRecord{
			method:        r.Method,
			host:          r.Host,
			path:          r.URL.Path,
			rawQuery:      r.URL.RawQuery,
			contentType:   r.Header.Get("Content-Type"),
			contentLength: r.ContentLength,
			body:          string(data),
		}
		mu.Unlock()
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("upstream says hi"))
	}))
	t.Cleanup(srv.Close)
	return srv, func() upstreamRecord {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func configFor(t *testing.T, rawURL string) types.ProxyConfig {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse %q: %v", rawURL, err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	return types.ProxyConfig{TargetHost: u.Hostname(), TargetPort: port, ProxyPort: port + 1}
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

func newForwarder(t *testing.T, cfg types.ProxyConfig, opts Options) *httptest.Server {
	t.Helper()
	f, err := NewForwarder(cfg, opts)
	if err != nil {
		t.Fatalf("NewForwarder() error: %v", err)
	}
	srv := httptest.NewServer(f)
	t.Cleanup(func() {
		srv.Close()
		f.CloseIdleConnections()
	})
	return srv
}

func TestForwarder_RelaysResponse(t *testing.T) {
	upstream, last := newUpstream(t)
	cfg := configFor(t, upstream.URL)
	proxySrv := newForwarder(t, cfg, Options{})

	resp, err := http.Get(proxySrv.URL + "/api/items?page=2&sort=asc")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
	if resp.Header.Get("X-Upstream") != "yes" {
		t.Error("upstream response header not relayed")
	}
	if string(data) != "upstream says hi" {
		t.Errorf("body = %q", data)
	}

	got := last()
	if got.path != "/api/items" {
		t.Errorf("upstream path = %q", got.path)
	}
	if got.rawQuery != "page=2&sort=asc" {
		t.Errorf("upstream query = %q", got.rawQuery)
	}
	if got.host != cfg.TargetAddr() {
		t.Errorf("upstream Host = %q, want %q", got.host, cfg.TargetAddr())
	}
}

func TestForwarder_ReframesJSON(t *testing.T) {
	upstream, last := newUpstream(t)
	proxySrv := newForwarder(t, configFor(t, upstream.URL), Options{})

	resp, err := http.Post(proxySrv.URL+"/echo", "application/json", strings.NewReader(`{ "name" : "relay",  "n": 1 }`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()

	got := last()
	want := `{"n":1,"name":"relay"}`
	if got.body != want {
		t.Errorf("upstream body = %s, want %s", got.body, want)
	}
	if got.contentLength != int64(len(want)) {
		t.Errorf("upstream Content-Length = %d, want %d", got.contentLength, len(want))
	}
	if got.contentType != "application/json" {
		t.Errorf("upstream Content-Type = %q", got.contentType)
	}
}

func TestForwarder_ReframesForm(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"repeated key", "q=go&q=http", `{"q":["go","http"]}`},
		{"bracket keys", "a[b]=1&a[c]=2&n=3", `{"a":{"b":"1","c":"2"},"n":"3"}`},
		{"indexed list", "ids[1]=b&ids[0]=a&ids[]=c", `{"ids":["a","b","c"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream, last := newUpstream(t)
			proxySrv := newForwarder(t, configFor(t, upstream.URL), Options{})

			req, _ := http.NewRequest(http.MethodPatch, proxySrv.URL+"/form", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("PATCH: %v", err)
			}
			resp.Body.Close()

			got := last()
			if got.method != http.MethodPatch {
				t.Errorf("method = %s", got.method)
			}
			if got.body != tt.want {
				t.Errorf("upstream body = %s, want %s", got.body, tt.want)
			}
			if got.contentLength != int64(len(tt.want)) {
				t.Errorf("upstream Content-Length = %d, want %d", got.contentLength, len(tt.want))
			}
			if got.contentType != "application/json" {
				t.Errorf("upstream Content-Type = %q", got.contentType)
			}
		})
	}
}

func TestForwarder_EmptyJSONBody(t *testing.T) {
	upstream, last := newUpstream(t)
	proxySrv := newForwarder(t, configFor(t, upstream.URL), Options{})

	resp, err := http.Post(proxySrv.URL+"/empty", "application/json", http.NoBody)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()

	got := last()
	if got.body != `{}` {
		t.Errorf("upstream body = %q, want {}", got.body)
	}
	if got.contentLength != 2 {
		t.Errorf("upstream Content-Length = %d, want 2", got.contentLength)
	}
}

func TestForwarder_StreamsOpaqueBodies(t *testing.T) {
	upstream, last := newUpstream(t)
	proxySrv := newForwarder(t, configFor(t, upstream.URL), Options{})

	resp, err := http.Post(proxySrv.URL+"/raw", "text/plain", strings.NewReader("{ not json"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()

	got := last()
	if got.body != "{ not json" {
		t.Errorf("upstream body = %q", got.body)
	}
	if got.contentType != "text/plain" {
		t.Errorf("upstream Content-Type = %q", got.contentType)
	}
}

func TestForwarder_UpstreamUnreachable(t *testing.T) {
	cfg := types.ProxyConfig{TargetHost: "127.0.0.1", TargetPort: closedPort(t), ProxyPort: 1}
	metrics := &fakeMetrics{}
	proxySrv := newForwarder(t, cfg, Options{Metrics: metrics})

	resp, err := http.Get(proxySrv.URL + "/anything")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}

	var env map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env["error"] != "Proxy Error" {
		t.Errorf("error = %q", env["error"])
	}
	if env["message"] == "" {
		t.Error("message is empty")
	}
	if env["target"] != cfg.TargetURL() {
		t.Errorf("target = %q, want %q", env["target"], cfg.TargetURL())
	}
	if _, err := time.Parse(types.TimestampLayout, env["timestamp"]); err != nil {
		t.Errorf("timestamp %q: %v", env["timestamp"], err)
	}

	if metrics.upstreamErrors() != 1 {
		t.Errorf("upstream errors = %d, want 1", metrics.upstreamErrors())
	}
	deadline := time.Now().Add(2 * time.Second)
	for metrics.lastStatus() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if status := metrics.lastStatus(); status != http.StatusInternalServerError {
		t.Errorf("recorded status = %d, want 500", status)
	}
}

func TestForwarder_RejectsBadBodyLocally(t *testing.T) {
	var called atomic.Bool
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
	}))
	defer upstream.Close()

	proxySrv := newForwarder(t, configFor(t, upstream.URL), Options{MaxBodyBytes: 16})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantTitle  string
	}{
		{"malformed", `{"a":`, http.StatusBadRequest, "Bad Request"},
		{"too large", `{"a":"0123456789abcdef"}`, http.StatusRequestEntityTooLarge, "Payload Too Large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(proxySrv.URL, "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			var env types.ErrorEnvelope
			if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if env.Error != tt.wantTitle {
				t.Errorf("error = %q, want %q", env.Error, tt.wantTitle)
			}
		})
	}

	if called.Load() {
		t.Error("upstream should not be called for rejected bodies")
	}
}

func TestForwarder_HookOrder(t *testing.T) {
	upstream, _ := newUpstream(t)

	var (
		mu    sync.Mutex
		calls []string
	)
	record := func(s string) {
		mu.Lock()
		calls = append(calls, s)
		mu.Unlock()
	}
	reset := func() {
		mu.Lock()
		calls = nil
		mu.Unlock()
	}
	seen := func() string {
		mu.Lock()
		defer mu.Unlock()
		return strings.Join(calls, ",")
	}

	hooks := Hooks{
		BeforeSend: func(out *http.Request) {
			out.Header.Set("X-Hooked", "1")
			record("before")
		},
		AfterReceive: func(resp *http.Response) error {
			record("after")
			return nil
		},
		OnError: func(r *http.Request, err error) {
			record("error")
		},
	}

	t.Run("success", func(t *testing.T) {
		reset()
		proxySrv := newForwarder(t, configFor(t, upstream.URL), Options{Hooks: hooks})
		resp, err := http.Get(proxySrv.URL)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		if got := seen(); got != "before,after" {
			t.Errorf("calls = %s, want before,after", got)
		}
	})

	t.Run("after receive rejects", func(t *testing.T) {
		reset()
		rejecting := Chain(hooks, Hooks{AfterReceive: func(*http.Response) error {
			return errors.New("response rejected")
		}})
		proxySrv := newForwarder(t, configFor(t, upstream.URL), Options{Hooks: rejecting})
		resp, err := http.Get(proxySrv.URL)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", resp.StatusCode)
		}
		if got := seen(); got != "before,after,error" {
			t.Errorf("calls = %s, want before,after,error", got)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		reset()
		cfg := types.ProxyConfig{TargetHost: "127.0.0.1", TargetPort: closedPort(t), ProxyPort: 1}
		proxySrv := newForwarder(t, cfg, Options{Hooks: hooks})
		resp, err := http.Get(proxySrv.URL)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		if got := seen(); got != "before,error" {
			t.Errorf("calls = %s, want before,error", got)
		}
	})
}

func TestForwarder_XForwarded(t *testing.T) {
	headers := make(chan http.Header, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
	}))
	defer upstream.Close()

	proxySrv := newForwarder(t, configFor(t, upstream.URL), Options{XForwarded: true})
	resp, err := http.Get(proxySrv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()

	got := <-headers
	if got.Get("X-Forwarded-For") == "" {
		t.Error("X-Forwarded-For missing")
	}
	if got.Get("X-Forwarded-Proto") != "http" {
		t.Errorf("X-Forwarded-Proto = %q", got.Get("X-Forwarded-Proto"))
	}
}

type fakeMetrics struct {
	mu       sync.Mutex
	statuses []int
	errors   int
}

func (m *fakeMetrics) RecordForward(method string, status int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
}

func (m *fakeMetrics) RecordUpstreamError(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
}

func (m *fakeMetrics) upstreamErrors() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors
}

func (m *fakeMetrics) lastStatus() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.statuses) == 0 {
		return 0
	}
	return m.statuses[len(m.statuses)-1]
}
