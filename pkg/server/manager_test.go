package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"relaydesk/relay/pkg/proxy/types"
)

// freePort returns a TCP port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func upstreamPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	_, port, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("split upstream address: %v", err)
	}
	n, _ := strconv.Atoi(port)
	return n
}

func testClient() *http.Client {
	return &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{DisableKeepAlives: true},
	}
}

func newTestManager(opts Options) *Manager {
	opts.BindAddress = "127.0.0.1"
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = time.Second
	}
	return NewManager(opts)
}

type recordingObserver struct {
	mu          sync.Mutex
	transitions []types.Transition
}

func (o *recordingObserver) ObserveTransition(t types.Transition) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, t)
}

func (o *recordingObserver) all() []types.Transition {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]types.Transition(nil), o.transitions...)
}

type recordingMetrics struct {
	mu      sync.Mutex
	ops     []string
	running bool
}

func (m *recordingMetrics) RecordTransition(op string, success bool, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, fmt.Sprintf("%s:%t", op, success))
}

func (m *recordingMetrics) ObserveState(running bool, cfg *types.ProxyConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = running
}

func TestManager_StartStatusStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s %s", r.Method, r.URL.RequestURI())
	}))
	defer upstream.Close()

	m := newTestManager(Options{})
	cfg := types.ProxyConfig{TargetHost: "127.0.0.1", TargetPort: upstreamPort(t, upstream), ProxyPort: freePort(t)}

	res := m.Start(cfg)
	if !res.Success {
		t.Fatalf("Start() failed: %s", res.Error)
	}
	if want := fmt.Sprintf("Proxy server started on port %d", cfg.ProxyPort); res.Message != want {
		t.Errorf("message = %q, want %q", res.Message, want)
	}
	if res.Config == nil || *res.Config != cfg {
		t.Errorf("result config = %v, want %v", res.Config, cfg)
	}

	st := m.Status()
	if !st.IsRunning || st.Config == nil || *st.Config != cfg {
		t.Fatalf("Status() = %+v, want running with %v", st, cfg)
	}

	client := testClient()
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/items?page=2", cfg.ProxyPort))
	if err != nil {
		t.Fatalf("proxied request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "GET /items?page=2" {
		t.Errorf("upstream saw %q", body)
	}

	res = m.Stop()
	if !res.Success || res.Message != "Proxy server stopped" {
		t.Errorf("Stop() = %+v", res)
	}
	if st := m.Status(); st.IsRunning || st.Config != nil {
		t.Errorf("Status() after Stop = %+v", st)
	}

	if _, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.ProxyPort), time.Second); err == nil {
		t.Error("proxy port still accepting connections after Stop")
	}
}

func TestManager_StopIdempotent(t *testing.T) {
	m := newTestManager(Options{})

	for i := 0; i < 2; i++ {
		res := m.Stop()
		if !res.Success || res.Message != "Proxy server was not running" {
			t.Errorf("Stop() #%d = %+v", i, res)
		}
	}
}

func TestManager_RestartReleasesPreviousPort(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m := newTestManager(Options{})
	defer m.Shutdown(context.Background())

	c1 := types.ProxyConfig{TargetHost: "127.0.0.1", TargetPort: 1, ProxyPort: freePort(t)}
	c2 := types.ProxyConfig{TargetHost: "127.0.0.1", TargetPort: 1, ProxyPort: freePort(t)}

	if res := m.Start(c1); !res.Success {
		t.Fatalf("Start(c1): %s", res.Error)
	}
	if res := m.Start(c2); !res.Success {
		t.Fatalf("Start(c2): %s", res.Error)
	}

	if st := m.Status(); st.Config == nil || st.Config.ProxyPort != c2.ProxyPort {
		t.Errorf("Status() = %+v, want port %d", st, c2.ProxyPort)
	}

	// c1's port is free again.
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", c1.ProxyPort))
	if err != nil {
		t.Fatalf("previous port not released: %v", err)
	}
	ln.Close()

	// Restarting on the same port does not conflict with itself.
	if res := m.Start(c2); !res.Success {
		t.Fatalf("Start(c2) again: %s", res.Error)
	}
}

func TestManager_InvalidConfigRejected(t *testing.T) {
	m := newTestManager(Options{})
	port := freePort(t)

	res := m.Start(types.ProxyConfig{TargetHost: "localhost", TargetPort: port, ProxyPort: port})
	if res.Success {
		t.Fatal("Start() with equal ports should fail")
	}
	if !strings.Contains(res.Error, "proxyPort") {
		t.Errorf("error = %q, want mention of proxyPort", res.Error)
	}
	if m.Status().IsRunning {
		t.Error("manager running after invalid Start")
	}

	// Nothing was bound.
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("port bound by rejected Start: %v", err)
	}
	ln.Close()
}

func TestManager_BindConflict(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer occupied.Close()
	port := occupied.Addr().(*net.TCPAddr).Port

	m := newTestManager(Options{})
	res := m.Start(types.ProxyConfig{TargetHost: "localhost", TargetPort: 1, ProxyPort: port})
	if res.Success {
		t.Fatal("Start() on an occupied port should fail")
	}
	if !strings.Contains(res.Error, "address already in use") {
		t.Errorf("error = %q", res.Error)
	}
	if m.Status().IsRunning {
		t.Error("manager running after bind failure")
	}
}

func TestManager_ReconfigureWhileStopped(t *testing.T) {
	m := newTestManager(Options{})
	port := freePort(t)

	res := m.Reconfigure(types.ProxyConfig{TargetHost: "localhost", TargetPort: 3000, ProxyPort: port})
	if !res.Success || res.Message != "Configuration updated (server not running)" {
		t.Errorf("Reconfigure() = %+v", res)
	}
	if m.Status().IsRunning {
		t.Error("Reconfigure while stopped started the proxy")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("Reconfigure bound a port: %v", err)
	}
	ln.Close()
}

func TestManager_ReconfigureWhileRunning(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m := newTestManager(Options{})
	defer m.Shutdown(context.Background())

	c1 := types.ProxyConfig{TargetHost: "127.0.0.1", TargetPort: 3000, ProxyPort: freePort(t)}
	m.Start(c1)

	// Invalid config leaves the running instance alone.
	bad := types.ProxyConfig{TargetHost: "", TargetPort: 3000, ProxyPort: c1.ProxyPort}
	if res := m.Reconfigure(bad); res.Success {
		t.Fatal("Reconfigure() accepted an invalid config")
	}
	if st := m.Status(); !st.IsRunning || *st.Config != c1 {
		t.Fatalf("Status() after rejected reconfigure = %+v", st)
	}

	c2 := types.ProxyConfig{TargetHost: "127.0.0.1", TargetPort: 4000, ProxyPort: c1.ProxyPort}
	res := m.Reconfigure(c2)
	if !res.Success {
		t.Fatalf("Reconfigure() failed: %s", res.Error)
	}
	if st := m.Status(); !st.IsRunning || *st.Config != c2 {
		t.Errorf("Status() = %+v, want %v", st, c2)
	}

	resp, err := testClient().Get(fmt.Sprintf("http://127.0.0.1:%d/health", c2.ProxyPort))
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	var hr types.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		t.Fatal(err)
	}
	if hr.Proxy.Target != "http://127.0.0.1:4000" {
		t.Errorf("health target = %q, want new target", hr.Proxy.Target)
	}
}

func TestManager_HealthAndUpstreamFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m := newTestManager(Options{})
	defer m.Shutdown(context.Background())

	// Nothing listens on the target port.
	cfg := types.ProxyConfig{TargetHost: "127.0.0.1", TargetPort: freePort(t), ProxyPort: freePort(t)}
	if res := m.Start(cfg); !res.Success {
		t.Fatalf("Start(): %s", res.Error)
	}
	base := fmt.Sprintf("http://127.0.0.1:%d", cfg.ProxyPort)
	client := testClient()

	resp, err := client.Get(base + "/api/data")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var env map[string]any
	json.NewDecoder(resp.Body).Decode(&env)
	resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	for _, key := range []string{"error", "message", "target", "timestamp"} {
		if _, ok := env[key]; !ok {
			t.Errorf("envelope missing %q: %v", key, env)
		}
	}
	if env["error"] != "Proxy Error" {
		t.Errorf("error = %v", env["error"])
	}

	// The listener is unaffected.
	resp, err = client.Get(base + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	var hr types.HealthResponse
	json.NewDecoder(resp.Body).Decode(&hr)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || hr.Status != "healthy" || hr.Proxy.Listening != cfg.ProxyPort {
		t.Errorf("health = %d %+v", resp.StatusCode, hr)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID on health response")
	}
}

func TestManager_JSONBodyReframed(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	type seen struct {
		contentType   string
		contentLength int64
		body          string
		host          string
	}
	got := make(chan seen, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got <- seen{r.Header.Get("Content-Type"), r.ContentLength, string(b), r.Host}
		w.WriteHeader(http.StatusCreated)
	}))
	defer upstream.Close()

	m := newTestManager(Options{})
	defer m.Shutdown(context.Background())

	cfg := types.ProxyConfig{TargetHost: "127.0.0.1", TargetPort: upstreamPort(t, upstream), ProxyPort: freePort(t)}
	m.Start(cfg)

	resp, err := testClient().Post(fmt.Sprintf("http://127.0.0.1:%d/items", cfg.ProxyPort), "application/json", strings.NewReader(`{ "a" : 1 }`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}

	s := <-got
	if s.contentType != "application/json" {
		t.Errorf("Content-Type = %q", s.contentType)
	}
	if s.body != `{"a":1}` || s.contentLength != int64(len(s.body)) {
		t.Errorf("body = %q, Content-Length = %d", s.body, s.contentLength)
	}
	if want := fmt.Sprintf("127.0.0.1:%d", cfg.TargetPort); s.host != want {
		t.Errorf("Host = %q, want %q", s.host, want)
	}
}

func TestManager_ConcurrentStarts(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m := newTestManager(Options{})
	defer m.Shutdown(context.Background())

	ports := []int{freePort(t), freePort(t), freePort(t), freePort(t)}
	var wg sync.WaitGroup
	for _, p := range ports {
		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			m.Start(types.ProxyConfig{TargetHost: "127.0.0.1", TargetPort: 1, ProxyPort: port})
		}(p)
	}
	wg.Wait()

	st := m.Status()
	if !st.IsRunning {
		t.Fatal("no instance running after concurrent starts")
	}

	// Exactly the reported port is bound.
	for _, p := range ports {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", p))
		bound := err != nil
		if ln != nil {
			ln.Close()
		}
		if want := p == st.Config.ProxyPort; bound != want {
			t.Errorf("port %d bound = %v, want %v", p, bound, want)
		}
	}
}

func TestManager_StatusDuringTransitions(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m := newTestManager(Options{})
	defer m.Shutdown(context.Background())

	cfg := types.ProxyConfig{TargetHost: "127.0.0.1", TargetPort: 1, ProxyPort: freePort(t)}
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			st := m.Status()
			if st.IsRunning != (st.Config != nil) {
				t.Errorf("inconsistent status %+v", st)
				return
			}
		}
	}()

	for i := 0; i < 5; i++ {
		m.Start(cfg)
		m.Reconfigure(cfg)
		m.Stop()
	}
	close(stop)
	wg.Wait()
}

func TestManager_ReportsTransitions(t *testing.T) {
	obs := &recordingObserver{}
	metrics := &recordingMetrics{}
	m := newTestManager(Options{Observers: []Observer{obs}, Metrics: metrics})

	cfg := types.ProxyConfig{TargetHost: "127.0.0.1", TargetPort: 1, ProxyPort: freePort(t)}
	m.Start(cfg)
	m.Start(types.ProxyConfig{})
	m.Stop()

	got := obs.all()
	if len(got) != 3 {
		t.Fatalf("observed %d transitions, want 3", len(got))
	}
	if got[0].Operation != types.OperationStart || !got[0].Result.Success || got[0].Requested == nil {
		t.Errorf("first transition = %+v", got[0])
	}
	if got[1].Result.Success {
		t.Errorf("invalid start reported success: %+v", got[1])
	}
	if got[2].Operation != types.OperationStop || got[2].Result.Message != "Proxy server stopped" {
		t.Errorf("stop transition = %+v", got[2])
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	want := []string{"start:true", "start:false", "stop:true"}
	if strings.Join(metrics.ops, ",") != strings.Join(want, ",") {
		t.Errorf("metrics ops = %v, want %v", metrics.ops, want)
	}
	if metrics.running {
		t.Error("metrics still report running after stop")
	}
}

func TestManager_CheckUpstream(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()

	m := newTestManager(Options{})
	defer m.Shutdown(context.Background())
	ctx := context.Background()

	if err := m.CheckUpstream(ctx); err != nil {
		t.Errorf("CheckUpstream() while stopped = %v", err)
	}

	m.Start(types.ProxyConfig{TargetHost: "127.0.0.1", TargetPort: upstreamPort(t, upstream), ProxyPort: freePort(t)})
	if err := m.CheckUpstream(ctx); err != nil {
		t.Errorf("CheckUpstream() = %v", err)
	}

	m.Start(types.ProxyConfig{TargetHost: "127.0.0.1", TargetPort: freePort(t), ProxyPort: freePort(t)})
	if err := m.CheckUpstream(ctx); err == nil {
		t.Error("CheckUpstream() with no upstream should fail")
	}
}

func TestManager_ShutdownDrainsInFlight(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	release := make(chan struct{})
	entered := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		io.WriteString(w, "done")
	}))
	defer upstream.Close()

	m := newTestManager(Options{ShutdownTimeout: 5 * time.Second})
	cfg := types.ProxyConfig{TargetHost: "127.0.0.1", TargetPort: upstreamPort(t, upstream), ProxyPort: freePort(t)}
	m.Start(cfg)

	type result struct {
		body string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := testClient().Get(fmt.Sprintf("http://127.0.0.1:%d/slow", cfg.ProxyPort))
		if err != nil {
			done <- result{err: err}
			return
		}
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		done <- result{body: string(b)}
	}()

	<-entered
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	r := <-done
	if r.err != nil || r.body != "done" {
		t.Errorf("in-flight request = %q, %v", r.body, r.err)
	}
}
