package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"relaydesk/relay/pkg/cli"
	"relaydesk/relay/pkg/config"
	"relaydesk/relay/pkg/control"
	"relaydesk/relay/pkg/proxy/types"
	"relaydesk/relay/pkg/telemetry/logging"
)

func newUpstream(t *testing.T) (*httptest.Server, int) {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "upstream %s %s", r.Method, r.URL.Path)
	}))
	t.Cleanup(ts.Close)

	u, _ := url.Parse(ts.URL)
	port, _ := strconv.Atoi(u.Port())
	return ts, port
}

func testConfig(t *testing.T, upstreamPort int) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Proxy.TargetHost = "127.0.0.1"
	cfg.Proxy.TargetPort = upstreamPort
	cfg.Proxy.ProxyPort = freePort(t)
	cfg.Server.BindAddress = "127.0.0.1"
	cfg.Control.ListenAddress = "127.0.0.1:0"
	cfg.History.Backend = "memory"
	cfg.History.Retention.PruneSchedule = ""
	cfg.Telemetry.Tracing.Enabled = false
	cfg.Watch = false
	return cfg
}

func startApp(t *testing.T, cfg *config.Config, autostart bool) *app {
	t.Helper()
	logger, err := logging.New(logging.Config{Level: "error", Format: "text", Writer: io.Discard})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}

	a, err := newApp("", cfg, logger)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := a.start(ctx, autostart); err != nil {
		cancel()
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := a.close(shutdownCtx); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return a
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func get(t *testing.T, rawURL string) (int, string) {
	t.Helper()
	resp, err := http.Get(rawURL)
	if err != nil {
		t.Fatalf("GET %s: %v", rawURL, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestApp_AutostartForwards(t *testing.T) {
	_, upstreamPort := newUpstream(t)
	cfg := testConfig(t, upstreamPort)
	a := startApp(t, cfg, true)

	st := a.manager.Status()
	if !st.IsRunning {
		t.Fatal("proxy not running after autostart")
	}

	status, body := get(t, fmt.Sprintf("http://127.0.0.1:%d/items", cfg.Proxy.ProxyPort))
	if status != http.StatusOK || body != "upstream GET /items" {
		t.Errorf("proxied response = %d %q", status, body)
	}

	status, body = get(t, fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Proxy.ProxyPort))
	if status != http.StatusOK || !strings.Contains(body, `"status":"healthy"`) {
		t.Errorf("health = %d %q", status, body)
	}
}

func TestApp_NoAutostart(t *testing.T) {
	_, upstreamPort := newUpstream(t)
	a := startApp(t, testConfig(t, upstreamPort), false)

	if a.manager.Status().IsRunning {
		t.Error("proxy running without autostart")
	}
	if a.control.Addr() == nil {
		t.Fatal("control API not listening")
	}
}

func TestApp_AutostartFailureKeepsControlAPI(t *testing.T) {
	cfg := testConfig(t, 3000)
	busy := httptest.NewServer(http.NotFoundHandler())
	defer busy.Close()
	u, _ := url.Parse(busy.URL)
	cfg.Proxy.ProxyPort, _ = strconv.Atoi(u.Port())

	a := startApp(t, cfg, true)
	if a.manager.Status().IsRunning {
		t.Error("proxy running on a busy port")
	}

	st, err := control.NewClient(a.control.Addr().String()).Status(context.Background())
	if err != nil {
		t.Fatalf("control status: %v", err)
	}
	if st.IsRunning {
		t.Error("control API reports running")
	}
}

func TestApp_Reload(t *testing.T) {
	_, upstreamPort := newUpstream(t)
	_, otherPort := newUpstream(t)
	cfg := testConfig(t, upstreamPort)
	a := startApp(t, cfg, true)

	next := *cfg
	next.Proxy.TargetPort = otherPort
	next.Telemetry.Logging.Level = "debug"
	a.reload(&next)

	st := a.manager.Status()
	if !st.IsRunning || st.Config.TargetPort != otherPort {
		t.Errorf("status after reload = %+v", st)
	}
	if got := a.store.Proxy().TargetPort; got != otherPort {
		t.Errorf("store target port = %d, want %d", got, otherPort)
	}
	if a.logger.Level().String() != "DEBUG" {
		t.Errorf("log level = %v, want DEBUG", a.logger.Level())
	}
}

func TestApp_ReloadWhileStopped(t *testing.T) {
	_, upstreamPort := newUpstream(t)
	cfg := testConfig(t, upstreamPort)
	a := startApp(t, cfg, false)

	next := *cfg
	next.Proxy.TargetPort = upstreamPort + 1
	a.reload(&next)

	if a.manager.Status().IsRunning {
		t.Error("reload started a stopped proxy")
	}
	if got := a.store.Proxy().TargetPort; got != upstreamPort+1 {
		t.Errorf("store target port = %d, want %d", got, upstreamPort+1)
	}
}

func TestControlCommands(t *testing.T) {
	_, upstreamPort := newUpstream(t)
	_, otherPort := newUpstream(t)
	cfg := testConfig(t, upstreamPort)
	a := startApp(t, cfg, false)
	addr := a.control.Addr().String()

	out, err := execute(t, "status", "--control", addr)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Proxy: stopped") {
		t.Errorf("status output = %q", out)
	}

	out, err = execute(t, "start", "--control", addr)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	want := fmt.Sprintf("✓ Proxy server started on port %d", cfg.Proxy.ProxyPort)
	if !strings.Contains(out, want) {
		t.Errorf("start output = %q, want %q", out, want)
	}

	out, err = execute(t, "status", "--control", addr, "-o", "json")
	if err != nil {
		t.Fatalf("status -o json: %v", err)
	}
	var st types.Status
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode status: %v\n%s", err, out)
	}
	if !st.IsRunning || st.Config == nil || st.Config.TargetPort != upstreamPort {
		t.Errorf("status = %+v", st)
	}

	if _, err := execute(t, "reconfigure", "--control", addr, "--target-port", strconv.Itoa(otherPort)); err != nil {
		t.Fatalf("reconfigure: %v", err)
	}
	if got := a.manager.Status().Config.TargetPort; got != otherPort {
		t.Errorf("running target port = %d, want %d", got, otherPort)
	}
	if got := a.store.Proxy().TargetPort; got != upstreamPort {
		t.Errorf("reconfigure changed the saved route to %d", got)
	}

	out, err = execute(t, "stop", "--control", addr)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !strings.Contains(out, "✓ Proxy server stopped") {
		t.Errorf("stop output = %q", out)
	}

	waitFor(t, func() bool {
		resp, err := control.NewClient(addr).Events(context.Background(), control.EventsQuery{})
		return err == nil && resp.Total == 3
	})

	out, err = execute(t, "events", "--control", addr, "-o", "json")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	var events control.EventsResponse
	if err := json.Unmarshal([]byte(out), &events); err != nil {
		t.Fatalf("decode events: %v\n%s", err, out)
	}
	if len(events.Events) != 3 {
		t.Fatalf("events = %d, want 3", len(events.Events))
	}
	if events.Events[0].Operation != types.OperationStop {
		t.Errorf("newest event = %s, want stop", events.Events[0].Operation)
	}

	out, err = execute(t, "events", "--control", addr, "--operation", "start")
	if err != nil {
		t.Fatalf("events --operation: %v", err)
	}
	if !strings.Contains(out, "(1 of 1)") {
		t.Errorf("events text output = %q", out)
	}
}

func TestControlCommands_Failures(t *testing.T) {
	_, upstreamPort := newUpstream(t)
	a := startApp(t, testConfig(t, upstreamPort), false)
	addr := a.control.Addr().String()

	out, err := execute(t, "start", "--control", addr, "--proxy-port", strconv.Itoa(upstreamPort))
	if err == nil {
		t.Fatal("start on the upstream port succeeded")
	}
	if !strings.Contains(out, "✗") {
		t.Errorf("failure output = %q", out)
	}
	if cli.ExitCode(err) != cli.ExitFailure {
		t.Errorf("exitCode = %d, want 1", cli.ExitCode(err))
	}

	if _, err := execute(t, "reconfigure", "--control", addr); cli.ExitCode(err) != cli.ExitUsage {
		t.Errorf("reconfigure without flags: err = %v, want config error", err)
	}

	if _, err := execute(t, "status", "--control", "127.0.0.1:1"); err == nil {
		t.Error("status against a closed port succeeded")
	}

	if _, err := execute(t, "status", "--control", addr, "-o", "yaml"); cli.ExitCode(err) != cli.ExitUsage {
		t.Errorf("unknown output format: err = %v, want config error", err)
	}
}
