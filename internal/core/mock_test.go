package core

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/RecoveryAshes/sitewalker/internal/browsing"
	"github.com/RecoveryAshes/sitewalker/internal/models"
	"github.com/RecoveryAshes/sitewalker/internal/sphere"
	"github.com/rs/zerolog"
)

const testRootURL = "https://www.apple.com/jp/"

const testHomeHTML = `<html><body>
<nav class="globalnav">
  <a href="/jp/mac/">Mac</a>
  <a href="/jp/ipad/">iPad</a>
  <a href="/jp/search/?q=mac">検索</a>
</nav>
<div class="tile"><a href="/jp/airpods/">AirPods</a></div>
</body></html>`

type apiSession struct {
	UUID      string `json:"uuid"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	DebugPort int    `json:"debug_port,omitempty"`
}

// controlAPI 内存中的控制API
type controlAPI struct {
	mu         sync.Mutex
	sessions   []apiSession
	debugPort  int
	startCalls int
	stopCalls  int
}

func (m *controlAPI) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sessions", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		writeJSON(w, http.StatusOK, m.sessions)
	})
	mux.HandleFunc("POST /sessions/start", func(w http.ResponseWriter, r *http.Request) {
		var req sphere.StartRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		m.mu.Lock()
		defer m.mu.Unlock()
		m.startCalls++
		for i := range m.sessions {
			if m.sessions[i].UUID == req.ProfileID {
				m.sessions[i].Status = "running"
				m.sessions[i].DebugPort = m.debugPort
			}
		}
		writeJSON(w, http.StatusOK, sphere.StartResponse{ProfileID: req.ProfileID, DebugPort: m.debugPort})
	})
	mux.HandleFunc("POST /sessions/stop", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		m.mu.Lock()
		defer m.mu.Unlock()
		m.stopCalls++
		for i := range m.sessions {
			if m.sessions[i].UUID == req["uuid"] {
				m.sessions[i].Status = "stopped"
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"uuid": req["uuid"]})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (m *controlAPI) counts() (start, stop int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCalls, m.stopCalls
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// debugEndpoint 模拟浏览器调试端点,返回端口
func debugEndpoint(t *testing.T) int {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []sphere.Target{{ID: "T1", Type: "page", URL: "about:blank"}})
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("解析测试服务器地址失败: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("解析测试服务器端口失败: %v", err)
	}
	return port
}

func closedPort(t *testing.T) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("监听失败: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	return port
}

// testPage 页面高度等于视口,滚动立即结束
type testPage struct {
	mu        sync.Mutex
	url       string
	navigated []string
}

func (p *testPage) Navigate(_ context.Context, u string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = u
	p.navigated = append(p.navigated, u)
	return nil
}

func (p *testPage) ScrollMetrics(context.Context) (browsing.ScrollMetrics, error) {
	return browsing.ScrollMetrics{ScrollHeight: 800, ClientHeight: 800}, nil
}

func (p *testPage) ScrollTo(context.Context, int) error { return nil }

func (p *testPage) Snapshot(context.Context) (browsing.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return browsing.Snapshot{URL: p.url, HTML: testHomeHTML}, nil
}

func (p *testPage) visits() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigated...)
}

type testDriver struct {
	page   *testPage
	mu     sync.Mutex
	closed bool
}

func (d *testDriver) Page(context.Context) (browsing.Page, error) { return d.page, nil }

func (d *testDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// testDialer 每次Dial创建独立的驱动
type testDialer struct {
	mu      sync.Mutex
	drivers []*testDriver
}

func (d *testDialer) Dial(context.Context, string) (sphere.Driver, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	drv := &testDriver{page: &testPage{}}
	d.drivers = append(d.drivers, drv)
	return drv, nil
}

func (d *testDialer) all() []*testDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*testDriver(nil), d.drivers...)
}

// testClock 虚拟时钟: After立即触发并把当前时间前移d
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	t := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- t
	return ch
}

func newTestEnvironment(t *testing.T, baseURL string, ids []string, dialer sphere.Dialer) *Environment {
	t.Helper()
	client := sphere.NewClient(sphere.ClientConfig{
		BaseURL:     baseURL,
		Timeout:     2 * time.Second,
		StopTimeout: 2 * time.Second,
	}, zerolog.Nop())

	scope, err := browsing.DefaultScope(testRootURL)
	if err != nil {
		t.Fatalf("推导链接范围失败: %v", err)
	}
	return &Environment{
		Pool:   NewProfilePool(ids),
		Client: client,
		Prober: sphere.NewProber("127.0.0.1", 0, time.Second, zerolog.Nop()),
		Dialer: dialer,
		Site: SiteSettings{
			RootURL:         testRootURL,
			Scope:           scope,
			BlockedPatterns: browsing.DefaultBlockedPatterns,
		},
		Session: SessionSettings{DebugPort: 12345, StopOnExit: true},
	}
}

func quickRunConfig() models.RunConfig {
	return models.RunConfig{
		PerPageDuration:     0,
		MajorCycles:         1,
		MinorCyclesPerMajor: 2,
		MaxRetries:          1,
		RetryDelay:          10 * time.Millisecond,
	}
}
