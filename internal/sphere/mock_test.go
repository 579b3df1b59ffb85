package sphere

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/RecoveryAshes/sitewalker/internal/browsing"
	"github.com/RecoveryAshes/sitewalker/internal/models"
	"github.com/rs/zerolog"
)

type mockSession struct {
	UUID      string `json:"uuid"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	DebugPort int    `json:"debug_port,omitempty"`
}

// mockAPI 内存中的控制API
type mockAPI struct {
	mu sync.Mutex

	sessions  []mockSession
	debugPort int
	conflict  bool
	stopDelay time.Duration

	startCalls int
	stopCalls  int
	startBody  StartRequest
	lastAuth   string
}

func (m *mockAPI) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sessions", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.lastAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, m.sessions)
	})
	mux.HandleFunc("POST /sessions/start", func(w http.ResponseWriter, r *http.Request) {
		var req StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		m.startCalls++
		m.startBody = req
		if m.conflict {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "session already running"})
			return
		}
		for i := range m.sessions {
			if m.sessions[i].UUID == req.ProfileID {
				m.sessions[i].Status = "automationRunning"
				m.sessions[i].DebugPort = m.debugPort
			}
		}
		writeJSON(w, http.StatusOK, StartResponse{ProfileID: req.ProfileID, DebugPort: m.debugPort})
	})
	mux.HandleFunc("POST /sessions/stop", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		m.mu.Lock()
		m.stopCalls++
		for i := range m.sessions {
			if m.sessions[i].UUID == req["uuid"] {
				m.sessions[i].Status = "stopped"
			}
		}
		delay := m.stopDelay
		m.mu.Unlock()

		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"uuid": req["uuid"]})
	})
	mux.HandleFunc("POST /sessions/create_quick", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, mockSession{UUID: "5f0e1c2a-quick", Name: "Quick Session 1", Status: "stopped"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (m *mockAPI) counts() (start, stop int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCalls, m.stopCalls
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// debugServer 模拟浏览器调试端点的 /json
func debugServer(t *testing.T) (*httptest.Server, int) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, []Target{{ID: "A1", Type: "page", URL: "about:blank"}})
	}))
	t.Cleanup(srv.Close)
	return srv, serverPort(t, srv)
}

func serverPort(t *testing.T, srv *httptest.Server) int {
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

// closedPort 返回一个当前没有监听的端口
func closedPort(t *testing.T) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("监听失败: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	return port
}

type stubPage struct{}

func (stubPage) Navigate(_ context.Context, _ string) error { return nil }
func (stubPage) ScrollMetrics(context.Context) (browsing.ScrollMetrics, error) {
	return browsing.ScrollMetrics{}, nil
}
func (stubPage) ScrollTo(context.Context, int) error { return nil }
func (stubPage) Snapshot(context.Context) (browsing.Snapshot, error) {
	return browsing.Snapshot{}, nil
}

type fakeDriver struct {
	mu     sync.Mutex
	closed bool
}

func (d *fakeDriver) Page(context.Context) (browsing.Page, error) { return stubPage{}, nil }

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDriver) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type fakeDialer struct {
	mu        sync.Mutex
	endpoints []string
	driver    *fakeDriver
}

func (d *fakeDialer) Dial(_ context.Context, endpoint string) (Driver, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.endpoints = append(d.endpoints, endpoint)
	if d.driver == nil {
		d.driver = &fakeDriver{}
	}
	return d.driver, nil
}

func newTestClient(baseURL string) *Client {
	return NewClient(ClientConfig{
		BaseURL:     baseURL,
		Timeout:     2 * time.Second,
		StopTimeout: 2 * time.Second,
	}, zerolog.Nop())
}

func newTestBroker(client *Client, portRange int, dialer Dialer, stopOnExit bool) *Broker {
	retrier := browsing.NewRetrier(1, 10*time.Millisecond, nil, models.NewRetryStats(), zerolog.Nop())
	prober := NewProber("127.0.0.1", portRange, time.Second, zerolog.Nop())
	return NewBroker(client, prober, dialer, retrier, BrokerConfig{StopOnExit: stopOnExit}, zerolog.Nop())
}

// cdpServer 模拟浏览器的 /json/version 与DevTools WebSocket
// 只实现rod客户端用到的帧格式: 客户端发送带掩码的文本帧,服务端返回不带掩码的文本帧
type cdpServer struct {
	srv *httptest.Server

	mu      sync.Mutex
	methods []string
	conns   int

	disconnected chan struct{}
	once         sync.Once
}

func newCDPServer(t *testing.T) *cdpServer {
	c := &cdpServer{disconnected: make(chan struct{})}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /json/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"Browser":              "Chrome/120.0.0.0",
			"webSocketDebuggerUrl": "ws://" + r.Host + "/devtools/browser/fake",
		})
	})
	mux.HandleFunc("GET /json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []Target{{ID: "A1", Type: "page", URL: "about:blank"}})
	})
	mux.HandleFunc("GET /devtools/browser/fake", c.serveWebSocket(t))
	c.srv = httptest.NewServer(mux)
	t.Cleanup(c.srv.Close)
	return c
}

func (c *cdpServer) port(t *testing.T) int {
	return serverPort(t, c.srv)
}

func (c *cdpServer) endpoint(t *testing.T) string {
	return "127.0.0.1:" + strconv.Itoa(c.port(t))
}

func (c *cdpServer) called(method string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Contains(c.methods, method)
}

func (c *cdpServer) connections() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conns
}

// waitDisconnected 等待客户端关闭WebSocket
func (c *cdpServer) waitDisconnected(d time.Duration) bool {
	select {
	case <-c.disconnected:
		return true
	case <-time.After(d):
		return false
	}
}

func (c *cdpServer) serveWebSocket(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Errorf("测试服务器不支持Hijack")
			return
		}
		conn, rw, err := hj.Hijack()
		if err != nil {
			t.Errorf("Hijack失败: %v", err)
			return
		}
		defer conn.Close()

		sum := sha1.Sum([]byte(r.Header.Get("Sec-WebSocket-Key") + "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"))
		_, _ = fmt.Fprintf(conn, "HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Accept: %s\r\n\r\n",
			base64.StdEncoding.EncodeToString(sum[:]))

		c.mu.Lock()
		c.conns++
		c.mu.Unlock()
		defer c.once.Do(func() { close(c.disconnected) })

		for {
			payload, err := readClientFrame(rw.Reader)
			if err != nil {
				return
			}
			var req struct {
				ID     int    `json:"id"`
				Method string `json:"method"`
			}
			if err := json.Unmarshal(payload, &req); err != nil {
				return
			}
			c.mu.Lock()
			c.methods = append(c.methods, req.Method)
			c.mu.Unlock()

			if err := writeServerFrame(conn, cdpResult(req.ID, req.Method)); err != nil {
				return
			}
		}
	}
}

func cdpResult(id int, method string) []byte {
	var result any = map[string]any{}
	switch method {
	case "Target.getTargets":
		result = map[string]any{"targetInfos": []map[string]any{{
			"targetId": "A1", "type": "page", "title": "", "url": "about:blank",
			"attached": false, "canAccessOpener": false,
		}}}
	case "Target.attachToTarget":
		result = map[string]any{"sessionId": "S1"}
	}
	data, _ := json.Marshal(map[string]any{"id": id, "result": result})
	return data
}

func readClientFrame(r *bufio.Reader) ([]byte, error) {
	var head [2]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}
	size := uint64(head[1] & 0x7f)
	switch size {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, err
		}
		size = uint64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, err
		}
		size = binary.BigEndian.Uint64(ext[:])
	}
	var mask [4]byte
	if head[1]&0x80 != 0 {
		if _, err := io.ReadFull(r, mask[:]); err != nil {
			return nil, err
		}
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	for i := range payload {
		payload[i] ^= mask[i%4]
	}
	return payload, nil
}

func writeServerFrame(w io.Writer, payload []byte) error {
	frame := []byte{0x81}
	switch size := len(payload); {
	case size <= 125:
		frame = append(frame, byte(size))
	case size < 65536:
		frame = append(frame, 126)
		frame = binary.BigEndian.AppendUint16(frame, uint16(size))
	default:
		frame = append(frame, 127)
		frame = binary.BigEndian.AppendUint64(frame, uint64(size))
	}
	_, err := w.Write(append(frame, payload...))
	return err
}
