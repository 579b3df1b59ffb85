package browsing

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeClock 虚拟时钟: After立即触发并把当前时间前移d
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	t := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- t
	return ch
}

var errFake = errors.New("模拟失败")

// fakePage 内存中的页面
type fakePage struct {
	mu sync.Mutex

	url     string
	metrics ScrollMetrics
	// htmls 依次返回的页面HTML,用完后重复最后一个
	htmls []string

	navErr     error
	metricsErr error
	snapErr    error

	navigated    []string
	snapCalls    int
	metricsCalls int
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	if p.navErr != nil {
		return p.navErr
	}
	p.url = url
	return nil
}

func (p *fakePage) ScrollMetrics(context.Context) (ScrollMetrics, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metricsCalls++
	if p.metricsErr != nil {
		return ScrollMetrics{}, p.metricsErr
	}
	return p.metrics, nil
}

func (p *fakePage) ScrollTo(_ context.Context, top int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics.ScrollTop = top
	return nil
}

func (p *fakePage) Snapshot(context.Context) (Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.snapErr != nil {
		return Snapshot{}, p.snapErr
	}
	html := ""
	if len(p.htmls) > 0 {
		idx := min(p.snapCalls, len(p.htmls)-1)
		html = p.htmls[idx]
	}
	p.snapCalls++
	return Snapshot{URL: p.url, HTML: html}, nil
}

func (p *fakePage) visits() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigated...)
}

const rootURL = "https://www.apple.com/jp/"

const homeHTML = `<html><body>
<nav class="globalnav">
  <a href="/jp/mac/">Mac</a>
  <a href="/jp/ipad/">iPad</a>
  <a href="/jp/iphone/">iPhone</a>
  <a href="/jp/search/?q=mac">検索</a>
  <a href="https://www.apple.com/jp/">Apple</a>
  <a href="/jp/watch/#overview">Watch</a>
  <a href="https://www.example.com/jp/mac/">外部</a>
</nav>
<div class="hero"><a href="https://www.apple.com/jp/iphone/">iPhone 特集</a></div>
<div class="tile"><a href="/jp/airpods/">  AirPods
   Pro </a></div>
<footer><a href="/jp/legal/">Legal</a></footer>
</body></html>`
