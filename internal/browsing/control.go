package browsing

import (
	"context"
	"sync"
	"time"
)

// SliceInterval 可中断等待的最大分片长度
// 停止信号最迟在一个分片内被观察到
const SliceInterval = 500 * time.Millisecond

// Clock 时间源,测试中可替换为虚拟时钟
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock 系统时钟
var RealClock Clock = realClock{}

// Control 单次运行的暂停/停止信号
//
// 停止是电平触发的: 一旦Stop被调用,所有后续检查点都会看到停止状态。
// 暂停只在检查点生效,不会打断正在进行的等待。
type Control struct {
	clock Clock

	mu       sync.Mutex
	stopCh   chan struct{}
	stopped  bool
	paused   bool
	resumeCh chan struct{}
}

// NewControl 创建使用系统时钟的Control
func NewControl() *Control {
	return NewControlWithClock(RealClock)
}

// NewControlWithClock 创建使用指定时钟的Control
func NewControlWithClock(clock Clock) *Control {
	if clock == nil {
		clock = RealClock
	}
	return &Control{
		clock:  clock,
		stopCh: make(chan struct{}),
	}
}

// Clock 返回Control使用的时钟
func (c *Control) Clock() Clock {
	return c.clock
}

// Stop 发出停止信号(幂等)
func (c *Control) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.stopCh)
	if c.paused {
		c.paused = false
		close(c.resumeCh)
	}
}

// Pause 请求暂停(幂等),在下一个检查点生效
func (c *Control) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.paused {
		return
	}
	c.paused = true
	c.resumeCh = make(chan struct{})
}

// Resume 解除暂停(幂等)
func (c *Control) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	close(c.resumeCh)
}

// Stopped 是否已收到停止信号
func (c *Control) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// Paused 是否处于暂停状态
func (c *Control) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// ShouldStop 检查停止信号或context取消
func (c *Control) ShouldStop(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return c.Stopped()
}

// Checkpoint 检查点: 暂停时阻塞直到恢复
// 返回false表示应当停止
func (c *Control) Checkpoint(ctx context.Context) bool {
	for {
		c.mu.Lock()
		stopped, paused, resumeCh := c.stopped, c.paused, c.resumeCh
		c.mu.Unlock()

		if stopped || ctx.Err() != nil {
			return false
		}
		if !paused {
			return true
		}

		select {
		case <-resumeCh:
		case <-c.stopCh:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// Sleep 分片等待d,期间收到停止信号立即返回false
func (c *Control) Sleep(ctx context.Context, d time.Duration) bool {
	remaining := d
	for remaining > 0 {
		if c.ShouldStop(ctx) {
			return false
		}
		step := min(remaining, SliceInterval)
		select {
		case <-c.stopCh:
			return false
		case <-ctx.Done():
			return false
		case <-c.clock.After(step):
		}
		remaining -= step
	}
	return !c.ShouldStop(ctx)
}
