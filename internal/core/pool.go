package core

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNoFreeProfile 所有配置文件都已被占用
var ErrNoFreeProfile = errors.New("没有空闲的配置文件,无法启动新的并发运行")

// ProfilePool 并发运行之间的配置文件分配
//
// 同一个配置文件ID不会同时被两个运行持有。Slot为每个ID分配稳定的序号,
// 用于为不同配置文件派生互不冲突的调试端口。
type ProfilePool struct {
	mu       sync.Mutex
	ids      []string
	slots    map[string]int
	reserved map[string]struct{}
}

// NewProfilePool 创建配置文件池,重复和空ID被忽略
func NewProfilePool(ids []string) *ProfilePool {
	p := &ProfilePool{
		slots:    make(map[string]int),
		reserved: make(map[string]struct{}),
	}
	p.Refresh(ids)
	return p
}

// Refresh 更新可分配的配置文件列表
// 已预留的ID即使不在新列表中也保持预留,直到被Release
func (p *ProfilePool) Refresh(ids []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ids = p.ids[:0]
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		p.ids = append(p.ids, id)
		if _, ok := p.slots[id]; !ok {
			p.slots[id] = len(p.slots)
		}
	}
}

// Reserve 预留第一个空闲的配置文件
func (p *ProfilePool) Reserve() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reserveFirst(p.ids)
}

// ReserveFrom 只在给定ID中预留第一个空闲且属于池的配置文件
func (p *ProfilePool) ReserveFrom(ids []string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reserveFirst(ids)
}

// ReserveID 预留指定的配置文件
func (p *ProfilePool) ReserveID(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.slots[id]; !ok || !p.contains(id) {
		return fmt.Errorf("配置文件不存在: %s", id)
	}
	if _, held := p.reserved[id]; held {
		return fmt.Errorf("%w: %s 正在被其他运行使用", ErrNoFreeProfile, id)
	}
	p.reserved[id] = struct{}{}
	return nil
}

// Release 释放配置文件(幂等)
func (p *ProfilePool) Release(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.reserved, id)
}

// Slot 配置文件的稳定序号,未知ID返回-1
func (p *ProfilePool) Slot(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if slot, ok := p.slots[id]; ok {
		return slot
	}
	return -1
}

// Available 空闲配置文件数量
func (p *ProfilePool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, id := range p.ids {
		if _, held := p.reserved[id]; !held {
			n++
		}
	}
	return n
}

// IDs 可分配的配置文件ID(按加入顺序)
func (p *ProfilePool) IDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ids...)
}

// Size 配置文件总数
func (p *ProfilePool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ids)
}

func (p *ProfilePool) reserveFirst(candidates []string) (string, bool) {
	for _, id := range candidates {
		if !p.contains(id) {
			continue
		}
		if _, held := p.reserved[id]; held {
			continue
		}
		p.reserved[id] = struct{}{}
		return id, true
	}
	return "", false
}

func (p *ProfilePool) contains(id string) bool {
	for _, known := range p.ids {
		if known == id {
			return true
		}
	}
	return false
}
