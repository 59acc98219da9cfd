package relay

import (
	"context"
	"sync"

	xerrors "UnifiedMCP-Client/internal/errors"
)

// MemorySink 使用 channel 缓存事件，主要用于测试和本地调试。
type MemorySink struct {
	ch     chan Event
	mu     sync.RWMutex
	closed bool
}

// NewMemorySink 创建一个内存 sink。
func NewMemorySink(size int) *MemorySink {
	if size <= 0 {
		size = 64
	}
	return &MemorySink{ch: make(chan Event, size)}
}

// Publish 将事件写入缓冲区，缓冲区满时阻塞直到 ctx 结束。
func (s *MemorySink) Publish(ctx context.Context, event Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return xerrors.New(xerrors.CodeSinkFailure, "内存 sink 已关闭")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.ch <- event:
		return nil
	}
}

// Events 返回只读事件流，Close 后会被关闭。
func (s *MemorySink) Events() <-chan Event {
	return s.ch
}

// Close 关闭内存 sink。
func (s *MemorySink) Close() error {
	s.mu.Lock()
	if !s.closed {
		close(s.ch)
		s.closed = true
	}
	s.mu.Unlock()
	return nil
}
