package relay

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/zhouzirui/live-interpreter/backend/internal/observe"
)

// Registry 进程内活跃会话表，计数用于诊断
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	count    atomic.Int64
	metrics  *observe.Metrics
	logger   *log.Logger
}

// NewRegistry 创建连接注册表
func NewRegistry(metrics *observe.Metrics) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		metrics:  metrics,
		logger:   log.WithPrefix("relay"),
	}
}

// Add 登记会话；id 已被占用时返回 false
func (r *Registry) Add(s *Session) bool {
	r.mu.Lock()
	if _, exists := r.sessions[s.ID()]; exists {
		r.mu.Unlock()
		return false
	}
	r.sessions[s.ID()] = s
	r.mu.Unlock()

	r.count.Add(1)
	r.metrics.SessionOpened(context.Background())
	r.logger.Info("client connected", "session", s.ID(), "active", r.Count())
	return true
}

// Remove 注销会话，只有第一次调用返回 true
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	_, exists := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !exists {
		return false
	}
	r.count.Add(-1)
	r.metrics.SessionClosed(context.Background())
	r.logger.Info("client disconnected", "session", id, "active", r.Count())
	return true
}

// Count 当前活跃会话数
func (r *Registry) Count() int {
	return int(r.count.Load())
}

// CloseAll 关闭所有会话，用于进程退出
func (r *Registry) CloseAll() {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		s.Close()
	}
}
