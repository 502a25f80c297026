package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"xtrader/internal/application/port"
	"xtrader/internal/infrastructure/exchange"
)

// Manager 统一管理所有交易所的 websocket 行情流
// REST 行情仍然是主数据源，流只用来覆盖更新的盘口
type Manager struct {
	mu        sync.Mutex
	streamers map[string]exchange.Streamer
	started   map[string]bool
}

// NewManager 创建 websocket 管理器
func NewManager() *Manager {
	return &Manager{
		streamers: make(map[string]exchange.Streamer),
		started:   make(map[string]bool),
	}
}

// Initialize 登记支持 websocket 的适配器，返回登记数量
// 不支持流的交易所只走 REST，不算失败
func (m *Manager) Initialize(adapters []port.Exchange) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var skipped []string
	for _, ex := range adapters {
		s, ok := ex.(exchange.Streamer)
		if !ok {
			skipped = append(skipped, ex.Name())
			continue
		}
		if _, exists := m.streamers[ex.Name()]; exists {
			log.Warn().Str("exchange", ex.Name()).Msg("stream already registered, overwriting")
		}
		m.streamers[ex.Name()] = s
	}
	if len(skipped) > 0 {
		log.Debug().Strs("exchanges", skipped).Msg("exchanges without websocket stream")
	}
	return len(m.streamers)
}

// Start 启动所有尚未启动的流，直到 ctx 结束
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range m.namesLocked() {
		if m.started[name] {
			continue
		}
		m.streamers[name].Start(ctx)
		m.started[name] = true
		log.Info().Str("exchange", name).Msg("✓ " + name + " websocket stream started")
	}
}

// Streaming returns the exchanges whose stream has been started, sorted.
func (m *Manager) Streaming() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, name := range m.namesLocked() {
		if m.started[name] {
			out = append(out, name)
		}
	}
	return out
}

// Get 获取指定交易所的流
func (m *Manager) Get(name string) (exchange.Streamer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streamers[name]
	return s, ok
}

func (m *Manager) namesLocked() []string {
	out := make([]string, 0, len(m.streamers))
	for name := range m.streamers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
