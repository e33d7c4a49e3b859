package session

import (
	"sync"

	"pagemock/internal/cdp"
	"pagemock/internal/history"
	"pagemock/internal/logger"
	"pagemock/internal/router"
	"pagemock/internal/rules"
	"pagemock/pkg/model"
)

// Session 把一张规则表和一份调用历史绑定到一个浏览器目标，
// 生命周期与一次测试上下文一致，跨会话不共享任何状态
type Session struct {
	ID      model.SessionID
	Target  model.TargetID
	Config  model.SessionConfig
	Table   *rules.Table
	History *history.Recorder
	Router  *router.Router
	Manager *cdp.Manager
	Events  chan model.Event
}

// Manager 全局会话注册表
type Manager struct {
	mu       sync.RWMutex
	sessions map[model.SessionID]*Session
	byTarget map[model.TargetID]model.SessionID
	log      logger.Logger
}

// NewManager 创建会话注册表
func NewManager(l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		sessions: make(map[model.SessionID]*Session),
		byTarget: make(map[model.TargetID]model.SessionID),
		log:      l,
	}
}

// Put 注册会话。同一目标上已有会话时以替换而非叠加方式进行，
// 返回被顶替的旧会话，由调用方负责拆除，避免单个请求被双重应答。
func (m *Manager) Put(s *Session) (replaced *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if oldID, ok := m.byTarget[s.Target]; ok {
		replaced = m.sessions[oldID]
		delete(m.sessions, oldID)
		m.log.Warn("目标上已有会话，执行替换", "target", string(s.Target), "old", string(oldID), "new", string(s.ID))
	}
	m.sessions[s.ID] = s
	m.byTarget[s.Target] = s.ID
	m.log.Info("注册拦截会话", "sessionID", string(s.ID), "target", string(s.Target))
	return replaced
}

// Get 获取会话
func (m *Manager) Get(id model.SessionID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete 注销会话
func (m *Manager) Delete(id model.SessionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		if m.byTarget[s.Target] == id {
			delete(m.byTarget, s.Target)
		}
		delete(m.sessions, id)
		m.log.Info("注销拦截会话", "sessionID", string(id))
	}
}

// List 返回所有活动会话
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	return list
}
