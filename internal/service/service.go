// Package service 编排会话的建立、运行与拆除，是公开 API 的实现。
package service

import (
	"fmt"

	"github.com/google/uuid"

	"pagemock/internal/cdp"
	"pagemock/internal/history"
	"pagemock/internal/logger"
	"pagemock/internal/router"
	"pagemock/internal/rules"
	"pagemock/internal/session"
	"pagemock/internal/storage"
	"pagemock/pkg/model"
)

const eventBuffer = 256

// Service 服务实现
type Service struct {
	log      logger.Logger
	sessions *session.Manager
}

// New 创建服务
func New(l logger.Logger) *Service {
	if l == nil {
		l = logger.NewNop()
	}
	return &Service{log: l, sessions: session.NewManager(l)}
}

// Setup 在页面导航前为目标安装拦截会话。规则编译失败立即报错，
// 同一目标上的旧会话先被拆除再注册新会话。
func (s *Service) Setup(cfg model.SessionConfig, target model.TargetID, mockRules []model.MockRule) (model.SessionID, error) {
	table, err := rules.New(mockRules)
	if err != nil {
		return "", fmt.Errorf("install rules: %w", err)
	}

	mgr := cdp.New(cfg.DevToolsURL, cfg.ProcessTimeoutMS, s.log)
	if err := mgr.AttachTarget(target); err != nil {
		return "", err
	}

	id := model.SessionID(uuid.NewString())
	rec := history.New()
	events := make(chan model.Event, eventBuffer)
	rt := router.New(router.Config{
		Table:       table,
		History:     rec,
		PassThrough: cfg.Passthrough(),
		Session:     id,
		Target:      mgr.Target(),
		Events:      events,
		Logger:      s.log,
	})
	mgr.SetRouter(rt)

	sess := &session.Session{
		ID:      id,
		Target:  mgr.Target(),
		Config:  cfg,
		Table:   table,
		History: rec,
		Router:  rt,
		Manager: mgr,
		Events:  events,
	}
	if old := s.sessions.Put(sess); old != nil {
		s.teardown(old)
	}

	if err := mgr.Enable(); err != nil {
		s.sessions.Delete(id)
		_ = mgr.Detach()
		return "", fmt.Errorf("enable interception: %w", err)
	}
	s.log.Info("拦截会话已建立", "sessionID", string(id), "target", string(mgr.Target()), "rules", table.Len())
	return id, nil
}

// Update 热替换已安装规则的响应字段
func (s *Service) Update(id model.SessionID, pattern, method string, body any, status int) error {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return fmt.Errorf("unknown session %q", string(id))
	}
	return sess.Router.Update(pattern, method, body, status)
}

// History 返回会话调用历史快照
func (s *Service) History(id model.SessionID) ([]model.HistoryEntry, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown session %q", string(id))
	}
	return sess.Router.History(), nil
}

// FilterHistory 按方法与 URL 子串过滤调用历史
func (s *Service) FilterHistory(id model.SessionID, method, urlSubstr string) ([]model.HistoryEntry, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown session %q", string(id))
	}
	return sess.Router.FilterHistory(method, urlSubstr), nil
}

// Stats 返回规则命中统计
func (s *Service) Stats(id model.SessionID) (model.MatchStats, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return model.MatchStats{}, fmt.Errorf("unknown session %q", string(id))
	}
	return sess.Router.Stats(), nil
}

// SubscribeEvents 订阅会话事件流
func (s *Service) SubscribeEvents(id model.SessionID) (<-chan model.Event, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown session %q", string(id))
	}
	return sess.Events, nil
}

// Teardown 拆除会话：停止拦截、断开连接，按配置归档历史
func (s *Service) Teardown(id model.SessionID) error {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return fmt.Errorf("unknown session %q", string(id))
	}
	s.sessions.Delete(id)
	return s.teardown(sess)
}

func (s *Service) teardown(sess *session.Session) error {
	if err := sess.Manager.Disable(); err != nil {
		s.log.Debug("停止拦截失败", "sessionID", string(sess.ID), "error", err.Error())
	}
	if err := sess.Manager.Detach(); err != nil {
		s.log.Debug("断开目标失败", "sessionID", string(sess.ID), "error", err.Error())
	}

	if dsn := sess.Config.ArchiveDSN; dsn != "" {
		arch, err := storage.Open(dsn, s.log)
		if err != nil {
			return fmt.Errorf("open history archive: %w", err)
		}
		defer arch.Close()
		if err := arch.SaveHistory(sess.ID, sess.History.Snapshot()); err != nil {
			return fmt.Errorf("archive history: %w", err)
		}
		s.log.Info("调用历史已归档", "sessionID", string(sess.ID), "dsn", dsn, "entries", sess.History.Len())
	}
	return nil
}
