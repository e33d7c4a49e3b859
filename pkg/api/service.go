package api

import (
	"pagemock/internal/logger"
	"pagemock/internal/service"
	"pagemock/pkg/model"
)

// Service 服务接口
type Service interface {
	// Setup 在页面导航前为目标安装拦截会话并返回会话 ID
	Setup(cfg model.SessionConfig, target model.TargetID, rules []model.MockRule) (model.SessionID, error)

	// Update 热替换已安装规则的响应字段
	Update(id model.SessionID, pattern, method string, body any, status int) error

	// History 返回会话调用历史快照
	History(id model.SessionID) ([]model.HistoryEntry, error)

	// FilterHistory 按方法与 URL 子串过滤调用历史
	FilterHistory(id model.SessionID, method, urlSubstr string) ([]model.HistoryEntry, error)

	// Stats 返回规则命中统计
	Stats(id model.SessionID) (model.MatchStats, error)

	// SubscribeEvents 订阅会话事件流
	SubscribeEvents(id model.SessionID) (<-chan model.Event, error)

	// Teardown 拆除会话
	Teardown(id model.SessionID) error
}

// NewService 创建并返回服务接口实现
func NewService(l logger.Logger) Service {
	return service.New(l)
}
