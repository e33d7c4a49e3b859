// Package router 实现拦截路由的决策核心：对每个到达的请求
// 查询规则表，合成响应或放行，并记录调用历史。
// 决策不依赖任何跨请求的可变暂存状态，并发请求互不影响。
package router

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"pagemock/internal/history"
	"pagemock/internal/logger"
	"pagemock/internal/rules"
	"pagemock/pkg/model"
	"pagemock/pkg/traffic"
)

// Decision 单次请求的处置结果
type Decision struct {
	Matched     bool
	Rule        *model.RuleID
	Response    *traffic.Response // Matched 且序列化成功时非空
	Err         error             // 响应体无法序列化
	PassThrough bool              // 未匹配时是否放行到真实网络
}

// Config 路由器依赖
type Config struct {
	Table       *rules.Table
	History     *history.Recorder
	PassThrough bool
	Session     model.SessionID
	Target      model.TargetID
	Events      chan model.Event
	Logger      logger.Logger
}

// Router 绑定一张规则表和一份调用历史，归属一个拦截会话
type Router struct {
	table       *rules.Table
	history     *history.Recorder
	passThrough bool
	session     model.SessionID
	target      model.TargetID
	events      chan model.Event
	log         logger.Logger

	statsMu sync.Mutex
	stats   model.MatchStats
}

// New 创建路由器
func New(cfg Config) *Router {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Router{
		table:       cfg.Table,
		history:     cfg.History,
		passThrough: cfg.PassThrough,
		session:     cfg.Session,
		target:      cfg.Target,
		events:      cfg.Events,
		log:         log,
		stats:       model.MatchStats{ByRule: make(map[model.RuleID]int64)},
	}
}

// Handle 对一次到达的请求执行匹配与决策。匹配-记录相对规则表的
// Update 原子进行：请求观察到的是其求值时刻的表状态。
// 每个请求恰好产生一条历史记录，命中与否都记。
func (r *Router) Handle(req *traffic.Request) Decision {
	rule, ok := r.table.Eval(req.URL, req.Method)

	entry := model.HistoryEntry{
		URL:       req.URL,
		Method:    req.Method,
		Matched:   ok,
		Timestamp: time.Now().UnixMilli(),
	}

	if !ok {
		r.history.Record(entry)
		r.count(nil)
		r.Emit("passed", nil, req, 0)
		r.log.Debug("请求未命中任何规则", "url", req.URL, "method", req.Method, "passThrough", r.passThrough)
		return Decision{PassThrough: r.passThrough}
	}

	rid := rule.ID
	entry.Rule = &rid
	r.history.Record(entry)
	r.count(&rid)

	body, err := json.Marshal(rule.Body)
	if err != nil {
		r.Emit("failed", &rid, req, 0)
		r.log.Err(err, "响应体序列化失败", "rule", string(rid), "url", req.URL)
		return Decision{
			Matched: true,
			Rule:    &rid,
			Err:     fmt.Errorf("serialize body for rule %s: %w", rid, err),
		}
	}

	resp := traffic.NewResponse()
	if rule.Status != 0 {
		resp.StatusCode = rule.Status
	}
	resp.Headers.Set("Content-Type", "application/json")
	resp.Body = body

	r.Emit("fulfilled", &rid, req, resp.StatusCode)
	r.log.Debug("请求已合成响应", "rule", string(rid), "url", req.URL, "status", resp.StatusCode)
	return Decision{Matched: true, Rule: &rid, Response: resp}
}

// Update 热替换已安装规则的响应，返回后的每次求值都观察到新值
func (r *Router) Update(pat, method string, body any, status int) error {
	if err := r.table.Update(pat, method, body, status); err != nil {
		return err
	}
	r.log.Info("规则响应已热更新", "pattern", pat, "method", method, "status", status)
	return nil
}

// History 返回调用历史快照
func (r *Router) History() []model.HistoryEntry {
	return r.history.Snapshot()
}

// FilterHistory 按方法与 URL 子串过滤历史
func (r *Router) FilterHistory(method, urlSubstr string) []model.HistoryEntry {
	return r.history.Filter(method, urlSubstr)
}

// Stats 返回命中统计副本
func (r *Router) Stats() model.MatchStats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	out := model.MatchStats{
		Total:   r.stats.Total,
		Matched: r.stats.Matched,
		ByRule:  make(map[model.RuleID]int64, len(r.stats.ByRule)),
	}
	for k, v := range r.stats.ByRule {
		out.ByRule[k] = v
	}
	return out
}

func (r *Router) count(rule *model.RuleID) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	r.stats.Total++
	if rule != nil {
		r.stats.Matched++
		r.stats.ByRule[*rule]++
	}
}

// Emit 向会话事件流非阻塞发送事件，订阅者迟滞时直接丢弃
func (r *Router) Emit(typ string, rule *model.RuleID, req *traffic.Request, status int) {
	if r.events == nil {
		return
	}
	evt := model.Event{
		Type:      typ,
		Session:   r.session,
		Target:    r.target,
		Rule:      rule,
		Status:    status,
		Timestamp: time.Now().UnixMilli(),
	}
	if req != nil {
		evt.URL = req.URL
		evt.Method = req.Method
	}
	select {
	case r.events <- evt:
	default:
	}
}
