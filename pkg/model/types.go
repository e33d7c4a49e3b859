package model

type SessionID string
type TargetID string
type RuleID string

// SessionConfig 会话配置
type SessionConfig struct {
	DevToolsURL      string `json:"devToolsURL"`
	PassThrough      *bool  `json:"passThrough"`      // nil 时默认放行未匹配请求
	ProcessTimeoutMS int    `json:"processTimeoutMS"` // 单次拦截处理超时，0 取默认值
	ArchiveDSN       string `json:"archiveDSN"`       // 非空时在会话拆除后将调用历史归档到 sqlite
}

// Passthrough 返回未匹配请求的放行策略（默认放行）
func (c SessionConfig) Passthrough() bool {
	if c.PassThrough == nil {
		return true
	}
	return *c.PassThrough
}

// MockRule 一条模拟规则：URL 模式到响应的映射
type MockRule struct {
	ID      RuleID `json:"id"      yaml:"id"`
	Pattern string `json:"pattern" yaml:"pattern"`
	Method  string `json:"method"  yaml:"method"` // 空表示任意方法
	Status  int    `json:"status"  yaml:"status"` // 0 时回放 200
	Body    any    `json:"body"    yaml:"body"`   // 必须可 JSON 序列化
}

// HistoryEntry 一次被拦截请求的历史记录，写入后不可变
type HistoryEntry struct {
	URL       string  `json:"url"`
	Method    string  `json:"method"`
	Matched   bool    `json:"matched"`
	Rule      *RuleID `json:"rule,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

// MatchStats 规则命中统计
type MatchStats struct {
	Total   int64            `json:"total"`
	Matched int64            `json:"matched"`
	ByRule  map[RuleID]int64 `json:"byRule"`
}

// Event 会话事件流中的单条事件
type Event struct {
	Type      string    `json:"type"` // intercepted / fulfilled / passed / blocked / failed / degraded
	Session   SessionID `json:"session"`
	Target    TargetID  `json:"target"`
	Rule      *RuleID   `json:"rule,omitempty"`
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	Status    int       `json:"status,omitempty"`
	Timestamp int64     `json:"timestamp"`
}
