// Package history 记录拦截会话内的调用历史。
package history

import (
	"strings"
	"sync"

	"pagemock/pkg/model"
)

// Recorder 只追加的调用历史。条目按拦截钩子观察到的到达顺序写入，
// 写入后不再修改或删除。
type Recorder struct {
	mu      sync.Mutex
	entries []model.HistoryEntry
}

// New 创建空的历史记录器
func New() *Recorder {
	return &Recorder{}
}

// Record 追加一条记录，不阻塞、不丢弃、不重排
func (r *Recorder) Record(e model.HistoryEntry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

// Snapshot 返回调用时刻的历史副本，之后的请求不会出现在已返回的副本里
func (r *Recorder) Snapshot() []model.HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.HistoryEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len 返回当前记录条数
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Filter 按方法与 URL 子串过滤快照，纯读操作
func (r *Recorder) Filter(method, urlSubstr string) []model.HistoryEntry {
	var out []model.HistoryEntry
	for _, e := range r.Snapshot() {
		if method != "" && e.Method != method {
			continue
		}
		if urlSubstr != "" && !strings.Contains(e.URL, urlSubstr) {
			continue
		}
		out = append(out, e)
	}
	return out
}
