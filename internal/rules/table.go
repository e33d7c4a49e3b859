// Package rules 维护有序的模拟规则表。
// 匹配按安装顺序进行，首条命中即生效；顺序本身承载语义，
// 重叠模式只靠排列与先行断言区分，不做最特定匹配。
package rules

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"pagemock/internal/pattern"
	"pagemock/pkg/model"
)

var (
	// ErrSealed 表内已有请求流经，整体替换被拒绝
	ErrSealed = errors.New("rule table sealed, use Update instead")
	// ErrRuleNotFound Update 指向从未安装过的规则
	ErrRuleNotFound = errors.New("rule not found")
)

type entry struct {
	rule    model.MockRule
	matcher *pattern.Matcher
}

// Table 一张规则表归属一个拦截会话，不跨会话共享。
// 读写遵循单写多读约束：Update 相对任何并发求值原子生效。
type Table struct {
	mu     sync.RWMutex
	rules  []entry
	sealed atomic.Bool
}

// New 编译并安装初始规则表
func New(rules []model.MockRule) (*Table, error) {
	t := &Table{}
	if err := t.Install(rules); err != nil {
		return nil, err
	}
	return t, nil
}

func compile(rules []model.MockRule) ([]entry, error) {
	out := make([]entry, 0, len(rules))
	for i := range rules {
		r := rules[i]
		m, err := pattern.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if r.ID == "" {
			r.ID = model.RuleID(uuid.NewString())
		}
		out = append(out, entry{rule: r, matcher: m})
	}
	return out, nil
}

// Install 整体替换规则表。首次求值之后调用返回 ErrSealed，
// 运行中的调整只能走 Update，避免与在途请求竞争。
func (t *Table) Install(rules []model.MockRule) error {
	if t.sealed.Load() {
		return ErrSealed
	}
	compiled, err := compile(rules)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.rules = compiled
	t.mu.Unlock()
	return nil
}

// Eval 按安装顺序返回首条命中规则在求值时刻的快照。
// 首次求值即封存规则表。
func (t *Table) Eval(url, method string) (model.MockRule, bool) {
	t.sealed.Store(true)
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := range t.rules {
		e := &t.rules[i]
		if pattern.MatchMethod(e.rule.Method, method) && e.matcher.MatchURL(url) {
			return e.rule, true
		}
	}
	return model.MockRule{}, false
}

// Update 按模式+方法精确相等（非匹配语义）查找首条规则，
// 原地替换其响应字段，表内位置不变
func (t *Table) Update(pat, method string, body any, status int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.rules {
		r := &t.rules[i].rule
		if r.Pattern == pat && r.Method == method {
			r.Body = body
			r.Status = status
			return nil
		}
	}
	return fmt.Errorf("%w: pattern %q method %q", ErrRuleNotFound, pat, method)
}

// Len 返回表内规则数
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rules)
}

// Snapshot 返回规则列表副本，供展示用
func (t *Table) Snapshot() []model.MockRule {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.MockRule, 0, len(t.rules))
	for i := range t.rules {
		out = append(out, t.rules[i].rule)
	}
	return out
}
