// Package pattern 提供规则模式到 URL 的匹配能力。
// 模式是正则表达式字符串，采用搜索语义（无需锚定整个 URL），
// 通过 regexp2 引擎支持负向先行断言等标准库不具备的语法。
package pattern

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
)

// slashForms 列出路径分隔符的各种转义写法，统一还原为原始 /，
// 使针对转义形式书写的模式与浏览器网络层呈现的 URL 等价匹配
var slashForms = strings.NewReplacer(
	"%2F", "/",
	"%2f", "/",
	`\u002F`, "/",
	`\u002f`, "/",
	`\/`, "/",
)

// Normalize 把 URL 或模式中的转义分隔符还原为规范形式。
// 模式编译与请求查找共用同一个规范化函数。
func Normalize(s string) string {
	return slashForms.Replace(s)
}

// Matcher 把一条规则模式编译为可复用的 URL 匹配器
type Matcher struct {
	pattern string
	re      *regexp2.Regexp
}

// Compile 编译模式。非法正则在此处立即报错并指明出错的模式，
// 而不是留到匹配阶段静默失配。
func Compile(pattern string) (*Matcher, error) {
	re, err := regexCache.get(Normalize(pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return &Matcher{pattern: pattern, re: re}, nil
}

// Pattern 返回编译前的原始模式
func (m *Matcher) Pattern() string { return m.pattern }

// MatchURL 判断模式是否命中给定 URL（含查询串）
func (m *Matcher) MatchURL(rawURL string) bool {
	ok, err := m.re.MatchString(Normalize(rawURL))
	if err != nil {
		// regexp2 匹配超时按不匹配处理
		return false
	}
	return ok
}

// MatchMethod 方法过滤大小写敏感，空过滤器匹配任意方法
func MatchMethod(filter, method string) bool {
	return filter == "" || filter == method
}
