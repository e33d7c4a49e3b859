package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileInvalidPatternFailsFast(t *testing.T) {
	_, err := Compile("sort=recent(")
	require.Error(t, err)
	// 报错需指明出错的模式，而不是留到匹配阶段静默失配
	assert.Contains(t, err.Error(), `"sort=recent("`)
}

func TestSearchSemantics(t *testing.T) {
	m, err := Compile("limit=5")
	require.NoError(t, err)

	assert.True(t, m.MatchURL("https://app.local/api/v1/images?limit=5&sort=recent"))
	assert.False(t, m.MatchURL("https://app.local/api/v1/images"))

	// 搜索语义下 limit=5 也是 limit=50 的子串，需要边界的模式自己写边界
	assert.True(t, m.MatchURL("https://app.local/api/v1/images?limit=50"))
	anchored, err := Compile(`limit=5(&|$)`)
	require.NoError(t, err)
	assert.False(t, anchored.MatchURL("https://app.local/api/v1/images?limit=50"))
	assert.True(t, anchored.MatchURL("https://app.local/api/v1/images?limit=5&sort=recent"))
}

func TestMultiFragmentPattern(t *testing.T) {
	m, err := Compile(".*limit=5.*sort=recent.*creator_id=1")
	require.NoError(t, err)

	assert.True(t, m.MatchURL("https://app.local/api/v1/images?limit=5&sort=recent&creator_id=1"))
	assert.False(t, m.MatchURL("https://app.local/api/v1/images?limit=5&sort=recent"))
	// 片段顺序固定，乱序不命中
	assert.False(t, m.MatchURL("https://app.local/api/v1/images?creator_id=1&limit=5&sort=recent"))
}

func TestNegativeLookahead(t *testing.T) {
	m, err := Compile("sort=recent(?!.*creator_id)")
	require.NoError(t, err)

	assert.True(t, m.MatchURL("https://app.local/api/v1/images?limit=5&sort=recent"))
	assert.False(t, m.MatchURL("https://app.local/api/v1/images?sort=recent&creator_id=1"))
}

func TestSlashFormsEquivalent(t *testing.T) {
	rawURL := "https://app.local/api/v1/users/1"

	for _, pat := range []string{
		`/api/v1/users/1$`,
		`\/api\/v1\/users\/1$`,
		`%2Fapi%2Fv1%2Fusers%2F1$`,
		`\u002Fapi\u002Fv1\u002Fusers\u002F1$`,
	} {
		m, err := Compile(pat)
		require.NoError(t, err, pat)
		assert.True(t, m.MatchURL(rawURL), pat)
	}
}

func TestEncodedURLMatchesRawPattern(t *testing.T) {
	// 浏览器网络层可能呈现转义后的分隔符，查找侧同样规范化
	m, err := Compile("/api/v1/tags/parent/child")
	require.NoError(t, err)

	assert.True(t, m.MatchURL("https://app.local/api/v1/tags/parent%2Fchild"))
	assert.True(t, m.MatchURL("https://app.local/api/v1/tags/parent/child"))
}

func TestMatchMethod(t *testing.T) {
	assert.True(t, MatchMethod("", "GET"))
	assert.True(t, MatchMethod("", "DELETE"))
	assert.True(t, MatchMethod("GET", "GET"))
	assert.False(t, MatchMethod("GET", "POST"))
	// 方法过滤大小写敏感
	assert.False(t, MatchMethod("GET", "get"))
}

func TestRegexCacheReuse(t *testing.T) {
	re1, err := regexCache.get("cache-reuse-probe")
	require.NoError(t, err)
	re2, err := regexCache.get("cache-reuse-probe")
	require.NoError(t, err)
	assert.Same(t, re1, re2)
}
