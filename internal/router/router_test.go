package router

import (
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagemock/internal/history"
	"pagemock/internal/logger"
	"pagemock/internal/rules"
	"pagemock/pkg/model"
	"pagemock/pkg/traffic"
)

func newTestRouter(t *testing.T, passThrough bool, mockRules []model.MockRule) *Router {
	t.Helper()
	table, err := rules.New(mockRules)
	require.NoError(t, err)
	return New(Config{
		Table:       table,
		History:     history.New(),
		PassThrough: passThrough,
		Session:     "test-session",
		Target:      "test-target",
		Logger:      logger.NewNop(),
	})
}

func get(url string) *traffic.Request {
	req := traffic.NewRequest()
	req.URL = url
	req.Method = http.MethodGet
	return req
}

func TestFulfillRoundTrip(t *testing.T) {
	r := newTestRouter(t, true, []model.MockRule{
		{Pattern: "/api/v1/users/1$", Body: map[string]any{"id": 1, "name": "Admin"}},
	})

	d := r.Handle(get("https://app.local/api/v1/users/1"))
	require.True(t, d.Matched)
	require.NotNil(t, d.Response)
	assert.Equal(t, http.StatusOK, d.Response.StatusCode)
	assert.JSONEq(t, `{"id":1,"name":"Admin"}`, string(d.Response.Body))
	assert.Equal(t, "application/json", d.Response.Headers.Get("Content-Type"))

	hist := r.History()
	require.Len(t, hist, 1)
	assert.True(t, hist[0].Matched)
	assert.Equal(t, "https://app.local/api/v1/users/1", hist[0].URL)
}

func TestStatusAndBodyRoundTrip(t *testing.T) {
	r := newTestRouter(t, true, []model.MockRule{
		{Pattern: "/api/v1/secret", Status: 401, Body: map[string]any{"detail": "x"}},
	})

	d := r.Handle(get("https://app.local/api/v1/secret"))
	require.True(t, d.Matched)
	assert.Equal(t, 401, d.Response.StatusCode)
	assert.JSONEq(t, `{"detail":"x"}`, string(d.Response.Body))
}

func TestUnmatchedPassThrough(t *testing.T) {
	r := newTestRouter(t, true, []model.MockRule{
		{Pattern: "/api/v1/users", Body: nil},
	})

	d := r.Handle(get("https://app.local/api/v1/ghost"))
	assert.False(t, d.Matched)
	assert.True(t, d.PassThrough)
	assert.Nil(t, d.Response)

	hist := r.History()
	require.Len(t, hist, 1)
	assert.False(t, hist[0].Matched)
	assert.Nil(t, hist[0].Rule)
}

func TestUnmatchedFailClosed(t *testing.T) {
	r := newTestRouter(t, false, []model.MockRule{
		{Pattern: "/api/v1/users", Body: nil},
	})

	d := r.Handle(get("https://app.local/api/v1/ghost"))
	assert.False(t, d.Matched)
	assert.False(t, d.PassThrough)
}

func TestSerializationErrorSurfacesAtFulfillment(t *testing.T) {
	r := newTestRouter(t, true, []model.MockRule{
		{ID: "broken", Pattern: "/api/v1/jobs", Body: make(chan int)},
	})

	d := r.Handle(get("https://app.local/api/v1/jobs"))
	require.True(t, d.Matched)
	require.Error(t, d.Err)
	assert.Contains(t, d.Err.Error(), "broken")
	assert.Nil(t, d.Response)

	// 序列化失败的请求同样记进历史，matched=true
	hist := r.History()
	require.Len(t, hist, 1)
	assert.True(t, hist[0].Matched)
}

func TestLiveUpdateOrdering(t *testing.T) {
	r := newTestRouter(t, true, []model.MockRule{
		{ID: "job", Pattern: "/api/v1/jobs/7", Method: http.MethodGet, Body: map[string]any{"state": "pending"}},
	})

	d := r.Handle(get("https://app.local/api/v1/jobs/7"))
	assert.JSONEq(t, `{"state":"pending"}`, string(d.Response.Body))

	require.NoError(t, r.Update("/api/v1/jobs/7", http.MethodGet, map[string]any{"state": "failed"}, 0))

	// update 返回之后的每次求值都观察到新值
	for i := 0; i < 3; i++ {
		d = r.Handle(get("https://app.local/api/v1/jobs/7"))
		assert.JSONEq(t, `{"state":"failed"}`, string(d.Response.Body))
	}

	// 更新前的历史记录保持不变
	hist := r.History()
	require.Len(t, hist, 4)
	assert.True(t, hist[0].Matched)
}

func TestUpdateUnknownRuleSurfaces(t *testing.T) {
	r := newTestRouter(t, true, []model.MockRule{
		{Pattern: "/api/v1/jobs", Method: http.MethodGet, Body: nil},
	})
	err := r.Update("/api/v1/never-installed", http.MethodGet, nil, 200)
	require.ErrorIs(t, err, rules.ErrRuleNotFound)
}

func TestNegativeLookaheadDisambiguation(t *testing.T) {
	r := newTestRouter(t, true, []model.MockRule{
		{ID: "mine", Pattern: ".*sort=recent.*creator_id=1", Body: map[string]any{"scope": "mine"}},
		{ID: "all", Pattern: "sort=recent(?!.*creator_id)", Body: map[string]any{"scope": "all"}},
	})

	d := r.Handle(get("https://app.local/api/v1/images?sort=recent&creator_id=1"))
	require.True(t, d.Matched)
	assert.Equal(t, model.RuleID("mine"), *d.Rule)

	d = r.Handle(get("https://app.local/api/v1/images?sort=recent"))
	require.True(t, d.Matched)
	assert.Equal(t, model.RuleID("all"), *d.Rule)
}

func TestExactlyOneHistoryEntryPerRequest(t *testing.T) {
	r := newTestRouter(t, true, []model.MockRule{
		{Pattern: "/api/v1/images", Body: nil},
	})

	urls := []string{
		"https://app.local/api/v1/images",
		"https://app.local/api/v1/ghost",
		"https://app.local/api/v1/images?page=2",
	}
	for _, u := range urls {
		r.Handle(get(u))
	}

	hist := r.History()
	require.Len(t, hist, len(urls))
	for i, u := range urls {
		assert.Equal(t, u, hist[i].URL)
	}
}

func TestStats(t *testing.T) {
	r := newTestRouter(t, true, []model.MockRule{
		{ID: "imgs", Pattern: "/api/v1/images", Body: nil},
	})

	r.Handle(get("https://app.local/api/v1/images"))
	r.Handle(get("https://app.local/api/v1/images?page=2"))
	r.Handle(get("https://app.local/api/v1/ghost"))

	st := r.Stats()
	assert.Equal(t, int64(3), st.Total)
	assert.Equal(t, int64(2), st.Matched)
	assert.Equal(t, int64(2), st.ByRule["imgs"])
}

func TestEventsEmittedNonBlocking(t *testing.T) {
	table, err := rules.New([]model.MockRule{{ID: "r", Pattern: "/api", Body: nil}})
	require.NoError(t, err)
	events := make(chan model.Event, 1)
	r := New(Config{
		Table:   table,
		History: history.New(),
		Session: "s",
		Events:  events,
		Logger:  logger.NewNop(),
	})

	// 缓冲写满后继续发送不得阻塞
	for i := 0; i < 5; i++ {
		r.Handle(get("https://app.local/api"))
	}

	evt := <-events
	assert.Equal(t, "fulfilled", evt.Type)
	assert.Equal(t, model.RuleID("r"), *evt.Rule)
	assert.Equal(t, 5, r.history.Len())
}

// TestConcurrentHandleObservesUpdateAtomically 并发请求穿插热更新：
// 每个响应要么是旧值要么是新值，绝不出现半更新状态，历史一条不丢。
func TestConcurrentHandleObservesUpdateAtomically(t *testing.T) {
	r := newTestRouter(t, true, []model.MockRule{
		{ID: "job", Pattern: "/api/v1/jobs/9", Method: http.MethodGet, Body: map[string]any{"state": "pending"}},
	})

	const n = 100
	results := make([]string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i == n/2 {
				assert.NoError(t, r.Update("/api/v1/jobs/9", http.MethodGet, map[string]any{"state": "failed"}, 0))
			}
			d := r.Handle(get("https://app.local/api/v1/jobs/9"))
			results[i] = string(d.Response.Body)
		}(i)
	}
	wg.Wait()

	for i, body := range results {
		if body != `{"state":"pending"}` && body != `{"state":"failed"}` {
			t.Fatalf("request %d observed torn body %q", i, body)
		}
	}
	assert.Equal(t, n, len(r.History()))
}

// TestPageScenarios 按被测页面的形状组织规则表，走一遍典型请求序列
func TestPageScenarios(t *testing.T) {
	t.Run("dashboard recent feed", func(t *testing.T) {
		r := newTestRouter(t, true, []model.MockRule{
			{ID: "recent-mine", Pattern: ".*limit=5.*sort=recent.*creator_id=1", Body: map[string]any{"items": []any{"m1"}}},
			{ID: "recent-all", Pattern: ".*limit=5.*sort=recent(?!.*creator_id)", Body: map[string]any{"items": []any{"a1", "a2"}}},
			{ID: "stats", Pattern: "/api/v1/stats$", Body: map[string]any{"total": 42}},
		})

		d := r.Handle(get("https://app.local/api/v1/images?limit=5&sort=recent&creator_id=1"))
		assert.Equal(t, model.RuleID("recent-mine"), *d.Rule)

		d = r.Handle(get("https://app.local/api/v1/images?limit=5&sort=recent"))
		assert.Equal(t, model.RuleID("recent-all"), *d.Rule)

		d = r.Handle(get("https://app.local/api/v1/stats"))
		assert.JSONEq(t, `{"total":42}`, string(d.Response.Body))
	})

	t.Run("gallery pagination", func(t *testing.T) {
		r := newTestRouter(t, true, []model.MockRule{
			{ID: "page2", Pattern: ".*/api/v1/images.*page=2", Body: map[string]any{"page": 2}},
			{ID: "page1", Pattern: "/api/v1/images", Body: map[string]any{"page": 1}},
		})

		d := r.Handle(get("https://app.local/api/v1/images?page=2&limit=20"))
		assert.Equal(t, model.RuleID("page2"), *d.Rule)

		d = r.Handle(get("https://app.local/api/v1/images?limit=20"))
		assert.Equal(t, model.RuleID("page1"), *d.Rule)
	})

	t.Run("settings unauthorized", func(t *testing.T) {
		r := newTestRouter(t, true, []model.MockRule{
			{Pattern: "/api/v1/settings", Method: http.MethodPut, Status: 401, Body: map[string]any{"detail": "unauthorized"}},
			{Pattern: "/api/v1/settings", Method: http.MethodGet, Body: map[string]any{"theme": "dark"}},
		})

		req := traffic.NewRequest()
		req.URL = "https://app.local/api/v1/settings"
		req.Method = http.MethodPut
		d := r.Handle(req)
		assert.Equal(t, 401, d.Response.StatusCode)

		d = r.Handle(get("https://app.local/api/v1/settings"))
		assert.Equal(t, http.StatusOK, d.Response.StatusCode)
		assert.JSONEq(t, `{"theme":"dark"}`, string(d.Response.Body))
	})

	t.Run("tag hierarchy with escaped separators", func(t *testing.T) {
		r := newTestRouter(t, true, []model.MockRule{
			{ID: "child", Pattern: `\/api\/v1\/tags\/nature\/forest`, Body: map[string]any{"tag": "nature/forest"}},
			{ID: "root", Pattern: "/api/v1/tags", Body: map[string]any{"tags": []any{}}},
		})

		d := r.Handle(get("https://app.local/api/v1/tags/nature%2Fforest"))
		assert.Equal(t, model.RuleID("child"), *d.Rule)

		d = r.Handle(get("https://app.local/api/v1/tags"))
		assert.Equal(t, model.RuleID("root"), *d.Rule)
	})

	t.Run("generation form job polling", func(t *testing.T) {
		r := newTestRouter(t, true, []model.MockRule{
			{Pattern: "/api/v1/generate$", Method: http.MethodPost, Status: 202, Body: map[string]any{"job": 7}},
			{Pattern: "/api/v1/jobs/7", Method: http.MethodGet, Body: map[string]any{"state": "pending"}},
		})

		post := traffic.NewRequest()
		post.URL = "https://app.local/api/v1/generate"
		post.Method = http.MethodPost
		d := r.Handle(post)
		assert.Equal(t, 202, d.Response.StatusCode)

		d = r.Handle(get("https://app.local/api/v1/jobs/7"))
		assert.JSONEq(t, `{"state":"pending"}`, string(d.Response.Body))

		require.NoError(t, r.Update("/api/v1/jobs/7", http.MethodGet, map[string]any{"state": "failed", "error": "out of capacity"}, 0))

		d = r.Handle(get("https://app.local/api/v1/jobs/7"))
		assert.JSONEq(t, `{"state":"failed","error":"out of capacity"}`, string(d.Response.Body))

		// POST 规则不受 GET 轮询更新影响
		d = r.Handle(post)
		assert.Equal(t, 202, d.Response.StatusCode)
	})
}
