package cdp

import (
	"encoding/json"

	"github.com/mafredri/cdp/protocol/fetch"

	"pagemock/pkg/traffic"
)

// ToNeutralRequest 将 CDP 拦截事件转换为中立 Request 模型
func ToNeutralRequest(ev *fetch.RequestPausedReply) *traffic.Request {
	req := traffic.NewRequest()
	req.ID = string(ev.RequestID)
	req.URL = ev.Request.URL
	req.Method = ev.Request.Method

	var headers map[string]string
	if len(ev.Request.Headers) > 0 {
		if err := json.Unmarshal(ev.Request.Headers, &headers); err == nil {
			for k, v := range headers {
				req.Headers.Set(k, v)
			}
		}
	}

	if ev.Request.PostData != nil {
		req.Body = []byte(*ev.Request.PostData)
	}
	return req
}

// ToFulfillArgs 将中立响应转换为 Fetch.fulfillRequest 参数
func ToFulfillArgs(id fetch.RequestID, resp *traffic.Response) *fetch.FulfillRequestArgs {
	args := &fetch.FulfillRequestArgs{
		RequestID:    id,
		ResponseCode: resp.StatusCode,
	}
	if len(resp.Headers) > 0 {
		args.ResponseHeaders = ToHeaderEntries(resp.Headers)
	}
	if len(resp.Body) > 0 {
		args.Body = resp.Body
	}
	return args
}

// ToHeaderEntries 将中立 Header 转换为 CDP Header 条目
func ToHeaderEntries(h traffic.Header) []fetch.HeaderEntry {
	entries := make([]fetch.HeaderEntry, 0, len(h))
	for k, v := range h {
		entries = append(entries, fetch.HeaderEntry{Name: k, Value: v})
	}
	return entries
}
