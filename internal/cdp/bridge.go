package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/tidwall/gjson"
)

const (
	bindingName = "__pagemockSend"
	recvFunc    = "__pagemockRecv"
)

// bootstrapJS 在页面里安装测试代码可调用的全局钩子。
// 钩子经由 CDP binding 把调用送到宿主侧，宿主通过 __pagemockRecv
// 回传结果以完成 Promise。
const bootstrapJS = `(() => {
  if (window.__pagemockInstalled) { return; }
  window.__pagemockInstalled = true;
  let seq = 0;
  const pending = {};
  window.__pagemockRecv = (id, payload) => {
    const cb = pending[id];
    if (!cb) { return; }
    delete pending[id];
    cb(JSON.parse(payload));
  };
  const call = (op, args) => new Promise((resolve) => {
    const id = ++seq;
    pending[id] = resolve;
    window.__pagemockSend(JSON.stringify({ id, op, args }));
  });
  window.__updateMock = (pattern, method, body, status) =>
    call('update', { pattern: pattern, method: method || '', body: body, status: status || 0 });
  window.__readMockHistory = () => call('history', {});
})();`

// installBridge 注册 binding 并向当前及后续文档注入钩子脚本
func (m *Manager) installBridge() error {
	if err := m.client.Runtime.Enable(m.ctx); err != nil {
		return err
	}
	if err := m.client.Runtime.AddBinding(m.ctx, &runtime.AddBindingArgs{Name: bindingName}); err != nil {
		return err
	}
	if _, err := m.client.Page.AddScriptToEvaluateOnNewDocument(m.ctx, &page.AddScriptToEvaluateOnNewDocumentArgs{
		Source: bootstrapJS,
	}); err != nil {
		return err
	}
	// 已加载的文档立即注入一次
	if _, err := m.client.Runtime.Evaluate(m.ctx, &runtime.EvaluateArgs{Expression: bootstrapJS}); err != nil {
		return err
	}

	bc, err := m.client.Runtime.BindingCalled(m.ctx)
	if err != nil {
		return err
	}
	go m.consumeBindings(bc)
	return nil
}

func (m *Manager) consumeBindings(bc runtime.BindingCalledClient) {
	defer bc.Close()
	for {
		ev, err := bc.Recv()
		if err != nil {
			if m.ctx.Err() == nil {
				m.log.Err(err, "接收页面钩子调用失败", "target", string(m.target))
			}
			return
		}
		if ev.Name != bindingName {
			continue
		}
		m.handleBridgeCall(ev.Payload)
	}
}

// handleBridgeCall 处理一次页面侧钩子调用
func (m *Manager) handleBridgeCall(payload string) {
	id := gjson.Get(payload, "id").Int()
	op := gjson.Get(payload, "op").String()
	args := gjson.Get(payload, "args")

	switch op {
	case "update":
		pat := args.Get("pattern").String()
		method := args.Get("method").String()
		status := int(args.Get("status").Int())
		var body any
		if b := args.Get("body"); b.Exists() && b.Type != gjson.Null {
			body = json.RawMessage(b.Raw)
		}
		if err := m.router.Update(pat, method, body, status); err != nil {
			m.reply(id, fmt.Sprintf(`{"ok":false,"error":%s}`, strconv.Quote(err.Error())))
			return
		}
		m.reply(id, `{"ok":true}`)

	case "history":
		type item struct {
			URL     string `json:"url"`
			Method  string `json:"method"`
			Matched bool   `json:"matched"`
		}
		entries := m.router.History()
		items := make([]item, 0, len(entries))
		for _, e := range entries {
			items = append(items, item{URL: e.URL, Method: e.Method, Matched: e.Matched})
		}
		b, err := json.Marshal(items)
		if err != nil {
			m.reply(id, `{"ok":false,"error":"marshal history"}`)
			return
		}
		m.reply(id, string(b))

	default:
		m.log.Warn("未知的页面钩子操作", "op", op)
		m.reply(id, `{"ok":false,"error":"unknown op"}`)
	}
}

// reply 把结果回传给页面里等待的 Promise
func (m *Manager) reply(id int64, payload string) {
	ctx, cancel := context.WithTimeout(m.ctx, m.processTimeout)
	defer cancel()
	expr := fmt.Sprintf("window.%s(%d, %s)", recvFunc, id, strconv.Quote(payload))
	if _, err := m.client.Runtime.Evaluate(ctx, &runtime.EvaluateArgs{Expression: expr}); err != nil {
		m.log.Err(err, "回传钩子结果失败", "id", id)
	}
}
