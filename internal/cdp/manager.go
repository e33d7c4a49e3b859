// Package cdp 通过 Chrome DevTools Protocol 把决策核心挂接到
// 页面的网络层：消费 Fetch.requestPaused 事件流，按决策结果
// 合成响应、放行或使请求失败。
package cdp

import (
	"context"
	"fmt"
	"time"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/rpcc"

	conv "pagemock/internal/adapter/cdp"
	"pagemock/internal/logger"
	"pagemock/internal/router"
	"pagemock/pkg/model"
)

const defaultProcessTimeout = 3 * time.Second

// Manager 持有到单个浏览器目标的 CDP 连接，一个 Manager 服务一个会话
type Manager struct {
	devtoolsURL    string
	conn           *rpcc.Conn
	client         *cdp.Client
	ctx            context.Context
	cancel         context.CancelFunc
	router         *router.Router
	log            logger.Logger
	processTimeout time.Duration
	target         model.TargetID
}

// New 创建 Manager。路由器在附加目标之后通过 SetRouter 绑定
func New(devtoolsURL string, processTimeoutMS int, l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	to := defaultProcessTimeout
	if processTimeoutMS > 0 {
		to = time.Duration(processTimeoutMS) * time.Millisecond
	}
	return &Manager{
		devtoolsURL:    devtoolsURL,
		log:            l,
		processTimeout: to,
	}
}

// SetRouter 绑定决策路由器，须在 Enable 之前完成
func (m *Manager) SetRouter(rt *router.Router) {
	m.router = rt
}

// AttachTarget 连接调试端点并附加目标。target 为空时选择第一个页面目标
func (m *Manager) AttachTarget(target model.TargetID) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.ctx = ctx
	m.cancel = cancel

	dt := devtool.New(m.devtoolsURL)
	targets, err := dt.List(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("list targets: %w", err)
	}
	var sel *devtool.Target
	for i := range targets {
		if target != "" {
			if string(targets[i].ID) == string(target) {
				sel = targets[i]
				break
			}
			continue
		}
		if targets[i].Type == devtool.Page {
			sel = targets[i]
			break
		}
	}
	if sel == nil {
		cancel()
		return fmt.Errorf("no target %q", string(target))
	}

	conn, err := rpcc.DialContext(ctx, sel.WebSocketDebuggerURL)
	if err != nil {
		cancel()
		return fmt.Errorf("dial target: %w", err)
	}
	m.conn = conn
	m.client = cdp.NewClient(conn)
	m.target = model.TargetID(sel.ID)
	m.log.Info("已附加浏览器目标", "target", string(m.target), "url", sel.URL)
	return nil
}

// Target 返回实际附加的目标 ID
func (m *Manager) Target() model.TargetID { return m.target }

// Enable 启用请求拦截并安装页面侧钩子
func (m *Manager) Enable() error {
	if m.client == nil {
		return fmt.Errorf("not attached")
	}
	if m.router == nil {
		return fmt.Errorf("no router bound")
	}
	if err := m.client.Network.Enable(m.ctx, nil); err != nil {
		return err
	}
	p := "*"
	patterns := []fetch.RequestPattern{
		{URLPattern: &p, RequestStage: fetch.RequestStageRequest},
	}
	if err := m.client.Fetch.Enable(m.ctx, &fetch.EnableArgs{Patterns: patterns}); err != nil {
		return err
	}
	if err := m.installBridge(); err != nil {
		return fmt.Errorf("install page bridge: %w", err)
	}
	go m.consume()
	return nil
}

// Disable 停止拦截
func (m *Manager) Disable() error {
	if m.client == nil {
		return fmt.Errorf("not attached")
	}
	return m.client.Fetch.Disable(m.ctx)
}

// Detach 断开连接并释放资源
func (m *Manager) Detach() error {
	if m.cancel != nil {
		m.cancel()
	}
	if m.conn != nil {
		return m.conn.Close()
	}
	return nil
}

// consume 持续接收拦截事件。匹配与历史记录在接收循环内同步完成，
// 保证历史顺序即钩子观察到的到达顺序；对浏览器的应答异步执行，
// 慢请求不会阻塞后续事件的匹配。
func (m *Manager) consume() {
	rp, err := m.client.Fetch.RequestPaused(m.ctx)
	if err != nil {
		m.log.Err(err, "订阅拦截事件流失败", "target", string(m.target))
		return
	}
	defer rp.Close()

	m.log.Info("开始消费拦截事件流", "target", string(m.target))
	for {
		ev, err := rp.Recv()
		if err != nil {
			if m.ctx.Err() == nil {
				m.log.Err(err, "接收拦截事件失败", "target", string(m.target))
			}
			return
		}
		req := conv.ToNeutralRequest(ev)
		m.router.Emit("intercepted", nil, req, 0)
		d := m.router.Handle(req)
		go m.apply(ev, d)
	}
}

// apply 按决策结果应答浏览器，每个请求恰好应答一次
func (m *Manager) apply(ev *fetch.RequestPausedReply, d router.Decision) {
	ctx, cancel := context.WithTimeout(m.ctx, m.processTimeout)
	defer cancel()

	switch {
	case d.Err != nil:
		// 响应体无法序列化：以失败的网络响应回给页面
		if err := m.client.Fetch.FailRequest(ctx, &fetch.FailRequestArgs{
			RequestID:   ev.RequestID,
			ErrorReason: network.ErrorReasonFailed,
		}); err != nil {
			m.degrade(ctx, ev, err)
		}
	case d.Matched:
		if err := m.client.Fetch.FulfillRequest(ctx, conv.ToFulfillArgs(ev.RequestID, d.Response)); err != nil {
			m.degrade(ctx, ev, err)
		}
	case d.PassThrough:
		if err := m.client.Fetch.ContinueRequest(ctx, &fetch.ContinueRequestArgs{RequestID: ev.RequestID}); err != nil {
			// 页面可能已经导航离开，请求不复存在
			m.log.Debug("放行请求失败", "requestID", string(ev.RequestID), "error", err.Error())
		}
	default:
		// fail closed：未匹配且不放行
		if err := m.client.Fetch.FailRequest(ctx, &fetch.FailRequestArgs{
			RequestID:   ev.RequestID,
			ErrorReason: network.ErrorReasonBlockedByClient,
		}); err != nil {
			m.log.Debug("拒绝请求失败", "requestID", string(ev.RequestID), "error", err.Error())
		}
	}
}

// degrade 应答失败时的降级策略：尝试直接放行，保证请求不悬挂
func (m *Manager) degrade(ctx context.Context, ev *fetch.RequestPausedReply, cause error) {
	m.log.Warn("应答失败，执行降级策略：直接放行", "requestID", string(ev.RequestID), "cause", cause.Error())
	m.router.Emit("degraded", nil, conv.ToNeutralRequest(ev), 0)
	if err := m.client.Fetch.ContinueRequest(ctx, &fetch.ContinueRequestArgs{RequestID: ev.RequestID}); err != nil {
		m.log.Debug("降级放行失败", "requestID", string(ev.RequestID), "error", err.Error())
	}
}
