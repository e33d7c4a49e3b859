// pagemock 命令行入口：附加到一个已开启调试端口的浏览器，
// 从规则文件安装模拟规则，随后持续输出会话事件，直到收到
// 中断信号再拆除会话并打印命中统计。
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pagemock/internal/config"
	"pagemock/internal/logger"
	"pagemock/pkg/api"
	"pagemock/pkg/model"
)

type multiFlag []string

func (m *multiFlag) String() string { return fmt.Sprint([]string(*m)) }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func main() {
	var (
		configPath  = flag.String("config", "", "YAML 配置文件路径")
		devtoolsURL = flag.String("devtools", "", "浏览器调试端点，覆盖配置文件")
		target      = flag.String("target", "", "目标 ID，空则取第一个页面")
		rulesPath   = flag.String("rules", "", "规则文件路径（必填）")
		archiveDSN  = flag.String("archive", "", "sqlite 归档 DSN，空则不归档")
		failClosed  = flag.Bool("fail-closed", false, "未匹配请求直接失败而非放行")
		sets        multiFlag
	)
	flag.Var(&sets, "set", "安装前修改规则响应体，格式 index.path=value，可重复")
	flag.Parse()

	if *rulesPath == "" {
		fmt.Fprintln(os.Stderr, "missing -rules")
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.NewConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load config:", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *devtoolsURL != "" {
		cfg.DevTools.URL = *devtoolsURL
	}
	if *archiveDSN != "" {
		cfg.Archive.Dsn = *archiveDSN
	}
	if *failClosed {
		cfg.Mock.PassThrough = false
	}

	log := logger.New(logger.Options{
		Level:   cfg.Log.Level,
		Writers: cfg.Log.Writer,
		File:    cfg.Log.File,
	})

	mockRules, err := loadRules(*rulesPath)
	if err != nil {
		log.Err(err, "加载规则文件失败", "path", *rulesPath)
		os.Exit(1)
	}
	for _, spec := range sets {
		if err := applySet(mockRules, spec); err != nil {
			log.Err(err, "应用 -set 失败", "spec", spec)
			os.Exit(1)
		}
	}

	svc := api.NewService(log)
	passThrough := cfg.Mock.PassThrough
	sessionCfg := model.SessionConfig{
		DevToolsURL:      cfg.DevTools.URL,
		PassThrough:      &passThrough,
		ProcessTimeoutMS: cfg.Mock.ProcessTimeoutMS,
		ArchiveDSN:       cfg.Archive.Dsn,
	}
	id, err := svc.Setup(sessionCfg, model.TargetID(*target), mockRules)
	if err != nil {
		log.Err(err, "建立拦截会话失败")
		os.Exit(1)
	}

	events, err := svc.SubscribeEvents(id)
	if err != nil {
		log.Err(err, "订阅事件流失败")
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

loop:
	for {
		select {
		case evt := <-events:
			kv := []any{"type", evt.Type, "method", evt.Method, "url", evt.URL}
			if evt.Rule != nil {
				kv = append(kv, "rule", string(*evt.Rule))
			}
			if evt.Status != 0 {
				kv = append(kv, "status", evt.Status)
			}
			log.Info("会话事件", kv...)
		case <-sig:
			break loop
		}
	}

	stats, err := svc.Stats(id)
	if err == nil {
		log.Info("命中统计", "total", stats.Total, "matched", stats.Matched)
		for rid, n := range stats.ByRule {
			log.Info("规则命中", "rule", string(rid), "count", n)
		}
	}
	if err := svc.Teardown(id); err != nil {
		log.Err(err, "拆除会话失败")
		os.Exit(1)
	}
}
