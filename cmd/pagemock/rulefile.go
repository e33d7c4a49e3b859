package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"gopkg.in/yaml.v3"

	"pagemock/pkg/model"
)

type ruleFile struct {
	Rules []model.MockRule `yaml:"rules"`
}

// loadRules 从 YAML 文件读取有序规则列表
func loadRules(path string) ([]model.MockRule, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rf ruleFile
	if err := yaml.Unmarshal(b, &rf); err != nil {
		return nil, fmt.Errorf("parse rules %q: %w", path, err)
	}
	if len(rf.Rules) == 0 {
		return nil, fmt.Errorf("no rules in %q", path)
	}
	return rf.Rules, nil
}

// applySet 在安装前修改指定规则的响应体，spec 格式为 index.path=value。
// value 本身是合法 JSON 时按原样写入，否则按字符串写入。
func applySet(rules []model.MockRule, spec string) error {
	eq := strings.IndexByte(spec, '=')
	if eq < 0 {
		return fmt.Errorf("bad -set %q, want index.path=value", spec)
	}
	lhs, val := spec[:eq], spec[eq+1:]

	dot := strings.IndexByte(lhs, '.')
	if dot < 0 {
		return fmt.Errorf("bad -set %q, want index.path=value", spec)
	}
	idx, err := strconv.Atoi(lhs[:dot])
	if err != nil || idx < 0 || idx >= len(rules) {
		return fmt.Errorf("bad rule index in -set %q", spec)
	}
	path := lhs[dot+1:]

	bodyJSON, err := json.Marshal(rules[idx].Body)
	if err != nil {
		return fmt.Errorf("rule %d body not serializable: %w", idx, err)
	}

	var out string
	if gjson.Valid(val) {
		out, err = sjson.SetRaw(string(bodyJSON), path, val)
	} else {
		out, err = sjson.Set(string(bodyJSON), path, val)
	}
	if err != nil {
		return fmt.Errorf("patch rule %d body: %w", idx, err)
	}
	rules[idx].Body = json.RawMessage(out)
	return nil
}
