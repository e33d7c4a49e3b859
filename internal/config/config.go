package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`

	DevTools struct {
		URL string `yaml:"url"`
	} `yaml:"devtools"`

	Mock struct {
		PassThrough      bool `yaml:"passThrough"`
		ProcessTimeoutMS int  `yaml:"processTimeoutMS"`
	} `yaml:"mock"`

	Archive struct {
		Dsn string `yaml:"dsn"`
	} `yaml:"archive"`

	Log struct {
		Level  string   `yaml:"level"`
		Writer []string `yaml:"writer"`
		File   string   `yaml:"file"`
	} `yaml:"log"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	c := &Config{Version: "1.0.0"}
	c.DevTools.URL = "http://127.0.0.1:9222"
	c.Mock.PassThrough = true
	c.Mock.ProcessTimeoutMS = 3000
	c.Log.Level = "info"
	c.Log.Writer = []string{"console"}
	return c
}

// Load 读取 YAML 配置文件，未出现的字段保留默认值
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}
