package activity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"actionflow/internal/tools"

	"gopkg.in/yaml.v3"
)

// Config 活动配置文档
type Config struct {
	ID      string         `yaml:"id" json:"id"`
	Title   string         `yaml:"title" json:"title"`
	Tools   []string       `yaml:"tools" json:"tools"`
	Panels  []PanelConfig  `yaml:"panels" json:"panels"`
	Actions []ActionConfig `yaml:"actions" json:"actions"`
}

// PanelConfig 活动中的面板实例，ref 指向工具提供的面板定义
type PanelConfig struct {
	ID       string         `yaml:"id" json:"id"`
	Name     string         `yaml:"name" json:"name"`
	Ref      string         `yaml:"ref" json:"ref"`
	Value    string         `yaml:"value" json:"value"`
	File     string         `yaml:"file" json:"file"` // 初始内容文件，相对活动配置目录
	Language string         `yaml:"language" json:"language"`
	Type     string         `yaml:"type" json:"type"`
	Buttons  []ButtonConfig `yaml:"buttons" json:"buttons"`
}

// ButtonConfig 面板级按钮
type ButtonConfig struct {
	ID             string `yaml:"id" json:"id"`
	Icon           string `yaml:"icon" json:"icon"`
	ActionFunction string `yaml:"actionfunction" json:"actionfunction"`
	Hint           string `yaml:"hint" json:"hint"`
}

// ActionConfig 按钮触发的动作：参数名 -> 面板 id，结果写入 output 面板
type ActionConfig struct {
	Source       string            `yaml:"source" json:"source"`
	SourceButton string            `yaml:"sourceButton" json:"sourceButton"`
	Parameters   map[string]string `yaml:"parameters" json:"parameters"`
	Output       string            `yaml:"output" json:"output"`
}

// LoadFile 按扩展名解析 YAML 或 JSON 活动配置，并读取面板初始内容文件
// 内容文件不可读的面板被跳过，返回的配置仍可用，错误合并返回
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &tools.ConfigurationError{Source: path, Err: err}
	}

	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, &tools.ConfigurationError{Source: path, Err: err}
	}

	dir := filepath.Dir(path)
	var errs []error
	panels := cfg.Panels[:0]
	for _, p := range cfg.Panels {
		if p.File != "" && p.Value == "" {
			content, err := os.ReadFile(filepath.Join(dir, p.File))
			if err != nil {
				errs = append(errs, &tools.ConfigurationError{Source: path, Err: fmt.Errorf("面板 %s 内容文件: %w", p.ID, err)})
				continue
			}
			p.Value = string(content)
		}
		panels = append(panels, p)
	}
	cfg.Panels = panels
	return cfg, errors.Join(errs...)
}

// Parse 解析活动配置
func Parse(data []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("解析 JSON 活动配置失败: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("解析 YAML 活动配置失败: %w", err)
		}
	}
	return &cfg, nil
}
