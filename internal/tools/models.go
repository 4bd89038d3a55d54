package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ToolConfig 工具配置文档（启动时加载一次）
type ToolConfig struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Version   string           `json:"version,omitempty"`
	Functions []FunctionConfig `json:"functions"`
	PanelDefs []PanelDef       `json:"panelDefs,omitempty"`
}

// FunctionConfig 单个函数声明
type FunctionConfig struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	Parameters           []Parameter      `json:"parameters"`
	ReturnType           ReturnTypeConfig `json:"returnType"`
	ReturnTypeInstanceOf string           `json:"returnTypeInstanceOf,omitempty"`
	Path                 string           `json:"path"`
}

// ReturnTypeConfig 返回类型，既接受字符串也接受 {type, instanceOf} 对象
type ReturnTypeConfig struct {
	TypeRef
}

// UnmarshalJSON 兼容两种写法
func (r *ReturnTypeConfig) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &r.Type)
	}
	var ref TypeRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return fmt.Errorf("returnType 格式错误: %w", err)
	}
	r.TypeRef = ref
	return nil
}

// PanelDef 工具提供的面板定义
type PanelDef struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	PanelClass string      `json:"panelclass"` // ProgramPanel, ConsolePanel, OutputPanel ...
	Language   string      `json:"language,omitempty"`
	Type       string      `json:"type,omitempty"` // 面板内容的数据类型标签
	Icon       string      `json:"icon,omitempty"`
	Buttons    []ButtonDef `json:"buttons,omitempty"`
}

// ButtonDef 面板按钮定义
type ButtonDef struct {
	ID             string `json:"id"`
	Icon           string `json:"icon,omitempty"`
	ActionFunction string `json:"actionfunction,omitempty"`
	Hint           string `json:"hint,omitempty"`
}

// ToDescriptor 转换为函数描述
func (f FunctionConfig) ToDescriptor(path string) (*ActionFunctionDescriptor, error) {
	ret := f.ReturnType.TypeRef
	if ret.InstanceOf == "" {
		ret.InstanceOf = f.ReturnTypeInstanceOf
	}
	return NewActionFunctionDescriptor(f.ID, f.Name, path, ret, f.Parameters)
}

// InputTypes 按声明顺序返回参数类型
func (f FunctionConfig) InputTypes() []string {
	types := make([]string, len(f.Parameters))
	for i, p := range f.Parameters {
		types[i] = p.Type
	}
	return types
}
