package tools

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Parameter 动作函数参数声明
type Parameter struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	InstanceOf string `json:"instanceOf,omitempty"` // 描述该参数结构类型的另一参数名
}

// TypeRef 返回类型引用
type TypeRef struct {
	Type       string `json:"type"`
	InstanceOf string `json:"instanceOf,omitempty"`
}

// ActionFunctionDescriptor 动作函数签名描述，构造后只读
type ActionFunctionDescriptor struct {
	id         string
	name       string
	path       string
	returnType TypeRef
	parameters []Parameter
}

// NewActionFunctionDescriptor 创建函数描述，参数名必须唯一
func NewActionFunctionDescriptor(id, name, path string, returnType TypeRef, parameters []Parameter) (*ActionFunctionDescriptor, error) {
	if id == "" {
		return nil, &ConfigurationError{Err: errors.New("函数缺少 id")}
	}
	seen := make(map[string]struct{}, len(parameters))
	params := make([]Parameter, 0, len(parameters))
	for _, p := range parameters {
		if p.Name == "" {
			return nil, &ConfigurationError{Err: fmt.Errorf("函数 %s 存在未命名参数", id)}
		}
		if _, dup := seen[p.Name]; dup {
			return nil, &ConfigurationError{Err: fmt.Errorf("函数 %s 参数名重复: %s", id, p.Name)}
		}
		seen[p.Name] = struct{}{}
		params = append(params, p)
	}
	return &ActionFunctionDescriptor{
		id:         id,
		name:       name,
		path:       path,
		returnType: returnType,
		parameters: params,
	}, nil
}

func (d *ActionFunctionDescriptor) ID() string          { return d.id }
func (d *ActionFunctionDescriptor) Name() string        { return d.name }
func (d *ActionFunctionDescriptor) Path() string        { return d.path }
func (d *ActionFunctionDescriptor) ReturnType() TypeRef { return d.returnType }

// Parameters 返回参数声明副本（保持声明顺序）
func (d *ActionFunctionDescriptor) Parameters() []Parameter {
	params := make([]Parameter, len(d.parameters))
	copy(params, d.parameters)
	return params
}

// ParameterType 返回指定参数的声明类型
func (d *ActionFunctionDescriptor) ParameterType(name string) (string, error) {
	for _, p := range d.parameters {
		if p.Name == name {
			return p.Type, nil
		}
	}
	return "", fmt.Errorf("函数 %s 参数 %s: %w", d.id, name, ErrNotFound)
}

// ParametersMatchingType 按类型过滤参数
func (d *ActionFunctionDescriptor) ParametersMatchingType(paramType string) []Parameter {
	var matched []Parameter
	for _, p := range d.parameters {
		if p.Type == paramType {
			matched = append(matched, p)
		}
	}
	return matched
}

// InstanceOfParamName 返回参数声明的 instanceOf 目标
func (d *ActionFunctionDescriptor) InstanceOfParamName(name string) (string, bool) {
	for _, p := range d.parameters {
		if p.Name == name && p.InstanceOf != "" {
			return p.InstanceOf, true
		}
	}
	return "", false
}

// InstanceOfReturnType 返回返回类型的 instanceOf
func (d *ActionFunctionDescriptor) InstanceOfReturnType() (string, bool) {
	if d.returnType.InstanceOf == "" {
		return "", false
	}
	return d.returnType.InstanceOf, true
}

// DescriptorSet 函数描述集合（id -> descriptor）
type DescriptorSet struct {
	mu          sync.RWMutex
	descriptors map[string]*ActionFunctionDescriptor
}

// NewDescriptorSet 创建描述集合
func NewDescriptorSet() *DescriptorSet {
	return &DescriptorSet{descriptors: make(map[string]*ActionFunctionDescriptor)}
}

// Add 添加描述，id 重复时返回错误
func (s *DescriptorSet) Add(d *ActionFunctionDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.descriptors[d.ID()]; exists {
		return &ConfigurationError{Err: fmt.Errorf("函数 %s 已存在", d.ID())}
	}
	s.descriptors[d.ID()] = d
	return nil
}

// Get 获取描述
func (s *DescriptorSet) Get(id string) (*ActionFunctionDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.descriptors[id]
	return d, ok
}

// List 按 id 排序列出所有描述
func (s *DescriptorSet) List() []*ActionFunctionDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*ActionFunctionDescriptor, 0, len(s.descriptors))
	for _, d := range s.descriptors {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })
	return list
}

// Count 描述数量
func (s *DescriptorSet) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.descriptors)
}
