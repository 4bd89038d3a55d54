package tools

import (
	"sync"
)

// Wildcard 注册项中的通配类型，匹配查询中任意具体类型
const Wildcard = "*"

// RegistryEntry 类型签名到函数 ID 的映射项
type RegistryEntry struct {
	ID         string   `json:"id"`
	InputTypes []string `json:"inputTypes"`
	OutputType string   `json:"outputType"`
}

// FunctionRegistry 函数注册表
// 按 (输入类型元组, 输出类型) 查找转换函数，先注册者优先
type FunctionRegistry struct {
	mu      sync.RWMutex
	entries []RegistryEntry
}

// NewFunctionRegistry 创建函数注册表
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{}
}

// RegisterFunction 追加注册项，不去重
func (r *FunctionRegistry) RegisterFunction(inputTypes []string, outputType, functionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	types := make([]string, len(inputTypes))
	copy(types, inputTypes)
	r.entries = append(r.entries, RegistryEntry{
		ID:         functionID,
		InputTypes: types,
		OutputType: outputType,
	})
}

// LookupFunction 查找第一个签名匹配的函数 ID
func (r *FunctionRegistry) LookupFunction(inputTypes []string, outputType string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entry := range r.entries {
		if entry.OutputType != outputType {
			continue
		}
		if matchInputTypes(entry.InputTypes, inputTypes) {
			return entry.ID, true
		}
	}
	return "", false
}

// Entries 返回注册项快照
func (r *FunctionRegistry) Entries() []RegistryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]RegistryEntry, len(r.entries))
	copy(entries, r.entries)
	return entries
}

// Count 统计注册项数量
func (r *FunctionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// matchInputTypes 逐位比较；注册项的通配符匹配任意查询类型，反之不成立
func matchInputTypes(registered, query []string) bool {
	if len(registered) != len(query) {
		return false
	}
	for i, t := range registered {
		if t == Wildcard {
			continue
		}
		if t != query[i] {
			return false
		}
	}
	return true
}
