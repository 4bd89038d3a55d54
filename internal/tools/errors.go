package tools

import (
	"errors"
	"fmt"
)

// ErrNotFound 引用的函数、面板或参数不存在
var ErrNotFound = errors.New("not found")

// ConfigurationError 工具/活动配置缺失或格式错误
type ConfigurationError struct {
	Source string // 配置来源（URL 或文件路径）
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("配置错误: %v", e.Err)
	}
	return fmt.Sprintf("配置错误 [%s]: %v", e.Source, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ResolutionError 参数类型转换无法完成
type ResolutionError struct {
	Param    string
	FromType string
	ToType   string
	Err      error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("参数 %s 无法从 %s 转换为 %s", e.Param, e.FromType, e.ToType)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// RemoteInvocationError 远程函数调用返回非成功状态或错误载荷
type RemoteInvocationError struct {
	Path       string
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteInvocationError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("远程调用 %s 失败: %v", e.Path, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("远程调用 %s 失败 (HTTP %d): %s", e.Path, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("远程调用 %s 失败: %s", e.Path, e.Message)
	}
}

func (e *RemoteInvocationError) Unwrap() error { return e.Err }

// IsResolutionError 判断错误链中是否包含 ResolutionError
func IsResolutionError(err error) bool {
	var target *ResolutionError
	return errors.As(err, &target)
}

// IsRemoteError 判断错误链中是否包含 RemoteInvocationError
func IsRemoteError(err error) bool {
	var target *RemoteInvocationError
	return errors.As(err, &target)
}
