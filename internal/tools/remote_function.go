package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"actionflow/pkg/httputil"
)

// RemoteCaller 远程函数调用接口（转换函数与目标动作函数共用）
type RemoteCaller interface {
	Call(ctx context.Context, path string, payload map[string]any) (map[string]any, error)
}

// HTTPCaller 通过 HTTP POST JSON 调用远程函数
type HTTPCaller struct {
	client  *httputil.Client
	baseURL *url.URL
	metrics *CallMetrics
}

// HTTPCallerOption 配置选项
type HTTPCallerOption func(*HTTPCaller)

// WithBaseURL 相对路径基于该地址解析
func WithBaseURL(base string) HTTPCallerOption {
	return func(c *HTTPCaller) {
		if parsed, err := url.Parse(base); err == nil && base != "" {
			c.baseURL = parsed
		}
	}
}

// WithCallMetrics 记录调用指标
func WithCallMetrics(m *CallMetrics) HTTPCallerOption {
	return func(c *HTTPCaller) { c.metrics = m }
}

// NewHTTPCaller 创建远程调用器
func NewHTTPCaller(client *httputil.Client, opts ...HTTPCallerOption) *HTTPCaller {
	if client == nil {
		client = httputil.NewClient()
	}
	c := &HTTPCaller{client: client}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call 发送载荷并返回解码后的响应对象
func (c *HTTPCaller) Call(ctx context.Context, path string, payload map[string]any) (map[string]any, error) {
	start := time.Now()
	result, err := c.call(ctx, path, payload)
	if c.metrics != nil {
		c.metrics.RecordCall(path, err == nil, time.Since(start), err)
	}
	return result, err
}

func (c *HTTPCaller) call(ctx context.Context, path string, payload map[string]any) (map[string]any, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, &RemoteInvocationError{Path: path, Err: err}
	}

	var body any
	if err := c.client.PostJSON(ctx, target, payload, &body); err != nil {
		var statusErr *httputil.StatusError
		if errors.As(err, &statusErr) {
			return nil, &RemoteInvocationError{
				Path:       target,
				StatusCode: statusErr.StatusCode,
				Message:    errorMessage(statusErr.Body),
			}
		}
		return nil, &RemoteInvocationError{Path: target, Err: err}
	}

	obj, ok := body.(map[string]any)
	if !ok {
		return map[string]any{"output": body}, nil
	}
	if msg, ok := obj["error"].(string); ok && msg != "" {
		return nil, &RemoteInvocationError{Path: target, Message: msg}
	}
	return obj, nil
}

func (c *HTTPCaller) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("函数缺少调用路径")
	}
	parsed, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("解析路径失败: %w", err)
	}
	if parsed.IsAbs() {
		return parsed.String(), nil
	}
	if c.baseURL == nil {
		return "", fmt.Errorf("相对路径 %s 缺少基础地址", path)
	}
	return c.baseURL.ResolveReference(parsed).String(), nil
}

// errorMessage 从错误响应体中提取可读信息
func errorMessage(body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err == nil {
		for _, key := range []string{"error", "message", "output"} {
			if msg, ok := obj[key].(string); ok && msg != "" {
				return msg
			}
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return msg
}

// ResolvePath 将函数配置中的相对路径基于工具配置地址解析为绝对地址
func ResolvePath(source, path string) string {
	parsed, err := url.Parse(path)
	if err != nil || parsed.IsAbs() {
		return path
	}
	base, err := url.Parse(source)
	if err != nil || !base.IsAbs() {
		return path
	}
	return base.ResolveReference(parsed).String()
}
