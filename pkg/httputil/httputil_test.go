package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// TestNewClient 测试创建基础客户端
func TestNewClient(t *testing.T) {
	client := NewClient()
	if client == nil {
		t.Fatal("NewClient() 返回 nil")
	}

	if client.timeout != 30*time.Second {
		t.Errorf("默认超时时间应为30秒，实际为 %v", client.timeout)
	}

	if client.headers["User-Agent"] != "actionflow/1.0" {
		t.Errorf("默认User-Agent不正确: %s", client.headers["User-Agent"])
	}

	customClient := NewClient(
		WithTimeout(10*time.Second),
		WithHeaders(map[string]string{"X-Custom": "value"}),
		WithRetries(3),
	)

	if customClient.timeout != 10*time.Second {
		t.Errorf("自定义超时时间应为10秒，实际为 %v", customClient.timeout)
	}

	if customClient.headers["X-Custom"] != "value" {
		t.Errorf("自定义头未设置")
	}

	if customClient.retries != 3 {
		t.Errorf("重试次数应为3，实际为 %d", customClient.retries)
	}
}

// TestClientGetJSON 测试GetJSON方法
func TestClientGetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("期望GET请求，实际为 %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	var result map[string]string
	if err := NewClient().GetJSON(context.Background(), server.URL, &result); err != nil {
		t.Fatalf("GetJSON() 错误: %v", err)
	}
	if result["status"] != "ok" {
		t.Errorf("期望 status='ok'，实际为 '%s'", result["status"])
	}
}

// TestClientPostJSON 测试PostJSON方法
func TestClientPostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("期望POST请求，实际为 %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("期望Content-Type为application/json")
		}
		var reqBody map[string]string
		json.NewDecoder(r.Body).Decode(&reqBody)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"output": reqBody["value"]})
	}))
	defer server.Close()

	var result map[string]string
	err := NewClient().PostJSON(context.Background(), server.URL, map[string]string{"value": "hello"}, &result)
	if err != nil {
		t.Fatalf("PostJSON() 错误: %v", err)
	}
	if result["output"] != "hello" {
		t.Errorf("期望 output='hello'，实际为 '%s'", result["output"])
	}
}

// TestClientPostJSONStatusError 非 2xx 返回 StatusError 并保留响应体
func TestClientPostJSONStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad model"}`))
	}))
	defer server.Close()

	err := NewClient().PostJSON(context.Background(), server.URL, map[string]any{}, nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("期望 StatusError，实际为 %v", err)
	}
	if statusErr.StatusCode != http.StatusBadRequest {
		t.Errorf("期望状态码 400，实际为 %d", statusErr.StatusCode)
	}
	if string(statusErr.Body) != `{"error":"bad model"}` {
		t.Errorf("响应体未保留: %s", statusErr.Body)
	}
}

// TestClientRetriesServerError 5xx 触发重试且每次都携带完整请求体
func TestClientRetriesServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["value"] != "x" {
			t.Errorf("重试时请求体丢失: %v", body)
		}
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"output": "done"})
	}))
	defer server.Close()

	var result map[string]string
	err := NewClient(WithRetries(2)).PostJSON(context.Background(), server.URL, map[string]string{"value": "x"}, &result)
	if err != nil {
		t.Fatalf("PostJSON() 错误: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("期望请求2次，实际为 %d", calls.Load())
	}
	if result["output"] != "done" {
		t.Errorf("期望 output='done'，实际为 '%s'", result["output"])
	}
}
