package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"actionflow/internal/worker/tasks"

	"github.com/hibiken/asynq"
)

// Client 任务队列客户端接口
type Client interface {
	EnqueueRunAction(ctx context.Context, payload tasks.RunActionPayload) (string, error)
	Close() error
}

type asynqClient struct {
	client *asynq.Client
}

// NewClient 创建任务队列客户端，连接选项由 infra.AsynqRedisOpt 生成
func NewClient(opt asynq.RedisConnOpt) Client {
	return &asynqClient{client: asynq.NewClient(opt)}
}

// EnqueueRunAction 投递按钮动作，返回任务 id
func (c *asynqClient) EnqueueRunAction(ctx context.Context, payload tasks.RunActionPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(tasks.TypeRunAction, data)

	// 动作失败会通知用户，不自动重试
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(0),
		asynq.Timeout(10*time.Minute),
		asynq.Queue(tasks.QueueActions),
	)
	if err != nil {
		return "", fmt.Errorf("enqueue task failed: %w", err)
	}
	return info.ID, nil
}

func (c *asynqClient) Close() error {
	return c.client.Close()
}
